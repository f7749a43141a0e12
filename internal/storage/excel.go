// Package storage persists briefing rows into the output xlsx workbook.
// Writes are merge-style: existing rows are kept, incoming rows with known
// URLs are dropped, and the sheet is rewritten newest-first through a temp
// file with rotating backups of the previous version.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/sehyun-dev/snsweep/internal/process"
)

// outputColumns is the sheet layout, in order.
var outputColumns = []string{
	"게시일시",
	"일자",
	"이름",
	"주요내용",
	"출처",
	"URL",
	"구분",
	"기술분류",
	"원문(옵션)",
}

const (
	saveAttempts  = 3
	saveRetryWait = 2 * time.Second
)

// Excel merges briefing rows into one workbook file.
type Excel struct {
	path  string
	sheet string
	log   *logrus.Entry
}

func NewExcel(path, sheet string) *Excel {
	return &Excel{
		path:  path,
		sheet: sheet,
		log:   logrus.WithField("component", "storage"),
	}
}

// MergeAndSave appends the given rows to the workbook, skipping rows whose
// URL is already present, and rewrites the sheet sorted newest-first. It
// returns how many rows were added and the resulting total.
func (e *Excel) MergeAndSave(rows []process.Row) (added, total int, err error) {
	existing := e.readExisting()

	if len(rows) == 0 {
		e.log.Info("no new rows to save")
		if _, statErr := os.Stat(e.path); os.IsNotExist(statErr) {
			if err := e.save(nil); err != nil {
				return 0, 0, err
			}
		}
		return 0, len(existing), nil
	}

	seen := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		if u := normalizeURL(row.URL); u != "" {
			seen[u] = struct{}{}
		}
	}

	var fresh []process.Row
	for _, row := range rows {
		u := normalizeURL(row.URL)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		fresh = append(fresh, row)
	}

	if len(fresh) == 0 {
		e.log.Info("all rows are duplicates")
		return 0, len(existing), nil
	}

	merged := append(existing, fresh...)
	sortRowsDesc(merged)
	for i := range merged {
		sanitizeRow(&merged[i])
	}

	if err := e.save(merged); err != nil {
		return 0, 0, err
	}
	e.log.Infof("saved %d new rows (total %d)", len(fresh), len(merged))
	return len(fresh), len(merged), nil
}

// readExisting loads the current workbook rows. A missing or unreadable
// file is treated as empty; merging must never be blocked by a torn file.
func (e *Excel) readExisting() []process.Row {
	if _, err := os.Stat(e.path); os.IsNotExist(err) {
		return nil
	}

	f, err := excelize.OpenFile(e.path)
	if err != nil {
		e.log.Warnf("failed to read existing file: %v", err)
		return nil
	}
	defer f.Close()

	cells, err := f.GetRows(e.sheet)
	if err != nil || len(cells) == 0 {
		if err != nil {
			e.log.Warnf("failed to read existing file: %v", err)
		}
		return nil
	}

	index := make(map[string]int, len(cells[0]))
	for i, name := range cells[0] {
		name = strings.TrimSpace(name)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	rows := make([]process.Row, 0, len(cells)-1)
	for _, line := range cells[1:] {
		at := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(line) {
				return ""
			}
			return line[i]
		}
		rows = append(rows, process.Row{
			PostedAt:     at("게시일시"),
			Date:         at("일자"),
			SourceName:   at("이름"),
			Briefing:     at("주요내용"),
			Platform:     at("출처"),
			URL:          at("URL"),
			Category:     at("구분"),
			TechCategory: at("기술분류"),
			OriginalText: at("원문(옵션)"),
		})
	}
	return rows
}

// save writes the full sheet through a temp file and renames it over the
// output path, keeping up to three backups of the previous file. Windows
// locks the workbook while it is open in Excel, so permission failures are
// retried a couple of times before giving up.
func (e *Excel) save(rows []process.Row) error {
	if _, err := os.Stat(e.path); err == nil {
		e.rotateBackups()
	}

	tmp := tmpPath(e.path)
	defer os.Remove(tmp)

	f, err := e.buildWorkbook(rows)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()

	for attempt := 1; attempt <= saveAttempts; attempt++ {
		err = f.SaveAs(tmp)
		if err == nil {
			err = os.Rename(tmp, e.path)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrPermission) && attempt < saveAttempts {
			e.log.Warnf("file permission error, retrying in 2s... (%d/%d)", attempt, saveAttempts)
			time.Sleep(saveRetryWait)
			continue
		}
		break
	}
	return fmt.Errorf("save workbook %s: %w", e.path, err)
}

func (e *Excel) buildWorkbook(rows []process.Row) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", e.sheet); err != nil {
		return nil, err
	}

	header := make([]interface{}, len(outputColumns))
	for i, name := range outputColumns {
		header[i] = name
	}
	if err := f.SetSheetRow(e.sheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{
			row.PostedAt,
			row.Date,
			row.SourceName,
			row.Briefing,
			row.Platform,
			row.URL,
			row.Category,
			row.TechCategory,
			row.OriginalText,
		}
		if err := f.SetSheetRow(e.sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	if err := e.applyStyles(f, len(rows)); err != nil {
		e.log.Warnf("excel styling failed: %v", err)
	}
	return f, nil
}

// applyStyles sets column widths, the header look and per-column alignment.
// The briefing column wraps; URL and source text stay unaligned.
func (e *Excel) applyStyles(f *excelize.File, rowCount int) error {
	widths := []struct {
		from, to string
		width    float64
	}{
		{"A", "A", 20},
		{"B", "B", 12},
		{"C", "C", 15},
		{"D", "D", 80},
		{"E", "I", 10},
	}
	for _, w := range widths {
		if err := f.SetColWidth(e.sheet, w.from, w.to, w.width); err != nil {
			return err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(e.sheet, "A1", "I1", headerStyle); err != nil {
		return err
	}

	if rowCount == 0 {
		return nil
	}
	last := rowCount + 1

	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(e.sheet, "D2", fmt.Sprintf("D%d", last), wrapStyle); err != nil {
		return err
	}

	centerStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	for _, col := range []string{"A", "B", "C", "E", "G", "H"} {
		if err := f.SetCellStyle(e.sheet, col+"2", fmt.Sprintf("%s%d", col, last), centerStyle); err != nil {
			return err
		}
	}
	return nil
}

// rotateBackups keeps the three most recent previous versions next to the
// output file. Rotation trouble is never fatal.
func (e *Excel) rotateBackups() {
	bak := func(n int) string { return fmt.Sprintf("%s.bak.%d", e.path, n) }

	if _, err := os.Stat(bak(2)); err == nil {
		if err := os.Rename(bak(2), bak(3)); err != nil {
			e.log.Warnf("backup rotation failed: %v", err)
			return
		}
	}
	if _, err := os.Stat(bak(1)); err == nil {
		if err := os.Rename(bak(1), bak(2)); err != nil {
			e.log.Warnf("backup rotation failed: %v", err)
			return
		}
	}
	if err := copyFile(e.path, bak(1)); err != nil {
		e.log.Warnf("backup rotation failed: %v", err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func tmpPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".tmp" + ext
}

// sortRowsDesc orders rows newest-first by posted-at, falling back to the
// date column; rows without any parsable time sink to the end in their
// original order.
func sortRowsDesc(rows []process.Row) {
	type key struct {
		ts time.Time
		ok bool
	}
	keys := make([]key, len(rows))
	for i, row := range rows {
		if ts, ok := parseWhen(row.PostedAt); ok {
			keys[i] = key{ts: ts, ok: true}
		} else if ts, ok := parseWhen(row.Date); ok {
			keys[i] = key{ts: ts, ok: true}
		}
	}

	indexes := make([]int, len(rows))
	for i := range indexes {
		indexes[i] = i
	}
	sort.SliceStable(indexes, func(a, b int) bool {
		ka, kb := keys[indexes[a]], keys[indexes[b]]
		if ka.ok != kb.ok {
			return ka.ok
		}
		if !ka.ok {
			return false
		}
		return ka.ts.After(kb.ts)
	})

	sorted := make([]process.Row, len(rows))
	for i, idx := range indexes {
		sorted[i] = rows[idx]
	}
	copy(rows, sorted)
}

func parseWhen(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	ts, err := dateparse.ParseIn(trimmed, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// sanitizeRow escapes formula-leading characters in every column but URL,
// covering rows read back from workbooks written by other tools.
func sanitizeRow(row *process.Row) {
	row.PostedAt = escapeFormula(row.PostedAt)
	row.Date = escapeFormula(row.Date)
	row.SourceName = escapeFormula(row.SourceName)
	row.Briefing = escapeFormula(row.Briefing)
	row.Platform = escapeFormula(row.Platform)
	row.Category = escapeFormula(row.Category)
	row.TechCategory = escapeFormula(row.TechCategory)
	row.OriginalText = escapeFormula(row.OriginalText)
}

func escapeFormula(value string) string {
	if value == "" || strings.HasPrefix(value, "'") {
		return value
	}
	stripped := strings.TrimLeftFunc(value, unicode.IsSpace)
	if stripped == "" {
		return value
	}
	switch stripped[0] {
	case '=', '+', '-', '@':
		return "'" + value
	}
	return value
}

func normalizeURL(value string) string {
	return strings.TrimSpace(value)
}
