// Package sources loads collection targets from the operator-maintained
// workbook. The canonical headers are Korean; common English spellings are
// accepted as aliases so hand-edited files keep working.
package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sehyun-dev/snsweep/internal/types"
)

// DefaultPath is where the workbook lives unless configured otherwise.
const DefaultPath = "sources.xlsx"

var sourceColumns = []string{"구분", "그룹", "이름", "URL"}

var columnAliases = map[string]string{
	"구분":       "구분",
	"category": "구분",
	"Category": "구분",
	"그룹":       "그룹",
	"group":    "그룹",
	"Group":    "그룹",
	"이름":       "이름",
	"name":     "이름",
	"Name":     "이름",
	"URL":      "URL",
	"url":      "URL",
	"Url":      "URL",
}

// Starter returns the rows a fresh workbook is seeded with.
func Starter() []types.Source {
	return []types.Source{
		{Category: "기업", Group: "AI모델", Name: "OpenAI", URL: "https://x.com/OpenAI"},
		{Category: "기업", Group: "AI모델", Name: "Google AI", URL: "https://x.com/GoogleAI"},
		{Category: "기업", Group: "AI모델", Name: "Google DeepMind", URL: "https://x.com/GoogleDeepMind"},
	}
}

// Load reads every usable source row from the workbook at path. Rows without
// a URL are dropped; URLs without a scheme get https. Loading fails when the
// file, a required column or any usable row is missing.
func Load(path string) ([]types.Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("sources workbook %s not found: run `snsweep sources init` first", path)
		}
		return nil, fmt.Errorf("open sources workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read sources workbook: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sources workbook %s is empty", path)
	}

	index, err := columnIndex(rows[0])
	if err != nil {
		return nil, err
	}

	var list []types.Source
	for _, row := range rows[1:] {
		src := types.Source{
			Category: cellAt(row, index["구분"]),
			Group:    cellAt(row, index["그룹"]),
			Name:     cellAt(row, index["이름"]),
			URL:      cellAt(row, index["URL"]),
		}
		if src.URL == "" {
			continue
		}
		if !strings.HasPrefix(src.URL, "http://") && !strings.HasPrefix(src.URL, "https://") {
			src.URL = "https://" + src.URL
		}
		list = append(list, src)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no usable sources in %s: every row needs a URL", path)
	}
	return list, nil
}

// Ensure writes a starter workbook at path when none exists. It reports
// whether a file was created.
func Ensure(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create sources dir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := make([]interface{}, len(sourceColumns))
	for i, name := range sourceColumns {
		header[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return false, err
	}
	for i, src := range Starter() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return false, err
		}
		row := []interface{}{src.Category, src.Group, src.Name, src.URL}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return false, err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return false, fmt.Errorf("write starter workbook: %w", err)
	}
	return true, nil
}

// columnIndex maps the canonical columns onto header positions, honoring
// aliases. The first occurrence of a column wins.
func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(sourceColumns))
	for i, name := range header {
		canonical, ok := columnAliases[strings.TrimSpace(name)]
		if !ok {
			continue
		}
		if _, dup := index[canonical]; !dup {
			index[canonical] = i
		}
	}

	var missing []string
	for _, name := range sourceColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("sources workbook missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
