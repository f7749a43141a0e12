// Package process turns raw collected posts into briefing rows: it drops
// duplicates, strips URLs out of post text, runs the analyzer and formats
// the Korean briefing column.
package process

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"github.com/sehyun-dev/snsweep/internal/analyzer"
	"github.com/sehyun-dev/snsweep/internal/types"
)

var (
	urlRE        = regexp.MustCompile(`https?://\S+`)
	wsRE         = regexp.MustCompile(`\s+`)
	briefSplitRE = regexp.MustCompile(`\s*/\s*|[.!?]\s+|\n+`)
)

// Row is one processed post, ready for the output workbook.
type Row struct {
	PostedAt     string
	Date         string
	SourceName   string
	Briefing     string
	Platform     string
	URL          string
	Category     string
	TechCategory string
	OriginalText string
}

// Summarizer is the analyzer surface the processor needs.
type Summarizer interface {
	Summarize(ctx context.Context, text string) analyzer.Summary
	EnsureKorean(ctx context.Context, text string) string
}

// Processor builds briefing rows from raw posts.
type Processor struct {
	summarizer Summarizer
	log        *logrus.Entry
}

func New(summarizer Summarizer) *Processor {
	return &Processor{
		summarizer: summarizer,
		log:        logrus.WithField("component", "process"),
	}
}

// Process dedupes, analyzes and formats the given posts. Row order follows
// the input order of the posts that survive dedup.
func (p *Processor) Process(ctx context.Context, posts []types.RawPost) []Row {
	p.log.Infof("input posts: %d", len(posts))
	deduped := p.dedupe(posts)
	p.log.Infof("after dedup: %d", len(deduped))

	rows := make([]Row, 0, len(deduped))
	for i, post := range deduped {
		clean := cleanText(post.Text)
		summary := p.summarizer.Summarize(ctx, clean)
		briefing := p.formatBriefing(ctx, post.SourceName, summary)

		rows = append(rows, Row{
			PostedAt:     toDateTime(post.PostedAt),
			Date:         toDate(post.PostedAt),
			SourceName:   escapeExcelFormula(post.SourceName),
			Briefing:     escapeExcelFormula(briefing),
			Platform:     escapeExcelFormula(string(post.Platform)),
			URL:          post.PostURL,
			Category:     escapeExcelFormula(post.SourceCategory),
			TechCategory: escapeExcelFormula(summary.TechCategory),
			OriginalText: escapeExcelFormula(clean),
		})

		if idx := i + 1; idx == len(deduped) || idx%10 == 0 {
			p.log.Infof("processed %d/%d", idx, len(deduped))
		}
	}
	return rows
}

// dedupe drops posts without a URL, repeated URLs and repeated text. Text
// identity is the hash of the cleaned, lowercased body so retweet-style
// copies collapse even under different URLs.
func (p *Processor) dedupe(posts []types.RawPost) []types.RawPost {
	var unique []types.RawPost
	seenURLs := make(map[string]struct{})
	seenHashes := make(map[string]struct{})

	for _, post := range posts {
		if post.PostURL == "" {
			continue
		}
		if _, dup := seenURLs[post.PostURL]; dup {
			continue
		}

		cleaned := cleanText(post.Text)
		if cleaned == "" {
			continue
		}
		digest := hashText(cleaned)
		if _, dup := seenHashes[digest]; dup {
			continue
		}

		seenURLs[post.PostURL] = struct{}{}
		seenHashes[digest] = struct{}{}
		unique = append(unique, post)
	}
	return unique
}

func hashText(cleaned string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(cleaned)))
	return hex.EncodeToString(sum[:])
}

// cleanText strips URLs and collapses whitespace.
func cleanText(text string) string {
	noURL := urlRE.ReplaceAllString(text, "")
	return strings.TrimSpace(wsRE.ReplaceAllString(noURL, " "))
}

// toDate renders a post timestamp as YYYY-MM-DD, or empty when it does not
// parse. The clock stays in the timestamp's own zone.
func toDate(postedAt string) string {
	t, ok := parsePostedAt(postedAt)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02")
}

func toDateTime(postedAt string) string {
	t, ok := parsePostedAt(postedAt)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func parsePostedAt(postedAt string) (time.Time, bool) {
	trimmed := strings.TrimSpace(postedAt)
	if trimmed == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(trimmed, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// formatBriefing renders the two-line briefing block for one post:
//
//	ㅇ <source> : <headline>
//	 - <detail>
//
// Missing headline or detail fields are recovered from the summary text,
// and anything that still is not Korean gets a marker prefix instead of
// going out silently in the wrong language.
func (p *Processor) formatBriefing(ctx context.Context, sourceName string, summary analyzer.Summary) string {
	headline := normalizeBrief(summary.Headline)
	detail := normalizeBrief(summary.Detail)

	if headline == "" || detail == "" {
		fallbackHeadline, fallbackDetail := extractHeadlineDetail(summary.Summary)
		if headline == "" {
			headline = fallbackHeadline
		}
		if detail == "" {
			detail = fallbackDetail
		}
	}

	headline = p.normalizeToKorean(ctx, headline)
	detail = p.normalizeToKorean(ctx, detail)

	if !analyzer.ContainsHangul(headline) {
		if headline == "" {
			headline = "요약 정보 없음"
		} else {
			headline = "원문 요약: " + headline
		}
	}
	if !analyzer.ContainsHangul(detail) {
		if detail == "" {
			detail = "원문 링크를 참고하세요."
		} else {
			detail = "원문 참고: " + detail
		}
	}

	label := strings.TrimSpace(sourceName)
	if label == "" {
		label = "Unknown Source"
	}
	return "ㅇ " + label + " : " + headline + "\n - " + detail
}

// extractHeadlineDetail splits a summary into a headline and a detail line
// when the model did not return them separately.
func extractHeadlineDetail(summaryText string) (string, string) {
	text := normalizeBrief(summaryText)
	if text == "" {
		return "요약 정보 없음", "원문에서 핵심 내용을 추출하지 못했습니다."
	}

	var parts []string
	for _, piece := range briefSplitRE.Split(text, -1) {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		parts = append(parts, strings.Trim(piece, " -"))
	}

	var headline, detail string
	switch {
	case len(parts) >= 2:
		headline, detail = parts[0], parts[1]
	case len(parts) == 1:
		headline, detail = parts[0], parts[0]
	default:
		headline = "요약 정보 없음"
		detail = "원문에서 핵심 내용을 추출하지 못했습니다."
	}
	return trimBrief(headline, 90), trimBrief(detail, 220)
}

func (p *Processor) normalizeToKorean(ctx context.Context, text string) string {
	normalized := normalizeBrief(text)
	if normalized == "" || analyzer.ContainsHangul(normalized) {
		return normalized
	}
	return normalizeBrief(p.summarizer.EnsureKorean(ctx, normalized))
}

func normalizeBrief(text string) string {
	return strings.TrimSpace(wsRE.ReplaceAllString(text, " "))
}

func trimBrief(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-3]) + "..."
}

// escapeExcelFormula guards spreadsheet cells against formula injection by
// prefixing a quote when the value would otherwise start one.
func escapeExcelFormula(value string) string {
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
