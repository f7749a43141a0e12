// Package analyzer turns collected post text into Korean briefing material.
// A Gemini-backed summarizer produces headline, detail, summary and a tech
// category; every step degrades to rule-based fallbacks so a missing API key
// or a dead model never blocks a run.
package analyzer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sehyun-dev/snsweep/internal/cache"
	"github.com/sehyun-dev/snsweep/internal/config"
)

// Summary is the analyzed form of one post text.
type Summary struct {
	Summary      string
	TechCategory string
	Headline     string
	Detail       string
}

// textGenerator produces model text for a prompt.
type textGenerator interface {
	generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer analyzes post text, memoizing results through the content
// cache. It is not safe for concurrent use; the pipeline feeds it one post
// at a time.
type Summarizer struct {
	enabled bool
	canCall bool
	gen     textGenerator
	store   *cache.Cache
	log     *logrus.Entry

	warnedSummary     bool
	warnedTranslation bool
}

// NewSummarizer builds a summarizer from the analysis config. Without an API
// key it still works, it just stays on the rule-based fallbacks.
func NewSummarizer(cfg config.AnalysisConfig, store *cache.Cache) *Summarizer {
	if store == nil {
		store = cache.Disabled()
	}
	canCall := strings.TrimSpace(cfg.APIKey) != ""
	var gen textGenerator
	if canCall {
		gen = newGeminiClient(cfg.APIKey, cfg.Models)
	}
	return &Summarizer{
		enabled: cfg.Enabled && canCall,
		canCall: canCall,
		gen:     gen,
		store:   store,
		log:     logrus.WithField("component", "analyzer"),
	}
}

// Summarize analyzes one post text. It never fails: a model error is logged
// once and answered with the rule-based fallback, which is cached like any
// other result.
func (s *Summarizer) Summarize(ctx context.Context, text string) Summary {
	if cached, ok := s.cachedSummary(ctx, text); ok {
		return cached
	}

	if !s.enabled {
		result := s.fallbackResult(ctx, text)
		s.storeSummary(text, result)
		return result
	}

	generated, err := s.gen.generate(ctx, buildSummaryPrompt(text))
	if err != nil {
		if !s.warnedSummary {
			s.warnedSummary = true
			s.log.Warnf("summary generation failed: %s", shortError(err))
		}
		result := s.fallbackResult(ctx, text)
		s.storeSummary(text, result)
		return result
	}

	parsed := parseSummaryJSON(generated)
	result := Summary{
		Summary:      firstNonEmpty(strings.TrimSpace(parsed.Summary), fallbackSummary(text)),
		TechCategory: firstNonEmpty(strings.TrimSpace(parsed.TechCategory), fallbackCategory(text)),
		Headline:     strings.TrimSpace(parsed.Headline),
		Detail:       strings.TrimSpace(parsed.Detail),
	}
	result.Summary = s.EnsureKorean(ctx, result.Summary)
	if result.Headline != "" {
		result.Headline = s.EnsureKorean(ctx, result.Headline)
	}
	if result.Detail != "" {
		result.Detail = s.EnsureKorean(ctx, result.Detail)
	}

	s.storeSummary(text, result)
	return result
}

// EnsureKorean returns text unchanged when it already carries Hangul, and
// otherwise tries to translate it. When no translation can be produced the
// original text passes through.
func (s *Summarizer) EnsureKorean(ctx context.Context, text string) string {
	clean := strings.TrimSpace(text)
	if clean == "" || ContainsHangul(clean) {
		return clean
	}
	if translated := s.translateToKorean(ctx, clean); translated != "" {
		return translated
	}
	return clean
}

func (s *Summarizer) translateToKorean(ctx context.Context, text string) string {
	if cached, ok := s.store.Translation(text); ok && ContainsHangul(cached) {
		return cached
	}
	if !s.canCall {
		return ""
	}

	translated, err := s.gen.generate(ctx, buildTranslatePrompt(text))
	if err != nil {
		if !s.warnedTranslation {
			s.warnedTranslation = true
			s.log.Warnf("translation failed: %s", shortError(err))
		}
		return ""
	}
	translated = strings.TrimSpace(translated)
	if translated != "" && ContainsHangul(translated) {
		s.store.SetTranslation(text, translated)
		return translated
	}
	return ""
}

func (s *Summarizer) cachedSummary(ctx context.Context, text string) (Summary, bool) {
	entry, ok := s.store.Summary(text)
	if !ok {
		return Summary{}, false
	}
	result := Summary{
		Summary:      s.EnsureKorean(ctx, entry.Summary),
		TechCategory: firstNonEmpty(strings.TrimSpace(entry.TechCategory), fallbackCategory(text)),
	}
	if entry.Headline != "" {
		result.Headline = s.EnsureKorean(ctx, entry.Headline)
	}
	if entry.Detail != "" {
		result.Detail = s.EnsureKorean(ctx, entry.Detail)
	}
	return result, true
}

func (s *Summarizer) storeSummary(text string, result Summary) {
	s.store.SetSummary(text, cache.SummaryEntry{
		Summary:      result.Summary,
		TechCategory: result.TechCategory,
		Headline:     result.Headline,
		Detail:       result.Detail,
	})
}

func (s *Summarizer) fallbackResult(ctx context.Context, text string) Summary {
	return Summary{
		Summary:      s.EnsureKorean(ctx, fallbackSummary(text)),
		TechCategory: fallbackCategory(text),
	}
}

// summaryPayload is the JSON shape the summary prompt asks for.
type summaryPayload struct {
	Headline     string `json:"headline"`
	Detail       string `json:"detail"`
	Summary      string `json:"summary"`
	TechCategory string `json:"tech_category"`
}

// parseSummaryJSON digs the payload out of model output that may be wrapped
// in markdown fences or surrounded by prose. Anything unparsable comes back
// as a zero payload and the fallbacks take over.
func parseSummaryJSON(text string) summaryPayload {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.Trim(cleaned, "`")
		cleaned = strings.TrimSpace(strings.Replace(cleaned, "json", "", 1))
	}

	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first == -1 || last == -1 || first >= last {
		return summaryPayload{}
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(cleaned[first:last+1]), &payload); err != nil {
		return summaryPayload{}
	}
	return payload
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// shortError keeps one-line log noise out of multi-line API errors.
func shortError(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown error"
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	runes := []rune(msg)
	if len(runes) > 220 {
		msg = string(runes[:220])
	}
	return msg
}
