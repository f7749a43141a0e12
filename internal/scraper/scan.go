// Package scraper turns rendered social feeds into RawPosts. One collector
// per platform shares a scroll-and-harvest loop driven by versioned DOM
// selectors; an orchestrator fans sources out across isolated browser
// sessions and reassembles results in input order.
package scraper

import (
	"math"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"github.com/sehyun-dev/snsweep/internal/browser"
	"github.com/sehyun-dev/snsweep/internal/types"
)

// SkipFunc reports whether a post URL was already collected by an earlier run
// and can be dropped before text extraction. A nil SkipFunc skips nothing.
type SkipFunc func(url string) bool

// Collector scans one source's feed through a browser session. Collect never
// returns an error: a source that cannot be scanned yields zero posts and the
// reason lands in the log.
type Collector interface {
	Platform() types.Platform
	Collect(s browser.Session, src types.Source, keywords []string, limit int, skip SkipFunc) []types.RawPost
}

// Config carries the scan tuning shared by all collectors. The zero value is
// not usable; start from DefaultConfig or fill every field.
type Config struct {
	// ScrollLimit bounds feed scroll iterations per page.
	ScrollLimit int
	// ScrollWait is the pause after each scroll so new posts can render.
	ScrollWait time.Duration
	// NoGrowthBreakLimit stops the scan after this many consecutive scrolls
	// that surface nothing new. Zero disables the check.
	NoGrowthBreakLimit int
	// OldPostBreakLimit stops the scan after this many consecutive posts
	// older than the lookback cutoff. Zero disables the check.
	OldPostBreakLimit int
	// NavTimeout bounds one navigation attempt.
	NavTimeout time.Duration
	// NavRetries is how many times a failed navigation is retried.
	NavRetries int
	// NavRetryBase seeds the exponential navigation backoff.
	NavRetryBase time.Duration
	// LookbackHours restricts accepted posts to the trailing window.
	// Zero accepts any age.
	LookbackHours int
	// IncludeUnknownTime accepts posts whose timestamp cannot be parsed.
	IncludeUnknownTime bool
	// XKeywordFilter applies the keyword filter to X posts. Off by default:
	// the X search URL already narrows to the keywords.
	XKeywordFilter bool
	// InstagramCandidateMultiplier oversizes the permalink harvest so the
	// per-post visits still fill the limit after filtering.
	InstagramCandidateMultiplier int
	// SelectorVersion picks the selector set; unknown versions fall back.
	SelectorVersion string
	// BlockResources drops images, media, fonts and ad calls per session.
	BlockResources bool
	// Workers is the parallel source fan-out used by the orchestrator.
	Workers int
}

// DefaultConfig returns the tuning the collectors were calibrated with.
func DefaultConfig() Config {
	return Config{
		ScrollLimit:                  8,
		ScrollWait:                   1500 * time.Millisecond,
		NoGrowthBreakLimit:           2,
		OldPostBreakLimit:            8,
		NavTimeout:                   25 * time.Second,
		NavRetries:                   2,
		NavRetryBase:                 800 * time.Millisecond,
		LookbackHours:                24,
		IncludeUnknownTime:           false,
		XKeywordFilter:               false,
		InstagramCandidateMultiplier: 4,
		SelectorVersion:              "v1",
		BlockResources:               true,
		Workers:                      1,
	}
}

// withDefaults clamps out-of-range values instead of failing so a hostile
// config degrades to the slowest safe scan.
func (c Config) withDefaults() Config {
	if c.ScrollLimit < 1 {
		c.ScrollLimit = 1
	}
	if c.ScrollWait < 100*time.Millisecond {
		c.ScrollWait = 100 * time.Millisecond
	}
	if c.NoGrowthBreakLimit < 0 {
		c.NoGrowthBreakLimit = 0
	}
	if c.OldPostBreakLimit < 0 {
		c.OldPostBreakLimit = 0
	}
	if c.NavTimeout < time.Second {
		c.NavTimeout = time.Second
	}
	if c.NavRetries < 0 {
		c.NavRetries = 0
	}
	if c.NavRetryBase < 100*time.Millisecond {
		c.NavRetryBase = 100 * time.Millisecond
	}
	if c.LookbackHours < 0 {
		c.LookbackHours = 0
	}
	if c.InstagramCandidateMultiplier < 1 {
		c.InstagramCandidateMultiplier = 1
	}
	if c.SelectorVersion == "" {
		c.SelectorVersion = "v1"
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c
}

// stopReason records why a feed scan ended; it only feeds the logs.
type stopReason string

const (
	stopNavFailed stopReason = "nav_failed"
	stopLimit     stopReason = "limit_reached"
	stopNoGrowth  stopReason = "no_growth"
	stopOldPosts  stopReason = "old_posts"
	stopExhausted stopReason = "exhausted"
)

// navSettleWait is the pause after a successful navigation so the feed's
// first posts can render before the scan starts counting.
const navSettleWait = 1500 * time.Millisecond

// maxTextRunes caps normalized post text.
const maxTextRunes = 2000

// openPage navigates with retries and exponential backoff. It never returns
// an error; false means the page is unusable and the caller moves on.
func openPage(s browser.Session, log *logrus.Entry, cfg Config, sourceName, targetURL string) bool {
	for attempt := 0; attempt <= cfg.NavRetries; attempt++ {
		err := s.Navigate(targetURL, "", cfg.NavTimeout)
		if err == nil {
			s.Wait(navSettleWait)
			return true
		}
		if attempt >= cfg.NavRetries {
			log.Warnf("navigation failed: %s (%s) - %v", sourceName, shortText(targetURL, 120), err)
			return false
		}
		delay := backoff(attempt, cfg.NavRetryBase)
		log.Infof("navigation retry %d/%d: %s, wait=%s", attempt+1, cfg.NavRetries, sourceName, delay.Round(time.Millisecond))
		s.Wait(delay)
	}
	return false
}

// backoff returns base * 2^attempt with +-20% jitter.
func backoff(attempt int, base time.Duration) time.Duration {
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(base) * math.Pow(2, float64(attempt)) * jitter)
}

// lookbackWindow freezes the acceptance cutoff for one scan so a slow scroll
// does not shift the window mid-run.
type lookbackWindow struct {
	cutoff         time.Time
	active         bool
	includeUnknown bool
}

func newLookbackWindow(hours int, includeUnknown bool) lookbackWindow {
	w := lookbackWindow{includeUnknown: includeUnknown}
	if hours > 0 {
		w.cutoff = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		w.active = true
	}
	return w
}

// contains reports whether a post with the given timestamp string falls
// inside the window. Unparsable timestamps follow includeUnknown.
func (w lookbackWindow) contains(postedAt string) bool {
	if !w.active {
		return true
	}
	ts, ok := parseTimestamp(postedAt)
	if !ok {
		return w.includeUnknown
	}
	return !ts.Before(w.cutoff)
}

// olderThanCutoff reports whether the timestamp parses and predates the
// cutoff. Unparsable timestamps are not "older"; they reset streaks.
func (w lookbackWindow) olderThanCutoff(postedAt string) bool {
	if !w.active {
		return false
	}
	ts, ok := parseTimestamp(postedAt)
	if !ok {
		return false
	}
	return ts.Before(w.cutoff)
}

// parseTimestamp reads the datetime strings feed markup carries. Values
// without a zone are treated as UTC.
func parseTimestamp(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	ts, err := dateparse.ParseIn(trimmed, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeText collapses whitespace runs and caps the result so one
// rambling post cannot dominate downstream sheets and prompts.
func normalizeText(text string) string {
	compact := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	runes := []rune(compact)
	if len(runes) > maxTextRunes {
		return string(runes[:maxTextRunes])
	}
	return compact
}

// keywordMatch reports whether text contains any keyword, case-insensitive.
// An empty or all-blank keyword list matches everything.
func keywordMatch(text string, keywords []string) bool {
	clean := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if trimmed := strings.TrimSpace(keyword); trimmed != "" {
			clean = append(clean, strings.ToLower(trimmed))
		}
	}
	if len(clean) == 0 {
		return true
	}
	lowered := strings.ToLower(text)
	for _, keyword := range clean {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// absoluteURL resolves href against base. Empty href stays empty.
func absoluteURL(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimRight(base, "/") + href
	}
	return strings.TrimRight(base, "/") + "/" + href
}

// shortText truncates value for log lines.
func shortText(value string, maxLen int) string {
	runes := []rune(value)
	if len(runes) <= maxLen {
		return value
	}
	return string(runes[:maxLen-3]) + "..."
}

// extractTimeAttr reads the datetime attribute of the first match under
// root, or "" when the element is missing.
func extractTimeAttr(root browser.Locator, selector string) string {
	loc := root.Query(selector).First()
	if loc.Count() == 0 {
		return ""
	}
	return loc.Attr("datetime")
}

// feedScan is the shared scroll-and-harvest loop over a feed of post
// containers. X and Facebook differ only in selectors, link extraction and
// whether the keyword filter applies.
type feedScan struct {
	cfg         Config
	platform    types.Platform
	sel         feedSelectors
	scrollDelta int
	// keywordFilter gates posts on the keyword list.
	keywordFilter bool
	// logProgress emits a running count every five accepted posts.
	logProgress bool
	// extractURL pulls the canonical post URL out of one container.
	extractURL func(node browser.Locator) string
	log        *logrus.Entry
}

// run scans pageURL until the limit, the scroll budget or an early-stop
// condition ends it. The returned reason only feeds the logs.
func (f *feedScan) run(s browser.Session, src types.Source, pageURL string, keywords []string, limit int, skip SkipFunc) ([]types.RawPost, stopReason) {
	if !openPage(s, f.log, f.cfg, src.Name, pageURL) {
		return nil, stopNavFailed
	}

	window := newLookbackWindow(f.cfg.LookbackHours, f.cfg.IncludeUnknownTime)
	collected := make([]types.RawPost, 0, limit)
	seen := make(map[string]struct{})
	staleScrolls := 0
	oldPostStreak := 0

	for scroll := 1; scroll <= f.cfg.ScrollLimit; scroll++ {
		containers := s.Query(f.sel.Container)
		count := containers.Count()
		f.log.Debugf("%s scroll %d/%d, posts=%d", src.Name, scroll, f.cfg.ScrollLimit, count)
		beforeSeen := len(seen)

		for i := 0; i < count; i++ {
			if len(collected) >= limit {
				return collected, stopLimit
			}

			node := containers.Nth(i)
			postURL := f.extractURL(node)
			if postURL == "" {
				continue
			}
			if _, dup := seen[postURL]; dup {
				continue
			}
			seen[postURL] = struct{}{}

			if skip != nil && skip(postURL) {
				continue
			}

			var text string
			if f.sel.Text != "" {
				text = normalizeText(node.Query(f.sel.Text).First().Text())
			} else {
				text = normalizeText(node.Text())
			}
			if text == "" {
				continue
			}
			if f.keywordFilter && !keywordMatch(text, keywords) {
				continue
			}

			postedAt := extractTimeAttr(node, f.sel.Time)
			if !window.contains(postedAt) {
				if window.olderThanCutoff(postedAt) {
					oldPostStreak++
				} else {
					oldPostStreak = 0
				}
				if f.cfg.OldPostBreakLimit > 0 && oldPostStreak >= f.cfg.OldPostBreakLimit {
					f.log.Infof("%s early stop: old posts streak=%d", src.Name, oldPostStreak)
					return collected, stopOldPosts
				}
				continue
			}

			oldPostStreak = 0
			collected = append(collected, types.RawPost{
				SourceName:     src.Name,
				SourceCategory: src.Category,
				SourceGroup:    src.Group,
				Platform:       f.platform,
				PostURL:        postURL,
				PostedAt:       postedAt,
				Text:           text,
			})

			if f.logProgress && (len(collected) == limit || len(collected)%5 == 0) {
				f.log.Infof("%s collected: %d/%d", src.Name, len(collected), limit)
			}
		}

		s.Scroll(f.scrollDelta)
		s.Wait(f.cfg.ScrollWait)

		if len(seen) == beforeSeen {
			staleScrolls++
		} else {
			staleScrolls = 0
		}
		if f.cfg.NoGrowthBreakLimit > 0 && staleScrolls >= f.cfg.NoGrowthBreakLimit {
			f.log.Infof("%s early stop: no new posts for %d scrolls", src.Name, staleScrolls)
			return collected, stopNoGrowth
		}
	}

	return collected, stopExhausted
}
