package scraper

import (
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sehyun-dev/snsweep/internal/browser"
	"github.com/sehyun-dev/snsweep/internal/types"
)

const (
	instagramScrollDelta = 2400
	instagramDefaultBase = "https://www.instagram.com"
)

// InstagramCollector scans profiles in two phases: harvest permalink
// candidates from the scrolled grid, then visit each permalink for its text
// and timestamp. The harvest is oversized because visits still filter.
type InstagramCollector struct {
	cfg Config
	sel instagramSelectors
	log *logrus.Entry
}

// NewInstagramCollector builds an Instagram collector from cfg.
func NewInstagramCollector(cfg Config) *InstagramCollector {
	cfg = cfg.withDefaults()
	return &InstagramCollector{
		cfg: cfg,
		sel: resolveSelectors(instagramSelectorTable, cfg.SelectorVersion),
		log: logrus.WithField("collector", "instagram"),
	}
}

// Platform identifies the feed this collector understands.
func (c *InstagramCollector) Platform() types.Platform { return types.PlatformInstagram }

// Collect harvests permalinks from the profile grid, then visits each one
// until the limit is filled. A permalink that fails to open, has no text or
// misses the keywords is skipped without ending the scan.
func (c *InstagramCollector) Collect(s browser.Session, src types.Source, keywords []string, limit int, skip SkipFunc) []types.RawPost {
	if !openPage(s, c.log, c.cfg, src.Name, src.URL) {
		return nil
	}

	candidateLimit := limit
	if oversized := limit * c.cfg.InstagramCandidateMultiplier; oversized > candidateLimit {
		candidateLimit = oversized
	}
	postURLs := c.collectPostURLs(s, src.URL, candidateLimit)
	c.log.Infof("%s candidates: %d (limit=%d)", src.Name, len(postURLs), candidateLimit)

	window := newLookbackWindow(c.cfg.LookbackHours, c.cfg.IncludeUnknownTime)
	results := make([]types.RawPost, 0, limit)
	oldPostStreak := 0

	for _, postURL := range postURLs {
		if len(results) >= limit {
			break
		}
		if skip != nil && skip(postURL) {
			continue
		}
		if !openPage(s, c.log, c.cfg, src.Name, postURL) {
			continue
		}

		text := c.extractPostText(s)
		if text == "" {
			continue
		}
		if !keywordMatch(text, keywords) {
			continue
		}

		postedAt := c.extractTimeFromPage(s)
		if !window.contains(postedAt) {
			if window.olderThanCutoff(postedAt) {
				oldPostStreak++
			} else {
				oldPostStreak = 0
			}
			if c.cfg.OldPostBreakLimit > 0 && oldPostStreak >= c.cfg.OldPostBreakLimit {
				c.log.Infof("%s early stop: old posts streak=%d", src.Name, oldPostStreak)
				break
			}
			continue
		}

		oldPostStreak = 0
		results = append(results, types.RawPost{
			SourceName:     src.Name,
			SourceCategory: src.Category,
			SourceGroup:    src.Group,
			Platform:       types.PlatformInstagram,
			PostURL:        postURL,
			PostedAt:       postedAt,
			Text:           text,
		})
		c.log.Infof("%s matched: %d/%d", src.Name, len(results), limit)
	}

	return results
}

// collectPostURLs scrolls the profile grid and harvests permalink URLs in
// on-screen order until candidateLimit or the scroll budget is reached.
func (c *InstagramCollector) collectPostURLs(s browser.Session, sourceURL string, candidateLimit int) []string {
	base := instagramBaseURL(sourceURL)
	combined := strings.Join(c.sel.LinkCandidates, ", ")
	postURLs := make([]string, 0, candidateLimit)
	seen := make(map[string]struct{})
	staleScrolls := 0

	for scroll := 1; scroll <= c.cfg.ScrollLimit; scroll++ {
		anchors := s.Query(combined)
		count := anchors.Count()
		c.log.Debugf("url scan %d/%d, anchors=%d", scroll, c.cfg.ScrollLimit, count)
		beforeCount := len(postURLs)

		for i := 0; i < count; i++ {
			href := anchors.Nth(i).Attr("href")
			postURL := absoluteURL(base, href)
			if !isInstagramPostURL(postURL) {
				continue
			}
			if _, dup := seen[postURL]; dup {
				continue
			}
			seen[postURL] = struct{}{}
			postURLs = append(postURLs, postURL)
			if len(postURLs) >= candidateLimit {
				return postURLs
			}
		}

		s.Scroll(instagramScrollDelta)
		s.Wait(c.cfg.ScrollWait)

		if len(postURLs) == beforeCount {
			staleScrolls++
		} else {
			staleScrolls = 0
		}
		if c.cfg.NoGrowthBreakLimit > 0 && staleScrolls >= c.cfg.NoGrowthBreakLimit {
			c.log.Infof("url scan early stop: no new urls for %d scrolls", staleScrolls)
			break
		}
	}

	return postURLs
}

// extractPostText prefers the og:description meta content, which Instagram
// renders even when the article body is gated, and falls back to the
// article text.
func (c *InstagramCollector) extractPostText(s browser.Session) string {
	meta := s.Query(c.sel.OGDescription).First()
	if meta.Count() > 0 {
		content := strings.TrimSpace(meta.Attr("content"))
		if text := parseInstagramOGDescription(content); text != "" {
			return text
		}
	}
	article := s.Query(c.sel.Article).First()
	if article.Count() > 0 {
		return normalizeText(article.Text())
	}
	return ""
}

// extractTimeFromPage reads the page-level timestamp of a permalink page.
func (c *InstagramCollector) extractTimeFromPage(s browser.Session) string {
	loc := s.Query(c.sel.Time).First()
	if loc.Count() == 0 {
		return ""
	}
	return loc.Attr("datetime")
}

// parseInstagramOGDescription strips the engagement prefix Instagram puts
// before the first colon ("12 likes, 3 comments - name on date: caption").
// Descriptions without a colon pass through whole.
func parseInstagramOGDescription(description string) string {
	if description == "" {
		return ""
	}
	idx := strings.Index(description, ":")
	if idx < 0 {
		return description
	}
	return strings.TrimSpace(description[idx+1:])
}

// isInstagramPostURL accepts permalinks for posts, reels and IGTV.
func isInstagramPostURL(candidate string) bool {
	return strings.Contains(candidate, "/p/") ||
		strings.Contains(candidate, "/reel/") ||
		strings.Contains(candidate, "/tv/")
}

// instagramBaseURL keeps relative grid hrefs on the profile's own origin.
func instagramBaseURL(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return instagramDefaultBase
	}
	return parsed.Scheme + "://" + parsed.Host
}
