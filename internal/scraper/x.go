package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sehyun-dev/snsweep/internal/browser"
	"github.com/sehyun-dev/snsweep/internal/types"
)

const xScrollDelta = 3000

// XCollector scans X profiles. It prefers a live-search URL scoped to the
// profile handle and the keywords, and falls back to the raw profile feed
// when the search yields nothing.
type XCollector struct {
	cfg Config
	sel feedSelectors
	log *logrus.Entry
}

// NewXCollector builds an X collector from cfg.
func NewXCollector(cfg Config) *XCollector {
	cfg = cfg.withDefaults()
	return &XCollector{
		cfg: cfg,
		sel: resolveSelectors(xSelectorTable, cfg.SelectorVersion),
		log: logrus.WithField("collector", "x"),
	}
}

// Platform identifies the feed this collector understands.
func (c *XCollector) Platform() types.Platform { return types.PlatformX }

// Collect scans the source, trying the keyword search page first. The first
// candidate URL that yields posts wins; a candidate that cannot even
// navigate just falls through to the next.
func (c *XCollector) Collect(s browser.Session, src types.Source, keywords []string, limit int, skip SkipFunc) []types.RawPost {
	candidates := []string{src.URL}
	if searchURL, err := buildXSearchURL(src.URL, keywords); err == nil {
		candidates = append([]string{searchURL}, candidates...)
	}

	scan := &feedScan{
		cfg:           c.cfg,
		platform:      types.PlatformX,
		sel:           c.sel,
		scrollDelta:   xScrollDelta,
		keywordFilter: c.cfg.XKeywordFilter,
		logProgress:   true,
		extractURL:    c.extractPostURL,
		log:           c.log,
	}

	for _, target := range candidates {
		c.log.Infof("try url: %s", shortText(target, 120))
		posts, reason := scan.run(s, src, target, keywords, limit, skip)
		c.log.Debugf("%s scan ended: %s (%d posts)", src.Name, reason, len(posts))
		if len(posts) > 0 {
			return posts
		}
	}
	return nil
}

// extractPostURL pulls the status link out of one post container. Only
// absolute and root-relative hrefs are trusted.
func (c *XCollector) extractPostURL(node browser.Locator) string {
	for _, selector := range c.sel.LinkCandidates {
		link := node.Query(selector).First()
		if link.Count() == 0 {
			continue
		}
		href := link.Attr("href")
		if href == "" {
			continue
		}
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			return href
		}
		if strings.HasPrefix(href, "/") {
			return "https://x.com" + href
		}
	}
	return ""
}

// buildXSearchURL turns a profile URL plus keywords into a live-search URL.
// It fails when the source URL is not an X profile, in which case the
// caller scans the profile URL directly.
func buildXSearchURL(sourceURL string, keywords []string) (string, error) {
	handle, err := extractXHandle(sourceURL)
	if err != nil {
		return "", err
	}
	query := buildXQuery(handle, keywords)
	return fmt.Sprintf("https://x.com/search?q=%s&src=typed_query&f=live", url.QueryEscape(query)), nil
}

// extractXHandle pulls the profile handle out of an x.com or twitter.com URL.
func extractXHandle(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(parsed.Host)
	if host != "" && !strings.Contains(host, "x.com") && !strings.Contains(host, "twitter.com") {
		return "", fmt.Errorf("not an X URL: %s", rawURL)
	}
	for _, part := range strings.Split(parsed.Path, "/") {
		if part != "" {
			return strings.TrimLeft(part, "@"), nil
		}
	}
	return "", fmt.Errorf("no handle in X URL: %s", rawURL)
}

// buildXQuery combines the handle with quoted keywords:
// (from:handle) ("k1" OR "k2"). Without keywords it is just from:handle.
func buildXQuery(handle string, keywords []string) string {
	base := "from:" + handle
	quoted := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if trimmed := strings.TrimSpace(keyword); trimmed != "" {
			quoted = append(quoted, `"`+trimmed+`"`)
		}
	}
	if len(quoted) == 0 {
		return base
	}
	return fmt.Sprintf("(%s) (%s)", base, strings.Join(quoted, " OR "))
}
