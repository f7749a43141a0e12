package scraper

import (
	"github.com/sirupsen/logrus"

	"github.com/sehyun-dev/snsweep/internal/browser"
	"github.com/sehyun-dev/snsweep/internal/types"
)

const (
	facebookScrollDelta = 3000
	facebookBaseURL     = "https://www.facebook.com"
)

// FacebookCollector scans public Facebook pages. Posts carry no dedicated
// text node, so the whole article text is matched against the keywords.
type FacebookCollector struct {
	cfg Config
	sel feedSelectors
	log *logrus.Entry
}

// NewFacebookCollector builds a Facebook collector from cfg.
func NewFacebookCollector(cfg Config) *FacebookCollector {
	cfg = cfg.withDefaults()
	return &FacebookCollector{
		cfg: cfg,
		sel: resolveSelectors(facebookSelectorTable, cfg.SelectorVersion),
		log: logrus.WithField("collector", "facebook"),
	}
}

// Platform identifies the feed this collector understands.
func (c *FacebookCollector) Platform() types.Platform { return types.PlatformFacebook }

// Collect scans the source page feed.
func (c *FacebookCollector) Collect(s browser.Session, src types.Source, keywords []string, limit int, skip SkipFunc) []types.RawPost {
	scan := &feedScan{
		cfg:           c.cfg,
		platform:      types.PlatformFacebook,
		sel:           c.sel,
		scrollDelta:   facebookScrollDelta,
		keywordFilter: true,
		extractURL:    c.extractPostURL,
		log:           c.log,
	}
	posts, reason := scan.run(s, src, src.URL, keywords, limit, skip)
	c.log.Debugf("%s scan ended: %s (%d posts)", src.Name, reason, len(posts))
	return posts
}

// extractPostURL tries the permalink candidates in order and resolves the
// first hit against the Facebook origin.
func (c *FacebookCollector) extractPostURL(node browser.Locator) string {
	for _, selector := range c.sel.LinkCandidates {
		link := node.Query(selector).First()
		if link.Count() == 0 {
			continue
		}
		if absolute := absoluteURL(facebookBaseURL, link.Attr("href")); absolute != "" {
			return absolute
		}
	}
	return ""
}
