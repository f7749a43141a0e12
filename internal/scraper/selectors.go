package scraper

import "sort"

// Platform DOM selectors, keyed by version.
// These are isolated here because the feed sites change their DOM frequently.
// A breaking redesign ships as a new version; the old one stays selectable
// through collect.selector_version. Update these when scraping breaks.

// feedSelectors drive the shared feed scan used by X and Facebook.
type feedSelectors struct {
	// Container matches one post in the rendered feed.
	Container string
	// LinkCandidates are tried in order; the first non-empty href wins.
	LinkCandidates []string
	// Text is the text node under the container. Empty means use the
	// container's own text.
	Text string
	// Time is the timestamp element under the container.
	Time string
}

// instagramSelectors drive the two-phase Instagram scan.
type instagramSelectors struct {
	// LinkCandidates match permalink anchors on the profile grid.
	LinkCandidates []string
	// Article is the post body on a permalink page.
	Article string
	// OGDescription is the og:description meta tag, preferred over Article.
	OGDescription string
	// Time is the page-level timestamp element.
	Time string
}

var xSelectorTable = map[string]feedSelectors{
	"v1": {
		Container:      `article[data-testid="tweet"]`,
		LinkCandidates: []string{`a[href*="/status/"]`},
		Text:           `[data-testid="tweetText"]`,
		Time:           `time`,
	},
}

var instagramSelectorTable = map[string]instagramSelectors{
	"v1": {
		LinkCandidates: []string{`a[href*="/p/"]`, `a[href*="/reel/"]`, `a[href*="/tv/"]`},
		Article:        `article`,
		OGDescription:  `meta[property="og:description"]`,
		Time:           `time`,
	},
}

var facebookSelectorTable = map[string]feedSelectors{
	"v1": {
		Container: `div[role="article"]`,
		LinkCandidates: []string{
			`a[href*="/posts/"]`,
			`a[href*="/videos/"]`,
			`a[href*="/photos/"]`,
			`a[href*="story_fbid="]`,
			`a[href*="permalink"]`,
		},
		Time: `time`,
	},
}

// resolveSelectors picks the requested version, falling back to v1 and then
// to the newest version present so an unknown version never breaks a run.
func resolveSelectors[T any](table map[string]T, version string) T {
	if sel, ok := table[version]; ok {
		return sel
	}
	if sel, ok := table["v1"]; ok {
		return sel
	}
	versions := make([]string, 0, len(table))
	for v := range table {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return table[versions[len(versions)-1]]
}
