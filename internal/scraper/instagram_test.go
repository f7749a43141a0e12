package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sehyun-dev/snsweep/internal/types"
)

const igProfile = "https://www.instagram.com/openai/"

func igAnchorSelector() string {
	return strings.Join(instagramSelectorTable["v1"].LinkCandidates, ", ")
}

func igAnchor(href string) *fakeElem {
	return &fakeElem{attrs: map[string]string{"href": href}}
}

// igPermalink scripts a permalink page with an og:description caption.
func igPermalink(session *fakeSession, url, caption, datetime string) *fakePage {
	page := session.addPage(url)
	if caption != "" {
		content := `15 likes, 2 comments - openai on August 24, 2026: ` + caption
		page.addBatch(`meta[property="og:description"]`, 0, &fakeElem{attrs: map[string]string{"content": content}})
	}
	if datetime != "" {
		page.addBatch(`time`, 0, &fakeElem{attrs: map[string]string{"datetime": datetime}})
	}
	return page
}

func TestParseInstagramOGDescription(t *testing.T) {
	assert.Equal(t, "", parseInstagramOGDescription(""))
	assert.Equal(t, "plain caption", parseInstagramOGDescription("plain caption"))
	assert.Equal(t, `"new AI drop"`,
		parseInstagramOGDescription(`15 likes, 2 comments - openai on August 24, 2026: "new AI drop"`))
}

func TestIsInstagramPostURL(t *testing.T) {
	assert.True(t, isInstagramPostURL("https://www.instagram.com/p/ABC123/"))
	assert.True(t, isInstagramPostURL("https://www.instagram.com/reel/XYZ/"))
	assert.True(t, isInstagramPostURL("https://www.instagram.com/tv/QQQ/"))
	assert.False(t, isInstagramPostURL("https://www.instagram.com/explore/"))
	assert.False(t, isInstagramPostURL(""))
}

func TestInstagramBaseURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com", instagramBaseURL(igProfile))
	assert.Equal(t, "https://mirror.example.com", instagramBaseURL("https://mirror.example.com/openai"))
	assert.Equal(t, "https://www.instagram.com", instagramBaseURL("not a url"))
	assert.Equal(t, "https://www.instagram.com", instagramBaseURL("/relative/only"))
}

func TestInstagramCollectorTwoPhase(t *testing.T) {
	session := newFakeSession()
	grid := session.addPage(igProfile)
	grid.addBatch(igAnchorSelector(), 0,
		igAnchor("/p/one/"),
		igAnchor("/p/two/"),
		igAnchor("/p/three/"),
		igAnchor("/explore/"),
	)
	igPermalink(session, "https://www.instagram.com/p/one/", `"AI in production"`, recentTimestamp())
	igPermalink(session, "https://www.instagram.com/p/two/", `"vacation photos"`, recentTimestamp())
	igPermalink(session, "https://www.instagram.com/p/three/", `"AI lab tour"`, recentTimestamp())

	collector := NewInstagramCollector(testConfig())
	posts := collector.Collect(session, testSource("OpenAI IG", igProfile), []string{"AI"}, 2, nil)

	require.Len(t, posts, 2)
	assert.Equal(t, "https://www.instagram.com/p/one/", posts[0].PostURL)
	assert.Equal(t, "https://www.instagram.com/p/three/", posts[1].PostURL)
	assert.Equal(t, types.PlatformInstagram, posts[0].Platform)

	// profile first, then permalinks in grid order; the explore link never
	// becomes a candidate
	assert.Equal(t, []string{
		igProfile,
		"https://www.instagram.com/p/one/",
		"https://www.instagram.com/p/two/",
		"https://www.instagram.com/p/three/",
	}, session.navs)
}

func TestInstagramCollectPostURLsStopsAtCandidateLimit(t *testing.T) {
	session := newFakeSession()
	grid := session.addPage(igProfile)
	grid.addBatch(igAnchorSelector(), 0,
		igAnchor("/p/a/"), igAnchor("/p/b/"), igAnchor("/p/c/"),
		igAnchor("/p/d/"), igAnchor("/p/e/"), igAnchor("/p/f/"),
	)
	require.NoError(t, session.Navigate(igProfile, "", testConfig().NavTimeout))

	collector := NewInstagramCollector(testConfig())
	urls := collector.collectPostURLs(session, igProfile, 4)

	assert.Equal(t, []string{
		"https://www.instagram.com/p/a/",
		"https://www.instagram.com/p/b/",
		"https://www.instagram.com/p/c/",
		"https://www.instagram.com/p/d/",
	}, urls)
	// limit hit mid-screen, no scroll needed
	assert.Empty(t, session.scrolled)
}

func TestInstagramCollectPostURLsDedupes(t *testing.T) {
	session := newFakeSession()
	grid := session.addPage(igProfile)
	grid.addBatch(igAnchorSelector(), 0, igAnchor("/p/a/"), igAnchor("/p/a/"), igAnchor("/p/b/"))
	require.NoError(t, session.Navigate(igProfile, "", testConfig().NavTimeout))

	collector := NewInstagramCollector(testConfig())
	urls := collector.collectPostURLs(session, igProfile, 10)

	assert.Equal(t, []string{
		"https://www.instagram.com/p/a/",
		"https://www.instagram.com/p/b/",
	}, urls)
}

func TestInstagramCollectorSkipsFailedPermalink(t *testing.T) {
	session := newFakeSession()
	grid := session.addPage(igProfile)
	grid.addBatch(igAnchorSelector(), 0, igAnchor("/p/broken/"), igAnchor("/p/fine/"))
	igPermalink(session, "https://www.instagram.com/p/broken/", `"AI one"`, recentTimestamp())
	igPermalink(session, "https://www.instagram.com/p/fine/", `"AI two"`, recentTimestamp())
	session.failNav["https://www.instagram.com/p/broken/"] = 10

	collector := NewInstagramCollector(testConfig())
	posts := collector.Collect(session, testSource("OpenAI IG", igProfile), []string{"AI"}, 5, nil)

	require.Len(t, posts, 1)
	assert.Equal(t, "https://www.instagram.com/p/fine/", posts[0].PostURL)
}

func TestInstagramCollectorSkipFuncPreventsVisit(t *testing.T) {
	session := newFakeSession()
	grid := session.addPage(igProfile)
	grid.addBatch(igAnchorSelector(), 0, igAnchor("/p/cached/"), igAnchor("/p/new/"))
	igPermalink(session, "https://www.instagram.com/p/cached/", `"AI cached"`, recentTimestamp())
	igPermalink(session, "https://www.instagram.com/p/new/", `"AI new"`, recentTimestamp())

	skip := func(url string) bool { return strings.Contains(url, "/p/cached/") }
	collector := NewInstagramCollector(testConfig())
	posts := collector.Collect(session, testSource("OpenAI IG", igProfile), []string{"AI"}, 5, skip)

	require.Len(t, posts, 1)
	assert.Equal(t, "https://www.instagram.com/p/new/", posts[0].PostURL)
	assert.NotContains(t, session.navs, "https://www.instagram.com/p/cached/")
}

func TestInstagramCollectorArticleFallback(t *testing.T) {
	session := newFakeSession()
	grid := session.addPage(igProfile)
	grid.addBatch(igAnchorSelector(), 0, igAnchor("/p/gated/"))

	page := session.addPage("https://www.instagram.com/p/gated/")
	page.addBatch(`article`, 0, &fakeElem{text: "  AI   field\nnotes  "})
	page.addBatch(`time`, 0, &fakeElem{attrs: map[string]string{"datetime": recentTimestamp()}})

	collector := NewInstagramCollector(testConfig())
	posts := collector.Collect(session, testSource("OpenAI IG", igProfile), []string{"AI"}, 5, nil)

	require.Len(t, posts, 1)
	assert.Equal(t, "AI field notes", posts[0].Text)
}

func TestInstagramCollectorOldPostStreakStops(t *testing.T) {
	session := newFakeSession()
	grid := session.addPage(igProfile)
	grid.addBatch(igAnchorSelector(), 0,
		igAnchor("/p/old1/"), igAnchor("/p/old2/"), igAnchor("/p/fresh/"))
	igPermalink(session, "https://www.instagram.com/p/old1/", `"AI old"`, staleTimestamp())
	igPermalink(session, "https://www.instagram.com/p/old2/", `"AI older"`, staleTimestamp())
	igPermalink(session, "https://www.instagram.com/p/fresh/", `"AI fresh"`, recentTimestamp())

	cfg := testConfig()
	cfg.OldPostBreakLimit = 2
	collector := NewInstagramCollector(cfg)
	posts := collector.Collect(session, testSource("OpenAI IG", igProfile), []string{"AI"}, 5, nil)

	assert.Empty(t, posts)
	assert.NotContains(t, session.navs, "https://www.instagram.com/p/fresh/")
}
