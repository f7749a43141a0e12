package scraper

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sehyun-dev/snsweep/internal/types"
)

func xPost(href, text, datetime string) *fakeElem {
	post := &fakeElem{children: map[string][]*fakeElem{
		`[data-testid="tweetText"]`: {{text: text}},
		`time`:                      {{attrs: map[string]string{"datetime": datetime}}},
	}}
	if href != "" {
		post.children[`a[href*="/status/"]`] = []*fakeElem{{attrs: map[string]string{"href": href}}}
	}
	return post
}

const xContainer = `article[data-testid="tweet"]`

func TestExtractXHandle(t *testing.T) {
	handle, err := extractXHandle("https://x.com/openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", handle)

	handle, err = extractXHandle("https://twitter.com/@GoogleAI/with_replies")
	require.NoError(t, err)
	assert.Equal(t, "GoogleAI", handle)

	_, err = extractXHandle("https://www.instagram.com/openai")
	assert.Error(t, err)

	_, err = extractXHandle("https://x.com/")
	assert.Error(t, err)
}

func TestBuildXQuery(t *testing.T) {
	assert.Equal(t, "from:openai", buildXQuery("openai", nil))
	assert.Equal(t, "from:openai", buildXQuery("openai", []string{" ", ""}))
	assert.Equal(t, `(from:openai) ("AI" OR "반도체")`, buildXQuery("openai", []string{"AI", " 반도체 "}))
}

func TestBuildXSearchURL(t *testing.T) {
	searchURL, err := buildXSearchURL("https://x.com/openai", []string{"AI"})
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/search?q=%28from%3Aopenai%29+%28%22AI%22%29&src=typed_query&f=live", searchURL)

	_, err = buildXSearchURL("https://news.example.com/openai", []string{"AI"})
	assert.Error(t, err)
}

func TestXCollectorPrefersSearchPage(t *testing.T) {
	keywords := []string{"AI"}
	searchURL, err := buildXSearchURL("https://x.com/openai", keywords)
	require.NoError(t, err)

	session := newFakeSession()
	search := session.addPage(searchURL)
	search.addBatch(xContainer, 0,
		xPost("/openai/status/1", "AI release thread", recentTimestamp()),
		xPost("/openai/status/2", "more AI news", recentTimestamp()),
	)
	session.addPage("https://x.com/openai")

	collector := NewXCollector(testConfig())
	posts := collector.Collect(session, testSource("OpenAI", "https://x.com/openai"), keywords, 5, nil)

	require.Len(t, posts, 2)
	assert.Equal(t, "https://x.com/openai/status/1", posts[0].PostURL)
	assert.Equal(t, types.PlatformX, posts[0].Platform)
	assert.Equal(t, "OpenAI", posts[0].SourceName)
	require.NotEmpty(t, session.navs)
	assert.Equal(t, searchURL, session.navs[0])
}

func TestXCollectorFallsBackToProfile(t *testing.T) {
	keywords := []string{"AI"}
	searchURL, err := buildXSearchURL("https://x.com/openai", keywords)
	require.NoError(t, err)

	session := newFakeSession()
	session.addPage(searchURL)
	profile := session.addPage("https://x.com/openai")
	profile.addBatch(xContainer, 0, xPost("/openai/status/9", "profile feed post", recentTimestamp()))

	collector := NewXCollector(testConfig())
	posts := collector.Collect(session, testSource("OpenAI", "https://x.com/openai"), keywords, 5, nil)

	require.Len(t, posts, 1)
	assert.Equal(t, "https://x.com/openai/status/9", posts[0].PostURL)
	assert.Equal(t, []string{searchURL, "https://x.com/openai"}, session.navs)
}

func TestXCollectorDedupesAcrossScrolls(t *testing.T) {
	session := newFakeSession()
	profile := session.addPage("https://example.com/not-x")
	profile.addBatch(xContainer, 0, xPost("/a/status/1", "first post", recentTimestamp()))
	// the same post stays on screen after the first scroll
	profile.addBatch(xContainer, 1,
		xPost("/a/status/1", "first post", recentTimestamp()),
		xPost("/a/status/2", "second post", recentTimestamp()),
	)

	collector := NewXCollector(testConfig())
	posts := collector.Collect(session, testSource("A", "https://example.com/not-x"), nil, 10, nil)

	require.Len(t, posts, 2)
	assert.Equal(t, "https://x.com/a/status/1", posts[0].PostURL)
	assert.Equal(t, "https://x.com/a/status/2", posts[1].PostURL)
}

func TestXCollectorHonorsSkipFunc(t *testing.T) {
	session := newFakeSession()
	profile := session.addPage("https://example.com/not-x")
	profile.addBatch(xContainer, 0,
		xPost("/a/status/1", "already cached", recentTimestamp()),
		xPost("/a/status/2", "new post", recentTimestamp()),
	)

	skip := func(url string) bool { return url == "https://x.com/a/status/1" }
	collector := NewXCollector(testConfig())
	posts := collector.Collect(session, testSource("A", "https://example.com/not-x"), nil, 10, skip)

	require.Len(t, posts, 1)
	assert.Equal(t, "https://x.com/a/status/2", posts[0].PostURL)
}

func TestXCollectorStopsAtLimit(t *testing.T) {
	session := newFakeSession()
	profile := session.addPage("https://example.com/not-x")
	for i := 0; i < 8; i++ {
		profile.addBatch(xContainer, 0, xPost(
			fmt.Sprintf("/a/status/%d", i+1), "post body", recentTimestamp()))
	}

	collector := NewXCollector(testConfig())
	posts := collector.Collect(session, testSource("A", "https://example.com/not-x"), nil, 3, nil)

	assert.Len(t, posts, 3)
}

func TestXCollectorKeywordFilterFlag(t *testing.T) {
	build := func() *fakeSession {
		session := newFakeSession()
		page := session.addPage("https://example.com/not-x")
		page.addBatch(xContainer, 0,
			xPost("/a/status/1", "launch day", recentTimestamp()),
			xPost("/a/status/2", "AI launch day", recentTimestamp()),
		)
		return session
	}

	// off by default: the search URL already narrowed, keep everything
	collector := NewXCollector(testConfig())
	posts := collector.Collect(build(), testSource("A", "https://example.com/not-x"), []string{"AI"}, 10, nil)
	assert.Len(t, posts, 2)

	cfg := testConfig()
	cfg.XKeywordFilter = true
	collector = NewXCollector(cfg)
	posts = collector.Collect(build(), testSource("A", "https://example.com/not-x"), []string{"AI"}, 10, nil)
	require.Len(t, posts, 1)
	assert.Equal(t, "https://x.com/a/status/2", posts[0].PostURL)
}

func TestXCollectorOldPostStreakStopsScan(t *testing.T) {
	session := newFakeSession()
	profile := session.addPage("https://example.com/not-x")
	profile.addBatch(xContainer, 0,
		xPost("/a/status/1", "old one", staleTimestamp()),
		xPost("/a/status/2", "old two", staleTimestamp()),
		xPost("/a/status/3", "would be fresh", recentTimestamp()),
	)

	cfg := testConfig()
	cfg.OldPostBreakLimit = 2
	collector := NewXCollector(cfg)
	posts := collector.Collect(session, testSource("A", "https://example.com/not-x"), nil, 10, nil)

	// the scan stops on the second consecutive old post, before the fresh one
	assert.Empty(t, posts)
	assert.Empty(t, session.scrolled)
}

func TestXCollectorFreshPostsBeforeStaleTail(t *testing.T) {
	session := newFakeSession()
	profile := session.addPage("https://example.com/not-x")
	profile.addBatch(xContainer, 0,
		xPost("/a/status/1", "fresh one", recentTimestamp()),
		xPost("/a/status/2", "fresh two", recentTimestamp()),
	)
	for i := 0; i < 9; i++ {
		profile.addBatch(xContainer, 0, xPost(
			fmt.Sprintf("/a/status/stale-%d", i+1), "stale body", staleTimestamp()))
	}

	cfg := testConfig()
	cfg.OldPostBreakLimit = 8
	collector := NewXCollector(cfg)
	posts := collector.Collect(session, testSource("A", "https://example.com/not-x"), nil, 5, nil)

	// both fresh posts land; the stale tail trips the streak before the
	// limit is reached and before any scroll
	require.Len(t, posts, 2)
	assert.Equal(t, "https://x.com/a/status/1", posts[0].PostURL)
	assert.Equal(t, "https://x.com/a/status/2", posts[1].PostURL)
	assert.Empty(t, session.scrolled)
}

func TestXCollectorUnparsableTimeResetsStreak(t *testing.T) {
	session := newFakeSession()
	profile := session.addPage("https://example.com/not-x")
	profile.addBatch(xContainer, 0,
		xPost("/a/status/1", "old one", staleTimestamp()),
		xPost("/a/status/2", "no time", ""),
		xPost("/a/status/3", "old two", staleTimestamp()),
		xPost("/a/status/4", "fresh", recentTimestamp()),
	)

	cfg := testConfig()
	cfg.OldPostBreakLimit = 2
	collector := NewXCollector(cfg)
	posts := collector.Collect(session, testSource("A", "https://example.com/not-x"), nil, 10, nil)

	// the timeless post resets the streak, so the scan reaches the fresh post
	require.Len(t, posts, 1)
	assert.Equal(t, "https://x.com/a/status/4", posts[0].PostURL)
}

func TestXCollectorIncludeUnknownTime(t *testing.T) {
	build := func() *fakeSession {
		session := newFakeSession()
		page := session.addPage("https://example.com/not-x")
		page.addBatch(xContainer, 0, xPost("/a/status/1", "undated post", ""))
		return session
	}

	collector := NewXCollector(testConfig())
	assert.Empty(t, collector.Collect(build(), testSource("A", "https://example.com/not-x"), nil, 10, nil))

	cfg := testConfig()
	cfg.IncludeUnknownTime = true
	collector = NewXCollector(cfg)
	posts := collector.Collect(build(), testSource("A", "https://example.com/not-x"), nil, 10, nil)
	require.Len(t, posts, 1)
	assert.Equal(t, "", posts[0].PostedAt)
}
