package scraper

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sehyun-dev/snsweep/internal/browser"
	"github.com/sehyun-dev/snsweep/internal/types"
)

// fakeElem is one scripted DOM node. Children are keyed by the exact
// selector string a collector queries with.
type fakeElem struct {
	attrs    map[string]string
	text     string
	children map[string][]*fakeElem
}

func (e *fakeElem) attr(name string) string {
	if e.attrs == nil {
		return ""
	}
	return e.attrs[name]
}

// fakePage is one scripted page. Batch k under a selector becomes visible
// after k scrolls, which is how a feed grows while a collector scrolls.
type fakePage struct {
	batches map[string][][]*fakeElem
	scrolls int
}

func (p *fakePage) query(selector string) []*fakeElem {
	var out []*fakeElem
	for k, batch := range p.batches[selector] {
		if k <= p.scrolls {
			out = append(out, batch...)
		}
	}
	return out
}

// addBatch appends elements that become visible after scroll number scrolls.
func (p *fakePage) addBatch(selector string, scrolls int, elems ...*fakeElem) {
	if p.batches == nil {
		p.batches = map[string][][]*fakeElem{}
	}
	for len(p.batches[selector]) <= scrolls {
		p.batches[selector] = append(p.batches[selector], nil)
	}
	p.batches[selector][scrolls] = append(p.batches[selector][scrolls], elems...)
}

// fakeSession is a scripted browser.Session. Navigation switches between
// registered pages; Wait records instead of sleeping.
type fakeSession struct {
	pages   map[string]*fakePage
	current *fakePage

	navs     []string
	scrolled []int
	waits    []time.Duration
	failNav  map[string]int
	closed   bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{pages: map[string]*fakePage{}, failNav: map[string]int{}}
}

func (s *fakeSession) addPage(url string) *fakePage {
	p := &fakePage{}
	s.pages[url] = p
	return p
}

func (s *fakeSession) Navigate(url, waitVisible string, timeout time.Duration) error {
	s.navs = append(s.navs, url)
	if s.failNav[url] != 0 {
		s.failNav[url]--
		return errors.New("net::ERR_CONNECTION_RESET")
	}
	page, ok := s.pages[url]
	if !ok {
		return fmt.Errorf("no page for %s", url)
	}
	s.current = page
	return nil
}

func (s *fakeSession) Wait(d time.Duration) { s.waits = append(s.waits, d) }

func (s *fakeSession) Scroll(deltaY int) {
	s.scrolled = append(s.scrolled, deltaY)
	if s.current != nil {
		s.current.scrolls++
	}
}

func (s *fakeSession) Query(selector string) browser.Locator {
	if s.current == nil {
		return fakeLocator{}
	}
	return fakeLocator{elems: s.current.query(selector)}
}

func (s *fakeSession) InterceptRequests(abort func(browser.RequestInfo) bool) error { return nil }

func (s *fakeSession) Close() { s.closed = true }

type fakeLocator struct {
	elems []*fakeElem
}

func (l fakeLocator) Count() int { return len(l.elems) }

func (l fakeLocator) First() browser.Locator { return l.Nth(0) }

func (l fakeLocator) Nth(i int) browser.Locator {
	if i < 0 || i >= len(l.elems) {
		return fakeLocator{}
	}
	return fakeLocator{elems: l.elems[i : i+1]}
}

func (l fakeLocator) Query(selector string) browser.Locator {
	if len(l.elems) == 0 {
		return fakeLocator{}
	}
	return fakeLocator{elems: l.elems[0].children[selector]}
}

func (l fakeLocator) Attr(name string) string {
	if len(l.elems) == 0 {
		return ""
	}
	return l.elems[0].attr(name)
}

func (l fakeLocator) Text() string {
	if len(l.elems) == 0 {
		return ""
	}
	return l.elems[0].text
}

func testConfig() Config {
	return Config{
		ScrollLimit:                  3,
		ScrollWait:                   100 * time.Millisecond,
		NoGrowthBreakLimit:           2,
		OldPostBreakLimit:            8,
		NavTimeout:                   time.Second,
		NavRetries:                   0,
		NavRetryBase:                 100 * time.Millisecond,
		LookbackHours:                24,
		InstagramCandidateMultiplier: 4,
		SelectorVersion:              "v1",
		Workers:                      1,
	}
}

func testSource(name, url string) types.Source {
	return types.Source{Category: "기업", Group: "Frontier", Name: name, URL: url}
}

func recentTimestamp() string {
	return time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
}

func staleTimestamp() string {
	return time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
}

func TestKeywordMatch(t *testing.T) {
	assert.True(t, keywordMatch("anything", nil))
	assert.True(t, keywordMatch("anything", []string{"  ", ""}))
	assert.True(t, keywordMatch("New AI model shipped", []string{"ai"}))
	assert.True(t, keywordMatch("차세대 반도체 공정 발표", []string{"반도체"}))
	assert.False(t, keywordMatch("nothing relevant", []string{"AI", "반도체"}))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a b c", normalizeText("  a\n\tb   c  "))
	assert.Equal(t, "", normalizeText(" \n\t "))

	long := strings.Repeat("가", maxTextRunes+50)
	capped := normalizeText(long)
	assert.Equal(t, maxTextRunes, len([]rune(capped)))
}

func TestShortText(t *testing.T) {
	assert.Equal(t, "short", shortText("short", 10))
	assert.Equal(t, "exactly-10", shortText("exactly-10", 10))
	assert.Equal(t, "long te...", shortText("long text that overflows", 10))
}

func TestAbsoluteURL(t *testing.T) {
	assert.Equal(t, "", absoluteURL("https://www.facebook.com", ""))
	assert.Equal(t, "https://elsewhere.test/x", absoluteURL("https://www.facebook.com", "https://elsewhere.test/x"))
	assert.Equal(t, "https://www.facebook.com/page/posts/1", absoluteURL("https://www.facebook.com/", "/page/posts/1"))
	assert.Equal(t, "https://www.facebook.com/page", absoluteURL("https://www.facebook.com", "page"))
}

func TestBackoffStaysInJitterBand(t *testing.T) {
	base := 800 * time.Millisecond
	for attempt := 0; attempt <= 3; attempt++ {
		scale := float64(int(1) << attempt)
		for i := 0; i < 50; i++ {
			d := backoff(attempt, base)
			assert.GreaterOrEqual(t, d, time.Duration(0.8*scale*float64(base)))
			assert.LessOrEqual(t, d, time.Duration(1.2*scale*float64(base)))
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, ok := parseTimestamp("2026-08-24T10:00:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), ts)

	ts, ok = parseTimestamp("2026-08-24T19:00:00+09:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), ts)

	// naive timestamps are read as UTC
	ts, ok = parseTimestamp("2026-08-24 10:00:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), ts)

	_, ok = parseTimestamp("")
	assert.False(t, ok)
	_, ok = parseTimestamp("   ")
	assert.False(t, ok)
	_, ok = parseTimestamp("yesterday-ish")
	assert.False(t, ok)
}

func TestLookbackWindow(t *testing.T) {
	open := newLookbackWindow(0, false)
	assert.True(t, open.contains(staleTimestamp()))
	assert.False(t, open.olderThanCutoff(staleTimestamp()))

	window := newLookbackWindow(24, false)
	assert.True(t, window.contains(recentTimestamp()))
	assert.False(t, window.contains(staleTimestamp()))
	assert.True(t, window.olderThanCutoff(staleTimestamp()))
	assert.False(t, window.olderThanCutoff(recentTimestamp()))

	// unparsable timestamps follow includeUnknown and never count as old
	assert.False(t, window.contains("no-date-here"))
	assert.False(t, window.olderThanCutoff("no-date-here"))

	inclusive := newLookbackWindow(24, true)
	assert.True(t, inclusive.contains(""))
	assert.False(t, inclusive.olderThanCutoff(""))
}

func TestConfigWithDefaultsClamps(t *testing.T) {
	cfg := Config{
		ScrollLimit:                  0,
		ScrollWait:                   time.Millisecond,
		NoGrowthBreakLimit:           -1,
		OldPostBreakLimit:            -5,
		NavTimeout:                   time.Millisecond,
		NavRetries:                   -2,
		NavRetryBase:                 time.Millisecond,
		LookbackHours:                -3,
		InstagramCandidateMultiplier: 0,
		Workers:                      0,
	}.withDefaults()

	assert.Equal(t, 1, cfg.ScrollLimit)
	assert.Equal(t, 100*time.Millisecond, cfg.ScrollWait)
	assert.Equal(t, 0, cfg.NoGrowthBreakLimit)
	assert.Equal(t, 0, cfg.OldPostBreakLimit)
	assert.Equal(t, time.Second, cfg.NavTimeout)
	assert.Equal(t, 0, cfg.NavRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.NavRetryBase)
	assert.Equal(t, 0, cfg.LookbackHours)
	assert.Equal(t, 1, cfg.InstagramCandidateMultiplier)
	assert.Equal(t, "v1", cfg.SelectorVersion)
	assert.Equal(t, 1, cfg.Workers)
}

func TestOpenPageRetriesThenSucceeds(t *testing.T) {
	session := newFakeSession()
	session.addPage("https://x.com/openai")
	session.failNav["https://x.com/openai"] = 2

	cfg := testConfig()
	cfg.NavRetries = 2
	log := logrus.WithField("test", t.Name())

	ok := openPage(session, log, cfg, "OpenAI", "https://x.com/openai")
	assert.True(t, ok)
	assert.Len(t, session.navs, 3)
}

func TestOpenPageGivesUpAfterRetries(t *testing.T) {
	session := newFakeSession()
	session.addPage("https://x.com/openai")
	session.failNav["https://x.com/openai"] = 10

	cfg := testConfig()
	cfg.NavRetries = 2
	log := logrus.WithField("test", t.Name())

	ok := openPage(session, log, cfg, "OpenAI", "https://x.com/openai")
	assert.False(t, ok)
	assert.Len(t, session.navs, 3)
}

func TestResolveSelectorsFallsBack(t *testing.T) {
	v1 := resolveSelectors(xSelectorTable, "v1")
	assert.Equal(t, v1, resolveSelectors(xSelectorTable, "v99"))
	assert.Equal(t, `article[data-testid="tweet"]`, v1.Container)

	table := map[string]feedSelectors{
		"v2": {Container: "second"},
		"v3": {Container: "third"},
	}
	assert.Equal(t, "third", resolveSelectors(table, "v9").Container)
}
