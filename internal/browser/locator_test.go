package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocatorChaining(t *testing.T) {
	root := &chromeLocator{leaf: `article[data-testid="tweet"]`}

	third, ok := root.Nth(2).(*chromeLocator)
	require.True(t, ok)
	assert.Equal(t, "", third.leaf)
	require.Len(t, third.path, 1)
	assert.Equal(t, `article[data-testid="tweet"]`, third.path[0].Sel)
	assert.Equal(t, 2, third.path[0].Idx)

	link, ok := third.Query(`a[href*="/status/"]`).(*chromeLocator)
	require.True(t, ok)
	assert.Equal(t, `a[href*="/status/"]`, link.leaf)
	assert.Len(t, link.path, 1)

	first, ok := link.First().(*chromeLocator)
	require.True(t, ok)
	assert.Equal(t, "", first.leaf)
	require.Len(t, first.path, 2)
	assert.Equal(t, 0, first.path[1].Idx)
}

func TestNthOnResolvedLocatorIsIdentity(t *testing.T) {
	resolved := &chromeLocator{path: []pathSegment{{Sel: "article", Idx: 1}}}
	got, ok := resolved.Nth(0).(*chromeLocator)
	require.True(t, ok)
	assert.True(t, got == resolved)
}

func TestQueryUnderMultiMatchNarrowsToFirst(t *testing.T) {
	multi := &chromeLocator{leaf: "article"}
	nested, ok := multi.Query("time").(*chromeLocator)
	require.True(t, ok)
	require.Len(t, nested.path, 1)
	assert.Equal(t, "article", nested.path[0].Sel)
	assert.Equal(t, 0, nested.path[0].Idx)
	assert.Equal(t, "time", nested.leaf)
}

func TestExtendDoesNotAliasBackingArray(t *testing.T) {
	base := make([]pathSegment, 1, 4)
	base[0] = pathSegment{Sel: "article", Idx: 0}

	a := extend(base, pathSegment{Sel: "a", Idx: 1})
	b := extend(base, pathSegment{Sel: "time", Idx: 2})

	assert.Equal(t, "a", a[1].Sel)
	assert.Equal(t, "time", b[1].Sel)
}

func TestResolvedFoldsLeaf(t *testing.T) {
	l := &chromeLocator{
		path: []pathSegment{{Sel: "article", Idx: 3}},
		leaf: "time",
	}
	resolved := l.resolved()
	require.Len(t, resolved, 2)
	assert.Equal(t, pathSegment{Sel: "time", Idx: 0}, resolved[1])
	// The original locator keeps its shape
	assert.Equal(t, "time", l.leaf)
	assert.Len(t, l.path, 1)
}

func TestScriptsEscapeSelectors(t *testing.T) {
	path := []pathSegment{{Sel: `meta[property="og:description"]`, Idx: 0}}

	js := attrScript(path, "content")
	assert.Contains(t, js, `meta[property=\"og:description\"]`)
	assert.Contains(t, js, `"content"`)
	assert.Contains(t, js, "getAttribute")

	count := countScript(nil, `a[href*="/p/"]`)
	assert.Contains(t, count, `a[href*=\"/p/\"]`)
	assert.Contains(t, count, "querySelectorAll")
}
