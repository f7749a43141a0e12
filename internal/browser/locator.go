package browser

import (
	"encoding/json"
	"fmt"
)

// chromeLocator resolves a chain of scoped selectors against the live DOM.
// path is the already-narrowed element chain (selector + match index per
// hop); leaf is the still-unindexed selector at the end, if any. Each DOM
// read rebuilds the chain from the document root, so locators stay valid
// across re-renders as long as the chain still matches.
type chromeLocator struct {
	s    *ChromeSession
	path []pathSegment
	leaf string
}

type pathSegment struct {
	Sel string `json:"sel"`
	Idx int    `json:"idx"`
}

// Count implements Locator
func (l *chromeLocator) Count() int {
	if l.leaf != "" {
		return l.s.evalInt(countScript(l.path, l.leaf))
	}
	return l.s.evalInt(existsScript(l.path))
}

// First implements Locator
func (l *chromeLocator) First() Locator {
	return l.Nth(0)
}

// Nth implements Locator
func (l *chromeLocator) Nth(i int) Locator {
	if l.leaf == "" {
		return l
	}
	return &chromeLocator{
		s:    l.s,
		path: extend(l.path, pathSegment{Sel: l.leaf, Idx: i}),
	}
}

// Query implements Locator. Querying under a multi-match locator implicitly
// narrows to its first match, matching how scans use it.
func (l *chromeLocator) Query(selector string) Locator {
	path := l.path
	if l.leaf != "" {
		path = extend(l.path, pathSegment{Sel: l.leaf, Idx: 0})
	}
	return &chromeLocator{s: l.s, path: path, leaf: selector}
}

// Attr implements Locator
func (l *chromeLocator) Attr(name string) string {
	return l.s.evalString(attrScript(l.resolved(), name))
}

// Text implements Locator
func (l *chromeLocator) Text() string {
	return l.s.evalString(textScript(l.resolved()))
}

// resolved returns the full element chain, folding an outstanding leaf in as
// its first match
func (l *chromeLocator) resolved() []pathSegment {
	if l.leaf == "" {
		return l.path
	}
	return extend(l.path, pathSegment{Sel: l.leaf, Idx: 0})
}

func extend(path []pathSegment, seg pathSegment) []pathSegment {
	out := make([]pathSegment, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

func pathJSON(path []pathSegment) string {
	if len(path) == 0 {
		return "[]"
	}
	data, err := json.Marshal(path)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func strJSON(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(data)
}

// countScript counts leaf matches under the resolved chain, 0 when any hop
// no longer matches
func countScript(path []pathSegment, leaf string) string {
	return fmt.Sprintf(`(function() {
	var node = document;
	var segs = %s;
	for (var i = 0; i < segs.length; i++) {
		var list = node.querySelectorAll(segs[i].sel);
		if (segs[i].idx >= list.length) return 0;
		node = list[segs[i].idx];
	}
	return node.querySelectorAll(%s).length;
})()`, pathJSON(path), strJSON(leaf))
}

// existsScript reports 1 when the resolved chain still matches an element
func existsScript(path []pathSegment) string {
	return fmt.Sprintf(`(function() {
	var node = document;
	var segs = %s;
	for (var i = 0; i < segs.length; i++) {
		var list = node.querySelectorAll(segs[i].sel);
		if (segs[i].idx >= list.length) return 0;
		node = list[segs[i].idx];
	}
	return 1;
})()`, pathJSON(path))
}

// attrScript reads an attribute off the resolved element, "" when absent
func attrScript(path []pathSegment, name string) string {
	return fmt.Sprintf(`(function() {
	var node = document;
	var segs = %s;
	for (var i = 0; i < segs.length; i++) {
		var list = node.querySelectorAll(segs[i].sel);
		if (segs[i].idx >= list.length) return "";
		node = list[segs[i].idx];
	}
	if (typeof node.getAttribute !== "function") return "";
	var v = node.getAttribute(%s);
	return v === null ? "" : v;
})()`, pathJSON(path), strJSON(name))
}

// textScript reads the rendered text of the resolved element, "" when absent
func textScript(path []pathSegment) string {
	return fmt.Sprintf(`(function() {
	var node = document;
	var segs = %s;
	for (var i = 0; i < segs.length; i++) {
		var list = node.querySelectorAll(segs[i].sel);
		if (segs[i].idx >= list.length) return "";
		node = list[segs[i].idx];
	}
	return node.innerText || node.textContent || "";
})()`, pathJSON(path))
}
