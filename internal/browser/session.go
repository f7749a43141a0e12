package browser

import (
	"context"
	"time"
)

// Session drives one isolated rendered-browser context. Every worker owns
// exactly one session; none of its state is shared. Implementations must
// treat selector absence as an empty value, never an error: only Navigate
// can fail, and collectors handle that as "skip this page".
type Session interface {
	// Navigate loads url. When waitVisible is non-empty it additionally
	// waits for that selector to become visible. The timeout bounds the
	// whole operation.
	Navigate(url, waitVisible string, timeout time.Duration) error

	// Wait blocks the owning worker for d.
	Wait(d time.Duration)

	// Scroll advances the rendered view by deltaY pixels.
	Scroll(deltaY int)

	// Query returns a locator rooted at the document.
	Query(selector string) Locator

	// InterceptRequests installs a network interceptor. Requests for which
	// abort returns true are failed before leaving the browser; everything
	// else continues untouched. Installation failure leaves the session
	// usable without interception.
	InterceptRequests(abort func(RequestInfo) bool) error

	// Close releases the browser context and its process.
	Close()
}

// Locator addresses zero or more elements in the current page. A locator is
// a cheap value; the DOM is consulted only when Count, Attr or Text is
// called, so a stale page simply yields zero counts and empty strings.
type Locator interface {
	// Count reports how many elements the locator currently matches.
	Count() int

	// First narrows to the first match. Equivalent to Nth(0).
	First() Locator

	// Nth narrows to the i-th match (0-based).
	Nth(i int) Locator

	// Query returns a locator for selector scoped under this one.
	Query(selector string) Locator

	// Attr returns the named attribute of the first match, or "".
	Attr(name string) string

	// Text returns the rendered text of the first match, or "".
	Text() string
}

// RequestInfo describes an outgoing request offered to an interceptor.
// ResourceType carries the devtools resource type name (Image, Media, ...).
type RequestInfo struct {
	URL          string
	ResourceType string
}

// Factory creates an isolated session for one worker. The returned session
// must not share navigation state with any other live session.
type Factory func(ctx context.Context) (Session, error)
