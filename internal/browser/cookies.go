package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/network"
)

// StoredCookies is the persisted cookie envelope. Operators export it from a
// logged-in browser profile; platforms that render anonymously don't need one.
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// LoadCookieFile reads a cookie envelope from disk
func LoadCookieFile(path string) (*StoredCookies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse cookie file: %w", err)
	}
	if len(stored.Cookies) == 0 {
		return nil, fmt.Errorf("cookie file holds no cookies")
	}

	return &stored, nil
}

// Expired reports whether the envelope has passed its expiry. Envelopes
// without an expiry never expire here; individual cookie expiry is the
// browser's problem.
func (sc *StoredCookies) Expired() bool {
	if sc.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(sc.ExpiresAt)
}
