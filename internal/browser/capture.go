package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

const (
	loginPollInterval = 2 * time.Second
	loginTimeout      = 5 * time.Minute
)

// LoginSpec describes how to tell that an interactive login finished.
type LoginSpec struct {
	// LoginURL is where the capture browser opens.
	LoginURL string
	// DonePrefixes are URL prefixes of the logged-in landing page. Empty
	// means any page counts.
	DonePrefixes []string
	// SentinelCookies must all exist with values once the session is real.
	// Their earliest expiry becomes the envelope expiry.
	SentinelCookies []string
}

// CaptureCookies opens a visible browser at spec.LoginURL, waits for the
// user to log in and writes the full cookie jar to path.
func CaptureCookies(ctx context.Context, spec LoginSpec, path string) error {
	log := logrus.WithField("component", "browser")

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, Options(false)...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(spec.LoginURL)); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	log.Infof("waiting for login at %s (timeout %s)", spec.LoginURL, loginTimeout)
	cookies, err := waitForLogin(browserCtx, spec)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := WriteCookieFile(path, cookies, spec.SentinelCookies); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	log.Infof("captured %d cookies to %s", len(cookies), path)
	return nil
}

// waitForLogin polls the page until it lands on a done prefix with every
// sentinel cookie set.
func waitForLogin(ctx context.Context, spec LoginSpec) ([]*network.Cookie, error) {
	timeout := time.After(loginTimeout)
	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return nil, fmt.Errorf("login timeout exceeded")
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if !landedOn(url, spec.DonePrefixes) {
				continue
			}

			cookies, err := dumpCookies(ctx)
			if err != nil {
				continue
			}
			if hasSentinels(cookies, spec.SentinelCookies) {
				return cookies, nil
			}
		}
	}
}

// WriteCookieFile persists a captured cookie jar. The envelope expiry is
// the earliest expiry among the named sentinel cookies; session cookies
// without one are skipped, and no sentinel expiry means no envelope
// expiry.
func WriteCookieFile(path string, cookies []*network.Cookie, sentinels []string) error {
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies to save")
	}

	var earliest time.Time
	for _, c := range cookies {
		if !isSentinel(c.Name, sentinels) || c.Expires <= 0 {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0)
		if earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}

	stored := StoredCookies{
		Cookies:    cookies,
		CapturedAt: time.Now(),
		ExpiresAt:  earliest,
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0600)
}

func landedOn(url string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

func hasSentinels(cookies []*network.Cookie, names []string) bool {
	for _, name := range names {
		found := false
		for _, c := range cookies {
			if c.Name == name && c.Value != "" {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func isSentinel(name string, sentinels []string) bool {
	for _, s := range sentinels {
		if s == name {
			return true
		}
	}
	return false
}

func dumpCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	return cookies, err
}
