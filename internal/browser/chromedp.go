package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// evalTimeout bounds every DOM evaluation so a wedged renderer cannot hang a
// worker between navigations
const evalTimeout = 10 * time.Second

// Launcher builds isolated chromedp sessions. One launcher is shared across
// workers; each NewSession call starts its own browser process.
type Launcher struct {
	headless bool
	cookies  []*network.Cookie
	log      *logrus.Entry
}

// NewLauncher prepares a launcher. When cookieFile is non-empty its cookies
// are injected into every new session; a missing, unreadable or expired file
// is logged and skipped.
func NewLauncher(headless bool, cookieFile string) *Launcher {
	l := &Launcher{
		headless: headless,
		log:      logrus.WithField("component", "browser"),
	}

	if cookieFile == "" {
		return l
	}

	stored, err := LoadCookieFile(cookieFile)
	switch {
	case err != nil:
		l.log.Warnf("cookie file %s not usable: %v", cookieFile, err)
	case stored.Expired():
		l.log.Warnf("cookie file %s expired at %s, ignoring", cookieFile, stored.ExpiresAt.Format(time.RFC3339))
	default:
		l.cookies = stored.Cookies
		l.log.Infof("loaded %d cookies from %s", len(stored.Cookies), cookieFile)
	}

	return l
}

// NewSession starts a fresh browser process and returns a session bound to
// it. The session lives until Close or until ctx is cancelled.
func (l *Launcher) NewSession(ctx context.Context) (*ChromeSession, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, Options(l.headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// Run with no actions forces the browser to start now, so a broken
	// Chrome install fails session creation instead of the first scan.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	s := &ChromeSession{
		ctx:    browserCtx,
		cancel: cancel,
		log:    l.log,
	}

	if len(l.cookies) > 0 {
		if err := s.setCookies(l.cookies); err != nil {
			l.log.Warnf("cookie injection failed: %v", err)
		}
	}

	return s, nil
}

// Factory adapts the launcher to the Session factory shape workers consume
func (l *Launcher) Factory() Factory {
	return func(ctx context.Context) (Session, error) {
		return l.NewSession(ctx)
	}
}

// ChromeSession is a Session backed by one dedicated Chrome process
type ChromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry
}

// Navigate implements Session
func (s *ChromeSession) Navigate(url, waitVisible string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitVisible != "" {
		actions = append(actions, chromedp.WaitVisible(waitVisible, chromedp.ByQuery))
	}

	if err := chromedp.Run(navCtx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Wait implements Session
func (s *ChromeSession) Wait(d time.Duration) {
	select {
	case <-time.After(d):
	case <-s.ctx.Done():
	}
}

// Scroll implements Session
func (s *ChromeSession) Scroll(deltaY int) {
	ctx, cancel := context.WithTimeout(s.ctx, evalTimeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", deltaY), nil)); err != nil {
		s.log.Debugf("scroll failed: %v", err)
	}
}

// Query implements Session
func (s *ChromeSession) Query(selector string) Locator {
	return &chromeLocator{s: s, leaf: selector}
}

// InterceptRequests implements Session using the devtools fetch domain.
// Decisions run off the event loop goroutine; a request the handler cannot
// answer is continued by the browser's own pause timeout.
func (s *ChromeSession) InterceptRequests(abort func(RequestInfo) bool) error {
	if err := chromedp.Run(s.ctx, fetch.Enable()); err != nil {
		return fmt.Errorf("enable request interception: %w", err)
	}

	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		event, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}

		go func() {
			c := chromedp.FromContext(s.ctx)
			ctx := cdp.WithExecutor(s.ctx, c.Target)

			info := RequestInfo{URL: event.Request.URL, ResourceType: string(event.ResourceType)}
			if abort(info) {
				if err := fetch.FailRequest(event.RequestID, network.ErrorReasonBlockedByClient).Do(ctx); err != nil {
					s.log.Debugf("abort request: %v", err)
				}
				return
			}
			if err := fetch.ContinueRequest(event.RequestID).Do(ctx); err != nil {
				s.log.Debugf("continue request: %v", err)
			}
		}()
	})

	return nil
}

// Close implements Session
func (s *ChromeSession) Close() {
	s.cancel()
}

// setCookies injects cookies into the browser before any navigation
func (s *ChromeSession) setCookies(cookies []*network.Cookie) error {
	return chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithSameSite(c.SameSite).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// evalString runs js and returns its string result, or "" on any failure
func (s *ChromeSession) evalString(js string) string {
	ctx, cancel := context.WithTimeout(s.ctx, evalTimeout)
	defer cancel()

	var out string
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &out)); err != nil {
		s.log.Debugf("evaluate failed: %v", err)
		return ""
	}
	return out
}

// evalInt runs js and returns its integer result, or 0 on any failure
func (s *ChromeSession) evalInt(js string) int {
	ctx, cancel := context.WithTimeout(s.ctx, evalTimeout)
	defer cancel()

	var out int
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &out)); err != nil {
		s.log.Debugf("evaluate failed: %v", err)
		return 0
	}
	return out
}
