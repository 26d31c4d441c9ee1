// Package portal drives the public-record web portals (appraisal district,
// county clerk, tax collector) through a headless Chrome session.
package portal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/probate-link/internal/config"
	"github.com/sells-group/probate-link/internal/resilience"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Session is one browser tab shared by the calls of a single worker. It is
// not safe for concurrent use.
type Session struct {
	name    string
	browser context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
	breaker *resilience.Breaker
	timeout time.Duration
	shotDir string
}

// NewSession starts a browser for the named portal. Calls are throttled by
// cfg.RequestsPerSecond and guarded by breaker.
func NewSession(ctx context.Context, name string, cfg config.PortalConfig, breaker *resilience.Breaker) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing Chrome fails here, not mid-run.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, eris.Wrapf(err, "portal: start browser for %s", name)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &Session{
		name:    name,
		browser: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
		timeout: timeout,
		shotDir: cfg.ScreenshotDir,
	}, nil
}

// Name returns the portal name the session was opened for.
func (s *Session) Name() string { return s.name }

// Close shuts down the browser.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Run executes actions in the session's tab after waiting for the rate
// limiter. Browser failures are returned as transient errors; ctx
// cancellation is returned as is.
func (s *Session) Run(ctx context.Context, op string, actions ...chromedp.Action) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "portal: %s: rate limit wait", op)
	}

	call := func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(s.browser, s.timeout)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		err := chromedp.Run(tctx, actions...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return eris.Wrapf(ctx.Err(), "portal: %s", op)
		}
		return resilience.NewTransientError(eris.Wrapf(err, "portal: %s: %s", s.name, op), 0)
	}

	if s.breaker == nil {
		return call(ctx)
	}
	return s.breaker.Execute(ctx, call)
}

// Screenshot saves the current tab to the screenshot directory, if one is
// configured. Failures are logged and otherwise ignored.
func (s *Session) Screenshot(ctx context.Context, label string) {
	if s.shotDir == "" {
		return
	}
	var buf []byte
	tctx, cancel := context.WithTimeout(s.browser, 10*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		zap.L().Debug("portal: screenshot failed", zap.String("portal", s.name), zap.Error(err))
		return
	}
	name := s.name + "_" + sanitizeLabel(label) + "_" + time.Now().Format("150405") + ".png"
	path := filepath.Join(s.shotDir, name)
	if err := os.MkdirAll(s.shotDir, 0o750); err != nil {
		zap.L().Debug("portal: screenshot dir", zap.String("dir", s.shotDir), zap.Error(err))
		return
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		zap.L().Debug("portal: write screenshot", zap.String("path", path), zap.Error(err))
		return
	}
	zap.L().Info("portal: saved screenshot", zap.String("path", path))
}

func sanitizeLabel(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
