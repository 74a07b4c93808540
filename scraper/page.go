package scraper

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/use-agent/threadgrab/browser"
	"github.com/use-agent/threadgrab/intercept"
	"github.com/use-agent/threadgrab/models"
)

// withPage runs fn on a fresh headless page carrying the current session.
//
// Lifecycle:
//
//  1. Timeout guard     – hard deadline on the entire operation
//  2. Session           – EnsureLoggedIn may return LOGIN_REQUIRED
//  3. Acquire page      – borrow a tab from the opener
//  4. DEFER: release    – listeners dropped, tab blanked and returned
//  5. Restore session   – cookies and storage, before any navigation
//  6. Capture start     – interceptor must listen before navigation
//  7. fn                – navigate and extract
//
// The interceptor is created per call so captured URLs never leak between
// fetches.
func (s *Scraper) withPage(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, page browser.Page, ic *intercept.Interceptor) error) error {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	if timeout <= 0 || (s.scraperCfg.MaxTimeout > 0 && timeout > s.scraperCfg.MaxTimeout) {
		timeout = s.scraperCfg.MaxTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// ── 2. Session ───────────────────────────────────────────────────
	sess, err := s.sessions.EnsureLoggedIn(ctx)
	if err != nil {
		return err
	}

	// ── 3. Acquire page ───────────────────────────────────────────────
	page, err := s.opener.Open(ctx, true)
	if err != nil {
		return err
	}
	s.activeFetches.Add(1)

	// ── 4. CRITICAL DEFER: release page and every listener ────────────
	ic := intercept.New(s.scraperCfg.MediaPatterns, s.logger)
	defer func() {
		ic.Stop()
		if err := page.Close(); err != nil {
			s.logger.Warn("cleanup: failed to release page", "error", err)
		}
		s.activeFetches.Add(-1)
	}()

	// ── 5. Restore session ────────────────────────────────────────────
	if err := page.LoadStorageState(ctx, sess.State); err != nil {
		return categorizeError(err, "failed to restore session into page")
	}

	// ── 6. Capture start ──────────────────────────────────────────────
	ic.Start(page)

	// ── 7. Work ───────────────────────────────────────────────────────
	return fn(ctx, page, ic)
}

// navigate loads url under the navigation timeout and waits for a required
// selector. A selector timeout usually means X served a login wall, so the
// cached session is dropped and re-probed on the next fetch.
func (s *Scraper) navigate(ctx context.Context, page browser.Page, url, required string) error {
	navCtx := ctx
	if s.scraperCfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.scraperCfg.NavigationTimeout)
		defer cancel()
	}
	if err := page.Navigate(navCtx, url); err != nil {
		if ctx.Err() != nil {
			return categorizeError(ctx.Err(), "navigation interrupted")
		}
		return models.NewNavigationError("navigation to "+url+" failed", err)
	}

	dismissOverlays(ctx, page)

	if required == "" {
		return nil
	}
	if err := page.WaitForSelector(ctx, required, s.collectorCfg.WaitTimeout); err != nil {
		if errors.Is(err, browser.ErrSelectorTimeout) {
			s.sessions.Invalidate()
		}
		return categorizeError(err, "page content did not render")
	}
	return nil
}

func (s *Scraper) url(pathAndQuery string) string {
	return strings.TrimRight(s.sessionCfg.BaseURL, "/") + "/" + strings.TrimLeft(pathAndQuery, "/")
}

// dismissOverlays removes X's sign-up sheets and bottom bars, which sit on
// top of the timeline and swallow scroll input.
func dismissOverlays(ctx context.Context, page browser.Page) {
	const js = `() => {
		const selectors = [
			'[data-testid="sheetDialog"]',
			'[data-testid="BottomBar"]',
			'[data-testid="mask"]',
			'#credential_picker_container',
		];
		for (const sel of selectors) {
			document.querySelectorAll(sel).forEach(el => el.remove());
		}
		document.documentElement.style.overflow = '';
		document.body.style.overflow = '';
	}`
	_, _ = page.Evaluate(ctx, js)
}

// categorizeError wraps raw errors into typed ScrapeErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewNavigationError(msg, err)
	}
}
