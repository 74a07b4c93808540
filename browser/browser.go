package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/threadgrab/config"
	"github.com/use-agent/threadgrab/models"
)

// Browser manages the shared headless browser and its page pool.
// It is safe for concurrent use; each Page it hands out is not.
type Browser struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	cfg         config.BrowserConfig
	activePages atomic.Int32
}

var _ Opener = (*Browser)(nil)

// newLauncher builds a Chromium launcher with the anti-automation flags.
func newLauncher(cfg config.BrowserConfig, headless bool) *launcher.Launcher {
	l := launcher.New().
		Headless(headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	return l
}

// Launch starts the shared browser and initialises the reusable page pool.
func Launch(cfg config.BrowserConfig) (*Browser, error) {
	controlURL, err := newLauncher(cfg, cfg.Headless).Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", cfg.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(cfg.MaxPages)
	slog.Info("page pool created", "maxPages", cfg.MaxPages)

	return &Browser{
		browser:  browser,
		pagePool: pool,
		cfg:      cfg,
	}, nil
}

// Open returns a pooled page when headless is true, otherwise a page in a
// separate visible browser that is torn down when the page is closed.
func (b *Browser) Open(ctx context.Context, headless bool) (Page, error) {
	if headless {
		return b.Acquire(ctx)
	}
	return b.openVisible(ctx)
}

// Acquire borrows a tab from the pool. Close on the returned page blanks the
// tab and returns it. When every tab is checked out Acquire waits for one
// until ctx is done. Pooled tabs share one cookie jar, so every headless
// page sees the same X session.
func (b *Browser) Acquire(ctx context.Context) (Page, error) {
	page, err := getPage(ctx, b.pagePool, func() (*rod.Page, error) {
		return b.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			return nil, models.NewScrapeError(
				models.ErrCodeTimeout,
				"timed out waiting for a free page",
				err,
			)
		}
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			err,
		)
	}
	b.activePages.Add(1)

	return b.wrap(ctx, page, func(p *rod.Page) {
		if err := p.Navigate("about:blank"); err != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", err)
		}
		b.pagePool.Put(p)
		b.activePages.Add(-1)
	}), nil
}

// getPage takes a slot from pool, creating a tab when the slot is empty.
// It gives up once ctx is done. A failed create hands the slot back so the
// pool keeps its capacity.
func getPage(ctx context.Context, pool rod.Pool[rod.Page], create func() (*rod.Page, error)) (*rod.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case page := <-pool:
		if page != nil {
			return page, nil
		}
		page, err := create()
		if err != nil {
			pool.Put(nil)
			return nil, err
		}
		return page, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// openVisible launches a dedicated headful browser for interactive login.
func (b *Browser) openVisible(ctx context.Context) (Page, error) {
	l := newLauncher(b.cfg, false)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch visible browser",
			err,
		)
	}

	visible := rod.New().ControlURL(controlURL)
	if err := visible.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to visible browser",
			err,
		)
	}

	page, err := visible.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = visible.Close()
		l.Kill()
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to open visible page",
			err,
		)
	}
	slog.Info("visible browser opened for interactive login", "controlURL", controlURL)

	// The visible browser only needs to block ads; images and fonts are
	// left alone so the user sees a normal page.
	cfg := b.cfg
	cfg.BlockedResourceTypes = nil
	return wrapPage(ctx, page, cfg, func(p *rod.Page) {
		_ = p.Close()
		if err := visible.Close(); err != nil {
			slog.Warn("cleanup: failed to close visible browser", "error", err)
		}
		l.Kill()
		l.Cleanup()
	}), nil
}

func (b *Browser) wrap(ctx context.Context, page *rod.Page, release func(*rod.Page)) *RodPage {
	return wrapPage(ctx, page, b.cfg, release)
}

// wrapPage prepares a tab for scraping. Stealth, user agent and the hijack
// router must be installed before the first navigation to take effect.
func wrapPage(ctx context.Context, page *rod.Page, cfg config.BrowserConfig, release func(*rod.Page)) *RodPage {
	rp := &RodPage{page: page, obs: &listeners{}, release: release}
	p := page.Context(ctx)

	if err := rp.addScript(ctx, stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}

	if cfg.UserAgent != "" {
		_ = p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		})
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		_ = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.ViewportWidth,
			Height:            cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		})
	}

	rp.router = setupHijack(page, cfg.BlockedResourceTypes, cfg.BlockAds, rp.obs)
	return rp
}

// Stats reports pool capacity and current use.
func (b *Browser) Stats() (maxPages, active int) {
	return b.cfg.MaxPages, int(b.activePages.Load())
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down: draining page pool")
	b.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("browser shutting down: closing browser")
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("browser shutdown complete")
}
