// Package scraper is the entry point of the collection engine: it ties the
// session manager, the browser pages, the collector and the extractors
// together behind one type.
package scraper

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/use-agent/threadgrab/browser"
	"github.com/use-agent/threadgrab/collector"
	"github.com/use-agent/threadgrab/config"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/session"
)

// Scraper runs fetches against X. It is safe for concurrent use; every
// fetch drives its own page.
type Scraper struct {
	opener   browser.Opener
	sessions *session.Manager

	sessionCfg   config.SessionConfig
	collectorCfg config.CollectorConfig
	scraperCfg   config.ScraperConfig

	collectorOpts []collector.Option
	sleep         collector.Sleeper
	logger        *slog.Logger

	activeFetches atomic.Int32
	interactions  atomic.Int64
	startTime     time.Time
}

type Option func(*Scraper)

// WithCollectorOptions passes options to every Collector the scraper builds.
func WithCollectorOptions(opts ...collector.Option) Option {
	return func(s *Scraper) { s.collectorOpts = append(s.collectorOpts, opts...) }
}

// WithSleeper replaces the settle wait used by single-page extractions.
func WithSleeper(sl collector.Sleeper) Option {
	return func(s *Scraper) { s.sleep = sl }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// New returns a Scraper that opens pages through opener and authenticates
// them with sessions.
func New(opener browser.Opener, sessions *session.Manager, cfg *config.Config, opts ...Option) *Scraper {
	s := &Scraper{
		opener:       opener,
		sessions:     sessions,
		sessionCfg:   cfg.Session,
		collectorCfg: cfg.Collector,
		scraperCfg:   cfg.Scraper,
		sleep:        collector.SleepContext,
		logger:       slog.Default(),
		startTime:    time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sessions exposes the session manager for the login endpoints.
func (s *Scraper) Sessions() *session.Manager {
	return s.sessions
}

// poolStats is implemented by openers backed by a page pool.
type poolStats interface {
	Stats() (maxPages, active int)
}

// Stats returns a snapshot of page usage and the interaction count.
func (s *Scraper) Stats() models.PoolStats {
	st := models.PoolStats{
		ActivePages:  int(s.activeFetches.Load()),
		Interactions: s.interactions.Load(),
	}
	if ps, ok := s.opener.(poolStats); ok {
		st.MaxPages, st.ActivePages = ps.Stats()
	}
	return st
}

// Uptime reports how long the scraper has been running.
func (s *Scraper) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Close abandons any pending interactive login.
func (s *Scraper) Close() {
	s.sessions.Cancel()
	slog.Info("scraper shutdown complete")
}
