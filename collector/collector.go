// Package collector scrolls a rendered conversation and gathers every post it
// reveals until the content is exhausted, the thread's author boundary has
// been seen, or the attempt budget runs out.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/use-agent/threadgrab/browser"
	"github.com/use-agent/threadgrab/config"
	"github.com/use-agent/threadgrab/extract"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/thread"
)

// DefaultMaxAttempts bounds a collection when neither the caller nor the
// config set a limit.
const DefaultMaxAttempts = 50

// Reason says why a collection stopped.
type Reason string

const (
	ReasonIdle     Reason = "idle"
	ReasonBoundary Reason = "boundary"
	ReasonAttempts Reason = "attempts"
	ReasonCanceled Reason = "canceled"
)

// Collection is the raw output of one Collect call: every distinct post seen,
// in first-seen order, neither sorted nor filtered.
type Collection struct {
	Posts      []models.Post
	Reason     Reason
	Iterations int
}

// Rand is the random source for scroll distances and delays.
// *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Collector drives one page. It is not safe for concurrent use.
type Collector struct {
	page    browser.Page
	cfg     config.CollectorConfig
	baseURL string
	rng     Rand
	sleep   Sleeper
	logger  *slog.Logger
}

type Option func(*Collector)

// WithRand replaces the random source.
func WithRand(r Rand) Option { return func(c *Collector) { c.rng = r } }

// WithSleeper replaces the inter-iteration wait.
func WithSleeper(s Sleeper) Option { return func(c *Collector) { c.sleep = s } }

func WithLogger(l *slog.Logger) Option { return func(c *Collector) { c.logger = l } }

// WithBaseURL sets the origin relative permalinks resolve against.
func WithBaseURL(u string) Option { return func(c *Collector) { c.baseURL = u } }

// New returns a Collector for page. Without WithRand the RNG is seeded from
// cfg.Seed, or from the clock when the seed is 0.
func New(page browser.Page, cfg config.CollectorConfig, opts ...Option) *Collector {
	c := &Collector{
		page:    page,
		cfg:     cfg,
		baseURL: "https://x.com",
		sleep:   SleepContext,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		c.rng = rand.New(rand.NewSource(seed))
	}
	return c
}

// Collect runs the scroll loop against the page, which must already show the
// conversation. maxAttempts <= 0 uses the configured default.
//
// Reaching the end of content is not an error. A page that becomes
// unreachable aborts with a NAVIGATION_FAILED error. If ctx ends, the posts
// gathered so far are returned with ReasonCanceled alongside a
// SCRAPE_TIMEOUT error.
func (c *Collector) Collect(ctx context.Context, target string, maxAttempts int) (*Collection, error) {
	if maxAttempts <= 0 {
		maxAttempts = c.cfg.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	idleThreshold := c.cfg.IdleThreshold
	if idleThreshold <= 0 {
		idleThreshold = 5
	}

	seen := make(map[string]models.Post)
	var order []string
	idle := 0
	log := c.logger.With("target", target)

	current := func() []models.Post {
		posts := make([]models.Post, len(order))
		for i, id := range order {
			posts[i] = seen[id]
		}
		return posts
	}
	result := func(reason Reason, iterations int) *Collection {
		return &Collection{Posts: current(), Reason: reason, Iterations: iterations}
	}

	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			return result(ReasonCanceled, iter-1), timeoutError(err)
		}

		if err := c.expand(ctx); err != nil {
			return c.abort(ctx, result(ReasonCanceled, iter-1), err)
		}
		if err := c.advance(ctx); err != nil {
			return c.abort(ctx, result(ReasonCanceled, iter-1), err)
		}
		batch, err := c.extract(ctx)
		if err != nil {
			return c.abort(ctx, result(ReasonCanceled, iter-1), err)
		}

		added := 0
		for _, p := range batch {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = p
			order = append(order, p.ID)
			added++
		}

		if added == 0 {
			idle++
		} else {
			idle = 0
		}
		log.Debug("collector iteration",
			"iteration", iter,
			"extracted", len(batch),
			"new", added,
			"total", len(order),
			"idle", idle,
		)

		if idle >= idleThreshold {
			log.Info("collection finished", "reason", ReasonIdle, "iterations", iter, "posts", len(order))
			return result(ReasonIdle, iter), nil
		}
		if thread.BoundaryReached(thread.SortByTimestamp(current()), target) {
			log.Info("collection finished", "reason", ReasonBoundary, "iterations", iter, "posts", len(order))
			return result(ReasonBoundary, iter), nil
		}
		if iter >= maxAttempts {
			log.Info("collection finished", "reason", ReasonAttempts, "iterations", iter, "posts", len(order))
			return result(ReasonAttempts, iter), nil
		}
	}
}

// abort converts a fatal iteration error. Context errors keep the partial
// collection; an unreachable page discards it.
func (c *Collector) abort(ctx context.Context, partial *Collection, err error) (*Collection, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return partial, timeoutError(ctxErr)
	}
	return nil, models.NewNavigationError("page became unreachable during collection", err)
}

func timeoutError(err error) error {
	return models.NewScrapeError(models.ErrCodeTimeout, "collection interrupted", err)
}

// fatal reports whether err must stop the loop.
func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, browser.ErrPageUnreachable) || ctx.Err() != nil
}

// expand clicks every reveal affordance on the page. Individual click
// failures are skipped.
func (c *Collector) expand(ctx context.Context) error {
	for _, sel := range extract.ExpandSelectors {
		nodes, err := c.page.QueryAll(ctx, sel)
		if err != nil {
			if fatal(ctx, err) {
				return err
			}
			c.logger.Debug("expand query failed", "selector", sel, "error", err)
			continue
		}
		for _, n := range nodes {
			if err := n.Click(ctx); err != nil {
				if fatal(ctx, err) {
					return err
				}
				c.logger.Debug("expand click skipped", "selector", sel, "error", err)
			}
		}
	}

	buttons, err := c.page.QueryAll(ctx, extract.ExpandButton)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		c.logger.Debug("expand query failed", "selector", extract.ExpandButton, "error", err)
		return nil
	}
	for _, n := range buttons {
		text, err := n.Text(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return err
			}
			continue
		}
		if !slices.Contains(extract.ExpandLabels, strings.TrimSpace(text)) {
			continue
		}
		if err := n.Click(ctx); err != nil {
			if fatal(ctx, err) {
				return err
			}
			c.logger.Debug("expand click skipped", "label", text, "error", err)
		}
	}
	return nil
}

// advance scrolls a random distance and waits a random delay.
func (c *Collector) advance(ctx context.Context) error {
	dy := between(c.rng, float64(c.cfg.MinScroll), float64(c.cfg.MaxScroll))
	if err := c.page.ScrollBy(ctx, 0, dy); err != nil {
		if fatal(ctx, err) {
			return err
		}
		c.logger.Debug("scroll failed", "error", err)
	}

	delay := time.Duration(between(c.rng, float64(c.cfg.MinDelay), float64(c.cfg.MaxDelay)))
	return c.sleep(ctx, delay)
}

// extract parses every rendered post element, skipping the ones that do not
// yield a valid post.
func (c *Collector) extract(ctx context.Context) ([]models.Post, error) {
	nodes, err := c.page.QueryAll(ctx, extract.PostArticle)
	if err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		c.logger.Warn("post query failed", "error", err)
		return nil, nil
	}

	posts := make([]models.Post, 0, len(nodes))
	for i, n := range nodes {
		html, err := n.HTML(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			c.logger.Debug("post element skipped", "index", i, "error", err)
			continue
		}
		p, err := extract.ParsePost(html, c.baseURL)
		if err != nil {
			c.logger.Debug("post element skipped", "index", i, "error", err)
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func between(r Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}
