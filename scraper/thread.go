package scraper

import (
	"context"
	"time"

	"github.com/use-agent/threadgrab/browser"
	"github.com/use-agent/threadgrab/collector"
	"github.com/use-agent/threadgrab/extract"
	"github.com/use-agent/threadgrab/intercept"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/thread"
)

// FetchOptions tune one thread fetch.
type FetchOptions struct {
	// AuthorOnly keeps only the author's contiguous run. When false every
	// collected post is returned, oldest first.
	AuthorOnly bool

	// AllowPartial returns what was collected when the deadline hits,
	// flagged Partial, instead of an error.
	AllowPartial bool

	// MaxAttempts caps scroll iterations; 0 uses the configured default.
	MaxAttempts int

	// Timeout bounds the whole fetch; 0 or anything above the configured
	// maximum uses the maximum.
	Timeout time.Duration
}

// DefaultFetchOptions returns the options used when the caller has none.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{AuthorOnly: true}
}

// FetchThread collects the thread the post at rawURL belongs to. The thread
// author is the handle in the URL.
func (s *Scraper) FetchThread(ctx context.Context, rawURL string, opts FetchOptions) (*models.ThreadResult, error) {
	target, _, err := extract.ParseStatusURL(rawURL)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err)
	}

	var result *models.ThreadResult
	err = s.withPage(ctx, opts.Timeout, func(ctx context.Context, page browser.Page, ic *intercept.Interceptor) error {
		start := time.Now()
		if err := s.navigate(ctx, page, rawURL, extract.PostArticle); err != nil {
			return err
		}

		c := collector.New(page, s.collectorCfg, append([]collector.Option{
			collector.WithBaseURL(s.sessionCfg.BaseURL),
			collector.WithLogger(s.logger),
		}, s.collectorOpts...)...)

		coll, err := c.Collect(ctx, target, opts.MaxAttempts)
		partial := false
		if err != nil {
			if coll == nil || !opts.AllowPartial || !models.HasCode(err, models.ErrCodeTimeout) {
				return err
			}
			s.logger.Warn("returning partial thread", "url", rawURL, "posts", len(coll.Posts), "error", err)
			partial = true
		}
		s.interactions.Add(1)

		var tweets []models.Post
		if opts.AuthorOnly {
			tweets = thread.Filter(coll.Posts, target)
		} else {
			tweets = thread.SortByTimestamp(coll.Posts)
		}

		result = &models.ThreadResult{
			Tweets:       tweets,
			AuthorHandle: target,
			SourceURL:    rawURL,
			MediaStreams: ic.Snapshot(),
			Partial:      partial,
		}
		for _, p := range tweets {
			if thread.NormalizeHandle(p.AuthorHandle) == thread.NormalizeHandle(target) {
				result.AuthorHandle = p.AuthorHandle
				result.AuthorName = p.AuthorName
				break
			}
		}

		s.logger.Info("thread fetched",
			"url", rawURL,
			"reason", coll.Reason,
			"iterations", coll.Iterations,
			"collected", len(coll.Posts),
			"tweets", len(tweets),
			"media_streams", len(result.MediaStreams),
			"elapsed", time.Since(start),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
