package scraper

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/threadgrab/browser"
	"github.com/use-agent/threadgrab/extract"
	"github.com/use-agent/threadgrab/intercept"
	"github.com/use-agent/threadgrab/models"
)

const (
	trendingPath        = "/explore/tabs/trending"
	defaultTrendLimit   = 10
	defaultSearchLimit  = 5
	searchOverfetchRate = 2
)

// TrendingTopics returns up to limit entries of the trending list.
func (s *Scraper) TrendingTopics(ctx context.Context, limit int) ([]models.Trend, error) {
	if limit <= 0 {
		limit = defaultTrendLimit
	}

	var trends []models.Trend
	err := s.withPage(ctx, 0, func(ctx context.Context, page browser.Page, _ *intercept.Interceptor) error {
		if err := s.navigate(ctx, page, s.url(trendingPath), extract.Trend); err != nil {
			return err
		}

		nodes, err := page.QueryAll(ctx, extract.Trend)
		if err != nil {
			return categorizeError(err, "failed to read trends")
		}
		if len(nodes) > limit {
			nodes = nodes[:limit]
		}

		now := time.Now().UTC()
		trends = make([]models.Trend, 0, len(nodes))
		for i, n := range nodes {
			text, err := n.Text(ctx)
			if err != nil {
				if fatalPageErr(ctx, err) {
					return categorizeError(err, "failed to read trends")
				}
				s.logger.Warn("failed to parse trend element", "index", i, "error", err)
				continue
			}
			trend, err := extract.ParseTrendLines(text)
			if err != nil {
				s.logger.Warn("failed to parse trend element", "index", i, "error", err)
				continue
			}
			trend.ScrapedAt = now
			trends = append(trends, trend)
		}
		s.interactions.Add(1)
		s.logger.Info("trending topics scraped", "count", len(trends))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trends, nil
}

// TweetContent extracts a single post. MediaURL prefers a stream observed on
// the network over the first photo in the DOM.
func (s *Scraper) TweetContent(ctx context.Context, rawURL string) (*models.TweetContent, error) {
	_, id, err := extract.ParseStatusURL(rawURL)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err)
	}

	var content *models.TweetContent
	err = s.withPage(ctx, 0, func(ctx context.Context, page browser.Page, ic *intercept.Interceptor) error {
		if err := s.navigate(ctx, page, rawURL, extract.PostArticle); err != nil {
			return err
		}
		// Video manifests are requested after the player mounts.
		if err := s.sleep(ctx, s.scraperCfg.SettleDelay); err != nil {
			return categorizeError(err, "tweet extraction interrupted")
		}

		nodes, err := page.QueryAll(ctx, extract.PostArticle)
		if err != nil {
			return categorizeError(err, "failed to read tweet")
		}
		post, ok := s.focalPost(ctx, nodes, id)
		if !ok {
			return models.NewScrapeError(models.ErrCodeNotFound, "tweet not found on page", nil)
		}

		content = &models.TweetContent{
			Text:      post.Text,
			Author:    post.AuthorHandle,
			Timestamp: post.Timestamp,
			SourceURL: rawURL,
			ScrapedAt: time.Now().UTC(),
		}
		if stream := intercept.Best(ic.Snapshot()); stream != "" {
			content.MediaURL = stream
		} else {
			for _, m := range post.Media {
				if m.Type == models.MediaPhoto {
					content.MediaURL = m.Src
					break
				}
			}
		}
		s.interactions.Add(1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// focalPost returns the rendered post with the given id, or the first valid
// post when the id is not rendered (X sometimes redirects retweets).
func (s *Scraper) focalPost(ctx context.Context, nodes []browser.Node, id string) (models.Post, bool) {
	var first *models.Post
	for i, n := range nodes {
		html, err := n.HTML(ctx)
		if err != nil {
			s.logger.Debug("tweet element skipped", "index", i, "error", err)
			continue
		}
		p, err := extract.ParsePost(html, s.sessionCfg.BaseURL)
		if err != nil {
			s.logger.Debug("tweet element skipped", "index", i, "error", err)
			continue
		}
		if p.ID == id {
			return p, true
		}
		if first == nil {
			first = &p
		}
	}
	if first != nil {
		return *first, true
	}
	return models.Post{}, false
}

// SearchTweets returns up to limit unique post URLs from the live search
// results for topic. No results is an empty list, not an error.
func (s *Scraper) SearchTweets(ctx context.Context, topic string, limit int) ([]string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "search topic must not be empty", nil)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	urls := []string{}
	err := s.withPage(ctx, 0, func(ctx context.Context, page browser.Page, _ *intercept.Interceptor) error {
		q := url.Values{}
		q.Set("q", topic)
		q.Set("src", "trend_click")
		q.Set("f", "live")
		if err := s.navigate(ctx, page, s.url("/search?"+q.Encode()), ""); err != nil {
			return err
		}

		err := page.WaitForSelector(ctx, extract.PostArticle, s.collectorCfg.WaitTimeout)
		if errors.Is(err, browser.ErrSelectorTimeout) {
			s.logger.Info("search returned no posts", "topic", topic)
			return nil
		}
		if err != nil {
			return categorizeError(err, "search results did not render")
		}

		nodes, err := page.QueryAll(ctx, extract.PostArticle)
		if err != nil {
			return categorizeError(err, "failed to read search results")
		}
		if len(nodes) > limit*searchOverfetchRate {
			nodes = nodes[:limit*searchOverfetchRate]
		}

		seen := make(map[string]bool)
		for i, n := range nodes {
			html, err := n.HTML(ctx)
			if err != nil {
				s.logger.Debug("search result skipped", "index", i, "error", err)
				continue
			}
			u, err := extract.StatusURL(html, s.sessionCfg.BaseURL)
			if err != nil {
				s.logger.Debug("search result skipped", "index", i, "error", err)
				continue
			}
			if seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
			if len(urls) >= limit {
				break
			}
		}
		s.interactions.Add(1)
		s.logger.Info("search complete", "topic", topic, "count", len(urls))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

func fatalPageErr(ctx context.Context, err error) bool {
	return errors.Is(err, browser.ErrPageUnreachable) || ctx.Err() != nil
}
