package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/threadgrab/cache"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/store"
	"github.com/use-agent/threadgrab/webhook"
)

// JobStore persists async jobs.
type JobStore interface {
	CreateJob(ctx context.Context, url, webhookURL string) (*models.ThreadJob, error)
	CompleteJob(ctx context.Context, id string, result *models.ThreadResult) error
	FailJob(ctx context.Context, id string, detail *models.ErrorDetail) error
	GetJob(ctx context.Context, id string) (*models.ThreadJob, error)
}

// Jobs runs thread fetches in the background. Each job is bounded by the
// request timeout and outlives the HTTP request that created it.
type Jobs struct {
	sc     Scraper
	store  JobStore
	cache  *cache.Cache
	sender *webhook.Sender
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobs returns a job runner. cc and sender may be nil.
func NewJobs(sc Scraper, st JobStore, cc *cache.Cache, sender *webhook.Sender, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Jobs{sc: sc, store: st, cache: cc, sender: sender, logger: logger, ctx: ctx, cancel: cancel}
}

// PostThreadJob returns a handler for POST /api/v1/threads.
func (j *Jobs) PostThreadJob() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ThreadJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		req.Defaults()

		job, err := j.store.CreateJob(c.Request.Context(), req.URL, req.WebhookURL)
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInternal, "failed to create job", err))
			return
		}

		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			j.run(job, req)
		}()

		c.JSON(http.StatusAccepted, models.JobResponse{ID: job.ID, Status: job.Status})
	}
}

// GetThreadJob returns a handler for GET /api/v1/threads/:id.
func (j *Jobs) GetThreadJob() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := j.store.GetJob(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, models.NewScrapeError(models.ErrCodeNotFound, "thread job not found", err))
			return
		}
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInternal, "failed to load job", err))
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func (j *Jobs) run(job *models.ThreadJob, req models.ThreadJobRequest) {
	opts := fetchOptions(&req.ThreadRequest)
	ctx, cancel := context.WithTimeout(j.ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	result, err := j.sc.FetchThread(ctx, job.URL, opts)

	// The fetch context may be spent; bookkeeping gets its own deadline.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()

	event := &webhook.Event{JobID: job.ID, Timestamp: time.Now().Unix()}
	if err != nil {
		detail := errorDetail(err)
		if serr := j.store.FailJob(saveCtx, job.ID, detail); serr != nil {
			j.logger.Error("failed to save job", "job_id", job.ID, "error", serr)
		}
		j.logger.Warn("thread job failed", "job_id", job.ID, "url", job.URL, "code", detail.Code, "error", err)
		event.Type = webhook.EventThreadFailed
		event.Data = detail
	} else {
		if serr := j.store.CompleteJob(saveCtx, job.ID, result); serr != nil {
			j.logger.Error("failed to save job", "job_id", job.ID, "error", serr)
		}
		if j.cache != nil {
			j.cache.Set(cache.Key(job.URL, *req.AuthorOnly), result)
		}
		j.logger.Info("thread job completed", "job_id", job.ID, "tweets", len(result.Tweets), "elapsed", time.Since(start))
		event.Type = webhook.EventThreadCompleted
		event.Data = result
	}

	if job.WebhookURL != "" && j.sender != nil {
		j.sender.DeliverAsync(job.WebhookURL, req.WebhookSecret, event)
	}
}

// Shutdown cancels running jobs and waits for them and their webhook
// deliveries to finish.
func (j *Jobs) Shutdown() {
	j.cancel()
	j.wg.Wait()
	if j.sender != nil {
		j.sender.Wait()
	}
}
