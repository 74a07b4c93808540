package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/threadgrab/cache"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/render"
)

// Thread returns a handler for POST /api/v1/thread.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age is set.
//  3. Scraper.FetchThread                 (records collect_ms)
//  4. Cache store (partial results are never cached).
//  5. Render as markdown if requested, fill Timing, return 200.
func Thread(sc Scraper, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ThreadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		req.Defaults()
		key := cache.Key(req.URL, *req.AuthorOnly)

		// ── 2. Cache lookup ─────────────────────────────────────────
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(key, req.MaxAge); hit {
				respondThread(c, &req, cached, "hit", models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
				})
				return
			}
		}

		// ── 3. Fetch ────────────────────────────────────────────────
		collectStart := time.Now()
		result, err := sc.FetchThread(c.Request.Context(), req.URL, fetchOptions(&req))
		collectMs := time.Since(collectStart).Milliseconds()
		if err != nil {
			code, body := errorStatus(err)
			c.JSON(code, models.ThreadResponse{
				Success: false,
				Error:   body.Error,
				Timing:  models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds(), CollectMs: collectMs},
			})
			return
		}

		// ── 4. Cache store ──────────────────────────────────────────
		cacheStatus := ""
		if cc != nil && req.MaxAge > 0 {
			cc.Set(key, result)
			cacheStatus = "miss"
		}

		// ── 5. Respond ──────────────────────────────────────────────
		respondThread(c, &req, result, cacheStatus, models.TimingInfo{
			TotalMs:   time.Since(totalStart).Milliseconds(),
			CollectMs: collectMs,
		})
	}
}

func respondThread(c *gin.Context, req *models.ThreadRequest, t *models.ThreadResult, cacheStatus string, timing models.TimingInfo) {
	resp := models.ThreadResponse{Success: true, CacheStatus: cacheStatus, Timing: timing}
	if req.Format == "markdown" {
		md, err := render.Markdown(t)
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInternal, "markdown rendering failed", err))
			return
		}
		resp.Content = md
	} else {
		resp.Thread = t
	}
	c.JSON(http.StatusOK, resp)
}
