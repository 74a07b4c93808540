// Package handler implements the REST endpoints on top of the scraper.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/scraper"
	"github.com/use-agent/threadgrab/session"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Scraper is the part of *scraper.Scraper the handlers use.
type Scraper interface {
	FetchThread(ctx context.Context, rawURL string, opts scraper.FetchOptions) (*models.ThreadResult, error)
	TrendingTopics(ctx context.Context, limit int) ([]models.Trend, error)
	TweetContent(ctx context.Context, rawURL string) (*models.TweetContent, error)
	SearchTweets(ctx context.Context, topic string, limit int) ([]string, error)
	Stats() models.PoolStats
	Uptime() time.Duration
}

// Sessions is the part of *session.Manager the handlers use.
type Sessions interface {
	EnsureLoggedIn(ctx context.Context) (*session.Session, error)
	Resume(ctx context.Context) (*session.Session, error)
	Cancel()
	Status() session.Status
}

// fetchOptions translates a request into scraper options. Defaults must
// already be applied.
func fetchOptions(req *models.ThreadRequest) scraper.FetchOptions {
	return scraper.FetchOptions{
		AuthorOnly:   *req.AuthorOnly,
		AllowPartial: req.AllowPartial,
		MaxAttempts:  req.MaxAttempts,
		Timeout:      time.Duration(req.Timeout) * time.Second,
	}
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	c.JSON(errorStatus(err))
}

// errorStatus returns the status code and body for err.
func errorStatus(err error) (int, models.ErrorResponse) {
	detail := errorDetail(err)
	return mapErrorToStatus(detail.Code), models.ErrorResponse{Success: false, Error: detail}
}

// errorDetail converts err to its API form. Authentication and navigation
// failures get fixed messages so internal details do not leak.
func errorDetail(err error) *models.ErrorDetail {
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		se = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
	d := se.ToDetail()
	switch d.Code {
	case models.ErrCodeAuthentication:
		d.Message = "manual login required"
	case models.ErrCodeNavigation:
		d.Message = "source unreachable"
	}
	return d
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized, models.ErrCodeAuthentication, models.ErrCodeLoginRequired:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: msg},
	})
}
