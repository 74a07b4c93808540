package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/threadgrab/models"
)

const maxListLimit = 50

// Trends returns a handler for GET /api/v1/trends?limit=.
func Trends(sc Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		trends, err := sc.TrendingTopics(c.Request.Context(), limit)
		if err != nil {
			code, body := errorStatus(err)
			c.JSON(code, models.TrendsResponse{Success: false, Trends: []models.Trend{}, Error: body.Error})
			return
		}
		if trends == nil {
			trends = []models.Trend{}
		}
		c.JSON(http.StatusOK, models.TrendsResponse{Success: true, Trends: trends})
	}
}

// Tweet returns a handler for POST /api/v1/tweet.
func Tweet(sc Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.TweetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		tweet, err := sc.TweetContent(c.Request.Context(), req.URL)
		if err != nil {
			code, body := errorStatus(err)
			c.JSON(code, models.TweetResponse{Success: false, Error: body.Error})
			return
		}
		c.JSON(http.StatusOK, models.TweetResponse{Success: true, Tweet: tweet})
	}
}

// Search returns a handler for GET /api/v1/search?q=&limit=.
func Search(sc Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := strings.TrimSpace(c.Query("q"))
		if q == "" {
			badRequest(c, "query parameter q is required")
			return
		}
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		urls, err := sc.SearchTweets(c.Request.Context(), q, limit)
		if err != nil {
			code, body := errorStatus(err)
			c.JSON(code, models.SearchResponse{Success: false, Query: q, URLs: []string{}, Error: body.Error})
			return
		}
		if urls == nil {
			urls = []string{}
		}
		c.JSON(http.StatusOK, models.SearchResponse{Success: true, Query: q, URLs: urls, Total: len(urls)})
	}
}

// queryLimit parses ?limit=. Absent means 0, letting the scraper default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		badRequest(c, "limit must be an integer between 1 and "+strconv.Itoa(maxListLimit))
		return 0, false
	}
	return n, true
}
