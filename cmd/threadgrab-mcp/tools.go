package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/render"
)

// do sends a request to the API and returns the response body. Non-2xx
// responses are returned as well; every endpoint answers with JSON.
func (c *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJob polls a thread job until its status is no longer "processing" or
// ctx is cancelled.
func (c *apiClient) pollJob(ctx context.Context, id string) (*models.ThreadJob, error) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := c.do(ctx, http.MethodGet, "/api/v1/threads/"+url.PathEscape(id), nil)
			if err != nil {
				return nil, err
			}
			var job models.ThreadJob
			if err := json.Unmarshal(body, &job); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if job.Status == "" {
				return nil, fmt.Errorf("unexpected poll response: %s", strings.TrimSpace(string(body)))
			}
			if job.Status != models.JobProcessing {
				return &job, nil
			}
		}
	}
}

func errorText(fallback string, d *models.ErrorDetail) string {
	if d == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}

func (c *apiClient) handleFetchThread(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url is required"), nil
	}
	authorOnly := !request.GetBool("all_authors", false)
	format := request.GetString("format", "markdown")

	body, err := c.do(ctx, http.MethodPost, "/api/v1/threads", map[string]any{
		"url":           rawURL,
		"author_only":   authorOnly,
		"allow_partial": request.GetBool("allow_partial", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("thread request failed: %v", err)), nil
	}

	var created struct {
		models.JobResponse
		Error *models.ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse thread response: %v", err)), nil
	}
	if created.ID == "" {
		return mcp.NewToolResultError(errorText("thread job creation failed", created.Error)), nil
	}

	job, err := c.pollJob(ctx, created.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("polling thread job failed: %v", err)), nil
	}
	if job.Status != models.JobCompleted || job.Result == nil {
		return mcp.NewToolResultError(errorText("thread fetch failed", job.Error)), nil
	}

	if format == "json" {
		out, err := json.MarshalIndent(job.Result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode thread: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}

	md, err := render.Markdown(job.Result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to render thread: %v", err)), nil
	}
	if job.Result.Partial {
		md += "\n\n---\nPartial result: the fetch timed out before the thread was fully loaded."
	}
	return mcp.NewToolResultText(md), nil
}

func (c *apiClient) handleTrends(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/v1/trends"
	if limit := request.GetInt("limit", 0); limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trends request failed: %v", err)), nil
	}
	var resp models.TrendsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse trends response: %v", err)), nil
	}
	if !resp.Success {
		return mcp.NewToolResultError(errorText("trends request failed", resp.Error)), nil
	}

	var sb strings.Builder
	for i, t := range resp.Trends {
		fmt.Fprintf(&sb, "%d. %s (%s)", i+1, t.Title, t.Category)
		if t.Description != "" {
			fmt.Fprintf(&sb, " - %s", t.Description)
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return mcp.NewToolResultText("No trending topics found."), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *apiClient) handleTweet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url is required"), nil
	}

	body, err := c.do(ctx, http.MethodPost, "/api/v1/tweet", models.TweetRequest{URL: rawURL})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tweet request failed: %v", err)), nil
	}
	var resp models.TweetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse tweet response: %v", err)), nil
	}
	if !resp.Success || resp.Tweet == nil {
		return mcp.NewToolResultError(errorText("tweet request failed", resp.Error)), nil
	}

	t := resp.Tweet
	var sb strings.Builder
	fmt.Fprintf(&sb, "Author: @%s\n", t.Author)
	if t.Timestamp != nil {
		fmt.Fprintf(&sb, "Posted: %s\n", t.Timestamp.Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "Source: %s\n", t.SourceURL)
	if t.MediaURL != "" {
		fmt.Fprintf(&sb, "Media: %s\n", t.MediaURL)
	}
	sb.WriteString("\n")
	sb.WriteString(t.Text)
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *apiClient) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := request.RequireString("topic")
	if err != nil || strings.TrimSpace(topic) == "" {
		return mcp.NewToolResultError("topic is required"), nil
	}

	q := url.Values{}
	q.Set("q", topic)
	if limit := request.GetInt("limit", 0); limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.do(ctx, http.MethodGet, "/api/v1/search?"+q.Encode(), nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search request failed: %v", err)), nil
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse search response: %v", err)), nil
	}
	if !resp.Success {
		return mcp.NewToolResultError(errorText("search request failed", resp.Error)), nil
	}
	if len(resp.URLs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No posts found for %q.", resp.Query)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d posts for %q:\n%s", resp.Total, resp.Query, strings.Join(resp.URLs, "\n"))), nil
}
