// Command threadgrab-mcp exposes the threadgrab REST API as MCP tools over
// stdio.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("THREADGRAB_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("THREADGRAB_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "THREADGRAB_API_KEY is required")
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(newAPIClient(apiURL, apiKey))); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"threadgrab",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	fetchThreadTool := mcp.NewTool("fetch_thread",
		mcp.WithDescription("Collect an X thread from the URL of any post in it. Returns the author's consecutive posts, oldest first. Runs as a background job on the server and may take a few minutes for long threads."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Status URL of a post in the thread, e.g. https://x.com/<handle>/status/<id>"),
		),
		mcp.WithBoolean("all_authors",
			mcp.Description("Return every collected post, including replies by other accounts (default: false)"),
		),
		mcp.WithBoolean("allow_partial",
			mcp.Description("Return what was collected if the fetch times out (default: false)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'markdown' (default) or 'json'"),
			mcp.Enum("markdown", "json"),
		),
	)
	s.AddTool(fetchThreadTool, c.handleFetchThread)

	trendsTool := mcp.NewTool("trending_topics",
		mcp.WithDescription("List the current trending topics on X."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of topics (default: 10, max: 50)"),
		),
	)
	s.AddTool(trendsTool, c.handleTrends)

	tweetTool := mcp.NewTool("tweet_content",
		mcp.WithDescription("Extract the text, author, timestamp and main media URL of a single X post."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Status URL of the post"),
		),
	)
	s.AddTool(tweetTool, c.handleTweet)

	searchTool := mcp.NewTool("search_tweets",
		mcp.WithDescription("Search live X results for a topic and return post URLs. Feed them to tweet_content or fetch_thread."),
		mcp.WithString("topic",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of URLs (default: 5, max: 50)"),
		),
	)
	s.AddTool(searchTool, c.handleSearch)

	return s
}

// apiClient talks to a threadgrab server.
type apiClient struct {
	apiURL    string
	apiKey    string
	http      *http.Client
	pollEvery time.Duration
}

func newAPIClient(apiURL, apiKey string) *apiClient {
	return &apiClient{
		apiURL:    apiURL,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: 120 * time.Second},
		pollEvery: 2 * time.Second,
	}
}
