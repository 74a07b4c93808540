package models

// ThreadResponse is the response for POST /api/v1/thread.
type ThreadResponse struct {
	// Success indicates whether the fetch completed without errors.
	// An empty thread is still a success.
	Success bool `json:"success"`

	// Thread is the collected thread (format=json).
	Thread *ThreadResult `json:"thread,omitempty"`

	// Content is the Markdown rendering of the thread (format=markdown).
	Content string `json:"content,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TrendsResponse is the response for GET /api/v1/trends.
type TrendsResponse struct {
	Success bool         `json:"success"`
	Trends  []Trend      `json:"trends"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// TweetResponse is the response for POST /api/v1/tweet.
type TweetResponse struct {
	Success bool          `json:"success"`
	Tweet   *TweetContent `json:"tweet,omitempty"`
	Error   *ErrorDetail  `json:"error,omitempty"`
}

// SearchResponse is the response for GET /api/v1/search.
type SearchResponse struct {
	Success bool         `json:"success"`
	Query   string       `json:"query"`
	URLs    []string     `json:"urls"`
	Total   int          `json:"total"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// SessionResponse is the response for the /api/v1/session endpoints.
type SessionResponse struct {
	// Status is "valid", "missing" or "pending".
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// CollectMs is the time spent driving the page (login check,
	// navigation, scrolling and extraction).
	CollectMs int64 `json:"collect_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Session   string    `json:"session"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages     int   `json:"max_pages"`
	ActivePages  int   `json:"active_pages"`
	Interactions int64 `json:"interactions"`
}

// ErrorResponse is the body of every failed request that has no richer
// response type.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
