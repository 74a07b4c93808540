package models

// ThreadRequest is the payload for POST /api/v1/thread.
type ThreadRequest struct {
	// URL is the status URL of any post in the thread. Required.
	URL string `json:"url" binding:"required,url"`

	// AuthorOnly keeps only the contiguous run of posts by the thread
	// author. When false the raw collected posts are returned, oldest first.
	// Default: true.
	AuthorOnly *bool `json:"author_only,omitempty"`

	// AllowPartial returns whatever was collected when the request deadline
	// expires instead of failing. Default: false.
	AllowPartial bool `json:"allow_partial,omitempty"`

	// MaxAttempts caps the number of scroll iterations.
	// Default: the server's configured value. Max: 200.
	MaxAttempts int `json:"max_attempts,omitempty" binding:"omitempty,min=1,max=200"`

	// Timeout is the maximum duration in seconds for the whole fetch.
	// Default: 120. Max: 600.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=600"`

	// Format controls the response body: "json" (default) or "markdown".
	Format string `json:"format,omitempty" binding:"omitempty,oneof=json markdown"`

	// MaxAge enables the result cache; cached results younger than MaxAge
	// milliseconds are returned without touching the browser.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *ThreadRequest) Defaults() {
	if r.AuthorOnly == nil {
		t := true
		r.AuthorOnly = &t
	}
	if r.Timeout == 0 {
		r.Timeout = 120
	}
	if r.Format == "" {
		r.Format = "json"
	}
}

// TweetRequest is the payload for POST /api/v1/tweet.
type TweetRequest struct {
	URL string `json:"url" binding:"required,url"`
}
