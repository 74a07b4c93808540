package models

import "time"

// Job statuses.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// ThreadJob tracks an asynchronous thread fetch.
type ThreadJob struct {
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	Status     string        `json:"status"`
	Result     *ThreadResult `json:"result,omitempty"`
	Error      *ErrorDetail  `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	WebhookURL string        `json:"-"`
}

// JobResponse is the immediate response for POST /api/v1/threads.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ThreadJobRequest is the payload for POST /api/v1/threads.
type ThreadJobRequest struct {
	ThreadRequest

	// WebhookURL receives thread.completed / thread.failed events.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs webhook bodies (X-Threadgrab-Signature).
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
