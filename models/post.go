package models

import "time"

// Media types carried by MediaReference.Type.
const (
	MediaPhoto = "photo"
	MediaVideo = "video"
)

// MediaReference is a media element attached to a post, as found in the DOM.
// Downloading it is left to downstream consumers.
type MediaReference struct {
	Type string `json:"type"` // "photo" or "video"
	Src  string `json:"src"`
}

// Post is a single post extracted from the rendered page.
// ID is the platform-assigned status id and is unique within one collection.
type Post struct {
	ID           string           `json:"tweet_id"`
	AuthorHandle string           `json:"author_handle"`
	AuthorName   string           `json:"author_name"`
	Text         string           `json:"text"`
	Permalink    string           `json:"permalink"`
	Timestamp    *time.Time       `json:"timestamp"`
	Media        []MediaReference `json:"media"`
}

// ThreadResult is the output of a thread fetch: the contiguous run of posts
// by the thread author, oldest first.
type ThreadResult struct {
	Tweets       []Post `json:"tweets"`
	AuthorHandle string `json:"author_handle"`
	AuthorName   string `json:"author_name"`
	SourceURL    string `json:"source_url"`

	// MediaStreams holds media URLs observed on the network during the
	// fetch. They are not mapped to individual posts; prefer Post.Media.
	MediaStreams []string `json:"media_streams,omitempty"`

	// Partial is set when the collection was cut short by a deadline and
	// the caller asked for whatever had been gathered.
	Partial bool `json:"partial,omitempty"`
}

// Trend is one entry of the trending-topics list.
type Trend struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// TweetContent is the one-shot extraction of a single post page.
type TweetContent struct {
	Text      string     `json:"text"`
	Author    string     `json:"author"`
	Timestamp *time.Time `json:"timestamp"`
	MediaURL  string     `json:"media_url,omitempty"`
	SourceURL string     `json:"source_url"`
	ScrapedAt time.Time  `json:"scraped_at"`
}
