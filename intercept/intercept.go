// Package intercept buffers media stream URLs observed on a page's network
// traffic while it is being scraped.
package intercept

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/use-agent/threadgrab/browser"
)

// DefaultPatterns match HLS/DASH manifests and X's video hosts.
var DefaultPatterns = []string{
	".m3u8",
	".mpd",
	"video.twimg.com",
	"/ext_tw_video/",
	"/amplify_video/",
	"/tweet_video/",
}

// Interceptor records every observed URL that matches one of its patterns,
// in observation order, duplicates included. One Interceptor serves one
// fetch at a time; Start resets the buffer.
//
// The page delivers callbacks on its own goroutine, so the buffer is guarded.
type Interceptor struct {
	patterns []string
	logger   *slog.Logger

	mu    sync.Mutex
	urls  []string
	unsub func()
}

// New returns an Interceptor for the given substrings. An empty list falls
// back to DefaultPatterns. A nil logger uses slog.Default.
func New(patterns []string, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &Interceptor{patterns: lowered, logger: logger}
}

// Start clears the buffer and subscribes to page. It must be called before
// navigating. Calling Start while already capturing detaches the previous page.
func (i *Interceptor) Start(page browser.Page) {
	i.mu.Lock()
	prev := i.unsub
	i.urls = nil
	i.unsub = nil
	i.mu.Unlock()

	if prev != nil {
		prev()
	}

	unsub := page.OnResponse(i.observe)

	i.mu.Lock()
	i.unsub = unsub
	i.mu.Unlock()
}

// Stop unsubscribes and returns a copy of the buffered URLs.
func (i *Interceptor) Stop() []string {
	i.mu.Lock()
	unsub := i.unsub
	i.unsub = nil
	out := make([]string, len(i.urls))
	copy(out, i.urls)
	i.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return out
}

// Snapshot returns the URLs buffered so far and keeps capturing. Callers
// read results with it while the page is still open; Stop detaches.
func (i *Interceptor) Snapshot() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.urls))
	copy(out, i.urls)
	return out
}

// Matches reports whether u looks like a media stream.
func (i *Interceptor) Matches(u string) bool {
	lower := strings.ToLower(u)
	for _, p := range i.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func (i *Interceptor) observe(u string) {
	if !i.Matches(u) {
		return
	}
	i.mu.Lock()
	i.urls = append(i.urls, u)
	i.mu.Unlock()
	i.logger.Debug("intercepted media url", "url", u)
}

// Best picks the stream a single-post fetch should report: the
// lexicographically greatest .m3u8 URL (X's variant playlists sort by
// resolution), else the first URL, else "".
func Best(urls []string) string {
	var manifests []string
	for _, u := range urls {
		if strings.Contains(strings.ToLower(u), ".m3u8") {
			manifests = append(manifests, u)
		}
	}
	if len(manifests) > 0 {
		sort.Sort(sort.Reverse(sort.StringSlice(manifests)))
		return manifests[0]
	}
	if len(urls) > 0 {
		return urls[0]
	}
	return ""
}
