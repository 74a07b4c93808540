package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/threadgrab/models"
)

// DefaultTrendCategory is used when a trend cell has a single line.
const DefaultTrendCategory = "Trending"

// ParseTrendLines parses the rendered text of a trend cell. With two or more
// non-blank lines the first is the category, the second the title and the
// rest the description. A single line is the title.
func ParseTrendLines(text string) (models.Trend, error) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	switch len(lines) {
	case 0:
		return models.Trend{}, fmt.Errorf("%w: empty trend", ErrSkip)
	case 1:
		return models.Trend{Title: lines[0], Category: DefaultTrendCategory}, nil
	default:
		return models.Trend{
			Category:    lines[0],
			Title:       lines[1],
			Description: strings.Join(lines[2:], " "),
		}, nil
	}
}

// StatusURL returns the absolute URL of the post's own status link inside a
// rendered post.
func StatusURL(outerHTML, baseURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %v", ErrSkip, err)
	}
	href := permalinkHref(doc.Selection, quoteCards(doc.Selection))
	m := statusIDPattern.FindStringSubmatch(href)
	if m == nil {
		return "", fmt.Errorf("%w: no status link", ErrSkip)
	}
	return absolute(baseURL, canonicalStatusPath(href, m[1]))
}

var (
	handlePattern   = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)
	statusIDOnly    = regexp.MustCompile(`^\d+$`)
	reservedHandles = map[string]bool{"i": true, "home": true, "explore": true, "search": true}
)

// ParseStatusURL splits a post URL such as https://x.com/jack/status/20
// into its author handle and status id.
func ParseStatusURL(raw string) (handle, id string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if !isXHost(u.Hostname()) {
		return "", "", fmt.Errorf("invalid url %q: not an x.com or twitter.com address", raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[1] != "status" {
		return "", "", fmt.Errorf("invalid url %q: expected /<handle>/status/<id>", raw)
	}
	handle, id = parts[0], parts[2]
	if reservedHandles[strings.ToLower(handle)] || !handlePattern.MatchString(handle) {
		return "", "", fmt.Errorf("invalid url %q: no author handle", raw)
	}
	if !statusIDOnly.MatchString(id) {
		return "", "", fmt.Errorf("invalid url %q: bad status id %q", raw, id)
	}
	return handle, id, nil
}

func isXHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = strings.TrimPrefix(host, "mobile.")
	return host == "x.com" || host == "twitter.com"
}
