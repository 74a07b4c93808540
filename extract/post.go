// Package extract turns rendered X elements into typed results. Every
// function takes an element's outer HTML, so parsing runs on a detached
// goquery document instead of round-tripping the browser per field.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/threadgrab/models"
	"golang.org/x/net/html"
)

// ErrSkip marks an element that could not be turned into a valid result.
// Callers log it and move on; it never aborts a collection.
var ErrSkip = errors.New("extract: element skipped")

var statusIDPattern = regexp.MustCompile(`/status/(\d+)`)

// ParsePost parses one rendered post article. Relative links are resolved
// against baseURL. Elements without a status id or permalink yield ErrSkip.
func ParsePost(outerHTML, baseURL string) (models.Post, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return models.Post{}, fmt.Errorf("%w: parse html: %v", ErrSkip, err)
	}

	quotes := quoteCards(doc.Selection)
	href := permalinkHref(doc.Selection, quotes)
	if href == "" {
		return models.Post{}, fmt.Errorf("%w: no permalink", ErrSkip)
	}
	m := statusIDPattern.FindStringSubmatch(href)
	if m == nil {
		return models.Post{}, fmt.Errorf("%w: no status id in %q", ErrSkip, href)
	}
	permalink, err := absolute(baseURL, canonicalStatusPath(href, m[1]))
	if err != nil {
		return models.Post{}, fmt.Errorf("%w: bad permalink %q: %v", ErrSkip, href, err)
	}

	post := models.Post{
		ID:        m[1],
		Permalink: permalink,
		Media:     []models.MediaReference{},
	}

	user := doc.FindMatcher(matchUserName).First()
	post.AuthorHandle, post.AuthorName = parseUserName(user)
	if post.AuthorHandle == "" {
		post.AuthorHandle = handleFromPath(href)
	}

	if txt := own(doc.FindMatcher(matchTweetText), quotes).First(); txt.Length() > 0 {
		post.Text = renderText(txt.Get(0))
	}

	if dt, ok := own(doc.FindMatcher(matchTimeAttr), quotes).First().Attr("datetime"); ok {
		if ts, err := time.Parse(time.RFC3339, dt); err == nil {
			ts = ts.UTC()
			post.Timestamp = &ts
		}
	}

	post.Media = parseMedia(doc.Selection, quotes, baseURL)
	return post, nil
}

// quoteCards returns the containers of posts quoted inside the article.
// The first User-Name block belongs to the article's own author; every
// later one sits in a quote card, which X renders as a role="link" block.
// Without that block the card is the widest ancestor of the quoted
// User-Name that does not also hold the author's.
func quoteCards(sel *goquery.Selection) []*html.Node {
	users := sel.FindMatcher(matchUserName).Nodes
	if len(users) < 2 {
		return nil
	}
	author := users[0]
	var cards []*html.Node
	for _, u := range users[1:] {
		if isAncestor(u, author) {
			continue
		}
		var card *html.Node
		for n := u.Parent; n != nil && !isAncestor(n, author); n = n.Parent {
			if n.Type == html.ElementNode && n.Data == "div" && attr(n, "role") == "link" {
				card = n
				break
			}
		}
		if card == nil {
			card = u
			for card.Parent != nil && !isAncestor(card.Parent, author) {
				card = card.Parent
			}
		}
		cards = append(cards, card)
	}
	return cards
}

// own drops the matches that sit inside a quote card.
func own(matches *goquery.Selection, quotes []*html.Node) *goquery.Selection {
	if len(quotes) == 0 {
		return matches
	}
	return matches.FilterFunction(func(_ int, s *goquery.Selection) bool {
		for _, q := range quotes {
			if isAncestor(q, s.Get(0)) {
				return false
			}
		}
		return true
	})
}

// isAncestor reports whether n is a or lies below it.
func isAncestor(a, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == a {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// permalinkHref prefers the status link wrapping the <time> element, which
// is the post's own permalink. Links inside quote cards point at the quoted
// post and are only used when the article has no other status link.
func permalinkHref(sel *goquery.Selection, quotes []*html.Node) string {
	links := own(sel.FindMatcher(matchStatusLink), quotes)
	if links.Length() == 0 {
		links = sel.FindMatcher(matchStatusLink)
	}
	var href string
	links.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, _ := a.Attr("href")
		if a.Find("time").Length() > 0 {
			href = h
			return false
		}
		if href == "" {
			href = h
		}
		return true
	})
	return href
}

// canonicalStatusPath strips /photo/N, /analytics and similar suffixes.
func canonicalStatusPath(href, id string) string {
	idx := strings.Index(href, "/status/"+id)
	if idx < 0 {
		return href
	}
	return href[:idx+len("/status/")+len(id)]
}

func handleFromPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 3 && parts[1] == "status" && parts[0] != "i" {
		return parts[0]
	}
	return ""
}

// parseUserName reads the User-Name block: display name first, then the
// "@handle" span.
func parseUserName(user *goquery.Selection) (handle, name string) {
	if user.Length() == 0 {
		return "", ""
	}
	user.FindMatcher(matchSpan).Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			if name == "" && s.Find("img").Length() > 0 {
				name = strings.TrimSpace(renderText(s.Get(0)))
			}
			return
		}
		t := strings.TrimSpace(s.Text())
		switch {
		case t == "" || t == "·":
		case strings.HasPrefix(t, "@"):
			if handle == "" {
				handle = strings.TrimPrefix(t, "@")
			}
		case name == "":
			name = t
		}
	})
	if handle == "" {
		if href, ok := user.Find("a[href]").First().Attr("href"); ok {
			h := strings.Trim(href, "/")
			if h != "" && !strings.Contains(h, "/") {
				handle = h
			}
		}
	}
	return handle, name
}

func parseMedia(sel *goquery.Selection, quotes []*html.Node, baseURL string) []models.MediaReference {
	media := []models.MediaReference{}
	seen := make(map[string]bool)
	add := func(kind, src string) {
		if src == "" || strings.HasPrefix(src, "blob:") {
			return
		}
		abs, err := absolute(baseURL, src)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		media = append(media, models.MediaReference{Type: kind, Src: abs})
	}

	own(sel.FindMatcher(matchPhoto), quotes).Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		add(models.MediaPhoto, src)
	})
	own(sel.FindMatcher(matchVideo), quotes).Each(func(_ int, v *goquery.Selection) {
		// X plays most video through blob: URLs; the poster is then the only
		// stable reference in the DOM.
		src, _ := v.Attr("src")
		if src == "" {
			src, _ = v.Find("source[src]").First().Attr("src")
		}
		if !strings.HasPrefix(src, "http") {
			src, _ = v.Attr("poster")
		}
		add(models.MediaVideo, src)
	})
	return media
}

// renderText flattens a text container the way the browser shows it:
// emoji images become their alt text and <br> becomes a newline.
func renderText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "img":
				for _, a := range n.Attr {
					if a.Key == "alt" {
						b.WriteString(a.Val)
					}
				}
				return
			case "br":
				b.WriteByte('\n')
				return
			case "script", "style":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func absolute(baseURL, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(r).String(), nil
}
