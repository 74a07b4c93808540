// Package render turns collected threads into Markdown for downstream
// text pipelines.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/use-agent/threadgrab/models"
	"golang.org/x/net/html"
)

// conv is goroutine-safe and reused across calls.
//
//   - base plugin: strips script, style and other noise.
//   - commonmark plugin: headings, links, images, emphasis.
var conv = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Markdown renders a thread as one section per post, oldest first, with
// photos inlined and videos linked. Relative links resolve against the
// thread's source URL.
func Markdown(t *models.ThreadResult) (string, error) {
	if t == nil {
		return "", nil
	}
	return conv.ConvertString(threadHTML(t), converter.WithDomain(domainOf(t.SourceURL)))
}

func threadHTML(t *models.ThreadResult) string {
	var b strings.Builder

	title := "@" + t.AuthorHandle
	if t.AuthorName != "" {
		title = t.AuthorName + " (@" + t.AuthorHandle + ")"
	}
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(title))
	if t.SourceURL != "" {
		fmt.Fprintf(&b, "<p><a href=%q>%s</a></p>\n", t.SourceURL, html.EscapeString(t.SourceURL))
	}

	for i, p := range t.Tweets {
		fmt.Fprintf(&b, "<h2>%d/%d</h2>\n", i+1, len(t.Tweets))

		paras := strings.Split(p.Text, "\n\n")
		for _, para := range paras {
			if strings.TrimSpace(para) == "" {
				continue
			}
			lines := strings.Split(para, "\n")
			for j := range lines {
				lines[j] = html.EscapeString(lines[j])
			}
			fmt.Fprintf(&b, "<p>%s</p>\n", strings.Join(lines, "<br>"))
		}

		for _, m := range p.Media {
			switch m.Type {
			case models.MediaPhoto:
				fmt.Fprintf(&b, "<p><img src=%q alt=\"photo\"></p>\n", m.Src)
			case models.MediaVideo:
				fmt.Fprintf(&b, "<p><a href=%q>video</a></p>\n", m.Src)
			}
		}

		meta := html.EscapeString(p.Permalink)
		if p.Timestamp != nil {
			meta = p.Timestamp.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "<p><em><a href=%q>%s</a></em></p>\n", p.Permalink, meta)
	}
	return b.String()
}

func domainOf(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rest := rawURL[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			rest = rest[:j]
		}
		return rest
	}
	return ""
}
