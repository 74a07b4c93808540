package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/threadgrab/browser"
	"github.com/use-agent/threadgrab/browser/browsertest"
	"github.com/use-agent/threadgrab/collector"
	"github.com/use-agent/threadgrab/config"
	"github.com/use-agent/threadgrab/extract"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/session"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type half struct{}

func (half) Float64() float64 { return 0.5 }

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	scraper *Scraper
	opener  *browsertest.Opener
	cfg     *config.Config
}

// newFixture builds a scraper with a stored session. The first page handed
// out serves the session probe; the rest serve fetches.
func newFixture(t *testing.T, pages ...*browsertest.Page) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Session.StatePath = filepath.Join(t.TempDir(), "storage_state.json")
	cfg.Collector.IdleThreshold = 2
	cfg.Collector.WaitTimeout = time.Second
	cfg.Scraper.SettleDelay = 0
	require.NoError(t, os.WriteFile(cfg.Session.StatePath, []byte(`{"cookies":[]}`), 0o600))

	opener := &browsertest.Opener{Pages: append([]*browsertest.Page{{}}, pages...)}
	sessions := session.NewManager(opener, cfg.Session, discard)
	s := New(opener, sessions, cfg,
		WithLogger(discard),
		WithSleeper(noSleep),
		WithCollectorOptions(collector.WithRand(half{}), collector.WithSleeper(noSleep)),
	)
	return &fixture{scraper: s, opener: opener, cfg: cfg}
}

func article(id, author string, minute int, extra string) browser.Node {
	ts := time.Date(2024, 2, 1, 9, minute, 0, 0, time.UTC).Format(time.RFC3339)
	return &browsertest.Node{OuterHTML: fmt.Sprintf(
		`<article data-testid="tweet"><div data-testid="User-Name"><span>%[2]s Name</span><span>@%[2]s</span></div>`+
			`<a href="/%[2]s/status/%[1]s"><time datetime="%[3]s">t</time></a>`+
			`<div data-testid="tweetText">text %[1]s</div>%[4]s</article>`, id, author, ts, extra)}
}

func scripted(p *browsertest.Page, batches ...[]browser.Node) *browsertest.Page {
	p.QueryFunc = func(selector string) ([]browser.Node, error) {
		if selector != extract.PostArticle {
			return nil, nil
		}
		n := len(p.Scrolls())
		if n == 0 {
			n = 1
		}
		if n > len(batches) {
			n = len(batches)
		}
		return batches[n-1], nil
	}
	return p
}

const threadURL = "https://x.com/alice/status/1"

func TestFetchThread(t *testing.T) {
	page := scripted(&browsertest.Page{
		OnNavigate: func(p *browsertest.Page, _ string) {
			p.Emit("https://video.twimg.com/ext_tw_video/1/pu/pl/a.m3u8")
			p.Emit("https://x.com/i/api/graphql/TweetDetail")
		},
	},
		[]browser.Node{article("1", "alice", 0, ""), article("2", "alice", 1, "")},
		[]browser.Node{article("3", "alice", 2, ""), article("4", "bob", 3, "")},
	)
	f := newFixture(t, page)

	res, err := f.scraper.FetchThread(context.Background(), threadURL, DefaultFetchOptions())
	require.NoError(t, err)

	got := make([]string, len(res.Tweets))
	for i, p := range res.Tweets {
		got[i] = p.ID
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
	assert.Equal(t, "alice", res.AuthorHandle)
	assert.Equal(t, "alice Name", res.AuthorName)
	assert.Equal(t, threadURL, res.SourceURL)
	assert.Equal(t, []string{"https://video.twimg.com/ext_tw_video/1/pu/pl/a.m3u8"}, res.MediaStreams)
	assert.False(t, res.Partial)

	assert.Equal(t, `{"cookies":[]}`, string(page.Loaded()))
	assert.Equal(t, []string{threadURL}, page.Navigated())
	assert.True(t, page.Closed())
	assert.Zero(t, page.Listeners())
	assert.Equal(t, int64(1), f.scraper.Stats().Interactions)
	assert.Equal(t, []bool{true, true}, f.opener.Opened())
}

func TestFetchThread_AllAuthors(t *testing.T) {
	page := scripted(&browsertest.Page{},
		[]browser.Node{article("3", "bob", 2, ""), article("1", "alice", 0, ""), article("2", "alice", 1, "")},
	)
	f := newFixture(t, page)

	res, err := f.scraper.FetchThread(context.Background(), threadURL, FetchOptions{AuthorOnly: false})
	require.NoError(t, err)
	require.Len(t, res.Tweets, 3)
	assert.Equal(t, "1", res.Tweets[0].ID)
	assert.Equal(t, "3", res.Tweets[2].ID)
}

func TestFetchThread_InvalidURL(t *testing.T) {
	f := newFixture(t)

	_, err := f.scraper.FetchThread(context.Background(), "https://example.com/a/b", DefaultFetchOptions())
	assert.True(t, models.HasCode(err, models.ErrCodeInvalidInput))
	assert.Empty(t, f.opener.Opened())
}

func TestFetchThread_LoginRequired(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.cfg.Session.StatePath))
	f.opener.Pages = []*browsertest.Page{{}}

	_, err := f.scraper.FetchThread(context.Background(), threadURL, DefaultFetchOptions())

	assert.ErrorIs(t, err, session.ErrLoginRequired)
	assert.Equal(t, []bool{false}, f.opener.Opened())
	f.scraper.Close()
}

func TestFetchThread_NavigationFailure(t *testing.T) {
	page := &browsertest.Page{NavigateErr: errors.New("net::ERR_INTERNET_DISCONNECTED")}
	f := newFixture(t, page)

	_, err := f.scraper.FetchThread(context.Background(), threadURL, DefaultFetchOptions())

	assert.True(t, models.HasCode(err, models.ErrCodeNavigation))
	assert.True(t, page.Closed())
	assert.Zero(t, page.Listeners())
}

func TestFetchThread_ThreadNotRenderedDropsSession(t *testing.T) {
	page := &browsertest.Page{Missing: map[string]bool{extract.PostArticle: true}}
	f := newFixture(t, page)

	_, err := f.scraper.FetchThread(context.Background(), threadURL, DefaultFetchOptions())

	assert.True(t, models.HasCode(err, models.ErrCodeNavigation))
	assert.ErrorIs(t, err, browser.ErrSelectorTimeout)
	assert.Equal(t, session.StatusStored, f.scraper.Sessions().Status())
}

func TestFetchThread_PartialOnCancel(t *testing.T) {
	for _, allow := range []bool{true, false} {
		t.Run(fmt.Sprintf("allow=%v", allow), func(t *testing.T) {
			var batches [][]browser.Node
			for i := 0; i < 10; i++ {
				batches = append(batches, []browser.Node{article(fmt.Sprint(i+1), "alice", i, "")})
			}
			const stream = "https://video.twimg.com/ext_tw_video/7/pu/pl/b.m3u8"
			page := scripted(&browsertest.Page{
				OnNavigate: func(p *browsertest.Page, _ string) { p.Emit(stream) },
			}, batches...)
			f := newFixture(t, page)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			calls := 0
			f.scraper.collectorOpts = append(f.scraper.collectorOpts, collector.WithSleeper(func(ctx context.Context, _ time.Duration) error {
				calls++
				if calls == 3 {
					cancel()
				}
				return ctx.Err()
			}))

			res, err := f.scraper.FetchThread(ctx, threadURL, FetchOptions{AuthorOnly: true, AllowPartial: allow})
			if allow {
				require.NoError(t, err)
				assert.True(t, res.Partial)
				assert.Len(t, res.Tweets, 2)
				assert.Equal(t, []string{stream}, res.MediaStreams, "streams seen before the deadline are kept")
			} else {
				assert.True(t, models.HasCode(err, models.ErrCodeTimeout))
				assert.Nil(t, res)
			}
			assert.True(t, page.Closed())
			assert.Zero(t, page.Listeners())
		})
	}
}

func TestTrendingTopics(t *testing.T) {
	page := &browsertest.Page{Elements: map[string][]browser.Node{
		extract.Trend: {
			&browsertest.Node{InnerText: "Trending in Technology\n#golang\n5,123 posts"},
			&browsertest.Node{InnerText: "   "},
			&browsertest.Node{InnerText: "Breaking"},
			&browsertest.Node{InnerText: "Sports\nFinals"},
		},
	}}
	f := newFixture(t, page)

	trends, err := f.scraper.TrendingTopics(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, trends, 2, "limit applies before blank cells are skipped")
	assert.Equal(t, "#golang", trends[0].Title)
	assert.Equal(t, "Trending in Technology", trends[0].Category)
	assert.Equal(t, "5,123 posts", trends[0].Description)
	assert.Equal(t, "Breaking", trends[1].Title)
	assert.Equal(t, extract.DefaultTrendCategory, trends[1].Category)
	assert.False(t, trends[0].ScrapedAt.IsZero())
	assert.Equal(t, []string{"https://x.com/explore/tabs/trending"}, page.Navigated())
}

func TestTweetContent(t *testing.T) {
	photo := `<div data-testid="tweetPhoto"><img src="https://pbs.twimg.com/media/p.jpg"></div>`

	t.Run("stream preferred", func(t *testing.T) {
		page := &browsertest.Page{
			OnNavigate: func(p *browsertest.Page, _ string) {
				p.Emit("https://video.twimg.com/amplify_video/9/pl/320x180/v.m3u8")
				p.Emit("https://video.twimg.com/amplify_video/9/pl/1280x720/v.m3u8")
			},
			Elements: map[string][]browser.Node{extract.PostArticle: {
				article("8", "carol", 0, ""),
				article("9", "dave", 1, photo),
			}},
		}
		f := newFixture(t, page)

		c, err := f.scraper.TweetContent(context.Background(), "https://x.com/dave/status/9")
		require.NoError(t, err)
		assert.Equal(t, "text 9", c.Text)
		assert.Equal(t, "dave", c.Author)
		assert.Equal(t, "https://video.twimg.com/amplify_video/9/pl/320x180/v.m3u8", c.MediaURL)
		require.NotNil(t, c.Timestamp)
	})

	t.Run("photo fallback", func(t *testing.T) {
		page := &browsertest.Page{Elements: map[string][]browser.Node{
			extract.PostArticle: {article("9", "dave", 1, photo)},
		}}
		f := newFixture(t, page)

		c, err := f.scraper.TweetContent(context.Background(), "https://x.com/dave/status/9")
		require.NoError(t, err)
		assert.Equal(t, "https://pbs.twimg.com/media/p.jpg", c.MediaURL)
	})

	t.Run("nothing rendered", func(t *testing.T) {
		page := &browsertest.Page{Elements: map[string][]browser.Node{
			extract.PostArticle: {&browsertest.Node{OuterHTML: `<article></article>`}},
		}}
		f := newFixture(t, page)

		_, err := f.scraper.TweetContent(context.Background(), "https://x.com/dave/status/9")
		assert.True(t, models.HasCode(err, models.ErrCodeNotFound))
	})
}

func TestSearchTweets(t *testing.T) {
	page := &browsertest.Page{Elements: map[string][]browser.Node{
		extract.PostArticle: {
			article("1", "a", 0, ""),
			&browsertest.Node{OuterHTML: `<article>no link</article>`},
			article("1", "a", 0, ""),
			article("2", "b", 1, ""),
			article("3", "c", 2, ""),
		},
	}}
	f := newFixture(t, page)

	urls, err := f.scraper.SearchTweets(context.Background(), "go lang", 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://x.com/a/status/1", "https://x.com/b/status/2"}, urls)
	assert.Equal(t, []string{"https://x.com/search?f=live&q=go+lang&src=trend_click"}, page.Navigated())
}

func TestSearchTweets_NoResults(t *testing.T) {
	page := &browsertest.Page{Missing: map[string]bool{extract.PostArticle: true}}
	f := newFixture(t, page)

	urls, err := f.scraper.SearchTweets(context.Background(), "nothing", 5)
	require.NoError(t, err)
	assert.NotNil(t, urls)
	assert.Empty(t, urls)
}

func TestSearchTweets_EmptyTopic(t *testing.T) {
	f := newFixture(t)

	_, err := f.scraper.SearchTweets(context.Background(), "  ", 5)
	assert.True(t, models.HasCode(err, models.ErrCodeInvalidInput))
}
