package intercept

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/threadgrab/browser/browsertest"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInterceptor_BuffersMatchingURLsInOrder(t *testing.T) {
	page := &browsertest.Page{}
	ic := New(nil, nil)

	ic.Start(page)
	page.Emit("https://x.com/i/api/graphql/TweetDetail")
	page.Emit("https://video.twimg.com/ext_tw_video/1/pu/pl/720x1280/a.m3u8")
	page.Emit("https://pbs.twimg.com/media/abc.jpg")
	page.Emit("https://video.twimg.com/ext_tw_video/1/pu/pl/720x1280/a.m3u8")
	page.Emit("https://cdn.example.com/live/master.MPD")
	got := ic.Stop()

	assert.Equal(t, []string{
		"https://video.twimg.com/ext_tw_video/1/pu/pl/720x1280/a.m3u8",
		"https://video.twimg.com/ext_tw_video/1/pu/pl/720x1280/a.m3u8",
		"https://cdn.example.com/live/master.MPD",
	}, got)
	assert.Zero(t, page.Listeners())
}

func TestInterceptor_StartResetsBetweenFetches(t *testing.T) {
	first := &browsertest.Page{}
	second := &browsertest.Page{}
	ic := New(nil, nil)

	ic.Start(first)
	first.Emit("https://video.twimg.com/tweet_video/one.mp4")
	ic.Start(second)
	assert.Zero(t, first.Listeners(), "restarting must detach the previous page")

	first.Emit("https://video.twimg.com/tweet_video/stale.mp4")
	second.Emit("https://video.twimg.com/tweet_video/two.mp4")

	assert.Equal(t, []string{"https://video.twimg.com/tweet_video/two.mp4"}, ic.Stop())
}

func TestInterceptor_StopWithoutStart(t *testing.T) {
	ic := New(nil, nil)
	assert.Empty(t, ic.Stop())
}

func TestInterceptor_SnapshotKeepsCapturing(t *testing.T) {
	page := &browsertest.Page{}
	ic := New([]string{"/AMPLIFY_VIDEO/"}, nil)

	ic.Start(page)
	page.Emit("https://video.twimg.com/amplify_video/1/vid/a.mp4")
	snap := ic.Snapshot()
	page.Emit("https://video.twimg.com/amplify_video/2/vid/b.mp4")

	assert.Equal(t, []string{"https://video.twimg.com/amplify_video/1/vid/a.mp4"}, snap)
	assert.Equal(t, 1, page.Listeners())
	assert.Len(t, ic.Stop(), 2)
}

func TestInterceptor_LogsThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	page := &browsertest.Page{}
	ic := New(nil, logger)

	ic.Start(page)
	page.Emit("https://video.twimg.com/tweet_video/a.mp4")
	page.Emit("https://pbs.twimg.com/media/abc.jpg")
	ic.Stop()

	assert.Contains(t, buf.String(), "intercepted media url")
	assert.Contains(t, buf.String(), "tweet_video/a.mp4")
	assert.NotContains(t, buf.String(), "abc.jpg")
}

func TestInterceptor_ConcurrentCallbacks(t *testing.T) {
	page := &browsertest.Page{}
	ic := New(nil, nil)
	ic.Start(page)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page.Emit("https://video.twimg.com/x.m3u8")
		}()
	}
	wg.Wait()

	require.Len(t, ic.Stop(), 50)
}

func TestBest(t *testing.T) {
	tests := []struct {
		name string
		urls []string
		want string
	}{
		{"empty", nil, ""},
		{"no manifest falls back to first", []string{
			"https://video.twimg.com/tweet_video/a.mp4",
			"https://video.twimg.com/tweet_video/b.mp4",
		}, "https://video.twimg.com/tweet_video/a.mp4"},
		{"greatest manifest wins", []string{
			"https://video.twimg.com/tweet_video/a.mp4",
			"https://video.twimg.com/pl/320x568/a.m3u8",
			"https://video.twimg.com/pl/720x1280/a.m3u8",
			"https://video.twimg.com/pl/480x852/a.m3u8",
		}, "https://video.twimg.com/pl/720x1280/a.m3u8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Best(tt.urls))
		})
	}
}
