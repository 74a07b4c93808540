package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/threadgrab/models"
)

const base = "https://x.com"

const postHTML = `<article data-testid="tweet" role="article">
  <div data-testid="User-Name">
    <a href="/jack" role="link"><div><span><span>jack</span></span></div></a>
    <div>
      <a href="/jack" role="link"><span>@jack</span></a>
      <span>·</span>
      <a href="/jack/status/20" role="link"><time datetime="2006-03-21T20:50:14.000Z">Mar 21, 2006</time></a>
    </div>
  </div>
  <div data-testid="tweetText" lang="en"><span>just setting up my twttr</span><img alt="🐦" src="https://abs-0.twimg.com/emoji/v2/svg/1f426.svg"><br><span>second line</span></div>
  <div data-testid="tweetPhoto"><img alt="Image" src="https://pbs.twimg.com/media/abc.jpg?format=jpg&amp;name=small"></div>
  <div data-testid="videoPlayer"><video poster="https://pbs.twimg.com/ext_tw_video_thumb/1/pu/img/a.jpg" src="blob:https://x.com/1234"></video></div>
  <a href="/jack/status/20/analytics" role="link">Views</a>
</article>`

func TestParsePost(t *testing.T) {
	post, err := ParsePost(postHTML, base)
	require.NoError(t, err)

	assert.Equal(t, "20", post.ID)
	assert.Equal(t, "jack", post.AuthorHandle)
	assert.Equal(t, "jack", post.AuthorName)
	assert.Equal(t, "https://x.com/jack/status/20", post.Permalink)
	assert.Equal(t, "just setting up my twttr🐦\nsecond line", post.Text)

	require.NotNil(t, post.Timestamp)
	assert.True(t, post.Timestamp.Equal(time.Date(2006, 3, 21, 20, 50, 14, 0, time.UTC)))

	assert.Equal(t, []models.MediaReference{
		{Type: models.MediaPhoto, Src: "https://pbs.twimg.com/media/abc.jpg?format=jpg&name=small"},
		{Type: models.MediaVideo, Src: "https://pbs.twimg.com/ext_tw_video_thumb/1/pu/img/a.jpg"},
	}, post.Media)
}

func TestParsePost_PrefersTimeLinkOverQuotedPost(t *testing.T) {
	html := `<article data-testid="tweet">
  <div role="link"><a href="/other/status/999">quoted</a></div>
  <a href="/alice/status/123"><time datetime="2024-05-01T10:00:00Z">1h</time></a>
</article>`

	post, err := ParsePost(html, base)
	require.NoError(t, err)
	assert.Equal(t, "123", post.ID)
	assert.Equal(t, "alice", post.AuthorHandle, "handle falls back to the permalink path")
	assert.Empty(t, post.Media)
	assert.NotNil(t, post.Media)
}

const quoteOnlyHTML = `<article data-testid="tweet">
  <div data-testid="User-Name">
    <a href="/bob"><span>@bob</span></a>
    <a href="/bob/status/5"><time datetime="2024-05-01T10:00:00Z">1h</time></a>
  </div>
  <div>
    <div role="link" tabindex="0">
      <div data-testid="User-Name">
        <span>@q</span>
        <time datetime="2023-01-01T00:00:00Z">Jan 1</time>
      </div>
      <div data-testid="tweetText">quoted text</div>
      <div data-testid="tweetPhoto"><img src="https://pbs.twimg.com/media/q.jpg"></div>
    </div>
  </div>
</article>`

func TestParsePost_IgnoresQuoteCardContent(t *testing.T) {
	post, err := ParsePost(quoteOnlyHTML, base)
	require.NoError(t, err)

	assert.Equal(t, "5", post.ID)
	assert.Equal(t, "bob", post.AuthorHandle)
	assert.Empty(t, post.Text)
	assert.Empty(t, post.Media)
	assert.NotNil(t, post.Media)
	require.NotNil(t, post.Timestamp)
	assert.Equal(t, 2024, post.Timestamp.Year())
}

func TestParsePost_OwnContentBesideQuoteCard(t *testing.T) {
	html := `<article data-testid="tweet">
  <div data-testid="User-Name">
    <span>Alice</span><span>@alice</span>
    <a href="/alice/status/9"><time datetime="2024-05-01T10:00:00Z">1h</time></a>
  </div>
  <div>
    <div data-testid="tweetText">look at this</div>
    <div data-testid="tweetPhoto"><img src="https://pbs.twimg.com/media/mine.jpg"></div>
    <div role="link">
      <div data-testid="User-Name"><span>@q</span><a href="/q/status/1"><time datetime="2023-01-01T00:00:00Z">Jan 1</time></a></div>
      <div data-testid="tweetText">quoted text</div>
      <div data-testid="tweetPhoto"><img src="https://pbs.twimg.com/media/q.jpg"></div>
      <div data-testid="videoPlayer"><video poster="https://pbs.twimg.com/q_thumb.jpg"></video></div>
    </div>
  </div>
</article>`

	post, err := ParsePost(html, base)
	require.NoError(t, err)

	assert.Equal(t, "9", post.ID)
	assert.Equal(t, "https://x.com/alice/status/9", post.Permalink)
	assert.Equal(t, "alice", post.AuthorHandle)
	assert.Equal(t, "look at this", post.Text)
	assert.Equal(t, []models.MediaReference{
		{Type: models.MediaPhoto, Src: "https://pbs.twimg.com/media/mine.jpg"},
	}, post.Media)
}

func TestParsePost_QuoteCardWithoutLinkRole(t *testing.T) {
	html := `<article data-testid="tweet">
  <div data-testid="User-Name"><span>@bob</span><a href="/bob/status/5"><time datetime="2024-05-01T10:00:00Z">1h</time></a></div>
  <section>
    <div data-testid="User-Name"><span>@q</span></div>
    <div data-testid="tweetText">quoted text</div>
  </section>
</article>`

	post, err := ParsePost(html, base)
	require.NoError(t, err)
	assert.Equal(t, "5", post.ID)
	assert.Empty(t, post.Text)
}

func TestParsePost_MissingTimestamp(t *testing.T) {
	html := `<article data-testid="tweet"><a href="/bob/status/7">link</a><div data-testid="tweetText">hi</div></article>`

	post, err := ParsePost(html, base)
	require.NoError(t, err)
	assert.Nil(t, post.Timestamp)
	assert.Equal(t, "hi", post.Text)
}

func TestParsePost_SkipsInvalidElements(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"no links", `<article data-testid="tweet"><div data-testid="tweetText">ad</div></article>`},
		{"promoted without status", `<article data-testid="tweet"><a href="/i/ads">Promoted</a></article>`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePost(tt.html, base)
			assert.ErrorIs(t, err, ErrSkip)
		})
	}
}
