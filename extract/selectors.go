package extract

import "github.com/andybalholm/cascadia"

// X DOM selectors. X changes its markup often; keep them all here.
const (
	PrimaryColumn = `[data-testid="primaryColumn"]`
	PostArticle   = `article[data-testid="tweet"]`
	Trend         = `[data-testid="trend"]`

	TweetText  = `[data-testid="tweetText"]`
	UserName   = `[data-testid="User-Name"]`
	Timestamp  = `time`
	StatusLink = `a[href*="/status/"]`
	TweetPhoto = `[data-testid="tweetPhoto"] img`
	Video      = `video`
)

// ExpandSelectors match affordances that are always safe to click.
var ExpandSelectors = []string{
	`button[data-testid="tweet-text-show-more-link"]`,
	`button[data-testid="showMoreReplies"]`,
}

// ExpandButton matches timeline cells acting as buttons. Only those whose
// text is one of ExpandLabels get clicked; the rest open other pages.
const ExpandButton = `[data-testid="cellInnerDiv"] [role="button"]`

var ExpandLabels = []string{
	"Show replies",
	"Show more replies",
	"Show additional replies, including those that may contain offensive content",
	"Show probable spam",
}

var (
	matchTweetText  = cascadia.MustCompile(TweetText)
	matchUserName   = cascadia.MustCompile(UserName)
	matchTimeAttr   = cascadia.MustCompile(`time[datetime]`)
	matchStatusLink = cascadia.MustCompile(StatusLink)
	matchPhoto      = cascadia.MustCompile(TweetPhoto)
	matchVideo      = cascadia.MustCompile(Video)
	matchSpan       = cascadia.MustCompile(`span`)
)
