package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/threadgrab/models"
	"github.com/use-agent/threadgrab/render"
	"github.com/use-agent/threadgrab/scraper"
)

var (
	threadAllAuthors   bool
	threadAllowPartial bool
	threadMaxAttempts  int
	threadTimeout      time.Duration
	threadFormat       string

	trendsLimit int
	searchLimit int
)

var threadCmd = &cobra.Command{
	Use:   "thread <url>",
	Short: "Collect the thread a post belongs to",
	Args:  cobra.ExactArgs(1),
	RunE:  threadAction,
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "List trending topics",
	Args:  cobra.NoArgs,
	RunE:  trendsAction,
}

var tweetCmd = &cobra.Command{
	Use:   "tweet <url>",
	Short: "Extract a single post",
	Args:  cobra.ExactArgs(1),
	RunE:  tweetAction,
}

var searchCmd = &cobra.Command{
	Use:   "search <topic>",
	Short: "List post URLs from live search results",
	Args:  cobra.ExactArgs(1),
	RunE:  searchAction,
}

func init() {
	threadCmd.Flags().BoolVar(&threadAllAuthors, "all-authors", false, "return every collected post instead of the author's run")
	threadCmd.Flags().BoolVar(&threadAllowPartial, "allow-partial", false, "print what was collected when the timeout hits")
	threadCmd.Flags().IntVar(&threadMaxAttempts, "max-attempts", 0, "scroll iteration cap (0 uses the configured value)")
	threadCmd.Flags().DurationVar(&threadTimeout, "timeout", 2*time.Minute, "overall fetch timeout")
	threadCmd.Flags().StringVar(&threadFormat, "format", "json", "output format: json, markdown")

	trendsCmd.Flags().IntVar(&trendsLimit, "limit", 10, "maximum number of trends")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "maximum number of URLs")

	rootCmd.AddCommand(threadCmd, trendsCmd, tweetCmd, searchCmd)
}

// withEngine runs fn against a freshly launched engine. A missing session
// is reported with a pointer to the login command.
func withEngine(fn func(eng *engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	err = fn(eng)
	if models.HasCode(err, models.ErrCodeLoginRequired) {
		return fmt.Errorf("no valid session, run 'threadgrab login' first: %w", err)
	}
	return err
}

func threadAction(cmd *cobra.Command, args []string) error {
	switch threadFormat {
	case "json", "markdown":
	default:
		return fmt.Errorf("unknown format %q (want json or markdown)", threadFormat)
	}

	return withEngine(func(eng *engine) error {
		opts := scraper.DefaultFetchOptions()
		opts.AuthorOnly = !threadAllAuthors
		opts.AllowPartial = threadAllowPartial
		opts.MaxAttempts = threadMaxAttempts
		opts.Timeout = threadTimeout

		result, err := eng.scraper.FetchThread(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		if threadFormat == "markdown" {
			md, err := render.Markdown(result)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), md)
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	})
}

func trendsAction(cmd *cobra.Command, _ []string) error {
	return withEngine(func(eng *engine) error {
		trends, err := eng.scraper.TrendingTopics(cmd.Context(), trendsLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), trends)
	})
}

func tweetAction(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine) error {
		tweet, err := eng.scraper.TweetContent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tweet)
	})
}

func searchAction(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine) error {
		urls, err := eng.scraper.SearchTweets(cmd.Context(), args[0], searchLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), urls)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
