// Command threadgrab runs the thread collection engine as a REST service or
// as one-shot commands against X.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/threadgrab/browser"
	"github.com/use-agent/threadgrab/config"
	"github.com/use-agent/threadgrab/scraper"
	"github.com/use-agent/threadgrab/session"
)

// Version is set via ldflags at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "threadgrab",
	Short:         "Collect X threads through a logged-in browser session",
	Long:          "threadgrab drives a stealth Chromium session to collect X threads, trending topics, single posts and search results, either over a REST API or from the command line.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		initLogger(cfg.Log)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("threadgrab %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("THREADGRAB_CONFIG"), "YAML config file (environment variables still win)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config when given, the environment otherwise.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load(), nil
	}
	return config.LoadFile(configPath)
}

// engine bundles the long-lived pieces every command needs.
type engine struct {
	browser  *browser.Browser
	sessions *session.Manager
	scraper  *scraper.Scraper
}

// newEngine launches the browser and wires the session manager and scraper.
func newEngine(cfg *config.Config) (*engine, error) {
	b, err := browser.Launch(cfg.Browser)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	sessions := session.NewManager(b, cfg.Session, slog.Default())
	return &engine{
		browser:  b,
		sessions: sessions,
		scraper:  scraper.New(b, sessions, cfg),
	}, nil
}

// Close abandons any pending login, drains the page pool and kills Chrome.
func (e *engine) Close() {
	e.scraper.Close()
	e.browser.Close()
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	// Logs go to stderr so one-shot commands can pipe their output.
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
