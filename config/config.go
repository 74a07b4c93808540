package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Session   SessionConfig   `yaml:"session"`
	Collector CollectorConfig `yaml:"collector"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Store     StoreConfig     `yaml:"store"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the scraping browser runs headless.
	// Interactive login always opens a visible window regardless.
	Headless bool `yaml:"headless"` // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int `yaml:"max_pages"` // default: 4

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string `yaml:"proxy"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"bin"`

	// UserAgent overrides the browser user agent. Empty keeps Chromium's.
	UserAgent string `yaml:"user_agent"`

	// ViewportWidth and ViewportHeight set the emulated window size.
	ViewportWidth  int `yaml:"viewport_width"`  // default: 1920
	ViewportHeight int `yaml:"viewport_height"` // default: 1080

	// BlockedResourceTypes lists resource types to block.
	// default: ["Font"]
	BlockedResourceTypes []string `yaml:"blocked_resources"`

	// BlockAds drops requests to known ad and tracking hosts.
	BlockAds bool `yaml:"block_ads"` // default: true
}

// SessionConfig controls session persistence and the login probe.
type SessionConfig struct {
	// StatePath is the fixed location of the persisted session artifact.
	StatePath string `yaml:"state_path"` // default: "data/session/storage_state.json"

	// BaseURL is the site origin.
	BaseURL string `yaml:"base_url"` // default: "https://x.com"

	// ProbePath is an authenticated-only view used to validate a session.
	ProbePath string `yaml:"probe_path"` // default: "/home"

	// LoginPath is where interactive login starts.
	LoginPath string `yaml:"login_path"` // default: "/login"

	// MarkerSelector only renders for logged-in users.
	MarkerSelector string `yaml:"marker_selector"` // default: [data-testid="primaryColumn"]

	// ProbeTimeout bounds the wait for MarkerSelector.
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // default: 10s
}

// CollectorConfig controls the thread scroll loop.
type CollectorConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`   // default: 50
	IdleThreshold int           `yaml:"idle_threshold"` // default: 5
	MinScroll     int           `yaml:"min_scroll"`     // default: 600 (px)
	MaxScroll     int           `yaml:"max_scroll"`     // default: 1200 (px)
	MinDelay      time.Duration `yaml:"min_delay"`      // default: 1.5s
	MaxDelay      time.Duration `yaml:"max_delay"`      // default: 3.5s

	// WaitTimeout bounds every required element wait.
	WaitTimeout time.Duration `yaml:"wait_timeout"` // default: 15s

	// Seed fixes the scroll/delay RNG. 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// ScraperConfig controls the one-shot extractors and page navigation.
type ScraperConfig struct {
	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"` // default: 30s

	// MaxTimeout caps any client-supplied request timeout.
	MaxTimeout time.Duration `yaml:"max_timeout"` // default: 600s

	// SettleDelay is the pause after navigation on single-page extractions,
	// giving media requests time to show up on the network.
	SettleDelay time.Duration `yaml:"settle_delay"` // default: 2s

	// MediaPatterns are substrings marking a network URL as a media stream.
	MediaPatterns []string `yaml:"media_patterns"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"rps"` // default: 1

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 3
}

// CacheConfig controls the thread result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int `yaml:"max_entries"` // default: 500
}

// StoreConfig controls the async job store.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"` // default: "data/threadgrab.db"

	// JobTTL is how long finished jobs are kept.
	JobTTL time.Duration `yaml:"job_ttl"` // default: 24h
}

// WebhookConfig controls webhook delivery.
type WebhookConfig struct {
	Timeout time.Duration `yaml:"timeout"` // default: 10s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "release"},
		Browser: BrowserConfig{
			Headless:             true,
			MaxPages:             4,
			ViewportWidth:        1920,
			ViewportHeight:       1080,
			BlockedResourceTypes: []string{"Font"},
			BlockAds:             true,
		},
		Session: SessionConfig{
			StatePath:      "data/session/storage_state.json",
			BaseURL:        "https://x.com",
			ProbePath:      "/home",
			LoginPath:      "/login",
			MarkerSelector: `[data-testid="primaryColumn"]`,
			ProbeTimeout:   10 * time.Second,
		},
		Collector: CollectorConfig{
			MaxAttempts:   50,
			IdleThreshold: 5,
			MinScroll:     600,
			MaxScroll:     1200,
			MinDelay:      1500 * time.Millisecond,
			MaxDelay:      3500 * time.Millisecond,
			WaitTimeout:   15 * time.Second,
		},
		Scraper: ScraperConfig{
			NavigationTimeout: 30 * time.Second,
			MaxTimeout:        600 * time.Second,
			SettleDelay:       2 * time.Second,
			MediaPatterns: []string{
				".m3u8", ".mpd", "video.twimg.com", "/ext_tw_video/", "/amplify_video/", "/tweet_video/",
			},
		},
		Auth:      AuthConfig{Enabled: true},
		RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 3},
		Cache:     CacheConfig{MaxEntries: 500},
		Store:     StoreConfig{Path: "data/threadgrab.db", JobTTL: 24 * time.Hour},
		Webhook:   WebhookConfig{Timeout: 10 * time.Second},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return applyEnv(Defaults())
}

// LoadFile reads a YAML configuration file on top of the defaults, then
// applies environment variables, which always win.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

func applyEnv(c *Config) *Config {
	c.Server.Host = envOr("THREADGRAB_HOST", c.Server.Host)
	c.Server.Port = envIntOr("THREADGRAB_PORT", c.Server.Port)
	c.Server.Mode = envOr("THREADGRAB_MODE", c.Server.Mode)

	c.Browser.Headless = envBoolOr("THREADGRAB_HEADLESS", c.Browser.Headless)
	c.Browser.MaxPages = envIntOr("THREADGRAB_MAX_PAGES", c.Browser.MaxPages)
	c.Browser.DefaultProxy = envOr("THREADGRAB_PROXY", c.Browser.DefaultProxy)
	c.Browser.NoSandbox = envBoolOr("THREADGRAB_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("THREADGRAB_BROWSER_BIN", c.Browser.BrowserBin)
	c.Browser.UserAgent = envOr("THREADGRAB_USER_AGENT", c.Browser.UserAgent)
	c.Browser.ViewportWidth = envIntOr("THREADGRAB_VIEWPORT_WIDTH", c.Browser.ViewportWidth)
	c.Browser.ViewportHeight = envIntOr("THREADGRAB_VIEWPORT_HEIGHT", c.Browser.ViewportHeight)
	c.Browser.BlockedResourceTypes = envSliceOr("THREADGRAB_BLOCKED_RESOURCES", c.Browser.BlockedResourceTypes)
	c.Browser.BlockAds = envBoolOr("THREADGRAB_BLOCK_ADS", c.Browser.BlockAds)

	c.Session.StatePath = envOr("THREADGRAB_SESSION_PATH", c.Session.StatePath)
	c.Session.BaseURL = envOr("THREADGRAB_BASE_URL", c.Session.BaseURL)
	c.Session.ProbePath = envOr("THREADGRAB_PROBE_PATH", c.Session.ProbePath)
	c.Session.LoginPath = envOr("THREADGRAB_LOGIN_PATH", c.Session.LoginPath)
	c.Session.MarkerSelector = envOr("THREADGRAB_MARKER_SELECTOR", c.Session.MarkerSelector)
	c.Session.ProbeTimeout = envDurationOr("THREADGRAB_PROBE_TIMEOUT", c.Session.ProbeTimeout)

	c.Collector.MaxAttempts = envIntOr("THREADGRAB_MAX_ATTEMPTS", c.Collector.MaxAttempts)
	c.Collector.IdleThreshold = envIntOr("THREADGRAB_IDLE_THRESHOLD", c.Collector.IdleThreshold)
	c.Collector.MinScroll = envIntOr("THREADGRAB_MIN_SCROLL", c.Collector.MinScroll)
	c.Collector.MaxScroll = envIntOr("THREADGRAB_MAX_SCROLL", c.Collector.MaxScroll)
	c.Collector.MinDelay = envDurationOr("THREADGRAB_MIN_DELAY", c.Collector.MinDelay)
	c.Collector.MaxDelay = envDurationOr("THREADGRAB_MAX_DELAY", c.Collector.MaxDelay)
	c.Collector.WaitTimeout = envDurationOr("THREADGRAB_WAIT_TIMEOUT", c.Collector.WaitTimeout)
	c.Collector.Seed = int64(envIntOr("THREADGRAB_SEED", int(c.Collector.Seed)))

	c.Scraper.NavigationTimeout = envDurationOr("THREADGRAB_NAV_TIMEOUT", c.Scraper.NavigationTimeout)
	c.Scraper.MaxTimeout = envDurationOr("THREADGRAB_MAX_TIMEOUT", c.Scraper.MaxTimeout)
	c.Scraper.SettleDelay = envDurationOr("THREADGRAB_SETTLE_DELAY", c.Scraper.SettleDelay)
	c.Scraper.MediaPatterns = envSliceOr("THREADGRAB_MEDIA_PATTERNS", c.Scraper.MediaPatterns)

	c.Auth.Enabled = envBoolOr("THREADGRAB_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("THREADGRAB_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("THREADGRAB_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("THREADGRAB_RATE_BURST", c.RateLimit.Burst)

	c.Cache.MaxEntries = envIntOr("THREADGRAB_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)

	c.Store.Path = envOr("THREADGRAB_STORE_PATH", c.Store.Path)
	c.Store.JobTTL = envDurationOr("THREADGRAB_JOB_TTL", c.Store.JobTTL)

	c.Webhook.Timeout = envDurationOr("THREADGRAB_WEBHOOK_TIMEOUT", c.Webhook.Timeout)

	c.Log.Level = envOr("THREADGRAB_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("THREADGRAB_LOG_FORMAT", c.Log.Format)
	return c
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
