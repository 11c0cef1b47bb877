package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Harvest HarvestConfig
	Session SessionConfig
	Fetch   FetchConfig
	Browser BrowserConfig
	Log     LogConfig
}

// HarvestConfig controls retry, pacing, and collection bounds.
//
// The upstream deployments disagree on several of these values (backoff
// exponent 2 vs. 3, session budget 15 vs. 20), so every threshold is
// configuration rather than a constant.
type HarvestConfig struct {
	// MinDelay is the minimum interval between requests on one identity.
	MinDelay time.Duration // default: 2s

	// MaxDelay is the upper bound of the randomized request interval.
	MaxDelay time.Duration // default: 5s

	// MaxRetries bounds fetch attempts per URL.
	MaxRetries int // default: 4

	// BackoffBase is the exponent base for post-block backoff, in seconds.
	BackoffBase float64 // default: 2.0

	// JitterMin/JitterMax bound the uniform jitter added to each backoff.
	JitterMin time.Duration // default: 500ms
	JitterMax time.Duration // default: 1500ms

	// MaxReviews caps the number of reviews collected per product.
	MaxReviews int // default: 100

	// MaxResults caps search result extraction.
	MaxResults int // default: 10

	// BlockPhrases are lower-cased body substrings that mark a page as a
	// block/challenge interstitial.
	BlockPhrases []string

	// Seed seeds the shared random source. 0 means seed from wall clock.
	Seed int64
}

// SessionConfig controls identity templates and rotation.
type SessionConfig struct {
	// MaxRequestsPerSession is the per-identity request budget before a
	// rotation is forced.
	MaxRequestsPerSession int // default: 20

	// UserAgents is the pool of user-agent strings identities draw from.
	UserAgents []string

	// AcceptLanguages is the pool of Accept-Language values.
	AcceptLanguages []string
}

// FetchConfig controls the fetch transports.
type FetchConfig struct {
	// Engine selects the transport: "http" or "browser".
	Engine string // default: "http"

	// Timeout is the per-fetch deadline.
	Timeout time.Duration // default: 15s

	// Proxy is an optional proxy URL for the HTTP transport.
	Proxy string
}

// BrowserConfig controls the rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 4

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// Bin overrides the Chromium binary path.
	Bin string

	// Proxy is the default proxy URL for browser traffic.
	Proxy string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// DefaultBlockPhrases is the built-in block/challenge phrase list,
// overridable via HARVEST_BLOCK_PHRASES.
var DefaultBlockPhrases = []string{
	"captcha",
	"robot check",
	"access denied",
	"unusual traffic",
	"automated access",
	"security check",
	"are you a robot",
	"please verify",
	"enter the characters you see below",
}

// DefaultUserAgents is the built-in identity user-agent pool.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
}

// DefaultAcceptLanguages is the built-in Accept-Language pool.
var DefaultAcceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.8",
	"en-IN,en;q=0.9,hi;q=0.6",
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Harvest: HarvestConfig{
			MinDelay:     envDurationOr("HARVEST_MIN_DELAY", 2*time.Second),
			MaxDelay:     envDurationOr("HARVEST_MAX_DELAY", 5*time.Second),
			MaxRetries:   envIntOr("HARVEST_MAX_RETRIES", 4),
			BackoffBase:  envFloatOr("HARVEST_BACKOFF_BASE", 2.0),
			JitterMin:    envDurationOr("HARVEST_JITTER_MIN", 500*time.Millisecond),
			JitterMax:    envDurationOr("HARVEST_JITTER_MAX", 1500*time.Millisecond),
			MaxReviews:   envIntOr("HARVEST_MAX_REVIEWS", 100),
			MaxResults:   envIntOr("HARVEST_MAX_RESULTS", 10),
			BlockPhrases: envSliceOr("HARVEST_BLOCK_PHRASES", DefaultBlockPhrases),
			Seed:         int64(envIntOr("HARVEST_SEED", 0)),
		},
		Session: SessionConfig{
			MaxRequestsPerSession: envIntOr("HARVEST_SESSION_BUDGET", 20),
			UserAgents:            envSliceOr("HARVEST_USER_AGENTS", DefaultUserAgents),
			AcceptLanguages:       envSliceOr("HARVEST_ACCEPT_LANGUAGES", DefaultAcceptLanguages),
		},
		Fetch: FetchConfig{
			Engine:  envOr("HARVEST_FETCHER", "http"),
			Timeout: envDurationOr("HARVEST_FETCH_TIMEOUT", 15*time.Second),
			Proxy:   os.Getenv("HARVEST_PROXY"),
		},
		Browser: BrowserConfig{
			Headless:  envBoolOr("HARVEST_HEADLESS", true),
			MaxPages:  envIntOr("HARVEST_MAX_PAGES", 4),
			NoSandbox: envBoolOr("HARVEST_NO_SANDBOX", false),
			Bin:       os.Getenv("HARVEST_BROWSER_BIN"),
			Proxy:     os.Getenv("HARVEST_PROXY"),
		},
		Log: LogConfig{
			Level:  envOr("HARVEST_LOG_LEVEL", "info"),
			Format: envOr("HARVEST_LOG_FORMAT", "json"),
		},
	}
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
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
