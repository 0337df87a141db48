// Package config loads process configuration from environment variables and
// an optional .env file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultUserAgent    = "cfc-transfer-bot/1.0"
	DefaultSubreddit    = "chelseafc"
	DefaultFlairs       = "Tier 1,Tier 2"
	DefaultSeenFile     = "seen_submissions.json"
	DefaultPollInterval = 30 * time.Second
	DefaultCatchupLimit = 25
	DefaultBackoffBase  = 30 * time.Second
	DefaultBackoffCap   = 5 * time.Minute
	DefaultSendDelay    = 2 * time.Second
	DefaultFlushEvery   = 10
	DefaultLogLevel     = "info"
)

// Config holds everything the relay needs. Credentials and the webhook URL
// are required; everything else has a sane default.
type Config struct {
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
	Subreddit          string

	DiscordWebhookURL string

	// Exactly two flair values, matched case-sensitively.
	TargetFlairs [2]string

	SeenFile     string
	PollInterval time.Duration
	CatchupLimit int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	SendDelay    time.Duration
	FlushEvery   int
	LogLevel     string
}

// Load reads configuration from environment variables, consulting a .env
// file first when present. godotenv never overrides variables already set in
// the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.RedditClientID = os.Getenv("REDDIT_CLIENT_ID")
	if cfg.RedditClientID == "" {
		return nil, fmt.Errorf("REDDIT_CLIENT_ID is not set")
	}

	cfg.RedditClientSecret = os.Getenv("REDDIT_CLIENT_SECRET")
	if cfg.RedditClientSecret == "" {
		return nil, fmt.Errorf("REDDIT_CLIENT_SECRET is not set")
	}

	cfg.DiscordWebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	if cfg.DiscordWebhookURL == "" {
		return nil, fmt.Errorf("DISCORD_WEBHOOK_URL is not set")
	}
	if u, parseErr := url.Parse(cfg.DiscordWebhookURL); parseErr != nil ||
		(u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid DISCORD_WEBHOOK_URL: %q", cfg.DiscordWebhookURL)
	}

	cfg.RedditUserAgent = envOrDefault("REDDIT_USER_AGENT", DefaultUserAgent)
	cfg.Subreddit = envOrDefault("SUBREDDIT", DefaultSubreddit)
	cfg.SeenFile = envOrDefault("SEEN_FILE", DefaultSeenFile)
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", DefaultLogLevel))

	cfg.TargetFlairs, err = parseFlairs(envOrDefault("TARGET_FLAIRS", DefaultFlairs))
	if err != nil {
		return nil, err
	}

	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", DefaultPollInterval, false); err != nil {
		return nil, err
	}
	if cfg.BackoffBase, err = durationEnv("BACKOFF_BASE", DefaultBackoffBase, false); err != nil {
		return nil, err
	}
	if cfg.BackoffCap, err = durationEnv("BACKOFF_CAP", DefaultBackoffCap, false); err != nil {
		return nil, err
	}
	// Zero disables the inter-send pause.
	if cfg.SendDelay, err = durationEnv("SEND_DELAY", DefaultSendDelay, true); err != nil {
		return nil, err
	}
	if cfg.CatchupLimit, err = intEnv("CATCHUP_LIMIT", DefaultCatchupLimit, false); err != nil {
		return nil, err
	}
	// Zero disables the periodic flush; shutdown still flushes.
	if cfg.FlushEvery, err = intEnv("FLUSH_EVERY", DefaultFlushEvery, true); err != nil {
		return nil, err
	}

	if cfg.BackoffCap < cfg.BackoffBase {
		return nil, fmt.Errorf("BACKOFF_CAP %s is below BACKOFF_BASE %s", cfg.BackoffCap, cfg.BackoffBase)
	}

	return cfg, nil
}

// parseFlairs splits a comma-separated allow-list. The filter contract is an
// exact two-value match, so anything else is a configuration error.
func parseFlairs(raw string) ([2]string, error) {
	var flairs [2]string

	var kept []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	if len(kept) != 2 {
		return flairs, fmt.Errorf("TARGET_FLAIRS must hold exactly two comma-separated values, got %q", raw)
	}

	flairs[0], flairs[1] = kept[0], kept[1]
	return flairs, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration, allowZero bool) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, d)
	}
	if d == 0 && !allowZero {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func intEnv(key string, fallback int, allowZero bool) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, n)
	}
	if n == 0 && !allowZero {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
