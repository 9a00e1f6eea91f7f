package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache TTLs are configured per namespace because the three kinds of
// upstream data change at very different rates: page content often,
// page metadata rarely, subpage structure almost never.
type Config struct {
	NotionAPIKey  string
	NotionVersion string
	NotionBaseURL string
	RootPageID    string

	ListenAddr string
	CacheDir   string
	SessionDB  string
	NoticePath string

	ContentTTL  time.Duration
	PagedataTTL time.Duration
	SubpagesTTL time.Duration
	ImagesTTL   time.Duration

	SweepMaxAge      time.Duration
	SweepProbability float64

	UpstreamTimeout time.Duration

	ContentPasswordHash string
	SessionTTL          time.Duration
	LockoutThreshold    int
	LockoutDuration     time.Duration

	ImageAllowHosts []string
}

const defaultNotionVersion = "2025-09-03"

func Load() Config {
	cfg := Config{
		NotionAPIKey:  os.Getenv("NOTION_API_KEY"),
		NotionVersion: envOr("NOTION_VERSION", defaultNotionVersion),
		NotionBaseURL: envOr("NOTION_BASE_URL", "https://api.notion.com"),
		RootPageID:    os.Getenv("NOTION_ROOT_PAGE_ID"),

		ListenAddr: envOr("GNOTION_LISTEN_ADDR", "127.0.0.1:8080"),
		CacheDir:   envOr("GNOTION_CACHE_DIR", "cache"),
		SessionDB:  envOr("GNOTION_SESSION_DB", "sessions.sqlite"),
		NoticePath: os.Getenv("GNOTION_NOTICE_PATH"),

		ContentPasswordHash: os.Getenv("GNOTION_CONTENT_PASSWORD_HASH"),
	}

	cfg.ContentTTL = parseDurationOr("GNOTION_CONTENT_TTL", time.Hour)
	cfg.PagedataTTL = parseDurationOr("GNOTION_PAGEDATA_TTL", 6*time.Hour)
	cfg.SubpagesTTL = parseDurationOr("GNOTION_SUBPAGES_TTL", 24*time.Hour)
	cfg.ImagesTTL = parseDurationOr("GNOTION_IMAGES_TTL", 7*24*time.Hour)

	cfg.SweepMaxAge = parseDurationOr("GNOTION_SWEEP_MAX_AGE", 7*24*time.Hour)
	cfg.SweepProbability = parseFloatOr("GNOTION_SWEEP_PROBABILITY", 0.01)

	cfg.UpstreamTimeout = parseDurationOr("GNOTION_UPSTREAM_TIMEOUT", 15*time.Second)

	cfg.SessionTTL = parseDurationOr("GNOTION_SESSION_TTL", 24*time.Hour)
	cfg.LockoutThreshold = parseIntOr("GNOTION_LOCKOUT_THRESHOLD", 5)
	cfg.LockoutDuration = parseDurationOr("GNOTION_LOCKOUT_DURATION", 10*time.Minute)

	cfg.ImageAllowHosts = parseListOr("GNOTION_IMAGE_ALLOW_HOSTS", []string{
		"prod-files-secure.s3.us-west-2.amazonaws.com",
		"www.notion.so",
		"s3.us-west-2.amazonaws.com",
		"s3-us-west-2.amazonaws.com",
		"images.unsplash.com",
		"lh3.googleusercontent.com",
	})
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func parseFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return fallback
}

func parseListOr(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
