package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"gnotion/internal/cache"
	"gnotion/internal/config"
	"gnotion/internal/notion"
	"gnotion/internal/session"
	"gnotion/internal/web"
)

func main() {
	_ = godotenv.Load()

	level := parseLogLevel(os.Getenv("GNOTION_LOG_LEVEL"))
	pretty := strings.EqualFold(os.Getenv("GNOTION_LOG_PRETTY"), "1") || strings.EqualFold(os.Getenv("GNOTION_LOG_PRETTY"), "true")
	var handler slog.Handler
	if pretty {
		handler = newPrettyHandler(os.Stdout, level)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))

	cfg := config.Load()
	if cfg.NotionAPIKey == "" {
		slog.Error("NOTION_API_KEY is required")
		os.Exit(1)
	}
	if cfg.RootPageID == "" {
		slog.Error("NOTION_ROOT_PAGE_ID is required")
		os.Exit(1)
	}

	fc, err := cache.New(cfg.CacheDir, map[cache.Namespace]time.Duration{
		cache.NSContent:  cfg.ContentTTL,
		cache.NSPagedata: cfg.PagedataTTL,
		cache.NSSubpages: cfg.SubpagesTTL,
		cache.NSImages:   cfg.ImagesTTL,
	})
	if err != nil {
		slog.Error("open cache", "dir", cfg.CacheDir, "err", err)
		os.Exit(1)
	}

	sweepStop := make(chan struct{})
	defer close(sweepStop)
	go cache.NewSweeper(fc, cfg.SweepMaxAge, cfg.SweepProbability).Every(6*time.Hour, sweepStop)

	sessions, err := session.Open(cfg.SessionDB, cfg.LockoutThreshold, cfg.LockoutDuration)
	if err != nil {
		slog.Error("open session db", "path", cfg.SessionDB, "err", err)
		os.Exit(1)
	}
	defer sessions.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sessions.Init(ctx); err != nil {
		cancel()
		slog.Error("init session db", "err", err)
		os.Exit(1)
	}
	cancel()
	startSessionPurge(sessions, cfg.SessionTTL)

	client := notion.NewClient(cfg.NotionBaseURL, cfg.NotionAPIKey, cfg.NotionVersion, cfg.UpstreamTimeout, fc)

	srv, err := web.NewServer(cfg, client, sessions, fc)
	if err != nil {
		slog.Error("server init", "err", err)
		os.Exit(1)
	}
	slog.Info("listening", "addr", cfg.ListenAddr, "root_page", cfg.RootPageID)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Handler()); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// startSessionPurge drops sessions idle longer than maxIdle on an
// hourly cadence. Expired lockouts clear themselves on read, so the
// purge only bounds table growth.
func startSessionPurge(sessions *session.Store, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	go func() {
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			purged, err := sessions.Purge(ctx, maxIdle)
			cancel()
			if err != nil {
				slog.Warn("session purge failed", "err", err)
				continue
			}
			if purged > 0 {
				slog.Info("session purge", "purged", purged)
			}
		}
	}()
}

func parseLogLevel(raw string) slog.Leveler {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}
	return level
}

type prettyHandler struct {
	w            io.Writer
	level        slog.Leveler
	colorEnabled bool
	attrs        []slog.Attr
	groups       []string
}

func newPrettyHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return &prettyHandler{
		w:            w,
		level:        level,
		colorEnabled: isTerminalWriter(w),
	}
}

func (h *prettyHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteString(" ")
	b.WriteString(colorizeLevel(r.Level, h.colorEnabled))
	b.WriteString(" ")
	b.WriteString(r.Message)
	for _, attr := range h.attrs {
		h.writeAttr(&b, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		h.writeAttr(&b, attr)
		return true
	})
	b.WriteString("\n")
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &prettyHandler{
		w:            h.w,
		level:        h.level,
		colorEnabled: h.colorEnabled,
		attrs:        append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups:       append([]string{}, h.groups...),
	}
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &prettyHandler{
		w:            h.w,
		level:        h.level,
		colorEnabled: h.colorEnabled,
		attrs:        append([]slog.Attr{}, h.attrs...),
		groups:       append(append([]string{}, h.groups...), name),
	}
}

func (h *prettyHandler) writeAttr(b *strings.Builder, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := attr.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(attr.Value.String())
}

const (
	colorReset = "\x1b[0m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

func colorizeLevel(level slog.Level, enabled bool) string {
	label := level.String()
	if !enabled {
		return label
	}
	switch {
	case level <= slog.LevelDebug:
		return colorDebug + label + colorReset
	case level < slog.LevelWarn:
		return colorInfo + label + colorReset
	case level < slog.LevelError:
		return colorWarn + label + colorReset
	default:
		return colorError + label + colorReset
	}
}

func isTerminalWriter(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}
