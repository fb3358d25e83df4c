package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/blakev/ksl-april/internal/bot"
	"github.com/blakev/ksl-april/internal/config"
	"github.com/blakev/ksl-april/internal/poller"
	"github.com/blakev/ksl-april/internal/render"
	"github.com/blakev/ksl-april/internal/scheduler"
	"github.com/blakev/ksl-april/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	renderClient := render.NewClient(cfg.BrowserPath, log)
	p := poller.New(store, sessionOpener{renderClient}, b, cfg, log)
	sched := scheduler.New(store, p, log)
	b.SetControl(sched)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting watcher", "live", cfg.Live)

	if err := sched.Start(ctx); err != nil {
		log.Error("start scheduler", "error", err)
		os.Exit(1)
	}

	b.Run(ctx)

	log.Info("watcher stopped")
}

// sessionOpener adapts the concrete render client to the poller's Renderer
// interface.
type sessionOpener struct {
	client *render.Client
}

func (o sessionOpener) Open(ctx context.Context) (poller.Session, error) {
	return o.client.Open(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
