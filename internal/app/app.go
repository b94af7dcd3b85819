package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"perplexigo/internal/cli"
	"perplexigo/internal/config"
	"perplexigo/internal/session"
	"perplexigo/internal/storage"
	"perplexigo/internal/stream"
	"perplexigo/internal/transcript"
)

// App holds the assembled client: the durable backend, the rehydrated
// transcript, and the session controller bound to the stream endpoint.
type App struct {
	Config  *config.Config
	KV      storage.KV
	Store   *transcript.Store
	Session *session.Controller
}

// NewApp wires the dependency graph in order: storage backend, persistence
// bridge, transcript (seeded from the stored snapshot), stream client,
// controller.
func NewApp(cfg *config.Config) (*App, error) {
	kv, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage backend %q: %w", cfg.StorageBackend, err)
	}

	bridge := storage.NewSnapshotStore(kv)
	store := transcript.NewStore()
	store.Restore(bridge.Load(context.Background()))
	slog.Info("Transcript restored", "threads", len(store.Threads))

	client := stream.NewClient(cfg.APIBaseURL)
	controller := session.NewController(store, client, bridge)

	return &App{
		Config:  cfg,
		KV:      kv,
		Store:   store,
		Session: controller,
	}, nil
}

// Close releases the storage backend. Every restart begins idle with no
// open channel, so there is nothing else to tear down.
func (a *App) Close() error {
	return a.KV.Close()
}

// Run is the process entry point behind main.
func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)
	logConfigSource()

	app, err := NewApp(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("Failed to close storage backend", "error", err)
		}
	}()

	slog.Info("Client ready", "endpoint", cfg.APIBaseURL, "backend", cfg.StorageBackend)
	if err := cli.New(app.Session, os.Stdin, os.Stdout).Run(); err != nil {
		slog.Error("Client exited with error", "error", err)
		return 1
	}
	return 0
}

func openStorage(cfg *config.Config) (storage.KV, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		return storage.OpenSQLite(cfg.DatabasePath)
	case "pebble":
		return storage.OpenPebble(cfg.DatabasePath)
	case "redis":
		return storage.OpenRedis(context.Background(), cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Logs go to stderr; stdout belongs to the conversation.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
