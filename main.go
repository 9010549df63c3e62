// Command livesync is the Rastaflix live-status backend.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the Twitch reconcile job (safety net for lost webhook deliveries).
//   - Exposes the HTTP API: /webhooks/twitch, /live-status, /check-kick-status,
//     /healthz, /readyz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rastaflix/livesync/config"
	"github.com/rastaflix/livesync/db"
	"github.com/rastaflix/livesync/reconcile"
	"github.com/rastaflix/livesync/server"
	"github.com/rastaflix/livesync/telemetry"
	"github.com/rastaflix/livesync/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	newHandler := func(w io.Writer) slog.Handler {
		if format == "json" {
			return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
		}
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	handler := newHandler(os.Stdout)
	// Optional rotating file sink alongside stdout (LOG_FILE=path enables it).
	if path := os.Getenv("LOG_FILE"); path != "" {
		rotator := &lumberjack.Logger{Filename: path, MaxSize: 50, MaxBackups: 3, MaxAge: 28}
		handler = slogmulti.Fanout(handler, newHandler(rotator))
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateWebhookReady(); err != nil {
		// The receiver refuses unsigned input at request time; warn early so a
		// misconfigured deployment is visible before the first delivery fails.
		slog.Warn("webhook ingestion not ready", slog.Any("err", err))
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("livesync", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations: versioned (golang-migrate, embedded) first, with the
	// legacy embedded-SQL path as fallback for deployments without a
	// schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to legacy embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Provision the tracked streamer row on first boot (no-op when it exists).
	if err := db.SeedStreamerStatus(context.Background(), database, cfg.StreamerTwitchUsername, cfg.StreamerKickUsername); err != nil {
		slog.Error("failed to provision streamer status row", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Reconcile job needs Helix app credentials; without them the webhook remains
	// the only Twitch source, matching the original behavior.
	if err := cfg.ValidateReconcileReady(); err == nil {
		helix := &twitchapi.HelixClient{
			TokenSource: twitchapi.NewAppTokenSource(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret),
			ClientID:    cfg.TwitchClientID,
		}
		go reconcile.StartTwitchReconcileJob(ctx, database, cfg, helix)
	} else {
		slog.Info("twitch reconcile job disabled (missing helix creds)")
	}

	// HTTP server
	go func() {
		if err := server.Start(ctx, database, cfg, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
