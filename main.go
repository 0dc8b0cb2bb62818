// Command stitchbot is the main entrypoint for the video merger bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Wires the scratch store, session tracker, and ffmpeg merge pipeline.
//   - Starts the Telegram long-poll transport and the scratch retention sweeper.
//   - Exposes a minimal HTTP server with /healthz, /ping, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/stitchbot/bot"
	"github.com/onnwee/stitchbot/config"
	"github.com/onnwee/stitchbot/pipeline"
	"github.com/onnwee/stitchbot/server"
	"github.com/onnwee/stitchbot/session"
	"github.com/onnwee/stitchbot/storage"
	"github.com/onnwee/stitchbot/telemetry"
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
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("stitchbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Scratch storage
	store, err := storage.New(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open scratch storage", slog.Any("err", err))
		os.Exit(1)
	}

	// Core wiring: tracker, pipeline runner, orchestrator, transport
	tracker := session.NewTracker()
	runner := &pipeline.Runner{
		FFmpeg:  cfg.FFmpegPath,
		Timeout: cfg.MergeTimeout,
		Overlay: pipeline.Overlay{
			Text:     cfg.WatermarkText,
			TopText:  cfg.WatermarkTopText,
			FontFile: cfg.WatermarkFontFile,
			FontSize: cfg.WatermarkFontSize,
			Color:    cfg.WatermarkColor,
			Position: cfg.WatermarkPosition,
		},
	}
	orch := bot.NewOrchestrator(cfg, store, tracker, runner)
	transport, err := bot.NewTransport(cfg.TelegramBotToken, orch)
	if err != nil {
		slog.Error("telegram transport init failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go transport.Run(ctx)
	go storage.StartRetentionJob(ctx, store, storage.LoadRetentionPolicy(), tracker.TrackedPaths)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
