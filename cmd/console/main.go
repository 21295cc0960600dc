package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/bootstrap"
	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/observability"
)

func main() {
	os.Exit(run(os.Stdin, os.Stdout, os.Stderr))
}

func run(stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	observability.InitLoggerTo(cfg.LogLevel, cfg.LogPretty, stderr)
	logger := observability.ForComponent("console")

	if err := observability.InitErrorReporting(cfg.SentryDSN, cfg.Environment, cfg.StrictDefects); err != nil {
		logger.Warn().Err(err).Msg("Error reporting disabled")
	}
	defer observability.FlushErrorReporting()

	logger.Info().
		Str("agent_url", cfg.AgentURL).
		Str("transcription_provider", cfg.TranscriptionProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Agent console starting")

	events := newTerminalEvents(stdout)
	app, err := bootstrap.Build(cfg, events)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build turn pipeline")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Start(ctx)
	server := startOpsServer(cfg, app, logger)

	code := newREPL(app.Pipeline, stdout).run(ctx, stdin)

	logger.Info().Msg("Shutting down console...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Ops listener forced to shutdown")
		}
		cancel()
	}
	if err := app.Close(); err != nil {
		logger.Warn().Err(err).Msg("Pipeline did not close cleanly")
	}
	logger.Info().Msg("Console exited")
	return code
}

// startOpsServer exposes /health, /ready and /metrics on METRICS_ADDR.
// An empty address disables the listener.
func startOpsServer(cfg *config.Config, app *bootstrap.App, logger zerolog.Logger) *http.Server {
	if cfg.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(app.ReadinessChecks))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("Ops listener started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Ops listener failed")
		}
	}()
	return server
}
