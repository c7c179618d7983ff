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

	"plantbot/internal/agent"
	"plantbot/internal/channel"
	"plantbot/internal/config"
	"plantbot/internal/metrics"
	"plantbot/internal/profile"
	"plantbot/internal/provider"

	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long in-flight photos may take after a signal.
const shutdownTimeout = 60 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the Telegram bot",
		Long:  "Connects to Telegram, long-polls for messages and answers plant photos. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := config.RequireSecrets(cfg, true); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prof, err := profile.Load(cfg.General.ProfilePath, logger)
	if err != nil {
		return err
	}

	factory := provider.NewFactory(cfg, logger)
	vision, err := factory.Build(ctx, "")
	if err != nil {
		return fmt.Errorf("vision provider: %w", err)
	}
	if c, ok := vision.(io.Closer); ok {
		defer c.Close()
	}

	tg := channel.NewTelegram(channel.TelegramConfig{
		Token:         cfg.Telegram.Token,
		APIEndpoint:   cfg.Telegram.APIEndpoint,
		AllowFrom:     cfg.Telegram.AllowFrom,
		PollTimeout:   cfg.Telegram.PollTimeout,
		MaxConcurrent: cfg.General.MaxConcurrentMessages,
		Debug:         cfg.Telegram.Debug,
		Logger:        logger,
	})
	if err := tg.Connect(); err != nil {
		return err
	}

	handler := channel.NewHandler(channel.HandlerConfig{
		Messenger: tg,
		Fetcher:   channel.NewPhotoFetcher(tg, factory.HTTPClient()),
		Identifier: agent.NewPipeline(agent.PipelineConfig{
			Provider: vision,
			Profile:  prof,
			Logger:   logger,
		}),
		Profile:   prof,
		ParseMode: cfg.Telegram.ParseMode,
		Logger:    logger,
	})

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetrics(cfg.Metrics)
	}

	logger.Info("plantbot started. Press Ctrl+C to stop.", "bot", tg.Username(), "provider", vision.Name())

	done := make(chan error, 1)
	go func() { done <- tg.Run(ctx, handler) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		logger.Info("shutting down, waiting for in-flight photos", "timeout", shutdownTimeout)
		select {
		case runErr = <-done:
		case <-time.After(shutdownTimeout):
			runErr = fmt.Errorf("shutdown timed out")
		}
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics listener shutdown", "err", err)
		}
	}

	if runErr != nil {
		logger.Error("shutdown", "err", runErr)
		return runErr
	}
	logger.Info("shutdown complete")
	return nil
}

func startMetrics(mc config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(mc.Endpoint, metrics.Collector.Handler())
	srv := &http.Server{
		Addr:              mc.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener", "err", err)
		}
	}()
	logger.Info("metrics listening", "addr", mc.Addr, "endpoint", mc.Endpoint)
	return srv
}
