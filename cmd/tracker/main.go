package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/driftline/constellation-tracker/internal/adapter/httpapi"
	kafkaadapter "github.com/driftline/constellation-tracker/internal/adapter/kafka"
	"github.com/driftline/constellation-tracker/internal/adapter/upstream"
	"github.com/driftline/constellation-tracker/internal/adapter/windcontext"
	"github.com/driftline/constellation-tracker/internal/config"
	"github.com/driftline/constellation-tracker/internal/domain"
	"github.com/driftline/constellation-tracker/internal/observability"
	"github.com/driftline/constellation-tracker/internal/pipeline"
	"github.com/driftline/constellation-tracker/internal/track"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	fetcher := upstream.NewClient(cfg, clock, metrics, logger)
	tracker := track.New(cfg.MatchRadiusKM)

	// Snapshot publishing (feature-flagged via KAFKA_ENABLED).
	var publisher pipeline.Publisher
	var closePublisher func() error
	if cfg.KafkaEnabled {
		kp := kafkaadapter.NewPublisher(cfg, logger)
		publisher = kp
		closePublisher = kp.Close
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	// Local context lookup (feature-flagged via WINDCTX_ENABLED).
	var contextSvc domain.ContextProvider
	if cfg.WindContextEnabled {
		client := windcontext.NewClient(cfg.WindContextBaseURL, cfg.WindContextTimeout, metrics, logger)
		contextSvc = windcontext.NewCachedProvider(client, cfg.WindContextCacheSize, metrics)
		logger.Info("local context lookup enabled", "cache_size", cfg.WindContextCacheSize, "timeout", cfg.WindContextTimeout)
	} else {
		logger.Info("local context lookup disabled")
	}

	p := pipeline.New(fetcher, tracker, publisher, clock,
		cfg.RequestedHoursAgo, cfg.PollInterval, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, p, contextSvc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start polling loop.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if closePublisher != nil {
		if err := closePublisher(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
