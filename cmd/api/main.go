package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/qonfido/fundrag/internal/adapters/http"
	"github.com/qonfido/fundrag/internal/bootstrap"
	"github.com/qonfido/fundrag/internal/config"
	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/observability/logging"
	"github.com/qonfido/fundrag/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.Close()

	// The index builds in the background so the server can come up and
	// report readiness honestly while embedding runs.
	go func() {
		if err := app.Lifecycle.Initialize(ctx); err != nil {
			logger.Error("index_initialize_failed", slog.Any("error", err))
		}
	}()

	// Snapshot announcements from the indexer worker: attach the freshly
	// persisted collection without re-embedding. The subscribe blocks until
	// shutdown, so it runs beside the server rather than ahead of it.
	go func() {
		if err := app.Queue.SubscribeIndexReady(ctx, func(ctx context.Context, event domain.IndexReadyEvent) error {
			logger.Info("index_ready_received",
				slog.String("request_id", event.RequestID),
				slog.String("fingerprint", event.Fingerprint),
				slog.Int("documents", event.Documents),
			)
			return app.Lifecycle.Reinitialize(ctx, false)
		}); err != nil {
			logger.Warn("index_ready_subscribe_failed", slog.Any("error", err))
		}
	}()

	router := httpadapter.NewRouter(
		app.Query,
		app.Lifecycle,
		app.Funds,
		app.QueryLog,
		app.Queue,
		metrics.NewHTTPServerMetrics("api"),
		logger,
		httpadapter.Options{
			Service:        "api",
			RateLimitRPS:   cfg.APIRateLimitRPS,
			RateLimitBurst: cfg.APIRateLimitBurst,
			MaxConcurrent:  cfg.APIMaxConcurrent,
			QueueWait:      cfg.APIQueueWait,
		},
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", slog.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api_server_failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", slog.Any("error", err))
	}
}
