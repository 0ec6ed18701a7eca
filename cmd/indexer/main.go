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

	"github.com/qonfido/fundrag/internal/bootstrap"
	"github.com/qonfido/fundrag/internal/config"
	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/observability/logging"
	"github.com/qonfido/fundrag/internal/observability/metrics"
)

// The indexer owns snapshot rebuilds: it answers rebuild requests from the
// queue, re-embeds the corpus and announces the finished snapshot so API
// replicas can attach to it without embedding anything themselves.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.NewJSONLogger("indexer", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.Close()

	engineMetrics := metrics.NewEngineMetrics("indexer")

	rebuild := func(ctx context.Context, requestID string, force bool) error {
		started := time.Now()
		engineMetrics.StartRebuild()
		engineMetrics.SetLifecycleState(domain.IndexRebuilding)

		err := app.Lifecycle.Reinitialize(ctx, force)

		engineMetrics.FinishRebuild("indexer", time.Since(started), err)
		engineMetrics.SetLifecycleState(app.Lifecycle.State())
		engineMetrics.SetDocumentsIndexed(app.Lifecycle.DocumentCount())
		if err != nil {
			return err
		}

		event := domain.IndexReadyEvent{
			RequestID:   requestID,
			Fingerprint: app.Lifecycle.Fingerprint(),
			Documents:   app.Lifecycle.DocumentCount(),
		}
		if err := app.Queue.PublishIndexReady(ctx, event); err != nil {
			logger.Error("index_ready_publish_failed",
				slog.String("request_id", requestID),
				slog.Any("error", err),
			)
			return err
		}
		logger.Info("index_ready_published",
			slog.String("request_id", requestID),
			slog.String("fingerprint", event.Fingerprint),
			slog.Int("documents", event.Documents),
		)
		return nil
	}

	// Startup pass reuses a matching persisted snapshot when one exists.
	go func() {
		if err := rebuild(ctx, "startup", false); err != nil {
			logger.Error("startup_rebuild_failed", slog.Any("error", err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", engineMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	server := &http.Server{
		Addr:         ":" + cfg.IndexerMetricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("indexer_listening", slog.String("port", cfg.IndexerMetricsPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("indexer_metrics_server_failed", slog.Any("error", err))
			stop()
		}
	}()

	// The subscribe blocks until the signal context cancels, then drains.
	// It is the last call so the metrics server above is already serving.
	if err := app.Queue.SubscribeRebuildRequested(ctx, func(ctx context.Context, requestID string) error {
		logger.Info("rebuild_requested", slog.String("request_id", requestID))
		return rebuild(ctx, requestID, true)
	}); err != nil {
		logger.Error("rebuild_subscribe_failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("indexer_shutdown_failed", slog.Any("error", err))
	}
}
