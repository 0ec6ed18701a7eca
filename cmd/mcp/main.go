package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/qonfido/fundrag/internal/adapters/mcp"
	"github.com/qonfido/fundrag/internal/bootstrap"
	"github.com/qonfido/fundrag/internal/config"
	"github.com/qonfido/fundrag/internal/observability/logging"
)

// The MCP binary talks JSON-RPC on stdout, so all logging goes to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.NewStderrJSONLogger("mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.Close()

	// Tool calls fail with a not-ready error until this finishes; hosts
	// retry, so blocking startup on the full embed pass is not worth it.
	go func() {
		if err := app.Lifecycle.Initialize(ctx); err != nil {
			logger.Error("index_initialize_failed", slog.Any("error", err))
		}
	}()

	server := mcpadapter.NewServer(app.Query, app.Funds, app.Lifecycle, logger)
	logger.Info("mcp_serving_stdio")
	if err := server.Serve(); err != nil {
		logger.Error("mcp_server_failed", slog.Any("error", err))
		os.Exit(1)
	}
}
