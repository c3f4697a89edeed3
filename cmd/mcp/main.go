package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/dataroom-sorter/internal/adapters/mcpserver"
	"github.com/kirillkom/dataroom-sorter/internal/bootstrap"
	"github.com/kirillkom/dataroom-sorter/internal/config"
	"github.com/kirillkom/dataroom-sorter/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol
	logger := logging.NewJSONLoggerTo(os.Stderr, "sorter-mcp", cfg.LogLevel)
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "sorter-mcp", logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	srv := mcpserver.New(app.Processor, app.Taxonomy, cfg.InputDir, logger)
	if err := srv.Serve(); err != nil {
		logger.Error("mcp.serve_failed", "error", err)
	}
}
