package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/adapters/fswatch"
	httpadapter "github.com/kirillkom/dataroom-sorter/internal/adapters/http"
	"github.com/kirillkom/dataroom-sorter/internal/bootstrap"
	"github.com/kirillkom/dataroom-sorter/internal/config"
	"github.com/kirillkom/dataroom-sorter/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("sorter-worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "sorter-worker", logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if err := os.MkdirAll(cfg.InputDir, 0o755); err != nil {
		log.Fatalf("create input dir: %v", err)
	}

	router := httpadapter.NewRouter(app.Processor, app.Taxonomy, cfg.InputDir, app.Metrics.Handler(), logger)
	server := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("worker.http.listen", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker.http.failed", "error", err)
		}
	}()

	handle := func(handlerCtx context.Context, path string) error {
		_, err := app.Processor.ProcessOne(handlerCtx, path)
		return err
	}

	if app.Queue != nil && cfg.NATSRequestSubject != "" {
		go func() {
			logger.Info("worker.subscribe", "subject", cfg.NATSRequestSubject)
			if err := app.Queue.SubscribeSortRequests(ctx, cfg.NATSRequestSubject, handle); err != nil {
				logger.Error("worker.subscribe_failed", "subject", cfg.NATSRequestSubject, "error", err)
			}
		}()
	}

	watcher, err := fswatch.New(fswatch.Config{
		Dir:         cfg.InputDir,
		Debounce:    cfg.WatchDebounce,
		InitialScan: true,
	}, handle, logger)
	if err != nil {
		log.Fatalf("watcher init error: %v", err)
	}
	if err := watcher.Run(ctx); err != nil {
		logger.Error("worker.watch_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker.http.shutdown_failed", "error", err)
	}
}
