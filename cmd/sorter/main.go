package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/kirillkom/dataroom-sorter/internal/bootstrap"
	"github.com/kirillkom/dataroom-sorter/internal/config"
	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("sorter", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := cfg.InputDir
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	app, err := bootstrap.New(ctx, cfg, "sorter", logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	batch, err := app.Processor.ProcessDirectory(ctx, dir)
	printSummary(batch)

	if cfg.ReportPath != "" {
		if reportErr := app.Report.WriteBatch(context.WithoutCancel(ctx), cfg.ReportPath, batch); reportErr != nil {
			logger.Error("report.write_failed", "path", cfg.ReportPath, "error", reportErr)
		}
	}
	if err != nil {
		logger.Error("sorter.run_failed", "dir", dir, "error", err)
		app.Close()
		os.Exit(1)
	}
}

func printSummary(batch domain.BatchResult) {
	for _, r := range batch.Results {
		marker := ""
		if r.Assignment.Fallback() {
			marker = " [" + string(r.Assignment.Outcome) + "]"
		}
		fmt.Printf("%-40s -> %-20s %.2f%s\n", r.Document.Name, r.Category, r.Assignment.Confidence, marker)
	}
	for _, f := range batch.Failures {
		fmt.Printf("%-40s !! %s: %s\n", f.Document.Name, f.Stage, f.Message)
	}

	counts := batch.CountByCategory()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\nsorted %d, failed %d, skipped %d\n", len(batch.Results), len(batch.Failures), len(batch.Skipped))
	for _, name := range names {
		fmt.Printf("  %-20s %d\n", name, counts[name])
	}
}
