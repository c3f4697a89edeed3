package xlsx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

const (
	sheetSummary  = "Summary"
	sheetResults  = "Results"
	sheetFailures = "Failures"
	sheetSkipped  = "Skipped"
)

// Writer renders a batch run into an XLSX workbook.
type Writer struct {
	logger *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

func (w *Writer) WriteBatch(ctx context.Context, path string, batch domain.BatchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	data, err := w.Render(batch)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	w.logger.Info("report.xlsx.ok",
		"run_id", batch.RunID,
		"path", path,
		"results", len(batch.Results),
		"failures", len(batch.Failures),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Render returns the workbook bytes for batch.
func (w *Writer) Render(batch domain.BatchResult) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			w.logger.Warn("report.xlsx.close_failed", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetResults, sheetFailures, sheetSkipped} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	writeSummary(f, batch)
	writeResults(f, batch.Results)
	writeFailures(f, batch.Failures)
	writeSkipped(f, batch.Skipped)

	if index, _ := f.GetSheetIndex(sheetResults); index >= 0 {
		f.SetActiveSheet(index)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func writeSummary(f *excelize.File, batch domain.BatchResult) {
	writeRow(f, sheetSummary, 1, "Run ID", batch.RunID)
	writeRow(f, sheetSummary, 2, "Directory", batch.Directory)
	writeRow(f, sheetSummary, 3, "Started", batch.StartedAt.UTC().Format(time.RFC3339))
	writeRow(f, sheetSummary, 4, "Finished", batch.FinishedAt.UTC().Format(time.RFC3339))
	writeRow(f, sheetSummary, 5, "Filed", len(batch.Results))
	writeRow(f, sheetSummary, 6, "Failed", len(batch.Failures))
	writeRow(f, sheetSummary, 7, "Skipped", len(batch.Skipped))

	writeRow(f, sheetSummary, 9, "Category", "Documents")
	counts := batch.CountByCategory()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		writeRow(f, sheetSummary, 10+i, name, counts[name])
	}
	_ = f.SetColWidth(sheetSummary, "A", "A", 20)
	_ = f.SetColWidth(sheetSummary, "B", "B", 40)
}

func writeResults(f *excelize.File, results []domain.ProcessingResult) {
	writeRow(f, sheetResults, 1,
		"File", "Type", "Category ID", "Category", "Confidence", "Outcome",
		"Explanation", "Method", "Pages", "Destination", "Warnings", "Duration (ms)",
	)
	for i, r := range results {
		writeRow(f, sheetResults, i+2,
			r.Document.Name,
			string(r.Document.Type),
			r.Assignment.CategoryID,
			r.Category,
			r.Assignment.Confidence,
			string(r.Assignment.Outcome),
			truncate(r.Assignment.Explanation, 240),
			string(r.Extraction.Method),
			r.Extraction.Pages,
			r.Destination,
			strings.Join(r.Warnings, "; "),
			r.Duration.Milliseconds(),
		)
	}
	_ = f.SetColWidth(sheetResults, "A", "A", 32)
	_ = f.SetColWidth(sheetResults, "D", "D", 22)
	_ = f.SetColWidth(sheetResults, "G", "G", 60)
	_ = f.SetColWidth(sheetResults, "J", "J", 60)
}

func writeFailures(f *excelize.File, failures []domain.DocumentFailure) {
	writeRow(f, sheetFailures, 1, "File", "Path", "Stage", "Error")
	for i, failure := range failures {
		writeRow(f, sheetFailures, i+2, failure.Document.Name, failure.Document.Path, string(failure.Stage), failure.Message)
	}
	_ = f.SetColWidth(sheetFailures, "A", "B", 40)
	_ = f.SetColWidth(sheetFailures, "D", "D", 80)
}

func writeSkipped(f *excelize.File, skipped []string) {
	writeRow(f, sheetSkipped, 1, "Path")
	for i, path := range skipped {
		writeRow(f, sheetSkipped, i+2, path)
	}
	_ = f.SetColWidth(sheetSkipped, "A", "A", 80)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
