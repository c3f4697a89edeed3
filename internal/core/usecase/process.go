package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/core/ports"
)

type ProcessConfig struct {
	Strategy    ExtractionStrategy
	Concurrency int
}

type ProcessOption func(*ProcessDocumentUseCase)

func WithJournal(journal ports.ResultJournal) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.journal = journal }
}

func WithEvents(events ports.EventPublisher) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.events = events }
}

func WithMetrics(metrics ports.PipelineMetrics) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.metrics = metrics }
}

type ProcessDocumentUseCase struct {
	extractor  ports.TextExtractor
	classifier ports.DocumentClassifier
	router     ports.DocumentRouter
	taxonomy   domain.Taxonomy
	cfg        ProcessConfig
	logger     *slog.Logger

	journal ports.ResultJournal
	events  ports.EventPublisher
	metrics ports.PipelineMetrics
}

func NewProcessDocumentUseCase(
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	router ports.DocumentRouter,
	taxonomy domain.Taxonomy,
	cfg ProcessConfig,
	logger *slog.Logger,
	opts ...ProcessOption,
) *ProcessDocumentUseCase {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	uc := &ProcessDocumentUseCase{
		extractor:  extractor,
		classifier: classifier,
		router:     router,
		taxonomy:   taxonomy,
		cfg:        cfg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessOne runs the full pipeline for a single file. A nil result always
// comes with an error; unsupported files never touch the destination tree.
func (uc *ProcessDocumentUseCase) ProcessOne(ctx context.Context, path string) (*domain.ProcessingResult, error) {
	runID := newRunID(ctx)
	result, err := uc.processDocument(ctx, runID, path)
	if err != nil {
		failure := uc.newFailure(runID, path, err)
		uc.recordFailure(ctx, failure)
		return nil, err
	}
	return result, nil
}

// ProcessDirectory processes every supported file directly under dir.
// Per-document failures are collected in the batch and never abort it.
func (uc *ProcessDocumentUseCase) ProcessDirectory(ctx context.Context, dir string) (domain.BatchResult, error) {
	batch := domain.BatchResult{
		RunID:     newRunID(ctx),
		Directory: dir,
		StartedAt: time.Now().UTC(),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return batch, fmt.Errorf("read input directory: %w", err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := domain.DetectType(entry.Name()); !ok {
			batch.Skipped = append(batch.Skipped, entry.Name())
			continue
		}
		candidates = append(candidates, filepath.Join(dir, entry.Name()))
	}

	uc.logger.Info("pipeline.run.start",
		"run_id", batch.RunID,
		"dir", dir,
		"candidates", len(candidates),
		"skipped", len(batch.Skipped),
		"concurrency", uc.cfg.Concurrency,
	)

	results := make([]*domain.ProcessingResult, len(candidates))
	failures := make([]*domain.DocumentFailure, len(candidates))

	var group errgroup.Group
	group.SetLimit(uc.cfg.Concurrency)
	for i, path := range candidates {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := uc.processDocument(ctx, batch.RunID, path)
			if err != nil {
				failure := uc.newFailure(batch.RunID, path, err)
				uc.recordFailure(ctx, failure)
				failures[i] = &failure
				return nil
			}
			results[i] = result
			return nil
		})
	}
	waitErr := group.Wait()

	for i := range candidates {
		if results[i] != nil {
			batch.Results = append(batch.Results, *results[i])
		}
		if failures[i] != nil {
			batch.Failures = append(batch.Failures, *failures[i])
		}
	}
	domain.SortResults(batch.Results)
	batch.FinishedAt = time.Now().UTC()

	uc.logger.Info("pipeline.run.finish",
		"run_id", batch.RunID,
		"results", len(batch.Results),
		"failures", len(batch.Failures),
		"skipped", len(batch.Skipped),
		"elapsed_ms", batch.FinishedAt.Sub(batch.StartedAt).Milliseconds(),
	)
	if waitErr != nil {
		return batch, fmt.Errorf("process directory: %w", waitErr)
	}
	return batch, nil
}

func (uc *ProcessDocumentUseCase) processDocument(ctx context.Context, runID, path string) (result *domain.ProcessingResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("pipeline.document.panic",
				"run_id", runID,
				"path", path,
				"panic", fmt.Sprint(r),
			)
			result = nil
			err = domain.WrapError(domain.ErrInternal, "process document", fmt.Errorf("panic: %v", r))
		}
	}()

	doc, err := domain.NewDocument(path)
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.StartDocument()
	}
	outcome := "failed"
	defer func() {
		if uc.metrics != nil {
			uc.metrics.FinishDocument(doc.Type, outcome, time.Since(start))
		}
	}()

	assignment, summary, warnings, err := uc.assign(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	destination, err := uc.router.Route(ctx, doc, assignment)
	if err != nil {
		return nil, err
	}
	category, _ := uc.taxonomy.Lookup(assignment.CategoryID)

	result = &domain.ProcessingResult{
		RunID:       runID,
		Document:    doc,
		Assignment:  assignment,
		Category:    category.Name,
		Destination: destination,
		Extraction:  summary,
		Warnings:    warnings,
		Duration:    time.Since(start),
		ProcessedAt: time.Now().UTC(),
	}
	outcome = "filed"
	if uc.metrics != nil {
		uc.metrics.ObserveAssignment(category.Name, assignment.Outcome)
	}
	uc.recordResult(ctx, *result)

	uc.logger.Info("pipeline.document.ok",
		"run_id", runID,
		"document", doc.Name,
		"category", category.Name,
		"confidence", assignment.Confidence,
		"outcome", string(assignment.Outcome),
		"elapsed_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func newRunID(ctx context.Context) string {
	if id, ok := domain.RunIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}

// assign extracts and classifies one document. Only context cancellation is
// returned as an error; every other failure degrades to an assignment.
func (uc *ProcessDocumentUseCase) assign(ctx context.Context, doc domain.Document) (domain.CategoryAssignment, domain.ExtractionSummary, []string, error) {
	var warnings []string

	if uc.cfg.Strategy == StrategyMultimodal && (doc.Type == domain.TypeImage || doc.Type == domain.TypePDF) {
		img, err := uc.extractor.FirstPageImage(ctx, doc)
		if err == nil {
			summary := domain.ExtractionSummary{Method: domain.MethodVision, Pages: 1}
			return uc.classifier.ClassifyImage(ctx, img), summary, warnings, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.CategoryAssignment{}, domain.ExtractionSummary{}, nil, ctxErr
		}
		warnings = append(warnings, "vision input unavailable, falling back to text: "+err.Error())
	}

	extracted, err := uc.extractor.Extract(ctx, doc)
	summary := domain.ExtractionSummary{
		Method:    extracted.Method,
		Pages:     extracted.Pages,
		Chars:     len(extracted.Text),
		Truncated: extracted.Truncated,
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.CategoryAssignment{}, summary, nil, ctxErr
		}
		if domain.IsKind(err, domain.ErrOCR) {
			uc.logger.Warn("pipeline.document.ocr_failed", "document", doc.Name, "error", err)
			return domain.CategoryAssignment{
				CategoryID:  uc.taxonomy.DefaultID(),
				Confidence:  1.0,
				Explanation: "ocr failed: " + err.Error(),
				Outcome:     domain.OutcomeOCRError,
			}, summary, append(warnings, err.Error()), nil
		}
		uc.logger.Warn("pipeline.document.extract_failed", "document", doc.Name, "error", err)
		warnings = append(warnings, "extraction failed, classifying as empty: "+err.Error())
	}

	return uc.classifier.Classify(ctx, extracted.Text), summary, warnings, nil
}

func (uc *ProcessDocumentUseCase) newFailure(runID, path string, err error) domain.DocumentFailure {
	doc := domain.Document{Path: path, Name: filepath.Base(path)}
	if docType, ok := domain.DetectType(path); ok {
		doc.Type = docType
	}
	stage := domain.FailureStageFor(err)
	uc.logger.Warn("pipeline.document.failed",
		"run_id", runID,
		"document", doc.Name,
		"stage", string(stage),
		"error", err,
	)
	return domain.DocumentFailure{
		RunID:    runID,
		Document: doc,
		Stage:    stage,
		Err:      err,
		Message:  err.Error(),
	}
}

func (uc *ProcessDocumentUseCase) recordResult(ctx context.Context, result domain.ProcessingResult) {
	if uc.journal != nil {
		if err := uc.journal.RecordResult(ctx, result); err != nil {
			uc.logger.Warn("journal.record_result_failed", "document", result.Document.Name, "error", err)
		}
	}
	if uc.events != nil {
		if err := uc.events.PublishDocumentClassified(ctx, result); err != nil {
			uc.logger.Warn("events.publish_failed", "document", result.Document.Name, "error", err)
		}
	}
}

func (uc *ProcessDocumentUseCase) recordFailure(ctx context.Context, failure domain.DocumentFailure) {
	if uc.journal == nil {
		return
	}
	if err := uc.journal.RecordFailure(ctx, failure); err != nil {
		uc.logger.Warn("journal.record_failure_failed", "document", failure.Document.Name, "error", err)
	}
}
