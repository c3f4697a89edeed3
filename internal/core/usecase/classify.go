package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/core/ports"
)

const (
	defaultMaxPromptChars = 4000
	defaultMaxSentences   = 1000
	emptyExplanation      = "empty document"
)

type ClassificationConfig struct {
	MaxSentences   int
	MaxPromptChars int
	Timeout        time.Duration
}

func (c ClassificationConfig) normalize() ClassificationConfig {
	out := c
	if out.MaxSentences <= 0 {
		out.MaxSentences = defaultMaxSentences
	}
	if out.MaxPromptChars <= 0 {
		out.MaxPromptChars = defaultMaxPromptChars
	}
	if out.Timeout <= 0 {
		out.Timeout = 60 * time.Second
	}
	return out
}

type ClassifyUseCase struct {
	backend      ports.ClassificationBackend
	reducer      ports.TextReducer
	parser       *ResponseParser
	taxonomy     domain.Taxonomy
	systemPrompt string
	cfg          ClassificationConfig
	logger       *slog.Logger
}

func NewClassifyUseCase(
	backend ports.ClassificationBackend,
	reducer ports.TextReducer,
	taxonomy domain.Taxonomy,
	cfg ClassificationConfig,
	logger *slog.Logger,
) (*ClassifyUseCase, error) {
	if backend == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "init classifier", errors.New("backend is nil"))
	}
	parser, err := NewResponseParser(taxonomy)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifyUseCase{
		backend:      backend,
		reducer:      reducer,
		parser:       parser,
		taxonomy:     taxonomy,
		systemPrompt: buildSystemPrompt(taxonomy),
		cfg:          cfg.normalize(),
		logger:       logger,
	}, nil
}

// Classify never calls the backend for whitespace-only text and never fails:
// every error becomes the default category with an explanation.
func (uc *ClassifyUseCase) Classify(ctx context.Context, text string) domain.CategoryAssignment {
	if strings.TrimSpace(text) == "" {
		return uc.emptyAssignment()
	}

	reduced := domain.ReducedText{Text: text}
	if uc.reducer != nil {
		reduced = uc.reducer.Reduce(ctx, text, uc.cfg.MaxSentences)
	}
	snippet, truncated := truncateRunes(reduced.Text, uc.cfg.MaxPromptChars)

	req := domain.ClassificationRequest{
		RequestID:    uuid.NewString(),
		SystemPrompt: uc.systemPrompt,
		UserPrompt:   buildDocumentPrompt(snippet),
	}
	uc.logger.Info("classify.start",
		"req_id", req.RequestID,
		"text_len", len(text),
		"prompt_len", len(snippet),
		"reduced", reduced.WasReduced,
		"truncated", truncated,
	)
	return uc.complete(ctx, req)
}

// ClassifyImage sends a page image to a vision-capable backend.
func (uc *ClassifyUseCase) ClassifyImage(ctx context.Context, image domain.Image) domain.CategoryAssignment {
	if len(image.Data) == 0 {
		return uc.ErrorAssignment(domain.WrapError(domain.ErrInvalidInput, "classify image", errors.New("image is empty")))
	}

	img := image
	req := domain.ClassificationRequest{
		RequestID:    uuid.NewString(),
		SystemPrompt: uc.systemPrompt,
		UserPrompt:   imagePrompt,
		Image:        &img,
	}
	uc.logger.Info("classify.start",
		"req_id", req.RequestID,
		"image_bytes", len(image.Data),
		"mime_type", image.MimeType,
	)
	return uc.complete(ctx, req)
}

func (uc *ClassifyUseCase) complete(ctx context.Context, req domain.ClassificationRequest) domain.CategoryAssignment {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	raw, err := uc.backend.Complete(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("backend timed out after %s: %w", uc.cfg.Timeout, err)
		}
		uc.logger.Warn("classify.fallback",
			"req_id", req.RequestID,
			"stage", "backend",
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return uc.ErrorAssignment(domain.WrapError(domain.ErrClassification, "classify", err))
	}

	assignment, err := uc.parser.Parse(raw)
	if err != nil {
		uc.logger.Warn("classify.fallback",
			"req_id", req.RequestID,
			"stage", "parse",
			"error", err,
			"raw_len", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return uc.ErrorAssignment(err)
	}

	uc.logger.Info("classify.ok",
		"req_id", req.RequestID,
		"category_id", assignment.CategoryID,
		"confidence", assignment.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return assignment
}

func (uc *ClassifyUseCase) emptyAssignment() domain.CategoryAssignment {
	return domain.CategoryAssignment{
		CategoryID:  uc.taxonomy.DefaultID(),
		Confidence:  1.0,
		Explanation: emptyExplanation,
		Outcome:     domain.OutcomeEmptyDocument,
	}
}

// ErrorAssignment is the default-category assignment for a failed classification.
func (uc *ClassifyUseCase) ErrorAssignment(err error) domain.CategoryAssignment {
	return domain.CategoryAssignment{
		CategoryID:  uc.taxonomy.DefaultID(),
		Confidence:  1.0,
		Explanation: "classification error: " + err.Error(),
		Outcome:     domain.OutcomeClassificationError,
	}
}
