package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/core/ports"
)

type RouteMode string

const (
	RouteCopy RouteMode = "copy"
	RouteMove RouteMode = "move"
)

type RouteDocumentUseCase struct {
	storage  ports.ObjectStorage
	taxonomy domain.Taxonomy
	mode     RouteMode
	logger   *slog.Logger
}

func NewRouteDocumentUseCase(storage ports.ObjectStorage, taxonomy domain.Taxonomy, mode RouteMode, logger *slog.Logger) *RouteDocumentUseCase {
	if mode != RouteMove {
		mode = RouteCopy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteDocumentUseCase{
		storage:  storage,
		taxonomy: taxonomy,
		mode:     mode,
		logger:   logger,
	}
}

// Route files the document under <category name>/<document name>. Repeating
// the call with the same arguments overwrites the same destination.
func (uc *RouteDocumentUseCase) Route(ctx context.Context, doc domain.Document, assignment domain.CategoryAssignment) (string, error) {
	category, ok := uc.taxonomy.Lookup(assignment.CategoryID)
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidCategory, "route document", fmt.Errorf("category_id %d", assignment.CategoryID))
	}
	key := filepath.Join(category.Name, doc.Name)

	if err := uc.copy(ctx, doc, key); err != nil {
		return "", err
	}
	destination := uc.storage.Path(key)

	// The copy is already in place, so a failed removal only leaves the source behind.
	if uc.mode == RouteMove {
		if err := os.Remove(doc.Path); err != nil {
			uc.logger.Warn("route.remove_source_failed", "document", doc.Name, "error", err)
		}
	}

	uc.logger.Info("route.ok",
		"document", doc.Name,
		"category", category.Name,
		"destination", destination,
		"mode", string(uc.mode),
	)
	return destination, nil
}

func (uc *RouteDocumentUseCase) copy(ctx context.Context, doc domain.Document, key string) error {
	src, err := doc.Open()
	if err != nil {
		return domain.WrapError(domain.ErrRouting, "open source", err)
	}
	defer src.Close()

	if err := uc.storage.Save(ctx, key, src, doc.ModTime); err != nil {
		return domain.WrapError(domain.ErrRouting, "save copy", err)
	}
	return nil
}
