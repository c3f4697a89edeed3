package ports

import (
	"context"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

// TextExtractor is the inbound contract for type-dispatched text extraction.
type TextExtractor interface {
	IsReadable(ctx context.Context, path string) bool
	Extract(ctx context.Context, doc domain.Document) (domain.ExtractedText, error)
	FirstPageImage(ctx context.Context, doc domain.Document) (domain.Image, error)
}

// TextReducer condenses extracted text before classification.
type TextReducer interface {
	Reduce(ctx context.Context, text string, maxSentences int) domain.ReducedText
}

// DocumentClassifier assigns a category. It never fails: errors degrade to
// the taxonomy default with an explanation.
type DocumentClassifier interface {
	Classify(ctx context.Context, text string) domain.CategoryAssignment
	ClassifyImage(ctx context.Context, image domain.Image) domain.CategoryAssignment
}

// DocumentRouter files a document copy into its category directory.
type DocumentRouter interface {
	Route(ctx context.Context, doc domain.Document, assignment domain.CategoryAssignment) (string, error)
}

// DocumentProcessor is the inbound contract for the whole pipeline.
type DocumentProcessor interface {
	ProcessOne(ctx context.Context, path string) (*domain.ProcessingResult, error)
	ProcessDirectory(ctx context.Context, dir string) (domain.BatchResult, error)
}
