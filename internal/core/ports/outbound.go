package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

// PDFDocument is an opened PDF with zero-based page access.
type PDFDocument interface {
	NumPages() int
	PageText(index int) (string, error)
	Close() error
}

// PDFOpener opens PDF files for page-level text access.
type PDFOpener interface {
	Open(ctx context.Context, path string) (PDFDocument, error)
}

// WordReader returns the paragraphs of a word-processing document in order.
type WordReader interface {
	Paragraphs(ctx context.Context, path string) ([]string, error)
}

// Rasterizer renders exactly one PDF page to an image.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, pageIndex, dpi int) (domain.Image, error)
}

// OCREngine turns a single image into text. Failures are returned as errors,
// never as text.
type OCREngine interface {
	ExtractText(ctx context.Context, image domain.Image) (string, error)
}

// Embedder builds vectors for sentence scoring.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ClassificationBackend performs one model call and returns the raw reply.
type ClassificationBackend interface {
	Complete(ctx context.Context, req domain.ClassificationRequest) (string, error)
}

// ObjectStorage files documents under a base directory. Save stamps the
// stored file with modTime unless it is zero.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader, modTime time.Time) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Path(key string) string
}

// ResultJournal persists every processed and failed document of a run.
type ResultJournal interface {
	RecordResult(ctx context.Context, result domain.ProcessingResult) error
	RecordFailure(ctx context.Context, failure domain.DocumentFailure) error
}

// EventPublisher announces filed documents to other services.
type EventPublisher interface {
	PublishDocumentClassified(ctx context.Context, result domain.ProcessingResult) error
}

// PipelineMetrics observes per-document pipeline execution.
type PipelineMetrics interface {
	StartDocument()
	FinishDocument(docType domain.DocumentType, outcome string, duration time.Duration)
	ObserveAssignment(category string, outcome domain.AssignmentOutcome)
}

// ReportWriter renders a batch result to a file.
type ReportWriter interface {
	WriteBatch(ctx context.Context, path string, batch domain.BatchResult) error
}
