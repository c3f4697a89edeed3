package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/core/ports"
)

type ExtractionStrategy string

const (
	// StrategyAuto extracts native PDF text and falls back to OCR for scans.
	StrategyAuto ExtractionStrategy = "auto"
	// StrategyOCR always OCRs the first PDF page.
	StrategyOCR ExtractionStrategy = "ocr"
	// StrategyMultimodal sends images straight to a vision model.
	StrategyMultimodal ExtractionStrategy = "multimodal"
)

const paragraphsPerPage = 3

type ExtractionConfig struct {
	MaxPages  int
	MaxWords  int
	RasterDPI int
	Strategy  ExtractionStrategy
}

func (c ExtractionConfig) normalize() ExtractionConfig {
	out := c
	if out.MaxPages <= 0 {
		out.MaxPages = 10
	}
	if out.MaxWords <= 0 {
		out.MaxWords = 10000
	}
	if out.RasterDPI <= 0 {
		out.RasterDPI = 300
	}
	if out.Strategy == "" {
		out.Strategy = StrategyAuto
	}
	return out
}

type ExtractTextUseCase struct {
	pdf        ports.PDFOpener
	word       ports.WordReader
	rasterizer ports.Rasterizer
	ocr        ports.OCREngine
	cfg        ExtractionConfig
	logger     *slog.Logger
}

func NewExtractTextUseCase(
	pdf ports.PDFOpener,
	word ports.WordReader,
	rasterizer ports.Rasterizer,
	ocr ports.OCREngine,
	cfg ExtractionConfig,
	logger *slog.Logger,
) *ExtractTextUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractTextUseCase{
		pdf:        pdf,
		word:       word,
		rasterizer: rasterizer,
		ocr:        ocr,
		cfg:        cfg.normalize(),
		logger:     logger,
	}
}

// IsReadable reports whether any page of the PDF carries non-whitespace text.
// Open or parse errors count as unreadable.
func (uc *ExtractTextUseCase) IsReadable(ctx context.Context, path string) bool {
	doc, err := uc.pdf.Open(ctx, path)
	if err != nil {
		uc.logger.Warn("pdf.probe.open_failed", "path", path, "error", err)
		return false
	}
	defer doc.Close()

	for i := 0; i < doc.NumPages(); i++ {
		if ctx.Err() != nil {
			return false
		}
		text, err := doc.PageText(i)
		if err != nil {
			uc.logger.Warn("pdf.probe.page_failed", "path", path, "page", i, "error", err)
			return false
		}
		if strings.TrimSpace(text) != "" {
			return true
		}
	}
	return false
}

// Extract dispatches on the document type. On failure the returned value
// still carries the source document and empty text.
func (uc *ExtractTextUseCase) Extract(ctx context.Context, doc domain.Document) (domain.ExtractedText, error) {
	switch doc.Type {
	case domain.TypePDF:
		if uc.cfg.Strategy == StrategyAuto && uc.IsReadable(ctx, doc.Path) {
			return uc.extractPDFText(ctx, doc)
		}
		return uc.extractScannedPDF(ctx, doc)
	case domain.TypeDOCX, domain.TypeDOC:
		return uc.extractWord(ctx, doc)
	case domain.TypeImage:
		return uc.extractImage(ctx, doc)
	default:
		return domain.ExtractedText{Source: doc}, domain.WrapError(
			domain.ErrUnsupportedFormat,
			"extract text",
			fmt.Errorf("document type %q", doc.Type),
		)
	}
}

// FirstPageImage renders page one of a PDF, or loads an image document, as
// vision input. Formats other than PNG and JPEG fail with ErrOCR.
func (uc *ExtractTextUseCase) FirstPageImage(ctx context.Context, doc domain.Document) (domain.Image, error) {
	img, err := uc.firstPageImage(ctx, doc)
	if err != nil {
		return domain.Image{}, err
	}
	return visionImage(img)
}

func (uc *ExtractTextUseCase) firstPageImage(ctx context.Context, doc domain.Document) (domain.Image, error) {
	switch doc.Type {
	case domain.TypeImage:
		img, err := domain.ImageFromFile(doc.Path)
		if err != nil {
			return domain.Image{}, domain.WrapError(domain.ErrExtraction, "load image", err)
		}
		return img, nil
	case domain.TypePDF:
		img, err := uc.rasterizer.Rasterize(ctx, doc.Path, 0, uc.cfg.RasterDPI)
		if err != nil {
			return domain.Image{}, domain.WrapError(domain.ErrOCR, "rasterize pdf", err)
		}
		return img, nil
	default:
		return domain.Image{}, domain.WrapError(domain.ErrUnsupportedFormat, "render first page", fmt.Errorf("document type %q", doc.Type))
	}
}

// visionImage admits only the formats chat vision endpoints accept.
func visionImage(img domain.Image) (domain.Image, error) {
	switch img.MimeType {
	case "image/png", "image/jpeg":
		return img, nil
	default:
		return domain.Image{}, domain.WrapError(domain.ErrOCR, "vision input", fmt.Errorf("unsupported image type %q", img.MimeType))
	}
}

func (uc *ExtractTextUseCase) extractPDFText(ctx context.Context, doc domain.Document) (domain.ExtractedText, error) {
	out := domain.ExtractedText{Source: doc, Method: domain.MethodNativePDF}

	pdfDoc, err := uc.pdf.Open(ctx, doc.Path)
	if err != nil {
		return out, domain.WrapError(domain.ErrExtraction, "open pdf", err)
	}
	defer pdfDoc.Close()

	total := pdfDoc.NumPages()
	limit := min(uc.cfg.MaxPages, total)

	var b strings.Builder
	words := 0
	pages := 0
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return domain.ExtractedText{Source: doc, Method: domain.MethodNativePDF}, err
		}
		text, err := pdfDoc.PageText(i)
		if err != nil {
			return domain.ExtractedText{Source: doc, Method: domain.MethodNativePDF}, domain.WrapError(
				domain.ErrExtraction,
				"read pdf page",
				fmt.Errorf("page %d: %w", i, err),
			)
		}
		if pages > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
		pages++

		// Checked after the append: the last page may overshoot the budget.
		words += len(strings.Fields(text))
		if words >= uc.cfg.MaxWords {
			break
		}
	}

	out.Text = b.String()
	out.Pages = pages
	out.Truncated = pages < total
	return out, nil
}

func (uc *ExtractTextUseCase) extractScannedPDF(ctx context.Context, doc domain.Document) (domain.ExtractedText, error) {
	out := domain.ExtractedText{Source: doc, Method: domain.MethodOCRPDF, Pages: 1}

	img, err := uc.firstPageImage(ctx, doc)
	if err != nil {
		return out, err
	}
	text, err := uc.runOCR(ctx, doc, img)
	if err != nil {
		return out, err
	}
	out.Text = text
	return out, nil
}

func (uc *ExtractTextUseCase) extractImage(ctx context.Context, doc domain.Document) (domain.ExtractedText, error) {
	out := domain.ExtractedText{Source: doc, Method: domain.MethodOCRImage, Pages: 1}

	img, err := uc.firstPageImage(ctx, doc)
	if err != nil {
		return out, err
	}
	text, err := uc.runOCR(ctx, doc, img)
	if err != nil {
		return out, err
	}
	out.Text = text
	return out, nil
}

func (uc *ExtractTextUseCase) extractWord(ctx context.Context, doc domain.Document) (domain.ExtractedText, error) {
	out := domain.ExtractedText{Source: doc, Method: domain.MethodWord}

	paragraphs, err := uc.word.Paragraphs(ctx, doc.Path)
	if err != nil {
		return out, domain.WrapError(domain.ErrExtraction, "read word document", err)
	}

	maxParagraphs := uc.cfg.MaxPages * paragraphsPerPage
	if len(paragraphs) > maxParagraphs {
		paragraphs = paragraphs[:maxParagraphs]
		out.Truncated = true
	}
	out.Text = strings.Join(paragraphs, "\n")
	out.Pages = (len(paragraphs) + paragraphsPerPage - 1) / paragraphsPerPage
	return out, nil
}

func (uc *ExtractTextUseCase) runOCR(ctx context.Context, doc domain.Document, img domain.Image) (string, error) {
	if uc.ocr == nil {
		return "", domain.WrapError(domain.ErrOCR, "ocr", errors.New("no ocr engine configured"))
	}
	text, err := uc.ocr.ExtractText(ctx, img)
	if err != nil {
		uc.logger.Warn("ocr.failed", "document", doc.Name, "error", err)
		return "", domain.WrapError(domain.ErrOCR, "ocr", err)
	}
	uc.logger.Debug("ocr.ok", "document", doc.Name, "chars", len(text))
	return text, nil
}
