package pdfimages

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hhrutter/tiff"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

var extractImagesFile = api.ExtractImagesFile

// Rasterizer pulls the largest embedded image of a page out of the PDF with
// pdfcpu. Scanned PDFs carry one full-page image per page, so this works
// without an external renderer.
type Rasterizer struct {
	tempDir string
	logger  *slog.Logger
}

func New(tempDir string, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{tempDir: tempDir, logger: logger}
}

func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath string, pageIndex, _ int) (domain.Image, error) {
	if pageIndex < 0 {
		return domain.Image{}, fmt.Errorf("page index %d out of range", pageIndex)
	}
	if err := ctx.Err(); err != nil {
		return domain.Image{}, err
	}

	outDir, err := os.MkdirTemp(r.tempDir, "sorter-img-*")
	if err != nil {
		return domain.Image{}, fmt.Errorf("create image dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(outDir); err != nil {
			r.logger.Warn("raster.cleanup_failed", "dir", outDir, "error", err)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	page := strconv.Itoa(pageIndex + 1)
	if err := extractPage(pdfPath, outDir, page, conf); err != nil {
		return domain.Image{}, err
	}

	best, err := largestFile(outDir)
	if err != nil {
		return domain.Image{}, err
	}
	if best == "" {
		return domain.Image{}, fmt.Errorf("page %s has no embedded image", page)
	}

	data, err := os.ReadFile(best)
	if err != nil {
		return domain.Image{}, fmt.Errorf("read extracted image: %w", err)
	}
	return normalizeImage(best, data)
}

// extractPage recovers from pdfcpu panics on malformed cross-reference data.
func extractPage(pdfPath, outDir, page string, conf *model.Configuration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu extract images: panic: %v", r)
		}
	}()
	if err := extractImagesFile(pdfPath, outDir, []string{page}, conf); err != nil {
		return fmt.Errorf("pdfcpu extract images: %w", err)
	}
	return nil
}

// normalizeImage keeps PNG and JPEG as extracted and re-encodes every other
// decodable format (TIFF from CCITT scans, GIF) to PNG.
func normalizeImage(path string, data []byte) (domain.Image, error) {
	switch mime := domain.MimeTypeFor(path); mime {
	case "image/png", "image/jpeg":
		return domain.Image{MimeType: mime, Data: data}, nil
	}

	var (
		img image.Image
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		img, err = tiff.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return domain.Image{}, fmt.Errorf("unsupported embedded image %s: %w", filepath.Base(path), err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.Image{}, fmt.Errorf("encode png: %w", err)
	}
	return domain.Image{MimeType: "image/png", Data: buf.Bytes()}, nil
}

func largestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list extracted images: %w", err)
	}
	type candidate struct {
		path string
		size int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, entry.Name()), size: info.Size()})
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].size != candidates[j].size {
			return candidates[i].size > candidates[j].size
		}
		return candidates[i].path < candidates[j].path
	})
	return candidates[0].path, nil
}
