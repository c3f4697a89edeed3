package pdftoppm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/execrun"
)

// Rasterizer renders a single PDF page with poppler's pdftoppm.
type Rasterizer struct {
	binary  string
	tempDir string
	timeout time.Duration
	runner  execrun.Runner
	logger  *slog.Logger
}

// New returns a Rasterizer. A positive timeout bounds each pdftoppm call.
func New(binary, tempDir string, timeout time.Duration, runner execrun.Runner, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execrun.New(logger)
	}
	if strings.TrimSpace(binary) == "" {
		binary = "pdftoppm"
	}
	return &Rasterizer{binary: binary, tempDir: tempDir, timeout: timeout, runner: runner, logger: logger}
}

func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath string, pageIndex, dpi int) (domain.Image, error) {
	if pageIndex < 0 {
		return domain.Image{}, fmt.Errorf("page index %d out of range", pageIndex)
	}
	if dpi <= 0 {
		dpi = 300
	}

	tmpDir, err := os.MkdirTemp(r.tempDir, "sorter-pp-*")
	if err != nil {
		return domain.Image{}, fmt.Errorf("create raster dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("raster.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	page := strconv.Itoa(pageIndex + 1)
	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f N -l N -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := execrun.RunTimeout(ctx, r.runner, r.timeout, r.binary, "-f", page, "-l", page, "-r", strconv.Itoa(dpi), "-png", pdfPath, prefix)
	if err != nil {
		return domain.Image{}, fmt.Errorf("pdftoppm: %w: %s", err, execrun.Truncate(strings.TrimSpace(string(errb)), 512))
	}

	// output is prefix-N.png, zero padded to the page count width
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return domain.Image{}, fmt.Errorf("pdftoppm produced no image for page %s", page)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return domain.Image{}, fmt.Errorf("read rendered page: %w", err)
	}
	return domain.Image{MimeType: "image/png", Data: data}, nil
}
