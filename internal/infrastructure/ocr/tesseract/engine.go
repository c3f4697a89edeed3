package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/execrun"
)

var reBoxNoise = regexp.MustCompile(`[|_]{3,}`)

type Config struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // 0 keeps the tesseract default
	TempDir     string
	Timeout     time.Duration
}

// Engine runs the local tesseract binary: `tesseract <img> stdout -l <lang>`.
type Engine struct {
	cfg    Config
	runner execrun.Runner
	logger *slog.Logger
}

func New(cfg Config, runner execrun.Runner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execrun.New(logger)
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &Engine{cfg: cfg, runner: runner, logger: logger}
}

func (e *Engine) ExtractText(ctx context.Context, image domain.Image) (string, error) {
	path, cleanup, err := execrun.ImageFile(e.cfg.TempDir, image.Path, image.MimeType, image.Data)
	if err != nil {
		return "", err
	}
	defer cleanup()

	args := []string{path, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := execrun.RunTimeout(ctx, e.runner, e.cfg.Timeout, e.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, execrun.Truncate(strings.TrimSpace(string(errb)), 512))
	}

	txt := reBoxNoise.ReplaceAllString(string(out), "")
	return strings.TrimSpace(txt), nil
}
