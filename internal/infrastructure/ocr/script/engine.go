package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/execrun"
)

type Config struct {
	Command string // interpreter, default "node"
	Script  string // e.g. llama-ocr.js
	TempDir string
	Timeout time.Duration // per image; zero means no limit
}

// Engine bridges to an external OCR script that prints recognized text to stdout.
type Engine struct {
	cfg    Config
	runner execrun.Runner
	logger *slog.Logger
}

func New(cfg Config, runner execrun.Runner, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execrun.New(logger)
	}
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = "node"
	}
	if strings.TrimSpace(cfg.Script) == "" {
		return nil, fmt.Errorf("ocr script path is required")
	}
	return &Engine{cfg: cfg, runner: runner, logger: logger}, nil
}

func (e *Engine) ExtractText(ctx context.Context, image domain.Image) (string, error) {
	path, cleanup, err := execrun.ImageFile(e.cfg.TempDir, image.Path, image.MimeType, image.Data)
	if err != nil {
		return "", err
	}
	defer cleanup()

	out, errb, err := execrun.RunTimeout(ctx, e.runner, e.cfg.Timeout, e.cfg.Command, e.cfg.Script, path)
	if err != nil {
		return "", fmt.Errorf("ocr script %s: %w: %s", e.cfg.Script, err, execrun.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	return strings.TrimSpace(string(out)), nil
}
