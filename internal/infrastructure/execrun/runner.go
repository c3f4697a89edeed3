package execrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner lets adapters stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

// New returns a Runner backed by os/exec that logs every invocation.
func New(logger *slog.Logger) Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return execRunner{logger: logger}
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	// children that inherit stdout must not keep Wait blocked after a kill
	cmd.WaitDelay = 2 * time.Second
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		r.logger.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", Truncate(errb.String(), 8<<10),
		)
	} else {
		r.logger.Debug("exec ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
			"stderr_bytes", errb.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

// RunTimeout runs a command with a per-call deadline. A zero timeout leaves
// ctx unchanged. Deadline expiry is reported as ErrTimeout even when the
// process was killed and returned a plain exit error.
func RunTimeout(ctx context.Context, r Runner, timeout time.Duration, name string, args ...string) ([]byte, []byte, error) {
	if timeout <= 0 {
		return r.Run(ctx, name, args...)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, errb, err := r.Run(runCtx, name, args...)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return out, errb, fmt.Errorf("%s %w after %s", name, ErrTimeout, timeout)
	}
	return out, errb, err
}

var ErrTimeout = errors.New("timed out")

func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// ImageFile returns a path for img on disk, writing Data to a temp file when
// the image only lives in memory. The cleanup func is always non-nil.
func ImageFile(dir string, path string, mimeType string, data []byte) (string, func(), error) {
	if path != "" {
		return path, func() {}, nil
	}
	ext := ".png"
	if mimeType == "image/jpeg" {
		ext = ".jpg"
	}
	f, err := os.CreateTemp(dir, "ocr-*"+ext)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp image: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp image: %w", err)
	}
	return name, cleanup, nil
}
