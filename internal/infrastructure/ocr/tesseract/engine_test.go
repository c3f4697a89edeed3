package tesseract

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/execrun"
)

type runnerFake struct {
	name   string
	args   []string
	stdout string
	stderr string
	err    error
	seen   []byte
	block  bool
}

func (f *runnerFake) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	if f.block {
		<-ctx.Done()
		return nil, nil, errors.New("signal: killed")
	}
	if len(args) > 0 {
		f.seen, _ = os.ReadFile(args[0])
	}
	return []byte(f.stdout), []byte(f.stderr), f.err
}

func TestExtractTextInvokesTesseract(t *testing.T) {
	runner := &runnerFake{stdout: "  SERVICE AGREEMENT\n||||||\nbetween parties \n"}
	engine := New(Config{Lang: "eng+fra", PSM: 6}, runner, nil)

	text, err := engine.ExtractText(context.Background(), domain.Image{Path: "/scans/page.png"})
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "SERVICE AGREEMENT\n\nbetween parties" {
		t.Fatalf("unexpected text %q", text)
	}
	want := "/scans/page.png stdout -l eng+fra --psm 6"
	if runner.name != "tesseract" || strings.Join(runner.args, " ") != want {
		t.Fatalf("unexpected invocation %s %v", runner.name, runner.args)
	}
}

func TestExtractTextWritesInMemoryImage(t *testing.T) {
	runner := &runnerFake{stdout: "menu"}
	engine := New(Config{TempDir: t.TempDir()}, runner, nil)

	if _, err := engine.ExtractText(context.Background(), domain.Image{MimeType: "image/png", Data: []byte("raster")}); err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if string(runner.seen) != "raster" {
		t.Fatalf("tesseract should read the temp image, saw %q", runner.seen)
	}
	if _, err := os.Stat(runner.args[0]); !os.IsNotExist(err) {
		t.Fatalf("temp image must be removed after OCR")
	}
}

func TestExtractTextSurfacesFailure(t *testing.T) {
	runner := &runnerFake{err: errors.New("exit status 1"), stderr: "Error opening data file"}
	engine := New(Config{}, runner, nil)

	_, err := engine.ExtractText(context.Background(), domain.Image{Path: "/scans/page.png"})
	if err == nil || !strings.Contains(err.Error(), "Error opening data file") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestExtractTextTimesOut(t *testing.T) {
	engine := New(Config{Timeout: 20 * time.Millisecond}, &runnerFake{block: true}, nil)
	_, err := engine.ExtractText(context.Background(), domain.Image{Path: "/in/scan.png"})
	if !errors.Is(err, execrun.ErrTimeout) {
		t.Fatalf("ExtractText() error = %v, want timeout", err)
	}
}
