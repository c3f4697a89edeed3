package script

import (
	"context"
	"errors"
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
	err    error
	block  bool
}

func (f *runnerFake) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	if f.block {
		<-ctx.Done()
		return nil, nil, errors.New("signal: killed")
	}
	if f.err != nil {
		return nil, []byte("TypeError: fetch failed"), f.err
	}
	return []byte(f.stdout), nil, nil
}

func TestNewRequiresScript(t *testing.T) {
	if _, err := New(Config{}, &runnerFake{}, nil); err == nil {
		t.Fatalf("expected error without script path")
	}
}

func TestExtractTextRunsScript(t *testing.T) {
	runner := &runnerFake{stdout: "# Invoice\n\nTotal 12.00\n"}
	engine, err := New(Config{Script: "llama-ocr.js"}, runner, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text, err := engine.ExtractText(context.Background(), domain.Image{Path: "/in/receipt.jpg"})
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "# Invoice\n\nTotal 12.00" {
		t.Fatalf("unexpected text %q", text)
	}
	if runner.name != "node" || strings.Join(runner.args, " ") != "llama-ocr.js /in/receipt.jpg" {
		t.Fatalf("unexpected invocation %s %v", runner.name, runner.args)
	}
}

func TestExtractTextReportsScriptFailure(t *testing.T) {
	engine, err := New(Config{Command: "bun", Script: "ocr.js"}, &runnerFake{err: errors.New("exit status 1")}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = engine.ExtractText(context.Background(), domain.Image{Path: "/in/a.png"})
	if err == nil || !strings.Contains(err.Error(), "fetch failed") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestExtractTextStopsHungScript(t *testing.T) {
	engine, err := New(Config{Script: "llama-ocr.js", Timeout: 20 * time.Millisecond}, &runnerFake{block: true}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := engine.ExtractText(context.Background(), domain.Image{Path: "/in/a.png"})
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, execrun.ErrTimeout) {
			t.Fatalf("ExtractText() error = %v, want timeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("ExtractText() still blocked after 5s")
	}
}
