package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type embedderFake struct {
	calls  int
	scores map[string]float32
	short  bool
	err    error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		s := f.scores[text]
		out = append(out, []float32{s, s, s})
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func TestReduceReturnsTextUnchangedUnderThreshold(t *testing.T) {
	embedder := &embedderFake{}
	uc := NewReduceTextUseCase(embedder, true, nil)

	text := "First sentence.  Second one. Third\n\tline"
	got := uc.Reduce(context.Background(), text, 3)
	if got.Text != text || got.WasReduced {
		t.Fatalf("expected unchanged text, got %+v", got)
	}
	if embedder.calls != 0 {
		t.Fatalf("embedder must not run under threshold")
	}
}

func TestReduceKeepsTopUnitsInDocumentOrder(t *testing.T) {
	embedder := &embedderFake{scores: map[string]float32{
		"alpha": 0.1, "beta": 0.9, "gamma": 0.5, "delta": 0.8, "epsilon": 0.2,
	}}
	uc := NewReduceTextUseCase(embedder, true, nil)

	text := "alpha. beta. gamma. delta. epsilon"
	got := uc.Reduce(context.Background(), text, 3)
	if !got.WasReduced {
		t.Fatalf("expected reduction")
	}
	if got.Text != "beta. gamma. delta" {
		t.Fatalf("unexpected reduced text %q", got.Text)
	}

	units := strings.Split(got.Text, ". ")
	if len(units) != 3 {
		t.Fatalf("expected exactly 3 units, got %d", len(units))
	}
	input := map[string]bool{}
	for _, u := range strings.Split(text, ". ") {
		input[u] = true
	}
	for _, u := range units {
		if !input[u] {
			t.Fatalf("unit %q not drawn from input", u)
		}
	}
	if len(got.Text) > len(text) {
		t.Fatalf("reduced text longer than input")
	}
}

func TestReduceRankedOrderWhenOrderNotPreserved(t *testing.T) {
	embedder := &embedderFake{scores: map[string]float32{
		"alpha": 0.1, "beta": 0.9, "gamma": 0.5, "delta": 0.8,
	}}
	uc := NewReduceTextUseCase(embedder, false, nil)

	got := uc.Reduce(context.Background(), "alpha. beta. gamma. delta", 2)
	if got.Text != "beta. delta" {
		t.Fatalf("expected ranked order, got %q", got.Text)
	}
}

func TestReduceFailsOpen(t *testing.T) {
	text := "a. b. c. d"
	cases := map[string]*embedderFake{
		"embed error":     {err: errors.New("model unavailable")},
		"vector mismatch": {short: true},
	}
	for name, embedder := range cases {
		t.Run(name, func(t *testing.T) {
			uc := NewReduceTextUseCase(embedder, true, nil)
			got := uc.Reduce(context.Background(), text, 2)
			if got.Text != text || got.WasReduced {
				t.Fatalf("expected original text, got %+v", got)
			}
		})
	}
}

func TestTruncateRunesKeepsCharactersWhole(t *testing.T) {
	got, cut := truncateRunes("ééééé", 3)
	if got != "ééé" || !cut {
		t.Fatalf("truncateRunes() = %q, %v", got, cut)
	}
	got, cut = truncateRunes("short", 10)
	if got != "short" || cut {
		t.Fatalf("truncateRunes() = %q, %v", got, cut)
	}
}
