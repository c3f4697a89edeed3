package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/core/ports"
)

const sentenceSeparator = ". "

type ReduceTextUseCase struct {
	embedder      ports.Embedder
	preserveOrder bool
	logger        *slog.Logger
}

func NewReduceTextUseCase(embedder ports.Embedder, preserveOrder bool, logger *slog.Logger) *ReduceTextUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReduceTextUseCase{
		embedder:      embedder,
		preserveOrder: preserveOrder,
		logger:        logger,
	}
}

type scoredUnit struct {
	index int
	text  string
	score float64
}

// Reduce keeps the maxSentences highest-scoring period-delimited units.
// Text at or under the threshold is returned unchanged; embedding failures
// return the input unreduced.
func (uc *ReduceTextUseCase) Reduce(ctx context.Context, text string, maxSentences int) domain.ReducedText {
	units := strings.Split(text, sentenceSeparator)
	if maxSentences <= 0 || len(units) <= maxSentences {
		return domain.ReducedText{Text: text}
	}
	if uc.embedder == nil {
		return domain.ReducedText{Text: text}
	}

	vectors, err := uc.embedder.Embed(ctx, units)
	if err == nil && len(vectors) != len(units) {
		err = fmt.Errorf("vectors/units mismatch: %d/%d", len(vectors), len(units))
	}
	if err != nil {
		uc.logger.Warn("reduce.embed_failed", "units", len(units), "error", err)
		return domain.ReducedText{Text: text}
	}

	scored := make([]scoredUnit, len(units))
	for i, unit := range units {
		scored[i] = scoredUnit{index: i, text: unit, score: meanScore(vectors[i])}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	kept := scored[:maxSentences]
	if uc.preserveOrder {
		sort.Slice(kept, func(i, j int) bool {
			return kept[i].index < kept[j].index
		})
	}

	parts := make([]string, len(kept))
	for i, unit := range kept {
		parts[i] = unit.text
	}
	return domain.ReducedText{
		Text:       strings.Join(parts, sentenceSeparator),
		WasReduced: true,
	}
}

func meanScore(vector []float32) float64 {
	if len(vector) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vector {
		sum += float64(v)
	}
	return sum / float64(len(vector))
}

// truncateRunes cuts s to at most limit runes without splitting a character.
func truncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i], true
		}
		count++
	}
	return s, false
}
