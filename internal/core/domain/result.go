package domain

import (
	"sort"
	"time"
)

type FailureStage string

const (
	StageDiscover    FailureStage = "discover"
	StageUnsupported FailureStage = "unsupported"
	StageExtract     FailureStage = "extract"
	StageOCR         FailureStage = "ocr"
	StageClassify    FailureStage = "classify"
	StageRoute       FailureStage = "route"
	StageInternal    FailureStage = "internal"
)

type ExtractionSummary struct {
	Method    ExtractionMethod `json:"method"`
	Pages     int              `json:"pages"`
	Chars     int              `json:"chars"`
	Truncated bool             `json:"truncated"`
}

// ProcessingResult describes a document that was filed into a category.
type ProcessingResult struct {
	RunID       string             `json:"run_id"`
	Document    Document           `json:"document"`
	Assignment  CategoryAssignment `json:"assignment"`
	Category    string             `json:"category"`
	Destination string             `json:"destination"`
	Extraction  ExtractionSummary  `json:"extraction"`
	Warnings    []string           `json:"warnings,omitempty"`
	Duration    time.Duration      `json:"duration"`
	ProcessedAt time.Time          `json:"processed_at"`
}

// DocumentFailure records a candidate document that produced no result.
type DocumentFailure struct {
	RunID    string       `json:"run_id"`
	Document Document     `json:"document"`
	Stage    FailureStage `json:"stage"`
	Err      error        `json:"-"`
	Message  string       `json:"error"`
}

type BatchResult struct {
	RunID      string             `json:"run_id"`
	Directory  string             `json:"directory"`
	Results    []ProcessingResult `json:"results"`
	Failures   []DocumentFailure  `json:"failures"`
	Skipped    []string           `json:"skipped"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// CountByCategory returns how many results were filed into each category name.
func (b BatchResult) CountByCategory() map[string]int {
	counts := make(map[string]int, 4)
	for _, r := range b.Results {
		counts[r.Category]++
	}
	return counts
}

// FailureStageFor maps an error kind to the pipeline stage it came from.
func FailureStageFor(err error) FailureStage {
	switch {
	case IsKind(err, ErrUnsupportedFormat):
		return StageUnsupported
	case IsKind(err, ErrDocumentNotFound):
		return StageDiscover
	case IsKind(err, ErrOCR):
		return StageOCR
	case IsKind(err, ErrExtraction):
		return StageExtract
	case IsKind(err, ErrClassification):
		return StageClassify
	case IsKind(err, ErrRouting), IsKind(err, ErrInvalidCategory):
		return StageRoute
	case IsKind(err, ErrInternal):
		return StageInternal
	default:
		return StageDiscover
	}
}

func SortResults(results []ProcessingResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Document.Name < results[j].Document.Name
	})
}
