package usecase

import (
	"errors"
	"testing"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

func TestResponseParserAcceptsLooseReplies(t *testing.T) {
	parser, err := NewResponseParser(domain.DefaultTaxonomy())
	if err != nil {
		t.Fatalf("NewResponseParser() error = %v", err)
	}

	cases := map[string]struct {
		raw        string
		id         int
		confidence float64
	}{
		"strict json": {
			raw: `{"category_id": 1, "confidence": 0.92, "explanation": "lease between landlord and tenant"}`,
			id:  1, confidence: 0.92,
		},
		"fenced with prose": {
			raw: "Sure! Here is the classification:\n```json\n{\"category_id\": \"3\", \"confidence\": \"0.7\", \"explanation\": \"grocery receipt\"}\n```\nLet me know.",
			id:  3, confidence: 0.7,
		},
		"float id": {
			raw: `{"category_id": 2.0, "confidence": 1, "explanation": "passport scan"}`,
			id:  2, confidence: 1,
		},
		"upper case keys": {
			raw: `{"Category_ID": 4, "Confidence": 0, "Explanation": "misc"}`,
			id:  4, confidence: 0,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := parser.Parse(tc.raw)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.CategoryID != tc.id || got.Confidence != tc.confidence || got.Outcome != domain.OutcomeModel {
				t.Fatalf("unexpected assignment %+v", got)
			}
		})
	}
}

func TestResponseParserRejectsInvalidReplies(t *testing.T) {
	parser, err := NewResponseParser(domain.DefaultTaxonomy())
	if err != nil {
		t.Fatalf("NewResponseParser() error = %v", err)
	}

	cases := map[string]struct {
		raw  string
		kind error
	}{
		"prose only":         {raw: "This looks like a contract.", kind: domain.ErrClassification},
		"broken json":        {raw: `{"category_id": 1, "confidence": }`, kind: domain.ErrClassification},
		"non numeric id":     {raw: `{"category_id": "contracts", "confidence": 0.5, "explanation": "x"}`, kind: domain.ErrClassification},
		"fractional id":      {raw: `{"category_id": 2.5, "confidence": 0.5, "explanation": "x"}`, kind: domain.ErrClassification},
		"missing id":         {raw: `{"confidence": 0.5, "explanation": "x"}`, kind: domain.ErrClassification},
		"unknown id":         {raw: `{"category_id": 7, "confidence": 0.5, "explanation": "x"}`, kind: domain.ErrInvalidCategory},
		"zero id":            {raw: `{"category_id": 0, "confidence": 0.5, "explanation": "x"}`, kind: domain.ErrInvalidCategory},
		"confidence too big": {raw: `{"category_id": 1, "confidence": 1.5, "explanation": "x"}`, kind: domain.ErrClassification},
		"confidence text":    {raw: `{"category_id": 1, "confidence": "high", "explanation": "x"}`, kind: domain.ErrClassification},
		"missing confidence": {raw: `{"category_id": 1, "explanation": "x"}`, kind: domain.ErrClassification},
		"nan confidence":     {raw: `{"category_id": 1, "confidence": "NaN", "explanation": "x"}`, kind: domain.ErrClassification},
		"infinite confidence": {raw: `{"category_id": 1, "confidence": "Infinity", "explanation": "x"}`, kind: domain.ErrClassification},
		"inf confidence":     {raw: `{"category_id": 1, "confidence": "-Inf", "explanation": "x"}`, kind: domain.ErrClassification},
		"nan id":             {raw: `{"category_id": "NaN", "confidence": 0.5, "explanation": "x"}`, kind: domain.ErrClassification},
		"inf id":             {raw: `{"category_id": "Inf", "confidence": 0.5, "explanation": "x"}`, kind: domain.ErrClassification},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parser.Parse(tc.raw)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestResponseParserUsesTaxonomyIDs(t *testing.T) {
	tax, err := domain.NewTaxonomy([]domain.Category{
		{ID: 1, Name: "invoices"},
		{ID: 2, Name: "misc"},
	}, 2)
	if err != nil {
		t.Fatalf("NewTaxonomy() error = %v", err)
	}
	parser, err := NewResponseParser(tax)
	if err != nil {
		t.Fatalf("NewResponseParser() error = %v", err)
	}

	if _, err := parser.Parse(`{"category_id": 3, "confidence": 0.5, "explanation": "x"}`); !errors.Is(err, domain.ErrInvalidCategory) {
		t.Fatalf("expected id 3 to be rejected for a two-category taxonomy, got %v", err)
	}
}
