package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

// AssignmentSchema describes the reply every classification backend must produce.
func AssignmentSchema(taxonomy domain.Taxonomy) map[string]any {
	ids := make([]any, 0, taxonomy.Len())
	for _, id := range taxonomy.IDs() {
		ids = append(ids, id)
	}
	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []string{"category_id", "confidence", "explanation"},
		"properties": map[string]any{
			"category_id": map[string]any{
				"type": "integer",
				"enum": ids,
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
			"explanation": map[string]any{
				"type": "string",
			},
		},
	}
}

// ResponseParser turns loosely structured model output into a validated assignment.
type ResponseParser struct {
	taxonomy domain.Taxonomy
	schema   *jsonschema.Schema
}

func NewResponseParser(taxonomy domain.Taxonomy) (*ResponseParser, error) {
	raw, err := json.Marshal(AssignmentSchema(taxonomy))
	if err != nil {
		return nil, fmt.Errorf("marshal assignment schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("assignment.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add assignment schema: %w", err)
	}
	schema, err := compiler.Compile("assignment.json")
	if err != nil {
		return nil, fmt.Errorf("compile assignment schema: %w", err)
	}
	return &ResponseParser{taxonomy: taxonomy, schema: schema}, nil
}

func (p *ResponseParser) Parse(raw string) (domain.CategoryAssignment, error) {
	object := extractJSONObject(raw)
	if object == "" {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrClassification, "parse reply", errors.New("no json object in reply"))
	}

	var fields map[string]any
	decoder := json.NewDecoder(strings.NewReader(object))
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrClassification, "parse reply", err)
	}

	normalized, err := normalizeAssignmentFields(fields)
	if err != nil {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrClassification, "parse reply", err)
	}
	id := int(normalized["category_id"].(float64))
	if _, known := p.taxonomy.Lookup(id); !known {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrInvalidCategory, "validate reply", fmt.Errorf("unknown category_id %d", id))
	}
	if err := p.schema.Validate(normalized); err != nil {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrClassification, "validate reply", err)
	}

	return domain.CategoryAssignment{
		CategoryID:  id,
		Confidence:  normalized["confidence"].(float64),
		Explanation: strings.TrimSpace(normalized["explanation"].(string)),
		Outcome:     domain.OutcomeModel,
	}, nil
}

// normalizeAssignmentFields coerces integer-like ids and float-like confidences
// into numbers. Anything that cannot be coerced is left for the schema to reject.
func normalizeAssignmentFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}

	id, err := coerceNumber(out["category_id"])
	if err != nil {
		return nil, fmt.Errorf("category_id: %w", err)
	}
	if id != math.Trunc(id) {
		return nil, fmt.Errorf("category_id: %v is not an integer", id)
	}
	out["category_id"] = id

	if v, ok := out["confidence"]; ok {
		if c, err := parseNumber(v); err == nil {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, fmt.Errorf("confidence: non-finite value %v", c)
			}
			out["confidence"] = c
		}
	}
	if v, ok := out["explanation"]; !ok || v == nil {
		out["explanation"] = ""
	}
	return out, nil
}

func coerceNumber(v any) (float64, error) {
	f, err := parseNumber(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}

func parseNumber(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Float64()
	case float64:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, errors.New("empty value")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", s)
		}
		return f, nil
	case nil:
		return 0, errors.New("missing value")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}
