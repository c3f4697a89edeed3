package httpadapter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

func TestRequestIDBecomesRunID(t *testing.T) {
	proc := &processorFake{result: &domain.ProcessingResult{RunID: "req-7"}}
	handler := newTestRouter(proc, t.TempDir())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/classify", strings.NewReader(`{"path":"/in/lease.pdf"}`))
	req.Header.Set(requestIDHeader, "req-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if proc.runID != "req-7" {
		t.Fatalf("expected request id as run id, got %q", proc.runID)
	}
}

func TestRequestIDRejectsUnsafeValues(t *testing.T) {
	for name, id := range map[string]string{
		"control chars": "abc\x1b[31m",
		"too long":      strings.Repeat("a", maxRequestIDLength+1),
		"inner space":   "req 1",
	} {
		t.Run(name, func(t *testing.T) {
			handler := newTestRouter(&processorFake{}, t.TempDir())
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set(requestIDHeader, id)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			got := res.Header().Get(requestIDHeader)
			if got == id || got == "" {
				t.Fatalf("expected a generated request id, got %q", got)
			}
		})
	}
}

func TestAccessLogCarriesPipelineFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	proc := &processorFake{result: &domain.ProcessingResult{
		RunID:      "req-9",
		Category:   "contracts",
		Assignment: domain.CategoryAssignment{Outcome: domain.OutcomeModel},
	}}
	handler := NewRouter(proc, domain.DefaultTaxonomy(), t.TempDir(), nil, logger).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/classify", strings.NewReader(`{"path":"/in/lease.pdf"}`))
	req.Header.Set(requestIDHeader, "req-9")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if decoded["msg"] == "http_request" {
			entry = decoded
		}
	}
	if entry == nil {
		t.Fatalf("no access log entry in %s", buf.String())
	}
	if entry["request_id"] != "req-9" || entry["run_id"] != "req-9" {
		t.Fatalf("unexpected ids in %v", entry)
	}
	if entry["document"] != "lease.pdf" || entry["category"] != "contracts" || entry["outcome"] != string(domain.OutcomeModel) {
		t.Fatalf("unexpected pipeline fields in %v", entry)
	}
}
