package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

type processorFake struct {
	lastPath string
	lastDir  string
	result   *domain.ProcessingResult
	batch    domain.BatchResult
	err      error
	runID    string
}

func (f *processorFake) ProcessOne(ctx context.Context, path string) (*domain.ProcessingResult, error) {
	f.lastPath = path
	f.runID, _ = domain.RunIDFromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *processorFake) ProcessDirectory(_ context.Context, dir string) (domain.BatchResult, error) {
	f.lastDir = dir
	return f.batch, f.err
}

func newTestRouter(proc *processorFake, inbox string) http.Handler {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("sorter_pipeline_document_total 1\n"))
	})
	return NewRouter(proc, domain.DefaultTaxonomy(), inbox, metrics, nil).Handler()
}

func TestHealthzSetsRequestID(t *testing.T) {
	handler := newTestRouter(&processorFake{}, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestMetricsMounted(t *testing.T) {
	handler := newTestRouter(&processorFake{}, t.TempDir())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "sorter_pipeline_document_total") {
		t.Fatalf("unexpected metrics response %d %q", res.Code, res.Body.String())
	}
}

func TestClassifyDocumentEndpoint(t *testing.T) {
	proc := &processorFake{result: &domain.ProcessingResult{
		Document: domain.Document{Name: "menu.jpg"},
		Category: "Food",
	}}
	handler := newTestRouter(proc, t.TempDir())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/classify", strings.NewReader(`{"path":"/in/menu.jpg"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if proc.lastPath != "/in/menu.jpg" {
		t.Fatalf("unexpected path %q", proc.lastPath)
	}
	var decoded domain.ProcessingResult
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.Category != "Food" {
		t.Fatalf("unexpected category %q", decoded.Category)
	}
}

func TestClassifyDocumentMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported", domain.WrapError(domain.ErrUnsupportedFormat, "discover document", errors.New(".txt")), http.StatusUnsupportedMediaType},
		{"missing", domain.WrapError(domain.ErrDocumentNotFound, "discover document", errors.New("no such file")), http.StatusNotFound},
		{"routing", domain.WrapError(domain.ErrRouting, "route document", errors.New("disk full")), http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestRouter(&processorFake{err: tc.err}, t.TempDir())
			req := httptest.NewRequest(http.MethodPost, "/v1/documents/classify", strings.NewReader(`{"path":"/in/x"}`))
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestClassifyDocumentValidatesBody(t *testing.T) {
	handler := newTestRouter(&processorFake{}, t.TempDir())

	for _, body := range []string{"not json", `{"path":"  "}`} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/documents/classify", strings.NewReader(body)))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, res.Code)
		}
	}

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/classify", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestSortDirectoryDefaultsToInbox(t *testing.T) {
	inbox := t.TempDir()
	proc := &processorFake{batch: domain.BatchResult{RunID: "run-1", Directory: inbox}}
	handler := newTestRouter(proc, inbox)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if proc.lastDir != inbox {
		t.Fatalf("expected inbox dir, got %q", proc.lastDir)
	}
}

func TestUploadDocumentStoresIntoInbox(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "inbox")
	handler := newTestRouter(&processorFake{}, inbox)

	body, contentType := multipartBody(t, "lease.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	data, err := os.ReadFile(filepath.Join(inbox, "lease.pdf"))
	if err != nil {
		t.Fatalf("read stored upload: %v", err)
	}
	if string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected stored content %q", data)
	}
	entries, _ := os.ReadDir(inbox)
	if len(entries) != 1 {
		t.Fatalf("expected only the uploaded file, got %d entries", len(entries))
	}
}

func TestUploadDocumentRejectsUnsupportedType(t *testing.T) {
	inbox := t.TempDir()
	handler := newTestRouter(&processorFake{}, inbox)

	body, contentType := multipartBody(t, "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", res.Code)
	}
	if entries, _ := os.ReadDir(inbox); len(entries) != 0 {
		t.Fatalf("nothing should be stored for unsupported uploads")
	}
}

func TestListCategoriesEndpoint(t *testing.T) {
	handler := newTestRouter(&processorFake{}, t.TempDir())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/categories", nil))
	var payload struct {
		DefaultID  int               `json:"default_id"`
		Categories []domain.Category `json:"categories"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.DefaultID != 4 || len(payload.Categories) != 4 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}
