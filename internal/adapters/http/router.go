package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/core/ports"
)

const maxUploadBytes = 64 << 20

// Router serves the worker's HTTP surface: health, metrics, uploads into the
// inbox and on-demand sorting.
type Router struct {
	processor ports.DocumentProcessor
	taxonomy  domain.Taxonomy
	inboxDir  string
	metrics   http.Handler
	logger    *slog.Logger
}

func NewRouter(
	processor ports.DocumentProcessor,
	taxonomy domain.Taxonomy,
	inboxDir string,
	metrics http.Handler,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		processor: processor,
		taxonomy:  taxonomy,
		inboxDir:  inboxDir,
		metrics:   metrics,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/categories", rt.listCategories)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/classify", rt.classifyDocument)
	mux.HandleFunc("/v1/runs", rt.sortDirectory)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default_id": rt.taxonomy.DefaultID(),
		"categories": rt.taxonomy.Categories(),
	})
}

// uploadDocument stores a multipart "file" in the inbox; the watcher sorts it.
func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	name := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid file name"})
		return
	}
	if _, ok := domain.DetectType(name); !ok {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": fmt.Sprintf("unsupported file type %q", filepath.Ext(name))})
		return
	}

	path, err := rt.saveToInbox(name, file)
	if err != nil {
		rt.logger.Error("http.upload.save_failed", "request_id", requestIDFromContext(r.Context()), "name", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store upload"})
		return
	}

	rt.logger.Info("http.upload.accepted", "request_id", requestIDFromContext(r.Context()), "path", path)
	annotate(r.Context(), "document", name)
	writeJSON(w, http.StatusAccepted, map[string]string{"path": path, "status": "queued"})
}

func (rt *Router) classifyDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	path := strings.TrimSpace(req.Path)
	annotate(r.Context(), "document", filepath.Base(path))
	result, err := rt.processor.ProcessOne(r.Context(), path)
	if err != nil {
		annotate(r.Context(), "stage", string(domain.FailureStageFor(err)))
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	annotate(r.Context(), "run_id", result.RunID, "category", result.Category, "outcome", string(result.Assignment.Outcome))
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) sortDirectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Dir string `json:"dir"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = rt.inboxDir
	}

	batch, err := rt.processor.ProcessDirectory(r.Context(), dir)
	annotate(r.Context(), "run_id", batch.RunID, "results", len(batch.Results), "failures", len(batch.Failures))
	if err != nil && len(batch.Results) == 0 && len(batch.Failures) == 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (rt *Router) saveToInbox(name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(rt.inboxDir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(rt.inboxDir, ".upload-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	dest := filepath.Join(rt.inboxDir, name)
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	return dest, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
