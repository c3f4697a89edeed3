package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/core/ports"
)

const (
	serverName    = "dataroom-sorter"
	serverVersion = "0.1.0"
)

// Server exposes the sorting pipeline as MCP tools over stdio.
type Server struct {
	processor  ports.DocumentProcessor
	taxonomy   domain.Taxonomy
	defaultDir string
	logger     *slog.Logger
}

func New(processor ports.DocumentProcessor, taxonomy domain.Taxonomy, defaultDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		processor:  processor,
		taxonomy:   taxonomy,
		defaultDir: defaultDir,
		logger:     logger,
	}
}

func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("classify_document",
		mcp.WithDescription("Extract, classify and file a single document (pdf, docx, doc, png, jpg)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the document to sort")),
	), s.classifyDocument)

	srv.AddTool(mcp.NewTool("sort_directory",
		mcp.WithDescription("Sort every supported file directly under a directory into category folders."),
		mcp.WithString("path", mcp.Description("Directory to sort; defaults to the configured input directory")),
	), s.sortDirectory)

	srv.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List the categories documents are filed into."),
	), s.listCategories)

	return srv
}

// Serve blocks on stdin/stdout until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) classifyDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	result, err := s.processor.ProcessOne(ctx, path)
	if err != nil {
		s.logger.Warn("mcp.classify_document.failed", "path", path, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", domain.FailureStageFor(err), err)), nil
	}
	return jsonResult(result)
}

type directorySummary struct {
	RunID      string                   `json:"run_id"`
	Directory  string                   `json:"directory"`
	Processed  int                      `json:"processed"`
	ByCategory map[string]int           `json:"by_category"`
	Results    []documentSummary        `json:"results"`
	Failures   []domain.DocumentFailure `json:"failures,omitempty"`
	Skipped    []string                 `json:"skipped,omitempty"`
}

type documentSummary struct {
	Name        string                   `json:"name"`
	Category    string                   `json:"category"`
	Confidence  float64                  `json:"confidence"`
	Outcome     domain.AssignmentOutcome `json:"outcome"`
	Destination string                   `json:"destination"`
}

func (s *Server) sortDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := strings.TrimSpace(req.GetString("path", s.defaultDir))
	if dir == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	batch, err := s.processor.ProcessDirectory(ctx, dir)
	if err != nil && len(batch.Results) == 0 && len(batch.Failures) == 0 {
		s.logger.Warn("mcp.sort_directory.failed", "dir", dir, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	summary := directorySummary{
		RunID:      batch.RunID,
		Directory:  batch.Directory,
		Processed:  len(batch.Results),
		ByCategory: batch.CountByCategory(),
		Failures:   batch.Failures,
		Skipped:    batch.Skipped,
	}
	for _, r := range batch.Results {
		summary.Results = append(summary.Results, documentSummary{
			Name:        r.Document.Name,
			Category:    r.Category,
			Confidence:  r.Assignment.Confidence,
			Outcome:     r.Assignment.Outcome,
			Destination: r.Destination,
		})
	}
	return jsonResult(summary)
}

func (s *Server) listCategories(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload := struct {
		DefaultID  int               `json:"default_id"`
		Categories []domain.Category `json:"categories"`
	}{
		DefaultID:  s.taxonomy.DefaultID(),
		Categories: s.taxonomy.Categories(),
	}
	return jsonResult(payload)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
