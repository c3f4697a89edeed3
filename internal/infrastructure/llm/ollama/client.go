package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	temperature *float64
	httpClient  *http.Client
	executor    *resilience.Executor
	logger      *slog.Logger
}

type Options struct {
	Timeout            time.Duration
	Temperature        *float64
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

func New(baseURL, genModel, embedModel string) *Client {
	return NewWithOptions(baseURL, genModel, embedModel, Options{})
}

func NewWithOptions(baseURL, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		embedModel:  embedModel,
		temperature: options.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    options.ResilienceExecutor,
		logger:      logger,
	}
}

// Backend sends classification requests to /api/generate in JSON mode.
type Backend struct {
	client *Client
}

func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Complete(ctx context.Context, req domain.ClassificationRequest) (string, error) {
	body := map[string]any{
		"model":  b.client.genModel,
		"system": req.SystemPrompt,
		"prompt": req.UserPrompt,
		"stream": false,
		"format": "json",
	}
	if b.client.temperature != nil {
		body["options"] = map[string]any{"temperature": *b.client.temperature}
	}
	if req.Image != nil {
		if len(req.Image.Data) == 0 {
			return "", fmt.Errorf("ollama generate: image has no data")
		}
		body["images"] = []string{base64.StdEncoding.EncodeToString(req.Image.Data)}
	}

	started := time.Now()
	var response struct {
		Response string `json:"response"`
	}
	if err := b.client.postJSON(ctx, "/api/generate", body, &response, "generate"); err != nil {
		return "", err
	}
	b.client.logger.Debug("ollama.generate.ok",
		"req_id", req.RequestID,
		"model", b.client.genModel,
		"with_image", req.Image != nil,
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return strings.TrimSpace(response.Response), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}
