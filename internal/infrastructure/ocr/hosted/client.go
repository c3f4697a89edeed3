package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/resilience"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client uploads one image to a hosted OCR endpoint as multipart field "file"
// and expects a JSON reply {"text": "..."}.
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
}

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("hosted ocr status %d", e.StatusCode)
	}
	return fmt.Sprintf("hosted ocr status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func New(cfg Config, executor *resilience.Executor, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("hosted ocr url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   executor,
		logger:     logger,
	}, nil
}

func (c *Client) ExtractText(ctx context.Context, image domain.Image) (string, error) {
	body, contentType, err := buildUpload(image)
	if err != nil {
		return "", err
	}

	var text string
	call := func(ctx context.Context) error {
		var callErr error
		text, callErr = c.upload(ctx, body, contentType)
		return callErr
	}
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, "ocr.hosted", call, classifyError)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) upload(ctx context.Context, body []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create hosted ocr request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("hosted ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var out struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode hosted ocr response: %w", err)
	}
	if out.Text == nil {
		return "", fmt.Errorf("hosted ocr response has no text field")
	}
	c.logger.Debug("ocr.hosted.ok", "chars", len(*out.Text), "elapsed_ms", time.Since(start).Milliseconds())
	return *out.Text, nil
}

func buildUpload(image domain.Image) ([]byte, string, error) {
	if len(image.Data) == 0 {
		return nil, "", fmt.Errorf("hosted ocr: image has no data")
	}
	name := "page.png"
	if image.Path != "" {
		name = filepath.Base(image.Path)
	} else if image.MimeType == "image/jpeg" {
		name = "page.jpg"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", fmt.Errorf("write multipart file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func classifyError(err error) resilience.ErrorClassification {
	return resilience.ClassifyTransportError(err, func(err error) bool {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
		}
		var netErr net.Error
		return errors.As(err, &netErr)
	})
}
