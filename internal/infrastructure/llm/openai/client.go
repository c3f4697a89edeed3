package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/resilience"
)

// Complete sends one chat completion in JSON mode and returns the message content.
func (c *Client) Complete(ctx context.Context, req domain.ClassificationRequest) (string, error) {
	rid := req.RequestID
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	user, err := userMessage(req)
	if err != nil {
		return "", err
	}
	chatReq := goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(c.cfg.Temperature),
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			user,
		},
	}

	c.log.Info("llm.classify.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"prompt_len", len(req.UserPrompt),
		"with_image", req.Image != nil,
	)

	var resp goopenai.ChatCompletionResponse
	call := func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, chatReq)
		return callErr
	}
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, "openai.chat", call, classifyError)
	}
	if err != nil {
		c.log.Error("llm.classify.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.log.Info("llm.classify.ok",
		"req_id", rid,
		"content_len", len(content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// userMessage is plain text for text prompts and a text plus image_url part
// list, with the image as a data URL, when an image is attached.
func userMessage(req domain.ClassificationRequest) (goopenai.ChatCompletionMessage, error) {
	if req.Image == nil {
		return goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.UserPrompt}, nil
	}
	if len(req.Image.Data) == 0 {
		return goopenai.ChatCompletionMessage{}, fmt.Errorf("openai: image has no data")
	}
	mime := req.Image.MimeType
	if mime == "" {
		mime = "image/png"
	}
	if mime != "image/png" && mime != "image/jpeg" {
		return goopenai.ChatCompletionMessage{}, fmt.Errorf("openai: unsupported image type %q", mime)
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image.Data)
	return goopenai.ChatCompletionMessage{
		Role: goopenai.ChatMessageRoleUser,
		MultiContent: []goopenai.ChatMessagePart{
			{Type: goopenai.ChatMessagePartTypeText, Text: req.UserPrompt},
			{Type: goopenai.ChatMessagePartTypeImageURL, ImageURL: &goopenai.ChatMessageImageURL{URL: dataURL}},
		},
	}, nil
}

// StatusCode extracts the HTTP status from go-openai errors, 0 when there is none.
func StatusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func classifyError(err error) resilience.ErrorClassification {
	return resilience.ClassifyTransportError(err, func(err error) bool {
		if status := StatusCode(err); status != 0 {
			return status == http.StatusTooManyRequests || status >= 500
		}
		var netErr net.Error
		return errors.As(err, &netErr)
	})
}
