package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

// Queue publishes document.classified events and, in worker mode, consumes
// sort requests carrying a file path.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

// DocumentClassifiedEvent is the JSON body published for every filed document.
type DocumentClassifiedEvent struct {
	RunID       string    `json:"run_id"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	CategoryID  int       `json:"category_id"`
	Category    string    `json:"category"`
	Confidence  float64   `json:"confidence"`
	Outcome     string    `json:"outcome"`
	Destination string    `json:"destination"`
	ProcessedAt time.Time `json:"processed_at"`
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(subject) == "" {
		subject = "documents.classified"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("dataroom-sorter"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func NewDocumentClassifiedEvent(result domain.ProcessingResult) DocumentClassifiedEvent {
	return DocumentClassifiedEvent{
		RunID:       result.RunID,
		Path:        result.Document.Path,
		Name:        result.Document.Name,
		Type:        string(result.Document.Type),
		CategoryID:  result.Assignment.CategoryID,
		Category:    result.Category,
		Confidence:  result.Assignment.Confidence,
		Outcome:     string(result.Assignment.Outcome),
		Destination: result.Destination,
		ProcessedAt: result.ProcessedAt.UTC(),
	}
}

func (q *Queue) PublishDocumentClassified(ctx context.Context, result domain.ProcessingResult) error {
	payload, err := json.Marshal(NewDocumentClassifiedEvent(result))
	if err != nil {
		return fmt.Errorf("marshal document.classified event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeSortRequests consumes file paths from subject in the "sorters"
// queue group until ctx is cancelled, then drains the subscription.
func (q *Queue) SubscribeSortRequests(ctx context.Context, subject string, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(subject, "sorters", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		path := strings.TrimSpace(string(msg.Data))
		if path == "" {
			q.logger.Warn("nats.sort_request.empty", "subject", subject)
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, path); err != nil {
			q.logger.Error("nats.sort_request.failed", "path", path, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
