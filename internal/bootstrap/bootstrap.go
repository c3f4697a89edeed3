package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/dataroom-sorter/internal/config"
	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/core/ports"
	"github.com/kirillkom/dataroom-sorter/internal/core/usecase"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/execrun"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/llm/openai"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/ocr/hosted"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/ocr/script"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/queue/nats"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/raster/pdfimages"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/raster/pdftoppm"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/repository/sqlstore"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/resilience"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/dataroom-sorter/internal/observability/metrics"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Taxonomy domain.Taxonomy

	Processor ports.DocumentProcessor
	Report    ports.ReportWriter
	Metrics   *metrics.PipelineMetrics
	Journal   *sqlstore.Journal
	Queue     *nats.Queue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	taxonomy, err := config.LoadTaxonomy(cfg.TaxonomyFile)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	storage, err := localfs.New(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	if err := storage.EnsureCategoryDirs(taxonomy); err != nil {
		return nil, fmt.Errorf("prepare category directories: %w", err)
	}

	executor := resilience.NewExecutorWithLogger(resilienceConfig(cfg), logger)
	runner := execrun.New(logger)

	backend, err := newClassificationBackend(cfg, executor, logger)
	if err != nil {
		return nil, err
	}
	ocrEngine, err := newOCREngine(cfg, runner, executor, logger)
	if err != nil {
		return nil, err
	}
	rasterizer, err := newRasterizer(cfg, runner, logger)
	if err != nil {
		return nil, err
	}

	temperature := cfg.LLMTemperature
	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Temperature:        &temperature,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	embedder := ollama.NewEmbedder(ollamaClient)

	strategy := usecase.ExtractionStrategy(strings.ToLower(strings.TrimSpace(cfg.ExtractionStrategy)))
	switch strategy {
	case usecase.StrategyAuto, usecase.StrategyOCR, usecase.StrategyMultimodal:
	default:
		return nil, fmt.Errorf("unknown extraction strategy %q", cfg.ExtractionStrategy)
	}

	extractUC := usecase.NewExtractTextUseCase(pdftext.NewOpener(), docx.NewReader(), rasterizer, ocrEngine, usecase.ExtractionConfig{
		MaxPages:  cfg.MaxPages,
		MaxWords:  cfg.MaxWords,
		RasterDPI: cfg.RasterDPI,
		Strategy:  strategy,
	}, logger)
	reduceUC := usecase.NewReduceTextUseCase(embedder, cfg.ReducerPreserveOrder, logger)
	classifyUC, err := usecase.NewClassifyUseCase(backend, reduceUC, taxonomy, usecase.ClassificationConfig{
		MaxSentences:   cfg.ReducerMaxSentences,
		MaxPromptChars: cfg.ClassifyMaxChars,
		Timeout:        cfg.ClassifyTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init classifier: %w", err)
	}
	routeUC := usecase.NewRouteDocumentUseCase(storage, taxonomy, usecase.RouteMode(strings.ToLower(cfg.RouteMode)), logger)

	pipelineMetrics := metrics.NewPipelineMetrics(service)
	opts := []usecase.ProcessOption{usecase.WithMetrics(pipelineMetrics)}

	var closers []func()

	var journal *sqlstore.Journal
	if strings.TrimSpace(cfg.JournalDSN) != "" {
		var db *sql.DB
		journal, db, err = openJournal(ctx, cfg.JournalDSN)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		opts = append(opts, usecase.WithJournal(journal))
	}

	var queue *nats.Queue
	if strings.TrimSpace(cfg.NATSURL) != "" {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
		opts = append(opts, usecase.WithEvents(queue))
	}

	processUC := usecase.NewProcessDocumentUseCase(extractUC, classifyUC, routeUC, taxonomy, usecase.ProcessConfig{
		Strategy:    strategy,
		Concurrency: cfg.PipelineConcurrency,
	}, logger, opts...)

	logger.Info("bootstrap.ready",
		"input_dir", cfg.InputDir,
		"output_dir", storage.Path(""),
		"strategy", string(strategy),
		"llm_provider", cfg.LLMProvider,
		"ocr_provider", cfg.OCRProvider,
		"journal", journal != nil,
		"events", queue != nil,
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Taxonomy:  taxonomy,
		Processor: processUC,
		Report:    xlsx.NewWriter(logger),
		Metrics:   pipelineMetrics,
		Journal:   journal,
		Queue:     queue,
		closeFn:   func() { closeAll(closers) },
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func closeAll(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         cfg.RetryMultiplier,
		AttemptTimeout:          cfg.AttemptTimeout,
		RateLimitPerSecond:      cfg.LLMRatePerSecond,
		RateLimitBurst:          1,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}

func newClassificationBackend(cfg config.Config, executor *resilience.Executor, logger *slog.Logger) (ports.ClassificationBackend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "ollama":
		temperature := cfg.LLMTemperature
		client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
			Timeout:            cfg.ClassifyTimeout,
			Temperature:        &temperature,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		return ollama.NewBackend(client), nil
	case "openai", "groq":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.ClassifyTimeout,
		}, executor, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func newOCREngine(cfg config.Config, runner execrun.Runner, executor *resilience.Executor, logger *slog.Logger) (ports.OCREngine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.OCRProvider)) {
	case "", "tesseract":
		return tesseract.New(tesseract.Config{
			Binary:  cfg.TesseractBin,
			Lang:    cfg.TesseractLang,
			TempDir: cfg.TempDir,
			Timeout: cfg.OCRTimeout,
		}, runner, logger), nil
	case "hosted":
		client, err := hosted.New(hosted.Config{
			URL:     cfg.HostedOCRURL,
			APIKey:  cfg.HostedOCRAPIKey,
			Timeout: cfg.OCRTimeout,
		}, executor, logger)
		if err != nil {
			return nil, fmt.Errorf("init hosted ocr: %w", err)
		}
		return client, nil
	case "script":
		engine, err := script.New(script.Config{
			Command: cfg.OCRScriptCmd,
			Script:  cfg.OCRScriptPath,
			TempDir: cfg.TempDir,
			Timeout: cfg.OCRTimeout,
		}, runner, logger)
		if err != nil {
			return nil, fmt.Errorf("init ocr script: %w", err)
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown ocr provider %q", cfg.OCRProvider)
	}
}

func newRasterizer(cfg config.Config, runner execrun.Runner, logger *slog.Logger) (ports.Rasterizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Rasterizer)) {
	case "", "pdftoppm":
		return pdftoppm.New(cfg.PdftoppmBin, cfg.TempDir, cfg.OCRTimeout, runner, logger), nil
	case "embedded", "pdfimages":
		return pdfimages.New(cfg.TempDir, logger), nil
	default:
		return nil, fmt.Errorf("unknown rasterizer %q", cfg.Rasterizer)
	}
}

func openJournal(ctx context.Context, dsn string) (*sqlstore.Journal, *sql.DB, error) {
	db, dialect, err := sqlstore.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	journal := sqlstore.NewJournal(db, dialect)
	if err := journal.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	return journal, db, nil
}
