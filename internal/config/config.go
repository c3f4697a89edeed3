package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	LogLevel string

	InputDir  string
	OutputDir string
	RouteMode string

	TaxonomyFile string

	ExtractionStrategy  string
	MaxPages            int
	MaxWords            int
	RasterDPI           int
	Rasterizer          string
	PipelineConcurrency int

	ReducerMaxSentences  int
	ReducerPreserveOrder bool
	ClassifyMaxChars     int
	ClassifyTimeout      time.Duration

	LLMProvider      string
	LLMTemperature   float64
	LLMRatePerSecond float64

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	OCRProvider     string
	TesseractBin    string
	TesseractLang   string
	PdftoppmBin     string
	OCRTimeout      time.Duration
	HostedOCRURL    string
	HostedOCRAPIKey string
	OCRScriptCmd    string
	OCRScriptPath   string
	TempDir         string

	JournalDSN string

	NATSURL            string
	NATSSubject        string
	NATSRequestSubject string

	ReportPath string

	WorkerMetricsPort string
	WatchDebounce     time.Duration

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	AttemptTimeout      time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      int
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls int
}

func Load() Config {
	return Config{
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		InputDir:  mustEnv("INPUT_DIR", "./data/inbox"),
		OutputDir: mustEnv("OUTPUT_DIR", "./data/sorted"),
		RouteMode: mustEnv("ROUTE_MODE", "copy"),

		TaxonomyFile: mustEnv("TAXONOMY_FILE", ""),

		ExtractionStrategy:  mustEnv("EXTRACTION_STRATEGY", "auto"),
		MaxPages:            mustEnvInt("MAX_PAGES", 10),
		MaxWords:            mustEnvInt("MAX_WORDS", 10000),
		RasterDPI:           mustEnvInt("RASTER_DPI", 300),
		Rasterizer:          mustEnv("RASTERIZER", "pdftoppm"),
		PipelineConcurrency: mustEnvInt("PIPELINE_CONCURRENCY", 1),

		ReducerMaxSentences:  mustEnvInt("REDUCER_MAX_SENTENCES", 1000),
		ReducerPreserveOrder: mustEnvBool("REDUCER_PRESERVE_ORDER", true),
		ClassifyMaxChars:     mustEnvInt("CLASSIFY_MAX_CHARS", 4000),
		ClassifyTimeout:      mustEnvSeconds("CLASSIFY_TIMEOUT_SECONDS", 60),

		LLMProvider:      mustEnv("LLM_PROVIDER", "ollama"),
		LLMTemperature:   mustEnvFloat("LLM_TEMPERATURE", 0.7),
		LLMRatePerSecond: mustEnvFloat("LLM_RATE_PER_SECOND", 0),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		OpenAIBaseURL: mustEnv("OPENAI_BASE_URL", "https://api.groq.com/openai/v1"),
		OpenAIAPIKey:  mustEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   mustEnv("OPENAI_MODEL", "llama-3.3-70b-versatile"),

		OCRProvider:     mustEnv("OCR_PROVIDER", "tesseract"),
		TesseractBin:    mustEnv("TESSERACT_BIN", "tesseract"),
		TesseractLang:   mustEnv("TESSERACT_LANG", "eng"),
		PdftoppmBin:     mustEnv("PDFTOPPM_BIN", "pdftoppm"),
		OCRTimeout:      mustEnvSeconds("OCR_TIMEOUT_SECONDS", 120),
		HostedOCRURL:    mustEnv("HOSTED_OCR_URL", ""),
		HostedOCRAPIKey: mustEnv("HOSTED_OCR_API_KEY", ""),
		OCRScriptCmd:    mustEnv("OCR_SCRIPT_CMD", "node"),
		OCRScriptPath:   mustEnv("OCR_SCRIPT_PATH", "llama-ocr.js"),
		TempDir:         mustEnv("SORTER_TMP_DIR", ""),

		JournalDSN: mustEnv("JOURNAL_DSN", ""),

		NATSURL:            mustEnv("NATS_URL", ""),
		NATSSubject:        mustEnv("NATS_SUBJECT", "documents.classified"),
		NATSRequestSubject: mustEnv("NATS_REQUEST_SUBJECT", ""),

		ReportPath: mustEnv("REPORT_PATH", ""),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
		WatchDebounce:     time.Duration(mustEnvInt("WATCH_DEBOUNCE_MS", 1500)) * time.Millisecond,

		RetryMaxAttempts:    mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 1),
		RetryInitialBackoff: time.Duration(mustEnvInt("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", 200)) * time.Millisecond,
		RetryMaxBackoff:     time.Duration(mustEnvInt("RESILIENCE_RETRY_MAX_BACKOFF_MS", 2000)) * time.Millisecond,
		RetryMultiplier:     mustEnvFloat("RESILIENCE_RETRY_MULTIPLIER", 2.0),
		AttemptTimeout:      mustEnvSeconds("RESILIENCE_ATTEMPT_TIMEOUT_SECONDS", 0),

		BreakerEnabled:          mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		BreakerMinRequests:      mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio:     mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.6),
		BreakerOpenTimeout:      mustEnvSeconds("RESILIENCE_BREAKER_OPEN_TIMEOUT_SECONDS", 30),
		BreakerHalfOpenMaxCalls: mustEnvInt("RESILIENCE_BREAKER_HALF_OPEN_MAX_CALLS", 1),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(mustEnvInt(key, fallback)) * time.Second
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
