package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration holds every setting of the service. It is loaded once at
// startup and passed to components at construction.
type Configuration struct {
	Service       ServiceConfig
	Store         StoreConfig
	Worker        WorkerConfig
	Audio         AudioConfig
	Diarization   DiarizationConfig
	STT           STTConfig
	Summarization SummarizationConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
	Inbox         InboxConfig
}

type ServiceConfig struct {
	Principal      string
	HTTPPort       string
	GRPCPort       string
	APIKey         string
	WorkDir        string
	AllowedOrigins []string
	MaxUploadBytes int64
}

type StoreConfig struct {
	Backend string // file, duckdb
	Path    string
}

type WorkerConfig struct {
	MaxConcurrentJobs int
	QueueSize         int
}

type AudioConfig struct {
	FFmpegPath   string
	SampleRateHz int
	Timeout      time.Duration
}

type DiarizationConfig struct {
	Provider         string // http, mock
	URL              string
	HuggingFaceToken string
	Timeout          time.Duration
}

type STTConfig struct {
	Provider         string // mock, google, whisper
	DefaultModelSize string
	LanguageCode     string
	WhisperBinary    string
	GoogleModel      string
	Timeout          time.Duration
}

// ModelSpec maps a summarization model identifier to a backend API.
type ModelSpec struct {
	API     string `yaml:"api"`
	ModelID string `yaml:"model_id"`
}

type SummarizationConfig struct {
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	HuggingFaceAPIKey  string
	HuggingFaceBaseURL string
	GeminiAPIKey       string
	GeminiBaseURL      string
	// OllamaURL is used when a request selects the self-hosted backend
	// without its own URL.
	OllamaURL          string
	OllamaDefaultModel string
	PromptTemplate     string
	SystemPrompt       string
	ModelsFile         string
	Models             map[string]ModelSpec
	Timeout            time.Duration
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicStatus  string
	TopicSummary string
	Principal    string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

type InboxConfig struct {
	Dir string
}

// DefaultPromptTemplate is used when no template is configured. The
// {transcript} placeholder receives the rendered protocol.
const DefaultPromptTemplate = "Summarize the following meeting transcript. List the topics discussed, decisions made and action items with owners.\n\n{transcript}"

// DefaultSystemPrompt is sent to chat-completion backends.
const DefaultSystemPrompt = "You are a helpful assistant specialized in summarizing meeting protocols."

// DefaultModels returns the built-in summarization model registry.
func DefaultModels() map[string]ModelSpec {
	return map[string]ModelSpec{
		"gpt-4o":         {API: "openai", ModelID: "gpt-4o"},
		"gpt-4o-mini":    {API: "openai", ModelID: "gpt-4o-mini"},
		"bart-large-cnn": {API: "huggingface", ModelID: "facebook/bart-large-cnn"},
		"gemini-flash":   {API: "gemini", ModelID: "gemini-2.5-flash"},
	}
}

// Load reads the configuration from environment variables. Values that fail
// to parse fall back to their defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-meeting-protocol")

	return &Configuration{
		Service: ServiceConfig{
			Principal:      principal,
			HTTPPort:       envOrDefault("HTTP_PORT", "5000"),
			GRPCPort:       envOrDefault("GRPC_PORT", "50051"),
			APIKey:         os.Getenv("MICROSERVICE_API_KEY"),
			WorkDir:        envOrDefault("WORK_DIR", os.TempDir()),
			AllowedOrigins: envOrDefaultList("CORS_ALLOWED_ORIGINS", nil),
			MaxUploadBytes: envOrDefaultInt64("MAX_UPLOAD_BYTES", 1<<30),
		},
		Store: StoreConfig{
			Backend: envOrDefault("STORE_BACKEND", "file"),
			Path:    envOrDefault("STORE_PATH", "job_data"),
		},
		Worker: WorkerConfig{
			MaxConcurrentJobs: envOrDefaultInt("WORKER_MAX_CONCURRENT_JOBS", 2),
			QueueSize:         envOrDefaultInt("WORKER_QUEUE_SIZE", 100),
		},
		Audio: AudioConfig{
			FFmpegPath:   envOrDefault("FFMPEG_PATH", "ffmpeg"),
			SampleRateHz: envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", 16000),
			Timeout:      envOrDefaultDuration("AUDIO_TIMEOUT", 10*time.Minute),
		},
		Diarization: DiarizationConfig{
			Provider:         envOrDefault("DIARIZATION_PROVIDER", "mock"),
			URL:              os.Getenv("DIARIZATION_URL"),
			HuggingFaceToken: os.Getenv("HUGGINGFACE_API_KEY"),
			Timeout:          envOrDefaultDuration("DIARIZATION_TIMEOUT", 30*time.Minute),
		},
		STT: STTConfig{
			Provider:         envOrDefault("STT_PROVIDER", "mock"),
			DefaultModelSize: envOrDefault("STT_DEFAULT_MODEL_SIZE", "base"),
			LanguageCode:     envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			WhisperBinary:    envOrDefault("WHISPER_BINARY", "whisper"),
			GoogleModel:      envOrDefault("STT_GOOGLE_MODEL", "latest_long"),
			Timeout:          envOrDefaultDuration("STT_TIMEOUT", time.Hour),
		},
		Summarization: SummarizationConfig{
			OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:      envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			HuggingFaceAPIKey:  os.Getenv("HUGGINGFACE_API_KEY"),
			HuggingFaceBaseURL: envOrDefault("HUGGINGFACE_BASE_URL", "https://api-inference.huggingface.co"),
			GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
			GeminiBaseURL:      os.Getenv("GEMINI_BASE_URL"),
			OllamaURL:          os.Getenv("OLLAMA_URL"),
			OllamaDefaultModel: envOrDefault("OLLAMA_DEFAULT_MODEL", "llama3"),
			PromptTemplate:     envOrDefault("SUMMARY_PROMPT_TEMPLATE", DefaultPromptTemplate),
			SystemPrompt:       envOrDefault("SUMMARY_SYSTEM_PROMPT", DefaultSystemPrompt),
			ModelsFile:         os.Getenv("SUMMARY_MODELS_FILE"),
			Models:             DefaultModels(),
			Timeout:            envOrDefaultDuration("SUMMARY_TIMEOUT", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicStatus:  envOrDefault("KAFKA_TOPIC_STATUS", "meeting.job.status"),
			TopicSummary: envOrDefault("KAFKA_TOPIC_SUMMARY", "meeting.job.summary"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		Inbox: InboxConfig{
			Dir: os.Getenv("INBOX_DIR"),
		},
	}
}

// modelsFile is the YAML layout of SUMMARY_MODELS_FILE.
type modelsFile struct {
	Template     string               `yaml:"template"`
	SystemPrompt string               `yaml:"system_prompt"`
	Models       map[string]ModelSpec `yaml:"models"`
}

// Validate rejects unknown providers and merges SUMMARY_MODELS_FILE into the
// summarization settings.
func (c *Configuration) Validate() error {
	switch c.Store.Backend {
	case "file", "duckdb":
	default:
		return fmt.Errorf("store.backend must be file or duckdb, got %q", c.Store.Backend)
	}
	switch c.STT.Provider {
	case "mock", "google", "whisper":
	default:
		return fmt.Errorf("stt.provider must be mock, google or whisper, got %q", c.STT.Provider)
	}
	switch c.Diarization.Provider {
	case "mock", "http":
	default:
		return fmt.Errorf("diarization.provider must be mock or http, got %q", c.Diarization.Provider)
	}
	if c.Worker.MaxConcurrentJobs <= 0 {
		c.Worker.MaxConcurrentJobs = 2
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 100
	}
	if !strings.Contains(c.Summarization.PromptTemplate, "{transcript}") {
		return fmt.Errorf("summary prompt template must contain {transcript}")
	}

	if c.Summarization.ModelsFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Summarization.ModelsFile)
	if err != nil {
		return fmt.Errorf("read models file: %w", err)
	}
	var mf modelsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("parse models file: %w", err)
	}
	if c.Summarization.Models == nil {
		c.Summarization.Models = make(map[string]ModelSpec)
	}
	for id, spec := range mf.Models {
		if spec.API == "" || spec.ModelID == "" {
			return fmt.Errorf("models file: model %q needs api and model_id", id)
		}
		c.Summarization.Models[id] = spec
	}
	if mf.Template != "" {
		if !strings.Contains(mf.Template, "{transcript}") {
			return fmt.Errorf("models file: template must contain {transcript}")
		}
		c.Summarization.PromptTemplate = mf.Template
	}
	if mf.SystemPrompt != "" {
		c.Summarization.SystemPrompt = mf.SystemPrompt
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
