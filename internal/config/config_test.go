package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"SERVICE_PRINCIPAL", "GRPC_PORT", "HTTP_PORT", "LOG_LEVEL",
		"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_DEFAULT_MODEL_SIZE",
		"STORE_BACKEND", "STORE_PATH",
		"WORKER_MAX_CONCURRENT_JOBS", "WORKER_QUEUE_SIZE",
		"OLLAMA_URL", "OLLAMA_DEFAULT_MODEL", "SUMMARY_PROMPT_TEMPLATE", "KAFKA_ENABLED",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
	}

	cfg := Load()

	if cfg.Service.Principal != "svc-meeting-protocol" {
		t.Errorf("expected default principal 'svc-meeting-protocol', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default grpc port '50051', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Service.HTTPPort != "5000" {
		t.Errorf("expected default http port '5000', got %s", cfg.Service.HTTPPort)
	}
	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.DefaultModelSize != "base" {
		t.Errorf("expected default model size 'base', got %s", cfg.STT.DefaultModelSize)
	}
	if cfg.Store.Backend != "file" || cfg.Store.Path != "job_data" {
		t.Errorf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Worker.MaxConcurrentJobs != 2 {
		t.Errorf("expected 2 concurrent jobs, got %d", cfg.Worker.MaxConcurrentJobs)
	}
	if cfg.Worker.QueueSize != 100 {
		t.Errorf("expected queue size 100, got %d", cfg.Worker.QueueSize)
	}
	if cfg.Summarization.OllamaURL != "" {
		t.Errorf("expected no default ollama url, got %s", cfg.Summarization.OllamaURL)
	}
	if cfg.Summarization.OllamaDefaultModel != "llama3" {
		t.Errorf("expected ollama default 'llama3', got %s", cfg.Summarization.OllamaDefaultModel)
	}
	if cfg.Summarization.PromptTemplate != DefaultPromptTemplate {
		t.Errorf("expected default prompt template")
	}
	if _, ok := cfg.Summarization.Models["gpt-4o"]; !ok {
		t.Error("expected gpt-4o in default model registry")
	}
	if cfg.Kafka.Enabled {
		t.Error("expected kafka disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("GRPC_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STT_PROVIDER", "whisper")
	t.Setenv("STORE_BACKEND", "duckdb")
	t.Setenv("WORKER_MAX_CONCURRENT_JOBS", "4")
	t.Setenv("SUMMARY_TIMEOUT", "90s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected custom-principal, got %s", cfg.Service.Principal)
	}
	if cfg.Kafka.Principal != "custom-principal" {
		t.Errorf("expected kafka principal to follow service principal, got %s", cfg.Kafka.Principal)
	}
	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected 9999, got %s", cfg.Service.GRPCPort)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected debug, got %s", cfg.Observability.LogLevel)
	}
	if cfg.STT.Provider != "whisper" {
		t.Errorf("expected whisper, got %s", cfg.STT.Provider)
	}
	if cfg.Store.Backend != "duckdb" {
		t.Errorf("expected duckdb, got %s", cfg.Store.Backend)
	}
	if cfg.Worker.MaxConcurrentJobs != 4 {
		t.Errorf("expected 4, got %d", cfg.Worker.MaxConcurrentJobs)
	}
	if cfg.Summarization.Timeout != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.Summarization.Timeout)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_QUEUE_SIZE", "lots")
	t.Setenv("KAFKA_ENABLED", "maybe")
	t.Setenv("STT_TIMEOUT", "forever")

	cfg := Load()

	if cfg.Worker.QueueSize != 100 {
		t.Errorf("expected fallback 100, got %d", cfg.Worker.QueueSize)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected fallback false")
	}
	if cfg.STT.Timeout != time.Hour {
		t.Errorf("expected fallback 1h, got %v", cfg.STT.Timeout)
	}
}

func TestValidate_RejectsUnknownProviders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
		want   string
	}{
		{"store", func(c *Configuration) { c.Store.Backend = "redis" }, "store.backend"},
		{"stt", func(c *Configuration) { c.STT.Provider = "vosk" }, "stt.provider"},
		{"diarization", func(c *Configuration) { c.Diarization.Provider = "local" }, "diarization.provider"},
		{"template", func(c *Configuration) { c.Summarization.PromptTemplate = "no placeholder" }, "{transcript}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_MergesModelsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	content := `template: "Protokoll zusammenfassen:\n{transcript}"
models:
  mistral-large:
    api: openai
    model_id: mistral-large-latest
  gpt-4o:
    api: openai
    model_id: gpt-4o-2024-08-06
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	cfg.Summarization.ModelsFile = path
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.Summarization.Models["mistral-large"]; got.ModelID != "mistral-large-latest" {
		t.Errorf("expected mistral-large to be added, got %+v", got)
	}
	if got := cfg.Summarization.Models["gpt-4o"]; got.ModelID != "gpt-4o-2024-08-06" {
		t.Errorf("expected gpt-4o to be overridden, got %+v", got)
	}
	if _, ok := cfg.Summarization.Models["bart-large-cnn"]; !ok {
		t.Error("expected built-in models to survive the merge")
	}
	if !strings.HasPrefix(cfg.Summarization.PromptTemplate, "Protokoll") {
		t.Errorf("expected template override, got %q", cfg.Summarization.PromptTemplate)
	}
}

func TestValidate_ModelsFileErrors(t *testing.T) {
	dir := t.TempDir()
	incomplete := filepath.Join(dir, "incomplete.yaml")
	os.WriteFile(incomplete, []byte("models:\n  broken:\n    api: openai\n"), 0o644)
	badTemplate := filepath.Join(dir, "template.yaml")
	os.WriteFile(badTemplate, []byte("template: summarize\n"), 0o644)

	for _, path := range []string{incomplete, badTemplate, filepath.Join(dir, "missing.yaml")} {
		cfg := Load()
		cfg.Summarization.ModelsFile = path
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", filepath.Base(path))
		}
	}
}

func TestEnvOrDefaultList(t *testing.T) {
	t.Setenv("TEST_LIST", " x ,,y")
	got := envOrDefaultList("TEST_LIST", nil)
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("unexpected list: %v", got)
	}
	if got := envOrDefaultList("TEST_LIST_UNSET", []string{"d"}); len(got) != 1 {
		t.Errorf("expected default, got %v", got)
	}
}
