package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/calebmoss/berea/internal/config"
)

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: info
storage:
  postgres_dsn: "postgres://localhost/berea"
whisper:
  server_url: "http://localhost:9000"
  language: en
study_guide:
  api_key: sk-test
  model: gpt-4o
pipeline:
  job_timeout: 5m
  upload_concurrency: 4
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Pipeline.JobTimeout != 5*time.Minute {
		t.Errorf("job_timeout = %v, want 5m", cfg.Pipeline.JobTimeout)
	}
	if cfg.Pipeline.UploadConcurrency != 4 {
		t.Errorf("upload_concurrency = %d, want 4", cfg.Pipeline.UploadConcurrency)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  not_a_field: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_WhisperURLMustBeAbsolute(t *testing.T) {
	t.Parallel()
	yaml := `
whisper:
  server_url: "localhost:9000"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for relative whisper URL, got nil")
	}
	if !strings.Contains(err.Error(), "server_url") {
		t.Errorf("error should mention server_url, got: %v", err)
	}
}

func TestValidate_StudyGuideKeyRequiresModel(t *testing.T) {
	t.Parallel()
	yaml := `
study_guide:
  api_key: sk-test
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for api_key without model, got nil")
	}
	if !strings.Contains(err.Error(), "model") {
		t.Errorf("error should mention model, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/berea/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS missing key file, got nil")
	}
}

func TestValidate_AnchorThresholdRange(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  anchor_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range anchor threshold, got nil")
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
pipeline:
  upload_concurrency: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") || !strings.Contains(err.Error(), "upload_concurrency") {
		t.Errorf("error should report both failures, got: %v", err)
	}
}
