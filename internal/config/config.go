// Package config provides the configuration schema and loader for the berea
// sermon processing server.
package config

import "time"

// LogLevel controls log verbosity for the berea server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for berea.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	BibleDB    BibleDBConfig    `yaml:"bibledb"`
	Whisper    WhisperConfig    `yaml:"whisper"`
	StudyGuide StudyGuideConfig `yaml:"study_guide"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the berea server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// StorageConfig selects where sermons, transcripts, study guides and
// engagement records are persisted.
type StorageConfig struct {
	// PostgresDSN is the connection string for the sermon store. When empty
	// the server keeps everything in memory, which is only useful for
	// development and tests.
	PostgresDSN string `yaml:"postgres_dsn"`

	// AudioDir is the directory uploaded chunk audio is archived under.
	// Defaults to a berea-audio directory in the system temp dir.
	AudioDir string `yaml:"audio_dir"`
}

// BibleDBConfig configures the cross-reference and insight lookup database
// used for study guide verification.
type BibleDBConfig struct {
	// PostgresDSN is the connection string for the lookup database. When
	// empty, verification runs against an empty in-memory lookup and every
	// suggested verse classifies as partial at best.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// WhisperConfig configures the speech-to-text backend.
type WhisperConfig struct {
	// ServerURL is the base URL of a whisper.cpp server exposing /inference.
	ServerURL string `yaml:"server_url"`

	// Language is the ISO 639-1 transcription language hint (e.g., "en").
	Language string `yaml:"language"`
}

// StudyGuideConfig configures the LLM used for study guide generation.
type StudyGuideConfig struct {
	// APIKey authenticates against the OpenAI-compatible API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default API endpoint. Leave empty for the
	// provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects the chat model (e.g., "gpt-4o").
	Model string `yaml:"model"`
}

// PipelineConfig tunes processing behaviour.
type PipelineConfig struct {
	// JobTimeout bounds a single transcription or study guide job. Zero
	// means the orchestrator default.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// UploadConcurrency bounds parallel chunk uploads. Zero means the
	// driver default.
	UploadConcurrency int `yaml:"upload_concurrency"`

	// AnchorThreshold overrides the minimum similarity for quote anchoring.
	// Zero keeps the resolver default.
	AnchorThreshold float64 `yaml:"anchor_threshold"`
}
