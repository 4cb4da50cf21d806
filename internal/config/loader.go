package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Whisper.ServerURL != "" {
		if u, err := url.Parse(cfg.Whisper.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("whisper.server_url %q is not an absolute URL", cfg.Whisper.ServerURL))
		}
	}

	if cfg.StudyGuide.APIKey != "" && cfg.StudyGuide.Model == "" {
		errs = append(errs, errors.New("study_guide.model is required when study_guide.api_key is set"))
	}

	if cfg.Pipeline.JobTimeout < 0 {
		errs = append(errs, errors.New("pipeline.job_timeout must not be negative"))
	}
	if cfg.Pipeline.UploadConcurrency < 0 {
		errs = append(errs, errors.New("pipeline.upload_concurrency must not be negative"))
	}
	if t := cfg.Pipeline.AnchorThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("pipeline.anchor_threshold %v must be between 0 and 1", t))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %w", errors.Join(errs...))
	}
	return nil
}
