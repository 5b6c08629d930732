package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Corpus
	if cfg.Corpus.Path == "" {
		slog.Warn("corpus.path is empty; the phrase endpoint will serve an empty corpus")
	}

	// VAD thresholds
	if cfg.VAD.SpeechThreshold < 0 || cfg.VAD.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.3f is out of range [0, 1]", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.SilenceThreshold < 0 || cfg.VAD.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.3f is out of range [0, 1]", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.SpeechThreshold != 0 && cfg.VAD.SilenceThreshold > cfg.VAD.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.3f must be at or below vad.speech_threshold %.3f",
			cfg.VAD.SilenceThreshold, cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("vad.debounce_ms %d must not be negative", cfg.VAD.DebounceMs))
	}
	if cfg.VAD.MinSpeechMs < 0 {
		errs = append(errs, fmt.Errorf("vad.min_speech_ms %d must not be negative", cfg.VAD.MinSpeechMs))
	}

	// Game tuning
	if cfg.Game.BaseSpeed < 0 {
		errs = append(errs, fmt.Errorf("game.base_speed %.1f must not be negative", cfg.Game.BaseSpeed))
	}
	if cfg.Game.SpeedIncrement < 0 {
		errs = append(errs, fmt.Errorf("game.speed_increment %.1f must not be negative", cfg.Game.SpeedIncrement))
	}
	if cfg.Game.Lives < 0 {
		errs = append(errs, fmt.Errorf("game.lives %d must not be negative", cfg.Game.Lives))
	}
	if cfg.Game.MaxLevel < 0 {
		errs = append(errs, fmt.Errorf("game.max_level %d must not be negative", cfg.Game.MaxLevel))
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: local, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StoragePostgres && cfg.Storage.Postgres.DSN == "" {
		errs = append(errs, errors.New("storage.postgres.dsn is required when storage.backend is postgres"))
	}
	if (cfg.Storage.Backend == "" || cfg.Storage.Backend == StorageLocal) && cfg.Storage.Local.Dir == "" {
		slog.Warn("storage.local.dir is empty; recordings will be written under ./data")
	}

	// Live feed
	if cfg.Live.PushIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("live.push_interval_ms %d must not be negative", cfg.Live.PushIntervalMs))
	}

	return errors.Join(errs...)
}
