package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/carivox/voicerunner/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
corpus:
  path: configs/corpus.yaml
vad:
  speech_threshold: 0.08
  silence_threshold: 0.03
  debounce_ms: 300
  min_speech_ms: 200
game:
  base_speed: 150
  speed_increment: 25
  lives: 3
  level_up_threshold: 500
  max_level: 10
  invincibility_ms: 1500
storage:
  backend: local
  local:
    dir: ./data
live:
  enabled: true
  push_interval_ms: 2000
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Storage.Backend != config.StorageLocal {
		t.Errorf("storage backend = %q, want local", cfg.Storage.Backend)
	}
	if cfg.VAD.SpeechThreshold != 0.08 {
		t.Errorf("speech threshold = %v, want 0.08", cfg.VAD.SpeechThreshold)
	}
}

func TestLoadFromReader_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "server:\n  listen_adr: \":8080\"\n",
			wantErr: "decode yaml",
		},
		{
			name:    "bad log level",
			yaml:    "server:\n  log_level: verbose\n",
			wantErr: "log_level",
		},
		{
			name:    "tls without key",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: "key_file",
		},
		{
			name:    "silence above speech",
			yaml:    "vad:\n  speech_threshold: 0.05\n  silence_threshold: 0.09\n",
			wantErr: "silence_threshold",
		},
		{
			name:    "threshold out of range",
			yaml:    "vad:\n  speech_threshold: 1.5\n",
			wantErr: "out of range",
		},
		{
			name:    "negative debounce",
			yaml:    "vad:\n  debounce_ms: -10\n",
			wantErr: "debounce_ms",
		},
		{
			name:    "negative lives",
			yaml:    "game:\n  lives: -1\n",
			wantErr: "lives",
		},
		{
			name:    "bad storage backend",
			yaml:    "storage:\n  backend: s3\n",
			wantErr: "storage.backend",
		},
		{
			name:    "postgres without dsn",
			yaml:    "storage:\n  backend: postgres\n",
			wantErr: "dsn",
		},
		{
			name:    "negative push interval",
			yaml:    "live:\n  push_interval_ms: -5\n",
			wantErr: "push_interval_ms",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("want error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "verbose"
	cfg.VAD.DebounceMs = -1
	cfg.Game.Lives = -3
	cfg.Storage.Backend = "s3"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("want error, got nil")
	}
	for _, want := range []string{"log_level", "debounce_ms", "lives", "storage.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q does not mention %q", err, want)
		}
	}
}

func TestVADConfig_Detector(t *testing.T) {
	t.Parallel()

	c := config.VADConfig{
		SpeechThreshold:  0.1,
		SilenceThreshold: 0.04,
		DebounceMs:       250,
		MinSpeechMs:      150,
	}
	d := c.Detector()
	if d.SpeechThreshold != 0.1 || d.SilenceThreshold != 0.04 {
		t.Errorf("thresholds = %v/%v, want 0.1/0.04", d.SpeechThreshold, d.SilenceThreshold)
	}
	if d.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %v, want 250ms", d.Debounce)
	}
	if d.MinSpeech != 150*time.Millisecond {
		t.Errorf("min speech = %v, want 150ms", d.MinSpeech)
	}
}

func TestGameConfig_Scheduler(t *testing.T) {
	t.Parallel()

	c := config.GameConfig{
		BaseSpeed:        200,
		SpeedIncrement:   30,
		Lives:            5,
		LevelUpThreshold: 600,
		MaxLevel:         8,
		InvincibilityMs:  1000,
	}
	g := c.Scheduler()
	if g.BaseSpeed != 200 || g.SpeedIncrement != 30 {
		t.Errorf("speeds = %v/%v, want 200/30", g.BaseSpeed, g.SpeedIncrement)
	}
	if g.Lives != 5 || g.LevelUpThreshold != 600 || g.MaxLevel != 8 {
		t.Errorf("run tuning = %d/%d/%d, want 5/600/8", g.Lives, g.LevelUpThreshold, g.MaxLevel)
	}
	if g.Invincibility != time.Second {
		t.Errorf("invincibility = %v, want 1s", g.Invincibility)
	}
}
