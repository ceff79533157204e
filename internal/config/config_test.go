package config

import (
	"errors"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	t.Setenv("TG_CHANNEL", "")
	t.Setenv("IMPORT_BATCH_SIZE", "")
	t.Setenv("MEDIA_MAX_BYTES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TGChannel != "akibaautovl" {
		t.Errorf("TGChannel = %q, want %q", cfg.TGChannel, "akibaautovl")
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.MediaMaxBytes != 10*1024*1024 {
		t.Errorf("MediaMaxBytes = %d, want 10 MiB", cfg.MediaMaxBytes)
	}
}

func TestConfig_FromEnv(t *testing.T) {
	t.Setenv("TG_CHANNEL", "@somechannel")
	t.Setenv("IMPORT_BATCH_SIZE", "500")
	t.Setenv("IMPORT_FETCH_TIMEOUT_SECONDS", "5")
	t.Setenv("IMPORT_INTERVAL_MINUTES", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TGChannel != "somechannel" {
		t.Errorf("TGChannel = %q, want %q", cfg.TGChannel, "somechannel")
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want clamp to 100", cfg.BatchSize)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("FetchTimeout = %v, want 5s", cfg.FetchTimeout)
	}
	if cfg.ImportInterval != 15*time.Minute {
		t.Errorf("ImportInterval = %v, want 15m", cfg.ImportInterval)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "missing both", cfg: Config{}, wantErr: true},
		{name: "missing hash", cfg: Config{TGApiID: 1}, wantErr: true},
		{name: "missing id", cfg: Config{TGApiHash: "abc"}, wantErr: true},
		{name: "complete", cfg: Config{TGApiID: 1, TGApiHash: "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("Validate() = %v, want ErrMissingCredentials", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}
