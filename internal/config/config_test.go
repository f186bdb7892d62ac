package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.WSReadTimeout != 60*time.Second {
					t.Errorf("expected WSReadTimeout 60s, got %v", cfg.WSReadTimeout)
				}
				if cfg.StoreMode != "memory" {
					t.Errorf("expected store mode memory, got %s", cfg.StoreMode)
				}
				if cfg.DrainInterval != 5*time.Second {
					t.Errorf("expected DrainInterval 5s, got %v", cfg.DrainInterval)
				}
				if cfg.TransferTimeout != 5*time.Second {
					t.Errorf("expected TransferTimeout 5s, got %v", cfg.TransferTimeout)
				}
				if cfg.SLThresholdSecs != 20 {
					t.Errorf("expected SL threshold 20, got %d", cfg.SLThresholdSecs)
				}
				if cfg.QueueDepthWarning != 5 || cfg.QueueDepthCritical != 15 {
					t.Errorf("unexpected queue depth thresholds: %d/%d", cfg.QueueDepthWarning, cfg.QueueDepthCritical)
				}
				if cfg.AlertCooldown != 5*time.Minute {
					t.Errorf("expected AlertCooldown 5m, got %v", cfg.AlertCooldown)
				}
				if cfg.RollupSchedule != "0 2 * * *" {
					t.Errorf("expected default rollup schedule, got %s", cfg.RollupSchedule)
				}
				if cfg.VoiceProviderURL != "" {
					t.Errorf("expected voice provider disabled by default, got %s", cfg.VoiceProviderURL)
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":               "9000",
				"LOG_LEVEL":          "debug",
				"WS_READ_TIMEOUT":    "30",
				"WS_WRITE_TIMEOUT":   "5",
				"ALLOWED_ORIGINS":    "http://example.com,http://test.com",
				"STORE_MODE":         "postgres",
				"DATABASE_URL":       "postgres://sb:sb@localhost:5432/switchboard",
				"DRAIN_INTERVAL":     "2",
				"TRANSFER_TIMEOUT":   "10",
				"SL_THRESHOLD_SECS":  "30",
				"VOICE_PROVIDER_URL": "http://localhost:9090",
				"QUEUE_WAIT_WARNING": "45",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("expected log level debug, got %s", cfg.LogLevel)
				}
				if cfg.WSReadTimeout != 30*time.Second {
					t.Errorf("expected WSReadTimeout 30s, got %v", cfg.WSReadTimeout)
				}
				if cfg.WSWriteTimeout != 5*time.Second {
					t.Errorf("expected WSWriteTimeout 5s, got %v", cfg.WSWriteTimeout)
				}
				if len(cfg.AllowedOrigins) != 2 {
					t.Errorf("expected 2 allowed origins, got %d", len(cfg.AllowedOrigins))
				}
				if cfg.StoreMode != "postgres" {
					t.Errorf("expected store mode postgres, got %s", cfg.StoreMode)
				}
				if cfg.DrainInterval != 2*time.Second {
					t.Errorf("expected DrainInterval 2s, got %v", cfg.DrainInterval)
				}
				if cfg.TransferTimeout != 10*time.Second {
					t.Errorf("expected TransferTimeout 10s, got %v", cfg.TransferTimeout)
				}
				if cfg.SLThresholdSecs != 30 {
					t.Errorf("expected SL threshold 30, got %d", cfg.SLThresholdSecs)
				}
				if cfg.VoiceProviderURL != "http://localhost:9090" {
					t.Errorf("unexpected voice provider URL: %s", cfg.VoiceProviderURL)
				}
				if cfg.QueueWaitWarning != 45*time.Second {
					t.Errorf("expected QueueWaitWarning 45s, got %v", cfg.QueueWaitWarning)
				}
			},
		},
		{
			name: "invalid WS_READ_TIMEOUT",
			env: map[string]string{
				"WS_READ_TIMEOUT": "invalid",
			},
			wantErr: true,
		},
		{
			name: "invalid WS_WRITE_TIMEOUT",
			env: map[string]string{
				"WS_WRITE_TIMEOUT": "invalid",
			},
			wantErr: true,
		},
		{
			name: "invalid DRAIN_INTERVAL",
			env: map[string]string{
				"DRAIN_INTERVAL": "soon",
			},
			wantErr: true,
		},
		{
			name: "invalid QUEUE_DEPTH_WARNING",
			env: map[string]string{
				"QUEUE_DEPTH_WARNING": "many",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Load config
			cfg, err := Load()

			// Check error
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// Run custom checks
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestWebSocketConstants(t *testing.T) {
	// Clear environment and set clean defaults
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// PongWait should equal WSReadTimeout
	if cfg.PongWait != cfg.WSReadTimeout {
		t.Errorf("PongWait (%v) should equal WSReadTimeout (%v)", cfg.PongWait, cfg.WSReadTimeout)
	}

	// PingPeriod should be less than PongWait
	if cfg.PingPeriod >= cfg.PongWait {
		t.Errorf("PingPeriod (%v) should be less than PongWait (%v)", cfg.PingPeriod, cfg.PongWait)
	}

	// WriteWait should equal WSWriteTimeout
	if cfg.WriteWait != cfg.WSWriteTimeout {
		t.Errorf("WriteWait (%v) should equal WSWriteTimeout (%v)", cfg.WriteWait, cfg.WSWriteTimeout)
	}

	// MaxMessageSize should be set
	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize should be positive, got %d", cfg.MaxMessageSize)
	}
}
