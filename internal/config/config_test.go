package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServiceName != "gosolo" {
		t.Errorf("ServiceName = %q, want gosolo", cfg.ServiceName)
	}
	if cfg.PoolHost != "solo.ckpool.org" || cfg.PoolPort != 3333 {
		t.Errorf("pool endpoint = %s:%d, want solo.ckpool.org:3333", cfg.PoolHost, cfg.PoolPort)
	}
	if cfg.NonceRangeSize != 1<<22 {
		t.Errorf("NonceRangeSize = %d, want %d", cfg.NonceRangeSize, 1<<22)
	}
	if cfg.ChunkSize != 10000 {
		t.Errorf("ChunkSize = %d, want 10000", cfg.ChunkSize)
	}
	if !cfg.UseHints {
		t.Error("UseHints should default to true")
	}
	if cfg.HintWindow != 500 {
		t.Errorf("HintWindow = %d, want 500", cfg.HintWindow)
	}
	if cfg.MaxRotations != 0 {
		t.Errorf("MaxRotations = %d, want 0 (unlimited)", cfg.MaxRotations)
	}
	if cfg.StatsInterval != 5*time.Second {
		t.Errorf("StatsInterval = %v, want 5s", cfg.StatsInterval)
	}
	if cfg.InfluxURL != "" || cfg.RedisAddr != "" || len(cfg.KafkaBrokers) != 0 {
		t.Error("telemetry sinks should be disabled by default")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("POOL_HOST", "pool.example.com")
	t.Setenv("POOL_PORT", "4444")
	t.Setenv("USE_HINTS", "false")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("MAX_ROTATIONS", "12")
	t.Setenv("KAFKA_BROKERS", "broker-a:9092, broker-b:9092")
	t.Setenv("CONNECT_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.PoolHost != "pool.example.com" || cfg.PoolPort != 4444 {
		t.Errorf("pool endpoint = %s:%d", cfg.PoolHost, cfg.PoolPort)
	}
	if cfg.UseHints {
		t.Error("UseHints should be overridden to false")
	}
	if cfg.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", cfg.ChunkSize)
	}
	if cfg.MaxRotations != 12 {
		t.Errorf("MaxRotations = %d, want 12", cfg.MaxRotations)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "broker-a:9092" || cfg.KafkaBrokers[1] != "broker-b:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("ConnectTimeout = %v, want 30s", cfg.ConnectTimeout)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("POOL_PORT", "not-a-number")
	t.Setenv("USE_HINTS", "maybe")
	t.Setenv("STATS_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.PoolPort != 3333 {
		t.Errorf("PoolPort = %d, want default 3333", cfg.PoolPort)
	}
	if !cfg.UseHints {
		t.Error("unparsable USE_HINTS should fall back to default true")
	}
	if cfg.StatsInterval != 5*time.Second {
		t.Errorf("StatsInterval = %v, want default 5s", cfg.StatsInterval)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			ServiceName:     "gosolo",
			PoolHost:        "pool.example.com",
			PoolPort:        3333,
			NonceRangeSize:  1 << 22,
			ChunkSize:       10000,
			ConnectTimeout:  time.Second,
			ResponseTimeout: time.Second,
			SubmitTimeout:   time.Second,
			StatsInterval:   time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "empty host", mutate: func(c *Config) { c.PoolHost = "" }, wantErr: true},
		{name: "port too high", mutate: func(c *Config) { c.PoolPort = 70000 }, wantErr: true},
		{name: "port zero", mutate: func(c *Config) { c.PoolPort = 0 }, wantErr: true},
		{name: "zero range", mutate: func(c *Config) { c.NonceRangeSize = 0 }, wantErr: true},
		{name: "zero chunk", mutate: func(c *Config) { c.ChunkSize = 0 }, wantErr: true},
		{name: "chunk exceeds range", mutate: func(c *Config) { c.ChunkSize = c.NonceRangeSize + 1 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.SubmitTimeout = 0 }, wantErr: true},
		{name: "zero stats interval", mutate: func(c *Config) { c.StatsInterval = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
