package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 15, cfg.Generator.ChunkSize)
	assert.Equal(t, "all", cfg.Generator.Strategy)
	assert.Equal(t, "replace", cfg.Generator.ValueStrategy)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Contains(t, cfg.Logger.OutputPaths, "stderr")
	assert.False(t, cfg.Telemetry.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestRedisConfig(t *testing.T) {
	config := RedisConfig{
		Addr:         "localhost:6379",
		Key:          "x9:seen",
		TTL:          time.Hour,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, "x9:seen", config.Key)
	assert.Equal(t, 3, config.MaxRetries)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "zero chunk",
			mutate:  func(c *Config) { c.Generator.ChunkSize = 0 },
			wantErr: "chunk_size",
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Worker.Count = -1 },
			wantErr: "worker.count",
		},
		{
			name:    "unknown output format",
			mutate:  func(c *Config) { c.Output.Format = "xml" },
			wantErr: "output.format",
		},
		{
			name:    "unknown dispatch method",
			mutate:  func(c *Config) { c.Dispatch.Method = "put" },
			wantErr: "dispatch.method",
		},
		{
			name:   "post dispatch",
			mutate: func(c *Config) { c.Dispatch.Method = "post" },
		},
		{
			name:    "auth without key",
			mutate:  func(c *Config) { c.Security.EnableAuth = true },
			wantErr: "api_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
