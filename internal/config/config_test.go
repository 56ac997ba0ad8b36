package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15, cfg.Analysis.MaxFrames)
	assert.True(t, cfg.Analysis.FilterFrames)
	assert.Equal(t, 4, cfg.Analysis.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Extraction.Timeout)
	assert.Equal(t, "json", cfg.Storage.Driver)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uitraps.yaml")
	yaml := `
analysis:
  max_frames: 8
  workers: 1
  filter_frames: false
extraction:
  scene_threshold: 0.4
  timeout: 90s
ollama:
  model: llava
  classifier_model: moondream
storage:
  driver: sqlite
  sqlite_path: /tmp/runs.db
log:
  level: debug
context:
  users: field nurses
  tasks: record vitals
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Analysis.MaxFrames)
	assert.Equal(t, 1, cfg.Analysis.Workers)
	assert.False(t, cfg.Analysis.FilterFrames)
	assert.InDelta(t, 0.4, cfg.Extraction.SceneThreshold, 1e-9)
	assert.Equal(t, 90*time.Second, cfg.Extraction.Timeout)
	assert.Equal(t, 3, cfg.Extraction.MinFrames, "unset fields keep defaults")
	assert.Equal(t, "llava", cfg.Ollama.Model)
	assert.Equal(t, "moondream", cfg.Ollama.Classifier())
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "field nurses", cfg.Context.Users)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UITRAPS_MODEL", "llava:13b")
	t.Setenv("UITRAPS_WORKERS", "2")
	t.Setenv("UITRAPS_MAX_FRAMES", "6")
	t.Setenv("UITRAPS_STORAGE_DRIVER", "postgres")
	t.Setenv("UITRAPS_POSTGRES_DSN", "postgres://u:p@db:5432/uitraps")
	t.Setenv("UITRAPS_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "llava:13b", cfg.Ollama.Model)
	assert.Equal(t, 2, cfg.Analysis.Workers)
	assert.Equal(t, 6, cfg.Analysis.MaxFrames)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/uitraps", cfg.Storage.PostgresDSN)
	assert.Equal(t, "llava:13b", cfg.Ollama.Classifier())
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("UITRAPS_WORKERS", "many")
	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero frames", func(c *Config) { c.Analysis.MaxFrames = 0 }, "max_frames"},
		{"zero workers", func(c *Config) { c.Analysis.Workers = 0 }, "workers"},
		{"negative rate", func(c *Config) { c.Analysis.RateLimitRPS = -1 }, "rate_limit_rps"},
		{"threshold", func(c *Config) { c.Extraction.SceneThreshold = 1.5 }, "scene_threshold"},
		{"no model", func(c *Config) { c.Ollama.Model = "" }, "ollama.model"},
		{"driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "postgres_dsn"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyEnv_IgnoresEmpty(t *testing.T) {
	cfg := Default()
	env := map[string]string{"UITRAPS_MODEL": "", "UITRAPS_OLLAMA_URL": "http://gpu-box"}
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, "llama3.2-vision", cfg.Ollama.Model)
	assert.Equal(t, "http://gpu-box", cfg.Ollama.BaseURL)
}
