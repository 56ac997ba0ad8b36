package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdougie/uitraps/internal/models"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "UITRAPS_"

var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete analyzer configuration
type Config struct {
	Analysis   AnalysisConfig         `yaml:"analysis"`
	Extraction ExtractionConfig       `yaml:"extraction"`
	Ollama     OllamaConfig           `yaml:"ollama"`
	Storage    StorageConfig          `yaml:"storage"`
	Log        LogConfig              `yaml:"log"`
	Context    models.AnalysisContext `yaml:"context"`
}

// AnalysisConfig controls frame selection and annotation concurrency
type AnalysisConfig struct {
	MaxFrames    int     `yaml:"max_frames"`     // frames analyzed per video
	FilterFrames bool    `yaml:"filter_frames"`  // two-pass quality selection
	Workers      int     `yaml:"workers"`        // concurrent annotator calls, 1 is sequential
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // 0 disables pacing
	Burst        int     `yaml:"burst"`
}

// ExtractionConfig contains ffmpeg settings
type ExtractionConfig struct {
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	FFprobePath    string        `yaml:"ffprobe_path"`
	SceneThreshold float64       `yaml:"scene_threshold"`
	MinFrames      int           `yaml:"min_frames"`
	MaxFrames      int           `yaml:"max_frames"`
	Timeout        time.Duration `yaml:"timeout"`
	TempDir        string        `yaml:"temp_dir"`
}

// OllamaConfig describes the model endpoint
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Port    int    `yaml:"port"`
	Model   string `yaml:"model"`
	// ClassifierModel is used for quality prefiltering, Model when empty
	ClassifierModel string `yaml:"classifier_model"`
}

// StorageConfig selects where runs are recorded
type StorageConfig struct {
	Driver        string `yaml:"driver"` // json, sqlite, postgres
	OutputDir     string `yaml:"output_dir"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	EmbeddingDims int    `yaml:"embedding_dims"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			MaxFrames:    15,
			FilterFrames: true,
			Workers:      4,
			Burst:        1,
		},
		Extraction: ExtractionConfig{
			SceneThreshold: 0.3,
			MinFrames:      3,
			MaxFrames:      20,
			Timeout:        5 * time.Minute,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost",
			Port:    11434,
			Model:   "llama3.2-vision",
		},
		Storage: StorageConfig{
			Driver:        "json",
			OutputDir:     "uitraps_runs",
			SQLitePath:    "uitraps.db",
			EmbeddingDims: 64,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not a number", ErrInvalid, EnvPrefix, name, v)
		}
		*dst = n
		return nil
	}

	str("OLLAMA_URL", &c.Ollama.BaseURL)
	str("MODEL", &c.Ollama.Model)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("LOG_LEVEL", &c.Log.Level)

	if err := num("WORKERS", &c.Analysis.Workers); err != nil {
		return err
	}
	return num("MAX_FRAMES", &c.Analysis.MaxFrames)
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Analysis.MaxFrames < 1 {
		errs = append(errs, fmt.Errorf("analysis.max_frames must be at least 1, got %d", c.Analysis.MaxFrames))
	}
	if c.Analysis.Workers < 1 {
		errs = append(errs, fmt.Errorf("analysis.workers must be at least 1, got %d", c.Analysis.Workers))
	}
	if c.Analysis.RateLimitRPS < 0 {
		errs = append(errs, errors.New("analysis.rate_limit_rps must not be negative"))
	}
	if c.Extraction.SceneThreshold <= 0 || c.Extraction.SceneThreshold >= 1 {
		errs = append(errs, fmt.Errorf("extraction.scene_threshold must be in (0, 1), got %g", c.Extraction.SceneThreshold))
	}
	if c.Ollama.Model == "" {
		errs = append(errs, errors.New("ollama.model is required"))
	}

	switch c.Storage.Driver {
	case "json", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of json, sqlite, postgres", c.Storage.Driver))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses the configured log level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Classifier returns the model used for quality prefiltering
func (o OllamaConfig) Classifier() string {
	if o.ClassifierModel != "" {
		return o.ClassifierModel
	}
	return o.Model
}
