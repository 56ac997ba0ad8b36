package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bdougie/uitraps/internal/analyzer"
	"github.com/bdougie/uitraps/internal/config"
	"github.com/bdougie/uitraps/internal/embeddings"
	"github.com/bdougie/uitraps/internal/extractor"
	"github.com/bdougie/uitraps/internal/models"
	"github.com/bdougie/uitraps/internal/observe"
	"github.com/bdougie/uitraps/internal/pipeline"
	"github.com/bdougie/uitraps/internal/quality"
	"github.com/bdougie/uitraps/internal/storage"
)

const metricsNamespace = "uitraps"

func newVideoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video <recording>",
		Short: "Analyze a screen recording frame by frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := extractor.Validate(args[0]); err != nil {
				return err
			}
			return runAnalysis(cmd, true, func(ctx context.Context, p *pipeline.Pipeline, actx models.AnalysisContext) (*models.Run, error) {
				return p.AnalyzeVideo(ctx, args[0], actx)
			})
		},
	}
	addAnalysisFlags(cmd)
	cmd.Flags().Int("max-frames", 0, "Frames to analyze (default from config)")
	cmd.Flags().Bool("no-filter", false, "Skip quality prefiltering of extracted frames")
	return cmd
}

func newImagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images <screenshot>...",
		Short: "Analyze a set of screenshots as one flow",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("screenshot not found: %w", err)
				}
			}
			return runAnalysis(cmd, false, func(ctx context.Context, p *pipeline.Pipeline, actx models.AnalysisContext) (*models.Run, error) {
				return p.AnalyzeImages(ctx, args, actx)
			})
		},
	}
	addAnalysisFlags(cmd)
	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find stored findings similar to a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			embedder := newEmbedder(cfg.Storage)
			if embedder != nil {
				defer embedder.Close()
			}
			store, err := openStorage(ctx, cfg.Storage, embedder, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			searcher, ok := store.(storage.Searcher)
			if !ok {
				return fmt.Errorf("%w: %s", storage.ErrSearchUnsupported, cfg.Storage.Driver)
			}
			matches, err := searcher.SearchSimilarFindings(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd, matches)
			}
			renderMatches(cmd.OutOrStdout(), matches)
			return nil
		},
	}
	cmd.Flags().Int("limit", 5, "Maximum number of findings to return")
	return cmd
}

func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().String("users", "", "Who the target users are")
	cmd.Flags().String("tasks", "", "What the users are trying to do")
	cmd.Flags().String("format", "", "Product format, e.g. mobile app or web dashboard")
	cmd.Flags().Int("workers", 0, "Concurrent annotator calls (default from config)")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics for the run to this file")
}

type analyzeFunc func(ctx context.Context, p *pipeline.Pipeline, actx models.AnalysisContext) (*models.Run, error)

func runAnalysis(cmd *cobra.Command, video bool, analyze analyzeFunc) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	registry := prometheus.NewRegistry()
	observer := observe.Multi{
		observe.NewLogObserver(logger),
		observe.NewMetrics(metricsNamespace, registry),
	}

	p, err := newPipeline(ctx, cfg, video, observer, logger)
	if err != nil {
		return err
	}

	embedder := newEmbedder(cfg.Storage)
	if embedder != nil {
		defer embedder.Close()
	}
	store, err := openStorage(ctx, cfg.Storage, embedder, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := analyze(ctx, p, cfg.Context)
	if err != nil {
		return err
	}

	if err := store.SaveRun(ctx, run); err != nil {
		logger.Error("failed to save run", "run", run.ID, "error", err)
	} else if err := store.Flush(); err != nil {
		logger.Error("failed to flush storage", "error", err)
	}

	if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
		if err := prometheus.WriteToTextfile(path, registry); err != nil {
			logger.Warn("failed to write metrics", "path", path, "error", err)
		}
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return writeJSON(cmd, run)
	}
	renderRun(cmd.OutOrStdout(), run)
	return nil
}

// applyFlags layers command line flags over the loaded config
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if v, _ := flags.GetString("users"); v != "" {
		cfg.Context.Users = v
	}
	if v, _ := flags.GetString("tasks"); v != "" {
		cfg.Context.Tasks = v
	}
	if v, _ := flags.GetString("format"); v != "" {
		cfg.Context.Format = v
	}
	if flags.Changed("workers") {
		cfg.Analysis.Workers, _ = flags.GetInt("workers")
	}
	if flags.Lookup("max-frames") != nil && flags.Changed("max-frames") {
		cfg.Analysis.MaxFrames, _ = flags.GetInt("max-frames")
	}
	if flags.Lookup("no-filter") != nil {
		if noFilter, _ := flags.GetBool("no-filter"); noFilter {
			cfg.Analysis.FilterFrames = false
		}
	}
}

// newPipeline connects to Ollama and assembles the analysis stages
func newPipeline(ctx context.Context, cfg *config.Config, video bool, observer observe.Observer, logger *slog.Logger) (*pipeline.Pipeline, error) {
	agentCfg := analyzer.AgentConfig{
		BaseURL: cfg.Ollama.BaseURL,
		Port:    cfg.Ollama.Port,
		Model:   cfg.Ollama.Model,
	}
	vision, err := analyzer.NewVision(ctx, logger, agentCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vision agent: %w", err)
	}

	processor := analyzer.NewProcessor(
		analyzer.NewAgentAnnotator(vision),
		analyzer.WithWorkers(cfg.Analysis.Workers),
		analyzer.WithRateLimit(cfg.Analysis.RateLimitRPS, cfg.Analysis.Burst),
		analyzer.WithObserver(observer),
		analyzer.WithLogger(logger),
	)

	opts := []pipeline.Option{
		pipeline.WithObserver(observer),
		pipeline.WithLogger(logger),
		pipeline.WithMaxFrames(cfg.Analysis.MaxFrames),
		pipeline.WithFiltering(cfg.Analysis.FilterFrames),
	}
	if !video {
		return pipeline.New(processor, opts...), nil
	}

	ffmpeg, err := extractor.New(extractor.Options{
		FFmpegPath:     cfg.Extraction.FFmpegPath,
		FFprobePath:    cfg.Extraction.FFprobePath,
		SceneThreshold: cfg.Extraction.SceneThreshold,
		MinFrames:      cfg.Extraction.MinFrames,
		MaxFrames:      cfg.Extraction.MaxFrames,
		Timeout:        cfg.Extraction.Timeout,
		TempDir:        cfg.Extraction.TempDir,
	}, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, pipeline.WithFrameSource(ffmpeg))

	if cfg.Analysis.FilterFrames {
		classifier := vision
		if model := cfg.Ollama.Classifier(); model != cfg.Ollama.Model {
			agentCfg.Model = model
			if classifier, err = analyzer.NewVision(ctx, logger, agentCfg); err != nil {
				return nil, fmt.Errorf("failed to initialize classifier agent: %w", err)
			}
		}
		prefilter := quality.NewPrefilter(
			analyzer.NewAgentClassifier(classifier),
			quality.WithObserver(observer),
		)
		opts = append(opts, pipeline.WithSelector(prefilter))
	}

	return pipeline.New(processor, opts...), nil
}

// newEmbedder returns the finding embedder for drivers that support search
func newEmbedder(cfg config.StorageConfig) *embeddings.Service {
	if cfg.Driver == "json" {
		return nil
	}
	return embeddings.NewService(2, cfg.EmbeddingDims)
}

func openStorage(ctx context.Context, cfg config.StorageConfig, embedder *embeddings.Service, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := storage.NewSQLiteStorage(cfg.SQLitePath, embedder, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		pg := storage.PostgresConfig{DSN: cfg.PostgresDSN}
		if err := storage.InitSchema(ctx, pg, embedder.Dims()); err != nil {
			return nil, err
		}
		store, err := storage.NewPostgresStorage(ctx, pg, embedder, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return storage.NewJSONStorage(cfg.OutputDir), nil
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
