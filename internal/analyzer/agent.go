package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/core/memory/array"
	"github.com/agent-api/ollama"
	"github.com/go-logr/logr"

	"github.com/bdougie/uitraps/internal/models"
)

const systemPrompt = "You are a usability expert who reviews user interface screenshots against the UI Tenets & Traps heuristic rulebook. You answer with JSON only."

// maxAgentSteps bounds a single request: the user turn plus a few retries for an empty answer
const maxAgentSteps = 4

var ErrNoImage = errors.New("frame has no embeddable image")

// AgentConfig describes the Ollama endpoint and vision model
type AgentConfig struct {
	BaseURL string
	Port    int
	Model   string
}

// Vision sends single-turn requests to a vision model. Each request runs on a
// fresh agent with its own memory, so concurrent frames never share messages.
type Vision struct {
	provider core.Provider
	logger   logr.Logger
}

// NewVision checks that Ollama is running and selects the model
func NewVision(ctx context.Context, logger *slog.Logger, cfg AgentConfig) (*Vision, error) {
	// Check if Ollama is running
	if err := ping(ctx, cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := logr.FromSlogHandler(logger.With("component", "agent", "model", cfg.Model).Handler())

	// Set up Ollama provider
	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  &l,
		BaseURL: cfg.BaseURL,
		Port:    cfg.Port,
	})

	model := &core.Model{
		ID: cfg.Model,
	}
	if err := provider.UseModel(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to select model %s: %w", cfg.Model, err)
	}

	return &Vision{provider: provider, logger: l}, nil
}

// Ask runs one request and returns the model's final answer
func (v *Vision) Ask(ctx context.Context, opts ...agent.RunOptionFunc) (string, error) {
	mem := array.NewArrayMemoryBackend()
	if err := mem.Add(&core.Message{Role: core.SystemMessageRole, Content: systemPrompt}); err != nil {
		return "", err
	}

	a, err := agent.NewAgent(
		bootstrap.WithProvider(v.provider),
		bootstrap.WithSystemPrompt(systemPrompt),
		bootstrap.WithLogger(&v.logger),
		bootstrap.WithMemory(mem),
		bootstrap.WithMaxSteps(maxAgentSteps),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create agent: %w", err)
	}

	response, err := a.Run(ctx, opts...)
	if err != nil {
		return "", err
	}
	if response == nil || len(response.Messages) == 0 {
		return "", ErrNoResponse
	}

	// Get the model's response (not the prompt)
	last := response.Messages[len(response.Messages)-1]
	if last == nil || last.Content == "" {
		return "", ErrNoResponse
	}
	return last.Content, nil
}

// imageOption attaches an already loaded snapshot to a request
func imageOption(snap *models.Snapshot) (agent.RunOptionFunc, error) {
	if snap == nil {
		return nil, ErrNoImage
	}
	mediaType, data, ok := strings.Cut(strings.TrimPrefix(snap.DataURL, "data:"), ";base64,")
	if !ok || data == "" {
		return nil, fmt.Errorf("%w: not a base64 data URL", ErrNoImage)
	}
	return agent.WithImageBase64(data, mediaType), nil
}

func ping(ctx context.Context, cfg AgentConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s:%d/api/tags", cfg.BaseURL, cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama is not reachable at %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %s from %s", resp.Status, url)
	}
	return nil
}
