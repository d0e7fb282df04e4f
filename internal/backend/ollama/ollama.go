// Package ollama implements an inference backend on top of the ollama HTTP
// API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/backend"
)

const (
	// DefaultURL is where a local ollama instance listens.
	DefaultURL = "http://localhost:11434"

	defaultMaxConcurrent = 2
	maxErrorBody         = 4 << 10
)

// Config holds configuration for the ollama backend.
type Config struct {
	// URL is the base URL of the ollama API.
	URL string

	// Models restricts the models this backend serves. Empty means any.
	Models []string

	// MaxConcurrent bounds simultaneous generate calls.
	MaxConcurrent int

	// Seed and Temperature make answers reproducible across operators.
	Seed        int
	Temperature float64
}

// Backend answers prompts with ollama's /api/generate endpoint.
type Backend struct {
	cfg  Config
	http *http.Client
	sem  chan struct{}
}

var _ backend.Backend = (*Backend)(nil)

// generateRequest is the request body for the ollama /api/generate endpoint.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is the response from the ollama /api/generate endpoint.
type generateResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
}

// tagsResponse is the response from the ollama /api/tags endpoint.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// New creates an ollama backend. A nil client uses http.DefaultClient.
func New(cfg Config, client *http.Client) *Backend {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Backend{
		cfg:  cfg,
		http: client,
		sem:  make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Infer runs the prompt through the named model.
func (b *Backend) Infer(ctx context.Context, req backend.InferenceRequest) (backend.InferenceResult, error) {
	select {
	case b.sem <- struct{}{}:
		defer func() { <-b.sem }()
	case <-ctx.Done():
		return backend.InferenceResult{}, ctx.Err()
	}

	activeInferences.Inc()
	defer activeInferences.Dec()

	start := time.Now()
	if req.LogWriter != nil {
		req.LogWriter(fmt.Sprintf("ollama: generating with %s", req.ModelName))
	}

	answer, err := b.generate(ctx, req.ModelName, req.Prompt)
	elapsed := time.Since(start)
	inferenceDuration.Observe(elapsed.Seconds())
	if err != nil {
		inferencesTotal.WithLabelValues(req.ModelName, statusFailed).Inc()
		return backend.InferenceResult{}, err
	}
	inferencesTotal.WithLabelValues(req.ModelName, statusOK).Inc()

	return backend.InferenceResult{
		Answer:     answer,
		Model:      req.ModelName,
		DurationMS: int(elapsed.Milliseconds()),
	}, nil
}

// Capabilities reports the models this backend is configured for.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:           "ollama",
		Models:         b.cfg.Models,
		MaxConcurrency: b.cfg.MaxConcurrent,
	}
}

func (b *Backend) generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": b.cfg.Temperature,
			"seed":        b.cfg.Seed,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	return out.Response, nil
}

// ModelExists checks whether the model is pulled on the ollama instance.
func (b *Backend) ModelExists(ctx context.Context, model string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.URL+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("building ollama tags request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("checking ollama models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ollama /api/tags returned status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Errorf("decoding ollama tags: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == model {
			return true, nil
		}
	}
	return false, nil
}
