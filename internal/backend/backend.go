package backend

import "context"

// Backend is the interface that all inference providers must implement.
type Backend interface {
	// Infer runs the prompt against the named model. The context carries the
	// worker's per-job deadline.
	Infer(ctx context.Context, req InferenceRequest) (InferenceResult, error)

	// Capabilities reports what the provider can serve.
	Capabilities() Capabilities
}

// InferenceRequest describes one task-request to answer.
type InferenceRequest struct {
	YieldID   string `json:"yield_id"`
	ModelName string `json:"model_name"`
	Prompt    string `json:"prompt"`

	// LogWriter is an optional callback providers invoke to report progress.
	LogWriter func(line string) `json:"-"`
}

// InferenceResult holds the answer produced by a provider.
type InferenceResult struct {
	Answer     string `json:"answer"`
	Model      string `json:"model"`
	DurationMS int    `json:"duration_ms"`
}

// Capabilities describes what a provider supports. An empty Models list
// means the provider accepts any model name.
type Capabilities struct {
	Name           string   `json:"name"`
	Models         []string `json:"models"`
	MaxConcurrency int      `json:"max_concurrency"`
}

// Supports reports whether the provider accepts modelName.
func (c Capabilities) Supports(modelName string) bool {
	if len(c.Models) == 0 {
		return true
	}
	for _, m := range c.Models {
		if m == modelName {
			return true
		}
	}
	return false
}
