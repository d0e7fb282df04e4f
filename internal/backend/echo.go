package backend

import (
	"context"
	"time"
)

// Echo answers every prompt with the prompt itself. It is used for local
// runs without an inference server and for the placeholder events emitted
// when a proof of task carries no task descriptor.
type Echo struct{}

var _ Backend = Echo{}

func (Echo) Infer(ctx context.Context, req InferenceRequest) (InferenceResult, error) {
	if err := ctx.Err(); err != nil {
		return InferenceResult{}, err
	}
	start := time.Now()
	if req.LogWriter != nil {
		req.LogWriter("echo: " + req.ModelName)
	}
	return InferenceResult{
		Answer:     req.Prompt,
		Model:      req.ModelName,
		DurationMS: int(time.Since(start).Milliseconds()),
	}, nil
}

func (Echo) Capabilities() Capabilities {
	return Capabilities{Name: "echo", MaxConcurrency: 64}
}
