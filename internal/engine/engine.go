package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/backend"
	"github.com/h4shk4t/validAI-Contract/internal/client"
	"github.com/h4shk4t/validAI-Contract/internal/model"
)

const (
	// DefaultJobTimeout bounds a single inference. It stays below the
	// coordinator's yield timeout so a slow answer is dropped here first.
	DefaultJobTimeout = 3 * time.Minute

	// DefaultReconnectDelay is the pause before reopening a dropped stream.
	DefaultReconnectDelay = 2 * time.Second

	respondTimeout = 10 * time.Second
)

// Coordinator is the part of the coordinator API the worker needs.
type Coordinator interface {
	SubscribeTasks(ctx context.Context, fn func(model.TaskRequestEvent) error) error
	Respond(ctx context.Context, yieldID model.YieldID, response string) (*client.CallResult, error)
}

// Options tunes the worker.
type Options struct {
	JobTimeout     time.Duration
	ReconnectDelay time.Duration
}

// Engine answers task requests announced by a coordinator.
type Engine struct {
	coord    Coordinator
	registry *backend.Registry
	logger   *slog.Logger
	opts     Options
	wg       sync.WaitGroup
}

// NewEngine creates a worker engine.
func NewEngine(coord Coordinator, reg *backend.Registry, logger *slog.Logger, opts Options) *Engine {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	return &Engine{
		coord:    coord,
		registry: reg,
		logger:   logger,
		opts:     opts,
	}
}

// Run follows the task-request stream until ctx is done, reopening it when
// it drops. In-flight jobs are waited for before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	defer e.wg.Wait()

	for {
		err := e.coord.SubscribeTasks(ctx, func(ev model.TaskRequestEvent) error {
			e.Submit(ctx, ev)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		e.logger.Warn("task stream ended, reconnecting", "error", err, "delay", e.opts.ReconnectDelay)

		select {
		case <-time.After(e.opts.ReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// Submit starts working on ev in a goroutine.
func (e *Engine) Submit(ctx context.Context, ev model.TaskRequestEvent) {
	e.wg.Go(func() {
		e.execute(ctx, ev)
	})
}

// Wait blocks until all in-flight jobs complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// execute runs one job: resolve, infer, respond.
func (e *Engine) execute(parent context.Context, ev model.TaskRequestEvent) {
	activeJobs.Inc()
	defer activeJobs.Dec()

	start := time.Now()
	log := e.logger.With("yield_id", ev.YieldID.String(), "model_name", ev.ModelName)

	b, err := e.registry.Resolve(ev.ModelName)
	if err != nil {
		jobsTotal.WithLabelValues(outcomeNoBackend).Inc()
		log.Warn("skipping task request", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(parent, e.opts.JobTimeout)
	defer cancel()

	result, err := b.Infer(ctx, backend.InferenceRequest{
		YieldID:   ev.YieldID.String(),
		ModelName: ev.ModelName,
		Prompt:    ev.Prompt,
		LogWriter: func(line string) { log.Debug(line) },
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			jobsTotal.WithLabelValues(outcomeTimedOut).Inc()
			log.Warn("inference timed out", "timeout", e.opts.JobTimeout)
			return
		}
		jobsTotal.WithLabelValues(outcomeFailed).Inc()
		log.Error("inference failed", "error", err)
		return
	}

	// Answer even if the parent is shutting down; the inference is done.
	rctx, rcancel := context.WithTimeout(context.WithoutCancel(parent), respondTimeout)
	defer rcancel()

	out, err := e.coord.Respond(rctx, ev.YieldID, result.Answer)
	if err != nil {
		if client.IsStatus(err, http.StatusConflict) {
			jobsTotal.WithLabelValues(outcomeRejected).Inc()
			log.Info("request already resolved", "error", err)
			return
		}
		jobsTotal.WithLabelValues(outcomeFailed).Inc()
		log.Error("respond failed", "error", fmt.Errorf("respond: %w", err))
		return
	}

	jobsTotal.WithLabelValues(outcomeAnswered).Inc()
	jobDuration.Observe(time.Since(start).Seconds())
	log.Info("answered task request",
		"receipt_id", out.ReceiptID,
		"backend", b.Capabilities().Name,
		"duration_ms", result.DurationMS,
	)
}
