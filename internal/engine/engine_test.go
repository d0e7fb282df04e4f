package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/backend"
	"github.com/h4shk4t/validAI-Contract/internal/client"
	"github.com/h4shk4t/validAI-Contract/internal/engine"
	"github.com/h4shk4t/validAI-Contract/internal/model"
)

// delayBackend is a configurable mock backend for engine tests.
type delayBackend struct {
	delay  time.Duration
	answer string
	err    error
}

func (d *delayBackend) Infer(ctx context.Context, req backend.InferenceRequest) (backend.InferenceResult, error) {
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return backend.InferenceResult{}, ctx.Err()
	}
	if d.err != nil {
		return backend.InferenceResult{}, d.err
	}
	return backend.InferenceResult{Answer: d.answer, Model: req.ModelName}, nil
}

func (d *delayBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Name: "delay", Models: []string{"llama3.2"}, MaxConcurrency: 10}
}

// fakeCoordinator feeds events from a channel and records responses.
type fakeCoordinator struct {
	events     chan model.TaskRequestEvent
	respondErr error

	mu        sync.Mutex
	responses map[model.YieldID]string
	streams   int
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		events:    make(chan model.TaskRequestEvent, 16),
		responses: make(map[model.YieldID]string),
	}
}

func (f *fakeCoordinator) SubscribeTasks(ctx context.Context, fn func(model.TaskRequestEvent) error) error {
	f.mu.Lock()
	f.streams++
	f.mu.Unlock()
	for {
		select {
		case ev, ok := <-f.events:
			if !ok {
				return client.ErrStreamClosed
			}
			if err := fn(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *fakeCoordinator) Respond(_ context.Context, id model.YieldID, response string) (*client.CallResult, error) {
	if f.respondErr != nil {
		return nil, f.respondErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[id] = response
	return &client.CallResult{ReceiptID: "receipt"}, nil
}

func (f *fakeCoordinator) response(id model.YieldID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responses[id]
	return r, ok
}

func (f *fakeCoordinator) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

func newTestEngine(t *testing.T, b backend.Backend, coord engine.Coordinator, opts engine.Options) *engine.Engine {
	t.Helper()
	reg := backend.NewRegistry()
	reg.Register("delay", b)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return engine.NewEngine(coord, reg, logger, opts)
}

func makeEvent(t *testing.T, modelName string) model.TaskRequestEvent {
	t.Helper()
	var id model.YieldID
	copy(id[:], model.NewID())
	return model.TaskRequestEvent{ModelName: modelName, Prompt: "What is 6*7?", YieldID: id}
}

func TestSubmitHappyPath(t *testing.T) {
	coord := newFakeCoordinator()
	eng := newTestEngine(t, &delayBackend{delay: 10 * time.Millisecond, answer: "42"}, coord, engine.Options{})

	ev := makeEvent(t, "llama3.2")
	eng.Submit(context.Background(), ev)
	eng.Wait()

	got, ok := coord.response(ev.YieldID)
	if !ok || got != "42" {
		t.Errorf("response = %q (sent %v), want %q", got, ok, "42")
	}
}

func TestSubmitBackendError(t *testing.T) {
	coord := newFakeCoordinator()
	eng := newTestEngine(t, &delayBackend{err: errors.New("backend crash")}, coord, engine.Options{})

	ev := makeEvent(t, "llama3.2")
	eng.Submit(context.Background(), ev)
	eng.Wait()

	if _, ok := coord.response(ev.YieldID); ok {
		t.Error("failed inference must not respond")
	}
}

func TestSubmitTimeout(t *testing.T) {
	coord := newFakeCoordinator()
	eng := newTestEngine(t, &delayBackend{delay: 5 * time.Second}, coord, engine.Options{JobTimeout: 50 * time.Millisecond})

	ev := makeEvent(t, "llama3.2")
	start := time.Now()
	eng.Submit(context.Background(), ev)
	eng.Wait()

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("job ran %v, want it cut at the job timeout", elapsed)
	}
	if _, ok := coord.response(ev.YieldID); ok {
		t.Error("timed-out inference must not respond")
	}
}

func TestSubmitUnresolvableBackend(t *testing.T) {
	coord := newFakeCoordinator()
	eng := newTestEngine(t, &delayBackend{answer: "x"}, coord, engine.Options{})

	ev := makeEvent(t, "mistral")
	eng.Submit(context.Background(), ev)
	eng.Wait()

	if _, ok := coord.response(ev.YieldID); ok {
		t.Error("request for an unserved model must not be answered")
	}
}

func TestSubmitRejectedResponseIsTolerated(t *testing.T) {
	coord := newFakeCoordinator()
	coord.respondErr = &client.APIError{Status: http.StatusConflict, Message: "resume rejected"}
	eng := newTestEngine(t, &delayBackend{answer: "42"}, coord, engine.Options{})

	eng.Submit(context.Background(), makeEvent(t, "llama3.2"))
	eng.Wait()
}

func TestSubmitConcurrent(t *testing.T) {
	coord := newFakeCoordinator()
	eng := newTestEngine(t, &delayBackend{delay: 50 * time.Millisecond, answer: "done"}, coord, engine.Options{})

	events := make([]model.TaskRequestEvent, 5)
	start := time.Now()
	for i := range events {
		events[i] = makeEvent(t, "llama3.2")
		eng.Submit(context.Background(), events[i])
	}
	eng.Wait()

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("jobs took %v, want them to run concurrently", elapsed)
	}
	for _, ev := range events {
		if _, ok := coord.response(ev.YieldID); !ok {
			t.Errorf("yield %s not answered", ev.YieldID)
		}
	}
}

func TestRunAnswersStreamedEvents(t *testing.T) {
	coord := newFakeCoordinator()
	eng := newTestEngine(t, &delayBackend{answer: "42"}, coord, engine.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	ev := makeEvent(t, "llama3.2")
	coord.events <- ev

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := coord.response(ev.YieldID); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
	if got, _ := coord.response(ev.YieldID); got != "42" {
		t.Errorf("response = %q, want 42", got)
	}
}

func TestRunReconnectsAfterStreamEnds(t *testing.T) {
	coord := newFakeCoordinator()
	eng := newTestEngine(t, &delayBackend{answer: "42"}, coord, engine.Options{ReconnectDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	close(coord.events)

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for coord.streamCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := coord.streamCount(); n < 3 {
		t.Errorf("stream opened %d times, want at least 3", n)
	}
	cancel()
	<-done
}
