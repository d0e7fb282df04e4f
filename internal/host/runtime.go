package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/model"
	"github.com/h4shk4t/validAI-Contract/internal/store"
)

// DefaultYieldTimeout approximates the 200-block yield window of the chain
// this host emulates.
const DefaultYieldTimeout = 4 * time.Minute

var (
	// ErrResumeRejected is returned when a resume targets a yield that is
	// unknown, already resumed, or expired.
	ErrResumeRejected = errors.New("yield resume rejected")
	// ErrYieldTimeout is the failure delivered to a callback whose yield expired.
	ErrYieldTimeout = errors.New("yield timed out")
	// ErrUnknownCallback is logged when a yield names a method with no registered callback.
	ErrUnknownCallback = errors.New("unknown callback method")
	// ErrCallPanicked is returned when a handler panics; the call is rolled back.
	ErrCallPanicked = errors.New("call panicked")
	// ErrReadOnly is returned when a view call attempts a state-changing effect.
	ErrReadOnly = errors.New("view calls cannot change state")
	// ErrInvalidPromise is returned when a call returns a promise it did not create.
	ErrInvalidPromise = errors.New("invalid promise index")
)

// Handler is the body of one contract call.
type Handler func(env Env) (any, error)

// Callback is invoked by the host when a yield is resumed or expires.
// args is the payload given at creation.
type Callback func(env Env, args []byte, result PromiseResult) (any, error)

// Outcome is the committed result of a call.
type Outcome struct {
	ReceiptID string
	Logs      []string
	Transfers []model.Transfer
	Value     any
	// Promise is set when the call returned a yield.
	Promise *Promise
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithYieldTimeout sets the fixed bound after which pending yields expire.
func WithYieldTimeout(d time.Duration) Option {
	return func(rt *Runtime) {
		if d > 0 {
			rt.timeout = d
		}
	}
}

// Runtime executes calls one at a time. Each call stages its effects in a
// callContext; they are committed to the store together and only then
// applied to the yield registry and broker. A failed call leaves no trace.
type Runtime struct {
	mu        sync.Mutex
	store     store.Store
	logger    *slog.Logger
	broker    *EventBroker
	yields    *YieldRegistry
	timeout   time.Duration
	callbacks map[string]Callback
	closed    bool
	wg        sync.WaitGroup
}

// NewRuntime creates a runtime backed by s.
func NewRuntime(s store.Store, logger *slog.Logger, opts ...Option) *Runtime {
	rt := &Runtime{
		store:     s,
		logger:    logger,
		broker:    NewEventBroker(),
		timeout:   DefaultYieldTimeout,
		callbacks: make(map[string]Callback),
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.yields = newYieldRegistry(rt.timeout, func(e *yieldEntry) {
		rt.deliver(e, PromiseResult{Err: ErrYieldTimeout})
	})
	return rt
}

// Broker returns the runtime's event broker.
func (rt *Runtime) Broker() *EventBroker {
	return rt.broker
}

// Yields returns the correlation registry.
func (rt *Runtime) Yields() *YieldRegistry {
	return rt.yields
}

// YieldTimeout returns the fixed yield bound.
func (rt *Runtime) YieldTimeout() time.Duration {
	return rt.timeout
}

// RegisterCallback binds a yield callback to a method name.
func (rt *Runtime) RegisterCallback(method string, cb Callback) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.callbacks[method] = cb
}

// Call executes h as the entry point method on behalf of predecessor.
func (rt *Runtime) Call(ctx context.Context, method string, predecessor model.AccountID, h Handler) (*Outcome, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	return rt.execute(ctx, newCallContext(ctx, rt, method, predecessor), h, nil)
}

// View executes h without allowing any state change. Logs are discarded.
func (rt *Runtime) View(ctx context.Context, method string, h Handler) (any, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	cc := newCallContext(ctx, rt, method, "")
	cc.readOnly = true
	value, err := rt.invoke(cc, h)
	if err == nil && cc.fault != nil {
		err = cc.fault
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Restore re-registers yields left unfinished by a previous process. Pending
// ones can still be resumed, or expire on their original deadline. Claimed
// ones already have an answer and are delivered to their callback at once.
func (rt *Runtime) Restore(ctx context.Context) (int, error) {
	pending, err := rt.store.ListPendingYields(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending yields: %w", err)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	n := 0
	for _, y := range pending {
		e, fresh := rt.yields.restore(y)
		if !fresh {
			continue
		}
		n++
		yieldsPending.Inc()
		if y.Status == model.YieldClaimed && !rt.closed && rt.yields.complete(e) {
			rt.deliver(e, PromiseResult{Value: e.payload})
		}
	}
	return n, nil
}

// Wait blocks until all in-flight callbacks complete.
func (rt *Runtime) Wait() {
	rt.wg.Wait()
}

// Close stops yield timers, waits for running callbacks and ends event
// subscriptions. Pending yields remain in the store for Restore.
func (rt *Runtime) Close() {
	rt.mu.Lock()
	rt.closed = true
	rt.mu.Unlock()

	rt.yields.stop()
	rt.wg.Wait()
	rt.broker.Close()
}

// execute runs a handler and commits or rolls back its effects. finishing
// is the yield whose callback this call is. Caller must hold rt.mu.
func (rt *Runtime) execute(ctx context.Context, cc *callContext, h Handler, finishing *store.FinishedYield) (*Outcome, error) {
	method := cc.receipt.Method

	value, err := rt.invoke(cc, h)
	if err == nil && cc.fault != nil {
		err = cc.fault
	}
	if err != nil {
		rt.rollback(cc)
		callsTotal.WithLabelValues(method, "error").Inc()
		return nil, err
	}

	cs := cc.changeset()
	if finishing != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			rt.rollback(cc)
			callsTotal.WithLabelValues(method, "error").Inc()
			return nil, fmt.Errorf("encode %s result: %w", method, err)
		}
		f := *finishing
		f.Result = raw
		cs.Finished = append(cs.Finished, f)
	}

	if err := rt.store.Commit(context.WithoutCancel(ctx), cs); err != nil {
		rt.rollback(cc)
		callsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("commit %s: %w", method, err)
	}
	callsTotal.WithLabelValues(method, "ok").Inc()

	out := &Outcome{
		ReceiptID: cc.receipt.ID,
		Logs:      cc.logs,
		Transfers: cc.transfers,
		Value:     value,
	}
	if cc.returned != nil {
		out.Promise = cc.returned.promise
	}
	rt.apply(cc)
	return out, nil
}

// invoke runs h, converting a panic into an error so the call rolls back.
func (rt *Runtime) invoke(cc *callContext, h Handler) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("call panicked", "method", cc.receipt.Method, "receipt_id", cc.receipt.ID, "panic", r)
			value, err = nil, fmt.Errorf("%w: %v", ErrCallPanicked, r)
		}
	}()
	return h(cc)
}

// rollback releases everything the call reserved in the registry.
func (rt *Runtime) rollback(cc *callContext) {
	for _, e := range cc.created {
		rt.yields.discard(e)
	}
	for _, e := range cc.claimed {
		rt.yields.unclaim(e)
	}
	rt.logger.Debug("call rolled back", "method", cc.receipt.Method, "receipt_id", cc.receipt.ID)
}

// apply makes committed effects live: yields start their timers, accepted
// resumes are delivered, events are broadcast.
func (rt *Runtime) apply(cc *callContext) {
	for _, e := range cc.created {
		rt.yields.arm(e)
		yieldsCreated.Inc()
		yieldsPending.Inc()
	}
	for _, e := range cc.claimed {
		// After Close the stored claim is delivered by the next Restore.
		if !rt.closed && rt.yields.complete(e) {
			rt.deliver(e, PromiseResult{Value: e.payload})
		}
	}
	for _, t := range cc.transfers {
		transfersTotal.Inc()
		rt.logger.Info("transfer executed",
			"receipt_id", cc.receipt.ID,
			"recipient", t.Recipient,
			"amount", t.Amount.Yocto().String(),
		)
	}
	for _, line := range cc.logs {
		rt.logger.Debug("receipt log", "receipt_id", cc.receipt.ID, "method", cc.receipt.Method, "line", line)
		env, err := model.ParseEventLog(line)
		if err != nil {
			continue
		}
		raw, err := json.Marshal(env)
		if err != nil {
			rt.logger.Error("encode event", "receipt_id", cc.receipt.ID, "error", err)
			continue
		}
		n := rt.broker.Publish(env.Event, string(raw))
		eventsPublished.WithLabelValues(env.Event).Inc()
		rt.logger.Info("event emitted", "event", env.Event, "receipt_id", cc.receipt.ID, "subscribers", n)
	}
}

// deliver schedules the callback of a finished yield as a fresh call.
func (rt *Runtime) deliver(e *yieldEntry, res PromiseResult) {
	yieldsPending.Dec()
	rt.wg.Go(func() {
		rt.runCallback(e, res)
	})
}

func (rt *Runtime) runCallback(e *yieldEntry, res PromiseResult) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	logger := rt.logger.With("yield_id", e.id.String(), "method", e.method)

	cb, ok := rt.callbacks[e.method]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownCallback, e.method)
		logger.Error("yield callback missing", "error", err)
		rt.abandon(e)
		return
	}

	// Status is filled in from the callback's value before execute commits.
	finishing := &store.FinishedYield{ID: e.id}
	ctx := context.Background()
	cc := newCallContext(ctx, rt, e.method, "")
	out, err := rt.execute(ctx, cc, func(env Env) (any, error) {
		value, err := cb(env, e.args, res)
		finishing.Status = finishedStatus(value, res)
		return value, err
	}, finishing)
	if err != nil {
		logger.Error("yield callback failed", "error", err)
		rt.abandon(e)
		return
	}
	yieldsFinished.WithLabelValues(finishing.Status).Inc()

	raw, _ := json.Marshal(out.Value)
	logger.Info("yield finished", "receipt_id", out.ReceiptID, "status", finishing.Status)
	e.promise.settle(raw, nil)
}

// finishedStatus is the terminal status recorded for a callback value. A
// model.Response decides it; any other value follows how the yield ended.
func finishedStatus(value any, res PromiseResult) string {
	if r, ok := value.(model.Response); ok {
		if r.IsTimeout() {
			return model.YieldTimedOut
		}
		return model.YieldResolved
	}
	if res.Err != nil {
		return model.YieldTimedOut
	}
	return model.YieldResolved
}

// abandon finishes a yield whose callback could not complete as timed out
// with a TimeOutError result, and settles its promise with that result.
func (rt *Runtime) abandon(e *yieldEntry) {
	raw, _ := json.Marshal(model.TimeOutError())
	yieldsFinished.WithLabelValues(model.YieldTimedOut).Inc()
	f := store.FinishedYield{ID: e.id, Status: model.YieldTimedOut, Result: raw}
	if err := rt.store.FinishYield(context.Background(), f); err != nil {
		rt.logger.Error("record abandoned yield", "yield_id", e.id.String(), "error", err)
	}
	e.promise.settle(raw, nil)
}
