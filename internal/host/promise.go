package host

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

// Promise is the pending result of a call that returned a yield. It settles
// once, with the JSON value returned by the yield's callback.
type Promise struct {
	yieldID model.YieldID
	done    chan struct{}
	once    sync.Once
	value   json.RawMessage
	err     error
}

func newPromise(id model.YieldID) *Promise {
	return &Promise{yieldID: id, done: make(chan struct{})}
}

// YieldID returns the correlation token the promise is waiting on.
func (p *Promise) YieldID() model.YieldID {
	return p.yieldID
}

// Done is closed when the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the promise settles or ctx is done.
func (p *Promise) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Promise) settle(value json.RawMessage, err error) {
	p.once.Do(func() {
		p.value = value
		p.err = err
		close(p.done)
	})
}
