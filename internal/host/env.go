package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/model"
	"github.com/h4shk4t/validAI-Contract/internal/store"
)

// PromiseIndex refers to a promise created during the current call.
type PromiseIndex int

// PromiseResult is what a yield callback receives: the resume payload, or
// an error when the yield expired.
type PromiseResult struct {
	Value []byte
	Err   error
}

// Env is the host interface a contract call runs against. Every effect is
// staged and only becomes visible if the call commits.
type Env interface {
	// Method is the name of the entry point being executed.
	Method() string
	// Predecessor is the account that made the call. Empty for host callbacks.
	Predecessor() model.AccountID
	BlockTime() time.Time

	StorageRead(key string) ([]byte, bool)
	StorageWrite(key string, value []byte)

	// Log appends a receipt log line. Lines prefixed with EVENT_JSON: are
	// broadcast to subscribers on commit.
	Log(line string)

	// PromiseYieldCreate suspends the call behind a new yield and writes the
	// yield id into the given register. When the yield is resumed or expires
	// the host invokes method with args as a fresh call.
	PromiseYieldCreate(method string, args []byte, register uint64) PromiseIndex
	ReadRegister(register uint64) ([]byte, bool)
	// PromiseYieldResume delivers payload to a pending yield. It reports
	// false if the yield is unknown, already resumed or expired.
	PromiseYieldResume(id model.YieldID, payload []byte) bool
	// PromiseReturn makes the promise the call's result.
	PromiseReturn(p PromiseIndex)

	Transfer(to model.AccountID, amount model.Token)
}

// callContext implements Env for one call.
type callContext struct {
	rt        *Runtime
	ctx       context.Context
	receipt   model.Receipt
	readOnly  bool
	writes    map[string][]byte
	logs      []string
	registers map[uint64][]byte
	created   []*yieldEntry
	claimed   []*yieldEntry
	transfers []model.Transfer
	returned  *yieldEntry
	fault     error
}

var _ Env = (*callContext)(nil)

func newCallContext(ctx context.Context, rt *Runtime, method string, predecessor model.AccountID) *callContext {
	return &callContext{
		rt:  rt,
		ctx: ctx,
		receipt: model.Receipt{
			ID:          model.NewID(),
			Method:      method,
			Predecessor: predecessor,
			CreatedAt:   time.Now().UTC(),
		},
		writes:    make(map[string][]byte),
		registers: make(map[uint64][]byte),
	}
}

func (c *callContext) Method() string               { return c.receipt.Method }
func (c *callContext) Predecessor() model.AccountID { return c.receipt.Predecessor }
func (c *callContext) BlockTime() time.Time         { return c.receipt.CreatedAt }

func (c *callContext) StorageRead(key string) ([]byte, bool) {
	if v, ok := c.writes[key]; ok {
		return append([]byte(nil), v...), true
	}
	v, err := c.rt.store.ReadState(c.ctx, key)
	if errors.Is(err, store.ErrStateNotFound) {
		return nil, false
	}
	if err != nil {
		c.setFault(fmt.Errorf("storage read %q: %w", key, err))
		return nil, false
	}
	return v, true
}

func (c *callContext) StorageWrite(key string, value []byte) {
	if c.readOnly {
		c.setFault(ErrReadOnly)
		return
	}
	c.writes[key] = append([]byte(nil), value...)
}

func (c *callContext) Log(line string) {
	c.logs = append(c.logs, line)
}

func (c *callContext) PromiseYieldCreate(method string, args []byte, register uint64) PromiseIndex {
	if c.readOnly {
		c.setFault(ErrReadOnly)
		return -1
	}
	e := c.rt.yields.reserve(method, args, c.receipt.ID, c.receipt.CreatedAt)
	c.created = append(c.created, e)
	c.registers[register] = append([]byte(nil), e.id[:]...)
	return PromiseIndex(len(c.created) - 1)
}

func (c *callContext) ReadRegister(register uint64) ([]byte, bool) {
	v, ok := c.registers[register]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func (c *callContext) PromiseYieldResume(id model.YieldID, payload []byte) bool {
	if c.readOnly {
		c.setFault(ErrReadOnly)
		return false
	}
	e, ok := c.rt.yields.claim(id, payload)
	if !ok {
		return false
	}
	c.claimed = append(c.claimed, e)
	return true
}

func (c *callContext) PromiseReturn(p PromiseIndex) {
	if int(p) < 0 || int(p) >= len(c.created) {
		c.setFault(fmt.Errorf("%w: %d", ErrInvalidPromise, p))
		return
	}
	c.returned = c.created[p]
}

func (c *callContext) Transfer(to model.AccountID, amount model.Token) {
	if c.readOnly {
		c.setFault(ErrReadOnly)
		return
	}
	c.transfers = append(c.transfers, model.Transfer{
		ID:        model.NewID(),
		ReceiptID: c.receipt.ID,
		Recipient: to,
		Amount:    amount,
		CreatedAt: c.receipt.CreatedAt,
	})
}

func (c *callContext) setFault(err error) {
	if c.fault == nil {
		c.fault = err
	}
}

// changeset collects the staged effects for the store.
func (c *callContext) changeset() *store.Changeset {
	cs := &store.Changeset{
		Receipt:   c.receipt,
		State:     c.writes,
		Logs:      c.logs,
		Transfers: c.transfers,
	}
	for _, e := range c.created {
		cs.Yields = append(cs.Yields, e.record())
	}
	for _, e := range c.claimed {
		cs.Claimed = append(cs.Claimed, store.ClaimedYield{ID: e.id, Payload: e.payload})
	}
	return cs
}
