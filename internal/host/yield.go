package host

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

type yieldState int

const (
	// stateReserved: created by a call that has not committed yet.
	stateReserved yieldState = iota
	statePending
	// stateClaimed: a resume was accepted by a call that has not committed yet.
	stateClaimed
	stateDone
)

type yieldEntry struct {
	id        model.YieldID
	method    string
	args      []byte
	receiptID string
	createdAt time.Time
	deadline  time.Time
	state     yieldState
	timer     *time.Timer
	payload   []byte
	promise   *Promise
}

func (e *yieldEntry) record() *model.Yield {
	return &model.Yield{
		ID:        e.id,
		ReceiptID: e.receiptID,
		Method:    e.method,
		Args:      e.args,
		Status:    model.YieldPending,
		CreatedAt: e.createdAt,
		Deadline:  e.deadline,
	}
}

// YieldRegistry maps yield ids to suspended calls. An entry can be resumed
// at most once; whichever of resume and expiry takes the lock first wins.
type YieldRegistry struct {
	mu      sync.Mutex
	seed    [32]byte
	seq     uint64
	timeout time.Duration
	entries map[model.YieldID]*yieldEntry
	closed  bool
	// expired runs with mu held and must not block.
	expired func(e *yieldEntry)
}

func newYieldRegistry(timeout time.Duration, expired func(e *yieldEntry)) *YieldRegistry {
	r := &YieldRegistry{
		timeout: timeout,
		entries: make(map[model.YieldID]*yieldEntry),
		expired: expired,
	}
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(r.seed[:])
	return r
}

// nextID derives a fresh id from the registry seed and a sequence number.
// Caller must hold r.mu.
func (r *YieldRegistry) nextID() model.YieldID {
	r.seq++
	var buf [40]byte
	copy(buf[:32], r.seed[:])
	binary.BigEndian.PutUint64(buf[32:], r.seq)
	return model.YieldID(blake2b.Sum256(buf[:]))
}

// reserve allocates an id for a yield created by an uncommitted call. The
// entry cannot be resumed and has no timer until it is armed.
func (r *YieldRegistry) reserve(method string, args []byte, receiptID string, now time.Time) *yieldEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID()
	for _, taken := r.entries[id]; taken; _, taken = r.entries[id] {
		id = r.nextID()
	}

	e := &yieldEntry{
		id:        id,
		method:    method,
		args:      append([]byte(nil), args...),
		receiptID: receiptID,
		createdAt: now,
		deadline:  now.Add(r.timeout),
		state:     stateReserved,
		promise:   newPromise(id),
	}
	r.entries[id] = e
	return e
}

// arm makes a reserved entry resumable and starts its timeout.
func (r *YieldRegistry) arm(e *yieldEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.state != stateReserved {
		return
	}
	e.state = statePending
	r.startTimer(e)
}

// discard drops a reserved entry whose creating call rolled back.
func (r *YieldRegistry) discard(e *yieldEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.state == stateReserved {
		delete(r.entries, e.id)
		e.state = stateDone
	}
}

// restore re-registers a yield loaded from the store. A pending yield
// whose deadline already passed expires immediately. A claimed yield comes
// back claimed with its stored payload and no timer; the caller completes
// and delivers it. The second result is false if the id was already known.
func (r *YieldRegistry) restore(y *model.Yield) (*yieldEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[y.ID]; ok {
		return e, false
	}
	e := &yieldEntry{
		id:        y.ID,
		method:    y.Method,
		args:      append([]byte(nil), y.Args...),
		receiptID: y.ReceiptID,
		createdAt: y.CreatedAt,
		deadline:  y.Deadline,
		state:     statePending,
		promise:   newPromise(y.ID),
	}
	r.entries[y.ID] = e
	if y.Status == model.YieldClaimed {
		e.state = stateClaimed
		e.payload = append([]byte(nil), y.Payload...)
		return e, true
	}
	r.startTimer(e)
	return e, true
}

// claim accepts a resume for a pending entry. The claim is provisional
// until the resuming call commits.
func (r *YieldRegistry) claim(id model.YieldID, payload []byte) (*yieldEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.state != statePending {
		return nil, false
	}
	e.state = stateClaimed
	e.payload = append([]byte(nil), payload...)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e, true
}

// unclaim returns a claimed entry to pending after the resuming call rolled
// back. The original deadline still applies.
func (r *YieldRegistry) unclaim(e *yieldEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.state != stateClaimed {
		return
	}
	e.state = statePending
	e.payload = nil
	r.startTimer(e)
}

// complete removes a claimed entry once its resume has committed.
func (r *YieldRegistry) complete(e *yieldEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.state != stateClaimed {
		return false
	}
	e.state = stateDone
	delete(r.entries, e.id)
	return true
}

// expire finishes a pending entry with a timeout. It does nothing once the
// registry is stopped, even if the timer already fired.
func (r *YieldRegistry) expire(id model.YieldID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	e, ok := r.entries[id]
	if !ok || e.state != statePending {
		return
	}
	e.state = stateDone
	delete(r.entries, id)
	r.expired(e)
}

// Pending returns the number of yields that can still be resumed.
func (r *YieldRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.state == statePending || e.state == stateClaimed {
			n++
		}
	}
	return n
}

// stop halts every timer. Pending entries stay pending in the store and are
// picked up again by Runtime.Restore.
func (r *YieldRegistry) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for _, e := range r.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

// startTimer schedules expiry at the entry deadline. Caller must hold r.mu.
func (r *YieldRegistry) startTimer(e *yieldEntry) {
	if r.closed {
		return
	}
	wait := max(time.Until(e.deadline), 0)
	id := e.id
	e.timer = time.AfterFunc(wait, func() { r.expire(id) })
}
