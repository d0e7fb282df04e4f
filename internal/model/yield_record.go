package model

import (
	"encoding/json"
	"time"
)

// Yield status constants. pending and claimed are non-terminal; resolved
// and timed_out are mutually exclusive. A claimed yield has an accepted
// resume whose callback has not committed yet.
const (
	YieldPending  = "pending"
	YieldClaimed  = "claimed"
	YieldResolved = "resolved"
	YieldTimedOut = "timed_out"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	YieldPending: {
		YieldClaimed:  true,
		YieldResolved: true,
		YieldTimedOut: true,
	},
	YieldClaimed: {
		YieldResolved: true,
		YieldTimedOut: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether a yield status is final.
func IsTerminal(status string) bool {
	return status == YieldResolved || status == YieldTimedOut
}

// Yield is the host's record of one suspension point. Args is the opaque
// payload handed back to the callback; Payload is the accepted resume value
// of a claimed yield; Result is the callback's return value once the yield
// is finished.
type Yield struct {
	ID         YieldID         `json:"yield_id"`
	ReceiptID  string          `json:"receipt_id"`
	Method     string          `json:"method"`
	Args       json.RawMessage `json:"args"`
	Status     string          `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Deadline   time.Time       `json:"deadline"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// LogLine represents a single persisted receipt log line.
type LogLine struct {
	ID        int64     `json:"id"`
	ReceiptID string    `json:"receipt_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// Transfer is a value transfer executed when a call commits.
type Transfer struct {
	ID        string    `json:"id"`
	ReceiptID string    `json:"receipt_id"`
	Recipient AccountID `json:"recipient"`
	Amount    Token     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Receipt summarizes one committed call.
type Receipt struct {
	ID          string    `json:"id"`
	Method      string    `json:"method"`
	Predecessor AccountID `json:"predecessor,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
