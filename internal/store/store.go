package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

// ErrInvalidTransition is returned when a yield status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// YieldStats holds aggregate statistics over suspension points.
type YieldStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgLatencyMS  float64        `json:"avg_latency_ms"`
}

// ClaimedYield records an accepted resume. The payload is kept so the
// callback can still run after a restart.
type ClaimedYield struct {
	ID      model.YieldID
	Payload json.RawMessage
}

// FinishedYield closes a pending or claimed yield as part of a commit.
type FinishedYield struct {
	ID     model.YieldID
	Status string
	Result json.RawMessage
}

// Changeset is everything one call produced. Commit applies it atomically:
// either all of it becomes visible or none of it does.
type Changeset struct {
	Receipt   model.Receipt
	State     map[string][]byte
	Logs      []string
	Yields    []*model.Yield
	Claimed   []ClaimedYield
	Finished  []FinishedYield
	Transfers []model.Transfer
}

// Store defines the persistence operations of the host.
type Store interface {
	Commit(ctx context.Context, c *Changeset) error
	ReadState(ctx context.Context, key string) ([]byte, error)
	GetReceipt(ctx context.Context, id string) (*model.Receipt, error)
	GetLogLines(ctx context.Context, receiptID string) ([]model.LogLine, error)
	GetYield(ctx context.Context, id model.YieldID) (*model.Yield, error)
	ListYields(ctx context.Context, status string, limit, offset int) ([]*model.Yield, int, error)
	ListPendingYields(ctx context.Context) ([]*model.Yield, error)
	FinishYield(ctx context.Context, f FinishedYield) error
	GetYieldStats(ctx context.Context) (*YieldStats, error)
	GetBalance(ctx context.Context, account model.AccountID) (model.Token, error)
	ListTransfers(ctx context.Context, recipient model.AccountID, limit int) ([]model.Transfer, error)
	Close() error
}
