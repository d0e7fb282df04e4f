package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/model"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS contract_state (
    key   TEXT PRIMARY KEY,
    value BLOB NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS receipts (
    id          TEXT PRIMARY KEY,
    method      TEXT NOT NULL,
    predecessor TEXT NOT NULL,
    created_at  DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS receipt_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    receipt_id TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_receipt_logs_receipt ON receipt_logs (receipt_id, seq)`,
	`CREATE TABLE IF NOT EXISTS yields (
    id          TEXT PRIMARY KEY,
    receipt_id  TEXT NOT NULL,
    method      TEXT NOT NULL,
    args        TEXT NOT NULL,
    status      TEXT NOT NULL,
    payload     TEXT,
    result      TEXT,
    latency_ms  INTEGER,
    created_at  DATETIME NOT NULL,
    deadline    DATETIME NOT NULL,
    finished_at DATETIME
)`,
	`CREATE INDEX IF NOT EXISTS idx_yields_status ON yields (status)`,
	`CREATE TABLE IF NOT EXISTS transfers (
    id         TEXT PRIMARY KEY,
    receipt_id TEXT NOT NULL,
    recipient  TEXT NOT NULL,
    amount     TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS balances (
    account TEXT PRIMARY KEY,
    amount  TEXT NOT NULL
)`,
}

// addedColumns are applied to databases created before the column existed.
var addedColumns = []struct{ table, column, decl string }{
	{"yields", "payload", "TEXT"},
}

const yieldColumns = `id, receipt_id, method, args, status, payload, result, created_at, deadline, finished_at`

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("not found")
	// ErrStateNotFound is returned when a contract state key has never been written.
	ErrStateNotFound = errors.New("state key not found")
)

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// commits, matching the host's one-call-at-a-time model.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migration: %w", err)
		}
	}
	for _, c := range addedColumns {
		if err := addColumn(db, c.table, c.column, c.decl); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Commit applies a changeset in a single transaction.
func (s *SQLiteStore) Commit(ctx context.Context, c *Changeset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer tx.Rollback()

	r := c.Receipt
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO receipts (id, method, predecessor, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Method, string(r.Predecessor), r.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}

	for key, value := range c.State {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contract_state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			return fmt.Errorf("write state %q: %w", key, err)
		}
	}

	for seq, line := range c.Logs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO receipt_logs (receipt_id, seq, line, created_at) VALUES (?, ?, ?, ?)`,
			r.ID, seq, line, r.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert log line: %w", err)
		}
	}

	for _, y := range c.Yields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO yields (id, receipt_id, method, args, status, created_at, deadline)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			y.ID.String(), y.ReceiptID, y.Method, string(y.Args), y.Status, y.CreatedAt, y.Deadline,
		); err != nil {
			return fmt.Errorf("insert yield: %w", err)
		}
	}

	for _, cl := range c.Claimed {
		if err := claimYield(ctx, tx, cl); err != nil {
			return err
		}
	}

	for _, f := range c.Finished {
		if err := finishYield(ctx, tx, f); err != nil {
			return err
		}
	}

	for _, t := range c.Transfers {
		if err := applyTransfer(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReadState returns the committed value of a contract state key.
func (s *SQLiteStore) ReadState(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM contract_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	return value, nil
}

// GetReceipt retrieves a receipt by ID.
func (s *SQLiteStore) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	r := &model.Receipt{}
	var predecessor string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, method, predecessor, created_at FROM receipts WHERE id = ?`, id,
	).Scan(&r.ID, &r.Method, &predecessor, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	r.Predecessor = model.AccountID(predecessor)
	return r, nil
}

// GetLogLines returns the log lines of a receipt ordered by sequence.
func (s *SQLiteStore) GetLogLines(ctx context.Context, receiptID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, receipt_id, seq, line, created_at FROM receipt_logs
		WHERE receipt_id = ? ORDER BY seq`, receiptID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	var lines []model.LogLine
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}

// GetYield retrieves a yield by its correlation token.
func (s *SQLiteStore) GetYield(ctx context.Context, id model.YieldID) (*model.Yield, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+yieldColumns+` FROM yields WHERE id = ?`, id.String())
	y, err := scanYield(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get yield: %w", err)
	}
	return y, nil
}

// ListYields returns a paginated list of yields ordered by created_at DESC,
// along with the total count. An empty status matches every yield.
func (s *SQLiteStore) ListYields(ctx context.Context, status string, limit, offset int) ([]*model.Yield, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM yields WHERE ? = '' OR status = ?`, status, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count yields: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+yieldColumns+` FROM yields WHERE ? = '' OR status = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, status, status, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list yields: %w", err)
	}
	defer rows.Close()

	var yields []*model.Yield
	for rows.Next() {
		y, err := scanYield(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan yield: %w", err)
		}
		yields = append(yields, y)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate yields: %w", err)
	}

	return yields, total, nil
}

// ListPendingYields returns every yield that has not reached a terminal
// state: pending ones and claimed ones whose callback never committed.
func (s *SQLiteStore) ListPendingYields(ctx context.Context) ([]*model.Yield, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+yieldColumns+` FROM yields WHERE status IN (?, ?) ORDER BY created_at`,
		model.YieldPending, model.YieldClaimed,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending yields: %w", err)
	}
	defer rows.Close()

	var yields []*model.Yield
	for rows.Next() {
		y, err := scanYield(rows)
		if err != nil {
			return nil, fmt.Errorf("scan yield: %w", err)
		}
		yields = append(yields, y)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending yields: %w", err)
	}
	return yields, nil
}

// FinishYield moves a pending or claimed yield to a terminal status outside
// of a call commit. Used when the callback itself failed and rolled back.
func (s *SQLiteStore) FinishYield(ctx context.Context, f FinishedYield) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish tx: %w", err)
	}
	defer tx.Rollback()

	if err := finishYield(ctx, tx, f); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish: %w", err)
	}
	return nil
}

// GetYieldStats returns aggregate counts by status and the mean time from
// creation to a terminal state.
func (s *SQLiteStore) GetYieldStats(ctx context.Context) (*YieldStats, error) {
	stats := &YieldStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM yields GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count yields by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(latency_ms) FROM yields WHERE latency_ms IS NOT NULL`,
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average latency: %w", err)
	}
	if avg.Valid {
		stats.AvgLatencyMS = avg.Float64
	}

	return stats, nil
}

// GetBalance returns the ledger balance of an account; unknown accounts hold zero.
func (s *SQLiteStore) GetBalance(ctx context.Context, account model.AccountID) (model.Token, error) {
	var amount string
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM balances WHERE account = ?`, string(account)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Token{}, nil
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("get balance: %w", err)
	}
	return model.ParseToken(amount)
}

// ListTransfers returns the most recent transfers to a recipient.
func (s *SQLiteStore) ListTransfers(ctx context.Context, recipient model.AccountID, limit int) ([]model.Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, receipt_id, recipient, amount, created_at FROM transfers
		WHERE recipient = ? ORDER BY created_at DESC, id DESC LIMIT ?`, string(recipient), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		var t model.Transfer
		var to, amount string
		if err := rows.Scan(&t.ID, &t.ReceiptID, &to, &amount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		tok, err := model.ParseToken(amount)
		if err != nil {
			return nil, fmt.Errorf("parse transfer amount: %w", err)
		}
		t.Recipient = model.AccountID(to)
		t.Amount = tok
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return transfers, nil
}

// claimYield moves a pending yield to claimed and stores the resume payload.
func claimYield(ctx context.Context, tx *sql.Tx, c ClaimedYield) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE yields SET status = ?, payload = ? WHERE id = ? AND status = ?`,
		model.YieldClaimed, string(c.Payload), c.ID.String(), model.YieldPending,
	)
	if err != nil {
		return fmt.Errorf("claim yield: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim yield: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %s is not pending", ErrInvalidTransition, c.ID)
	}
	return nil
}

// finishYield applies a transition to a terminal status inside tx.
func finishYield(ctx context.Context, tx *sql.Tx, f FinishedYield) error {
	if !model.IsTerminal(f.Status) {
		return fmt.Errorf("%w: → %s", ErrInvalidTransition, f.Status)
	}

	var created time.Time
	var status string
	err := tx.QueryRowContext(ctx,
		`SELECT status, created_at FROM yields WHERE id = ?`, f.ID.String(),
	).Scan(&status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load yield: %w", err)
	}
	if !model.ValidTransition(status, f.Status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, status, f.Status)
	}

	now := time.Now().UTC()
	var result any
	if len(f.Result) > 0 {
		result = string(f.Result)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE yields SET status = ?, result = ?, latency_ms = ?, finished_at = ? WHERE id = ?`,
		f.Status, result, now.Sub(created).Milliseconds(), now, f.ID.String(),
	); err != nil {
		return fmt.Errorf("finish yield: %w", err)
	}
	return nil
}

// applyTransfer records a transfer and credits the recipient's balance.
func applyTransfer(ctx context.Context, tx *sql.Tx, t model.Transfer) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (id, receipt_id, recipient, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.ReceiptID, string(t.Recipient), t.Amount.Yocto().String(), t.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}

	balance := model.Token{}
	var current string
	err := tx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE account = ?`, string(t.Recipient)).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("load balance: %w", err)
	default:
		if balance, err = model.ParseToken(current); err != nil {
			return fmt.Errorf("parse balance: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO balances (account, amount) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET amount = excluded.amount`,
		string(t.Recipient), balance.Add(t.Amount).Yocto().String(),
	); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanYield(row rowScanner) (*model.Yield, error) {
	y := &model.Yield{}
	var id, args string
	var payload, result sql.NullString
	if err := row.Scan(
		&id, &y.ReceiptID, &y.Method, &args, &y.Status, &payload, &result,
		&y.CreatedAt, &y.Deadline, &y.FinishedAt,
	); err != nil {
		return nil, err
	}

	yid, err := model.ParseYieldID(id)
	if err != nil {
		return nil, err
	}
	y.ID = yid
	y.Args = json.RawMessage(args)
	if payload.Valid {
		y.Payload = json.RawMessage(payload.String)
	}
	if result.Valid {
		y.Result = json.RawMessage(result.String)
	}
	return y, nil
}

// addColumn adds a column unless the table already has it.
func addColumn(db *sql.DB, table, column, decl string) error {
	var n int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&n); err != nil {
		return fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}
