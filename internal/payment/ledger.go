package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Payment statuses recorded in the ledger.
const (
	StatusStarted  = "started"
	StatusVerified = "verified"
	StatusFailed   = "failed"
)

// Entry is one ledger row.
type Entry struct {
	ID         int64     `json:"id"`
	ProductIDs string    `json:"product_ids"`
	Amount     float64   `json:"amount"`
	Discount   int       `json:"discount"`
	URL        string    `json:"url"`
	Status     string    `json:"status"`
	RefID      string    `json:"ref_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Ledger persists payment attempts in SQLite.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (or creates) the ledger database at path. ":memory:" keeps
// it in process memory.
func OpenLedger(path string) (*Ledger, error) {
	dsn := "file:" + path + "?cache=shared"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_ids TEXT NOT NULL,
			amount REAL NOT NULL,
			discount INTEGER NOT NULL DEFAULT 0,
			url TEXT NOT NULL,
			status TEXT NOT NULL,
			ref_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create payments table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record inserts a started payment and returns its row id.
func (l *Ledger) Record(ctx context.Context, e Entry) (int64, error) {
	if e.Status == "" {
		e.Status = StatusStarted
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO payments (product_ids, amount, discount, url, status, ref_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ProductIDs, e.Amount, e.Discount, e.URL, e.Status, e.RefID, e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("record payment: %w", err)
	}
	return res.LastInsertId()
}

// Settle marks the newest started payment for productIDs with status and refID.
// It reports false when no started payment matches.
func (l *Ledger) Settle(ctx context.Context, productIDs, refID, status string) (bool, error) {
	var id int64
	err := l.db.QueryRowContext(ctx, `
		SELECT id FROM payments WHERE product_ids = ? AND status = ? ORDER BY id DESC LIMIT 1
	`, productIDs, StatusStarted).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find payment: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, `UPDATE payments SET status = ?, ref_id = ? WHERE id = ?`, status, refID, id); err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}
	return true, nil
}

// List returns every entry, newest first.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, product_ids, amount, discount, url, status, ref_id, created_at
		FROM payments ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ProductIDs, &e.Amount, &e.Discount, &e.URL, &e.Status, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *Ledger) Close() error { return l.db.Close() }
