// SPDX-License-Identifier: MIT

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/typhoonhub/playcore/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements Ledger on SQLite. Inserts only; there is no update
// path by design.
type SqliteStore struct {
	db *sql.DB
}

// NewSqliteStore opens (and migrates) the ledger database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		content_ref TEXT NOT NULL,
		payer_id TEXT NOT NULL,
		payer_email TEXT NOT NULL,
		amount_usd REAL NOT NULL CHECK (amount_usd >= 0),
		kind TEXT NOT NULL CHECK (kind IN ('rent', 'buy')),
		recorded_at TEXT NOT NULL,
		status TEXT NOT NULL,
		recipient TEXT NOT NULL,
		provider_txn_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_recorded ON transactions(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_content ON transactions(content_ref);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Append inserts one transaction.
func (s *SqliteStore) Append(ctx context.Context, txn *Transaction) error {
	query := `
	INSERT INTO transactions (id, content_ref, payer_id, payer_email, amount_usd, kind, recorded_at, status, recipient, provider_txn_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		txn.ID, txn.ContentRef, txn.PayerID, txn.PayerEmail, txn.AmountUSD,
		string(txn.Kind), txn.RecordedAt.UTC().Format(time.RFC3339Nano),
		txn.Status, txn.Recipient, txn.ProviderTxnID,
	)
	if err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return nil
}

// List returns the most recent transactions, newest first.
func (s *SqliteStore) List(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
	SELECT id, content_ref, payer_id, payer_email, amount_usd, kind, recorded_at, status, recipient, provider_txn_id
	FROM transactions ORDER BY recorded_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transaction
	for rows.Next() {
		var txn Transaction
		var kind, recordedAt string
		if err := rows.Scan(&txn.ID, &txn.ContentRef, &txn.PayerID, &txn.PayerEmail,
			&txn.AmountUSD, &kind, &recordedAt, &txn.Status, &txn.Recipient, &txn.ProviderTxnID); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		txn.Kind = Kind(kind)
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			txn.RecordedAt = t
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}
