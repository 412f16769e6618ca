// SPDX-License-Identifier: MIT

package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const deadLetterPrefix = "dlq:"

// DeadLetterStore parks transactions whose ledger append exhausted its
// retries, so a payment captured by the provider is never lost silently.
// Operators drain it during reconciliation.
type DeadLetterStore struct {
	db *badger.DB
}

// OpenDeadLetterStore opens (or creates) the badger-backed store at path.
func OpenDeadLetterStore(path string) (*DeadLetterStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("deadletter: open %s: %w", path, err)
	}
	return &DeadLetterStore{db: db}, nil
}

// Park stores txn keyed by its provider transaction id. Parking the same
// capture twice overwrites, which is the wanted idempotency.
func (s *DeadLetterStore) Park(ctx context.Context, txn *Transaction) error {
	key := []byte(deadLetterPrefix + txn.ProviderTxnID)
	buf, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("deadletter: marshal: %w", err)
	}
	return s.db.Update(func(b *badger.Txn) error {
		return b.Set(key, buf)
	})
}

// List returns all parked transactions.
func (s *DeadLetterStore) List(ctx context.Context) ([]Transaction, error) {
	var out []Transaction
	err := s.db.View(func(b *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(deadLetterPrefix)
		it := b.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var txn Transaction
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &txn)
			}); err != nil {
				return err
			}
			out = append(out, txn)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deadletter: list: %w", err)
	}
	return out, nil
}

// Remove deletes the parked transaction for the given provider txn id,
// typically after an operator reconciled it into the ledger.
func (s *DeadLetterStore) Remove(ctx context.Context, providerTxnID string) error {
	return s.db.Update(func(b *badger.Txn) error {
		return b.Delete([]byte(deadLetterPrefix + providerTxnID))
	})
}

// Close closes the underlying store.
func (s *DeadLetterStore) Close() error {
	return s.db.Close()
}
