// SPDX-License-Identifier: MIT

// Package ledger records completed payment transactions. The ledger is
// append-only: this core writes transactions with status "completed" and
// never mutates them afterwards.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes rentals from purchases.
type Kind string

const (
	KindRent Kind = "rent"
	KindBuy  Kind = "buy"
)

// StatusCompleted is the only status this core ever writes.
const StatusCompleted = "completed"

// Transaction is one immutable payment record.
type Transaction struct {
	ID            string    `json:"id"`
	ContentRef    string    `json:"contentRef"`
	PayerID       string    `json:"payerId"`
	PayerEmail    string    `json:"payerEmail"`
	AmountUSD     float64   `json:"amount"`
	Kind          Kind      `json:"kind"`
	RecordedAt    time.Time `json:"recordedAt"`
	Status        string    `json:"status"`
	Recipient     string    `json:"recipient"`
	ProviderTxnID string    `json:"providerTxnId"`
}

// Ledger is the external collaborator contract: an append-only store of
// completed transactions. Append is assumed to fail only transiently.
type Ledger interface {
	Append(ctx context.Context, txn *Transaction) error
	List(ctx context.Context, limit int) ([]Transaction, error)
}

// ErrRecordedElsewhereButNotLogged signals that a payment was captured by
// the provider but the local ledger append exhausted its retries. Callers
// decide whether to unlock optimistically or block; this package never
// decides for them.
var ErrRecordedElsewhereButNotLogged = errors.New("payment captured externally but not logged to ledger")
