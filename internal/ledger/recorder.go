// SPDX-License-Identifier: MIT

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/typhoonhub/playcore/internal/log"
	"github.com/typhoonhub/playcore/internal/metrics"
)

// Recorder appends exactly one transaction per successful payment capture,
// retrying transient ledger failures a bounded number of times. Exhausted
// retries park the record in the dead-letter store and surface
// ErrRecordedElsewhereButNotLogged.
type Recorder struct {
	ledger     Ledger
	deadLetter *DeadLetterStore // optional
	attempts   int
	backoff    time.Duration
	logger     zerolog.Logger
}

// NewRecorder builds a Recorder. attempts < 1 is clamped to 1; deadLetter
// may be nil when no reconciliation store is configured.
func NewRecorder(l Ledger, deadLetter *DeadLetterStore, attempts int, backoff time.Duration) *Recorder {
	if attempts < 1 {
		attempts = 1
	}
	return &Recorder{
		ledger:     l,
		deadLetter: deadLetter,
		attempts:   attempts,
		backoff:    backoff,
		logger:     log.WithComponent("recorder"),
	}
}

// Record assigns the transaction an id and recording time, then appends it.
// It returns only after the append succeeded or definitively failed, so the
// caller can refuse to unlock until the transaction is durably recorded.
func (r *Recorder) Record(ctx context.Context, txn *Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	txn.RecordedAt = time.Now().UTC()
	txn.Status = StatusCompleted

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		lastErr = r.ledger.Append(ctx, txn)
		if lastErr == nil {
			metrics.PaymentRecorded(string(txn.Kind))
			r.logger.Info().
				Str(log.FieldTxnID, txn.ID).
				Str(log.FieldKind, string(txn.Kind)).
				Float64(log.FieldAmount, txn.AmountUSD).
				Str(log.FieldRecipient, txn.Recipient).
				Msg("transaction recorded")
			return nil
		}

		metrics.LedgerAppendFailure()
		r.logger.Warn().Err(lastErr).
			Str(log.FieldTxnID, txn.ID).
			Int("attempt", attempt).
			Int("max_attempts", r.attempts).
			Msg("ledger append failed")

		if attempt < r.attempts {
			select {
			case <-time.After(r.backoff):
			case <-ctx.Done():
				r.park(ctx, txn)
				return fmt.Errorf("%w: %w", ErrRecordedElsewhereButNotLogged, ctx.Err())
			}
		}
	}

	r.park(ctx, txn)
	return fmt.Errorf("%w: %w", ErrRecordedElsewhereButNotLogged, lastErr)
}

// park hands the unrecorded capture to the dead-letter store. The park must
// go through even when the caller's context is already cancelled, or the
// capture is lost to reconciliation.
func (r *Recorder) park(ctx context.Context, txn *Transaction) {
	if r.deadLetter == nil {
		return
	}
	if err := r.deadLetter.Park(context.WithoutCancel(ctx), txn); err != nil {
		r.logger.Error().Err(err).Str(log.FieldTxnID, txn.ID).Msg("dead-letter park failed")
		return
	}
	metrics.DeadLetteredTransaction()
	r.logger.Error().
		Str(log.FieldTxnID, txn.ID).
		Str("provider_txn_id", txn.ProviderTxnID).
		Msg("transaction parked in dead-letter store")
}
