// SPDX-License-Identifier: MIT

// Package gate implements the monetization gate: the state machine deciding
// whether a viewing session may reach playback, and the single place a
// successful payment capture becomes a ledger transaction.
package gate

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/typhoonhub/playcore/internal/content"
	"github.com/typhoonhub/playcore/internal/fsm"
	"github.com/typhoonhub/playcore/internal/ledger"
	"github.com/typhoonhub/playcore/internal/log"
	"github.com/typhoonhub/playcore/internal/metrics"
)

// State is the gate state for one session.
type State string

const (
	StateLocked          State = "locked"
	StateAwaitingPayment State = "awaiting_payment"
	StateUnlocked        State = "unlocked"
)

type event string

const (
	eventBeginPurchase  event = "begin_purchase"
	eventCaptureSuccess event = "capture_success"
	eventCaptureFailure event = "capture_failure"
)

// ErrAuthRequired is returned when a gated action is attempted without a
// viewer identity. Recoverable by signing in; never fatal.
var ErrAuthRequired = errors.New("viewer identity required for gated content")

// Identity is the authenticated viewer, as reported by the auth collaborator.
type Identity struct {
	ID    string
	Email string
}

// Capture is the payload of the payment widget's success callback. The
// widget is untrusted input: the recorded amount comes from the content
// prices, never from here.
type Capture struct {
	AmountUSD     float64
	Kind          ledger.Kind
	ProviderTxnID string
	PayerIdentity string
}

// Gate sequences Locked -> AwaitingPayment -> Unlocked for one session.
// Unlocked is terminal: a session never re-locks.
type Gate struct {
	content       content.PlayableContent
	recorder      *ledger.Recorder
	platformPayee string
	machine       *fsm.Machine[State, event]
	logger        zerolog.Logger

	mu      sync.Mutex
	viewer  *Identity
	capture *Capture
}

// New builds a gate for the given content. Ungated content starts Unlocked;
// everything else starts Locked.
func New(c content.PlayableContent, recorder *ledger.Recorder, platformPayee string) *Gate {
	g := &Gate{
		content:       c,
		recorder:      recorder,
		platformPayee: platformPayee,
		logger:        log.WithComponent("gate").With().Str(log.FieldContentID, c.ID).Logger(),
	}

	initial := StateUnlocked
	if c.Gated() {
		initial = StateLocked
	}

	// The machine cannot fail to build: the edge set is static and free of
	// duplicates.
	g.machine, _ = fsm.New(initial, []fsm.Transition[State, event]{
		{
			From: StateLocked, Event: eventBeginPurchase, To: StateAwaitingPayment,
			Guard: g.requireViewer,
		},
		{
			From: StateAwaitingPayment, Event: eventCaptureSuccess, To: StateUnlocked,
			Action: g.recordTransaction,
		},
		{
			From: StateAwaitingPayment, Event: eventCaptureFailure, To: StateLocked,
		},
	}, g.observe)

	return g
}

func (g *Gate) observe(from, to State, _ event) {
	metrics.GateTransition(string(from), string(to))
	g.logger.Info().
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Msg("gate transition")
}

// State returns the current gate state.
func (g *Gate) State() State {
	return g.machine.State()
}

// Unlocked reports whether playback may proceed.
func (g *Gate) Unlocked() bool {
	return g.machine.Is(StateUnlocked)
}

// BeginPurchase moves Locked -> AwaitingPayment for the given viewer.
// A nil viewer is refused with ErrAuthRequired; an unlocked or already
// awaiting gate is an invalid transition.
func (g *Gate) BeginPurchase(ctx context.Context, viewer *Identity) error {
	g.mu.Lock()
	g.viewer = viewer
	g.mu.Unlock()

	_, err := g.machine.Fire(ctx, eventBeginPurchase)
	return err
}

func (g *Gate) requireViewer(ctx context.Context, _ State, _ event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.viewer == nil || g.viewer.ID == "" {
		return ErrAuthRequired
	}
	return nil
}

// HandleCaptureSuccess processes the payment widget's success callback.
// The ledger append completes before Unlocked becomes observable; if the
// append definitively fails the gate stays AwaitingPayment and the error
// (ErrRecordedElsewhereButNotLogged after exhausted retries) is returned
// for the caller to decide on.
func (g *Gate) HandleCaptureSuccess(ctx context.Context, cap Capture) error {
	g.mu.Lock()
	g.capture = &cap
	g.mu.Unlock()

	_, err := g.machine.Fire(ctx, eventCaptureSuccess)
	return err
}

func (g *Gate) recordTransaction(ctx context.Context, _, _ State, _ event) error {
	g.mu.Lock()
	cap := g.capture
	viewer := g.viewer
	g.mu.Unlock()

	recipient := g.content.PayoutRecipient
	if recipient == "" {
		recipient = g.platformPayee
	}

	// The authoritative amount is the catalog price for the captured kind,
	// not whatever the widget reported.
	amount := g.content.PurchasePriceUSD
	if cap.Kind == ledger.KindRent {
		amount = g.content.RentalPriceUSD
	}

	txn := &ledger.Transaction{
		ContentRef:    g.content.ID,
		AmountUSD:     amount,
		Kind:          cap.Kind,
		Recipient:     recipient,
		ProviderTxnID: cap.ProviderTxnID,
		PayerEmail:    cap.PayerIdentity,
	}
	if viewer != nil {
		txn.PayerID = viewer.ID
		if txn.PayerEmail == "" {
			txn.PayerEmail = viewer.Email
		}
	}

	return g.recorder.Record(ctx, txn)
}

// HandleCaptureFailure processes widget failure or cancellation: back to
// Locked, nothing written.
func (g *Gate) HandleCaptureFailure(ctx context.Context, reason string) error {
	g.logger.Info().Str("reason", reason).Msg("payment failed or cancelled")

	g.mu.Lock()
	g.capture = nil
	g.mu.Unlock()

	_, err := g.machine.Fire(ctx, eventCaptureFailure)
	return err
}
