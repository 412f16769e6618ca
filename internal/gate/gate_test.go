// SPDX-License-Identifier: MIT

package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typhoonhub/playcore/internal/content"
	"github.com/typhoonhub/playcore/internal/fsm"
	"github.com/typhoonhub/playcore/internal/ledger"
)

type memLedger struct {
	failing   bool
	committed []ledger.Transaction
}

func (m *memLedger) Append(ctx context.Context, txn *ledger.Transaction) error {
	if m.failing {
		return errors.New("network: unreachable")
	}
	m.committed = append(m.committed, *txn)
	return nil
}

func (m *memLedger) List(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	return m.committed, nil
}

const platformPayee = "platform@typhoonhub.ca"

func newGate(c content.PlayableContent, l ledger.Ledger) *Gate {
	return New(c, ledger.NewRecorder(l, nil, 2, time.Millisecond), platformPayee)
}

func TestNew_InitialState(t *testing.T) {
	l := &memLedger{}

	for _, tc := range []struct {
		name    string
		content content.PlayableContent
		want    State
	}{
		{"free content starts unlocked", content.PlayableContent{ID: "free"}, StateUnlocked},
		{"purchasable starts locked", content.PlayableContent{ID: "p", PurchasePriceUSD: 9.99}, StateLocked},
		{"rentable starts locked", content.PlayableContent{ID: "r", RentalPriceUSD: 3.99}, StateLocked},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, newGate(tc.content, l).State())
		})
	}
}

func TestBeginPurchase_RequiresIdentity(t *testing.T) {
	l := &memLedger{}
	g := newGate(content.PlayableContent{ID: "r", RentalPriceUSD: 3.99}, l)

	err := g.BeginPurchase(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, StateLocked, g.State())
	assert.Empty(t, l.committed, "no ledger append on refused transition")
}

func TestBeginPurchase_WithIdentity(t *testing.T) {
	l := &memLedger{}
	g := newGate(content.PlayableContent{ID: "r", RentalPriceUSD: 3.99}, l)

	require.NoError(t, g.BeginPurchase(context.Background(), &Identity{ID: "v1", Email: "v@e.com"}))
	assert.Equal(t, StateAwaitingPayment, g.State())
}

func TestHandleCaptureSuccess_RecordsExactlyOneTransaction(t *testing.T) {
	l := &memLedger{}
	g := newGate(content.PlayableContent{
		ID:               "lol-sancho",
		PurchasePriceUSD: 9.99,
		PayoutRecipient:  "a@b.com",
	}, l)
	ctx := context.Background()

	require.NoError(t, g.BeginPurchase(ctx, &Identity{ID: "v1", Email: "viewer@typhoonhub.ca"}))
	require.NoError(t, g.HandleCaptureSuccess(ctx, Capture{
		AmountUSD:     9.99,
		Kind:          ledger.KindBuy,
		ProviderTxnID: "T1",
		PayerIdentity: "v@e.com",
	}))

	assert.Equal(t, StateUnlocked, g.State())
	require.Len(t, l.committed, 1)
	txn := l.committed[0]
	assert.Equal(t, 9.99, txn.AmountUSD)
	assert.Equal(t, ledger.KindBuy, txn.Kind)
	assert.Equal(t, "a@b.com", txn.Recipient)
	assert.Equal(t, "v@e.com", txn.PayerEmail)
	assert.Equal(t, "v1", txn.PayerID)
	assert.Equal(t, "lol-sancho", txn.ContentRef)
}

func TestHandleCaptureSuccess_RentUsesRentalPriceAndPlatformPayee(t *testing.T) {
	l := &memLedger{}
	g := newGate(content.PlayableContent{
		ID:               "r",
		RentalPriceUSD:   3.99,
		PurchasePriceUSD: 12.99,
	}, l)
	ctx := context.Background()

	require.NoError(t, g.BeginPurchase(ctx, &Identity{ID: "v1"}))
	// Widget-reported amount is ignored in favor of the catalog price.
	require.NoError(t, g.HandleCaptureSuccess(ctx, Capture{
		AmountUSD: 1.00, Kind: ledger.KindRent, ProviderTxnID: "T2",
	}))

	require.Len(t, l.committed, 1)
	assert.Equal(t, 3.99, l.committed[0].AmountUSD)
	assert.Equal(t, platformPayee, l.committed[0].Recipient)
}

func TestHandleCaptureSuccess_ConcurrentDuplicateAppendsOnce(t *testing.T) {
	l := &memLedger{}
	g := newGate(content.PlayableContent{ID: "p", PurchasePriceUSD: 9.99}, l)
	require.NoError(t, g.BeginPurchase(context.Background(), &Identity{ID: "v1"}))

	// A payment widget retrying its success callback can deliver it twice at
	// the same instant. One append, one winner.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = g.HandleCaptureSuccess(context.Background(), Capture{
				Kind: ledger.KindBuy, ProviderTxnID: "T-dup",
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, StateUnlocked, g.State())
	assert.Len(t, l.committed, 1)
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, fsm.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestHandleCaptureFailure_ReturnsToLocked(t *testing.T) {
	l := &memLedger{}
	g := newGate(content.PlayableContent{ID: "r", RentalPriceUSD: 3.99}, l)
	ctx := context.Background()

	require.NoError(t, g.BeginPurchase(ctx, &Identity{ID: "v1"}))
	require.NoError(t, g.HandleCaptureFailure(ctx, "cancelled"))

	assert.Equal(t, StateLocked, g.State())
	assert.Empty(t, l.committed)

	// The viewer can try again.
	require.NoError(t, g.BeginPurchase(ctx, &Identity{ID: "v1"}))
	assert.Equal(t, StateAwaitingPayment, g.State())
}

func TestHandleCaptureSuccess_LedgerFailureDoesNotUnlock(t *testing.T) {
	l := &memLedger{failing: true}
	g := newGate(content.PlayableContent{ID: "p", PurchasePriceUSD: 9.99}, l)
	ctx := context.Background()

	require.NoError(t, g.BeginPurchase(ctx, &Identity{ID: "v1"}))
	err := g.HandleCaptureSuccess(ctx, Capture{Kind: ledger.KindBuy, ProviderTxnID: "T3"})

	require.ErrorIs(t, err, ledger.ErrRecordedElsewhereButNotLogged)
	assert.Equal(t, StateAwaitingPayment, g.State(), "unlocking before the transaction is recorded is a correctness bug")
	assert.False(t, g.Unlocked())
}

func TestUnlockedIsTerminal(t *testing.T) {
	l := &memLedger{}
	g := newGate(content.PlayableContent{ID: "free"}, l)

	assert.True(t, g.Unlocked())
	assert.Error(t, g.HandleCaptureFailure(context.Background(), "stray callback"))
	assert.True(t, g.Unlocked())
}

func TestBeginPurchase_InvalidWhenUngated(t *testing.T) {
	l := &memLedger{}
	g := newGate(content.PlayableContent{ID: "free"}, l)

	err := g.BeginPurchase(context.Background(), &Identity{ID: "v1"})
	assert.Error(t, err)
	assert.Equal(t, StateUnlocked, g.State())
}
