// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/typhoonhub/playcore/internal/adbreak"
	"github.com/typhoonhub/playcore/internal/assets"
	"github.com/typhoonhub/playcore/internal/content"
	"github.com/typhoonhub/playcore/internal/gate"
	"github.com/typhoonhub/playcore/internal/ledger"
	"github.com/typhoonhub/playcore/internal/playback"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memLedger struct {
	mu   sync.Mutex
	txns []ledger.Transaction
	err  error
}

func (m *memLedger) Append(_ context.Context, txn *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.txns = append(m.txns, *txn)
	return nil
}

func (m *memLedger) List(_ context.Context, _ int) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Transaction, len(m.txns))
	copy(out, m.txns)
	return out, nil
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txns)
}

type stubMinter struct {
	mu    sync.Mutex
	block map[string]chan struct{}
}

func (s *stubMinter) blockRef(ref string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.block == nil {
		s.block = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	s.block[ref] = ch
	return ch
}

func (s *stubMinter) MintSignedURL(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	ch := s.block[key]
	s.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "https://signed.example/" + key, nil
}

type fixture struct {
	minter   *stubMinter
	ledger   *memLedger
	elements []*playback.HeadlessElement
	mu       sync.Mutex
}

func (f *fixture) newElement() playback.MediaElement {
	el := playback.NewHeadlessElement(120)
	f.mu.Lock()
	f.elements = append(f.elements, el)
	f.mu.Unlock()
	return el
}

func (f *fixture) lastElement() *playback.HeadlessElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.elements) == 0 {
		return nil
	}
	return f.elements[len(f.elements)-1]
}

func newFixture() *fixture {
	return &fixture{minter: &stubMinter{}, ledger: &memLedger{}}
}

func (f *fixture) open(t *testing.T, c content.PlayableContent, ad AdConfig) *Session {
	t.Helper()
	s := New(Options{
		Content:       c,
		Resolver:      assets.NewResolver(f.minter, assets.Options{}),
		Recorder:      ledger.NewRecorder(f.ledger, nil, 2, time.Millisecond),
		PlatformPayee: "platform@typhoonhub.ca",
		Ad:            ad,
		MediaFactory:  f.newElement,
	})
	t.Cleanup(s.Close)
	return s
}

func freeContent() content.PlayableContent {
	return content.PlayableContent{
		ID:        "c-free",
		Title:     "Free Film",
		SourceRef: "media/free.mp4",
		PosterRef: "posters/free.jpg",
	}
}

func paidContent() content.PlayableContent {
	return content.PlayableContent{
		ID:               "c-paid",
		Title:            "Paid Film",
		SourceRef:        "media/paid.mp4",
		PurchasePriceUSD: 14.99,
		RentalPriceUSD:   4.99,
		PayoutRecipient:  "creator@example.com",
	}
}

func waitMounted(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Engine().Mounted()
	}, 2*time.Second, 5*time.Millisecond, "playback never mounted")
}

func TestOpen_UngatedUnlocksAndMounts(t *testing.T) {
	f := newFixture()
	s := f.open(t, freeContent(), AdConfig{TotalSeconds: 0})

	assert.Equal(t, gate.StateUnlocked, s.Gate())
	assert.Equal(t, adbreak.StateFinished, s.AdState())

	waitMounted(t, s)
	assert.Equal(t, "https://signed.example/media/free.mp4", f.lastElement().Src())
}

func TestOpen_GatedWaitsAtGate(t *testing.T) {
	f := newFixture()
	s := f.open(t, paidContent(), AdConfig{TotalSeconds: 0})

	assert.Equal(t, gate.StateLocked, s.Gate())
	assert.Equal(t, adbreak.StateNotStarted, s.AdState())
	assert.False(t, s.Engine().Mounted())
}

func TestBeginPurchase_RequiresViewer(t *testing.T) {
	f := newFixture()
	s := f.open(t, paidContent(), AdConfig{TotalSeconds: 0})

	err := s.BeginPurchase(context.Background(), nil)
	assert.ErrorIs(t, err, gate.ErrAuthRequired)
	assert.Equal(t, gate.StateLocked, s.Gate())
}

func TestPurchaseFlow_UnlocksRecordsAndMounts(t *testing.T) {
	f := newFixture()
	s := f.open(t, paidContent(), AdConfig{TotalSeconds: 0})

	viewer := &gate.Identity{ID: "v1", Email: "viewer@example.com"}
	require.NoError(t, s.BeginPurchase(context.Background(), viewer))
	require.NoError(t, s.PaymentSucceeded(context.Background(), gate.Capture{
		Kind:          ledger.KindBuy,
		ProviderTxnID: "prov-1",
	}))

	assert.Equal(t, gate.StateUnlocked, s.Gate())
	require.Equal(t, 1, f.ledger.count())
	txn := f.ledger.txns[0]
	assert.Equal(t, 14.99, txn.AmountUSD)
	assert.Equal(t, "creator@example.com", txn.Recipient)

	waitMounted(t, s)
}

func TestPaymentFailure_NoAdNoLedger(t *testing.T) {
	f := newFixture()
	s := f.open(t, paidContent(), AdConfig{TotalSeconds: 5})

	viewer := &gate.Identity{ID: "v1"}
	require.NoError(t, s.BeginPurchase(context.Background(), viewer))
	require.NoError(t, s.PaymentFailed(context.Background(), "card declined"))

	assert.Equal(t, gate.StateLocked, s.Gate())
	assert.Equal(t, adbreak.StateNotStarted, s.AdState())
	assert.Equal(t, 0, f.ledger.count())
}

func TestPaymentSucceeded_LedgerFailureKeepsGateClosed(t *testing.T) {
	f := newFixture()
	f.ledger.err = errors.New("ledger down")
	s := f.open(t, paidContent(), AdConfig{TotalSeconds: 5})

	require.NoError(t, s.BeginPurchase(context.Background(), &gate.Identity{ID: "v1"}))
	err := s.PaymentSucceeded(context.Background(), gate.Capture{Kind: ledger.KindRent})

	assert.ErrorIs(t, err, ledger.ErrRecordedElsewhereButNotLogged)
	assert.Equal(t, gate.StateAwaitingPayment, s.Gate())
	assert.Equal(t, adbreak.StateNotStarted, s.AdState())
}

func TestSkipAd_BeforeStart(t *testing.T) {
	f := newFixture()
	s := f.open(t, paidContent(), AdConfig{TotalSeconds: 5})

	assert.ErrorIs(t, s.SkipAd(), ErrAdBreakNotStarted)
}

func TestSkipAd_MountsPlayback(t *testing.T) {
	f := newFixture()
	// Skippable from the first second, so the test never waits out the ad.
	s := f.open(t, freeContent(), AdConfig{TotalSeconds: 30, SkippableAfterSeconds: 0})

	require.Equal(t, adbreak.StateSkippable, s.AdState())
	require.NoError(t, s.SkipAd())
	assert.Equal(t, adbreak.StateFinished, s.AdState())

	waitMounted(t, s)
}

func TestSetSourceRef_LastRefWins(t *testing.T) {
	f := newFixture()
	release := f.minter.blockRef("media/free.mp4")

	s := f.open(t, freeContent(), AdConfig{TotalSeconds: 0})

	// The original ref is stuck in the minter; swapping the ref must make
	// the eventual stale result a no-op.
	s.SetSourceRef("media/recut.mp4")
	waitMounted(t, s)
	require.Equal(t, "https://signed.example/media/recut.mp4", f.lastElement().Src())

	close(release)
	time.Sleep(20 * time.Millisecond)
	snap := s.Snapshot()
	assert.Equal(t, "https://signed.example/media/recut.mp4", snap.ResolvedSourceURL)
}

func TestSnapshot(t *testing.T) {
	f := newFixture()
	s := f.open(t, freeContent(), AdConfig{TotalSeconds: 0})
	waitMounted(t, s)

	snap := s.Snapshot()
	assert.Equal(t, s.ID, snap.ID)
	assert.Equal(t, "c-free", snap.ContentID)
	assert.True(t, snap.Unlocked)
	assert.Equal(t, adbreak.StateFinished, snap.AdState)
	assert.Equal(t, "https://signed.example/media/free.mp4", snap.ResolvedSourceURL)
	assert.Equal(t, "https://signed.example/posters/free.jpg", snap.ResolvedPosterURL)
}

func TestClose_ReleasesElementAndIsIdempotent(t *testing.T) {
	f := newFixture()
	s := f.open(t, freeContent(), AdConfig{TotalSeconds: 0})
	waitMounted(t, s)

	s.Close()
	s.Close()

	assert.True(t, f.lastElement().Released())
	assert.ErrorIs(t, s.BeginPurchase(context.Background(), nil), ErrClosed)
}

func TestClose_MidAdStopsTicker(t *testing.T) {
	f := newFixture()
	s := f.open(t, freeContent(), AdConfig{TotalSeconds: 60, SkippableAfterSeconds: 30})

	require.Equal(t, adbreak.StatePlaying, s.AdState())
	s.Close()
	assert.False(t, s.Engine().Mounted())
}

func TestClose_CancelsInFlightResolution(t *testing.T) {
	f := newFixture()
	release := f.minter.blockRef("media/free.mp4")
	defer close(release)

	s := f.open(t, freeContent(), AdConfig{TotalSeconds: 0})
	s.Close()

	// The blocked mint is cancelled by the session context; nothing mounts.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Engine().Mounted())
}

func TestClose_DuringElementBuildNeverMounts(t *testing.T) {
	f := newFixture()
	factoryGate := make(chan struct{})
	built := make(chan *playback.HeadlessElement, 1)

	s := New(Options{
		Content:  freeContent(),
		Resolver: assets.NewResolver(f.minter, assets.Options{}),
		Recorder: ledger.NewRecorder(f.ledger, nil, 1, 0),
		Ad:       AdConfig{TotalSeconds: 0},
		MediaFactory: func() playback.MediaElement {
			<-factoryGate
			el := playback.NewHeadlessElement(120)
			built <- el
			return el
		},
	})
	t.Cleanup(s.Close)

	// The mount goroutine is stuck in the factory; closing now must win.
	s.Close()
	close(factoryGate)

	el := <-built
	require.Eventually(t, func() bool {
		return el.Released()
	}, 2*time.Second, 5*time.Millisecond, "element built after close must be released")
	assert.False(t, s.Engine().Mounted())
}

func TestRegistry_Lifecycle(t *testing.T) {
	f := newFixture()
	r := NewRegistry(RegistryOptions{
		Resolver:      assets.NewResolver(f.minter, assets.Options{}),
		Recorder:      ledger.NewRecorder(f.ledger, nil, 1, 0),
		PlatformPayee: "platform@typhoonhub.ca",
		MediaFactory:  f.newElement,
	})

	s := r.Open(freeContent())
	require.Equal(t, 1, r.Len())

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Close("nope"), ErrNotFound)

	require.NoError(t, r.Close(s.ID))
	assert.Equal(t, 0, r.Len())
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_CloseAll(t *testing.T) {
	f := newFixture()
	r := NewRegistry(RegistryOptions{
		Resolver:     assets.NewResolver(f.minter, assets.Options{}),
		Recorder:     ledger.NewRecorder(f.ledger, nil, 1, 0),
		MediaFactory: f.newElement,
	})

	a := r.Open(freeContent())
	b := r.Open(freeContent())
	require.Equal(t, 2, r.Len())

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	assert.ErrorIs(t, a.BeginPurchase(context.Background(), nil), ErrClosed)
	assert.ErrorIs(t, b.BeginPurchase(context.Background(), nil), ErrClosed)
}
