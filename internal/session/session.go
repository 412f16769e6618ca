// SPDX-License-Identifier: MIT

// Package session orchestrates one viewing session: monetization gate,
// ad break, asset resolution and the playback engine. Sessions are
// ephemeral and client-owned; closing the viewer destroys the session and
// reopening the same content starts from scratch, ad break included.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/typhoonhub/playcore/internal/adbreak"
	"github.com/typhoonhub/playcore/internal/assets"
	"github.com/typhoonhub/playcore/internal/content"
	"github.com/typhoonhub/playcore/internal/gate"
	"github.com/typhoonhub/playcore/internal/ledger"
	"github.com/typhoonhub/playcore/internal/log"
	"github.com/typhoonhub/playcore/internal/metrics"
	"github.com/typhoonhub/playcore/internal/playback"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session is closed")

// ErrAdBreakNotStarted is returned by SkipAd before the break exists.
var ErrAdBreakNotStarted = errors.New("ad break has not started")

// AdConfig sizes the pre-roll ad break.
type AdConfig struct {
	TotalSeconds          int
	SkippableAfterSeconds int
}

// Options wires a session to its collaborators.
type Options struct {
	Content       content.PlayableContent
	Resolver      *assets.Resolver
	Recorder      *ledger.Recorder
	PlatformPayee string
	Ad            AdConfig
	// MediaFactory supplies the media element mounted once the ad break
	// finishes.
	MediaFactory func() playback.MediaElement
	// OnEnded is invoked when playback of the main asset ends.
	OnEnded func()
}

// Session is one viewer's playback session for one content item.
type Session struct {
	ID string

	opts   Options
	gate   *gate.Gate
	engine *playback.Engine
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	closed         bool
	sourceRef      string
	ad             *adbreak.Sequencer
	resolveGen     uint64
	resolvedSource string
	resolvedPoster string
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	ID                string            `json:"id"`
	ContentID         string            `json:"contentId"`
	Title             string            `json:"title"`
	GateState         gate.State        `json:"gateState"`
	Unlocked          bool              `json:"unlocked"`
	AdState           adbreak.State     `json:"adState"`
	AdRemainingSec    int               `json:"adRemainingSec"`
	Playback          playback.Snapshot `json:"playback"`
	ResolvedSourceURL string            `json:"resolvedSourceUrl,omitempty"`
	ResolvedPosterURL string            `json:"resolvedPosterUrl,omitempty"`
}

// New opens a session. Ungated content unlocks immediately and the ad
// break starts at once; gated content waits at the monetization gate.
func New(opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:        uuid.NewString(),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		sourceRef: opts.Content.SourceRef,
	}
	s.logger = log.WithComponent("session").With().
		Str(log.FieldSessionID, s.ID).
		Str(log.FieldContentID, opts.Content.ID).
		Logger()

	s.gate = gate.New(opts.Content, opts.Recorder, opts.PlatformPayee)
	s.engine = playback.NewEngine(playback.Options{
		Unlocked: s.gate.Unlocked,
		Resolve:  s.resolveForRetry,
		OnEnded:  s.handleEnded,
	})

	metrics.SessionOpened()
	s.logger.Info().Bool("gated", opts.Content.Gated()).Msg("session opened")

	if s.gate.Unlocked() {
		s.startAdBreak()
	}
	return s
}

// Gate exposes the session's monetization gate state.
func (s *Session) Gate() gate.State {
	return s.gate.State()
}

// Engine exposes the playback engine for control operations.
func (s *Session) Engine() *playback.Engine {
	return s.engine
}

// BeginPurchase starts the payment flow for the given viewer identity.
func (s *Session) BeginPurchase(ctx context.Context, viewer *gate.Identity) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.gate.BeginPurchase(ctx, viewer)
}

// PaymentSucceeded handles the payment widget's success callback. The
// ledger append completes before this returns nil; only then does the ad
// break start.
func (s *Session) PaymentSucceeded(ctx context.Context, cap gate.Capture) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.gate.HandleCaptureSuccess(ctx, cap); err != nil {
		return err
	}
	s.startAdBreak()
	return nil
}

// PaymentFailed handles widget failure or cancellation.
func (s *Session) PaymentFailed(ctx context.Context, reason string) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.gate.HandleCaptureFailure(ctx, reason)
}

// AdState returns the ad break state; NotStarted before unlock.
func (s *Session) AdState() adbreak.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ad == nil {
		return adbreak.StateNotStarted
	}
	return s.ad.State()
}

// SkipAd skips the ad break if it is currently skippable.
func (s *Session) SkipAd() error {
	s.mu.Lock()
	ad := s.ad
	s.mu.Unlock()
	if ad == nil {
		return ErrAdBreakNotStarted
	}
	return ad.Skip()
}

func (s *Session) startAdBreak() {
	s.mu.Lock()
	if s.closed || s.ad != nil {
		s.mu.Unlock()
		return
	}
	ad := adbreak.New(adbreak.Config{
		TotalSeconds:          s.opts.Ad.TotalSeconds,
		SkippableAfterSeconds: s.opts.Ad.SkippableAfterSeconds,
		OnFinished:            s.mountPlayback,
	})
	s.ad = ad
	s.mu.Unlock()

	if err := ad.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("ad break start refused")
	}
}

// mountPlayback resolves the asset URLs and mounts the media element. It
// runs when the ad break finishes; resolution happens off the caller's
// goroutine and is discarded if a newer ref or a close intervenes.
func (s *Session) mountPlayback() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.resolveGen++
	gen := s.resolveGen
	ref := s.sourceRef
	posterRef := s.opts.Content.PosterRef
	s.mu.Unlock()

	go s.resolveAndMount(gen, ref, posterRef)
}

func (s *Session) resolveAndMount(gen uint64, ref, posterRef string) {
	src := s.opts.Resolver.Resolve(s.ctx, ref)
	poster := s.opts.Resolver.Resolve(s.ctx, posterRef)

	el := s.opts.MediaFactory()

	// The mount decision happens under the lock, after the factory returned:
	// a Close or a newer ref that landed while resolving or building the
	// element must win, and the fresh element is released instead of mounted.
	s.mu.Lock()
	if s.closed || gen != s.resolveGen {
		s.mu.Unlock()
		el.Release()
		return
	}
	s.resolvedSource = src
	s.resolvedPoster = poster
	if s.engine.Mounted() {
		s.engine.Release()
	}
	err := s.engine.Mount(el, src, poster)
	s.mu.Unlock()

	if err != nil {
		el.Release()
		s.logger.Warn().Err(err).Str(log.FieldURL, src).Msg("media mount failed")
		return
	}
	s.logger.Info().Str(log.FieldURL, src).Msg("playback mounted")
}

// SetSourceRef swaps the content's source reference mid-session.
// Last-ref-wins: any in-flight resolution for the previous ref is
// discarded when it lands.
func (s *Session) SetSourceRef(ref string) {
	s.mu.Lock()
	if s.closed || ref == s.sourceRef {
		s.mu.Unlock()
		return
	}
	s.sourceRef = ref
	adDone := s.ad != nil && s.ad.State() == adbreak.StateFinished
	s.mu.Unlock()

	if adDone && s.gate.Unlocked() {
		s.mountPlayback()
	}
}

func (s *Session) resolveForRetry(ctx context.Context) (string, string) {
	s.mu.Lock()
	ref := s.sourceRef
	posterRef := s.opts.Content.PosterRef
	s.mu.Unlock()

	// Retry wants a fresh URL: the cached one may be the expired signature
	// that caused the failure.
	s.opts.Resolver.Invalidate(ref)
	return s.opts.Resolver.Resolve(ctx, ref), s.opts.Resolver.Resolve(ctx, posterRef)
}

func (s *Session) handleEnded() {
	s.logger.Info().Msg("playback ended")
	if s.opts.OnEnded != nil {
		s.opts.OnEnded()
	}
}

// Snapshot returns the full session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	ad := s.ad
	src := s.resolvedSource
	poster := s.resolvedPoster
	s.mu.Unlock()

	snap := Snapshot{
		ID:                s.ID,
		ContentID:         s.opts.Content.ID,
		Title:             s.opts.Content.Title,
		GateState:         s.gate.State(),
		Unlocked:          s.gate.Unlocked(),
		AdState:           adbreak.StateNotStarted,
		Playback:          s.engine.Snapshot(),
		ResolvedSourceURL: src,
		ResolvedPosterURL: poster,
	}
	if ad != nil {
		snap.AdState = ad.State()
		snap.AdRemainingSec = ad.Remaining()
	}
	return snap
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down: the ad ticker stops, the media element is
// released and any in-flight resolution becomes ignorable. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ad := s.ad
	// Released under the lock: resolveAndMount checks closed under the same
	// lock before mounting, so nothing mounts after this point.
	s.engine.Release()
	s.mu.Unlock()

	s.cancel()
	if ad != nil {
		ad.Stop()
	}

	metrics.SessionClosed()
	s.logger.Info().Msg("session closed")
}
