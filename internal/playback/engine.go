// SPDX-License-Identifier: MIT

// Package playback owns the media-element state for an unlocked session:
// transport controls, volume, rate, fullscreen, error classification and
// retry.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/typhoonhub/playcore/internal/log"
)

// Rates is the only playback-rate ladder exposed at the interface boundary.
var Rates = []float64{0.5, 0.75, 1, 1.25, 1.5, 2}

var (
	// ErrInvalidRate rejects rates outside the fixed ladder.
	ErrInvalidRate = errors.New("playback rate outside supported ladder")
	// ErrDurationUnknown rejects seeks before metadata is loaded.
	ErrDurationUnknown = errors.New("cannot seek before duration is known")
	// ErrNotMounted is returned by operations that need a media element.
	ErrNotMounted = errors.New("no media element mounted")
	// ErrLocked is returned by Mount while the session is still locked.
	ErrLocked = errors.New("session is locked")
)

// MediaElement abstracts the underlying platform media handle. A browser
// front end binds a <video> element; the daemon binds a headless element.
type MediaElement interface {
	Load(src, poster string) error
	Play() error
	Pause() error
	SetCurrentTime(seconds float64)
	Duration() float64
	BufferedFraction() float64
	SetVolume(v float64)
	SetMuted(muted bool)
	SetRate(r float64)
	EnterFullscreen() error
	ExitFullscreen() error
	EnterPictureInPicture() error
	ExitPictureInPicture() error
	Release()
}

// Snapshot is the externally visible playback state.
type Snapshot struct {
	IsPlaying        bool     `json:"isPlaying"`
	CurrentTimeSec   float64  `json:"currentTimeSec"`
	DurationSec      float64  `json:"durationSec"`
	BufferedFraction float64  `json:"bufferedFraction"`
	Volume           float64  `json:"volume"`
	Muted            bool     `json:"muted"`
	Rate             float64  `json:"rate"`
	Fullscreen       bool     `json:"fullscreen"`
	PictureInPicture bool     `json:"pictureInPicture"`
	Error            *Failure `json:"error,omitempty"`
}

// Options wires the engine to its session.
type Options struct {
	// Unlocked gates every control; while it reports false the engine is
	// fully inert.
	Unlocked func() bool
	// Resolve re-resolves the source and poster URLs for Retry.
	Resolve func(ctx context.Context) (src, poster string)
	// OnEnded is the caller-supplied continuation invoked when playback
	// reaches the end. It is the only engine-initiated external call.
	OnEnded func()
}

// Engine drives a single media element.
type Engine struct {
	opts   Options
	logger zerolog.Logger

	mu         sync.Mutex
	el         MediaElement
	st         Snapshot
	lastVolume float64
	retrying   bool
}

// NewEngine builds an engine with default volume 1 and rate 1.
func NewEngine(opts Options) *Engine {
	if opts.Unlocked == nil {
		opts.Unlocked = func() bool { return false }
	}
	return &Engine{
		opts:   opts,
		logger: log.WithComponent("playback"),
		st: Snapshot{
			Volume: 1,
			Rate:   1,
		},
		lastVolume: 1,
	}
}

// Mount attaches the media element and loads the given URLs. Refused while
// the session is locked, so the main asset never loads during an ad.
func (e *Engine) Mount(el MediaElement, src, poster string) error {
	if !e.opts.Unlocked() {
		return ErrLocked
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := el.Load(src, poster); err != nil {
		return err
	}
	e.el = el
	e.st.DurationSec = el.Duration()
	e.st.Error = nil
	return nil
}

// Mounted reports whether a media element is attached.
func (e *Engine) Mounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.el != nil
}

// Release detaches and releases the media element.
func (e *Engine) Release() {
	e.mu.Lock()
	el := e.el
	e.el = nil
	e.st.IsPlaying = false
	e.mu.Unlock()

	if el != nil {
		el.Release()
	}
}

// TogglePlayPause flips play/pause. A locked session or missing element is
// a silent no-op, matching the inert locked-player contract.
func (e *Engine) TogglePlayPause() {
	if !e.opts.Unlocked() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.el == nil {
		return
	}

	if e.st.IsPlaying {
		if err := e.el.Pause(); err != nil {
			e.logger.Warn().Err(err).Msg("pause failed")
			return
		}
		e.st.IsPlaying = false
	} else {
		if err := e.el.Play(); err != nil {
			e.logger.Warn().Err(err).Msg("play failed")
			return
		}
		e.st.IsPlaying = true
	}
}

// SeekTo seeks to the given fraction of the duration, clamped to [0,1].
func (e *Engine) SeekTo(fraction float64) error {
	if !e.opts.Unlocked() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.el == nil {
		return ErrNotMounted
	}
	if e.st.DurationSec <= 0 {
		return ErrDurationUnknown
	}

	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	target := fraction * e.st.DurationSec
	e.el.SetCurrentTime(target)
	e.st.CurrentTimeSec = target
	return nil
}

// SetVolume sets volume in [0,1]. Volume zero also mutes; raising it above
// zero unmutes.
func (e *Engine) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.setVolumeLocked(v)
}

func (e *Engine) setVolumeLocked(v float64) {
	e.st.Volume = v
	e.st.Muted = v == 0
	if v > 0 {
		e.lastVolume = v
	}
	if e.el != nil {
		e.el.SetVolume(v)
		e.el.SetMuted(e.st.Muted)
	}
}

// ToggleMute mutes, or unmutes restoring the last non-zero volume (1 when
// none was ever set).
func (e *Engine) ToggleMute() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st.Muted {
		restore := e.lastVolume
		if restore == 0 {
			restore = 1
		}
		e.setVolumeLocked(restore)
	} else {
		e.setVolumeLocked(0)
	}
}

// ChangeRate sets the playback rate; only values on the fixed ladder are a
// supported contract.
func (e *Engine) ChangeRate(rate float64) error {
	valid := false
	for _, r := range Rates {
		if r == rate {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidRate
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.Rate = rate
	if e.el != nil {
		e.el.SetRate(rate)
	}
	return nil
}

// ToggleFullscreen is best effort: platform failures are logged, never
// returned.
func (e *Engine) ToggleFullscreen() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.el == nil {
		return
	}

	var err error
	if e.st.Fullscreen {
		err = e.el.ExitFullscreen()
	} else {
		err = e.el.EnterFullscreen()
	}
	if err != nil {
		e.logger.Warn().Err(err).Msg("fullscreen toggle failed")
		return
	}
	e.st.Fullscreen = !e.st.Fullscreen
}

// TogglePictureInPicture is best effort, like ToggleFullscreen.
func (e *Engine) TogglePictureInPicture() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.el == nil {
		return
	}

	var err error
	if e.st.PictureInPicture {
		err = e.el.ExitPictureInPicture()
	} else {
		err = e.el.EnterPictureInPicture()
	}
	if err != nil {
		e.logger.Warn().Err(err).Msg("picture-in-picture toggle failed")
		return
	}
	e.st.PictureInPicture = !e.st.PictureInPicture
}

// HandleEnded marks playback stopped and invokes the continuation.
func (e *Engine) HandleEnded() {
	e.mu.Lock()
	e.st.IsPlaying = false
	e.mu.Unlock()

	if e.opts.OnEnded != nil {
		e.opts.OnEnded()
	}
}

// HandleProgress updates time and buffer state reported by the element.
func (e *Engine) HandleProgress(currentTimeSec, bufferedFraction float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.CurrentTimeSec = currentTimeSec
	e.st.BufferedFraction = bufferedFraction
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st
}
