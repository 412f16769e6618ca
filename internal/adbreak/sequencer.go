// SPDX-License-Identifier: MIT

// Package adbreak sequences the fixed-duration pre-roll ad shown between
// unlock and playback start.
package adbreak

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/typhoonhub/playcore/internal/log"
	"github.com/typhoonhub/playcore/internal/metrics"
)

// State is the ad break state for one session.
type State string

const (
	StateNotStarted State = "not_started"
	StatePlaying    State = "playing"
	StateSkippable  State = "skippable"
	StateFinished   State = "finished"
)

var (
	// ErrAlreadyStarted is returned by Start after the first call.
	ErrAlreadyStarted = errors.New("ad break already started")
	// ErrNotSkippable is returned by Skip before the skippable threshold.
	ErrNotSkippable = errors.New("ad break is not skippable yet")
)

// Config controls one ad break.
type Config struct {
	// TotalSeconds is the full ad duration. Zero means no ad: Start
	// finishes immediately.
	TotalSeconds int
	// SkippableAfterSeconds is the minimum watch time before Skip is
	// allowed.
	SkippableAfterSeconds int
	// TickInterval defaults to one second.
	TickInterval time.Duration
	// OnFinished is invoked exactly once when the break reaches Finished.
	// It is not invoked when the break is stopped early via Stop.
	OnFinished func()
}

// Sequencer drives NotStarted -> Playing -> Skippable -> Finished on a
// one-second tick. When the countdown reaches zero in the same tick as a
// skip request, auto-finish wins.
type Sequencer struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	elapsed int
	stop    chan struct{}
	stopped bool
}

// New builds a sequencer in NotStarted.
func New(cfg Config) *Sequencer {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Sequencer{
		cfg:    cfg,
		state:  StateNotStarted,
		logger: log.WithComponent("adbreak"),
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the seconds left in the break.
func (s *Sequencer) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.cfg.TotalSeconds - s.elapsed; r > 0 {
		return r
	}
	return 0
}

// Start begins the break. A zero-duration break finishes immediately
// without an intermediate Playing tick.
func (s *Sequencer) Start() error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	if s.cfg.TotalSeconds <= 0 {
		s.state = StateFinished
		s.mu.Unlock()
		metrics.AdBreakFinished("instant")
		s.finished()
		return nil
	}

	if s.cfg.SkippableAfterSeconds <= 0 {
		s.state = StateSkippable
	} else {
		s.state = StatePlaying
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.logger.Debug().Int("total_s", s.cfg.TotalSeconds).Int("skippable_after_s", s.cfg.SkippableAfterSeconds).Msg("ad break started")

	go s.run(stop)
	return nil
}

func (s *Sequencer) run(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.tick() {
				return
			}
		case <-stop:
			return
		}
	}
}

// tick advances the countdown by one second; it reports whether the break
// reached a terminal state.
func (s *Sequencer) tick() bool {
	s.mu.Lock()
	if s.state != StatePlaying && s.state != StateSkippable {
		s.mu.Unlock()
		return true
	}

	s.elapsed++
	if s.elapsed >= s.cfg.TotalSeconds {
		s.state = StateFinished
		s.mu.Unlock()
		metrics.AdBreakFinished("auto")
		s.finished()
		return true
	}
	if s.state == StatePlaying && s.elapsed >= s.cfg.SkippableAfterSeconds {
		s.state = StateSkippable
	}
	s.mu.Unlock()
	return false
}

// Skip ends the break early. Only legal from Skippable; skipping an already
// finished break is a harmless no-op (the auto-finish won the tie).
func (s *Sequencer) Skip() error {
	s.mu.Lock()
	switch s.state {
	case StateFinished:
		s.mu.Unlock()
		return nil
	case StateSkippable:
		s.state = StateFinished
		s.haltLocked()
		s.mu.Unlock()
		metrics.AdBreakFinished("skipped")
		s.finished()
		return nil
	default:
		state := s.state
		s.mu.Unlock()
		s.logger.Debug().Str(log.FieldOldState, string(state)).Msg("skip refused")
		return ErrNotSkippable
	}
}

// Stop halts the ticker without finishing the break. Used when the viewer
// closes the session mid-ad.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	s.haltLocked()
	s.mu.Unlock()
}

func (s *Sequencer) haltLocked() {
	if s.stop != nil && !s.stopped {
		close(s.stop)
		s.stopped = true
	}
}

func (s *Sequencer) finished() {
	s.mu.Lock()
	s.haltLocked()
	s.mu.Unlock()
	if s.cfg.OnFinished != nil {
		s.cfg.OnFinished()
	}
}
