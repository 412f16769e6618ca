// SPDX-License-Identifier: MIT

package playback

import (
	"sync"
)

// HeadlessElement is a MediaElement with no real media pipeline behind it.
// The daemon mounts it so sessions are exercisable over the API, and tests
// use it to observe engine behavior.
type HeadlessElement struct {
	mu sync.Mutex

	src, poster string
	duration    float64
	currentTime float64
	volume      float64
	muted       bool
	rate        float64
	fullscreen  bool
	pip         bool
	playing     bool
	released    bool

	// LoadErr, PlayErr, FullscreenErr, PiPErr make the element fail on
	// demand in tests.
	LoadErr       error
	PlayErr       error
	FullscreenErr error
	PiPErr        error

	LoadCalls int
}

// NewHeadlessElement returns an element that reports the given duration
// once loaded.
func NewHeadlessElement(durationSec float64) *HeadlessElement {
	return &HeadlessElement{duration: durationSec, volume: 1, rate: 1}
}

func (h *HeadlessElement) Load(src, poster string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LoadCalls++
	if h.LoadErr != nil {
		return h.LoadErr
	}
	h.src = src
	h.poster = poster
	h.currentTime = 0
	h.released = false
	return nil
}

func (h *HeadlessElement) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.PlayErr != nil {
		return h.PlayErr
	}
	h.playing = true
	return nil
}

func (h *HeadlessElement) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	return nil
}

func (h *HeadlessElement) SetCurrentTime(seconds float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentTime = seconds
}

func (h *HeadlessElement) Duration() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

func (h *HeadlessElement) BufferedFraction() float64 { return 1 }

func (h *HeadlessElement) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
}

func (h *HeadlessElement) SetMuted(muted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.muted = muted
}

func (h *HeadlessElement) SetRate(r float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rate = r
}

func (h *HeadlessElement) EnterFullscreen() error {
	if h.FullscreenErr != nil {
		return h.FullscreenErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fullscreen = true
	return nil
}

func (h *HeadlessElement) ExitFullscreen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fullscreen = false
	return nil
}

func (h *HeadlessElement) EnterPictureInPicture() error {
	if h.PiPErr != nil {
		return h.PiPErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pip = true
	return nil
}

func (h *HeadlessElement) ExitPictureInPicture() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pip = false
	return nil
}

func (h *HeadlessElement) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	h.playing = false
}

// Src returns the last loaded source URL.
func (h *HeadlessElement) Src() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.src
}

// CurrentTime returns the element's playhead position.
func (h *HeadlessElement) CurrentTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentTime
}

// Released reports whether Release was called.
func (h *HeadlessElement) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
