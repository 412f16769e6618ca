// SPDX-License-Identifier: MIT

package playback

// Keyboard bindings: space toggles play/pause, m mutes, f toggles
// fullscreen, arrows seek ±5s and step volume ±0.1.
const seekStepSeconds = 5

// HandleKey dispatches a keyboard shortcut. While the session is locked the
// bindings are fully inert: no state is touched, nothing is logged.
func (e *Engine) HandleKey(key string) {
	if !e.opts.Unlocked() {
		return
	}

	switch key {
	case " ", "Space":
		e.TogglePlayPause()
	case "m", "M":
		e.ToggleMute()
	case "f", "F":
		e.ToggleFullscreen()
	case "ArrowLeft":
		e.seekBy(-seekStepSeconds)
	case "ArrowRight":
		e.seekBy(seekStepSeconds)
	case "ArrowUp":
		e.stepVolume(0.1)
	case "ArrowDown":
		e.stepVolume(-0.1)
	}
}

func (e *Engine) seekBy(deltaSeconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.el == nil || e.st.DurationSec <= 0 {
		return
	}

	target := e.st.CurrentTimeSec + deltaSeconds
	if target < 0 {
		target = 0
	} else if target > e.st.DurationSec {
		target = e.st.DurationSec
	}
	e.el.SetCurrentTime(target)
	e.st.CurrentTimeSec = target
}

func (e *Engine) stepVolume(delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setVolumeLocked(clamp01(e.st.Volume + delta))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
