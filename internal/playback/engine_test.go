// SPDX-License-Identifier: MIT

package playback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUnlockedEngine(t *testing.T, el *HeadlessElement) *Engine {
	t.Helper()
	e := NewEngine(Options{Unlocked: func() bool { return true }})
	require.NoError(t, e.Mount(el, "https://cdn.example/a.mp4", "/poster.png"))
	return e
}

func TestMount_RefusedWhileLocked(t *testing.T) {
	e := NewEngine(Options{Unlocked: func() bool { return false }})
	err := e.Mount(NewHeadlessElement(100), "src", "")
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, e.Mounted())
}

func TestTogglePlayPause(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	e.TogglePlayPause()
	assert.True(t, e.Snapshot().IsPlaying)

	e.TogglePlayPause()
	assert.False(t, e.Snapshot().IsPlaying)
}

func TestTogglePlayPause_InertWhileLocked(t *testing.T) {
	unlocked := false
	e := NewEngine(Options{Unlocked: func() bool { return unlocked }})

	e.TogglePlayPause()
	assert.False(t, e.Snapshot().IsPlaying)
}

func TestTogglePlayPause_PlayFailureStaysPaused(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	el.PlayErr = errors.New("autoplay blocked")
	e.TogglePlayPause()
	assert.False(t, e.Snapshot().IsPlaying)
}

func TestSeekTo_Clamps(t *testing.T) {
	el := NewHeadlessElement(200)
	e := newUnlockedEngine(t, el)

	require.NoError(t, e.SeekTo(1.5))
	assert.Equal(t, 200.0, el.CurrentTime())

	require.NoError(t, e.SeekTo(-0.3))
	assert.Equal(t, 0.0, el.CurrentTime())

	require.NoError(t, e.SeekTo(0.25))
	assert.Equal(t, 50.0, el.CurrentTime())
}

func TestSeekTo_DurationUnknown(t *testing.T) {
	el := NewHeadlessElement(0)
	e := newUnlockedEngine(t, el)

	assert.ErrorIs(t, e.SeekTo(0.5), ErrDurationUnknown)
}

func TestSetVolume_ZeroMutes(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	e.SetVolume(0.6)
	st := e.Snapshot()
	assert.Equal(t, 0.6, st.Volume)
	assert.False(t, st.Muted)

	e.SetVolume(0)
	st = e.Snapshot()
	assert.Equal(t, 0.0, st.Volume)
	assert.True(t, st.Muted)
}

func TestToggleMute_RestoresLastVolume(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	e.SetVolume(0.6)
	e.ToggleMute()
	assert.True(t, e.Snapshot().Muted)

	e.ToggleMute()
	st := e.Snapshot()
	assert.False(t, st.Muted)
	assert.Equal(t, 0.6, st.Volume)
}

func TestToggleMute_DefaultsToFullVolume(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	// Mute without any explicit prior volume, then unmute.
	e.SetVolume(0)
	e.ToggleMute()
	assert.Equal(t, 1.0, e.Snapshot().Volume)
}

func TestChangeRate_LadderOnly(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	for _, r := range Rates {
		assert.NoError(t, e.ChangeRate(r))
	}
	assert.ErrorIs(t, e.ChangeRate(1.7), ErrInvalidRate)
	assert.ErrorIs(t, e.ChangeRate(0), ErrInvalidRate)
	assert.Equal(t, 2.0, e.Snapshot().Rate, "rejected rates must not change state")
}

func TestToggleFullscreen_BestEffort(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	e.ToggleFullscreen()
	assert.True(t, e.Snapshot().Fullscreen)
	e.ToggleFullscreen()
	assert.False(t, e.Snapshot().Fullscreen)

	el.FullscreenErr = errors.New("denied")
	e.ToggleFullscreen()
	assert.False(t, e.Snapshot().Fullscreen, "failure must not flip state")
}

func TestTogglePictureInPicture(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	e.TogglePictureInPicture()
	assert.True(t, e.Snapshot().PictureInPicture)

	el.PiPErr = errors.New("denied")
	e.TogglePictureInPicture() // exit path has no error; re-enter fails
	e.TogglePictureInPicture()
	assert.False(t, e.Snapshot().PictureInPicture)
}

func TestHandleEnded_InvokesContinuation(t *testing.T) {
	var ended int
	el := NewHeadlessElement(100)
	e := NewEngine(Options{
		Unlocked: func() bool { return true },
		OnEnded:  func() { ended++ },
	})
	require.NoError(t, e.Mount(el, "src", ""))

	e.TogglePlayPause()
	e.HandleEnded()
	assert.False(t, e.Snapshot().IsPlaying)
	assert.Equal(t, 1, ended)
}

func TestClassifyMediaErrorCode(t *testing.T) {
	assert.Equal(t, ErrorAborted, ClassifyMediaErrorCode(1))
	assert.Equal(t, ErrorNetwork, ClassifyMediaErrorCode(2))
	assert.Equal(t, ErrorDecode, ClassifyMediaErrorCode(3))
	assert.Equal(t, ErrorUnsupportedFormat, ClassifyMediaErrorCode(4))
	assert.Equal(t, ErrorUnknown, ClassifyMediaErrorCode(99))
}

func TestHandleMediaError_SetsFailureState(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	e.TogglePlayPause()
	e.HandleMediaError(2, "network error while loading video")

	st := e.Snapshot()
	require.NotNil(t, st.Error)
	assert.Equal(t, ErrorNetwork, st.Error.Kind)
	assert.False(t, st.IsPlaying)
}

func TestRetry_ReResolvesAndClearsError(t *testing.T) {
	el := NewHeadlessElement(100)
	resolves := 0
	e := NewEngine(Options{
		Unlocked: func() bool { return true },
		Resolve: func(ctx context.Context) (string, string) {
			resolves++
			return "https://signed.example/a.mp4", "/poster.png"
		},
	})
	require.NoError(t, e.Mount(el, "stale-url", ""))

	e.HandleMediaError(3, "decode error")
	require.NoError(t, e.Retry(context.Background()))

	assert.Equal(t, 1, resolves)
	assert.Nil(t, e.Snapshot().Error)
	assert.Equal(t, "https://signed.example/a.mp4", el.Src())
}

func TestRetry_IgnoredWhileInFlight(t *testing.T) {
	el := NewHeadlessElement(100)
	started := make(chan struct{})
	release := make(chan struct{})
	e := NewEngine(Options{
		Unlocked: func() bool { return true },
		Resolve: func(ctx context.Context) (string, string) {
			close(started)
			<-release
			return "src", ""
		},
	})
	require.NoError(t, e.Mount(el, "src", ""))
	loadsBefore := el.LoadCalls

	done := make(chan error, 1)
	go func() { done <- e.Retry(context.Background()) }()
	<-started

	// Second retry while the first is in flight: ignored, no second load.
	require.NoError(t, e.Retry(context.Background()))
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, loadsBefore+1, el.LoadCalls)
}

func TestHandleKey_Bindings(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	e.HandleKey(" ")
	assert.True(t, e.Snapshot().IsPlaying)

	e.HandleKey("ArrowRight")
	assert.Equal(t, 5.0, e.Snapshot().CurrentTimeSec)
	e.HandleKey("ArrowLeft")
	e.HandleKey("ArrowLeft")
	assert.Equal(t, 0.0, e.Snapshot().CurrentTimeSec, "seek clamps at zero")

	e.HandleKey("ArrowDown")
	assert.InDelta(t, 0.9, e.Snapshot().Volume, 1e-9)
	e.HandleKey("ArrowUp")
	e.HandleKey("ArrowUp")
	assert.Equal(t, 1.0, e.Snapshot().Volume, "volume clamps at one")

	e.HandleKey("m")
	assert.True(t, e.Snapshot().Muted)

	e.HandleKey("f")
	assert.True(t, e.Snapshot().Fullscreen)
}

func TestHandleKey_InertWhileLocked(t *testing.T) {
	e := NewEngine(Options{Unlocked: func() bool { return false }})

	for _, key := range []string{" ", "m", "f", "ArrowLeft", "ArrowRight", "ArrowUp", "ArrowDown"} {
		e.HandleKey(key)
	}
	st := e.Snapshot()
	assert.False(t, st.IsPlaying)
	assert.Equal(t, 1.0, st.Volume)
	assert.False(t, st.Muted)
	assert.False(t, st.Fullscreen)
}

func TestRelease(t *testing.T) {
	el := NewHeadlessElement(100)
	e := newUnlockedEngine(t, el)

	e.TogglePlayPause()
	e.Release()
	assert.True(t, el.Released())
	assert.False(t, e.Mounted())
	assert.False(t, e.Snapshot().IsPlaying)
}
