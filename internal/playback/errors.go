// SPDX-License-Identifier: MIT

package playback

import (
	"context"

	"github.com/typhoonhub/playcore/internal/metrics"
)

// ErrorKind classifies native media error codes.
type ErrorKind string

const (
	ErrorAborted           ErrorKind = "aborted"
	ErrorNetwork           ErrorKind = "network"
	ErrorDecode            ErrorKind = "decode"
	ErrorUnsupportedFormat ErrorKind = "unsupported_format"
	ErrorUnknown           ErrorKind = "unknown"
)

// Failure is a classified, locally recoverable media failure. It is
// surfaced as state rather than an error so callers can render a retry
// affordance.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ClassifyMediaErrorCode maps the platform's numeric media error codes
// (1=aborted, 2=network, 3=decode, 4=source unsupported) to an ErrorKind.
func ClassifyMediaErrorCode(code int) ErrorKind {
	switch code {
	case 1:
		return ErrorAborted
	case 2:
		return ErrorNetwork
	case 3:
		return ErrorDecode
	case 4:
		return ErrorUnsupportedFormat
	default:
		return ErrorUnknown
	}
}

// HandleMediaError records a classified failure and stops playback.
func (e *Engine) HandleMediaError(code int, message string) {
	kind := ClassifyMediaErrorCode(code)
	metrics.MediaError(string(kind))

	e.mu.Lock()
	e.st.Error = &Failure{Kind: kind, Message: message}
	e.st.IsPlaying = false
	e.mu.Unlock()

	e.logger.Warn().Str("kind", string(kind)).Str("message", message).Msg("media error")
}

// Retry clears the failure, re-resolves the asset URLs and remounts the
// media element. Repeated calls while a retry is in flight are ignored.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	if e.retrying {
		e.mu.Unlock()
		return nil
	}
	if e.el == nil {
		e.mu.Unlock()
		return ErrNotMounted
	}
	e.retrying = true
	el := e.el
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.retrying = false
		e.mu.Unlock()
	}()

	var src, poster string
	if e.opts.Resolve != nil {
		src, poster = e.opts.Resolve(ctx)
	}

	if err := el.Load(src, poster); err != nil {
		e.logger.Warn().Err(err).Msg("retry remount failed")
		return err
	}

	e.mu.Lock()
	e.st.Error = nil
	e.st.DurationSec = el.Duration()
	e.st.CurrentTimeSec = 0
	e.mu.Unlock()

	return nil
}
