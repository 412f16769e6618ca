// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/typhoonhub/playcore/internal/adbreak"
	"github.com/typhoonhub/playcore/internal/fsm"
	"github.com/typhoonhub/playcore/internal/gate"
	"github.com/typhoonhub/playcore/internal/ledger"
	"github.com/typhoonhub/playcore/internal/playback"
	"github.com/typhoonhub/playcore/internal/session"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Is(err, session.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, gate.ErrAuthRequired):
		code = http.StatusUnauthorized
	case errors.Is(err, ledger.ErrRecordedElsewhereButNotLogged):
		// Payment captured upstream but the local ledger append failed.
		code = http.StatusBadGateway
	case errors.Is(err, fsm.ErrInvalidTransition),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, adbreak.ErrNotSkippable),
		errors.Is(err, adbreak.ErrAlreadyStarted),
		errors.Is(err, session.ErrAdBreakNotStarted):
		code = http.StatusConflict
	case errors.Is(err, playback.ErrInvalidRate),
		errors.Is(err, playback.ErrDurationUnknown):
		code = http.StatusBadRequest
	case errors.Is(err, playback.ErrNotMounted),
		errors.Is(err, playback.ErrLocked):
		code = http.StatusConflict
	default:
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
