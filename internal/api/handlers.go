// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/typhoonhub/playcore/internal/content"
	"github.com/typhoonhub/playcore/internal/gate"
	"github.com/typhoonhub/playcore/internal/ledger"
	"github.com/typhoonhub/playcore/internal/log"
	"github.com/typhoonhub/playcore/internal/session"
)

// Viewer identity headers, set by the authenticating front end.
const (
	HeaderViewerID    = "X-Viewer-Id"
	HeaderViewerEmail = "X-Viewer-Email"
)

func viewerFromRequest(r *http.Request) *gate.Identity {
	id := r.Header.Get(HeaderViewerID)
	if id == "" {
		return nil
	}
	return &gate.Identity{ID: id, Email: r.Header.Get(HeaderViewerEmail)}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// session lookup shared by every /sessions/{id} handler.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return sess, true
}

// content

func (s *Server) handleListContent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	c, ok := s.catalog.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// sessions

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContentID string `json:"contentId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	c, ok := s.catalog.Get(body.ContentID)
	if !ok {
		writeNotFound(w)
		return
	}

	sess := s.registry.Open(c)
	s.logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldContentID, c.ID).
		Msg("session opened via api")
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Close(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// gate and payments

func (s *Server) handleBeginPurchase(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.BeginPurchase(r.Context(), viewerFromRequest(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Kind          ledger.Kind `json:"kind"`
		ProviderTxnID string      `json:"providerTxnId"`
		PayerIdentity string      `json:"payerIdentity"`
		AmountUSD     float64     `json:"amount"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if body.Kind != ledger.KindRent && body.Kind != ledger.KindBuy {
		writeBadRequest(w, "kind must be rent or buy")
		return
	}

	err := sess.PaymentSucceeded(r.Context(), gate.Capture{
		Kind:          body.Kind,
		ProviderTxnID: body.ProviderTxnID,
		PayerIdentity: body.PayerIdentity,
		AmountUSD:     body.AmountUSD,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handlePaymentFailure(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := sess.PaymentFailed(r.Context(), body.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// ad break

func (s *Server) handleSkipAd(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.SkipAd(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// playback transport

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Engine().TogglePlayPause()
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Fraction float64 `json:"fraction"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := sess.Engine().SeekTo(body.Fraction); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Volume float64 `json:"volume"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	sess.Engine().SetVolume(body.Volume)
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Engine().ToggleMute()
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Rate float64 `json:"rate"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := sess.Engine().ChangeRate(body.Rate); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handleFullscreen(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Engine().ToggleFullscreen()
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handlePictureInPicture(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Engine().TogglePictureInPicture()
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Key string `json:"key"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	sess.Engine().HandleKey(body.Key)
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handleMediaError(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	sess.Engine().HandleMediaError(body.Code, body.Message)
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Engine().Retry(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

func (s *Server) handleEnded(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Engine().HandleEnded()
	writeJSON(w, http.StatusOK, sess.Engine().Snapshot())
}

// admin

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	txns, err := s.ledger.List(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.dlq == nil {
		writeJSON(w, http.StatusOK, []ledger.Transaction{})
		return
	}
	txns, err := s.dlq.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *Server) handleRemoveDeadLetter(w http.ResponseWriter, r *http.Request) {
	if s.dlq == nil {
		writeNotFound(w)
		return
	}
	if err := s.dlq.Remove(r.Context(), chi.URLParam(r, "providerTxnId")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutContent(w http.ResponseWriter, r *http.Request) {
	var c content.PlayableContent
	if err := decodeBody(r, &c); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.catalog.Put(c); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}
