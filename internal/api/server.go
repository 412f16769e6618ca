// SPDX-License-Identifier: MIT

// Package api exposes the playback core over HTTP: session lifecycle,
// gate and payment callbacks, ad break control, playback transport and a
// small admin surface for the transaction ledger.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/typhoonhub/playcore/internal/content"
	"github.com/typhoonhub/playcore/internal/ledger"
	"github.com/typhoonhub/playcore/internal/log"
	"github.com/typhoonhub/playcore/internal/session"
	"github.com/typhoonhub/playcore/internal/version"
)

// Options configures the HTTP surface.
type Options struct {
	// RateLimitPerMin limits requests per IP per minute; <= 0 disables.
	RateLimitPerMin int
	// EnableMetrics exposes /metrics.
	EnableMetrics bool
	// TracingService enables otelhttp server spans under this service name;
	// empty disables.
	TracingService string
}

// Server routes HTTP requests to the session registry and stores.
type Server struct {
	registry *session.Registry
	catalog  *content.FileStore
	ledger   ledger.Ledger
	dlq      *ledger.DeadLetterStore // optional
	opts     Options
	logger   zerolog.Logger
}

// NewServer builds the server. dlq may be nil when no dead-letter store is
// configured.
func NewServer(registry *session.Registry, catalog *content.FileStore, l ledger.Ledger, dlq *ledger.DeadLetterStore, opts Options) *Server {
	return &Server{
		registry: registry,
		catalog:  catalog,
		ledger:   l,
		dlq:      dlq,
		opts:     opts,
		logger:   log.WithComponent("api"),
	}
}

// Tracing wraps handlers in otelhttp server spans.
func Tracing(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service)
	}
}

// Handler builds the router with the canonical middleware stack:
// recoverer, request ID, metrics, tracing, logging, rate limit.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer)
	r.Use(RequestID)
	if s.opts.EnableMetrics {
		r.Use(Metrics)
	}
	if s.opts.TracingService != "" {
		r.Use(Tracing(s.opts.TracingService))
	}
	r.Use(log.Middleware())
	r.Use(RateLimit(s.opts.RateLimitPerMin))

	r.Get("/healthz", s.handleHealth)
	if s.opts.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/content", s.handleListContent)
		r.Get("/content/{id}", s.handleGetContent)

		r.Post("/sessions", s.handleOpenSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)

			r.Post("/purchase", s.handleBeginPurchase)
			r.Post("/payment/success", s.handlePaymentSuccess)
			r.Post("/payment/failure", s.handlePaymentFailure)
			r.Post("/ad/skip", s.handleSkipAd)

			r.Post("/playback/toggle", s.handleToggle)
			r.Post("/playback/seek", s.handleSeek)
			r.Post("/playback/volume", s.handleVolume)
			r.Post("/playback/mute", s.handleMute)
			r.Post("/playback/rate", s.handleRate)
			r.Post("/playback/fullscreen", s.handleFullscreen)
			r.Post("/playback/pip", s.handlePictureInPicture)
			r.Post("/playback/key", s.handleKey)
			r.Post("/playback/error", s.handleMediaError)
			r.Post("/playback/retry", s.handleRetry)
			r.Post("/playback/ended", s.handleEnded)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/transactions", s.handleListTransactions)
			r.Get("/deadletters", s.handleListDeadLetters)
			r.Delete("/deadletters/{providerTxnId}", s.handleRemoveDeadLetter)
			r.Put("/content", s.handlePutContent)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}
