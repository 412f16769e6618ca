// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus collectors for the playback core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playcore_sessions_opened_total",
		Help: "Total number of playback sessions opened",
	})

	sessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playcore_sessions_closed_total",
		Help: "Total number of playback sessions closed",
	})

	gateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playcore_gate_transitions_total",
		Help: "Monetization gate transitions by source and destination state",
	}, []string{"from", "to"})

	// Payment metrics
	paymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playcore_payments_recorded_total",
		Help: "Successfully recorded payment transactions by kind",
	}, []string{"kind"}) // kind=rent|buy

	ledgerAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playcore_ledger_append_failures_total",
		Help: "Ledger append attempts that failed (including retried attempts)",
	})

	deadLetteredTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playcore_deadlettered_transactions_total",
		Help: "Transactions parked in the dead-letter store after exhausted retries",
	})

	// Resolver metrics
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playcore_asset_resolutions_total",
		Help: "Asset resolution attempts by outcome",
	}, []string{"outcome"}) // outcome=passthrough|minted|fallback|cached

	// Ad break metrics
	adBreaksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playcore_ad_breaks_finished_total",
		Help: "Ad breaks reaching Finished, by how they ended",
	}, []string{"how"}) // how=auto|skipped|instant

	// Playback metrics
	mediaErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playcore_media_errors_total",
		Help: "Classified media element failures",
	}, []string{"kind"}) // kind=aborted|network|decode|unsupported_format

	// HTTP metrics
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playcore_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func SessionOpened() { sessionsOpened.Inc() }
func SessionClosed() { sessionsClosed.Inc() }

func GateTransition(from, to string) {
	gateTransitions.WithLabelValues(from, to).Inc()
}

func PaymentRecorded(kind string) {
	paymentsRecorded.WithLabelValues(kind).Inc()
}

func LedgerAppendFailure()     { ledgerAppendFailures.Inc() }
func DeadLetteredTransaction() { deadLetteredTransactions.Inc() }

func Resolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

func AdBreakFinished(how string) {
	adBreaksFinished.WithLabelValues(how).Inc()
}

func MediaError(kind string) {
	mediaErrors.WithLabelValues(kind).Inc()
}

func ObserveHTTPRequest(method, route, status string, seconds float64) {
	httpDuration.WithLabelValues(method, route, status).Observe(seconds)
}
