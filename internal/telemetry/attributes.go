// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	SessionIDKey    = "session.id"
	SessionGateKey  = "session.gate_state"
	ContentIDKey    = "content.id"
	ContentGatedKey = "content.gated"

	PaymentKindKey      = "payment.kind"
	PaymentAmountKey    = "payment.amount_usd"
	PaymentRecipientKey = "payment.recipient"

	ResolutionOutcomeKey = "resolve.outcome"
	ResolutionRefKey     = "resolve.ref"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes creates session span attributes.
func SessionAttributes(sessionID, contentID, gateState string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if contentID != "" {
		attrs = append(attrs, attribute.String(ContentIDKey, contentID))
	}
	if gateState != "" {
		attrs = append(attrs, attribute.String(SessionGateKey, gateState))
	}
	return attrs
}

// PaymentAttributes creates payment span attributes.
func PaymentAttributes(kind, recipient string, amountUSD float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PaymentKindKey, kind),
		attribute.String(PaymentRecipientKey, recipient),
		attribute.Float64(PaymentAmountKey, amountUSD),
	}
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
