// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buf captures everything the package logger writes. Configure latches on
// first use, so every test in this package shares it.
var buf bytes.Buffer

func configureForTest() {
	Configure(Config{Level: "debug", Output: &buf, Service: "playcore-test"})
}

func lastEntry(t *testing.T) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestWithComponent(t *testing.T) {
	configureForTest()

	l := WithComponent("gate")
	l.Info().Msg("hello")

	entry := lastEntry(t)
	assert.Equal(t, "gate", entry[FieldComponent])
	assert.Equal(t, "playcore-test", entry["service"])
	assert.Equal(t, "hello", entry["message"])
}

func TestFromContext_CarriesIDs(t *testing.T) {
	configureForTest()

	ctx := ContextWithRequestID(t.Context(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-1")

	l := FromContext(ctx, "api")
	l.Info().Msg("with ids")

	entry := lastEntry(t)
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, "sess-1", entry[FieldSessionID])
}

func TestContextHelpers_EmptyContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(t.Context()))
	assert.Empty(t, SessionIDFromContext(t.Context()))
}

func TestMiddleware_LogsRequest(t *testing.T) {
	configureForTest()

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content", nil)
	req = req.WithContext(ContextWithRequestID(req.Context(), "req-42"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entry := lastEntry(t)
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/v1/content", entry["path"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, "req-42", entry[FieldRequestID])
}
