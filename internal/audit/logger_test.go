package audit

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestLog(t *testing.T) {
	t.Run("masks email and adds details", func(t *testing.T) {
		buf := captureLog(t)

		Log(Event{
			Type:    EventLoginSuccess,
			Email:   "ada@example.com",
			Details: map[string]interface{}{"strategy": "code_exchange", "attempt": 1},
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "security", entry["audit"])
		assert.Equal(t, "login_success", entry["event_type"])
		assert.Equal(t, "a***@example.com", entry["email"])
		assert.Equal(t, "code_exchange", entry["strategy"])
		assert.Equal(t, "info", entry["level"])
	})

	t.Run("failures log at warn", func(t *testing.T) {
		buf := captureLog(t)
		Log(Event{Type: EventLoginFailure})

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
	})
}

func TestClientIP(t *testing.T) {
	t.Run("first forwarded hop", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
		assert.Equal(t, "203.0.113.5", ClientIP(r))
	})

	t.Run("real ip header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Real-IP", "198.51.100.2")
		assert.Equal(t, "198.51.100.2", ClientIP(r))
	})

	t.Run("remote addr without port", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "192.0.2.1:5555"
		assert.Equal(t, "192.0.2.1", ClientIP(r))
	})
}
