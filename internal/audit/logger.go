// Package audit writes security events to the structured log.
package audit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/util"
)

type EventType string

const (
	EventLoginSuccess    EventType = "login_success"
	EventLoginFailure    EventType = "login_failure"
	EventLogout          EventType = "logout"
	EventTokenRefresh    EventType = "token_refresh"
	EventGrantIssued     EventType = "grant_issued"
	EventGrantDenied     EventType = "grant_denied"
	EventRateLimitExceed EventType = "rate_limit_exceeded"
	EventAuthFailure     EventType = "auth_failure"
	EventAgentKeyFailure EventType = "agent_key_failure"
)

type Event struct {
	Type        EventType
	Email       string
	SessionGUID string
	Room        string
	IP          string
	UserAgent   string
	Details     map[string]interface{}
}

// Log masks email addresses before writing.
func Log(event Event) {
	ctx := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now())

	if event.Email != "" {
		ctx = ctx.Str("email", util.MaskEmail(event.Email))
	}
	if event.SessionGUID != "" {
		ctx = ctx.Str("session_guid", event.SessionGUID)
	}
	if event.Room != "" {
		ctx = ctx.Str("room", event.Room)
	}
	if event.IP != "" {
		ctx = ctx.Str("ip", event.IP)
	}
	if event.UserAgent != "" {
		ctx = ctx.Str("user_agent", event.UserAgent)
	}
	logger := ctx.Logger()

	logEvent := logger.Info()
	if strings.HasSuffix(string(event.Type), "_failure") || event.Type == EventGrantDenied {
		logEvent = logger.Warn()
	}
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case error:
		return e.AnErr(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(event)
}

// ClientIP prefers the first X-Forwarded-For hop.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
