package middleware

import (
	"net/http"

	"github.com/teknolabs/vocameet-server/internal/audit"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/httputil"
	"github.com/teknolabs/vocameet-server/internal/util"
)

const AgentKeyHeader = "X-Agent-Key"

// AgentKeyMiddleware guards the endpoints the voice agent pushes room data to.
type AgentKeyMiddleware struct {
	key string
}

func NewAgentKeyMiddleware(key string) *AgentKeyMiddleware {
	return &AgentKeyMiddleware{key: key}
}

func (m *AgentKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.key == "" {
			httputil.WriteError(w, apperrors.Forbidden("Agent access is disabled"))
			return
		}

		provided := r.Header.Get(AgentKeyHeader)
		if provided == "" || !util.ConstantTimeEqual(provided, m.key) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAgentKeyFailure,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			httputil.WriteError(w, apperrors.Unauthorized("Invalid agent key"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
