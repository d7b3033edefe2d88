package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/teknolabs/vocameet-server/internal/audit"
	"github.com/teknolabs/vocameet-server/internal/auth"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
)

type contextKey string

const CallerContextKey contextKey = "caller"

// GetCaller returns the verified session claims, or nil on public routes.
func GetCaller(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(CallerContextKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func WithCaller(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, CallerContextKey, claims)
}

type AuthMiddleware struct {
	signer     *auth.Signer
	writeError ErrorWriter
}

func NewAuthMiddleware(signer *auth.Signer) *AuthMiddleware {
	return &AuthMiddleware{signer: signer, writeError: JSONErrors}
}

// WithErrorWriter returns a copy that renders failures with write.
func (m *AuthMiddleware) WithErrorWriter(write ErrorWriter) *AuthMiddleware {
	return &AuthMiddleware{signer: m.signer, writeError: write}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.signer.Verify(extractToken(r))
		if err != nil {
			if !apperrors.HasCode(err, apperrors.ErrCodeUnauthorized) {
				audit.LogFromRequest(r, audit.Event{
					Type:    audit.EventAuthFailure,
					Details: map[string]interface{}{"reason": string(apperrors.GetCode(err)), "path": r.URL.Path},
				})
			}
			m.writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims)))
	})
}

// extractToken accepts a query token for EventSource clients, which cannot
// set headers.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return r.URL.Query().Get("token")
	}
	return ""
}
