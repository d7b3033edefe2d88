package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/audit"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/identity"
	"github.com/teknolabs/vocameet-server/internal/middleware"
	"github.com/teknolabs/vocameet-server/internal/model"
	"github.com/teknolabs/vocameet-server/internal/service"
	"github.com/teknolabs/vocameet-server/internal/sessionid"
)

// SnapshotStorage returns the shared storage holding the identity snapshot
// of one session id.
type SnapshotStorage func(sessionGUID string) sessionid.Storage

type AuthHandler struct {
	authService   *service.AuthService
	snapshots     SnapshotStorage
	secureCookies bool
}

func NewAuthHandler(authService *service.AuthService, snapshots SnapshotStorage, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		snapshots:     snapshots,
		secureCookies: secureCookies,
	}
}

type loginRequest struct {
	identity.Credential
	SessionGUID string `json:"sessionGuid,omitempty"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cred := req.Credential
	cred.Cookie = r.Header.Get("Cookie")

	sessionGUID := h.loginSessionGUID(ctx, w, r, req.SessionGUID)

	result, err := h.authService.Login(ctx, cred, sessionGUID)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:        audit.EventLoginFailure,
			SessionGUID: sessionGUID,
			Details: map[string]interface{}{
				"strategy": string(h.authService.Strategy()),
				"code":     string(apperrors.GetCode(err)),
			},
		})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:        audit.EventLoginSuccess,
		Email:       result.User.Email,
		SessionGUID: sessionGUID,
		Details:     map[string]interface{}{"strategy": string(h.authService.Strategy())},
	})
	h.saveSnapshot(ctx, sessionGUID, result.User)

	writeJSON(w, http.StatusOK, result)
}

// loginSessionGUID resolves the session id from the browser cookie. A
// requested id is only adopted when the browser has none yet.
func (h *AuthHandler) loginSessionGUID(ctx context.Context, w http.ResponseWriter, r *http.Request, requested string) string {
	cookies := sessionid.NewCookieStorage(w, r, h.secureCookies)
	if _, err := uuid.Parse(requested); err == nil {
		current, ok, _ := cookies.Get(ctx, sessionid.KeySessionGUID)
		switch {
		case !ok:
			_ = cookies.Set(ctx, sessionid.KeySessionGUID, requested)
		case current != requested:
			log.Warn().Msg("ignoring requested session id that differs from the browser cookie")
		}
	}
	return sessionid.NewStore(cookies).GetOrCreate(ctx)
}

// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, apperrors.Unauthorized("Not signed in"))
		return
	}

	result, err := h.authService.Refresh(caller)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:        audit.EventTokenRefresh,
		Email:       caller.Email,
		SessionGUID: caller.SessionGUID,
	})
	writeJSON(w, http.StatusOK, result)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)

	if err := h.authService.Logout(ctx, caller); err != nil {
		writeError(w, err)
		return
	}

	if caller.SessionGUID != "" && h.snapshots != nil {
		store := sessionid.NewStore(h.snapshots(caller.SessionGUID))
		if err := store.ClearIdentity(ctx); err != nil {
			log.Warn().Err(err).Str("sessionGuid", caller.SessionGUID).Msg("failed to clear identity snapshot")
		}
		store.Close()
	}

	audit.LogFromRequest(r, audit.Event{
		Type:        audit.EventLogout,
		Email:       caller.Email,
		SessionGUID: caller.SessionGUID,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /api/auth/check
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, apperrors.Unauthorized("Not signed in"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Hello, %s! You are logged in.", caller.Identity().DisplayName()),
	})
}

// saveSnapshot is best effort; the login already succeeded.
func (h *AuthHandler) saveSnapshot(ctx context.Context, sessionGUID string, user *model.Identity) {
	if h.snapshots == nil {
		return
	}
	store := sessionid.NewStore(h.snapshots(sessionGUID))
	defer store.Close()
	if err := store.SaveIdentity(ctx, user); err != nil {
		log.Warn().Err(err).Str("sessionGuid", sessionGUID).Msg("failed to save identity snapshot")
	}
}
