package handler

import (
	"net/http"

	"github.com/teknolabs/vocameet-server/internal/audit"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/httputil"
	"github.com/teknolabs/vocameet-server/internal/metrics"
	"github.com/teknolabs/vocameet-server/internal/middleware"
	"github.com/teknolabs/vocameet-server/internal/room"
)

type RoomHandler struct {
	issuer  room.Issuer
	metrics *metrics.Metrics
}

func NewRoomHandler(issuer room.Issuer, m *metrics.Metrics) *RoomHandler {
	return &RoomHandler{issuer: issuer, metrics: m}
}

// POST /api/connection-details
//
// Failures are plain text; the voice client shows the body as is.
func (h *RoomHandler) ConnectionDetails(w http.ResponseWriter, r *http.Request) {
	var req room.GrantRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httputil.WriteTextError(w, err)
		return
	}

	details, err := h.issue(r, req)
	if err != nil {
		httputil.WriteTextError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, details)
}

type legacyTokenRequest struct {
	Room     string `json:"room,omitempty"`
	Identity string `json:"identity,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

type legacyTokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// POST /api/livekit/token
func (h *RoomHandler) LegacyToken(w http.ResponseWriter, r *http.Request) {
	var req legacyTokenRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	details, err := h.issue(r, room.GrantRequest{
		RoomName:            req.Room,
		ParticipantIdentity: req.Identity,
		Voice:               req.Voice,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, legacyTokenResponse{Token: details.ParticipantToken, URL: details.ServerURL})
}

func (h *RoomHandler) issue(r *http.Request, req room.GrantRequest) (*room.ConnectionDetails, error) {
	caller := middleware.GetCaller(r.Context())

	details, err := h.issuer.IssueRoomGrant(r.Context(), caller, req)
	if err != nil {
		h.metrics.RoomGrants.WithLabelValues("denied").Inc()
		event := audit.Event{
			Type:    audit.EventGrantDenied,
			Room:    req.RoomName,
			Details: map[string]interface{}{"code": string(apperrors.GetCode(err))},
		}
		if caller != nil {
			event.Email = caller.Email
			event.SessionGUID = caller.SessionGUID
		}
		audit.LogFromRequest(r, event)
		return nil, err
	}

	h.metrics.RoomGrants.WithLabelValues("issued").Inc()
	audit.LogFromRequest(r, audit.Event{
		Type:        audit.EventGrantIssued,
		Email:       caller.Email,
		SessionGUID: caller.SessionGUID,
		Room:        details.RoomName,
		Details:     map[string]interface{}{"agent": req.AgentName()},
	})
	return details, nil
}
