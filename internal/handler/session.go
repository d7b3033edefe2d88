package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/model"
	"github.com/teknolabs/vocameet-server/internal/sse"
	"github.com/teknolabs/vocameet-server/internal/sessionid"
)

const sessionChangeBuffer = 16

type SessionHandler struct {
	snapshots     SnapshotStorage
	secureCookies bool
	heartbeat     time.Duration
}

func NewSessionHandler(snapshots SnapshotStorage, secureCookies bool) *SessionHandler {
	return &SessionHandler{
		snapshots:     snapshots,
		secureCookies: secureCookies,
		heartbeat:     sse.HeartbeatInterval,
	}
}

func (h *SessionHandler) sessionGUID(w http.ResponseWriter, r *http.Request) string {
	return sessionid.NewStore(sessionid.NewCookieStorage(w, r, h.secureCookies)).GetOrCreate(r.Context())
}

// GET /api/session/id
func (h *SessionHandler) ID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"sessionGuid": h.sessionGUID(w, r)})
}

type snapshotEvent struct {
	SessionGUID string          `json:"sessionGuid"`
	User        *model.Identity `json:"user"`
}

// GET /api/session/events
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guid := h.sessionGUID(w, r)

	store := sessionid.NewStore(h.snapshots(guid))
	defer store.Close()

	changes := make(chan sessionid.Change, sessionChangeBuffer)
	unsubscribe := store.Subscribe(func(c sessionid.Change) {
		select {
		case changes <- c:
		default:
			log.Warn().Str("sessionGuid", guid).Msg("dropping session change for slow client")
		}
	})
	defer unsubscribe()

	stream, err := openEventStream(w)
	if err != nil {
		writeError(w, err)
		return
	}

	current, _ := store.LoadIdentity(ctx)
	if err := stream.send("connected", snapshotEvent{SessionGUID: guid, User: current}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-changes:
			if c.Key != sessionid.KeyUser {
				continue
			}
			if err := h.sendChange(stream, guid, c); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := stream.ping(); err != nil {
				return
			}
		}
	}
}

func (h *SessionHandler) sendChange(stream *eventStream, guid string, c sessionid.Change) error {
	if c.Deleted {
		return stream.send("identity_cleared", snapshotEvent{SessionGUID: guid})
	}
	var user model.Identity
	if err := json.Unmarshal([]byte(c.Value), &user); err != nil || user.Email == "" {
		log.Warn().Str("sessionGuid", guid).Msg("ignoring malformed identity snapshot")
		return nil
	}
	return stream.send("identity", snapshotEvent{SessionGUID: guid, User: &user})
}
