package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	redisclient "github.com/teknolabs/vocameet-server/internal/redis"
	"github.com/teknolabs/vocameet-server/internal/sse"
	"github.com/teknolabs/vocameet-server/internal/util"
)

// EventSource is satisfied by *sse.Broker.
type EventSource interface {
	Subscribe(topic string) *sse.Client
	Unsubscribe(client *sse.Client)
}

// RoomFeeds is satisfied by *bridge.Manager.
type RoomFeeds interface {
	Push(room string, payload []byte) error
	Watch(ctx context.Context, room string) (release func(), err error)
	CloseRoom(room string)
}

type TranscriptHandler struct {
	events EventSource
	rooms  RoomFeeds
}

func NewTranscriptHandler(events EventSource, rooms RoomFeeds) *TranscriptHandler {
	return &TranscriptHandler{events: events, rooms: rooms}
}

func roomParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "room")
	if !util.IsValidRoomName(name) {
		return "", apperrors.InvalidInput("room", "invalid room name")
	}
	return name, nil
}

// GET /v1/rooms/{room}/transcript
func (h *TranscriptHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name, err := roomParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	topic := redisclient.TranscriptChannel(name)
	client := h.events.Subscribe(topic)
	defer h.events.Unsubscribe(client)

	// the feed endpoint can still deliver when the relay is down
	release, err := h.rooms.Watch(ctx, name)
	defer release()
	if err != nil {
		log.Warn().Err(err).Str("room", name).Msg("failed to dial transcript relay")
	}

	stream, err := openEventStream(w)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Debug().Str("room", name).Msg("transcript stream connected")

	if err := stream.send("connected", map[string]string{"room": name}); err != nil {
		return
	}
	stream.pump(ctx, topic, client.Events, client.Done)
}

// POST /v1/rooms/{room}/data
func (h *TranscriptHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	name, err := roomParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, bodyError(err, "Failed to read body"))
		return
	}
	if len(payload) == 0 {
		writeError(w, apperrors.MissingRequired("body"))
		return
	}

	if err := h.rooms.Push(name, payload); err != nil {
		log.Error().Err(err).Str("room", name).Msg("failed to push room data")
		writeError(w, apperrors.Internal("Failed to relay room data"))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// DELETE /v1/rooms/{room}/data
func (h *TranscriptHandler) Close(w http.ResponseWriter, r *http.Request) {
	name, err := roomParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.rooms.CloseRoom(name)
	w.WriteHeader(http.StatusNoContent)
}
