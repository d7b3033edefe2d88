package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/sse"
)

// eventStream writes server-sent events to one client.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func openEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, apperrors.Internal("Streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventStream{w: w, flusher: flusher}, nil
}

func (s *eventStream) send(eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.sendRaw(sse.Event{Type: eventType, Data: raw})
}

func (s *eventStream) sendRaw(event sse.Event) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// pump forwards events until the client leaves, the source closes or a
// write fails.
func (s *eventStream) pump(ctx context.Context, topic string, events <-chan sse.Event, done <-chan struct{}) {
	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("topic", topic).Msg("sse connection closed by client")
			return

		case <-done:
			log.Debug().Str("topic", topic).Msg("sse connection closed by broker")
			return

		case event := <-events:
			if err := s.sendRaw(event); err != nil {
				log.Debug().Err(err).Str("topic", topic).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if err := s.ping(); err != nil {
				log.Debug().Str("topic", topic).Msg("heartbeat failed, closing connection")
				return
			}
		}
	}
}
