package bridge

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/metrics"
	"github.com/teknolabs/vocameet-server/internal/model"
	redisclient "github.com/teknolabs/vocameet-server/internal/redis"
	"github.com/teknolabs/vocameet-server/internal/sse"
)

const publishTimeout = 5 * time.Second

type Publisher interface {
	Publish(ctx context.Context, topic string, event sse.Event) error
}

type attachment struct {
	conn  Connection
	sub   *Subscription
	relay bool
}

func (a *attachment) close() {
	a.sub.Close()
	_ = a.conn.Close()
}

// Manager keeps at most one attached data channel per room and publishes
// its transcript events on the room's topic. A websocket relay lives as
// long as the room has viewers; an agent feed lives until the room is
// closed.
type Manager struct {
	publisher Publisher
	metrics   *metrics.Metrics
	wsURL     string

	mu      sync.Mutex
	rooms   map[string]*attachment
	viewers map[string]int
}

// NewManager takes an optional websocket relay URL; "{room}" in it is
// replaced with the room name.
func NewManager(publisher Publisher, m *metrics.Metrics, wsURL string) *Manager {
	return &Manager{
		publisher: publisher,
		metrics:   m,
		wsURL:     wsURL,
		rooms:     make(map[string]*attachment),
		viewers:   make(map[string]int),
	}
}

// Feed returns the in-process connection for room, attaching it on first
// use. An agent feed takes over from a websocket relay.
func (m *Manager) Feed(room string) (*FeedConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.rooms[room]; ok {
		if feed, ok := a.conn.(*FeedConnection); ok && !a.sub.Closed() {
			return feed, nil
		}
		delete(m.rooms, room)
		a.close()
	}

	feed := NewFeedConnection()
	m.attachLocked(room, feed, false)
	return feed, nil
}

// Push feeds one raw data-channel payload for room.
func (m *Manager) Push(room string, payload []byte) error {
	feed, err := m.Feed(room)
	if err != nil {
		return err
	}
	return feed.Push(payload)
}

// Watch registers a transcript viewer for room and dials the websocket
// relay unless something is already attached. The returned func releases
// the viewer; the last release closes the relay. It is always non-nil,
// even when dialing fails.
func (m *Manager) Watch(ctx context.Context, room string) (func(), error) {
	m.mu.Lock()
	m.viewers[room]++
	m.mu.Unlock()

	var once sync.Once
	release := func() { once.Do(func() { m.release(room) }) }
	return release, m.dialRelay(ctx, room)
}

func (m *Manager) release(room string) {
	m.mu.Lock()
	m.viewers[room]--
	if m.viewers[room] > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.viewers, room)
	a, ok := m.rooms[room]
	if ok && a.relay {
		delete(m.rooms, room)
	}
	m.mu.Unlock()

	if ok && a.relay {
		a.close()
	}
}

func (m *Manager) dialRelay(ctx context.Context, room string) error {
	if m.wsURL == "" {
		return nil
	}

	m.mu.Lock()
	if a, ok := m.rooms[room]; ok && !a.sub.Closed() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	conn, err := DialWS(ctx, strings.ReplaceAll(m.wsURL, "{room}", room), http.Header{})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rooms[room]; ok && !a.sub.Closed() {
		// lost the race to another viewer
		_ = conn.Close()
		return nil
	}
	if m.viewers[room] == 0 {
		_ = conn.Close()
		return nil
	}
	m.attachLocked(room, conn, true)
	return nil
}

func (m *Manager) attachLocked(room string, conn Connection, relay bool) {
	topic := redisclient.TranscriptChannel(room)
	sub := Attach(conn, func(ev model.TranscriptEvent) {
		event, err := sse.NewEvent("transcript", ev)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode transcript event")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.publisher.Publish(ctx, topic, event); err != nil {
			log.Error().Err(err).Str("room", room).Msg("failed to publish transcript event")
			return
		}
		if m.metrics != nil {
			m.metrics.TranscriptEvents.Inc()
		}
	})
	m.rooms[room] = &attachment{conn: conn, sub: sub, relay: relay}
	if m.metrics != nil {
		m.metrics.ActiveTranscripts.Inc()
	}

	go func() {
		<-conn.Done()
		m.forget(room, sub)
	}()

	log.Info().Str("room", room).Msg("room data channel attached")
}

// forget runs once per attachment, after its connection ended.
func (m *Manager) forget(room string, sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rooms[room]; ok && a.sub == sub {
		delete(m.rooms, room)
	}
	if m.metrics != nil {
		m.metrics.ActiveTranscripts.Dec()
	}
	log.Info().Str("room", room).Msg("room data channel detached")
}

// CloseRoom tears down room's data channel.
func (m *Manager) CloseRoom(room string) {
	m.mu.Lock()
	a, ok := m.rooms[room]
	m.mu.Unlock()
	if !ok {
		return
	}
	a.close()
}

func (m *Manager) Close() {
	m.mu.Lock()
	rooms := make([]*attachment, 0, len(m.rooms))
	for _, a := range m.rooms {
		rooms = append(rooms, a)
	}
	m.mu.Unlock()

	for _, a := range rooms {
		a.close()
	}
}
