// Package sessionid keeps the per-browser session identifier and the last
// known identity snapshot in a persistent key/value context.
package sessionid

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/model"
)

const (
	KeySessionGUID = "session_guid"
	KeyUser        = "user"
)

// Storage is a persistent string key/value context such as a cookie jar or
// a redis namespace.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Watcher is implemented by storages that can report writes made by other
// holders of the same context.
type Watcher interface {
	Watch(fn func(Change)) (stop func())
}

type Change struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// write remembers this store's last write to a key. A delete leaves a
// tombstone.
type write struct {
	value   string
	deleted bool
}

func (w write) matches(c Change) bool {
	if w.deleted || c.Deleted {
		return w.deleted == c.Deleted
	}
	return w.value == c.Value
}

type Store struct {
	storage Storage

	mu        sync.Mutex
	written   map[string]write
	listeners map[int]func(Change)
	nextID    int
	stopWatch func()
}

// NewStore wraps storage. storage may be nil, in which case every call to
// GetOrCreate returns a fresh identifier.
func NewStore(storage Storage) *Store {
	s := &Store{
		storage:   storage,
		written:   make(map[string]write),
		listeners: make(map[int]func(Change)),
	}
	if w, ok := storage.(Watcher); ok {
		s.stopWatch = w.Watch(s.onChange)
	}
	return s
}

// GetOrCreate returns the persisted session identifier, minting and
// persisting one on first use. When nothing can be persisted the returned
// value is fresh and not stored.
func (s *Store) GetOrCreate(ctx context.Context) string {
	if s.storage == nil {
		return uuid.NewString()
	}

	existing, ok, err := s.storage.Get(ctx, KeySessionGUID)
	if err != nil {
		log.Warn().Err(err).Msg("session storage unavailable, using ephemeral session id")
		return uuid.NewString()
	}
	if ok {
		if _, err := uuid.Parse(existing); err == nil {
			return existing
		}
		log.Warn().Msg("discarding malformed session id")
	}

	id := uuid.NewString()
	if err := s.set(ctx, KeySessionGUID, id); err != nil {
		log.Warn().Err(err).Msg("failed to persist session id")
	}
	return id
}

// SaveIdentity stores the last known identity snapshot. The snapshot is a
// cache for the UI and never proof of authentication.
func (s *Store) SaveIdentity(ctx context.Context, identity *model.Identity) error {
	if s.storage == nil || identity == nil {
		return nil
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return s.set(ctx, KeyUser, string(data))
}

// LoadIdentity returns the snapshot, deleting it when it can't be decoded.
func (s *Store) LoadIdentity(ctx context.Context) (*model.Identity, bool) {
	if s.storage == nil {
		return nil, false
	}
	raw, ok, err := s.storage.Get(ctx, KeyUser)
	if err != nil || !ok {
		return nil, false
	}

	var identity model.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil || identity.Email == "" {
		log.Warn().Msg("clearing corrupted identity snapshot")
		_ = s.ClearIdentity(ctx)
		return nil, false
	}
	return &identity, true
}

func (s *Store) ClearIdentity(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	s.mu.Lock()
	s.written[KeyUser] = write{deleted: true}
	s.mu.Unlock()
	return s.storage.Delete(ctx, KeyUser)
}

// Subscribe registers fn for changes written by someone else. The returned
// func removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Close stops watching the underlying storage.
func (s *Store) Close() {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (s *Store) set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.written[key] = write{value: value}
	s.mu.Unlock()
	return s.storage.Set(ctx, key, value)
}

func (s *Store) onChange(c Change) {
	if c.Key != KeySessionGUID && c.Key != KeyUser {
		return
	}

	s.mu.Lock()
	if prev, ok := s.written[c.Key]; ok && prev.matches(c) {
		s.mu.Unlock()
		return
	}
	// last write wins: adopt theirs
	delete(s.written, c.Key)
	listeners := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(c)
	}
}
