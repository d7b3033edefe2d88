package bridge

import (
	"sync"

	"github.com/teknolabs/vocameet-server/internal/model"
)

// Subscription is a single listener on a connection.
type Subscription struct {
	mu     sync.Mutex
	closed bool
	off    func()
	stop   chan struct{}
	once   sync.Once
}

// Attach subscribes sink to conn exactly once. The listener is removed when
// the connection ends or Close is called; nothing reaches sink after that.
// sink must not call Close.
func Attach(conn Connection, sink func(model.TranscriptEvent)) *Subscription {
	s := &Subscription{stop: make(chan struct{})}

	s.off = conn.OnData(func(payload []byte) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		sink(Decode(payload))
	})

	go func() {
		select {
		case <-conn.Done():
			s.Close()
		case <-s.stop:
		}
	}()

	return s
}

// Close is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.off()
		close(s.stop)
	})
}

func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
