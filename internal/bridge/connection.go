package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("connection closed")

// Connection is a room data channel.
type Connection interface {
	// OnData registers fn for inbound payloads, called in arrival order.
	OnData(fn func(payload []byte)) (off func())
	// Done is closed when the connection ends.
	Done() <-chan struct{}
	Close() error
}

type dispatcher struct {
	mu       sync.Mutex
	deliver  sync.Mutex
	handlers map[int]func([]byte)
	nextID   int

	done      chan struct{}
	closeOnce sync.Once
}

func (d *dispatcher) init() {
	d.handlers = make(map[int]func([]byte))
	d.done = make(chan struct{})
}

func (d *dispatcher) OnData(fn func([]byte)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.handlers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.handlers, id)
		d.mu.Unlock()
	}
}

func (d *dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *dispatcher) emit(payload []byte) {
	d.deliver.Lock()
	defer d.deliver.Unlock()

	d.mu.Lock()
	handlers := make([]func([]byte), 0, len(d.handlers))
	for _, fn := range d.handlers {
		handlers = append(handlers, fn)
	}
	d.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}

func (d *dispatcher) markClosed() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *dispatcher) isClosed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// FeedConnection is fed in-process, by the agent-facing HTTP endpoint.
type FeedConnection struct {
	dispatcher
}

func NewFeedConnection() *FeedConnection {
	f := &FeedConnection{}
	f.init()
	return f
}

func (f *FeedConnection) Push(payload []byte) error {
	if f.isClosed() {
		return ErrClosed
	}
	f.emit(payload)
	return nil
}

func (f *FeedConnection) Close() error {
	f.markClosed()
	return nil
}

// WSConnection reads data messages from a websocket relay.
type WSConnection struct {
	dispatcher
	conn *websocket.Conn
}

func DialWS(ctx context.Context, url string, header http.Header) (*WSConnection, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	c := &WSConnection{conn: conn}
	c.init()
	go c.readLoop()
	return c, nil
}

func (c *WSConnection) readLoop() {
	defer c.markClosed()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("room data websocket closed unexpectedly")
			}
			return
		}
		c.emit(data)
	}
}

func (c *WSConnection) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.markClosed()
	return err
}
