package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

type Client struct {
	Topic  string
	Events chan Event
	Done   chan struct{}
}

// Broker fans events out to SSE clients. Events travel through redis
// pub/sub so every instance serving a topic receives them.
type Broker struct {
	redis   *redis.Client
	clients map[string]map[*Client]bool // channel -> set of clients
	stops   map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redis.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		stops:   make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Subscribe registers a client for a redis channel name.
func (b *Broker) Subscribe(topic string) *Client {
	client := &Client{
		Topic:  topic,
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[topic] == nil {
		b.clients[topic] = make(map[*Client]bool)
		ctx, stop := context.WithCancel(b.ctx)
		b.stops[topic] = stop
		go b.subscribeToRedis(ctx, topic)
	}
	b.clients[topic][client] = true
	clientCount := len(b.clients[topic])
	b.mu.Unlock()

	log.Info().
		Str("topic", topic).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.Topic]; ok {
		if _, present := clients[client]; !present {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.Topic)
			if stop, ok := b.stops[client.Topic]; ok {
				stop()
				delete(b.stops, client.Topic)
			}
		}

		log.Info().
			Str("topic", client.Topic).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, topic, data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, topic string) {
	pubsub := b.redis.Subscribe(ctx, topic)
	defer pubsub.Close()

	log.Debug().
		Str("channel", topic).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(topic, event)
		}
	}
}

func (b *Broker) broadcast(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[topic] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("topic", topic).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.stops = make(map[string]context.CancelFunc)
}

// TotalClients counts open streams on this instance.
func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
