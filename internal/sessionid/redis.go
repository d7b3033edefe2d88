package sessionid

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/teknolabs/vocameet-server/internal/redis"
)

const redisValueTTL = 30 * 24 * time.Hour

// RedisStorage keeps values under a namespace (one per session id) and
// announces every write on the namespace's change channel.
type RedisStorage struct {
	client    *redis.Client
	namespace string
}

func NewRedisStorage(client *redis.Client, namespace string) *RedisStorage {
	return &RedisStorage{client: client, namespace: namespace}
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, redisclient.SessionKey(s.namespace, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, redisclient.SessionKey(s.namespace, key), value, redisValueTTL).Err(); err != nil {
		return err
	}
	return s.publish(ctx, Change{Key: key, Value: value})
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisclient.SessionKey(s.namespace, key)).Err(); err != nil {
		return err
	}
	return s.publish(ctx, Change{Key: key, Deleted: true})
}

func (s *RedisStorage) publish(ctx context.Context, c Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, redisclient.SessionChangeChannel(s.namespace), data).Err()
}

// Watch subscribes to the namespace's change channel until stop is called.
func (s *RedisStorage) Watch(fn func(Change)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := s.client.Subscribe(ctx, redisclient.SessionChangeChannel(s.namespace))

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					log.Error().Err(err).Msg("failed to unmarshal session change")
					continue
				}
				fn(c)
			}
		}
	}()

	return cancel
}
