package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"maestro/pkg/logging"
)

const (
	// redisPingTimeout bounds the connection check at construction.
	redisPingTimeout = 5 * time.Second

	// redisConnectRetries is how many times the initial connection is
	// retried with exponential backoff before giving up.
	redisConnectRetries = 5
)

// RedisConfig holds the connection settings for the redis transport.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RedisTransport implements Transport over redis pub/sub.
//
// Redis pub/sub is a naive fanout: every subscriber of a channel receives
// every message. Deploy at most one worker per platform kind against a
// shared redis, or switch to a streams/consumer-group transport if
// competing consumers are needed.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport connects to redis and verifies the connection with a
// ping, retrying with exponential backoff so workers can start before the
// broker is up.
func NewRedisTransport(ctx context.Context, cfg RedisConfig) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logging.Debug("Bus", "Redis ping to %s failed, retrying: %v", cfg.Addr, err)
			return err
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), redisConnectRetries), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	logging.Info("Bus", "Connected to redis transport at %s", cfg.Addr)
	return &RedisTransport{client: client}, nil
}

// Publish sends the payload on the channel. Redis acknowledges receipt,
// not delivery; a publish with no subscribers succeeds and is lost, which
// matches the fire-and-forget contract.
func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a redis subscription and pumps its messages into
// deliver from a dedicated goroutine. go-redis reconnects the underlying
// connection itself; messages published while disconnected are lost, as
// redis pub/sub specifies.
func (t *RedisTransport) Subscribe(ctx context.Context, channel string, deliver func(payload []byte)) (func(), error) {
	pubsub := t.client.Subscribe(ctx, channel)

	// Receive forces the SUBSCRIBE round-trip so a broken broker surfaces
	// here instead of as a silent no-delivery subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	msgs := pubsub.Channel()
	go func() {
		for msg := range msgs {
			deliver([]byte(msg.Payload))
		}
		logging.Debug("Bus", "Redis subscription on %s closed", channel)
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				logging.Warn("Bus", "Closing redis subscription on %s: %v", channel, err)
			}
		})
	}
	return unsubscribe, nil
}

// Close releases the redis client and every open subscription.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
