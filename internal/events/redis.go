package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
)

const (
	redisMaxRetries     = 3
	redisInitialBackoff = 100 * time.Millisecond
	redisMaxBackoff     = 2 * time.Second
)

// Redis publishes events as JSON on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

func NewRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Redis{client: client, channel: opts.Channel}
}

// Ping checks connectivity at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	operation := func() error {
		return r.client.Publish(ctx, r.channel, payload).Err()
	}
	return backoff.RetryNotify(operation, newBackoff(ctx, redisMaxRetries), func(err error, d time.Duration) {
		log.Printf("[events] redis publish %s failed: %v (retry in %s)", evt.Type, err, d)
	})
}

func (r *Redis) Close() error { return r.client.Close() }

func newBackoff(ctx context.Context, retries uint64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = redisInitialBackoff
	b.MaxInterval = redisMaxBackoff
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}
