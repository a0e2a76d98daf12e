package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

const defaultRedisKey = "gqlauth:credential"

// Redis stores the credential under a single key so replicas sharing the
// same endpoint account pick up each other's refreshes on restart.
type Redis struct {
	client *backend.Client
	key    string
	ttl    time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKey sets the key holding the credential. An empty key is ignored.
func WithKey(key string) RedisOption {
	return func(r *Redis) {
		if key != "" {
			r.key = key
		}
	}
}

// WithTTL expires the stored credential after ttl. Zero keeps it forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// NewRedis connects a Redis store to address.
func NewRedis(address string, opts ...RedisOption) *Redis {
	return NewRedisFromClient(backend.NewClient(&backend.Options{Addr: address}), opts...)
}

// NewRedisFromClient builds a Redis store on an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		key:    defaultRedisKey,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Load(ctx context.Context) (string, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, backend.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credstore: redis get: %w", err)
	}
	return val, nil
}

func (r *Redis) Save(ctx context.Context, credential string) error {
	if err := r.client.Set(ctx, r.key, credential, r.ttl).Err(); err != nil {
		return fmt.Errorf("credstore: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Store = (*Redis)(nil)
