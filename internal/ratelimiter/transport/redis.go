package transport

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Transport = &RedisTransport{}

// RedisTransport runs counter commands natively against Redis.
type RedisTransport struct {
	client redis.UniversalClient
	owned  bool
}

// NewRedisTransport wraps an existing client. The caller keeps ownership of it.
func NewRedisTransport(client redis.UniversalClient) *RedisTransport {
	return &RedisTransport{client: client}
}

// DialRedis creates a client for addr and owns it; Close closes it.
func DialRedis(addr, password string, db int) *RedisTransport {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisTransport{client: client, owned: true}
}

func (t *RedisTransport) Do(ctx context.Context, args ...interface{}) (interface{}, error) {
	res, err := t.client.Do(ctx, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	return res, nil
}

func (t *RedisTransport) Close() error {
	if !t.owned {
		return nil
	}
	return t.client.Close()
}
