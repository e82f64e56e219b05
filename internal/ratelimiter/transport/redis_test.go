package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTransport_Do(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	tr := NewRedisTransport(client)
	ctx := context.Background()

	res, err := tr.Do(ctx, "INCR", "api:10.0.0.1:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res)

	res, err = tr.Do(ctx, "EXPIRE", "api:10.0.0.1:1", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res)
	assert.Equal(t, time.Minute, server.TTL("api:10.0.0.1:1"))

	// the caller owns the client, so Close must leave it usable
	require.NoError(t, tr.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestRedisTransport_ServerDown(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	addr := server.Addr()
	server.Close()

	tr := DialRedis(addr, "", 0)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = tr.Do(ctx, "INCR", "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
}
