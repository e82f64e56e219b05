package ratelimiter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lowc1012/facility-ratelimiter/internal/ratelimiter/transport"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteCounter_ExpireOnlyOnFirstHit(t *testing.T) {
	mock := newMockTransport()
	clock := newFakeClock(windowStart)
	counter := NewRemoteCounter(mock, WithRemoteClock(clock.Now))
	policy := Policy{MaxRequests: 3, WindowSeconds: 60}

	for i := 0; i < 4; i++ {
		_, err := counter.Check(context.Background(), "booking:u1:27543435", policy)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"INCR booking:u1:27543435",
		"EXPIRE booking:u1:27543435",
		"INCR booking:u1:27543435",
		"INCR booking:u1:27543435",
		"INCR booking:u1:27543435",
	}, mock.Calls())
}

func TestRemoteCounter_Check(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	clock := newFakeClock(windowStart.Add(15 * time.Second))
	counter := NewRemoteCounter(transport.NewRedisTransport(client), WithRemoteClock(clock.Now))
	policy := Policy{MaxRequests: 3, WindowSeconds: 60}
	ctx := context.Background()

	var results []Result
	for i := 0; i < 4; i++ {
		res, err := counter.Check(ctx, "auth:10.0.0.1:1", policy)
		require.NoError(t, err)
		results = append(results, res)
		server.FastForward(time.Second)
	}

	for i, want := range []struct {
		allowed   bool
		remaining int
	}{{true, 2}, {true, 1}, {true, 0}, {false, 0}} {
		assert.Equal(t, want.allowed, results[i].Allowed, "call %d", i+1)
		assert.Equal(t, want.remaining, results[i].Remaining, "call %d", i+1)
		assert.WithinDuration(t, windowStart.Add(time.Minute), results[i].WindowEndsAt, 0, "call %d", i+1)
		assert.Equal(t, time.UTC, results[i].WindowEndsAt.Location(), "call %d", i+1)
	}

	// expiry was armed once on the first hit and has been counting down since
	assert.Equal(t, 56*time.Second, server.TTL("auth:10.0.0.1:1"))

	server.FastForward(time.Minute)
	assert.False(t, server.Exists("auth:10.0.0.1:1"))
}

func TestRemoteCounter_RESTBackend(t *testing.T) {
	var counts = map[string]int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		var cmd []interface{}
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		key := cmd[1].(string)
		switch cmd[0] {
		case "INCR":
			counts[key]++
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": counts[key]})
		case "EXPIRE":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": 1})
		}
	}))
	defer server.Close()

	counter := NewRemoteCounter(transport.NewRESTTransport(server.URL, "token", time.Second))
	policy := Policy{MaxRequests: 1, WindowSeconds: 60}

	res, err := counter.Check(context.Background(), "strict:u1:1", policy)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = counter.Check(context.Background(), "strict:u1:1", policy)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Count)
}

func TestRemoteCounter_Failures(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		mock := newMockTransport()
		mock.SetFailure(errTransportDown)
		counter := NewRemoteCounter(mock)

		_, err := counter.Check(context.Background(), "k", Policy{MaxRequests: 1, WindowSeconds: 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBackendUnavailable))
		assert.True(t, errors.Is(err, errTransportDown))
		assert.Len(t, mock.Calls(), 1, "failures are not retried")
	})

	t.Run("unexpected result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"result":"OK"}`))
		}))
		defer server.Close()

		counter := NewRemoteCounter(transport.NewRESTTransport(server.URL, "token", time.Second))
		_, err := counter.Check(context.Background(), "k", Policy{MaxRequests: 1, WindowSeconds: 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBackendUnavailable))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		counter := NewRemoteCounter(transport.NewRESTTransport(server.URL, "token", 0),
			WithTimeout(20*time.Millisecond))

		start := time.Now()
		_, err := counter.Check(context.Background(), "k", Policy{MaxRequests: 1, WindowSeconds: 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Less(t, time.Since(start), time.Second)
	})
}
