//go:build !integration

package redis

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memClient is an in-memory RedisClient; expirations are recorded, not applied.
type memClient struct {
	mu      sync.Mutex
	data    map[string]string
	expires map[string]time.Duration
	err     error
}

func newMemClient() *memClient {
	return &memClient{data: map[string]string{}, expires: map[string]time.Duration{}}
}

var _ RedisClient = (*memClient)(nil)

func (m *memClient) Ping(ctx context.Context) error { return m.err }

func (m *memClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.expires[key] = expiration
	return nil
}

func (m *memClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.expires[key] = expiration
	return true, nil
}

func (m *memClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (m *memClient) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *memClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = expiration
	return nil
}

func (m *memClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memClient) Close() error { return nil }

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("should grant the lock to one owner at a time", func(t *testing.T) {
		cli := newMemClient()
		l := NewLocker(cli)
		l.wait = time.Millisecond

		token, err := l.TryLock(ctx, "billing:run", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, time.Minute, cli.expires["billing:run"])

		_, err = l.TryLock(ctx, "billing:run", time.Minute)
		assert.ErrorIs(t, err, ErrLockHeld)

		assert.ErrorIs(t, l.Unlock(ctx, "billing:run", "someone-else"), ErrLockNotHeld)
		require.NoError(t, l.Unlock(ctx, "billing:run", token))

		_, err = l.TryLock(ctx, "billing:run", time.Minute)
		assert.NoError(t, err)
	})

	t.Run("should report redis failures", func(t *testing.T) {
		cli := newMemClient()
		cli.err = errors.New("connection refused")
		l := NewLocker(cli)
		l.wait = time.Millisecond

		_, err := l.TryLock(ctx, "k", time.Second)
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 15, 12, 0, 10, 0, time.UTC)

	newLimiter := func() (*RateLimiter, *memClient) {
		cli := newMemClient()
		rl := NewRateLimiter(cli)
		rl.now = func() time.Time { return at }
		return rl, cli
	}

	t.Run("should allow up to the limit per host and window", func(t *testing.T) {
		rl, cli := newLimiter()

		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, "billing:host:10", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "call %d", i+1)
		}
		ok, err := rl.Allow(ctx, "billing:host:10", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 2*time.Minute, cli.expires[windowKey("billing:host:10", at, time.Minute)])

		ok, _ = rl.Allow(ctx, "billing:host:11", 3, time.Minute)
		assert.True(t, ok, "limits are per key")
	})

	t.Run("should start over in the next window", func(t *testing.T) {
		rl, _ := newLimiter()
		for i := 0; i < 2; i++ {
			_, _ = rl.Allow(ctx, "billing:host:10", 2, time.Minute)
		}
		ok, _ := rl.Allow(ctx, "billing:host:10", 2, time.Minute)
		require.False(t, ok)

		rl.now = func() time.Time { return at.Add(time.Minute) }
		ok, err := rl.Allow(ctx, "billing:host:10", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("should not touch redis without a limit", func(t *testing.T) {
		rl, cli := newLimiter()
		cli.err = errors.New("redis down")

		ok, err := rl.Allow(ctx, "billing:host:10", 0, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
