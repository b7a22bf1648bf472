package lock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/marketkeeper/internal/adapters/lock"
	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// Requiere un Redis real: REDIS_ADDR=localhost:6379 go test ./internal/adapters/lock/
func newRedisLocker(t *testing.T) *lock.Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	r, err := lock.NewRedis(ctx, lock.RedisOptions{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRedis_AcquireRelease(t *testing.T) {
	r := newRedisLocker(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	unlock, err := r.Acquire(ctx, key, 10*time.Second)
	require.NoError(t, err)

	_, err = r.Acquire(ctx, key, 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	again, err := r.Acquire(ctx, key, 10*time.Second)
	require.NoError(t, err)
	again()
}

func TestRedis_TTLExpires(t *testing.T) {
	r := newRedisLocker(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	_, err := r.Acquire(ctx, key, 100*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	unlock, err := r.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	unlock()
}

func TestNewRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := lock.NewRedis(ctx, lock.RedisOptions{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
