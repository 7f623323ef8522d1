package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs against every Store implementation.
func storeContract(t *testing.T, st Store) {
	ctx := context.Background()

	got, err := Load(ctx, st, 7, 70)
	require.NoError(t, err)
	assert.Equal(t, Session{UserID: 7, ChatID: 70, State: Idle}, got)

	require.NoError(t, st.Upsert(ctx, Session{UserID: 7, ChatID: 70, State: WaitingVideo, BannerPath: "/tmp/b.png"}))
	got, err = st.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, WaitingVideo, got.State)
	assert.Equal(t, "/tmp/b.png", got.BannerPath)
	assert.False(t, got.UpdatedAt.IsZero())

	var seen []int64
	require.NoError(t, st.Range(ctx, func(s Session) bool {
		seen = append(seen, s.UserID)
		return true
	}))
	assert.Contains(t, seen, int64(7))

	require.NoError(t, st.Remove(ctx, 7))
	_, err = st.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, st.Remove(ctx, 7), "removing twice is fine")
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_ConcurrentUsers(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for u := int64(1); u <= 200; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = st.Upsert(ctx, Session{UserID: u, State: WaitingBanner})
				_, _ = st.Get(ctx, u)
			}
		}(u)
	}
	wg.Wait()

	n := 0
	require.NoError(t, st.Range(ctx, func(Session) bool { n++; return true }))
	assert.Equal(t, 200, n)
}

func TestMemoryStore_RangeStopsEarly(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	for u := int64(1); u <= 10; u++ {
		require.NoError(t, st.Upsert(ctx, Session{UserID: u}))
	}
	n := 0
	require.NoError(t, st.Range(ctx, func(Session) bool { n++; return n < 3 }))
	assert.Equal(t, 3, n)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	storeContract(t, NewRedisStore(rdb, time.Minute))
}
