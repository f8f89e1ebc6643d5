package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreListOps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.ListAppend(ctx, "l", "a"))
	require.NoError(t, s.ListAppend(ctx, "l", "b"))
	require.NoError(t, s.ListPushHead(ctx, "l", "z"))

	n, err := s.ListLen(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	v, ok, err := s.ListIndex(ctx, "l", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "z", v)

	_, ok, err = s.ListIndex(ctx, "l", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := s.ListRemoveFirst(ctx, "l", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = s.ListRemoveFirst(ctx, "l", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	// Remaining order: z, b.
	head, ok, err := s.ListPopHead(ctx, "l", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "z", head)
}

func TestMemoryStoreBlockingPop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Timeout on an empty list.
	start := time.Now()
	_, ok, err := s.ListPopHead(ctx, "empty", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// A concurrent push wakes the blocked pop.
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = s.ListAppend(ctx, "wake", "payload")
	}()
	v, ok, err := s.ListPopHead(ctx, "wake", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", v)
}

func TestMemoryStoreHashAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.HashSet(ctx, "h", "f", "1"))
	require.NoError(t, s.HashSetFields(ctx, "h", map[string]string{"g": "2", "f": "3"}))

	v, ok, err := s.HashGet(ctx, "h", "f")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", v)

	all, err := s.HashGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f": "3", "g": "2"}, all)

	require.NoError(t, s.SetAdd(ctx, "s", "a"))
	require.NoError(t, s.SetAdd(ctx, "s", "a"))
	require.NoError(t, s.SetAdd(ctx, "s", "b"))
	members, err := s.SetMembers(ctx, "s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SetWithTTL(ctx, "k", "v", 40*time.Millisecond))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(60 * time.Millisecond)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "key should be evicted after TTL")
}

func TestMemoryStoreLease(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.AcquireLease(ctx, "lease", "owner-a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLease(ctx, "lease", "owner-b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "held lease must not be re-acquired")

	ok, err = s.RenewLease(ctx, "lease", "owner-b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "non-owner must not renew")

	ok, err = s.RenewLease(ctx, "lease", "owner-a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.ReleaseLease(ctx, "lease", "owner-a"))
	ok, err = s.AcquireLease(ctx, "lease", "owner-b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "released lease is acquirable")
}

func TestWorkerKeys(t *testing.T) {
	assert.Equal(t, "worker:w1:queue", WorkerQueueKey("w1"))
	assert.Equal(t, "worker:w1:heartbeat", WorkerHeartbeatKey("w1"))
	assert.Equal(t, "worker:w1:stats", WorkerStatsKey("w1"))
}
