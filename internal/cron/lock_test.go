package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) ExpireIfValue(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if current, ok := m.values[key]; !ok || current != value {
		return false, nil
	}
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if current, ok := m.values[key]; !ok || current != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockSingleOwner(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	first, err := NewRedisLock(store, "tix:lock:cron-worker", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "tix:lock:cron-worker", 0)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, defaultLockTTL, store.ttls["tix:lock:cron-worker"])
	assert.Len(t, strings.Split(store.values["tix:lock:cron-worker"], "/"), 3)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "tix:lock:cron-worker", "non-owner must not release the lock")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.values, "tix:lock:cron-worker")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExtend(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "tix:lock:cron-worker", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, lock.Extend(ctx), ErrLockLost)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	store.ttls["tix:lock:cron-worker"] = time.Second
	require.NoError(t, lock.Extend(ctx))
	assert.Equal(t, time.Minute, store.ttls["tix:lock:cron-worker"])

	store.values["tix:lock:cron-worker"] = "other/1/replica"
	assert.ErrorIs(t, lock.Extend(ctx), ErrLockLost)
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "other/1/replica", store.values["tix:lock:cron-worker"])
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "tix:lock:cron-worker", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	delete(store.values, "tix:lock:cron-worker")
	require.NoError(t, lock.Release(ctx))
}

func TestRedisLockStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")
	lock, err := NewRedisLock(store, "tix:lock:cron-worker", time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tix:lock:cron-worker")
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "key", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLock(newMemoryStore(), "", time.Minute)
	require.Error(t, err)
}
