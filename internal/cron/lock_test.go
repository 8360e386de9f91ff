package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	values map[string]string
	ttl    time.Duration
	err    error
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttl = ttl
	return true, nil
}

func (f *fakeRedis) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func TestRedisLockIsExclusiveAndOwnerChecked(t *testing.T) {
	store := &fakeRedis{values: map[string]string{}}
	first, err := NewRedisLock(store, "lock:sweeps", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "lock:sweeps", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, defaultLockTTL, store.ttl)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	// releasing a lock we never got leaves the owner's key alone
	require.NoError(t, second.Release(context.Background()))
	assert.Contains(t, store.values, "lock:sweeps")

	require.NoError(t, first.Release(context.Background()))
	assert.NotContains(t, store.values, "lock:sweeps")

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockSurfacesStoreErrors(t *testing.T) {
	lock, err := NewRedisLock(&fakeRedis{values: map[string]string{}, err: errors.New("down")}, "k", 0)
	require.NoError(t, err)
	_, err = lock.Acquire(context.Background())
	assert.ErrorContains(t, err, "down")

	_, err = NewRedisLock(nil, "k", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(&fakeRedis{}, "", 0)
	assert.Error(t, err)
}

func TestLocalLock(t *testing.T) {
	var lock LocalLock
	ok, _ := lock.Acquire(context.Background())
	assert.True(t, ok)
	ok, _ = lock.Acquire(context.Background())
	assert.False(t, ok)
	require.NoError(t, lock.Release(context.Background()))
	ok, _ = lock.Acquire(context.Background())
	assert.True(t, ok)
}
