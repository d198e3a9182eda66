package lease

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	acquireResult bool
	acquireErr    error
	releaseResult bool
	releaseErr    error
	acquiredWith  string
	ttlSeconds    int
}

func (f *fakeStore) AcquireSchedulerLock(ctx context.Context, workerID string, ttlSeconds int) (bool, error) {
	f.acquiredWith = workerID
	f.ttlSeconds = ttlSeconds
	return f.acquireResult, f.acquireErr
}

func (f *fakeStore) ReleaseSchedulerLock(ctx context.Context, workerID string) (bool, error) {
	f.acquiredWith = workerID
	return f.releaseResult, f.releaseErr
}

func TestAcquireSucceeds(t *testing.T) {
	fs := &fakeStore{acquireResult: true}
	l := New(fs, "worker-1", 300)

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "worker-1", fs.acquiredWith)
	assert.Equal(t, 300, fs.ttlSeconds)
}

func TestAcquireContended(t *testing.T) {
	fs := &fakeStore{acquireResult: false}
	l := New(fs, "worker-2", 300)

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquirePropagatesStoreError(t *testing.T) {
	fs := &fakeStore{acquireErr: errors.New("store unreachable")}
	l := New(fs, "worker-1", 300)

	_, err := l.Acquire(context.Background())
	assert.Error(t, err)
}

func TestReleaseOnlyIfOwned(t *testing.T) {
	fs := &fakeStore{releaseResult: false}
	l := New(fs, "worker-2", 300)

	ok, err := l.Release(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
