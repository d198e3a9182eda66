package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/collection-dispatcher/internal/store"
)

type fakeLoader struct {
	calls int
	tmpl  *store.EmailTemplate
	err   error
}

func (f *fakeLoader) GetTemplate(ctx context.Context, id string) (*store.EmailTemplate, error) {
	f.calls++
	return f.tmpl, f.err
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestGetTemplateCachesOnFirstLoad(t *testing.T) {
	rdb := newTestRedis(t)
	loader := &fakeLoader{tmpl: &store.EmailTemplate{ID: "t1", Subject: "Hi"}}
	c := New(loader, rdb, time.Minute)

	first, err := c.GetTemplate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Hi", first.Subject)
	assert.Equal(t, 1, loader.calls)

	second, err := c.GetTemplate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Hi", second.Subject)
	assert.Equal(t, 1, loader.calls, "second call should be served from cache")
}

func TestGetTemplatePassesThroughWithoutRedis(t *testing.T) {
	loader := &fakeLoader{tmpl: &store.EmailTemplate{ID: "t1"}}
	c := New(loader, nil, time.Minute)

	_, err := c.GetTemplate(context.Background(), "t1")
	require.NoError(t, err)
	_, err = c.GetTemplate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
}

func TestGetTemplatePropagatesLoaderError(t *testing.T) {
	rdb := newTestRedis(t)
	loader := &fakeLoader{err: errors.New("store unreachable")}
	c := New(loader, rdb, time.Minute)

	_, err := c.GetTemplate(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGetTemplateDegradesOnRedisFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close() // force every redis call to fail

	loader := &fakeLoader{tmpl: &store.EmailTemplate{ID: "t1", Subject: "Hi"}}
	c := New(loader, rdb, time.Minute)

	tmpl, err := c.GetTemplate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Hi", tmpl.Subject)
	assert.Equal(t, 1, loader.calls)
}
