package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	c := NewMemoryClient()
	c.now = func() time.Time { return now }

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "forever", []byte("x"), 0))
	now = now.Add(24 * time.Hour)
	_, err = c.Get(ctx, "forever")
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "forever"))
	_, err = c.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.Close())
}

func TestMemoryClient_CopiesValues(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

type fakeBackend struct {
	data map[string][]byte
	err  error
}

func (f *fakeBackend) GetCachedEnrichment(_ context.Context, key string) ([]byte, error) {
	return f.data[key], f.err
}

func (f *fakeBackend) SetCachedEnrichment(_ context.Context, key string, data []byte, _ time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.data[key] = data
	return nil
}

func (f *fakeBackend) DeleteCachedEnrichment(_ context.Context, key string) error {
	delete(f.data, key)
	return f.err
}

func TestStoreClient(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{data: map[string][]byte{}}
	c := NewStoreClient(b)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", []byte(`{}`), time.Hour))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))
	require.NoError(t, c.Delete(ctx, "k"))

	b.err = errors.New("db locked")
	_, err = c.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
	assert.ErrorContains(t, c.Set(ctx, "k", nil, 0), "cache: store set")
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisClient(ctx, RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: ping redis")
}
