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
)

func newTestCache(t *testing.T) *TagCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute, nil)
}

func TestGetOrLoadMissThenHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	calls := 0
	load := func(ctx context.Context) (string, error) {
		calls++
		return "value", nil
	}

	v, err := GetOrLoad(ctx, c, "k", []string{"tag:1"}, load)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, 1, calls)

	v, err = GetOrLoad(ctx, c, "k", []string{"tag:1"}, load)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, 1, calls, "second read must come from cache")
}

func TestInvalidateDropsEntries(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	calls := 0
	load := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := GetOrLoad(ctx, c, "k", []string{"tag:1"}, load)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "tag:1"))

	v, err := GetOrLoad(ctx, c, "k", []string{"tag:1"}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "invalidated entry must reload")
}

func TestInvalidateIsSelective(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	aCalls, bCalls := 0, 0

	loadA := func(ctx context.Context) (string, error) { aCalls++; return "a", nil }
	loadB := func(ctx context.Context) (string, error) { bCalls++; return "b", nil }

	_, err := GetOrLoad(ctx, c, "ka", []string{"tag:a"}, loadA)
	require.NoError(t, err)
	_, err = GetOrLoad(ctx, c, "kb", []string{"tag:b"}, loadB)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "tag:a"))

	_, err = GetOrLoad(ctx, c, "ka", []string{"tag:a"}, loadA)
	require.NoError(t, err)
	_, err = GetOrLoad(ctx, c, "kb", []string{"tag:b"}, loadB)
	require.NoError(t, err)

	assert.Equal(t, 2, aCalls)
	assert.Equal(t, 1, bCalls, "untouched tag must keep its entries")
}

func TestInvalidateColdTagIsNoop(t *testing.T) {
	c := newTestCache(t)
	assert.NoError(t, c.Invalidate(context.Background(), "never-written"))
}

func TestInvalidateIdempotent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_, err := GetOrLoad(ctx, c, "k", []string{"tag:1"}, func(ctx context.Context) (string, error) {
		return "v", nil
	})
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "tag:1"))
	require.NoError(t, c.Invalidate(ctx, "tag:1"))
}

func TestLoaderErrorNotCached(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")
	calls := 0
	load := func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", boom
		}
		return "ok", nil
	}

	_, err := GetOrLoad(ctx, c, "k", nil, load)
	assert.ErrorIs(t, err, boom)

	v, err := GetOrLoad(ctx, c, "k", nil, load)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestNilCacheFallsThroughToLoader(t *testing.T) {
	v, err := GetOrLoad(context.Background(), nil, "k", nil, func(ctx context.Context) (string, error) {
		return "direct", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", v)
}

func TestStructValuesRoundTrip(t *testing.T) {
	type item struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	c := newTestCache(t)
	ctx := context.Background()
	calls := 0
	load := func(ctx context.Context) ([]item, error) {
		calls++
		return []item{{ID: 1, Name: "one"}, {ID: 2, Name: "two"}}, nil
	}

	first, err := GetOrLoad(ctx, c, "items", []string{"tag:items"}, load)
	require.NoError(t, err)
	second, err := GetOrLoad(ctx, c, "items", []string{"tag:items"}, load)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}
