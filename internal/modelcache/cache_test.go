package modelcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type handle struct {
	name   string
	closed atomic.Bool
}

func (h *handle) Close() error {
	h.closed.Store(true)
	return nil
}

// TestLoadOnce runs the loader a single time under concurrency.
func TestLoadOnce(t *testing.T) {
	t.Parallel()

	cache := New[*handle](zap.NewNop())
	var calls atomic.Int32
	load := func(context.Context) (*handle, error) {
		calls.Add(1)
		return &handle{name: "en"}, nil
	}

	var wg sync.WaitGroup
	results := make([]*handle, 16)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Load(context.Background(), "en", load)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for i, h := range results {
		require.NoError(t, errs[i])
		require.Same(t, results[0], h)
	}
	require.Equal(t, []string{"en"}, cache.Keys())
}

// TestLoadRetriesAfterFailure does not cache errors.
func TestLoadRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	cache := New[*handle](nil)
	boom := errors.New("download failed")
	_, err := cache.Load(context.Background(), "en", func(context.Context) (*handle, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, cache.Keys())

	h, err := cache.Load(context.Background(), "en", func(context.Context) (*handle, error) {
		return &handle{name: "en"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "en", h.name)
}

// TestClose releases handles and rejects later loads.
func TestClose(t *testing.T) {
	t.Parallel()

	cache := New[*handle](nil)
	h, err := cache.Load(context.Background(), "en", func(context.Context) (*handle, error) {
		return &handle{name: "en"}, nil
	})
	require.NoError(t, err)

	require.NoError(t, cache.Close())
	require.True(t, h.closed.Load())
	require.NoError(t, cache.Close())

	_, err = cache.Load(context.Background(), "en", func(context.Context) (*handle, error) {
		return &handle{}, nil
	})
	require.ErrorIs(t, err, ErrClosed)
}
