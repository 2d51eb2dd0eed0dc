package elimination

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	lockfree "github.com/joeycumines/go-lockfree"
	"github.com/joeycumines/go-lockfree/internal/backoff"
)

func backoffPolicy() backoff.Policy {
	return backoff.Policy{Base: 200 * time.Microsecond, CapMultiple: 4}
}

func fastPolicy() Config {
	return Config{
		Size:      8,
		Lookahead: 4,
		Backoff:   backoffPolicy(),
	}
}

func TestNewArray_RejectsBadSize(t *testing.T) {
	require.Panics(t, func() { NewArray(Config{Size: 3}) })
}

func TestNewArray_RejectsBadLookahead(t *testing.T) {
	require.Panics(t, func() { NewArray(Config{Size: 8, Lookahead: 9}) })
}

func TestArray_AddThenRemoveEliminate(t *testing.T) {
	a := NewArray(fastPolicy())

	var gotMatched bool
	var gotVal any
	var gotOK bool

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		m, err := a.TryAdd(ctx, 42)
		gotMatched = m
		return err
	})
	g.Go(func() error {
		time.Sleep(time.Millisecond)
		v, ok, err := a.TryRemove(ctx)
		gotVal, gotOK = v, ok
		return err
	})
	require.NoError(t, g.Wait())

	require.True(t, gotMatched)
	require.True(t, gotOK)
	require.Equal(t, 42, gotVal)
}

func TestArray_RemoveThenAddEliminate(t *testing.T) {
	a := NewArray(fastPolicy())

	var gotMatched bool
	var gotVal any
	var gotOK bool

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		v, ok, err := a.TryRemove(ctx)
		gotVal, gotOK = v, ok
		return err
	})
	g.Go(func() error {
		time.Sleep(time.Millisecond)
		m, err := a.TryAdd(ctx, 7)
		gotMatched = m
		return err
	})
	require.NoError(t, g.Wait())

	require.True(t, gotOK)
	require.True(t, gotMatched)
	require.Equal(t, 7, gotVal)
}

func TestArray_TryAddAloneTimesOutUnmatched(t *testing.T) {
	a := NewArray(fastPolicy())
	matched, err := a.TryAdd(context.Background(), 1)
	require.False(t, matched)
	require.NoError(t, err)
}

func TestArray_TryRemoveAloneTimesOutUnmatched(t *testing.T) {
	a := NewArray(fastPolicy())
	_, ok, err := a.TryRemove(context.Background())
	require.False(t, ok)
	require.NoError(t, err)
}

// TestArray_CancelledContextFails checks that an already-cancelled context
// surfaces lockfree.ErrCancelled from TryAdd, per spec section 7's
// Cancelled condition, rather than being indistinguishable from an
// ordinary unmatched probe.
func TestArray_CancelledContextFails(t *testing.T) {
	a := NewArray(fastPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	matched, err := a.TryAdd(ctx, 1)
	require.False(t, matched)
	require.ErrorIs(t, err, lockfree.ErrCancelled)
}

// TestArray_CancelledContextFailsOnRemove is TryAdd's cancellation test
// mirrored onto TryRemove.
func TestArray_CancelledContextFailsOnRemove(t *testing.T) {
	a := NewArray(fastPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, matched, err := a.TryRemove(ctx)
	require.False(t, matched)
	require.ErrorIs(t, err, lockfree.ErrCancelled)
}

// TestArray_ConcurrentPairing runs many paired adders/removers and checks
// every value handed to TryAdd is observed by exactly one TryRemove call,
// i.e. elimination never duplicates or drops a value.
func TestArray_ConcurrentPairing(t *testing.T) {
	a := NewArray(Config{Size: 16, Lookahead: 4, Backoff: backoffPolicy()})
	const n = 64

	results := make(chan int, n)
	var matchedAdds atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			m, err := a.TryAdd(ctx, i)
			if m {
				matchedAdds.Add(1)
			}
			return err
		})
		g.Go(func() error {
			v, ok, err := a.TryRemove(ctx)
			if ok {
				results <- v.(int)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	seen := map[int]bool{}
	for v := range results {
		require.False(t, seen[v], "value %d eliminated more than once", v)
		seen[v] = true
	}
	require.Equal(t, int(matchedAdds.Load()), len(seen), "every matched TryAdd must be received by a TryRemove")
}

func TestArray_AdaptiveResizeDoesNotPanic(t *testing.T) {
	a := NewArray(Config{Size: 8, Lookahead: 4, Adaptive: true, Backoff: backoffPolicy()})
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		_, _ = a.TryAdd(ctx, i)
	}
}
