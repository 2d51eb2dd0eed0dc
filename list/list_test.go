package list

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestList_AddContainsRemove(t *testing.T) {
	l := New[int, string]()

	require.False(t, l.Contains(5))
	require.True(t, l.Add(5, "five"))
	require.True(t, l.Contains(5))
	require.False(t, l.Add(5, "five-again"), "duplicate add must fail")

	v, ok := l.Get(5)
	require.True(t, ok)
	require.Equal(t, "five", v)

	require.True(t, l.Remove(5))
	require.False(t, l.Contains(5))
	require.False(t, l.Remove(5), "double remove must fail")
}

func TestList_OrderedRange(t *testing.T) {
	l := New[int, struct{}]()
	for _, k := range []int{5, 1, 4, 2, 3} {
		require.True(t, l.Add(k, struct{}{}))
	}

	var got []int
	l.Range(func(key int, _ struct{}) bool {
		got = append(got, key)
		return true
	})
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestList_RangeStopsEarly(t *testing.T) {
	l := New[int, struct{}]()
	for _, k := range []int{1, 2, 3, 4, 5} {
		l.Add(k, struct{}{})
	}
	var got []int
	l.Range(func(key int, _ struct{}) bool {
		got = append(got, key)
		return key < 3
	})
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestList_FindUnlinksMarkedNodes(t *testing.T) {
	l := New[int, struct{}]()
	l.Add(1, struct{}{})
	l.Add(2, struct{}{})
	l.Add(3, struct{}{})

	// Logically delete node 2 by marking its next pointer, without the
	// physical unlink that Remove would also attempt.
	_, n2 := l.Find(2)
	succ, _ := n2.next.Load()
	require.True(t, n2.next.CompareAndSwap(succ, succ, false, true))

	// Find must cooperatively splice the marked node 2 out of the chain.
	prev, curr := l.Find(2)
	require.Equal(t, 1, prev.Key)
	require.Equal(t, 3, curr.Key)

	next, marked := prev.next.Load()
	require.Equal(t, 3, next.Key)
	require.False(t, marked)
}

func TestList_ConcurrentAddRemove(t *testing.T) {
	l := New[int, int]()
	const n = 500

	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			l.Add(i, i*i)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		v, ok := l.Get(i)
		require.True(t, ok)
		require.Equal(t, i*i, v)
	}

	g, _ = errgroup.WithContext(context.Background())
	for i := 0; i < n; i += 2 {
		i := i
		g.Go(func() error {
			require.True(t, l.Remove(i))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		_, ok := l.Get(i)
		require.Equal(t, i%2 != 0, ok)
	}
}

func TestList_ConcurrentAddSameKeyExactlyOneWins(t *testing.T) {
	l := New[int, int]()
	const workers = 32

	results := make([]bool, workers)
	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			results[i] = l.Add(42, i)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, r := range results {
		if r {
			wins++
		}
	}
	require.Equal(t, 1, wins)
	require.True(t, l.Contains(42))
}
