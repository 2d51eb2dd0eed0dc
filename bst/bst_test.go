package bst

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestTree_FindOnEmpty(t *testing.T) {
	tr := New[int, string]()
	_, ok := tr.Find(1)
	require.False(t, ok)
	require.False(t, tr.Contains(1))
}

func TestTree_UpdateThenFind(t *testing.T) {
	tr := New[int, string]()
	tr.Update(5, "five")
	v, ok := tr.Find(5)
	require.True(t, ok)
	require.Equal(t, "five", v)

	tr.Update(5, "FIVE")
	v, ok = tr.Find(5)
	require.True(t, ok)
	require.Equal(t, "FIVE", v)
}

func TestTree_BuildsOrderedTreeAndFindsAll(t *testing.T) {
	tr := New[int, int]()
	keys := []int{50, 30, 70, 20, 40, 60, 80, 10, 25, 35, 45}
	for _, k := range keys {
		tr.Update(k, k*10)
	}
	for _, k := range keys {
		v, ok := tr.Find(k)
		require.True(t, ok, "key %d", k)
		require.Equal(t, k*10, v)
	}
	require.False(t, tr.Contains(999))
}

// TestTree_RemoveLeaf covers the both-threads case: removing a node with
// no real children.
func TestTree_RemoveLeaf(t *testing.T) {
	tr := New[int, int]()
	for _, k := range []int{50, 30, 70} {
		tr.Update(k, k)
	}
	require.True(t, tr.Remove(30))
	require.False(t, tr.Contains(30))
	require.True(t, tr.Contains(50))
	require.True(t, tr.Contains(70))
	require.False(t, tr.Remove(30))
}

// TestTree_RemoveWithOneRealChild covers the single-real-child cases
// (thread on the other side).
func TestTree_RemoveWithOneRealChild(t *testing.T) {
	tr := New[int, int]()
	for _, k := range []int{50, 30, 20} { // 30 has a real left child (20), thread right
		tr.Update(k, k)
	}
	require.True(t, tr.Remove(30))
	require.False(t, tr.Contains(30))
	require.True(t, tr.Contains(20))
	require.True(t, tr.Contains(50))

	tr2 := New[int, int]()
	for _, k := range []int{50, 70, 80} { // 70 has a real right child (80), thread left
		tr2.Update(k, k)
	}
	require.True(t, tr2.Remove(70))
	require.False(t, tr2.Contains(70))
	require.True(t, tr2.Contains(80))
	require.True(t, tr2.Contains(50))
}

// TestTree_RemoveWithTwoRealChildren covers the successor-copy case, both
// when the successor is the immediate right child and when it is found
// deeper down the right subtree's left spine.
func TestTree_RemoveWithTwoRealChildren(t *testing.T) {
	tr := New[int, int]()
	for _, k := range []int{50, 30, 70, 60, 80} { // successor of 70 is 80, its direct right child
		tr.Update(k, k)
	}
	require.True(t, tr.Remove(70))
	for _, k := range []int{50, 30, 60, 80} {
		require.True(t, tr.Contains(k), "key %d", k)
	}
	require.False(t, tr.Contains(70))

	tr2 := New[int, int]()
	for _, k := range []int{50, 30, 70, 60, 90, 85} { // successor of 70 is 85, down 90's left spine
		tr2.Update(k, k)
	}
	require.True(t, tr2.Remove(70))
	for _, k := range []int{50, 30, 60, 90, 85} {
		require.True(t, tr2.Contains(k), "key %d", k)
	}
	require.False(t, tr2.Contains(70))
}

func TestTree_RemoveRootLeaf(t *testing.T) {
	tr := New[int, int]()
	tr.Update(1, 1)
	require.True(t, tr.Remove(1))
	require.False(t, tr.Contains(1))
	_, ok := tr.Find(1)
	require.False(t, ok)
}

func TestTree_RemoveMissingKeyFails(t *testing.T) {
	tr := New[int, int]()
	tr.Update(1, 1)
	require.False(t, tr.Remove(2))
}

// TestTree_ConcurrentUpdates inserts a disjoint key range from many
// goroutines and checks every key is findable afterward, exercising MCAS
// retries under real contention on overlapping neighbour threads.
func TestTree_ConcurrentUpdates(t *testing.T) {
	tr := New[int, int]()
	const workers = 8
	const perWorker = 200

	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				k := w*perWorker + i
				tr.Update(k, k*2)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < workers*perWorker; i++ {
		v, ok := tr.Find(i)
		require.True(t, ok, "missing key %d", i)
		require.Equal(t, i*2, v)
	}
}

// TestTree_ConcurrentUpdateAndRemove interleaves inserts and removes over a
// shared key range, then checks the surviving keys are exactly those never
// removed.
func TestTree_ConcurrentUpdateAndRemove(t *testing.T) {
	tr := New[int, int]()
	const n = 300
	for i := 0; i < n; i++ {
		tr.Update(i, i)
	}

	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < n; i += 2 {
		i := i
		g.Go(func() error {
			tr.Remove(i)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		ok := tr.Contains(i)
		if i%2 == 0 {
			require.False(t, ok, "key %d should have been removed", i)
		} else {
			require.True(t, ok, "key %d should still be present", i)
		}
	}
}
