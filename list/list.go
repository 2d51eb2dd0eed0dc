// Package list implements the Harris-Michael lock-free ordered list from
// spec section 4.4: a singly-linked list kept sorted by a total order,
// where deletion is a two-step mark-then-unlink protocol so a traverser
// can always make forward progress regardless of what other goroutines are
// doing concurrently.
//
// No repo in this corpus implements this algorithm directly; the shape is
// grounded in spec section 4.4's operation list, built on package markref
// for the (pointer, mark) atomic cell and constraints.Ordered (the
// teacher's declared golang.org/x/exp dependency) for the key order.
package list

import (
	"golang.org/x/exp/constraints"

	"github.com/joeycumines/go-lockfree/markref"
)

// kind distinguishes the two sentinel nodes (head, tail) from ordinary
// nodes, so the list can express -infinity/+infinity bounds without
// requiring K itself to have sentinel values.
type kind int8

const (
	kindNormal kind = iota
	kindHead
	kindTail
)

func compareKeys[K constraints.Ordered](aKind kind, aKey K, bKind kind, bKey K) int {
	switch {
	case aKind == kindHead && bKind == kindHead, aKind == kindTail && bKind == kindTail:
		return 0
	case aKind == kindHead:
		return -1
	case bKind == kindHead:
		return 1
	case aKind == kindTail:
		return 1
	case bKind == kindTail:
		return -1
	case aKey < bKey:
		return -1
	case aKey > bKey:
		return 1
	default:
		return 0
	}
}

// Node is one element of the list. Value is exported so package hashset
// (and other callers building a richer structure atop this list) can stash
// their own payload alongside the ordering key.
type Node[K constraints.Ordered, V any] struct {
	kind  kind
	Key   K
	Value V
	next  markref.Ref[Node[K, V]]
}

// List is a Harris-Michael lock-free ordered list, safe for any number of
// concurrent callers. The zero value is not usable; construct with New.
type List[K constraints.Ordered, V any] struct {
	head *Node[K, V]
}

// New constructs an empty List with sentinel head/tail nodes already
// linked together.
func New[K constraints.Ordered, V any]() *List[K, V] {
	tail := &Node[K, V]{kind: kindTail}
	head := &Node[K, V]{kind: kindHead}
	head.next.Store(tail, false)
	return &List[K, V]{head: head}
}

// Head returns the list's sentinel head node. It carries no key and must
// never be passed to a caller's key-bearing API, but package hashset uses
// it as the traversal anchor for materialising bucket 0's dummy, the root
// of every bucket's parent chain.
func (l *List[K, V]) Head() *Node[K, V] { return l.head }

// Find returns the pair of markable references that bracket the first node
// whose key is >= target: prev is the last unmarked node with a smaller
// key, and curr is the first node (possibly the tail sentinel) with key >=
// target. While traversing, Find cooperatively physically unlinks any
// marked node it passes over, completing deletions left half-finished by a
// stalled Remove. Retries from the head on a losing unlink CAS, per spec
// section 4.4.
func (l *List[K, V]) Find(target K) (prev, curr *Node[K, V]) {
	return l.FindFrom(l.head, target)
}

// FindFrom is Find, but the traversal begins at start instead of the
// list's own head. start must be a node currently (or formerly) linked into
// this list, with a key <= target; callers that only ever pass nodes
// obtained from this same List satisfy that automatically. This lets a
// caller holding a nearby anchor (package hashset's bucket dummy nodes) skip
// the portion of the list before it, turning an O(n) scan into an O(n /
// bucket count) one on average.
func (l *List[K, V]) FindFrom(start *Node[K, V], target K) (prev, curr *Node[K, V]) {
retry:
	prev = start
	curr, _ = prev.next.Load()
	for {
		if curr.kind == kindTail {
			return prev, curr
		}
		next, marked := curr.next.Load()
		if marked {
			// curr is logically deleted; try to physically unlink it.
			if !prev.next.CompareAndSwap(curr, next, false, false) {
				goto retry
			}
			curr = next
			continue
		}
		if compareKeys(curr.kind, curr.Key, kindNormal, target) >= 0 {
			return prev, curr
		}
		prev = curr
		curr = next
	}
}

// Add inserts a node with the given key and value if no unmarked node with
// that key is already present. Returns false (set semantics) if the key was
// already present; the existing node's Value is left untouched.
func (l *List[K, V]) Add(key K, value V) bool {
	_, ok := l.AddFrom(l.head, key, value)
	return ok
}

// AddFrom is Add, but the search for the insertion point begins at start
// (see FindFrom). It also returns the node actually holding key once Add
// returns — either the newly published node, or the pre-existing one that
// caused the add to fail — so a caller (package hashset, publishing a
// bucket dummy) can retain a handle to it.
func (l *List[K, V]) AddFrom(start *Node[K, V], key K, value V) (node *Node[K, V], added bool) {
	for {
		prev, curr := l.FindFrom(start, key)
		if curr.kind != kindTail && curr.Key == key {
			return curr, false
		}
		node := &Node[K, V]{kind: kindNormal, Key: key, Value: value}
		node.next.Store(curr, false)
		if prev.next.CompareAndSwap(curr, node, false, false) {
			return node, true
		}
		// lost the race against a concurrent Add/Remove at this position; retry
	}
}

// Remove deletes the node with the given key, if present, via the two-step
// mark-then-unlink protocol: first logically mark the node's own next
// pointer, which is the irreversible linearization point, then attempt the
// physical unlink. A lost race on the physical unlink is not a failure —
// any future Find completes it — so Remove only reports whether it won the
// logical mark.
func (l *List[K, V]) Remove(key K) bool {
	return l.RemoveFrom(l.head, key)
}

// RemoveFrom is Remove, but the search begins at start (see FindFrom).
func (l *List[K, V]) RemoveFrom(start *Node[K, V], key K) bool {
	for {
		prev, curr := l.FindFrom(start, key)
		if curr.kind == kindTail || curr.Key != key {
			return false
		}
		succ, marked := curr.next.Load()
		if marked {
			return false // someone else already marked it; contains() is now false
		}
		if !curr.next.CompareAndSwap(succ, succ, false, true) {
			continue // lost the logical-delete race; restart with a fresh Find
		}
		// Best-effort physical unlink; a losing CAS here is completed later by
		// any traverser's Find, per spec section 4.4's edge case.
		prev.next.CompareAndSwap(curr, succ, false, false)
		return true
	}
}

// Contains reports whether key is present and not (yet) logically deleted.
// Wait-free: a single forward pass with no CAS and no retry.
func (l *List[K, V]) Contains(key K) bool {
	return l.ContainsFrom(l.head, key)
}

// ContainsFrom is Contains, but the scan begins at start (see FindFrom).
func (l *List[K, V]) ContainsFrom(start *Node[K, V], key K) bool {
	_, ok := l.GetFrom(start, key)
	return ok
}

// Get returns the value stored at key and whether it was present and not
// logically deleted. Wait-free, same traversal as Contains.
func (l *List[K, V]) Get(key K) (value V, ok bool) {
	return l.GetFrom(l.head, key)
}

// GetFrom is Get, but the scan begins at start (see FindFrom).
func (l *List[K, V]) GetFrom(start *Node[K, V], key K) (value V, ok bool) {
	curr, _ := start.next.Load()
	for curr.kind != kindTail {
		if compareKeys(curr.kind, curr.Key, kindNormal, key) >= 0 {
			break
		}
		curr, _ = curr.next.Load()
	}
	if curr.kind == kindTail || curr.Key != key {
		return value, false
	}
	_, marked := curr.next.Load()
	if marked {
		return value, false
	}
	return curr.Value, true
}

// Range calls fn for each unmarked node in ascending key order, stopping
// early if fn returns false. Range does not itself unlink marked nodes; it
// simply skips them, since it holds no prev reference to CAS through.
func (l *List[K, V]) Range(fn func(key K, value V) bool) {
	curr, _ := l.head.next.Load()
	for curr.kind != kindTail {
		next, marked := curr.next.Load()
		if !marked {
			if !fn(curr.Key, curr.Value) {
				return
			}
		}
		curr = next
	}
}
