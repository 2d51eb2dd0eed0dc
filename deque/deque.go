// Package deque implements the anchor-based lock-free double-ended queue
// from spec section 4.6: a doubly-linked chain of immutable-data nodes
// whose entire mutable state — both ends and a stabilisation status — lives
// in one atomically-swapped anchor record, so every push/pop takes effect
// with a single CAS on that one cell; a push then repairs one back-link
// during stabilisation.
//
// No repo in this corpus implements this algorithm; the anchor/stabilise
// shape here is grounded directly in spec section 4.6's step-by-step
// description (Sundell & Tsigas's lock-free deque), composed with package
// elimination for its backoff-time fast path exactly as spec section 4.6's
// "Elimination integration" describes.
package deque

import (
	"context"
	"sync/atomic"

	"github.com/joeycumines/go-lockfree/elimination"
	"github.com/joeycumines/go-lockfree/internal/backoff"
)

type status int8

const (
	stable status = iota
	lpush
	rpush
)

// node is one element of the chain. left/right are plain atomic back/fore
// links, repaired lazily by stabilisation rather than markable references:
// a deque node is never logically-deleted in place, only spliced out by an
// anchor swap, so it needs no mark bit.
type node[T any] struct {
	value T
	left  atomic.Pointer[node[T]]
	right atomic.Pointer[node[T]]
}

// anchor is the deque's single source of truth, per spec section 4.6's
// "State lives in a single atomic anchor cell". Immutable once published;
// every mutation builds a new anchor and CASes the Deque's pointer to it.
type anchor[T any] struct {
	left   *node[T]
	right  *node[T]
	status status
	count  int
}

func (a *anchor[T]) empty() bool { return a == nil || a.count == 0 }

// Config configures a Deque. The zero value is valid: it selects the
// package defaults for both the retry backoff and the two elimination
// arrays.
type Config struct {
	// Backoff controls the wait between a losing central CAS and the next
	// retry (also the wait window each elimination attempt uses). It is
	// applied to both elimination arrays unless Elimination.Backoff is set.
	Backoff backoff.Policy

	// Elimination configures both end arrays identically. See package
	// elimination's Config for field meaning and defaults; a non-zero
	// Elimination.Backoff takes precedence over Backoff.
	Elimination elimination.Config
}

// Deque is a lock-free double-ended queue, safe for any number of
// concurrent PushLeft/PushRight/PopLeft/PopRight callers. The zero value is
// not usable; construct with New.
type Deque[T any] struct {
	anchor    atomic.Pointer[anchor[T]]
	leftElim  *elimination.Array
	rightElim *elimination.Array
	backoff   backoff.Policy
}

// New constructs an empty Deque.
func New[T any](cfg Config) *Deque[T] {
	elimCfg := cfg.Elimination
	if elimCfg.Backoff == (backoff.Policy{}) {
		elimCfg.Backoff = cfg.Backoff
	}
	d := &Deque[T]{
		leftElim:  elimination.NewArray(elimCfg),
		rightElim: elimination.NewArray(elimCfg),
		backoff:   cfg.Backoff,
	}
	d.anchor.Store(&anchor[T]{})
	return d
}

// Len returns the number of elements currently in the deque. Like any
// concurrently-mutated size, it is a snapshot that may already be stale.
func (d *Deque[T]) Len() int {
	a := d.anchor.Load()
	if a == nil {
		return 0
	}
	return a.count
}

// PushLeft inserts v at the left (front) end. err is non-nil (it is
// lockfree.ErrCancelled) only if ctx is cancelled while the elimination
// fast path is waiting for a pairing PopLeft, per spec section 7's
// Cancelled condition — the caller is expected to propagate it and retry
// at a higher level rather than treat it as an ordinary failed attempt.
func (d *Deque[T]) PushLeft(ctx context.Context, v T) error {
	for {
		a := d.anchor.Load()
		switch {
		case a.empty():
			n := &node[T]{value: v}
			newA := &anchor[T]{left: n, right: n, status: stable, count: 1}
			if d.anchor.CompareAndSwap(a, newA) {
				return nil
			}
		case a.status == stable:
			n := &node[T]{value: v}
			n.right.Store(a.left)
			newA := &anchor[T]{left: n, right: a.right, status: lpush, count: a.count + 1}
			if d.anchor.CompareAndSwap(a, newA) {
				d.stabiliseLeft(newA)
				return nil
			}
		default:
			d.stabilise(a)
			continue
		}
		if matched, err := d.leftElim.TryAdd(ctx, v); matched {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// PushRight inserts v at the right (back) end. err is non-nil on the same
// terms as PushLeft's.
func (d *Deque[T]) PushRight(ctx context.Context, v T) error {
	for {
		a := d.anchor.Load()
		switch {
		case a.empty():
			n := &node[T]{value: v}
			newA := &anchor[T]{left: n, right: n, status: stable, count: 1}
			if d.anchor.CompareAndSwap(a, newA) {
				return nil
			}
		case a.status == stable:
			n := &node[T]{value: v}
			n.left.Store(a.right)
			newA := &anchor[T]{left: a.left, right: n, status: rpush, count: a.count + 1}
			if d.anchor.CompareAndSwap(a, newA) {
				d.stabiliseRight(newA)
				return nil
			}
		default:
			d.stabilise(a)
			continue
		}
		if matched, err := d.rightElim.TryAdd(ctx, v); matched {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// PopLeft removes and returns the left (front) element. ok is false iff the
// deque was empty and no concurrent PushLeft could be paired via the
// elimination array either. err is non-nil (per PushLeft's cancellation
// terms) only if ctx is cancelled while waiting on the elimination fast
// path with no pairing found.
func (d *Deque[T]) PopLeft(ctx context.Context) (value T, ok bool, err error) {
	for {
		a := d.anchor.Load()
		switch {
		case a.empty():
			v, matched, err := d.leftElim.TryRemove(ctx)
			if matched {
				return v.(T), true, nil
			}
			var zero T
			return zero, false, err
		case a.count == 1:
			newA := &anchor[T]{}
			if d.anchor.CompareAndSwap(a, newA) {
				return a.left.value, true, nil
			}
		case a.status == stable:
			prev := a.left.right.Load()
			newA := &anchor[T]{left: prev, right: a.right, status: stable, count: a.count - 1}
			if d.anchor.CompareAndSwap(a, newA) {
				// aid reclamation: the removed node no longer references the chain
				a.left.right.Store(nil)
				a.left.left.Store(nil)
				return a.left.value, true, nil
			}
		default:
			d.stabilise(a)
			continue
		}
		if v, matched, werr := d.leftElim.TryRemove(ctx); matched {
			return v.(T), true, nil
		} else if werr != nil {
			var zero T
			return zero, false, werr
		}
	}
}

// PopRight removes and returns the right (back) element. err is non-nil on
// the same terms as PopLeft's.
func (d *Deque[T]) PopRight(ctx context.Context) (value T, ok bool, err error) {
	for {
		a := d.anchor.Load()
		switch {
		case a.empty():
			v, matched, err := d.rightElim.TryRemove(ctx)
			if matched {
				return v.(T), true, nil
			}
			var zero T
			return zero, false, err
		case a.count == 1:
			newA := &anchor[T]{}
			if d.anchor.CompareAndSwap(a, newA) {
				return a.right.value, true, nil
			}
		case a.status == stable:
			next := a.right.left.Load()
			newA := &anchor[T]{left: a.left, right: next, status: stable, count: a.count - 1}
			if d.anchor.CompareAndSwap(a, newA) {
				a.right.left.Store(nil)
				a.right.right.Store(nil)
				return a.right.value, true, nil
			}
		default:
			d.stabilise(a)
			continue
		}
		if v, matched, werr := d.rightElim.TryRemove(ctx); matched {
			return v.(T), true, nil
		} else if werr != nil {
			var zero T
			return zero, false, werr
		}
	}
}

func (d *Deque[T]) stabilise(a *anchor[T]) {
	switch a.status {
	case lpush:
		d.stabiliseLeft(a)
	case rpush:
		d.stabiliseRight(a)
	}
}

// stabiliseLeft repairs the back-link left behind by an in-flight
// PushLeft, per spec section 4.6: find the node just right of the new
// left-most node, make sure its own left pointer has caught up to point
// back at the new left-most node, then flip the anchor's status back to
// STABLE. Idempotent — any goroutine that observes an LPUSH anchor may
// call this, and a loser of either CAS here has simply been beaten to the
// same repair by another helper.
func (d *Deque[T]) stabiliseLeft(a *anchor[T]) {
	prev := a.left.right.Load()
	if cur := d.anchor.Load(); cur != a || cur.status != lpush {
		return
	}
	if prevLeft := prev.left.Load(); prevLeft != a.left {
		if !prev.left.CompareAndSwap(prevLeft, a.left) {
			return
		}
	}
	newA := &anchor[T]{left: a.left, right: a.right, status: stable, count: a.count}
	d.anchor.CompareAndSwap(a, newA)
}

// stabiliseRight is stabiliseLeft's mirror image for an in-flight
// PushRight.
func (d *Deque[T]) stabiliseRight(a *anchor[T]) {
	next := a.right.left.Load()
	if cur := d.anchor.Load(); cur != a || cur.status != rpush {
		return
	}
	if nextRight := next.right.Load(); nextRight != a.right {
		if !next.right.CompareAndSwap(nextRight, a.right) {
			return
		}
	}
	newA := &anchor[T]{left: a.left, right: a.right, status: stable, count: a.count}
	d.anchor.CompareAndSwap(a, newA)
}
