// Package elimination implements the elimination-backoff array from spec
// section 4.2: a pair of slot arrays that let an add and a concurrently
// arriving remove hand off a value directly, without either touching the
// structure (stack, queue end, deque end) the array is shielding.
//
// No repo in this corpus implements an elimination array; the algorithm
// here is grounded directly in spec section 4.2's four-step description,
// using internal/xrand for probe-index selection and internal/backoff for
// the adder's wait window, in the same way the teacher's catrate package
// composes a small internal helper (its ring buffer) into a larger
// rate-limiting algorithm.
package elimination

import (
	"context"
	"sync/atomic"

	lockfree "github.com/joeycumines/go-lockfree"
	"github.com/joeycumines/go-lockfree/internal/backoff"
	"github.com/joeycumines/go-lockfree/internal/xrand"
)

// sentinel values occupy a slot alongside a real offering. Since a slot
// holds `any`, these are distinguished by identity, not by zero value, so a
// legitimate caller value (including a nil interface) can never collide
// with them.
type sentinel int

const (
	empty sentinel = iota
	tomb
)

const taken sentinel = 2

const defaultLookahead = 4

// Config configures an Array. The zero value selects every default; pass it
// to NewArray, which fills in defaults for zero fields and validates the
// rest.
type Config struct {
	// Size is the number of slots in each of the add/remove arrays. Must be
	// a positive power of two so index wraparound can use a mask. Zero
	// selects DefaultSize.
	Size int

	// Lookahead bounds how many consecutive slots (mod Size) a single
	// try_add/try_remove call probes before giving up. Zero selects the
	// package default of 4, per spec section 4.2.
	Lookahead int

	// Backoff controls how long an adder waits for a remover to notice its
	// offering before giving up. Zero selects a package default.
	Backoff backoff.Policy

	// Adaptive enables spec section 4.2's optional adaptive sizing: the
	// array tracks running match/failure counts and grows or shrinks its
	// effective probe window every 200 failures. Off by default (SPEC_FULL
	// open question 4): a caller wanting this must opt in explicitly.
	Adaptive bool
}

// DefaultSize is the array size used when Config.Size is zero, whether or
// not Adaptive is set.
const DefaultSize = 8

// Adaptive-mode window figures: an average effective window of 32, a floor
// of 2 and a ceiling of twice the average. NewArray and the resize logic do
// not read them: an adaptive Array starts its effective window at Size,
// halves it down to no less than 1 and doubles it up to no more than Size.
const (
	AdaptiveAverageSize = 32
	AdaptiveFloor       = 2
	AdaptiveCeiling     = 2 * AdaptiveAverageSize
)

// Array is an elimination-backoff pairing structure, safe for concurrent
// use by many goroutines calling TryAdd and TryRemove.
type Array struct {
	addSlots    []atomic.Pointer[cell]
	removeSlots []atomic.Pointer[cell]
	mask        uint64
	lookahead   int
	backoff     backoff.Policy

	adaptive bool
	matches  atomic.Uint64
	failures atomic.Uint64
	effSize  atomic.Uint64 // effective probe window when Adaptive is set
	floor    uint64
	ceiling  uint64
}

type cell struct {
	sentinel sentinel
	value    any
	isValue  bool
}

var (
	emptyCell = &cell{sentinel: empty}
	tombCell  = &cell{sentinel: tomb}
	takenCell = &cell{sentinel: taken}
)

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// NewArray constructs an Array from cfg, applying defaults for zero fields.
// Panics if Size is set and not a positive power of two, following the
// teacher's validate-then-panic configuration style (catrate.NewLimiter).
func NewArray(cfg Config) *Array {
	size := cfg.Size
	if size == 0 {
		size = DefaultSize
	}
	if !isPow2(size) {
		panic(`elimination: NewArray: Size must be a positive power of two`)
	}
	lookahead := cfg.Lookahead
	if lookahead == 0 {
		lookahead = defaultLookahead
	}
	if lookahead <= 0 || lookahead > size {
		panic(`elimination: NewArray: Lookahead must be in (0, Size]`)
	}
	a := &Array{
		addSlots:    make([]atomic.Pointer[cell], size),
		removeSlots: make([]atomic.Pointer[cell], size),
		mask:        uint64(size - 1),
		lookahead:   lookahead,
		backoff:     cfg.Backoff, // zero value already yields the spec defaults via Policy's own accessors
		adaptive:    cfg.Adaptive,
	}
	for i := range a.addSlots {
		a.addSlots[i].Store(emptyCell)
	}
	for i := range a.removeSlots {
		a.removeSlots[i].Store(tombCellInitial())
	}
	a.effSize.Store(uint64(size))
	return a
}

// tombCellInitial returns the remove array's rest state. Spec section 4.2
// frames TOMB as "waiting-remover"; an idle array has no waiting remover,
// so the remove array actually starts EMPTY, and a waiting remover posts
// TOMB itself in TryRemove. This mirrors the add side's EMPTY rest state.
func tombCellInitial() *cell { return emptyCell }

func (a *Array) size() int { return len(a.addSlots) }

// probeWindow returns how many slots to probe for this call, clamped to
// the configured Lookahead and, if adaptive, the current effective size.
func (a *Array) probeWindow() int {
	w := a.lookahead
	if a.adaptive {
		if eff := int(a.effSize.Load()); eff < w {
			w = eff
		}
	}
	if w < 1 {
		w = 1
	}
	return w
}

// TryAdd attempts to hand obj directly to a concurrently arriving TryRemove
// within the configured backoff window. matched is true iff some TryRemove
// call consumed obj via elimination; false means the caller must fall back
// to its own slow path against the shielded structure. err is
// lockfree.ErrCancelled if ctx was cancelled during a wait window before any
// match was observed, per spec section 7's Cancelled condition — the caller
// is expected to propagate it and retry at a higher level, not treat it as
// an ordinary failed probe.
func (a *Array) TryAdd(ctx context.Context, obj any) (matched bool, err error) {
	start := a.startIndex()
	window := a.probeWindow()
	mask := a.mask

	for step := 0; step < window; step++ {
		i := (start + uint64(step)) & mask

		// Step 1: a remover is already waiting at the mirrored slot.
		if rc := a.removeSlots[i].Load(); rc.sentinel == tomb {
			if a.removeSlots[i].CompareAndSwap(rc, &cell{value: obj, isValue: true}) {
				a.recordMatch()
				return true, nil
			}
			continue
		}

		// Step 2: post our own offering and wait to be noticed.
		ac := a.addSlots[i].Load()
		if ac.sentinel != empty || ac.isValue {
			continue // occupied: a stale TAKEN, or another adder's offering
		}
		offer := &cell{value: obj, isValue: true}
		if !a.addSlots[i].CompareAndSwap(ac, offer) {
			continue
		}

		b := backoff.New(a.backoff)
		waitErr := b.Wait(ctx)

		cur := a.addSlots[i].Load()
		if cur == offer {
			// nobody took it: withdraw
			if a.addSlots[i].CompareAndSwap(offer, emptyCell) {
				a.recordFailure()
				if waitErr != nil {
					return false, lockfree.ErrCancelled
				}
				continue
			}
			// lost the withdrawal race to a remover that just took it
			cur = a.addSlots[i].Load()
		}
		if cur.sentinel == taken {
			a.addSlots[i].CompareAndSwap(cur, emptyCell)
			a.recordMatch()
			return true, nil
		}
		a.recordFailure()
		if waitErr != nil {
			return false, lockfree.ErrCancelled
		}
	}
	return false, nil
}

// TryRemove attempts to consume an offering posted by a concurrently
// arriving TryAdd within the configured backoff window. Returns the
// eliminated value and true on success; false means the caller must fall
// back to its own slow path against the shielded structure. err is
// lockfree.ErrCancelled on the same terms as TryAdd's.
func (a *Array) TryRemove(ctx context.Context) (obj any, matched bool, err error) {
	start := a.startIndex()
	window := a.probeWindow()
	mask := a.mask

	for step := 0; step < window; step++ {
		i := (start + uint64(step)) & mask

		// Symmetric step 1: an adder's offering is already sitting there.
		if ac := a.addSlots[i].Load(); ac.sentinel == empty && ac.isValue {
			if a.addSlots[i].CompareAndSwap(ac, takenCell) {
				a.recordMatch()
				return ac.value, true, nil
			}
			continue
		}

		// Symmetric step 2: post a tombstone and wait to be noticed.
		rc := a.removeSlots[i].Load()
		if rc.sentinel == tomb || rc.isValue {
			continue // occupied: another remover waiting, or an unclaimed handoff
		}
		post := &cell{sentinel: tomb}
		if !a.removeSlots[i].CompareAndSwap(rc, post) {
			continue
		}

		b := backoff.New(a.backoff)
		waitErr := b.Wait(ctx)

		cur := a.removeSlots[i].Load()
		if cur == post {
			if a.removeSlots[i].CompareAndSwap(post, emptyCell) {
				a.recordFailure()
				if waitErr != nil {
					return nil, false, lockfree.ErrCancelled
				}
				continue
			}
			cur = a.removeSlots[i].Load()
		}
		if cur.isValue {
			a.removeSlots[i].CompareAndSwap(cur, emptyCell)
			a.recordMatch()
			return cur.value, true, nil
		}
		a.recordFailure()
		if waitErr != nil {
			return nil, false, lockfree.ErrCancelled
		}
	}
	return nil, false, nil
}

func (a *Array) startIndex() uint64 {
	r := xrand.New()
	return uint64(r.Intn(a.size()))
}

// recordMatch and recordFailure implement spec section 4.2's optional
// adaptive sizing: every 200 failures, shrink the effective probe window
// if matches are far behind failures, or grow it (bounded by the backing
// array's real size) if matches are ahead. A no-op unless Adaptive is set.
func (a *Array) recordMatch() {
	if !a.adaptive {
		return
	}
	a.matches.Add(1)
}

func (a *Array) recordFailure() {
	if !a.adaptive {
		return
	}
	f := a.failures.Add(1)
	if f%200 == 0 {
		a.maybeResize()
	}
}

func (a *Array) maybeResize() {
	matches := a.matches.Load()
	failures := a.failures.Load()
	eff := a.effSize.Load()
	max := uint64(a.size())

	switch {
	case failures > matches*4 && eff > 1:
		a.effSize.CompareAndSwap(eff, eff/2)
	case matches > failures && eff < max:
		next := eff * 2
		if next > max {
			next = max
		}
		a.effSize.CompareAndSwap(eff, next)
	}
}
