package mcas

import (
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// Status is an Op's decision state. Per spec section 4.3, it transitions
// monotonically Undecided -> {Successful, Failed} exactly once, by CAS.
type Status int32

const (
	Undecided Status = iota
	Successful
	Failed
)

// Op is an MCAS descriptor: an immutable record of N (target, expected,
// new) triples plus a single mutable decision field. Construct one via
// MCAS; there is no exported constructor, since sorting the triples by
// identifier before installation is part of the protocol, not an optional
// caller step.
type Op struct {
	status   atomic.Int32
	words    []*Word
	expected []any
	newVals  []any
}

func (op *Op) n() int { return len(op.words) }

func (op *Op) loadStatus() Status { return Status(op.status.Load()) }

// MCAS attempts to atomically move every words[i] from expected[i] to
// new[i]: either all N transitions take effect, or none do. Returns whether
// the transaction succeeded. len(words), len(expected), and len(new) must
// match, and every value in expected/new must be comparable (usable with
// ==), since resolution compares and stores them as `any`.
//
// Per spec section 4.3 step 1, the (word, expected, new) triples are sorted
// by each word's stable identifier before any CAS is attempted, so that two
// concurrent MCAS transactions over overlapping word sets always attempt to
// acquire them in the same order and cannot deadlock-livelock each other
// into perpetual mutual abort.
func MCAS(words []*Word, expected, newVals []any) bool {
	if len(words) != len(expected) || len(words) != len(newVals) {
		panic(`mcas: MCAS: words, expected, and new must have equal length`)
	}
	if len(words) == 0 {
		return true
	}

	type triple struct {
		w   *Word
		exp any
		nv  any
	}
	triples := make([]triple, len(words))
	for i, w := range words {
		triples[i] = triple{w, expected[i], newVals[i]}
	}
	slices.SortFunc(triples, func(a, b triple) int {
		switch {
		case a.w.id < b.w.id:
			return -1
		case a.w.id > b.w.id:
			return 1
		default:
			return 0
		}
	})

	op := &Op{
		words:    make([]*Word, len(triples)),
		expected: make([]any, len(triples)),
		newVals:  make([]any, len(triples)),
	}
	for i, t := range triples {
		op.words[i] = t.w
		op.expected[i] = t.exp
		op.newVals[i] = t.nv
	}

	return complete(op)
}

// complete is the shared helper entrypoint: any thread that encounters op
// mid-flight (via Word.Read, or while acquiring its own transaction) calls
// this to drive it to a decided, released state. It is always safe to call
// on an already-finished Op (the acquire/release loops are idempotent), so
// concurrent helpers never step on each other incorrectly.
func complete(op *Op) bool {
	if op.loadStatus() == Undecided {
		doomed := acquire(op)
		decide(op, doomed)
	}
	release(op)
	return op.loadStatus() == Successful
}

// acquire is the CCAS-based install phase (spec section 4.3 step 2): for
// each word in sorted order, install op's descriptor conditioned on the
// word's current value matching what this transaction expects. Helping
// another in-flight Op, and retrying this same word afterward, is what
// makes the whole protocol lock-free: a stalled thread's partial work is
// always completable by any other (spec section 4.3, "Progress").
func acquire(op *Op) (doomed bool) {
	for i := 0; i < op.n(); i++ {
		for {
			if op.loadStatus() != Undecided {
				// another thread already decided this Op while we were
				// installing; no point continuing to acquire.
				return op.loadStatus() == Failed
			}

			cur := op.words[i].cell.Load()
			if cur.op == op {
				break // already installed for this word
			}
			if cur.op != nil {
				complete(cur.op) // help the other transaction, then retry
				continue
			}
			if cur.value != op.expected[i] {
				return true // doomed: word's current value isn't what we expect
			}

			next := &cellState{value: cur.value, op: op, idx: i}
			if op.words[i].cell.CompareAndSwap(cur, next) {
				break
			}
			// lost the install race for this word; retry
		}
	}
	return false
}

// decide performs the single linearisation point (spec section 4.3 step 3):
// the first CAS from Undecided wins, and every later caller observes the
// same outcome. Idempotent in effect, even though only one CAS can
// actually succeed.
func decide(op *Op, doomed bool) {
	want := Successful
	if doomed {
		want = Failed
	}
	op.status.CompareAndSwap(int32(Undecided), int32(want))
}

// release is the cleanup phase (spec section 4.3 step 4): for each word
// this Op installed a descriptor at, resolve the cell to the new value (if
// the transaction succeeded) or back to the expected value (if it failed).
// Any thread may run this; it is idempotent, since a word whose descriptor
// no longer points at op has already been released by someone else.
func release(op *Op) {
	status := op.loadStatus()
	for i := 0; i < op.n(); i++ {
		for {
			cur := op.words[i].cell.Load()
			if cur.op != op {
				break // already released (by us or a helper)
			}
			resolved := op.expected[i]
			if status == Successful {
				resolved = op.newVals[i]
			}
			next := &cellState{value: resolved}
			if op.words[i].cell.CompareAndSwap(cur, next) {
				break
			}
			// lost the release race; reread and retry (or discover it's
			// already been released out from under us)
		}
	}
}
