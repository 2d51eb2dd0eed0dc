// Package lockfree is an umbrella for a family of concurrent, mostly
// lock-free data structures built around atomic compare-and-swap: an
// ordered linked list (package list), a split-ordered hash set built on it
// (package hashset), a two-anchor double-ended queue (package deque), an
// elimination-backoff layer that the deque uses at both ends (package
// elimination), and a multi-word CAS algorithm backing a threaded binary
// search tree (package mcas, package bst).
//
// Each subpackage is independently usable; this package only holds the
// error vocabulary (spec section 7) shared across all of them.
package lockfree

import (
	"errors"

	"github.com/joeycumines/go-lockfree/internal/diag"
)

// Sentinel errors naming spec section 7's error conditions. CAS-retry
// failures are never surfaced as errors. Of these, only ErrCancelled is
// actually returned by a container; the empty, not-found and
// already-present conditions are reported as false/ok=false results.
var (
	// ErrEmpty names a pop/first operation on an empty container; the
	// deque reports that condition as ok=false rather than returning it.
	ErrEmpty = errors.New(`lockfree: container is empty`)

	// ErrNotFound names a remove/get operation for an absent key; the
	// containers report that condition as a false/ok=false result.
	ErrNotFound = errors.New(`lockfree: key not found`)

	// ErrAlreadyPresent names an add operation on a set that already holds
	// the given key; the containers report that condition as false.
	ErrAlreadyPresent = errors.New(`lockfree: key already present`)

	// ErrCancelled is returned when a bounded wait (the elimination array's
	// backoff sleep) is interrupted via context cancellation. Callers
	// should treat this as spec section 7 describes: propagate, and retry
	// at a higher level, not as an algorithmic failure.
	ErrCancelled = errors.New(`lockfree: operation cancelled`)
)

// Invariant panics with a spec section 7 "Invariant" condition: an internal
// inconsistency that should never occur given correct CAS protocol use. It
// is never used for ordinary races; those retry instead.
func Invariant(component, detail string) {
	diag.Log(diag.Entry{Level: diag.LevelFatal, Component: component, Message: detail})
	panic(`lockfree: invariant violated in ` + component + `: ` + detail)
}
