package lockfree

import (
	"strings"
	"testing"
)

func TestInvariant_Panics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal(`expected panic`)
		}
		msg, ok := r.(string)
		if !ok || !strings.Contains(msg, "bst") || !strings.Contains(msg, "node escaped") {
			t.Fatalf(`unexpected panic value: %v`, r)
		}
	}()
	Invariant("bst", "node escaped both thread and child slots")
}

func TestSentinelErrors_Distinct(t *testing.T) {
	errs := []error{ErrEmpty, ErrNotFound, ErrAlreadyPresent, ErrCancelled}
	for i, a := range errs {
		for j, b := range errs {
			if i != j && a == b {
				t.Fatalf(`sentinel errors %d and %d are equal`, i, j)
			}
		}
	}
}
