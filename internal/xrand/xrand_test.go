package xrand

import "testing"

func TestSource_Uint64_NotConstant(t *testing.T) {
	s := New()
	a := s.Uint64()
	b := s.Uint64()
	if a == b {
		t.Fatal(`expected successive draws to differ`)
	}
}

func TestSource_Intn_Bounds(t *testing.T) {
	s := New()
	for i := 0; i < 1000; i++ {
		v := s.Intn(7)
		if v < 0 || v >= 7 {
			t.Fatalf(`Intn(7) out of bounds: %d`, v)
		}
	}
}

func TestSource_Intn_PanicsOnNonPositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal(`expected panic for n <= 0`)
		}
	}()
	New().Intn(0)
}

func TestNew_DistinctSeeds(t *testing.T) {
	a := New().Uint64()
	b := New().Uint64()
	if a == b {
		t.Fatal(`expected distinct sources to diverge immediately`)
	}
}
