package ringbuf

import "testing"

func TestRing_BasicPushAndWindow(t *testing.T) {
	r := New[float64](4)
	for _, v := range []float64{1, 2, 3} {
		r.Push(v)
	}
	if r.Len() != 3 {
		t.Fatalf("expected len=3, got %d", r.Len())
	}
	last, ok := r.Last()
	if !ok || last != 3 {
		t.Fatalf("expected last=3, got %v ok=%v", last, ok)
	}
	if got := r.Slice(); got[0] != 1 || got[2] != 3 {
		t.Fatalf("unexpected slice order: %v", got)
	}
}

func TestRing_EvictsOldestOnOverflow(t *testing.T) {
	r := New[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4) // evicts 1

	if r.Len() != 3 {
		t.Fatalf("expected len capped at 3, got %d", r.Len())
	}
	got := r.Slice()
	want := []int{2, 3, 4}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow count 1, got %d", r.Overflow())
	}
}

func TestRing_NthFromEnd(t *testing.T) {
	r := New[int](5)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	v, ok := r.NthFromEnd(0)
	if !ok || v != 5 {
		t.Fatalf("expected 5, got %v", v)
	}
	v, ok = r.NthFromEnd(4)
	if !ok || v != 1 {
		t.Fatalf("expected 1, got %v", v)
	}
	if _, ok := r.NthFromEnd(5); ok {
		t.Fatal("expected out-of-range NthFromEnd to return false")
	}
}

func TestRing_AtPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-range At")
		}
	}()
	r := New[int](2)
	r.Push(1)
	_ = r.At(5)
}
