package ringbuf

import (
	"sync"
	"testing"
	"time"
)

type item struct {
	Name string
	N    int
}

func TestRing_BasicPushPop(t *testing.T) {
	r := New[item](4) // rounds to 4

	if !r.Push(item{Name: "A", N: 100}) {
		t.Fatal("push A should succeed")
	}
	if !r.Push(item{Name: "B", N: 200}) {
		t.Fatal("push B should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Name != "A" {
		t.Fatalf("expected A, got %v ok=%v", got.Name, ok)
	}

	got, ok = r.Pop()
	if !ok || got.Name != "B" {
		t.Fatalf("expected B, got %v ok=%v", got.Name, ok)
	}

	_, ok = r.Pop()
	if ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New[string](2) // capacity = 2

	r.Push("1")
	r.Push("2")

	// Buffer is full
	if r.Push("3") {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
	if v, _ := r.Pop(); v != "1" {
		t.Fatalf("dropped push must not overwrite: got %q", v)
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	if c := New[int](0).Cap(); c != 2 {
		t.Fatalf("expected cap=2, got %d", c)
	}
	if c := New[int](5).Cap(); c != 8 {
		t.Fatalf("expected cap=8, got %d", c)
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)

	// Fill and drain multiple times to test wraparound
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(round*10 + i) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			v, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if v != round*10+i {
				t.Fatalf("round %d pop %d: expected %d, got %d", round, i, round*10+i, v)
			}
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New[int](1024)

	var wg sync.WaitGroup
	wg.Add(2)

	// Producer
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(i) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	// Consumer
	received := make([]int, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			if v, ok := r.Pop(); ok {
				received = append(received, v)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	// Verify ordering
	for i, v := range received {
		if v != i {
			t.Fatalf("at index %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
