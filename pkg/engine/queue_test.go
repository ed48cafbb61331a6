package engine

import (
	"sync"
	"testing"
)

func TestInstallQueue_FIFO(t *testing.T) {
	q := NewInstallQueue()

	if !q.IsEmpty() {
		t.Fatal("expected new queue to be empty")
	}

	q.Enqueue("a", "b")
	q.Enqueue("c")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("expected %s, got empty queue", want)
		}
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}

	if _, ok := q.TryDequeue(); ok {
		t.Error("expected empty queue")
	}
}

func TestInstallQueue_KeepsDuplicates(t *testing.T) {
	q := NewInstallQueue()
	q.Enqueue("a", "a")

	if q.Len() != 2 {
		t.Errorf("expected 2 items, got %d", q.Len())
	}
}

func TestInstallQueue_Concurrent(t *testing.T) {
	q := NewInstallQueue()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue("x", "y")
		}()
	}
	wg.Wait()

	count := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		count++
	}

	if count != 100 {
		t.Errorf("expected 100 items, got %d", count)
	}
}
