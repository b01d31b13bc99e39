package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemory(4)
	ctx := context.Background()

	for _, id := range []string{"gen_a", "gen_b", "gen_c"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	for _, want := range []string{"gen_a", "gen_b", "gen_c"} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if got != want {
			t.Errorf("dequeue = %s, want %s", got, want)
		}
	}
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	q := NewMemory(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatal("expected context error on empty queue")
	}
}
