package queue

import "context"

// Memory is a channel-backed Queue for tests and single-process development.
type Memory struct {
	jobs chan string
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 64
	}
	return &Memory{jobs: make(chan string, capacity)}
}

func (m *Memory) Enqueue(ctx context.Context, requestID string) error {
	select {
	case m.jobs <- requestID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-m.jobs:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Len reports the pending job count.
func (m *Memory) Len() int {
	return len(m.jobs)
}

var _ Queue = (*Memory)(nil)
