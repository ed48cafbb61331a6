package engine

import "sync"

// InstallQueue is a FIFO of identifiers awaiting installation.
// All methods are safe for concurrent use.
type InstallQueue struct {
	mu    sync.Mutex
	items []string
}

// NewInstallQueue creates an empty queue.
func NewInstallQueue() *InstallQueue {
	return &InstallQueue{items: make([]string, 0)}
}

// Enqueue appends identifiers in order. Duplicates are kept.
func (q *InstallQueue) Enqueue(ids ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, ids...)
}

// TryDequeue removes and returns the oldest identifier.
func (q *InstallQueue) TryDequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false
	}
	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return id, true
}

// IsEmpty reports whether the queue holds no identifiers.
func (q *InstallQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of queued identifiers.
func (q *InstallQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
