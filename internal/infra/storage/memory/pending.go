package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vietddude/optionvault/internal/core/domain"
)

// PendingQueue is an in-process PendingWriteQueue. Writes are lost on restart.
type PendingQueue struct {
	mu     sync.Mutex
	writes map[string]*domain.PendingWrite
}

func NewPendingQueue() *PendingQueue {
	return &PendingQueue{writes: make(map[string]*domain.PendingWrite)}
}

func (q *PendingQueue) Add(ctx context.Context, w *domain.PendingWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *w
	q.writes[w.ID] = &cp
	return nil
}

func (q *PendingQueue) List(ctx context.Context) ([]*domain.PendingWrite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.PendingWrite, 0, len(q.writes))
	for _, w := range q.writes {
		cp := *w
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *domain.PendingWrite) int {
		if a.Attempts != b.Attempts {
			return a.Attempts - b.Attempts
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (q *PendingQueue) Resolve(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.writes, id)
	return nil
}

func (q *PendingQueue) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.writes), nil
}
