package workers

import (
	"sync"

	"github.com/alimgiray/gscout/internal/models"
)

// ResultBuffer collects candidates produced by runs until a client drains them
type ResultBuffer struct {
	mu    sync.Mutex
	items []*models.Candidate
}

func NewResultBuffer() *ResultBuffer {
	return &ResultBuffer{}
}

// Push appends candidates to the buffer. Nil entries are ignored.
func (b *ResultBuffer) Push(items ...*models.Candidate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range items {
		if c != nil {
			b.items = append(b.items, c)
		}
	}
}

// Drain returns everything pushed since the last drain and empties the buffer.
// The result is never nil.
func (b *ResultBuffer) Drain() []*models.Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*models.Candidate, len(b.items))
	copy(out, b.items)
	b.items = nil
	return out
}

// Len reports how many candidates are waiting
func (b *ResultBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
