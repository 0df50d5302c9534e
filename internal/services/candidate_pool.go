package services

import (
	"context"
	"iter"
	"sync"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/internal/repositories"
)

// CandidatePool deduplicates candidates across the store and, per run, across dispatches
type CandidatePool struct {
	repo *repositories.CandidateRepository

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewCandidatePool(repo *repositories.CandidateRepository) *CandidatePool {
	return &CandidatePool{repo: repo, seen: make(map[string]struct{})}
}

// NewRun returns a pool view with an empty seen set that shares the store
func (p *CandidatePool) NewRun() *CandidatePool {
	return NewCandidatePool(p.repo)
}

// IsKnown reports whether the stored candidate already has an annotation or a prediction
func (p *CandidatePool) IsKnown(ctx context.Context, id string) (bool, error) {
	return p.repo.IsKnown(ctx, id)
}

// KnownIDs returns every annotated or predicted login
func (p *CandidatePool) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	return p.repo.KnownIDs(ctx)
}

// Upsert merges c into the store by login. Annotations are never touched.
func (p *CandidatePool) Upsert(ctx context.Context, c *models.Candidate) error {
	return p.repo.Upsert(ctx, c)
}

// MarkSeen records a dispatch in this run. It returns false if id was already dispatched.
func (p *CandidatePool) MarkSeen(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[id]; ok {
		return false
	}
	p.seen[id] = struct{}{}
	return true
}

// UnannotatedWithoutPrediction iterates stored candidates that have neither label nor score.
// Iteration stops at the first store error, which is yielded once.
func (p *CandidatePool) UnannotatedWithoutPrediction(ctx context.Context, pageSize int) iter.Seq2[*models.Candidate, error] {
	if pageSize <= 0 {
		pageSize = 100
	}
	return func(yield func(*models.Candidate, error) bool) {
		for offset := 0; ; offset += pageSize {
			page, err := p.repo.ListUnannotatedWithoutPrediction(ctx, offset, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, c := range page {
				if !yield(c, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}
