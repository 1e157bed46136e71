package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/execution-hub/dealflow/internal/domain/deal"
)

// DealRepository is an in-process deal.Repository.
type DealRepository struct {
	mu    sync.RWMutex
	deals map[string]*deal.Deal
	now   func() time.Time
}

// NewDealRepository creates an empty store. A nil clock defaults to time.Now.
func NewDealRepository(now func() time.Time) *DealRepository {
	if now == nil {
		now = time.Now
	}
	return &DealRepository{deals: map[string]*deal.Deal{}, now: now}
}

func (r *DealRepository) Create(_ context.Context, d *deal.Deal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = "rec" + uuid.NewString()
	}
	if _, ok := r.deals[d.ID]; ok {
		return deal.ErrDuplicate
	}
	now := r.now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	d.Version = 1
	r.deals[d.ID] = d.Clone()
	return nil
}

func (r *DealRepository) Find(_ context.Context, id string) (*deal.Deal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deals[id]
	if !ok {
		return nil, deal.ErrNotFound
	}
	return d.Clone(), nil
}

func (r *DealRepository) Query(_ context.Context, q deal.Query) ([]*deal.Deal, error) {
	filter, err := compileFilter(q.Where)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	r.mu.RLock()
	candidates := make([]*deal.Deal, 0, len(r.deals))
	for _, d := range r.deals {
		candidates = append(candidates, d.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	now := r.now()
	var out []*deal.Deal
	for _, d := range candidates {
		ok, err := filter.matches(d.FieldValues(now))
		if err != nil {
			return nil, fmt.Errorf("evaluate filter on %s: %w", d.ID, err)
		}
		if !ok {
			continue
		}
		out = append(out, d)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (r *DealRepository) Update(_ context.Context, id string, p *deal.Patch) (*deal.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.deals[id]
	if !ok {
		return nil, deal.ErrNotFound
	}
	if v := p.ExpectedVersion(); v != 0 && v != current.Version {
		return nil, deal.ErrConflict
	}
	next := current.Clone()
	if err := p.Apply(next); err != nil {
		return nil, err
	}
	next.Version++
	next.UpdatedAt = r.now().UTC()
	r.deals[id] = next
	return next.Clone(), nil
}
