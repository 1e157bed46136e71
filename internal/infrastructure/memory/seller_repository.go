package memory

import (
	"context"
	"sync"

	"github.com/execution-hub/dealflow/internal/domain/seller"
)

// SellerRepository is an in-process seller.Repository keyed by seller code.
type SellerRepository struct {
	mu      sync.RWMutex
	sellers map[string]*seller.Seller
}

func NewSellerRepository(sellers ...*seller.Seller) *SellerRepository {
	r := &SellerRepository{sellers: map[string]*seller.Seller{}}
	for _, s := range sellers {
		r.sellers[s.Code] = s
	}
	return r
}

func (r *SellerRepository) Create(_ context.Context, s *seller.Seller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sellers[s.Code] = &cp
	return nil
}

func (r *SellerRepository) FindByCode(_ context.Context, code string) (*seller.Seller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sellers[code]
	if !ok {
		return nil, seller.ErrNotFound
	}
	cp := *s
	return &cp, nil
}
