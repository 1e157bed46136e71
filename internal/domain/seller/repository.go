package seller

import "context"

// Repository looks up verified parties.
type Repository interface {
	Create(ctx context.Context, s *Seller) error
	FindByCode(ctx context.Context, code string) (*Seller, error)
}
