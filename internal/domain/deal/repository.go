package deal

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("deal not found")
	ErrConflict  = errors.New("deal was modified concurrently")
	ErrDuplicate = errors.New("deal already exists")
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Repository is the record store adapter for deals.
type Repository interface {
	Create(ctx context.Context, d *Deal) error
	Find(ctx context.Context, id string) (*Deal, error)
	Query(ctx context.Context, q Query) ([]*Deal, error)
	// Update applies p and returns the updated record. A patch carrying an
	// expected version fails with ErrConflict, leaving the record untouched,
	// when the stored version differs.
	Update(ctx context.Context, id string, p *Patch) (*Deal, error)
}
