package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/execution-hub/dealflow/internal/domain/seller"
)

// SellerRepository implements seller.Repository.
type SellerRepository struct {
	pool *pgxpool.Pool
}

func NewSellerRepository(pool *pgxpool.Pool) *SellerRepository {
	return &SellerRepository{pool: pool}
}

// Create inserts s, or refreshes the row holding the same code.
func (r *SellerRepository) Create(ctx context.Context, s *seller.Seller) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sellers (record_id, code, display_name, platform_user_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (code) DO UPDATE SET display_name=EXCLUDED.display_name, platform_user_id=EXCLUDED.platform_user_id
	`, s.RecordID, s.Code, s.DisplayName, s.PlatformUserID, s.CreatedAt)
	return err
}

func (r *SellerRepository) FindByCode(ctx context.Context, code string) (*seller.Seller, error) {
	var s seller.Seller
	err := r.pool.QueryRow(ctx, `
		SELECT record_id, code, display_name, platform_user_id, created_at
		FROM sellers WHERE code=$1
	`, code).Scan(&s.RecordID, &s.Code, &s.DisplayName, &s.PlatformUserID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, seller.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
