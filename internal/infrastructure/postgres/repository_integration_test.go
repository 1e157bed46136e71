//go:build integration
// +build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/seller"
	"github.com/execution-hub/dealflow/internal/migrations"
)

// testPool connects to TEST_DATABASE_URL, or starts a throwaway Postgres 16
// container when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		pgC, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("dealflow"),
			tcpostgres.WithUsername("dealflow"),
			tcpostgres.WithPassword("dealflow"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Skipf("postgres container unavailable: %v", err)
		}
		t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })
		dsn, err = pgC.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := NewPool(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool, migrations.FS))
	// A second run must be a no-op.
	require.NoError(t, RunMigrations(ctx, pool, migrations.FS))

	_, err = pool.Exec(ctx, `TRUNCATE TABLE deals, sellers`)
	require.NoError(t, err)
	return pool
}

func newDeal(sku string) *deal.Deal {
	return &deal.Deal{
		SKU:                  sku,
		Size:                 "42",
		ProductName:          "Dunk Low",
		Status:               deal.StatusPending,
		CurrentPayout:        decimal.NewNullDecimal(decimal.RequireFromString("180.00")),
		CurrentPayoutVAT0:    decimal.NewNullDecimal(decimal.RequireFromString("148.76")),
		LockedBuyerPrice:     decimal.NewNullDecimal(decimal.RequireFromString("210.00")),
		LockedBuyerPriceVAT0: decimal.NewNullDecimal(decimal.RequireFromString("173.55")),
		RequesterID:          "buyer-1",
	}
}

func TestDealRepository_CreateFind(t *testing.T) {
	ctx := context.Background()
	repo := NewDealRepository(testPool(t))

	d := newDeal("DD1391-100")
	require.NoError(t, repo.Create(ctx, d))
	require.NotEmpty(t, d.ID)

	got, err := repo.Find(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, deal.StatusPending, got.Status)
	assert.True(t, got.CurrentPayout.Decimal.Equal(decimal.RequireFromString("180")))
	assert.False(t, got.LockedPayout.Valid)
	assert.Empty(t, got.EvidenceIDs)
	assert.Nil(t, got.ClaimedAt)

	assert.ErrorIs(t, repo.Create(ctx, &deal.Deal{ID: d.ID, SKU: "X", Size: "1", Status: deal.StatusPending}), deal.ErrDuplicate)

	_, err = repo.Find(ctx, "recmissing")
	assert.ErrorIs(t, err, deal.ErrNotFound)
}

func TestDealRepository_VersionedUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewDealRepository(testPool(t))
	d := newDeal("DD1391-100")
	require.NoError(t, repo.Create(ctx, d))

	now := time.Now().UTC().Truncate(time.Second)
	updated, err := repo.Update(ctx, d.ID, deal.NewPatch().
		Set(deal.FieldStatus, deal.StatusClaimProcessing).
		Set(deal.FieldUnclaimedStatus, deal.StatusPending).
		Set(deal.FieldClaimantID, "seller-a").
		Set(deal.FieldPricingMode, deal.PricingVAT0).
		Set(deal.FieldLockedPayout, d.CurrentPayoutVAT0).
		Set(deal.FieldClaimedAt, &now).
		Set(deal.FieldEvidenceIDs, []string{"a1", "a2"}).
		IfVersion(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "seller-a", updated.ClaimantID)
	assert.True(t, updated.LockedPayout.Decimal.Equal(decimal.RequireFromString("148.76")))
	assert.Equal(t, []string{"a1", "a2"}, updated.EvidenceIDs)
	require.NotNil(t, updated.ClaimedAt)
	assert.True(t, now.Equal(*updated.ClaimedAt))

	_, err = repo.Update(ctx, d.ID, deal.NewPatch().Set(deal.FieldClaimantID, "seller-b").IfVersion(1))
	assert.ErrorIs(t, err, deal.ErrConflict)

	_, err = repo.Update(ctx, "recmissing", deal.NewPatch().Set(deal.FieldClaimantID, "x").IfVersion(1))
	assert.ErrorIs(t, err, deal.ErrNotFound)

	_, err = repo.Update(ctx, d.ID, deal.NewPatch().Set(deal.FieldClaimantID, 7))
	assert.Error(t, err)

	cleared, err := repo.Update(ctx, d.ID, deal.NewPatch().ClearClaim().Set(deal.FieldStatus, deal.StatusPending).IfVersion(2))
	require.NoError(t, err)
	assert.Equal(t, deal.StatusPending, cleared.Status)
	assert.Empty(t, cleared.ClaimantID)
	assert.False(t, cleared.LockedPayout.Valid)
	assert.Nil(t, cleared.ClaimedAt)
	assert.Empty(t, cleared.EvidenceIDs)
}

func TestDealRepository_Query(t *testing.T) {
	ctx := context.Background()
	repo := NewDealRepository(testPool(t))

	old := time.Now().UTC().Add(-48 * time.Hour)
	stale := newDeal("STALE")
	stale.CreatedAt = old
	claimed := newDeal("CLAIMED")
	claimed.CreatedAt = old
	fresh := newDeal("FRESH")
	outsourced := newDeal("OUTSOURCED")
	outsourced.Status = deal.StatusOutsource
	outsourced.CreatedAt = old.Add(time.Hour)
	for _, d := range []*deal.Deal{stale, claimed, fresh, outsourced} {
		require.NoError(t, repo.Create(ctx, d))
	}
	_, err := repo.Update(ctx, claimed.ID, deal.NewPatch().
		Set(deal.FieldStatus, deal.StatusClaimProcessing).
		Set(deal.FieldClaimChannelID, "chan-1"))
	require.NoError(t, err)

	got, err := repo.Query(ctx, deal.ExpiryCandidates(24*time.Hour, 10))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, stale.ID, got[0].ID)
	assert.Equal(t, outsourced.ID, got[1].ID)

	got, err = repo.Query(ctx, deal.ExpiryCandidates(24*time.Hour, 1))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = repo.Query(ctx, deal.Query{Where: deal.And{
		deal.Eq{Field: deal.FieldClaimChannelID, Value: "chan-1"},
		deal.Eq{Field: deal.FieldStatus, Value: deal.StatusClaimProcessing},
	}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, claimed.ID, got[0].ID)

	got, err = repo.Query(ctx, deal.Query{Where: deal.Or{
		deal.Eq{Field: deal.FieldSKU, Value: "FRESH"},
		deal.NotBlank{Field: deal.FieldClaimChannelID},
	}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.Query(ctx, deal.Query{Where: deal.Blank{Field: deal.FieldLockedPayout}})
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = repo.Query(ctx, deal.Query{Where: deal.Eq{Field: "password", Value: "x"}})
	assert.Error(t, err)
}

func TestSellerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSellerRepository(testPool(t))

	require.NoError(t, repo.Create(ctx, &seller.Seller{RecordID: "recS1", Code: "SE-00001", DisplayName: "Alpha"}))
	require.NoError(t, repo.Create(ctx, &seller.Seller{RecordID: "recS1", Code: "SE-00001", DisplayName: "Alpha Trading"}))

	got, err := repo.FindByCode(ctx, "SE-00001")
	require.NoError(t, err)
	assert.Equal(t, "recS1", got.RecordID)
	assert.Equal(t, "Alpha Trading", got.DisplayName)

	_, err = repo.FindByCode(ctx, "SE-99999")
	assert.ErrorIs(t, err, seller.ErrNotFound)
}
