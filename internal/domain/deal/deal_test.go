package deal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestParsePricingMode(t *testing.T) {
	cases := map[string]PricingMode{
		"margin": PricingMargin,
		"Margin": PricingMargin,
		"vat21":  PricingVAT21,
		"21%":    PricingVAT21,
		" 21 ":   PricingVAT21,
		"VAT0":   PricingVAT0,
		"0":      PricingVAT0,
		"0%":     PricingVAT0,
		"VAT 0":  PricingVAT0,
	}
	for in, want := range cases {
		got, err := ParsePricingMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePricingMode("vat9")
	assert.ErrorIs(t, err, ErrUnknownPricingMode)
}

func TestLockPayout(t *testing.T) {
	d := &Deal{CurrentPayout: money("150"), CurrentPayoutVAT0: money("123.967")}

	t.Run("margin uses margin payout", func(t *testing.T) {
		v, err := LockPayout(d, PricingMargin)
		require.NoError(t, err)
		assert.Equal(t, "150.00", v.StringFixed(2))
	})

	t.Run("vat21 uses margin payout", func(t *testing.T) {
		v, err := LockPayout(d, PricingVAT21)
		require.NoError(t, err)
		assert.Equal(t, "150.00", v.StringFixed(2))
	})

	t.Run("vat0 uses vat0 payout rounded", func(t *testing.T) {
		v, err := LockPayout(d, PricingVAT0)
		require.NoError(t, err)
		assert.Equal(t, "123.97", v.StringFixed(2))
	})

	t.Run("missing current payout", func(t *testing.T) {
		_, err := LockPayout(&Deal{CurrentPayout: money("10")}, PricingMargin)
		assert.ErrorIs(t, err, ErrPayoutUnavailable)
	})
}

func TestBuyerCharge(t *testing.T) {
	base := func() *Deal {
		return &Deal{LockedBuyerPrice: money("200"), LockedBuyerPriceVAT0: money("165.29")}
	}

	t.Run("margin always pays buyer price", func(t *testing.T) {
		d := base()
		d.PricingMode = PricingMargin
		d.BuyerVATID = "DE123"
		d.BuyerCountry = "DE"
		v, ok := BuyerCharge(d)
		require.True(t, ok)
		assert.Equal(t, "200.00", v.StringFixed(2))
	})

	t.Run("foreign vat registered buyer pays vat0 price", func(t *testing.T) {
		d := base()
		d.PricingMode = PricingVAT21
		d.BuyerVATID = "DE123"
		d.BuyerCountry = "de"
		v, ok := BuyerCharge(d)
		require.True(t, ok)
		assert.Equal(t, "165.29", v.StringFixed(2))
	})

	t.Run("dutch buyer pays buyer price", func(t *testing.T) {
		d := base()
		d.PricingMode = PricingVAT0
		d.BuyerVATID = "NL123"
		d.BuyerCountry = "NL"
		v, ok := BuyerCharge(d)
		require.True(t, ok)
		assert.Equal(t, "200.00", v.StringFixed(2))
	})

	t.Run("falls back when vat0 price missing", func(t *testing.T) {
		d := &Deal{PricingMode: PricingVAT0, BuyerVATID: "BE1", BuyerCountry: "BE", LockedBuyerPrice: money("99.5")}
		v, ok := BuyerCharge(d)
		require.True(t, ok)
		assert.Equal(t, "99.50", v.StringFixed(2))
	})

	t.Run("no price", func(t *testing.T) {
		_, ok := BuyerCharge(&Deal{PricingMode: PricingMargin})
		assert.False(t, ok)
	})
}

func TestParseMoney(t *testing.T) {
	v, err := ParseMoney("€ 1250,5")
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.Equal(t, "1250.50", v.Decimal.StringFixed(2))

	v, err = ParseMoney("")
	require.NoError(t, err)
	assert.False(t, v.Valid)

	_, err = ParseMoney("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Equal(t, "€7.00", FormatMoney("€", decimal.NewFromInt(7)))
}

func TestDeal_CanTransitionTo(t *testing.T) {
	d := &Deal{Status: StatusPending}
	assert.True(t, d.CanTransitionTo(StatusClaimProcessing))
	assert.True(t, d.CanTransitionTo(StatusExpired))
	assert.False(t, d.CanTransitionTo(StatusCompleted))

	d.Status = StatusClaimProcessing
	assert.True(t, d.CanTransitionTo(StatusOutsource))
	assert.True(t, d.CanTransitionTo(StatusCompleted))
	assert.False(t, d.CanTransitionTo(StatusExpired))

	d.Status = StatusCompleted
	assert.False(t, d.CanTransitionTo(StatusPending))
}

func TestDeal_RestoreStatus(t *testing.T) {
	assert.Equal(t, StatusPending, (&Deal{UnclaimedStatus: StatusPending}).RestoreStatus())
	assert.Equal(t, StatusOutsource, (&Deal{}).RestoreStatus())
	assert.Equal(t, StatusOutsource, (&Deal{UnclaimedStatus: StatusExpired}).RestoreStatus())
}

func TestPatch_Apply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &Deal{ID: "rec1", SKU: "DD1391-100", Size: "42", Status: StatusPending}

	p := NewPatch().
		Set(FieldStatus, StatusClaimProcessing).
		Set(FieldClaimantID, "u-1").
		Set(FieldLockedPayout, money("80")).
		Set(FieldClaimedAt, &now).
		Set(FieldEvidenceIDs, []string{"a", "b"})
	require.NoError(t, p.Apply(d))

	assert.Equal(t, StatusClaimProcessing, d.Status)
	assert.Equal(t, "u-1", d.ClaimantID)
	assert.Equal(t, "80.00", d.LockedPayout.Decimal.StringFixed(2))
	assert.Equal(t, now, *d.ClaimedAt)
	assert.Equal(t, 2, d.EvidenceCount())
	assert.True(t, d.HasEvidence("b"))

	t.Run("rejects wrong value type", func(t *testing.T) {
		err := NewPatch().Set(FieldStatus, "Pending").Apply(d)
		assert.Error(t, err)
	})

	t.Run("rejects classification fields", func(t *testing.T) {
		err := NewPatch().Set(FieldSKU, "X").Apply(d)
		assert.Error(t, err)
	})

	t.Run("clear claim keeps classification", func(t *testing.T) {
		require.NoError(t, NewPatch().ClearClaim().Apply(d))
		assert.Empty(t, d.ClaimantID)
		assert.False(t, d.LockedPayout.Valid)
		assert.Nil(t, d.ClaimedAt)
		assert.Zero(t, d.EvidenceCount())
		assert.Equal(t, "DD1391-100", d.SKU)
		assert.Equal(t, "42", d.Size)
	})
}

func TestExpiryCandidatesExpression(t *testing.T) {
	expr, params := Expression(ExpiryCandidates(24*time.Hour, 100).Where)

	assert.Equal(t, "(status IN (p0, p1) && claim_channel_id == '' && (created_at_age_seconds >= 0 && created_at_age_seconds >= p2))", expr)
	assert.Equal(t, "Pending", params["p0"])
	assert.Equal(t, "Outsource", params["p1"])
	assert.Equal(t, float64(86400), params["p2"])
}

func TestFieldValues(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	d := &Deal{ID: "rec1", Status: StatusPending, CreatedAt: now.Add(-30 * time.Hour)}

	v := d.FieldValues(now)
	assert.Equal(t, "Pending", v["status"])
	assert.Equal(t, "", v["claim_channel_id"])
	assert.Equal(t, float64(30*3600), v["created_at_age_seconds"])
	assert.Equal(t, float64(-1), v["approved_at_age_seconds"])
	assert.Equal(t, "", v["locked_payout"])
}
