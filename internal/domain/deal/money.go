package deal

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrPayoutUnavailable = errors.New("current payout fields are missing")
	ErrInvalidAmount     = errors.New("invalid monetary amount")
)

// LockPayout picks the payout for mode from the deal's current payout fields.
// Both current fields must be present so a later mode switch never finds a gap.
func LockPayout(d *Deal, mode PricingMode) (decimal.Decimal, error) {
	if !d.CurrentPayout.Valid || !d.CurrentPayoutVAT0.Valid {
		return decimal.Decimal{}, ErrPayoutUnavailable
	}
	var v decimal.Decimal
	switch mode {
	case PricingVAT0:
		v = d.CurrentPayoutVAT0.Decimal
	case PricingMargin, PricingVAT21:
		v = d.CurrentPayout.Decimal
	default:
		return decimal.Decimal{}, ErrUnknownPricingMode
	}
	return v.Round(2), nil
}

// BuyerCharge computes what the requester pays. Reverse-charge buyers outside
// the Netherlands pay the VAT0 price when the seller is not on margin.
func BuyerCharge(d *Deal) (decimal.Decimal, bool) {
	if d.PricingMode == PricingMargin {
		if !d.LockedBuyerPrice.Valid {
			return decimal.Decimal{}, false
		}
		return d.LockedBuyerPrice.Decimal.Round(2), true
	}
	country := strings.ToUpper(strings.TrimSpace(d.BuyerCountry))
	if strings.TrimSpace(d.BuyerVATID) != "" && country != "" && country != "NL" {
		if d.LockedBuyerPriceVAT0.Valid {
			return d.LockedBuyerPriceVAT0.Decimal.Round(2), true
		}
	}
	if !d.LockedBuyerPrice.Valid {
		return decimal.Decimal{}, false
	}
	return d.LockedBuyerPrice.Decimal.Round(2), true
}

// ParseMoney parses amounts as typed in the store ("€ 1 250,50", "199.9").
func ParseMoney(raw string) (decimal.NullDecimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, ErrInvalidAmount
	}
	return decimal.NewNullDecimal(v.Round(2)), nil
}

// FormatMoney renders v with two fraction digits.
func FormatMoney(symbol string, v decimal.Decimal) string {
	return symbol + v.StringFixed(2)
}
