package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/fault"
)

var errListingNotPosted = errors.New("listing message was not posted")

// Ingest stores a new listing. Ingestion normally happens upstream; this is
// the glue the HTTP intake uses.
func (o *Orchestrator) Ingest(ctx context.Context, d *deal.Deal) error {
	d.SKU = strings.TrimSpace(d.SKU)
	d.Size = strings.TrimSpace(d.Size)
	if d.SKU == "" || d.Size == "" {
		return fault.InvalidState("A listing needs a SKU and a size.")
	}
	if d.Status == "" {
		d.Status = deal.StatusPending
	}
	if !d.Status.IsUnclaimed() {
		return fault.InvalidState("New listings must be Pending or Outsource.")
	}
	if err := o.deals.Create(ctx, d); err != nil {
		if errors.Is(err, deal.ErrDuplicate) {
			return fault.InvalidState("A listing with this id already exists.")
		}
		return fault.ExternalIO("create deal", err)
	}
	o.logger.Info().Str("deal_id", d.ID).Str("sku", d.SKU).Str("size", d.Size).Msg("listing ingested")
	return nil
}

// Advertise posts the public listing message with its claim button and
// stores the message pointers on the deal.
func (o *Orchestrator) Advertise(ctx context.Context, dealID, channelID string) (*deal.Deal, error) {
	if channelID == "" {
		channelID = o.settings.ListingChannelID
	}
	if channelID == "" {
		return nil, fault.InvalidState("No listing channel configured.")
	}
	d, err := o.load(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if !d.Status.IsUnclaimed() {
		return nil, fault.InvalidState("Only open listings can be advertised.")
	}
	ref, ok := o.notify.Send(ctx, channelID, o.listingMessage(d))
	if !ok {
		return nil, fault.ExternalIO("post listing", errListingNotPosted)
	}
	updated, err := o.deals.Update(ctx, d.ID, deal.NewPatch().
		Set(deal.FieldListingChannelID, ref.ChannelID).
		Set(deal.FieldListingMessageID, ref.MessageID))
	if err != nil {
		return nil, fault.ExternalIO("store listing pointer", err)
	}
	o.logger.Info().Str("deal_id", d.ID).Str("channel_id", ref.ChannelID).Msg("listing advertised")
	return updated, nil
}

// Reprice changes the current payouts of a listing and refreshes the
// listing message. A payout already locked by a claim is not touched.
func (o *Orchestrator) Reprice(ctx context.Context, dealID string, payout, payoutVAT0 decimal.NullDecimal) (res *deal.Deal, err error) {
	defer func() { o.record("reprice", err) }()
	if !payout.Valid && !payoutVAT0.Valid {
		return nil, fault.InvalidState("Send at least one payout to update.")
	}
	for _, v := range []decimal.NullDecimal{payout, payoutVAT0} {
		if v.Valid && v.Decimal.IsNegative() {
			return nil, fault.InvalidState("Payouts cannot be negative.")
		}
	}

	d, written, err := o.mutate(ctx, dealID, func(d *deal.Deal) (*deal.Patch, error) {
		if d.Status == deal.StatusCompleted || d.Status == deal.StatusCancelled {
			return nil, fault.InvalidState(fmt.Sprintf("A %s deal cannot be repriced.", d.Status))
		}
		p := deal.NewPatch()
		if payout.Valid && !sameAmount(d.CurrentPayout, payout) {
			p.Set(deal.FieldCurrentPayout, payout)
		}
		if payoutVAT0.Valid && !sameAmount(d.CurrentPayoutVAT0, payoutVAT0) {
			p.Set(deal.FieldCurrentPayoutVAT0, payoutVAT0)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	if !written {
		return d, nil
	}
	o.logger.Info().
		Str("deal_id", d.ID).
		Str("current_payout", d.CurrentPayout.Decimal.StringFixed(2)).
		Str("current_payout_vat0", d.CurrentPayoutVAT0.Decimal.StringFixed(2)).
		Msg("listing repriced")
	o.notify.UpdateListingFields(ctx, d, o.listingFields(d))
	return d, nil
}

func sameAmount(a, b decimal.NullDecimal) bool {
	return a.Valid == b.Valid && (!a.Valid || a.Decimal.Equal(b.Decimal))
}
