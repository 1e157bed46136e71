package orchestrator

import (
	"context"
	"fmt"

	"github.com/execution-hub/dealflow/internal/application/guard"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/fault"
	"github.com/execution-hub/dealflow/internal/domain/notification"
)

// Cancel releases a claim: the claim linkage, evidence, approval and payment
// fields are cleared and the deal returns to the status it was claimed from.
// Cancelling a deal that is not claimed is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, dealID string, actor guard.Actor) (res *Result, err error) {
	defer func() { o.record("cancel", err) }()

	var before *deal.Deal
	d, written, err := o.mutate(ctx, dealID, func(d *deal.Deal) (*deal.Patch, error) {
		before = d
		if d.Status.IsUnclaimed() {
			return nil, nil
		}
		if d.Status != deal.StatusClaimProcessing {
			return nil, fault.InvalidState(fmt.Sprintf("A %s deal cannot be cancelled.", d.Status))
		}
		if err := o.policy.CanCancel(d, actor); err != nil {
			return nil, err
		}
		return deal.NewPatch().ClearClaim().Set(deal.FieldStatus, d.RestoreStatus()), nil
	})
	if err != nil {
		return nil, err
	}
	if !written {
		return &Result{Deal: d, Message: "This deal is not claimed anymore."}, nil
	}

	o.logger.Info().
		Str("deal_id", d.ID).
		Str("actor_id", actor.ID).
		Str("status", string(d.Status)).
		Msg("claim cancelled")
	o.dropSessions(ctx, before, before.ClaimChannelID)
	o.notify.SetListingClaimable(ctx, d, true)
	if before.ClaimChannelID != "" {
		o.notify.Send(ctx, before.ClaimChannelID, notification.Message{
			Title:       "Claim cancelled",
			Description: fmt.Sprintf("Cancelled by %s. This channel will be deleted shortly.", mention(actor.ID)),
			Color:       notification.ColorDanger,
		})
		o.notify.ScheduleChannelDeletion(before.ClaimChannelID)
	}
	return &Result{Deal: d, Changed: true, Message: "Claim cancelled. The deal is open again."}, nil
}

// Withdraw lets the requester take an unclaimed listing off the market.
func (o *Orchestrator) Withdraw(ctx context.Context, dealID string, actor guard.Actor) (res *Result, err error) {
	defer func() { o.record("withdraw", err) }()

	d, written, err := o.mutate(ctx, dealID, func(d *deal.Deal) (*deal.Patch, error) {
		if err := guard.IsRequester(d, actor); err != nil {
			return nil, err
		}
		switch {
		case d.Status == deal.StatusCancelled:
			return nil, nil
		case d.Status == deal.StatusClaimProcessing:
			return nil, fault.InvalidState("A seller is already working on this deal. Ask an admin to cancel the claim first.")
		case !d.CanTransitionTo(deal.StatusCancelled):
			return nil, fault.InvalidState(fmt.Sprintf("A %s deal cannot be withdrawn.", d.Status))
		}
		return deal.NewPatch().Set(deal.FieldStatus, deal.StatusCancelled), nil
	})
	if err != nil {
		return nil, err
	}
	if !written {
		return &Result{Deal: d, Message: "This listing was already withdrawn."}, nil
	}
	o.logger.Info().Str("deal_id", d.ID).Str("actor_id", actor.ID).Msg("listing withdrawn")
	o.notify.SetListingClaimable(ctx, d, false)
	return &Result{Deal: d, Changed: true, Message: "Your listing was withdrawn."}, nil
}
