package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/execution-hub/dealflow/internal/application/guard"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/fault"
	"github.com/execution-hub/dealflow/internal/domain/notification"
	"github.com/execution-hub/dealflow/internal/domain/seller"
)

var errReservationLost = errors.New("claim reservation no longer held")

// ClaimRequest is a submitted claim form.
type ClaimRequest struct {
	DealID      string
	Actor       guard.Actor
	SellerCode  string
	PricingMode string
}

func alreadyProcessing() error {
	return fault.InvalidState("This deal is already being processed by another seller.")
}

// checkClaimable decides whether actor may claim d. A nil error with a
// non-empty channel id is an idempotent replay of actor's own claim.
func checkClaimable(d *deal.Deal, actor guard.Actor) (string, error) {
	if err := guard.CanClaim(d, actor); err != nil {
		return "", err
	}
	if d.Status == deal.StatusClaimProcessing {
		switch {
		case d.ClaimantID != actor.ID:
			return "", alreadyProcessing()
		case d.ClaimChannelID == "":
			return "", fault.InvalidState("Your claim is still being set up. Your deal channel will appear in a moment.")
		default:
			return d.ClaimChannelID, nil
		}
	}
	if !d.Status.IsUnclaimed() || d.ClaimChannelID != "" {
		return "", fault.InvalidState("This deal is no longer available to claim.")
	}
	return "", nil
}

// BeginClaim answers the public claim button: either the claim form or the
// actor's existing channel.
func (o *Orchestrator) BeginClaim(ctx context.Context, dealID string, actor guard.Actor) (*event.Form, *Result, error) {
	d, err := o.load(ctx, dealID)
	if err != nil {
		return nil, nil, err
	}
	channelID, err := checkClaimable(d, actor)
	if err != nil {
		return nil, nil, err
	}
	if channelID != "" {
		return nil, existingClaim(d), nil
	}
	return claimForm(d.ID), nil, nil
}

func existingClaim(d *deal.Deal) *Result {
	return &Result{
		Deal:      d,
		ChannelID: d.ClaimChannelID,
		Message:   "You already claimed this deal: " + channelMention(d.ClaimChannelID),
	}
}

// Claim reserves the deal for the actor, then creates the private deal
// channel. The reservation is the single write that moves the deal to
// Claim Processing; a failure after it is compensated by releasing it.
func (o *Orchestrator) Claim(ctx context.Context, req ClaimRequest) (res *Result, err error) {
	defer func() { o.record("claim", err) }()
	log := o.logger.With().Str("deal_id", req.DealID).Str("actor_id", req.Actor.ID).Logger()

	code, err := seller.NormalizeCode(req.SellerCode)
	if err != nil {
		return nil, fault.NotFound(fmt.Sprintf("Seller code %q is not valid. Use the code from your seller profile, e.g. SE-00001.", strings.TrimSpace(req.SellerCode)))
	}
	mode, err := deal.ParsePricingMode(req.PricingMode)
	if err != nil {
		return nil, fault.InvalidState("Pricing must be Margin, VAT21 or VAT0.")
	}
	s, err := o.sellers.FindByCode(ctx, code)
	if errors.Is(err, seller.ErrNotFound) {
		return nil, fault.NotFound(fmt.Sprintf("No seller found with code %s.", code))
	}
	if err != nil {
		return nil, fault.ExternalIO("find seller", err)
	}

	var existing string
	reserved, written, err := o.mutate(ctx, req.DealID, func(d *deal.Deal) (*deal.Patch, error) {
		channelID, err := checkClaimable(d, req.Actor)
		if err != nil {
			return nil, err
		}
		if existing = channelID; existing != "" {
			return nil, nil
		}
		payout, err := deal.LockPayout(d, mode)
		if err != nil {
			return nil, fault.InvalidState("This deal has no payout set yet. Please contact an admin.")
		}
		return deal.NewPatch().
			Set(deal.FieldStatus, deal.StatusClaimProcessing).
			Set(deal.FieldUnclaimedStatus, d.Status).
			Set(deal.FieldClaimantID, req.Actor.ID).
			Set(deal.FieldClaimantSellerRef, s.RecordID).
			Set(deal.FieldClaimantSellerCode, s.Code).
			Set(deal.FieldPricingMode, mode).
			Set(deal.FieldLockedPayout, decimal.NewNullDecimal(payout)).
			Set(deal.FieldClaimantConfirmed, false).
			Set(deal.FieldClaimedAt, timePtr(o.now())), nil
	})
	if err != nil {
		return nil, err
	}
	if !written {
		log.Info().Str("channel_id", existing).Msg("claim replayed by owner")
		return existingClaim(reserved), nil
	}
	log.Info().Str("seller_code", s.Code).Str("pricing_mode", string(mode)).Msg("deal reserved")

	channelID, err := o.openDealChannel(ctx, reserved, req.Actor)
	if err != nil {
		log.Error().Err(err).Msg("claim channel setup failed, releasing reservation")
		o.releaseReservation(ctx, reserved.ID, req.Actor.ID)
		return nil, fault.ExternalIO("open deal channel", err)
	}

	claimed, _, err := o.mutate(ctx, reserved.ID, func(d *deal.Deal) (*deal.Patch, error) {
		if d.Status != deal.StatusClaimProcessing || d.ClaimantID != req.Actor.ID || d.ClaimChannelID != "" {
			return nil, errReservationLost
		}
		return deal.NewPatch().Set(deal.FieldClaimChannelID, channelID), nil
	})
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("failed to link claim channel, releasing reservation")
		o.notify.DeleteChannel(context.WithoutCancel(ctx), channelID)
		o.releaseReservation(ctx, reserved.ID, req.Actor.ID)
		return nil, fault.ExternalIO("link deal channel", err)
	}

	o.refreshClaim(ctx, claimed)
	o.notify.SetListingClaimable(ctx, claimed, false)
	if ref, ok := o.notify.Send(ctx, channelID, o.claimMessage(claimed)); ok {
		if updated, err := o.deals.Update(ctx, claimed.ID, deal.NewPatch().Set(deal.FieldClaimMessageID, ref.MessageID)); err != nil {
			log.Warn().Err(err).Msg("failed to store claim message pointer")
		} else {
			claimed = updated
		}
	}
	log.Info().Str("channel_id", channelID).Msg("deal claimed")

	return &Result{
		Deal:      claimed,
		Changed:   true,
		ChannelID: channelID,
		Message:   "Deal claimed! Continue in " + channelMention(channelID),
	}, nil
}

func (o *Orchestrator) openDealChannel(ctx context.Context, d *deal.Deal, actor guard.Actor) (string, error) {
	categoryID, err := o.notify.CategoryWithRoom(ctx, o.settings.CategoryIDs, maxChannelsPerCategory)
	if err != nil {
		return "", err
	}
	return o.notify.CreatePrivateChannel(ctx, notification.ChannelSpec{
		Name:       notification.ChannelName(d.SKU, d.Size, d.ClaimantSellerCode),
		CategoryID: categoryID,
		Topic:      "Deal " + d.ID,
		MemberIDs:  []string{actor.ID},
		RoleIDs:    o.policy.ApproverRoleIDs,
	})
}

// releaseReservation undoes a reservation held by actorID that never got a
// channel. It runs even if ctx was cancelled.
func (o *Orchestrator) releaseReservation(ctx context.Context, dealID, actorID string) {
	ctx = context.WithoutCancel(ctx)
	_, _, err := o.mutate(ctx, dealID, func(d *deal.Deal) (*deal.Patch, error) {
		if d.Status != deal.StatusClaimProcessing || d.ClaimantID != actorID || d.ClaimChannelID != "" {
			return nil, nil
		}
		return deal.NewPatch().ClearClaim().Set(deal.FieldStatus, d.RestoreStatus()), nil
	})
	if err != nil {
		o.logger.Error().Err(err).Str("deal_id", dealID).Msg("failed to release claim reservation")
	}
}

// StartVerification shows the claimant the identity behind their seller code.
func (o *Orchestrator) StartVerification(ctx context.Context, dealID string, actor guard.Actor) (res *Result, err error) {
	defer func() { o.record("start_verification", err) }()

	d, err := o.load(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := guard.IsClaimant(d, actor); err != nil {
		return nil, err
	}
	if d.Status != deal.StatusClaimProcessing {
		return nil, fault.InvalidState("This deal is not in progress anymore.")
	}
	if d.ClaimantConfirmed {
		return &Result{Deal: d, Message: "Your identity is already confirmed. Upload your pictures in this channel."}, nil
	}
	s, err := o.sellers.FindByCode(ctx, d.ClaimantSellerCode)
	if errors.Is(err, seller.ErrNotFound) {
		return nil, fault.NotFound(fmt.Sprintf("Seller %s no longer exists. Cancel this claim and claim again.", d.ClaimantSellerCode))
	}
	if err != nil {
		return nil, fault.ExternalIO("find seller", err)
	}
	o.notify.Send(ctx, d.ClaimChannelID, verificationMessage(d, s.DisplayName))
	return &Result{Deal: d, Message: "Please confirm your identity below."}, nil
}

// ConfirmIdentity records that the claimant confirmed their seller identity.
func (o *Orchestrator) ConfirmIdentity(ctx context.Context, dealID string, actor guard.Actor) (res *Result, err error) {
	defer func() { o.record("confirm_identity", err) }()

	d, written, err := o.mutate(ctx, dealID, func(d *deal.Deal) (*deal.Patch, error) {
		if err := guard.IsClaimant(d, actor); err != nil {
			return nil, err
		}
		if d.Status != deal.StatusClaimProcessing {
			return nil, fault.InvalidState("This deal is not in progress anymore.")
		}
		if d.ClaimantConfirmed {
			return nil, nil
		}
		return deal.NewPatch().Set(deal.FieldClaimantConfirmed, true), nil
	})
	if err != nil {
		return nil, err
	}
	if written {
		o.refreshClaim(ctx, d)
		o.notify.Send(ctx, d.ClaimChannelID, o.evidenceMessage())
		o.logger.Info().Str("deal_id", d.ID).Str("actor_id", actor.ID).Msg("identity confirmed")
	}
	return &Result{Deal: d, Changed: written, Message: "Identity confirmed."}, nil
}

// RejectIdentity only points the claimant at cancel-and-reclaim.
func (o *Orchestrator) RejectIdentity(ctx context.Context, dealID string, actor guard.Actor) (*Result, error) {
	d, err := o.load(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := guard.IsClaimant(d, actor); err != nil {
		return nil, err
	}
	return &Result{
		Deal:    d,
		Message: "Wrong seller code? Press **Cancel Claim** and claim the deal again with the right code.",
	}, nil
}

// RecordEvidence adds image attachments posted in a claim channel to the
// deal's evidence set. Artifacts already in the set are not counted again.
// A nil result means the channel is not an active deal channel.
func (o *Orchestrator) RecordEvidence(ctx context.Context, channelID string, actor guard.Actor, attachments []event.Attachment) (res *Result, err error) {
	cc, err := o.claimContext(ctx, channelID)
	if err != nil || cc == nil {
		return nil, err
	}
	var images []event.Attachment
	for _, a := range attachments {
		if a.IsImage() && a.ID != "" {
			images = append(images, a)
		}
	}
	if len(images) == 0 {
		return nil, nil
	}
	defer func() { o.record("record_evidence", err) }()

	var prompt bool
	d, written, err := o.mutate(ctx, cc.DealID, func(d *deal.Deal) (*deal.Patch, error) {
		prompt = false
		if err := guard.IsConfirmedClaimant(d, actor); err != nil {
			return nil, err
		}
		if d.Status != deal.StatusClaimProcessing || d.ClaimChannelID != channelID {
			return nil, fault.InvalidState("This deal is not in progress anymore.")
		}
		ids := append([]string(nil), d.EvidenceIDs...)
		urls := append([]string(nil), d.EvidenceURLs...)
		for _, a := range images {
			if contains(ids, a.ID) {
				continue
			}
			ids = append(ids, a.ID)
			urls = append(urls, a.URL)
		}
		if len(ids) == len(d.EvidenceIDs) {
			return nil, nil
		}
		p := deal.NewPatch().Set(deal.FieldEvidenceIDs, ids).Set(deal.FieldEvidenceURLs, urls)
		if len(ids) >= o.settings.EvidenceThreshold && d.ApprovalPromptedAt == nil {
			p.Set(deal.FieldApprovalPromptedAt, timePtr(o.now()))
			prompt = true
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	if !written {
		return &Result{Deal: d, Message: fmt.Sprintf("Already counted (%d/%d).", d.EvidenceCount(), o.settings.EvidenceThreshold)}, nil
	}

	o.refreshClaim(ctx, d)
	if prompt {
		o.notify.Send(ctx, channelID, o.approvalPrompt(d))
		o.logger.Info().Str("deal_id", d.ID).Int("evidence", d.EvidenceCount()).Msg("deal ready for approval")
	}
	return &Result{
		Deal:    d,
		Changed: true,
		Message: fmt.Sprintf("📸 %d/%d pictures received.", d.EvidenceCount(), o.settings.EvidenceThreshold),
	}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
