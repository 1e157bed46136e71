package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/execution-hub/dealflow/internal/application/guard"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/fault"
	"github.com/execution-hub/dealflow/internal/domain/notification"
	"github.com/execution-hub/dealflow/internal/domain/session"
)

var alphanumeric = regexp.MustCompile(`^[A-Z0-9]+$`)

func notAwaitingPayment() error {
	return fault.InvalidState("This deal is not waiting for payment.")
}

func notInProgress() error {
	return fault.InvalidState("This deal is not in progress anymore.")
}

func uploadExpired(what string) error {
	return fault.Expired(fmt.Sprintf("Your %s upload window has expired. Press the upload button in your DMs to start again.", what))
}

// Approve authorizes a deal whose claimant is confirmed and whose evidence
// reached the threshold. The approval control at prompt is disabled whether
// or not the follow-up notifications succeed.
func (o *Orchestrator) Approve(ctx context.Context, dealID string, actor guard.Actor, prompt notification.MessageRef) (res *Result, err error) {
	defer func() { o.record("approve", err) }()
	if err := o.policy.CanApprove(actor); err != nil {
		return nil, err
	}

	var charge *decimal.Decimal
	d, written, err := o.mutate(ctx, dealID, func(d *deal.Deal) (*deal.Patch, error) {
		charge = nil
		if d.IsApproved() {
			return nil, nil
		}
		if d.Status != deal.StatusClaimProcessing {
			return nil, fault.InvalidState("Only deals in progress can be approved.")
		}
		if !d.ClaimantConfirmed {
			return nil, fault.InvalidState("The seller has not confirmed their identity yet.")
		}
		if d.EvidenceCount() < o.settings.EvidenceThreshold {
			return nil, fault.InvalidState(fmt.Sprintf("Only %d of %d pictures were uploaded.", d.EvidenceCount(), o.settings.EvidenceThreshold))
		}
		now := o.now()
		p := deal.NewPatch().
			Set(deal.FieldApprovedBy, actor.ID).
			Set(deal.FieldApprovedAt, timePtr(now))
		if d.RequesterID != "" {
			if amount, ok := deal.BuyerCharge(d); ok {
				charge = &amount
				p.Set(deal.FieldPaymentRequestedAt, timePtr(now))
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	o.notify.Edit(ctx, prompt, notification.WithButtons(disabled(approveButton(dealID))))
	if !written {
		return &Result{Deal: d, Message: "This deal is already approved."}, nil
	}

	log := o.logger.With().Str("deal_id", d.ID).Str("actor_id", actor.ID).Logger()
	log.Info().Msg("deal approved")
	o.notify.Send(ctx, d.ClaimChannelID, notification.Message{
		Title:       "Deal approved",
		Description: fmt.Sprintf("Approved by %s. Payout: **%s**", mention(actor.ID), o.money(d.LockedPayout.Decimal)),
		Color:       notification.ColorSuccess,
	})
	o.notify.FireOnce(ctx, notification.NewDealPayload(notification.WebhookDealApproved, d, o.now()))

	if charge != nil {
		o.openUpload(ctx, d.RequesterID, d.ID, session.UploadPaymentProof, "")
		if _, ok := o.notify.SendDirect(ctx, d.RequesterID, o.paymentRequest(d, *charge)); !ok {
			log.Warn().Msg("requester could not be notified about payment")
		}
	}
	return &Result{Deal: d, Changed: true, Message: "Deal approved."}, nil
}

func (o *Orchestrator) openUpload(ctx context.Context, actorID, dealID string, kind session.UploadKind, tracking string) *session.Upload {
	ttl := o.settings.ProofSessionTTL
	if kind == session.UploadShippingLabel {
		ttl = o.settings.LabelSessionTTL
	}
	u := session.NewUpload(actorID, dealID, kind, o.now(), ttl)
	u.TrackingCode = tracking
	if err := o.sessions.SetUpload(ctx, u); err != nil {
		o.logger.Warn().Err(err).Str("deal_id", dealID).Str("kind", string(kind)).Msg("failed to open upload session")
	}
	return u
}

func (o *Orchestrator) liveUpload(ctx context.Context, actorID, dealID string) *session.Upload {
	u, err := o.sessions.GetUpload(ctx, actorID, dealID)
	if err != nil {
		o.logger.Warn().Err(err).Str("deal_id", dealID).Msg("failed to read upload session")
		return nil
	}
	return u
}

// RequestProofUpload opens (or reopens) the requester's payment proof window.
func (o *Orchestrator) RequestProofUpload(ctx context.Context, dealID string, actor guard.Actor) (res *Result, err error) {
	defer func() { o.record("request_proof", err) }()

	d, err := o.load(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := guard.IsRequester(d, actor); err != nil {
		return nil, err
	}
	if d.HasProof() {
		return &Result{Deal: d, Message: "Your payment proof was already received."}, nil
	}
	if d.Status != deal.StatusClaimProcessing || !d.IsApproved() {
		return nil, notAwaitingPayment()
	}
	u := o.openUpload(ctx, actor.ID, d.ID, session.UploadPaymentProof, "")
	return &Result{
		Deal:    d,
		Changed: true,
		Message: fmt.Sprintf("Send your payment proof (image or PDF) in this DM before %s UTC.", u.ExpiresAt.UTC().Format("15:04")),
	}, nil
}

// UploadProof stores the requester's payment proof. A deal that already has
// a proof reference short-circuits to success.
func (o *Orchestrator) UploadProof(ctx context.Context, dealID string, actor guard.Actor, file event.Attachment) (res *Result, err error) {
	defer func() { o.record("upload_proof", err) }()

	d, written, err := o.mutate(ctx, dealID, func(d *deal.Deal) (*deal.Patch, error) {
		if err := guard.IsRequester(d, actor); err != nil {
			return nil, err
		}
		if d.HasProof() {
			return nil, nil
		}
		// A session outlives the claim it was opened for; the record decides.
		if d.Status != deal.StatusClaimProcessing || !d.IsApproved() {
			return nil, notAwaitingPayment()
		}
		u := o.liveUpload(ctx, actor.ID, d.ID)
		if u == nil || u.Kind != session.UploadPaymentProof {
			return nil, uploadExpired("payment proof")
		}
		if !file.IsImage() && !file.IsPDF() {
			return nil, fault.InvalidState("Payment proof must be an image or a PDF.")
		}
		return deal.NewPatch().
			Set(deal.FieldPaymentProofURL, file.URL).
			Set(deal.FieldPaymentProofAt, timePtr(o.now())), nil
	})
	if err != nil {
		return nil, err
	}
	if !written {
		return &Result{Deal: d, Message: "Your payment proof was already received."}, nil
	}

	if err := o.sessions.DeleteUpload(ctx, actor.ID, d.ID); err != nil {
		o.logger.Warn().Err(err).Str("deal_id", d.ID).Msg("failed to close proof session")
	}
	o.logger.Info().Str("deal_id", d.ID).Str("actor_id", actor.ID).Msg("payment proof received")
	o.notify.SendDirect(ctx, actor.ID, proofReceivedMessage(d))
	o.notify.Send(ctx, d.ClaimChannelID, notification.Message{
		Content: "💶 The buyer uploaded a payment proof.",
	})
	return &Result{Deal: d, Changed: true, Message: "Payment proof received, thank you!"}, nil
}

// RequestLabelUpload answers the Upload Label button with the tracking form.
func (o *Orchestrator) RequestLabelUpload(ctx context.Context, dealID string, actor guard.Actor) (*event.Form, *Result, error) {
	d, err := o.load(ctx, dealID)
	if err != nil {
		return nil, nil, err
	}
	if err := guard.IsRequester(d, actor); err != nil {
		return nil, nil, err
	}
	if d.HasLabel() {
		return nil, &Result{Deal: d, Message: "The shipping label was already received."}, nil
	}
	if d.Status != deal.StatusClaimProcessing {
		return nil, nil, notInProgress()
	}
	if !d.HasProof() {
		return nil, nil, fault.InvalidState("Upload your payment proof first.")
	}
	return o.trackingForm(d.ID), nil, nil
}

// NormalizeTrackingCode upper-cases code and checks it against the carrier format.
func (o *Orchestrator) NormalizeTrackingCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !strings.HasPrefix(c, o.settings.TrackingPrefix) || len(c) <= len(o.settings.TrackingPrefix) || !alphanumeric.MatchString(c) {
		return "", fault.InvalidState(fmt.Sprintf("Tracking codes start with %s and contain only letters and digits.", o.settings.TrackingPrefix))
	}
	return c, nil
}

// SubmitTrackingCode opens the label window holding code.
func (o *Orchestrator) SubmitTrackingCode(ctx context.Context, dealID string, actor guard.Actor, code string) (res *Result, err error) {
	defer func() { o.record("submit_tracking", err) }()

	d, err := o.load(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := guard.IsRequester(d, actor); err != nil {
		return nil, err
	}
	if d.HasLabel() {
		return &Result{Deal: d, Message: "The shipping label was already received."}, nil
	}
	if d.Status != deal.StatusClaimProcessing {
		return nil, notInProgress()
	}
	tracking, err := o.NormalizeTrackingCode(code)
	if err != nil {
		return nil, err
	}
	if !d.HasProof() {
		return nil, fault.InvalidState("Upload your payment proof first.")
	}
	if u := o.liveUpload(ctx, actor.ID, d.ID); u != nil && u.Kind == session.UploadPaymentProof {
		return nil, fault.InvalidState("Finish your payment proof upload first.")
	}
	u := o.openUpload(ctx, actor.ID, d.ID, session.UploadShippingLabel, tracking)
	return &Result{
		Deal:    d,
		Changed: true,
		Message: fmt.Sprintf("Tracking code %s saved. Send the shipping label (PDF or image) in this DM before %s UTC.", tracking, u.ExpiresAt.UTC().Format("15:04")),
	}, nil
}

// UploadLabel stores the shipping label and completes the deal. The
// fulfillment webhook fires only for the write that stored the label.
func (o *Orchestrator) UploadLabel(ctx context.Context, dealID string, actor guard.Actor, file event.Attachment) (res *Result, err error) {
	defer func() { o.record("upload_label", err) }()

	d, written, err := o.mutate(ctx, dealID, func(d *deal.Deal) (*deal.Patch, error) {
		if err := guard.IsRequester(d, actor); err != nil {
			return nil, err
		}
		if d.HasLabel() {
			return nil, nil
		}
		if d.Status != deal.StatusClaimProcessing {
			return nil, notInProgress()
		}
		if !d.HasProof() {
			return nil, fault.InvalidState("Upload your payment proof first.")
		}
		u := o.liveUpload(ctx, actor.ID, d.ID)
		if u == nil || u.Kind != session.UploadShippingLabel || u.TrackingCode == "" {
			return nil, uploadExpired("shipping label")
		}
		if !file.IsPDF() && !file.IsImage() {
			return nil, fault.InvalidState("Shipping labels must be a PDF or an image.")
		}
		if !d.CanTransitionTo(deal.StatusCompleted) {
			return nil, notInProgress()
		}
		return deal.NewPatch().
			Set(deal.FieldShippingLabelURL, file.URL).
			Set(deal.FieldTrackingCode, u.TrackingCode).
			Set(deal.FieldLabelUploadedAt, timePtr(o.now())).
			Set(deal.FieldStatus, deal.StatusCompleted), nil
	})
	if err != nil {
		return nil, err
	}
	if !written {
		return &Result{Deal: d, Message: "The shipping label was already received."}, nil
	}

	o.dropSessions(ctx, d, d.ClaimChannelID)
	o.logger.Info().Str("deal_id", d.ID).Str("tracking_code", d.TrackingCode).Msg("shipping label received, deal completed")
	o.notify.Send(ctx, d.ClaimChannelID, notification.Message{
		Title:       "Shipping label received",
		Description: fmt.Sprintf("Tracking code: `%s`\n%s", d.TrackingCode, d.ShippingLabelURL),
		Color:       notification.ColorSuccess,
	})
	o.notify.FireOnce(ctx, notification.NewDealPayload(notification.WebhookLabelUploaded, d, o.now()))
	return &Result{Deal: d, Changed: true, Message: "Shipping label received. The deal is complete!"}, nil
}
