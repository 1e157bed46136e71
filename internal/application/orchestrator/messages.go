package orchestrator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/execution-hub/dealflow/internal/application/dispatcher"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/notification"
)

func button(label string, action event.Action, dealID string, style notification.ButtonStyle) notification.Button {
	return notification.Button{
		Label:    label,
		CustomID: event.NewToken(action, dealID).String(),
		Style:    style,
	}
}

func disabled(b notification.Button) notification.Button {
	b.Disabled = true
	return b
}

func mention(userID string) string {
	if userID == "" {
		return "unknown"
	}
	return "<@" + userID + ">"
}

func channelMention(channelID string) string {
	return "<#" + channelID + ">"
}

func dealTitle(d *deal.Deal) string {
	if d.ProductName != "" {
		return d.ProductName
	}
	return d.SKU
}

func (o *Orchestrator) money(v decimal.Decimal) string {
	return deal.FormatMoney(o.settings.CurrencySymbol, v)
}

func (o *Orchestrator) listingMessage(d *deal.Deal) notification.Message {
	return notification.Message{
		Title:    dealTitle(d),
		Color:    notification.ColorNeutral,
		ImageURL: d.ImageURL,
		Fields:   o.listingFields(d),
		Buttons:  []notification.Button{dispatcher.ClaimButton(d.ID, true)},
	}
}

func (o *Orchestrator) listingFields(d *deal.Deal) []notification.Field {
	fields := []notification.Field{
		{Name: "SKU", Value: d.SKU, Inline: true},
		{Name: "Size", Value: d.Size, Inline: true},
	}
	if d.Brand != "" {
		fields = append(fields, notification.Field{Name: "Brand", Value: d.Brand, Inline: true})
	}
	if d.CurrentPayout.Valid {
		fields = append(fields, notification.Field{Name: "Payout", Value: o.money(d.CurrentPayout.Decimal), Inline: true})
	}
	if d.CurrentPayoutVAT0.Valid {
		fields = append(fields, notification.Field{Name: "Payout (VAT 0%)", Value: o.money(d.CurrentPayoutVAT0.Decimal), Inline: true})
	}
	return fields
}

func claimButtons(dealID string) []notification.Button {
	return []notification.Button{
		button("Process Claim", event.ActionStartVerification, dealID, notification.StylePrimary),
		button("Cancel Claim", event.ActionCancel, dealID, notification.StyleDanger),
	}
}

func (o *Orchestrator) claimMessage(d *deal.Deal) notification.Message {
	return notification.Message{
		Content:     mention(d.ClaimantID),
		Title:       fmt.Sprintf("Claimed: %s (%s)", dealTitle(d), d.Size),
		Description: "Press **Process Claim** to verify your seller identity.",
		Color:       notification.ColorNeutral,
		ImageURL:    d.ImageURL,
		Fields: []notification.Field{
			{Name: "SKU", Value: d.SKU, Inline: true},
			{Name: "Size", Value: d.Size, Inline: true},
			{Name: "Seller", Value: d.ClaimantSellerCode, Inline: true},
			{Name: "Pricing", Value: string(d.PricingMode), Inline: true},
			{Name: "Payout", Value: o.money(d.LockedPayout.Decimal), Inline: true},
		},
		Buttons: claimButtons(d.ID),
	}
}

func verificationMessage(d *deal.Deal, displayName string) notification.Message {
	return notification.Message{
		Title:       "Confirm your seller identity",
		Description: fmt.Sprintf("Seller code **%s** belongs to **%s**. Is this you?", d.ClaimantSellerCode, displayName),
		Color:       notification.ColorNeutral,
		Buttons: []notification.Button{
			button("Yes, that's me", event.ActionConfirmIdentity, d.ID, notification.StyleSuccess),
			button("No", event.ActionRejectIdentity, d.ID, notification.StyleDanger),
		},
	}
}

func (o *Orchestrator) evidenceMessage() notification.Message {
	return notification.Message{
		Title: "Upload pictures",
		Description: fmt.Sprintf("Post at least %d pictures of the item in this channel: "+
			"box label, both sides, sole, inside tag and insoles.", o.settings.EvidenceThreshold),
		Color: notification.ColorNeutral,
	}
}

func approveButton(dealID string) notification.Button {
	return button("Approve Deal", event.ActionApprove, dealID, notification.StyleSuccess)
}

func (o *Orchestrator) approvalPrompt(d *deal.Deal) notification.Message {
	return notification.Message{
		Title:       "Ready for approval",
		Description: fmt.Sprintf("%d pictures received. An admin can now approve this deal.", d.EvidenceCount()),
		Color:       notification.ColorSuccess,
		Buttons:     []notification.Button{approveButton(d.ID)},
	}
}

func (o *Orchestrator) paymentRequest(d *deal.Deal, amount decimal.Decimal) notification.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Your deal for **%s** (%s) was approved.\n", dealTitle(d), d.Size)
	fmt.Fprintf(&b, "Amount due: **%s**\n", o.money(amount))
	p := o.settings.Payment
	if p.IBAN != "" {
		fmt.Fprintf(&b, "IBAN: `%s`\n", p.IBAN)
	}
	if p.Beneficiary != "" {
		fmt.Fprintf(&b, "Beneficiary: %s\n", p.Beneficiary)
	}
	if p.PayPalEmail != "" {
		fmt.Fprintf(&b, "PayPal: %s\n", p.PayPalEmail)
	}
	b.WriteString("After paying, press **Upload Payment Proof** and send the receipt here.")
	return notification.Message{
		Title:       "Payment request",
		Description: b.String(),
		Color:       notification.ColorNeutral,
		Buttons:     []notification.Button{button("Upload Payment Proof", event.ActionRequestProof, d.ID, notification.StylePrimary)},
	}
}

func proofReceivedMessage(d *deal.Deal) notification.Message {
	return notification.Message{
		Title:       "Payment proof received",
		Description: "Once the item is ready to ship, press **Upload Label** and enter the tracking code.",
		Color:       notification.ColorSuccess,
		Buttons:     []notification.Button{button("Upload Label", event.ActionRequestLabel, d.ID, notification.StylePrimary)},
	}
}

func claimForm(dealID string) *event.Form {
	return &event.Form{
		CustomID: event.NewToken(event.ActionClaimSubmit, dealID).String(),
		Title:    "Claim deal",
		Inputs: []event.Input{
			{ID: event.InputSellerCode, Label: "Seller code", Placeholder: "SE-00001", Required: true, MaxLength: 20},
			{ID: event.InputPricingMode, Label: "Pricing (Margin, VAT21 or VAT0)", Placeholder: "Margin", Required: true, MaxLength: 10},
		},
	}
}

func (o *Orchestrator) trackingForm(dealID string) *event.Form {
	return &event.Form{
		CustomID: event.NewToken(event.ActionTrackingSubmit, dealID).String(),
		Title:    "Shipping label",
		Inputs: []event.Input{
			{ID: event.InputTrackingCode, Label: "Tracking code", Placeholder: o.settings.TrackingPrefix + "999AA10123456784", Required: true, MaxLength: 40},
		},
	}
}
