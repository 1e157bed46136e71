package notification

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/execution-hub/dealflow/internal/domain/deal"
)

// WebhookKind names the downstream automation event.
type WebhookKind string

const (
	WebhookDealApproved  WebhookKind = "deal.approved"
	WebhookLabelUploaded WebhookKind = "deal.label_uploaded"
)

const webhookSource = "Member WTB"

// WebhookPayload is the deal context posted to the automation webhook.
type WebhookPayload struct {
	Event            WebhookKind `json:"event"`
	Source           string      `json:"source"`
	RecordID         string      `json:"recordId"`
	OrderID          string      `json:"orderId,omitempty"`
	ProductName      string      `json:"productName,omitempty"`
	SKU              string      `json:"sku"`
	Size             string      `json:"size"`
	Brand            string      `json:"brand,omitempty"`
	ImageURL         string      `json:"imageUrl,omitempty"`
	Payout           json.Number `json:"payout,omitempty"`
	VATType          string      `json:"vatType,omitempty"`
	SellerCode       string      `json:"sellerCode,omitempty"`
	SellerRecordID   string      `json:"sellerRecordId,omitempty"`
	SellerDiscordID  string      `json:"sellerDiscordId,omitempty"`
	ApproverID       string      `json:"approverId,omitempty"`
	BuyerDiscordID   string      `json:"buyerDiscordId,omitempty"`
	DealChannelID    string      `json:"dealChannelId,omitempty"`
	ClaimedAt        *time.Time  `json:"claimedAt,omitempty"`
	ClaimMessageURL  string      `json:"claimMessageUrl,omitempty"`
	TrackingCode     string      `json:"trackingCode,omitempty"`
	ShippingLabelURL string      `json:"shippingLabelUrl,omitempty"`
	PaymentProofURL  string      `json:"paymentProofUrl,omitempty"`
	OccurredAt       time.Time   `json:"occurredAt"`
}

// NewDealPayload captures d's display context for kind.
func NewDealPayload(kind WebhookKind, d *deal.Deal, at time.Time) *WebhookPayload {
	p := &WebhookPayload{
		Event:           kind,
		Source:          webhookSource,
		RecordID:        d.ID,
		OrderID:         d.OrderID,
		ProductName:     d.ProductName,
		SKU:             d.SKU,
		Size:            d.Size,
		Brand:           d.Brand,
		ImageURL:        d.ImageURL,
		VATType:         string(d.PricingMode),
		SellerCode:      d.ClaimantSellerCode,
		SellerRecordID:  d.ClaimantSellerRef,
		SellerDiscordID: d.ClaimantID,
		ApproverID:      d.ApprovedBy,
		BuyerDiscordID:  d.RequesterID,
		DealChannelID:   d.ClaimChannelID,
		ClaimedAt:       d.ClaimedAt,
		ClaimMessageURL: d.ListingMessageURL,
		OccurredAt:      at.UTC(),
	}
	if d.LockedPayout.Valid {
		p.Payout = json.Number(d.LockedPayout.Decimal.StringFixed(2))
	}
	if kind == WebhookLabelUploaded {
		p.TrackingCode = d.TrackingCode
		p.ShippingLabelURL = d.ShippingLabelURL
		p.PaymentProofURL = d.PaymentProofURL
	}
	return p
}

// DedupeKey identifies the single delivery allowed for the payload's kind
// within one claim of a deal. A deal that is cancelled and claimed again
// gets fresh keys.
func (p *WebhookPayload) DedupeKey() string {
	key := string(p.Event) + ":" + p.RecordID
	if p.ClaimedAt != nil {
		key += ":" + strconv.FormatInt(p.ClaimedAt.UnixMicro(), 10)
	}
	return key
}
