package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/execution-hub/dealflow/internal/domain/deal"
)

// ClaimContext caches the claim slice of a deal for its private channel.
// The deal record stays authoritative; a context can always be rebuilt with
// ClaimContextFromDeal.
type ClaimContext struct {
	ChannelID        string           `json:"channelId"`
	DealID           string           `json:"dealId"`
	ClaimantID       string           `json:"claimantId"`
	SellerRef        string           `json:"sellerRef"`
	SellerCode       string           `json:"sellerCode"`
	PricingMode      deal.PricingMode `json:"pricingMode"`
	LockedPayout     decimal.Decimal  `json:"lockedPayout"`
	Confirmed        bool             `json:"confirmed"`
	EvidenceIDs      []string         `json:"evidenceIds,omitempty"`
	ApprovalPrompted bool             `json:"approvalPrompted"`
	ExpiresAt        time.Time        `json:"expiresAt"`
}

func (c *ClaimContext) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ClaimContextFromDeal rebuilds a claim context from the persisted claim linkage.
func ClaimContextFromDeal(d *deal.Deal, expiresAt time.Time) *ClaimContext {
	return &ClaimContext{
		ChannelID:        d.ClaimChannelID,
		DealID:           d.ID,
		ClaimantID:       d.ClaimantID,
		SellerRef:        d.ClaimantSellerRef,
		SellerCode:       d.ClaimantSellerCode,
		PricingMode:      d.PricingMode,
		LockedPayout:     d.LockedPayout.Decimal,
		Confirmed:        d.ClaimantConfirmed,
		EvidenceIDs:      append([]string(nil), d.EvidenceIDs...),
		ApprovalPrompted: d.ApprovalPromptedAt != nil,
		ExpiresAt:        expiresAt,
	}
}

// UploadKind is the artifact an upload session expects.
type UploadKind string

const (
	UploadPaymentProof  UploadKind = "PAYMENT_PROOF"
	UploadShippingLabel UploadKind = "SHIPPING_LABEL"
)

// Upload is a time-boxed window in which a counterparty may upload an artifact.
type Upload struct {
	ActorID      string     `json:"actorId"`
	DealID       string     `json:"dealId"`
	Kind         UploadKind `json:"kind"`
	TrackingCode string     `json:"trackingCode,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

func NewUpload(actorID, dealID string, kind UploadKind, now time.Time, ttl time.Duration) *Upload {
	return &Upload{
		ActorID:   actorID,
		DealID:    dealID,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (u *Upload) IsExpired(now time.Time) bool {
	return !now.Before(u.ExpiresAt)
}
