package deal

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle status of a deal as stored in the record store.
type Status string

const (
	StatusPending         Status = "Pending"
	StatusOutsource       Status = "Outsource"
	StatusClaimProcessing Status = "Claim Processing"
	StatusExpired         Status = "Expired"
	StatusCancelled       Status = "Cancelled"
	StatusCompleted       Status = "Completed"
)

// UnclaimedStatuses are the listed statuses a deal can be claimed from.
var UnclaimedStatuses = []Status{StatusPending, StatusOutsource}

var ErrInvalidTransition = errors.New("invalid deal status transition")

// IsUnclaimed reports whether s is a listed, claimable status.
func (s Status) IsUnclaimed() bool {
	for _, u := range UnclaimedStatuses {
		if s == u {
			return true
		}
	}
	return false
}

// PricingMode is the tax/pricing mode a claimant selects at claim time.
type PricingMode string

const (
	PricingMargin PricingMode = "Margin"
	PricingVAT21  PricingMode = "VAT21"
	PricingVAT0   PricingMode = "VAT0"
)

var ErrUnknownPricingMode = errors.New("unknown pricing mode")

// ParsePricingMode accepts the loose spellings sellers type into the claim form.
func ParsePricingMode(raw string) (PricingMode, error) {
	v := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	switch v {
	case "margin":
		return PricingMargin, nil
	case "vat21", "21", "21%":
		return PricingVAT21, nil
	case "vat0", "0", "0%":
		return PricingVAT0, nil
	}
	return "", ErrUnknownPricingMode
}

// Deal is one marketplace transaction record.
type Deal struct {
	ID          string `json:"id"`
	Version     int64  `json:"version"`
	OrderID     string `json:"orderId,omitempty"`
	ProductName string `json:"productName,omitempty"`
	SKU         string `json:"sku"`
	Size        string `json:"size"`
	Brand       string `json:"brand,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`

	Status          Status `json:"status"`
	UnclaimedStatus Status `json:"unclaimedStatus,omitempty"`

	CurrentPayout     decimal.NullDecimal `json:"currentPayout"`
	CurrentPayoutVAT0 decimal.NullDecimal `json:"currentPayoutVat0"`

	ClaimantID         string              `json:"claimantId,omitempty"`
	ClaimantSellerRef  string              `json:"claimantSellerRef,omitempty"`
	ClaimantSellerCode string              `json:"claimantSellerCode,omitempty"`
	PricingMode        PricingMode         `json:"pricingMode,omitempty"`
	LockedPayout       decimal.NullDecimal `json:"lockedPayout"`
	ClaimantConfirmed  bool                `json:"claimantConfirmed"`
	ClaimedAt          *time.Time          `json:"claimedAt,omitempty"`
	ClaimChannelID     string              `json:"claimChannelId,omitempty"`
	ClaimMessageID     string              `json:"claimMessageId,omitempty"`

	RequesterID          string              `json:"requesterId,omitempty"`
	BuyerCountry         string              `json:"buyerCountry,omitempty"`
	BuyerVATID           string              `json:"buyerVatId,omitempty"`
	LockedBuyerPrice     decimal.NullDecimal `json:"lockedBuyerPrice"`
	LockedBuyerPriceVAT0 decimal.NullDecimal `json:"lockedBuyerPriceVat0"`

	EvidenceIDs        []string   `json:"evidenceIds,omitempty"`
	EvidenceURLs       []string   `json:"evidenceUrls,omitempty"`
	ApprovalPromptedAt *time.Time `json:"approvalPromptedAt,omitempty"`
	ApprovedBy         string     `json:"approvedBy,omitempty"`
	ApprovedAt         *time.Time `json:"approvedAt,omitempty"`
	PaymentRequestedAt *time.Time `json:"paymentRequestedAt,omitempty"`
	PaymentProofURL    string     `json:"paymentProofUrl,omitempty"`
	PaymentProofAt     *time.Time `json:"paymentProofAt,omitempty"`
	TrackingCode       string     `json:"trackingCode,omitempty"`
	ShippingLabelURL   string     `json:"shippingLabelUrl,omitempty"`
	LabelUploadedAt    *time.Time `json:"labelUploadedAt,omitempty"`

	ListingChannelID  string `json:"listingChannelId,omitempty"`
	ListingMessageID  string `json:"listingMessageId,omitempty"`
	ListingMessageURL string `json:"listingMessageUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CanTransitionTo validates a deal status transition.
func (d *Deal) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending:         {StatusClaimProcessing, StatusExpired, StatusCancelled, StatusOutsource},
		StatusOutsource:       {StatusClaimProcessing, StatusExpired, StatusCancelled, StatusPending},
		StatusClaimProcessing: {StatusPending, StatusOutsource, StatusCompleted},
		StatusExpired:         {StatusPending, StatusOutsource},
		StatusCancelled:       {},
		StatusCompleted:       {},
	}
	for _, s := range transitions[d.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsClaimed reports whether the deal has an active claimant.
func (d *Deal) IsClaimed() bool {
	return d.Status == StatusClaimProcessing && d.ClaimantID != ""
}

func (d *Deal) EvidenceCount() int {
	return len(d.EvidenceIDs)
}

func (d *Deal) HasEvidence(artifactID string) bool {
	for _, id := range d.EvidenceIDs {
		if id == artifactID {
			return true
		}
	}
	return false
}

func (d *Deal) IsApproved() bool {
	return d.ApprovedAt != nil
}

func (d *Deal) HasProof() bool {
	return d.PaymentProofURL != ""
}

func (d *Deal) HasLabel() bool {
	return d.ShippingLabelURL != ""
}

// RestoreStatus is the listed status a cancelled claim returns to.
func (d *Deal) RestoreStatus() Status {
	if d.UnclaimedStatus.IsUnclaimed() {
		return d.UnclaimedStatus
	}
	return StatusOutsource
}

// Clone returns a copy that shares no slices with d.
func (d *Deal) Clone() *Deal {
	c := *d
	c.EvidenceIDs = append([]string(nil), d.EvidenceIDs...)
	c.EvidenceURLs = append([]string(nil), d.EvidenceURLs...)
	return &c
}
