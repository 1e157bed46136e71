package deal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field names a persisted deal attribute. Values double as column names.
type Field string

const (
	FieldID                 Field = "id"
	FieldStatus             Field = "status"
	FieldUnclaimedStatus    Field = "unclaimed_status"
	FieldCurrentPayout      Field = "current_payout"
	FieldCurrentPayoutVAT0  Field = "current_payout_vat0"
	FieldClaimantID         Field = "claimant_id"
	FieldClaimantSellerRef  Field = "claimant_seller_ref"
	FieldClaimantSellerCode Field = "claimant_seller_code"
	FieldPricingMode        Field = "pricing_mode"
	FieldLockedPayout       Field = "locked_payout"
	FieldClaimantConfirmed  Field = "claimant_confirmed"
	FieldClaimedAt          Field = "claimed_at"
	FieldClaimChannelID     Field = "claim_channel_id"
	FieldClaimMessageID     Field = "claim_message_id"
	FieldRequesterID        Field = "requester_id"
	FieldEvidenceIDs        Field = "evidence_ids"
	FieldEvidenceURLs       Field = "evidence_urls"
	FieldApprovalPromptedAt Field = "approval_prompted_at"
	FieldApprovedBy         Field = "approved_by"
	FieldApprovedAt         Field = "approved_at"
	FieldPaymentRequestedAt Field = "payment_requested_at"
	FieldPaymentProofURL    Field = "payment_proof_url"
	FieldPaymentProofAt     Field = "payment_proof_at"
	FieldTrackingCode       Field = "tracking_code"
	FieldShippingLabelURL   Field = "shipping_label_url"
	FieldLabelUploadedAt    Field = "label_uploaded_at"
	FieldListingChannelID   Field = "listing_channel_id"
	FieldListingMessageID   Field = "listing_message_id"
	FieldListingMessageURL  Field = "listing_message_url"
	FieldCreatedAt          Field = "created_at"

	// Read-only classification fields, usable in filters.
	FieldSKU     Field = "sku"
	FieldSize    Field = "size"
	FieldBrand   Field = "brand"
	FieldOrderID Field = "order_id"
)

// Patch is a partial update: field assignments plus an optional expected version.
type Patch struct {
	fields        map[Field]any
	expectVersion int64
}

func NewPatch() *Patch {
	return &Patch{fields: map[Field]any{}}
}

// Set assigns v to f. Accepted value types: string, Status, PricingMode,
// bool, decimal.NullDecimal, *time.Time and []string, matching the field.
func (p *Patch) Set(f Field, v any) *Patch {
	p.fields[f] = v
	return p
}

// IfVersion makes the update conditional on the record still being at version v.
func (p *Patch) IfVersion(v int64) *Patch {
	p.expectVersion = v
	return p
}

func (p *Patch) Fields() map[Field]any {
	return p.fields
}

func (p *Patch) ExpectedVersion() int64 {
	return p.expectVersion
}

func (p *Patch) Empty() bool {
	return len(p.fields) == 0
}

// ClearClaim resets every field written between claim and completion.
// Classification and listing fields are left untouched.
func (p *Patch) ClearClaim() *Patch {
	none := decimal.NullDecimal{}
	var never *time.Time
	for _, f := range []Field{FieldClaimantID, FieldClaimantSellerRef, FieldClaimantSellerCode, FieldClaimChannelID, FieldClaimMessageID, FieldApprovedBy, FieldPaymentProofURL, FieldTrackingCode, FieldShippingLabelURL} {
		p.Set(f, "")
	}
	for _, f := range []Field{FieldClaimedAt, FieldApprovalPromptedAt, FieldApprovedAt, FieldPaymentRequestedAt, FieldPaymentProofAt, FieldLabelUploadedAt} {
		p.Set(f, never)
	}
	p.Set(FieldPricingMode, PricingMode(""))
	p.Set(FieldUnclaimedStatus, Status(""))
	p.Set(FieldLockedPayout, none)
	p.Set(FieldClaimantConfirmed, false)
	p.Set(FieldEvidenceIDs, []string{})
	p.Set(FieldEvidenceURLs, []string{})
	return p
}

// Apply writes the patch's assignments into d.
func (p *Patch) Apply(d *Deal) error {
	for f, v := range p.fields {
		set, ok := setters[f]
		if !ok {
			return fmt.Errorf("field %q is not updatable", f)
		}
		if !set(d, v) {
			return fmt.Errorf("field %q: unexpected value type %T", f, v)
		}
	}
	return nil
}

var setters = map[Field]func(d *Deal, v any) bool{
	FieldStatus: func(d *Deal, v any) bool {
		s, ok := v.(Status)
		if ok {
			d.Status = s
		}
		return ok
	},
	FieldUnclaimedStatus: func(d *Deal, v any) bool {
		s, ok := v.(Status)
		if ok {
			d.UnclaimedStatus = s
		}
		return ok
	},
	FieldPricingMode: func(d *Deal, v any) bool {
		m, ok := v.(PricingMode)
		if ok {
			d.PricingMode = m
		}
		return ok
	},
	FieldClaimantConfirmed: func(d *Deal, v any) bool {
		b, ok := v.(bool)
		if ok {
			d.ClaimantConfirmed = b
		}
		return ok
	},
	FieldCurrentPayout:     decimalSetter(func(d *Deal) *decimal.NullDecimal { return &d.CurrentPayout }),
	FieldCurrentPayoutVAT0: decimalSetter(func(d *Deal) *decimal.NullDecimal { return &d.CurrentPayoutVAT0 }),
	FieldLockedPayout:      decimalSetter(func(d *Deal) *decimal.NullDecimal { return &d.LockedPayout }),
	FieldClaimedAt:          timeSetter(func(d *Deal) **time.Time { return &d.ClaimedAt }),
	FieldApprovalPromptedAt: timeSetter(func(d *Deal) **time.Time { return &d.ApprovalPromptedAt }),
	FieldApprovedAt:         timeSetter(func(d *Deal) **time.Time { return &d.ApprovedAt }),
	FieldPaymentRequestedAt: timeSetter(func(d *Deal) **time.Time { return &d.PaymentRequestedAt }),
	FieldPaymentProofAt:     timeSetter(func(d *Deal) **time.Time { return &d.PaymentProofAt }),
	FieldLabelUploadedAt:    timeSetter(func(d *Deal) **time.Time { return &d.LabelUploadedAt }),
	FieldEvidenceIDs:        sliceSetter(func(d *Deal) *[]string { return &d.EvidenceIDs }),
	FieldEvidenceURLs:       sliceSetter(func(d *Deal) *[]string { return &d.EvidenceURLs }),
	FieldClaimantID:         stringSetter(func(d *Deal) *string { return &d.ClaimantID }),
	FieldClaimantSellerRef:  stringSetter(func(d *Deal) *string { return &d.ClaimantSellerRef }),
	FieldClaimantSellerCode: stringSetter(func(d *Deal) *string { return &d.ClaimantSellerCode }),
	FieldClaimChannelID:     stringSetter(func(d *Deal) *string { return &d.ClaimChannelID }),
	FieldClaimMessageID:     stringSetter(func(d *Deal) *string { return &d.ClaimMessageID }),
	FieldRequesterID:        stringSetter(func(d *Deal) *string { return &d.RequesterID }),
	FieldApprovedBy:         stringSetter(func(d *Deal) *string { return &d.ApprovedBy }),
	FieldPaymentProofURL:    stringSetter(func(d *Deal) *string { return &d.PaymentProofURL }),
	FieldTrackingCode:       stringSetter(func(d *Deal) *string { return &d.TrackingCode }),
	FieldShippingLabelURL:   stringSetter(func(d *Deal) *string { return &d.ShippingLabelURL }),
	FieldListingChannelID:   stringSetter(func(d *Deal) *string { return &d.ListingChannelID }),
	FieldListingMessageID:   stringSetter(func(d *Deal) *string { return &d.ListingMessageID }),
	FieldListingMessageURL:  stringSetter(func(d *Deal) *string { return &d.ListingMessageURL }),
}

func stringSetter(field func(*Deal) *string) func(*Deal, any) bool {
	return func(d *Deal, v any) bool {
		s, ok := v.(string)
		if ok {
			*field(d) = s
		}
		return ok
	}
}

func decimalSetter(field func(*Deal) *decimal.NullDecimal) func(*Deal, any) bool {
	return func(d *Deal, v any) bool {
		n, ok := v.(decimal.NullDecimal)
		if ok {
			*field(d) = n
		}
		return ok
	}
}

func timeSetter(field func(*Deal) **time.Time) func(*Deal, any) bool {
	return func(d *Deal, v any) bool {
		t, ok := v.(*time.Time)
		if ok {
			*field(d) = t
		}
		return ok
	}
}

func sliceSetter(field func(*Deal) *[]string) func(*Deal, any) bool {
	return func(d *Deal, v any) bool {
		s, ok := v.([]string)
		if ok {
			*field(d) = append([]string(nil), s...)
		}
		return ok
	}
}

// FieldValues flattens d into scalar values keyed by field name, the shape
// formula evaluation works on. Time fields additionally expose
// "<field>_age_seconds" relative to now, or -1 when unset.
func (d *Deal) FieldValues(now time.Time) map[string]any {
	out := map[string]any{
		string(FieldID):                 d.ID,
		string(FieldSKU):                d.SKU,
		string(FieldSize):               d.Size,
		string(FieldBrand):              d.Brand,
		string(FieldOrderID):            d.OrderID,
		string(FieldStatus):             string(d.Status),
		string(FieldUnclaimedStatus):    string(d.UnclaimedStatus),
		string(FieldClaimantID):         d.ClaimantID,
		string(FieldClaimantSellerRef):  d.ClaimantSellerRef,
		string(FieldClaimantSellerCode): d.ClaimantSellerCode,
		string(FieldPricingMode):        string(d.PricingMode),
		string(FieldClaimantConfirmed):  d.ClaimantConfirmed,
		string(FieldClaimChannelID):     d.ClaimChannelID,
		string(FieldClaimMessageID):     d.ClaimMessageID,
		string(FieldRequesterID):        d.RequesterID,
		string(FieldEvidenceIDs):        strings.Join(d.EvidenceIDs, ","),
		string(FieldEvidenceURLs):       strings.Join(d.EvidenceURLs, ","),
		string(FieldApprovedBy):         d.ApprovedBy,
		string(FieldPaymentProofURL):    d.PaymentProofURL,
		string(FieldTrackingCode):       d.TrackingCode,
		string(FieldShippingLabelURL):   d.ShippingLabelURL,
		string(FieldListingChannelID):   d.ListingChannelID,
		string(FieldListingMessageID):   d.ListingMessageID,
		string(FieldListingMessageURL):  d.ListingMessageURL,
	}
	for f, v := range map[Field]decimal.NullDecimal{
		FieldCurrentPayout:     d.CurrentPayout,
		FieldCurrentPayoutVAT0: d.CurrentPayoutVAT0,
		FieldLockedPayout:      d.LockedPayout,
	} {
		if v.Valid {
			out[string(f)] = v.Decimal.InexactFloat64()
		} else {
			out[string(f)] = ""
		}
	}
	created := d.CreatedAt
	for f, v := range map[Field]*time.Time{
		FieldCreatedAt:          &created,
		FieldClaimedAt:          d.ClaimedAt,
		FieldApprovalPromptedAt: d.ApprovalPromptedAt,
		FieldApprovedAt:         d.ApprovedAt,
		FieldPaymentRequestedAt: d.PaymentRequestedAt,
		FieldPaymentProofAt:     d.PaymentProofAt,
		FieldLabelUploadedAt:    d.LabelUploadedAt,
	} {
		if v == nil || v.IsZero() {
			out[string(f)] = ""
			out[string(f)+"_age_seconds"] = float64(-1)
			continue
		}
		out[string(f)] = v.UTC().Format(time.RFC3339)
		out[string(f)+"_age_seconds"] = now.Sub(*v).Seconds()
	}
	return out
}
