package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/execution-hub/dealflow/internal/domain/deal"
)

const uniqueViolation = "23505"

type columnKind int

const (
	kindText columnKind = iota
	kindBool
	kindNumeric
	kindTime
	kindArray
)

var columns = map[deal.Field]columnKind{
	deal.FieldID:                 kindText,
	deal.FieldOrderID:            kindText,
	deal.FieldSKU:                kindText,
	deal.FieldSize:               kindText,
	deal.FieldBrand:              kindText,
	deal.FieldStatus:             kindText,
	deal.FieldUnclaimedStatus:    kindText,
	deal.FieldCurrentPayout:      kindNumeric,
	deal.FieldCurrentPayoutVAT0:  kindNumeric,
	deal.FieldClaimantID:         kindText,
	deal.FieldClaimantSellerRef:  kindText,
	deal.FieldClaimantSellerCode: kindText,
	deal.FieldPricingMode:        kindText,
	deal.FieldLockedPayout:       kindNumeric,
	deal.FieldClaimantConfirmed:  kindBool,
	deal.FieldClaimedAt:          kindTime,
	deal.FieldClaimChannelID:     kindText,
	deal.FieldClaimMessageID:     kindText,
	deal.FieldRequesterID:        kindText,
	deal.FieldEvidenceIDs:        kindArray,
	deal.FieldEvidenceURLs:       kindArray,
	deal.FieldApprovalPromptedAt: kindTime,
	deal.FieldApprovedBy:         kindText,
	deal.FieldApprovedAt:         kindTime,
	deal.FieldPaymentRequestedAt: kindTime,
	deal.FieldPaymentProofURL:    kindText,
	deal.FieldPaymentProofAt:     kindTime,
	deal.FieldTrackingCode:       kindText,
	deal.FieldShippingLabelURL:   kindText,
	deal.FieldLabelUploadedAt:    kindTime,
	deal.FieldListingChannelID:   kindText,
	deal.FieldListingMessageID:   kindText,
	deal.FieldListingMessageURL:  kindText,
	deal.FieldCreatedAt:          kindTime,
}

const dealColumns = `id, version, order_id, product_name, sku, size, brand, image_url,
	status, unclaimed_status, current_payout::text, current_payout_vat0::text,
	claimant_id, claimant_seller_ref, claimant_seller_code, pricing_mode, locked_payout::text,
	claimant_confirmed, claimed_at, claim_channel_id, claim_message_id,
	requester_id, buyer_country, buyer_vat_id, locked_buyer_price::text, locked_buyer_price_vat0::text,
	evidence_ids, evidence_urls, approval_prompted_at, approved_by, approved_at, payment_requested_at,
	payment_proof_url, payment_proof_at, tracking_code, shipping_label_url, label_uploaded_at,
	listing_channel_id, listing_message_id, listing_message_url, created_at, updated_at`

// DealRepository implements deal.Repository on the deals table.
type DealRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewDealRepository(pool *pgxpool.Pool) *DealRepository {
	return &DealRepository{pool: pool, now: time.Now}
}

func (r *DealRepository) Create(ctx context.Context, d *deal.Deal) error {
	if d.ID == "" {
		d.ID = "rec" + uuid.NewString()
	}
	now := r.now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	d.Version = 1
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deals (id, version, order_id, product_name, sku, size, brand, image_url,
			status, unclaimed_status, current_payout, current_payout_vat0,
			requester_id, buyer_country, buyer_vat_id, locked_buyer_price, locked_buyer_price_vat0,
			listing_channel_id, listing_message_id, listing_message_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`, d.ID, d.Version, d.OrderID, d.ProductName, d.SKU, d.Size, d.Brand, d.ImageURL,
		string(d.Status), string(d.UnclaimedStatus), numericArg(d.CurrentPayout), numericArg(d.CurrentPayoutVAT0),
		d.RequesterID, d.BuyerCountry, d.BuyerVATID, numericArg(d.LockedBuyerPrice), numericArg(d.LockedBuyerPriceVAT0),
		d.ListingChannelID, d.ListingMessageID, d.ListingMessageURL, d.CreatedAt, d.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return deal.ErrDuplicate
	}
	return err
}

func (r *DealRepository) Find(ctx context.Context, id string) (*deal.Deal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id=$1`, id)
	d, err := scanDeal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, deal.ErrNotFound
	}
	return d, err
}

func (r *DealRepository) Query(ctx context.Context, q deal.Query) ([]*deal.Deal, error) {
	args := []interface{}{}
	where, err := compileFilter(q.Where, &args, r.now())
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + dealColumns + ` FROM deals WHERE ` + where + ` ORDER BY created_at ASC, id ASC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deals []*deal.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// Update applies p in one statement. The version check and the write happen
// atomically in the WHERE clause.
func (r *DealRepository) Update(ctx context.Context, id string, p *deal.Patch) (*deal.Deal, error) {
	if err := p.Apply(&deal.Deal{}); err != nil {
		return nil, err
	}
	fields := make([]deal.Field, 0, len(p.Fields()))
	for f := range p.Fields() {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	args := []interface{}{}
	sets := make([]string, 0, len(fields)+2)
	for _, f := range fields {
		if _, ok := columns[f]; !ok {
			return nil, fmt.Errorf("field %q is not a deal column", f)
		}
		args = append(args, patchArg(p.Fields()[f]))
		sets = append(sets, string(f)+"=$"+itoa(len(args)))
	}
	args = append(args, r.now().UTC())
	sets = append(sets, "version=version+1", "updated_at=$"+itoa(len(args)))

	args = append(args, id)
	query := `UPDATE deals SET ` + strings.Join(sets, ", ") + ` WHERE id=$` + itoa(len(args))
	if v := p.ExpectedVersion(); v != 0 {
		args = append(args, v)
		query += " AND version=$" + itoa(len(args))
	}
	query += " RETURNING " + dealColumns

	d, err := scanDeal(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		if p.ExpectedVersion() == 0 {
			return nil, deal.ErrNotFound
		}
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM deals WHERE id=$1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			return nil, deal.ErrConflict
		}
		return nil, deal.ErrNotFound
	}
	return d, err
}

func scanDeal(row pgx.Row) (*deal.Deal, error) {
	var d deal.Deal
	var status, unclaimed, pricing string
	var currentPayout, currentPayoutVAT0, lockedPayout, buyerPrice, buyerPriceVAT0 *string
	if err := row.Scan(&d.ID, &d.Version, &d.OrderID, &d.ProductName, &d.SKU, &d.Size, &d.Brand, &d.ImageURL,
		&status, &unclaimed, &currentPayout, &currentPayoutVAT0,
		&d.ClaimantID, &d.ClaimantSellerRef, &d.ClaimantSellerCode, &pricing, &lockedPayout,
		&d.ClaimantConfirmed, &d.ClaimedAt, &d.ClaimChannelID, &d.ClaimMessageID,
		&d.RequesterID, &d.BuyerCountry, &d.BuyerVATID, &buyerPrice, &buyerPriceVAT0,
		&d.EvidenceIDs, &d.EvidenceURLs, &d.ApprovalPromptedAt, &d.ApprovedBy, &d.ApprovedAt, &d.PaymentRequestedAt,
		&d.PaymentProofURL, &d.PaymentProofAt, &d.TrackingCode, &d.ShippingLabelURL, &d.LabelUploadedAt,
		&d.ListingChannelID, &d.ListingMessageID, &d.ListingMessageURL, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Status = deal.Status(status)
	d.UnclaimedStatus = deal.Status(unclaimed)
	d.PricingMode = deal.PricingMode(pricing)
	for dst, src := range map[*decimal.NullDecimal]*string{
		&d.CurrentPayout:        currentPayout,
		&d.CurrentPayoutVAT0:    currentPayoutVAT0,
		&d.LockedPayout:         lockedPayout,
		&d.LockedBuyerPrice:     buyerPrice,
		&d.LockedBuyerPriceVAT0: buyerPriceVAT0,
	} {
		v, err := parseNumeric(src)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return &d, nil
}

func parseNumeric(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid numeric %q: %w", *s, err)
	}
	return decimal.NewNullDecimal(v), nil
}

// numericArg sends decimals as text so Postgres parses them exactly.
func numericArg(v decimal.NullDecimal) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Decimal.String()
}

func patchArg(v interface{}) interface{} {
	switch t := v.(type) {
	case deal.Status:
		return string(t)
	case deal.PricingMode:
		return string(t)
	case decimal.NullDecimal:
		return numericArg(t)
	case []string:
		if t == nil {
			return []string{}
		}
		return t
	default:
		return v
	}
}

// compileFilter renders f as a SQL boolean expression, appending its
// parameters to args.
func compileFilter(f deal.Filter, args *[]interface{}, now time.Time) (string, error) {
	bind := func(v interface{}) string {
		*args = append(*args, v)
		return "$" + itoa(len(*args))
	}
	column := func(field deal.Field) (columnKind, error) {
		kind, ok := columns[field]
		if !ok {
			return 0, fmt.Errorf("cannot filter on %q", field)
		}
		return kind, nil
	}

	switch v := f.(type) {
	case nil:
		return "TRUE", nil
	case deal.Eq:
		if _, err := column(v.Field); err != nil {
			return "", err
		}
		return string(v.Field) + " = " + bind(sqlValue(v.Value)), nil
	case deal.In:
		if _, err := column(v.Field); err != nil {
			return "", err
		}
		if len(v.Values) == 0 {
			return "FALSE", nil
		}
		names := make([]string, 0, len(v.Values))
		for _, val := range v.Values {
			names = append(names, bind(sqlValue(val)))
		}
		return string(v.Field) + " IN (" + strings.Join(names, ", ") + ")", nil
	case deal.Blank, deal.NotBlank:
		field, negate := fieldOf(v)
		kind, err := column(field)
		if err != nil {
			return "", err
		}
		var expr string
		switch kind {
		case kindText:
			expr = string(field) + " = ''"
		case kindArray:
			expr = "cardinality(" + string(field) + ") = 0"
		default:
			expr = string(field) + " IS NULL"
		}
		if negate {
			return "NOT (" + expr + ")", nil
		}
		return expr, nil
	case deal.OlderThan:
		if kind, err := column(v.Field); err != nil || kind != kindTime {
			return "", fmt.Errorf("cannot compare age of %q", v.Field)
		}
		return "(" + string(v.Field) + " IS NOT NULL AND " + string(v.Field) + " <= " + bind(now.Add(-v.Age).UTC()) + ")", nil
	case deal.And:
		return joinFilters(v, " AND ", "TRUE", args, now)
	case deal.Or:
		return joinFilters(v, " OR ", "FALSE", args, now)
	default:
		return "", fmt.Errorf("unsupported filter %T", f)
	}
}

func fieldOf(f deal.Filter) (deal.Field, bool) {
	if nb, ok := f.(deal.NotBlank); ok {
		return nb.Field, true
	}
	return f.(deal.Blank).Field, false
}

func joinFilters(fs []deal.Filter, op, empty string, args *[]interface{}, now time.Time) (string, error) {
	if len(fs) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(fs))
	for _, sub := range fs {
		s, err := compileFilter(sub, args, now)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

func sqlValue(v interface{}) interface{} {
	switch t := v.(type) {
	case deal.Status:
		return string(t)
	case deal.PricingMode:
		return string(t)
	default:
		return v
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
