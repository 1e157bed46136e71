package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/execution-hub/dealflow/internal/application/dispatcher"
	"github.com/execution-hub/dealflow/internal/application/guard"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/fault"
	"github.com/execution-hub/dealflow/internal/domain/seller"
	"github.com/execution-hub/dealflow/internal/domain/session"
	"github.com/execution-hub/dealflow/internal/metrics"
)

const (
	maxChannelsPerCategory = 50
	maxWriteAttempts       = 4
)

// Payment holds the instructions sent to a requester who owes money.
type Payment struct {
	IBAN        string
	PayPalEmail string
	Beneficiary string
}

// Settings tunes the state machine.
type Settings struct {
	CategoryIDs       []string
	ListingChannelID  string
	EvidenceThreshold int
	ClaimContextTTL   time.Duration
	ProofSessionTTL   time.Duration
	LabelSessionTTL   time.Duration
	TrackingPrefix    string
	CurrencySymbol    string
	Payment           Payment
}

// Result is the outcome of a transition. Changed is false when the call was
// an idempotent replay that wrote nothing.
type Result struct {
	Deal      *deal.Deal
	Changed   bool
	ChannelID string
	Message   string
}

// Orchestrator drives deals through claim, verification, evidence, approval,
// payment proof and shipping label. The deal record is authoritative; every
// transition re-validates the actor against a fresh read of it.
type Orchestrator struct {
	deals     deal.Repository
	sellers   seller.Repository
	sessions  session.Store
	notify    *dispatcher.Dispatcher
	policy    guard.Policy
	settings  Settings
	metrics   *metrics.Metrics
	now       func() time.Time
	rehydrate singleflight.Group
	logger    zerolog.Logger
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(
	deals deal.Repository,
	sellers seller.Repository,
	sessions session.Store,
	notify *dispatcher.Dispatcher,
	policy guard.Policy,
	settings Settings,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Orchestrator {
	if settings.EvidenceThreshold <= 0 {
		settings.EvidenceThreshold = 6
	}
	if settings.CurrencySymbol == "" {
		settings.CurrencySymbol = "€"
	}
	if settings.TrackingPrefix == "" {
		settings.TrackingPrefix = "1Z"
	}
	if settings.ClaimContextTTL <= 0 {
		settings.ClaimContextTTL = 6 * time.Hour
	}
	if settings.ProofSessionTTL <= 0 {
		settings.ProofSessionTTL = 15 * time.Minute
	}
	if settings.LabelSessionTTL <= 0 {
		settings.LabelSessionTTL = 15 * time.Minute
	}
	return &Orchestrator{
		deals:    deals,
		sellers:  sellers,
		sessions: sessions,
		notify:   notify,
		policy:   policy,
		settings: settings,
		metrics:  m,
		now:      time.Now,
		logger:   logger.With().Str("service", "orchestrator").Logger(),
	}
}

// WithClock replaces the time source. Session stores must share it.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Deal returns the current record.
func (o *Orchestrator) Deal(ctx context.Context, id string) (*deal.Deal, error) {
	return o.load(ctx, id)
}

func (o *Orchestrator) load(ctx context.Context, id string) (*deal.Deal, error) {
	d, err := o.deals.Find(ctx, id)
	if errors.Is(err, deal.ErrNotFound) {
		return nil, fault.NotFound("This deal no longer exists.")
	}
	if err != nil {
		return nil, fault.ExternalIO("find deal", err)
	}
	return d, nil
}

// mutate re-reads the deal and writes the patch returned by build, checked
// against the version build saw, until a write lands. A nil patch means
// there is nothing to write; the fresh record is returned unchanged.
func (o *Orchestrator) mutate(ctx context.Context, id string, build func(d *deal.Deal) (*deal.Patch, error)) (*deal.Deal, bool, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		d, err := o.load(ctx, id)
		if err != nil {
			return nil, false, err
		}
		p, err := build(d)
		if err != nil {
			return d, false, err
		}
		if p == nil || p.Empty() {
			return d, false, nil
		}
		updated, err := o.deals.Update(ctx, id, p.IfVersion(d.Version))
		switch {
		case err == nil:
			return updated, true, nil
		case errors.Is(err, deal.ErrConflict):
			o.logger.Debug().Str("deal_id", id).Int("attempt", attempt+1).Msg("deal changed underneath, retrying")
		case errors.Is(err, deal.ErrNotFound):
			return nil, false, fault.NotFound("This deal no longer exists.")
		default:
			return nil, false, fault.ExternalIO("update deal", err)
		}
	}
	return nil, false, fault.ExternalIO("update deal", deal.ErrConflict)
}

// claimContext returns the cached claim context of channelID, rebuilding it
// from the deal record when the cache has none. Nil means the channel does
// not belong to an active claim.
func (o *Orchestrator) claimContext(ctx context.Context, channelID string) (*session.ClaimContext, error) {
	cc, err := o.sessions.GetClaim(ctx, channelID)
	if err != nil {
		o.logger.Warn().Err(err).Str("channel_id", channelID).Msg("session store unavailable, reading deal record")
	}
	if cc != nil {
		return cc, nil
	}

	v, err, _ := o.rehydrate.Do(channelID, func() (any, error) {
		found, err := o.deals.Query(ctx, deal.Query{
			Where: deal.And{
				deal.Eq{Field: deal.FieldClaimChannelID, Value: channelID},
				deal.Eq{Field: deal.FieldStatus, Value: deal.StatusClaimProcessing},
			},
			Limit: 1,
		})
		if err != nil {
			return nil, fault.ExternalIO("query claim channel", err)
		}
		if len(found) == 0 {
			return nil, nil
		}
		rebuilt := session.ClaimContextFromDeal(found[0], o.now().Add(o.settings.ClaimContextTTL))
		o.storeClaim(ctx, rebuilt)
		o.logger.Info().Str("deal_id", rebuilt.DealID).Str("channel_id", channelID).Msg("claim context rehydrated")
		return rebuilt, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*session.ClaimContext), nil
}

func (o *Orchestrator) refreshClaim(ctx context.Context, d *deal.Deal) {
	if d.ClaimChannelID == "" {
		return
	}
	o.storeClaim(ctx, session.ClaimContextFromDeal(d, o.now().Add(o.settings.ClaimContextTTL)))
}

func (o *Orchestrator) storeClaim(ctx context.Context, cc *session.ClaimContext) {
	if err := o.sessions.SetClaim(ctx, cc); err != nil {
		o.logger.Warn().Err(err).Str("channel_id", cc.ChannelID).Msg("failed to cache claim context")
	}
}

func (o *Orchestrator) dropSessions(ctx context.Context, d *deal.Deal, channelID string) {
	if channelID != "" {
		if err := o.sessions.DeleteClaim(ctx, channelID); err != nil {
			o.logger.Warn().Err(err).Str("channel_id", channelID).Msg("failed to drop claim context")
		}
	}
	if d.RequesterID != "" {
		if err := o.sessions.DeleteUpload(ctx, d.RequesterID, d.ID); err != nil {
			o.logger.Warn().Err(err).Str("deal_id", d.ID).Msg("failed to drop upload session")
		}
	}
}

func (o *Orchestrator) record(transition string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(fault.KindOf(err))
	}
	o.metrics.Transition(transition, outcome)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
