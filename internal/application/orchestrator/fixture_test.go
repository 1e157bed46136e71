package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/execution-hub/dealflow/internal/application/dispatcher"
	"github.com/execution-hub/dealflow/internal/application/guard"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/notification"
	"github.com/execution-hub/dealflow/internal/domain/seller"
	"github.com/execution-hub/dealflow/internal/infrastructure/memory"
	"github.com/execution-hub/dealflow/internal/infrastructure/sessioncache"
	"github.com/execution-hub/dealflow/internal/metrics"
)

const (
	requester = "u-buyer"
	claimantA = "u-seller-a"
	claimantB = "u-seller-b"
	admin     = "u-admin"
	adminRole = "role-admin"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingWebhook accepts every payload.
type recordingWebhook struct {
	mu       sync.Mutex
	payloads []*notification.WebhookPayload
}

func (w *recordingWebhook) Post(_ context.Context, p *notification.WebhookPayload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.payloads = append(w.payloads, p)
	return nil
}

func (w *recordingWebhook) count(kind notification.WebhookKind) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, p := range w.payloads {
		if p.Event == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	ctx      context.Context
	orch     *Orchestrator
	deals    *memory.DealRepository
	platform *memory.Platform
	sessions *sessioncache.Cache
	notify   *dispatcher.Dispatcher
	clock    *fakeClock
}

func newFixture(t *testing.T, webhook notification.Webhook) *fixture {
	t.Helper()
	if webhook == nil {
		webhook = &recordingWebhook{}
	}
	clock := &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	deals := memory.NewDealRepository(clock.Now)
	sellers := memory.NewSellerRepository(
		&seller.Seller{RecordID: "recSellerA", Code: "SE-00001", DisplayName: "Ada Sneakers", PlatformUserID: claimantA},
		&seller.Seller{RecordID: "recSellerB", Code: "SE-00002", DisplayName: "Bo Kicks", PlatformUserID: claimantB},
	)
	sessions := sessioncache.New(clock.Now)
	platform := memory.NewPlatform()
	notify := dispatcher.New(platform, webhook, memory.NewLedger(), metrics.New(), 0, zerolog.Nop())
	orch := NewOrchestrator(deals, sellers, sessions, notify,
		guard.Policy{ApproverRoleIDs: []string{adminRole}},
		Settings{
			CategoryIDs:       []string{"cat-1"},
			ListingChannelID:  "listings",
			EvidenceThreshold: 6,
			ClaimContextTTL:   6 * time.Hour,
			ProofSessionTTL:   15 * time.Minute,
			LabelSessionTTL:   15 * time.Minute,
			TrackingPrefix:    "1Z",
			CurrencySymbol:    "€",
			Payment:           Payment{IBAN: "NL91ABNA0417164300", Beneficiary: "Dealflow BV"},
		},
		metrics.New(), zerolog.Nop(),
	).WithClock(clock.Now)

	return &fixture{
		ctx:      context.Background(),
		orch:     orch,
		deals:    deals,
		platform: platform,
		sessions: sessions,
		notify:   notify,
		clock:    clock,
	}
}

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// listDeal ingests and advertises a Pending listing owned by requester.
func (f *fixture) listDeal(t *testing.T, mutate ...func(d *deal.Deal)) *deal.Deal {
	t.Helper()
	d := &deal.Deal{
		SKU:                  "DD1391-100",
		Size:                 "42",
		Brand:                "Nike",
		ProductName:          "Nike Dunk Low Panda",
		CurrentPayout:        money("180.00"),
		CurrentPayoutVAT0:    money("148.76"),
		RequesterID:          requester,
		BuyerCountry:         "NL",
		LockedBuyerPrice:     money("210.00"),
		LockedBuyerPriceVAT0: money("173.55"),
	}
	for _, m := range mutate {
		m(d)
	}
	require.NoError(t, f.orch.Ingest(f.ctx, d))
	listed, err := f.orch.Advertise(f.ctx, d.ID, "")
	require.NoError(t, err)
	return listed
}

func (f *fixture) find(t *testing.T, id string) *deal.Deal {
	t.Helper()
	d, err := f.deals.Find(f.ctx, id)
	require.NoError(t, err)
	return d
}

func (f *fixture) listing(t *testing.T, d *deal.Deal) notification.Message {
	t.Helper()
	posted, ok := f.platform.Message(notification.MessageRef{ChannelID: d.ListingChannelID, MessageID: d.ListingMessageID})
	require.True(t, ok)
	return posted.Message
}

// claim runs a claim for actor with the given seller code and pricing.
func (f *fixture) claim(t *testing.T, dealID, actor, code, pricing string) *Result {
	t.Helper()
	res, err := f.orch.Claim(f.ctx, ClaimRequest{
		DealID:      dealID,
		Actor:       guard.Actor{ID: actor},
		SellerCode:  code,
		PricingMode: pricing,
	})
	require.NoError(t, err)
	return res
}

// readyForApproval claims, confirms and uploads the evidence threshold.
func (f *fixture) readyForApproval(t *testing.T, dealID string) *deal.Deal {
	t.Helper()
	res := f.claim(t, dealID, claimantA, "SE-00001", "Margin")
	_, err := f.orch.ConfirmIdentity(f.ctx, dealID, guard.Actor{ID: claimantA})
	require.NoError(t, err)
	for i := 1; i <= 6; i++ {
		_, err := f.orch.RecordEvidence(f.ctx, res.ChannelID, guard.Actor{ID: claimantA}, []event.Attachment{photo(i)})
		require.NoError(t, err)
	}
	return f.find(t, dealID)
}

func photo(i int) event.Attachment {
	id := "att-" + strconv.Itoa(i)
	return event.Attachment{ID: id, URL: "https://cdn.example.com/" + id + ".jpg", Filename: id + ".jpg", ContentType: "image/jpeg"}
}

func pdf(name string) event.Attachment {
	return event.Attachment{ID: name, URL: "https://cdn.example.com/" + name + ".pdf", Filename: name + ".pdf", ContentType: "application/pdf"}
}

func press(action event.Action, dealID, actorID string, roles ...string) event.Event {
	return event.Event{
		ID:         "evt-" + string(action),
		Kind:       event.KindButton,
		CustomID:   event.NewToken(action, dealID).String(),
		ActorID:    actorID,
		ActorRoles: roles,
	}
}

func submit(action event.Action, dealID, actorID string, fields map[string]string) event.Event {
	return event.Event{
		ID:       "evt-" + string(action),
		Kind:     event.KindForm,
		CustomID: event.NewToken(action, dealID).String(),
		ActorID:  actorID,
		Fields:   fields,
	}
}

func channelPost(channelID, actorID string, files ...event.Attachment) event.Event {
	return event.Event{Kind: event.KindChannelMessage, ChannelID: channelID, ActorID: actorID, Attachments: files}
}

func direct(actorID string, files ...event.Attachment) event.Event {
	return event.Event{Kind: event.KindDirectMessage, ActorID: actorID, Attachments: files}
}

func countTitled(msgs []notification.Message, title string) int {
	n := 0
	for _, m := range msgs {
		if m.Title == title {
			n++
		}
	}
	return n
}
