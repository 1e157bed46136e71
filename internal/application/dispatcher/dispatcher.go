package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/notification"
	"github.com/execution-hub/dealflow/internal/metrics"
)

const deleteTimeout = 10 * time.Second

// Dispatcher performs outbound platform side effects. Cosmetic operations
// never return errors: failures are logged and reported as false.
type Dispatcher struct {
	platform notification.Platform
	webhook  notification.Webhook
	ledger   notification.Ledger
	metrics  *metrics.Metrics
	grace    time.Duration
	pending  sync.WaitGroup
	logger   zerolog.Logger
}

func New(
	platform notification.Platform,
	webhook notification.Webhook,
	ledger notification.Ledger,
	m *metrics.Metrics,
	grace time.Duration,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		platform: platform,
		webhook:  webhook,
		ledger:   ledger,
		metrics:  m,
		grace:    grace,
		logger:   logger.With().Str("service", "dispatcher").Logger(),
	}
}

func (d *Dispatcher) Send(ctx context.Context, channelID string, msg notification.Message) (notification.MessageRef, bool) {
	if channelID == "" {
		return notification.MessageRef{}, false
	}
	ref, err := d.platform.SendMessage(ctx, channelID, msg)
	if err != nil {
		d.logger.Warn().Err(err).Str("channel_id", channelID).Msg("failed to send message")
		return notification.MessageRef{}, false
	}
	return ref, true
}

func (d *Dispatcher) SendDirect(ctx context.Context, userID string, msg notification.Message) (notification.MessageRef, bool) {
	if userID == "" {
		return notification.MessageRef{}, false
	}
	ref, err := d.platform.SendDirectMessage(ctx, userID, msg)
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to send direct message")
		return notification.MessageRef{}, false
	}
	return ref, true
}

func (d *Dispatcher) Edit(ctx context.Context, ref notification.MessageRef, edit notification.Edit) bool {
	if !ref.Valid() || edit.Empty() {
		return false
	}
	if err := d.platform.EditMessage(ctx, ref, edit); err != nil {
		d.logger.Warn().Err(err).
			Str("channel_id", ref.ChannelID).
			Str("message_id", ref.MessageID).
			Msg("failed to edit message")
		return false
	}
	return true
}

// EditOrSend rewrites the message at ref, or posts msg to channelID when
// ref is unusable or the edit fails.
func (d *Dispatcher) EditOrSend(ctx context.Context, ref notification.MessageRef, channelID string, msg notification.Message) (notification.MessageRef, bool) {
	if ref.Valid() {
		buttons := msg.Buttons
		if buttons == nil {
			buttons = []notification.Button{}
		}
		edit := notification.Edit{Content: &msg.Content, Description: &msg.Description, Buttons: &buttons}
		if msg.Color != 0 {
			edit.Color = &msg.Color
		}
		if d.Edit(ctx, ref, edit) {
			return ref, true
		}
	}
	if channelID == "" {
		channelID = ref.ChannelID
	}
	return d.Send(ctx, channelID, msg)
}

// CreatePrivateChannel is not cosmetic: the caller must handle its error.
func (d *Dispatcher) CreatePrivateChannel(ctx context.Context, spec notification.ChannelSpec) (string, error) {
	id, err := d.platform.CreatePrivateChannel(ctx, spec)
	if err != nil {
		d.logger.Error().Err(err).Str("name", spec.Name).Msg("failed to create private channel")
		return "", err
	}
	return id, nil
}

var ErrCategoriesFull = errors.New("all deal categories are full")

// CategoryWithRoom returns the first category holding fewer than limit
// channels. No configured categories yields "", meaning the guild root.
func (d *Dispatcher) CategoryWithRoom(ctx context.Context, categoryIDs []string, limit int) (string, error) {
	if len(categoryIDs) == 0 {
		return "", nil
	}
	for _, id := range categoryIDs {
		n, err := d.platform.CountCategoryChannels(ctx, id)
		if err != nil {
			d.logger.Warn().Err(err).Str("category_id", id).Msg("failed to count category channels")
			continue
		}
		if n < limit {
			return id, nil
		}
	}
	return "", ErrCategoriesFull
}

// DeleteChannel removes a channel immediately.
func (d *Dispatcher) DeleteChannel(ctx context.Context, channelID string) bool {
	if channelID == "" {
		return false
	}
	err := d.platform.DeleteChannel(ctx, channelID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, notification.ErrChannelGone):
		d.logger.Debug().Str("channel_id", channelID).Msg("channel already deleted")
	default:
		d.logger.Warn().Err(err).Str("channel_id", channelID).Msg("failed to delete channel")
	}
	return false
}

// ScheduleChannelDeletion deletes the channel after the grace delay so final
// messages can render.
func (d *Dispatcher) ScheduleChannelDeletion(channelID string) {
	if channelID == "" {
		return
	}
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		if d.grace > 0 {
			time.Sleep(d.grace)
		}
		ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()
		d.DeleteChannel(ctx, channelID)
	}()
}

// Wait blocks until scheduled deletions finish.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// FireOnce posts payload unless the ledger shows it was already delivered.
// A failed post releases the ledger key and is not retried.
func (d *Dispatcher) FireOnce(ctx context.Context, payload *notification.WebhookPayload) bool {
	key := payload.DedupeKey()
	log := d.logger.With().Str("deal_id", payload.RecordID).Str("kind", string(payload.Event)).Logger()

	claimed, err := d.ledger.Claim(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("delivery ledger unavailable, posting without it")
		claimed = true
	}
	if !claimed {
		log.Info().Msg("webhook already delivered")
		d.metrics.Webhook(string(payload.Event), "duplicate")
		return false
	}

	if err := d.webhook.Post(ctx, payload); err != nil {
		log.Warn().Err(err).Msg("webhook delivery failed")
		d.metrics.Webhook(string(payload.Event), "failed")
		if relErr := d.ledger.Release(ctx, key); relErr != nil {
			log.Warn().Err(relErr).Msg("failed to release delivery key")
		}
		return false
	}
	log.Info().Msg("webhook delivered")
	d.metrics.Webhook(string(payload.Event), "delivered")
	return true
}

// ListingRef resolves the public listing message of dl.
func ListingRef(dl *deal.Deal) (notification.MessageRef, bool) {
	ref := notification.MessageRef{ChannelID: dl.ListingChannelID, MessageID: dl.ListingMessageID}
	if ref.Valid() {
		return ref, true
	}
	if parsed, ok := notification.ParseMessageURL(dl.ListingMessageURL); ok {
		if ref.MessageID != "" {
			parsed.MessageID = ref.MessageID
		}
		return parsed, true
	}
	return notification.MessageRef{}, false
}

// ClaimButton is the public claim control of a listing.
func ClaimButton(dealID string, enabled bool) notification.Button {
	label := "Claim Deal"
	if !enabled {
		label = "Claimed"
	}
	return notification.Button{
		Label:    label,
		CustomID: event.NewToken(event.ActionClaim, dealID).String(),
		Style:    notification.StyleSuccess,
		Disabled: !enabled,
	}
}

// SetListingClaimable toggles the listing's claim button.
func (d *Dispatcher) SetListingClaimable(ctx context.Context, dl *deal.Deal, claimable bool) bool {
	ref, ok := ListingRef(dl)
	if !ok {
		d.logger.Debug().Str("deal_id", dl.ID).Msg("deal has no listing message")
		return false
	}
	return d.Edit(ctx, ref, notification.WithButtons(ClaimButton(dl.ID, claimable)))
}

// UpdateListingFields rewrites the embed fields of the listing message and
// leaves its title and claim button as they are.
func (d *Dispatcher) UpdateListingFields(ctx context.Context, dl *deal.Deal, fields []notification.Field) bool {
	ref, ok := ListingRef(dl)
	if !ok {
		d.logger.Debug().Str("deal_id", dl.ID).Msg("deal has no listing message")
		return false
	}
	if fields == nil {
		fields = []notification.Field{}
	}
	return d.Edit(ctx, ref, notification.Edit{Fields: &fields})
}

// MarkListingExpired greys out the listing and disables its claim button.
func (d *Dispatcher) MarkListingExpired(ctx context.Context, dl *deal.Deal) bool {
	ref, ok := ListingRef(dl)
	if !ok {
		d.logger.Warn().Str("deal_id", dl.ID).Msg("expired deal has no resolvable listing message")
		return false
	}
	color := notification.ColorExpired
	button := ClaimButton(dl.ID, false)
	button.Label = "Expired"
	buttons := []notification.Button{button}
	return d.Edit(ctx, ref, notification.Edit{
		TitlePrefix: notification.ExpiredTitlePrefix,
		Color:       &color,
		Buttons:     &buttons,
	})
}
