// Package discord connects the deal flow to a Discord guild: it implements
// notification.Platform over the REST API and turns gateway interactions and
// messages into normalized events.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/notification"
)

const eventTimeout = 30 * time.Second

// Handler answers one normalized event.
type Handler interface {
	Handle(ctx context.Context, ev event.Event) event.Reply
}

// Gateway is the Discord adapter.
type Gateway struct {
	session *discordgo.Session
	guildID string
	now     func() time.Time
	logger  zerolog.Logger

	mu      sync.RWMutex
	ctx     context.Context
	handler Handler
	wg      sync.WaitGroup
}

func NewGateway(token, guildID string, logger zerolog.Logger) (*Gateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent
	g := &Gateway{
		session: s,
		guildID: guildID,
		now:     time.Now,
		logger:  logger.With().Str("service", "discord").Logger(),
		ctx:     context.Background(),
	}
	s.AddHandler(g.onInteraction)
	s.AddHandler(g.onMessage)
	return g, nil
}

// Start opens the gateway connection. Events received before Start are
// dropped; ctx bounds the handling of every later event.
func (g *Gateway) Start(ctx context.Context, h Handler) error {
	g.mu.Lock()
	g.ctx = ctx
	g.handler = h
	g.mu.Unlock()
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	g.logger.Info().Str("guild_id", g.guildID).Msg("discord gateway connected")
	return nil
}

// Close disconnects and waits for in-flight handlers.
func (g *Gateway) Close() error {
	err := g.session.Close()
	g.wg.Wait()
	return err
}

func (g *Gateway) target() (context.Context, Handler) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ctx, g.handler
}

func (g *Gateway) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	base, h := g.target()
	if h == nil {
		return
	}
	ev, ok := interactionEvent(ic.Interaction, g.now().UTC())
	if !ok {
		return
	}
	g.wg.Add(1)
	defer g.wg.Done()
	ctx, cancel := context.WithTimeout(base, eventTimeout)
	defer cancel()
	log := g.logger.With().Str("event_id", ev.ID).Str("actor_id", ev.ActorID).Str("custom_id", ev.CustomID).Logger()

	tok, err := event.ParseToken(ev.CustomID)
	if ev.Kind == event.KindButton && err == nil && tok.Action.OpensForm() {
		// Forms must be the first response, so these are answered inline.
		g.respondInline(ctx, s, ic.Interaction, h.Handle(ctx, ev), log)
		return
	}

	if err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx)); err != nil {
		log.Warn().Err(err).Msg("defer interaction")
		return
	}
	reply := h.Handle(ctx, ev)
	content := reply.Content
	if content == "" && reply.Form != nil {
		content = "Please try that button again."
	}
	if content == "" {
		if err := s.InteractionResponseDelete(ic.Interaction, discordgo.WithContext(ctx)); err != nil {
			log.Debug().Err(err).Msg("delete deferred response")
		}
		return
	}
	if _, err := s.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx)); err != nil {
		log.Warn().Err(err).Msg("send interaction reply")
	}
}

func (g *Gateway) respondInline(ctx context.Context, s *discordgo.Session, i *discordgo.Interaction, reply event.Reply, log zerolog.Logger) {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseModal}
	if reply.Form != nil {
		resp.Data = renderForm(reply.Form)
	} else {
		resp.Type = discordgo.InteractionResponseChannelMessageWithSource
		resp.Data = &discordgo.InteractionResponseData{Content: reply.Content}
		if reply.Ephemeral {
			resp.Data.Flags = discordgo.MessageFlagsEphemeral
		}
	}
	if err := s.InteractionRespond(i, resp, discordgo.WithContext(ctx)); err != nil {
		log.Warn().Err(err).Msg("respond to interaction")
	}
}

func (g *Gateway) onMessage(s *discordgo.Session, mc *discordgo.MessageCreate) {
	base, h := g.target()
	if h == nil {
		return
	}
	ev, ok := messageEvent(mc.Message, g.now().UTC())
	if !ok {
		return
	}
	g.wg.Add(1)
	defer g.wg.Done()
	ctx, cancel := context.WithTimeout(base, eventTimeout)
	defer cancel()

	reply := h.Handle(ctx, ev)
	if reply.Content == "" {
		return
	}
	if _, err := s.ChannelMessageSendReply(mc.ChannelID, reply.Content, mc.Reference(), discordgo.WithContext(ctx)); err != nil {
		g.logger.Warn().Err(err).Str("channel_id", mc.ChannelID).Msg("reply to message")
	}
}

// SendMessage posts msg to a channel.
func (g *Gateway) SendMessage(ctx context.Context, channelID string, msg notification.Message) (notification.MessageRef, error) {
	m, err := g.session.ChannelMessageSendComplex(channelID, renderMessage(msg), discordgo.WithContext(ctx))
	if err != nil {
		return notification.MessageRef{}, g.wrap(err)
	}
	return notification.MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}, nil
}

func (g *Gateway) EditMessage(ctx context.Context, ref notification.MessageRef, e notification.Edit) error {
	var existing *discordgo.Message
	if needsEmbed(e) {
		m, err := g.session.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
		if err != nil {
			return g.wrap(err)
		}
		existing = m
	}
	_, err := g.session.ChannelMessageEditComplex(renderEdit(ref, existing, e), discordgo.WithContext(ctx))
	return g.wrap(err)
}

func (g *Gateway) CreatePrivateChannel(ctx context.Context, spec notification.ChannelSpec) (string, error) {
	botID := ""
	if g.session.State != nil && g.session.State.User != nil {
		botID = g.session.State.User.ID
	}
	ch, err := g.session.GuildChannelCreateComplex(g.guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		ParentID:             spec.CategoryID,
		PermissionOverwrites: channelOverwrites(g.guildID, botID, spec),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (g *Gateway) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := g.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return g.wrap(err)
}

func (g *Gateway) SendDirectMessage(ctx context.Context, userID string, msg notification.Message) (notification.MessageRef, error) {
	ch, err := g.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return notification.MessageRef{}, err
	}
	return g.SendMessage(ctx, ch.ID, msg)
}

func (g *Gateway) CountCategoryChannels(ctx context.Context, categoryID string) (int, error) {
	channels, err := g.session.GuildChannels(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ch := range channels {
		if ch.ParentID == categoryID {
			n++
		}
	}
	return n, nil
}

func (g *Gateway) wrap(err error) error {
	if err == nil {
		return nil
	}
	if isGone(err) && !errors.Is(err, notification.ErrChannelGone) {
		return fmt.Errorf("%w: %v", notification.ErrChannelGone, err)
	}
	return err
}

var _ notification.Platform = (*Gateway)(nil)
