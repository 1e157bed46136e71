package orchestrator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/execution-hub/dealflow/internal/application/guard"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/fault"
	"github.com/execution-hub/dealflow/internal/domain/notification"
	"github.com/execution-hub/dealflow/internal/domain/session"
)

type handlerFunc func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error)

type route struct {
	kind    event.Kind
	handler handlerFunc
}

var routes = map[event.Action]route{
	event.ActionClaim: {event.KindButton, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		form, res, err := o.BeginClaim(ctx, t.DealID, actorOf(ev))
		return formReply(form, res), err
	}},
	event.ActionClaimSubmit: {event.KindForm, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		return notice(o.Claim(ctx, ClaimRequest{
			DealID:      t.DealID,
			Actor:       actorOf(ev),
			SellerCode:  ev.Fields[event.InputSellerCode],
			PricingMode: ev.Fields[event.InputPricingMode],
		}))
	}},
	event.ActionStartVerification: {event.KindButton, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		return notice(o.StartVerification(ctx, t.DealID, actorOf(ev)))
	}},
	event.ActionConfirmIdentity: {event.KindButton, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		return notice(o.ConfirmIdentity(ctx, t.DealID, actorOf(ev)))
	}},
	event.ActionRejectIdentity: {event.KindButton, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		return notice(o.RejectIdentity(ctx, t.DealID, actorOf(ev)))
	}},
	event.ActionApprove: {event.KindButton, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		prompt := notification.MessageRef{ChannelID: ev.ChannelID, MessageID: ev.MessageID}
		return notice(o.Approve(ctx, t.DealID, actorOf(ev), prompt))
	}},
	event.ActionCancel: {event.KindButton, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		return notice(o.Cancel(ctx, t.DealID, actorOf(ev)))
	}},
	event.ActionRequestProof: {event.KindButton, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		return notice(o.RequestProofUpload(ctx, t.DealID, actorOf(ev)))
	}},
	event.ActionRequestLabel: {event.KindButton, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		form, res, err := o.RequestLabelUpload(ctx, t.DealID, actorOf(ev))
		return formReply(form, res), err
	}},
	event.ActionTrackingSubmit: {event.KindForm, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		return notice(o.SubmitTrackingCode(ctx, t.DealID, actorOf(ev), ev.Fields[event.InputTrackingCode]))
	}},
	event.ActionWithdraw: {event.KindButton, func(o *Orchestrator, ctx context.Context, ev event.Event, t event.Token) (event.Reply, error) {
		return notice(o.Withdraw(ctx, t.DealID, actorOf(ev)))
	}},
}

func actorOf(ev event.Event) guard.Actor {
	return guard.Actor{ID: ev.ActorID, Roles: ev.ActorRoles}
}

func notice(res *Result, err error) (event.Reply, error) {
	if err != nil || res == nil {
		return event.Reply{}, err
	}
	return event.Notice(res.Message), nil
}

func formReply(form *event.Form, res *Result) event.Reply {
	if form != nil {
		return event.Reply{Form: form, Ephemeral: true}
	}
	if res != nil {
		return event.Notice(res.Message)
	}
	return event.Reply{}
}

// Handle routes one inbound event and always produces the single reply owed
// to the actor. An empty reply means the event needed no answer.
func (o *Orchestrator) Handle(ctx context.Context, ev event.Event) event.Reply {
	log := o.logger.With().
		Str("event_id", ev.ID).
		Str("kind", string(ev.Kind)).
		Str("actor_id", ev.ActorID).
		Logger()

	reply, err := o.dispatch(ctx, ev)
	if err != nil {
		return failure(log, err)
	}
	return reply
}

func (o *Orchestrator) dispatch(ctx context.Context, ev event.Event) (event.Reply, error) {
	switch ev.Kind {
	case event.KindButton, event.KindForm:
		t, err := event.ParseToken(ev.CustomID)
		if err != nil {
			return event.Reply{}, fault.InvalidState("This button is no longer valid.")
		}
		r, ok := routes[t.Action]
		if !ok || r.kind != ev.Kind {
			return event.Reply{}, fault.InvalidState("This button is no longer valid.")
		}
		return r.handler(o, ctx, ev, t)
	case event.KindDirectMessage:
		return o.handleDirectMessage(ctx, ev)
	case event.KindChannelMessage:
		res, err := o.RecordEvidence(ctx, ev.ChannelID, actorOf(ev), ev.Attachments)
		if err != nil {
			return event.Reply{}, err
		}
		if res == nil {
			return event.Reply{}, nil
		}
		return event.Reply{Content: res.Message}, nil
	default:
		return event.Reply{}, fault.InvalidState("Unsupported interaction.")
	}
}

// handleDirectMessage routes the first usable attachment of a DM to the
// actor's most recent live upload session.
func (o *Orchestrator) handleDirectMessage(ctx context.Context, ev event.Event) (event.Reply, error) {
	if len(ev.Attachments) == 0 {
		return event.Reply{}, nil
	}
	uploads, err := o.sessions.ListUploads(ctx, ev.ActorID)
	if err != nil {
		o.logger.Warn().Err(err).Str("actor_id", ev.ActorID).Msg("failed to list upload sessions")
	}
	if len(uploads) == 0 {
		return event.Reply{}, o.noUploadSession(ctx, ev.ActorID)
	}
	u := uploads[0]
	file := ev.Attachments[0]
	switch u.Kind {
	case session.UploadPaymentProof:
		return notice(o.UploadProof(ctx, u.DealID, actorOf(ev), file))
	case session.UploadShippingLabel:
		return notice(o.UploadLabel(ctx, u.DealID, actorOf(ev), file))
	}
	return event.Reply{}, fault.InvalidState("Unsupported upload.")
}

// noUploadSession tells an actor with no live window whether one lapsed.
func (o *Orchestrator) noUploadSession(ctx context.Context, actorID string) error {
	waiting, err := o.deals.Query(ctx, deal.Query{
		Where: deal.And{
			deal.Eq{Field: deal.FieldRequesterID, Value: actorID},
			deal.Eq{Field: deal.FieldStatus, Value: deal.StatusClaimProcessing},
			deal.NotBlank{Field: deal.FieldApprovedAt},
			deal.Blank{Field: deal.FieldShippingLabelURL},
		},
		Limit: 1,
	})
	if err != nil {
		return fault.ExternalIO("query awaiting deals", err)
	}
	if len(waiting) > 0 {
		return uploadExpired("file")
	}
	return fault.NotFound("There is no upload waiting for you.")
}

func failure(log zerolog.Logger, err error) event.Reply {
	kind := fault.KindOf(err)
	if kind == fault.KindExternalIO {
		log.Error().Err(err).Msg("event handling failed")
	} else {
		log.Debug().Err(err).Str("error_kind", string(kind)).Msg("event rejected")
	}
	return event.Reply{
		Content:   fault.UserMessage(err),
		Ephemeral: true,
		ErrorKind: kind,
	}
}
