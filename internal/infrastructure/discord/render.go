package discord

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/notification"
)

const buttonsPerRow = 5

var buttonStyles = map[notification.ButtonStyle]discordgo.ButtonStyle{
	notification.StylePrimary:   discordgo.PrimaryButton,
	notification.StyleSecondary: discordgo.SecondaryButton,
	notification.StyleSuccess:   discordgo.SuccessButton,
	notification.StyleDanger:    discordgo.DangerButton,
}

func renderButtons(buttons []notification.Button) []discordgo.MessageComponent {
	rows := []discordgo.MessageComponent{}
	for start := 0; start < len(buttons); start += buttonsPerRow {
		end := start + buttonsPerRow
		if end > len(buttons) {
			end = len(buttons)
		}
		row := discordgo.ActionsRow{}
		for _, b := range buttons[start:end] {
			style, ok := buttonStyles[b.Style]
			if !ok {
				style = discordgo.SecondaryButton
			}
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				Style:    style,
				CustomID: b.CustomID,
				Disabled: b.Disabled,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func renderEmbed(msg notification.Message) *discordgo.MessageEmbed {
	if msg.Title == "" && msg.Description == "" && len(msg.Fields) == 0 && msg.ImageURL == "" {
		return nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Color,
	}
	if msg.ImageURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: msg.ImageURL}
	}
	embed.Fields = renderFields(msg.Fields)
	return embed
}

func renderFields(fields []notification.Field) []*discordgo.MessageEmbedField {
	var out []*discordgo.MessageEmbedField
	for _, f := range fields {
		out = append(out, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func renderMessage(msg notification.Message) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content:    msg.Content,
		Components: renderButtons(msg.Buttons),
	}
	if embed := renderEmbed(msg); embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	return send
}

// needsEmbed reports whether applying e requires the message's current embed.
func needsEmbed(e notification.Edit) bool {
	return e.Description != nil || e.TitlePrefix != "" || e.Color != nil || e.Fields != nil
}

// renderEdit builds the edit request. existing is only consulted when the
// edit touches the embed.
func renderEdit(ref notification.MessageRef, existing *discordgo.Message, e notification.Edit) *discordgo.MessageEdit {
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID)
	edit.Content = e.Content
	if e.Buttons != nil {
		components := renderButtons(*e.Buttons)
		edit.Components = &components
	}
	if !needsEmbed(e) || existing == nil || len(existing.Embeds) == 0 {
		return edit
	}
	first := *existing.Embeds[0]
	if e.TitlePrefix != "" && !strings.HasPrefix(first.Title, e.TitlePrefix) {
		first.Title = e.TitlePrefix + first.Title
	}
	if e.Description != nil {
		first.Description = *e.Description
	}
	if e.Color != nil {
		first.Color = *e.Color
	}
	if e.Fields != nil {
		first.Fields = renderFields(*e.Fields)
	}
	embeds := append([]*discordgo.MessageEmbed{&first}, existing.Embeds[1:]...)
	edit.Embeds = &embeds
	return edit
}

// channelOverwrites hides the channel from everyone except the listed
// members, roles and the bot itself.
func channelOverwrites(guildID, botID string, spec notification.ChannelSpec) []*discordgo.PermissionOverwrite {
	const allow = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages |
		discordgo.PermissionAttachFiles | discordgo.PermissionReadMessageHistory
	out := []*discordgo.PermissionOverwrite{{
		ID:   guildID,
		Type: discordgo.PermissionOverwriteTypeRole,
		Deny: discordgo.PermissionViewChannel,
	}}
	for _, id := range spec.MemberIDs {
		out = append(out, &discordgo.PermissionOverwrite{ID: id, Type: discordgo.PermissionOverwriteTypeMember, Allow: allow})
	}
	for _, id := range spec.RoleIDs {
		out = append(out, &discordgo.PermissionOverwrite{ID: id, Type: discordgo.PermissionOverwriteTypeRole, Allow: allow})
	}
	if botID != "" {
		out = append(out, &discordgo.PermissionOverwrite{ID: botID, Type: discordgo.PermissionOverwriteTypeMember, Allow: allow | discordgo.PermissionManageChannels})
	}
	return out
}

func renderForm(form *event.Form) *discordgo.InteractionResponseData {
	rows := make([]discordgo.MessageComponent, 0, len(form.Inputs))
	for _, in := range form.Inputs {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    in.ID,
				Label:       in.Label,
				Style:       discordgo.TextInputShort,
				Placeholder: in.Placeholder,
				Required:    in.Required,
				MaxLength:   in.MaxLength,
			},
		}})
	}
	return &discordgo.InteractionResponseData{CustomID: form.CustomID, Title: form.Title, Components: rows}
}

// isGone reports whether err says the channel or message was deleted.
func isGone(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage:
			return true
		}
	}
	return rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}

func actorOf(i *discordgo.Interaction) (string, []string) {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID, i.Member.Roles
	}
	if i.User != nil {
		return i.User.ID, nil
	}
	return "", nil
}

// interactionEvent normalizes a button press or modal submission.
func interactionEvent(i *discordgo.Interaction, now time.Time) (event.Event, bool) {
	actor, roles := actorOf(i)
	ev := event.Event{
		ID:         i.ID,
		ActorID:    actor,
		ActorRoles: roles,
		ChannelID:  i.ChannelID,
		ReceivedAt: now,
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		ev.Kind = event.KindButton
		ev.CustomID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind = event.KindForm
		ev.CustomID = data.CustomID
		ev.Fields = map[string]string{}
		collectInputs(data.Components, ev.Fields)
	default:
		return event.Event{}, false
	}
	return ev, actor != ""
}

func collectInputs(components []discordgo.MessageComponent, into map[string]string) {
	for _, c := range components {
		switch v := c.(type) {
		case *discordgo.ActionsRow:
			collectInputs(v.Components, into)
		case discordgo.ActionsRow:
			collectInputs(v.Components, into)
		case *discordgo.TextInput:
			into[v.CustomID] = v.Value
		case discordgo.TextInput:
			into[v.CustomID] = v.Value
		}
	}
}

// messageEvent normalizes a posted message. Bot messages and messages
// without attachments are dropped.
func messageEvent(m *discordgo.Message, now time.Time) (event.Event, bool) {
	if m.Author == nil || m.Author.Bot || len(m.Attachments) == 0 {
		return event.Event{}, false
	}
	ev := event.Event{
		ID:         m.ID,
		Kind:       event.KindChannelMessage,
		ActorID:    m.Author.ID,
		ChannelID:  m.ChannelID,
		MessageID:  m.ID,
		ReceivedAt: now,
	}
	if m.GuildID == "" {
		ev.Kind = event.KindDirectMessage
	}
	if m.Member != nil {
		ev.ActorRoles = m.Member.Roles
	}
	for _, a := range m.Attachments {
		ev.Attachments = append(ev.Attachments, event.Attachment{
			ID:          a.ID,
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        int64(a.Size),
		})
	}
	return ev, true
}
