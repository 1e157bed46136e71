package notification

import (
	"errors"
	"regexp"
	"strings"
)

// ButtonStyle is the visual weight of a button.
type ButtonStyle string

const (
	StylePrimary   ButtonStyle = "PRIMARY"
	StyleSecondary ButtonStyle = "SECONDARY"
	StyleSuccess   ButtonStyle = "SUCCESS"
	StyleDanger    ButtonStyle = "DANGER"
)

// Colors used for deal embeds.
const (
	ColorNeutral = 0xFFED00
	ColorSuccess = 0x2ECC71
	ColorDanger  = 0xE74C3C
	ColorExpired = 0x95A5A6
)

// ExpiredTitlePrefix marks a listing message as expired.
const ExpiredTitlePrefix = "⏱️ EXPIRED • "

var ErrChannelGone = errors.New("channel no longer exists")

// Button is an interactive control. CustomID carries a routing token.
type Button struct {
	Label    string      `json:"label"`
	CustomID string      `json:"customId"`
	Style    ButtonStyle `json:"style"`
	Disabled bool        `json:"disabled"`
}

// Field is a labelled value shown in a message card.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Message is an outbound message, optionally rendered as a card with buttons.
type Message struct {
	Content     string   `json:"content,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Color       int      `json:"color,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Fields      []Field  `json:"fields,omitempty"`
	Buttons     []Button `json:"buttons,omitempty"`
}

// Edit changes an existing message. Nil members are left unchanged.
type Edit struct {
	Content     *string   `json:"content,omitempty"`
	Description *string   `json:"description,omitempty"`
	TitlePrefix string    `json:"titlePrefix,omitempty"`
	Color       *int      `json:"color,omitempty"`
	Fields      *[]Field  `json:"fields,omitempty"`
	Buttons     *[]Button `json:"buttons,omitempty"`
}

func (e Edit) Empty() bool {
	return e.Content == nil && e.Description == nil && e.TitlePrefix == "" && e.Color == nil && e.Fields == nil && e.Buttons == nil
}

// WithButtons returns an edit replacing the message's buttons.
func WithButtons(buttons ...Button) Edit {
	if buttons == nil {
		buttons = []Button{}
	}
	return Edit{Buttons: &buttons}
}

// MessageRef points at a posted message.
type MessageRef struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

func (r MessageRef) Valid() bool {
	return r.ChannelID != "" && r.MessageID != ""
}

var messageURL = regexp.MustCompile(`/channels/(\d+|@me)/(\d+)/(\d+)`)

// ParseMessageURL extracts the channel and message ids from a message link.
func ParseMessageURL(url string) (MessageRef, bool) {
	m := messageURL.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return MessageRef{}, false
	}
	return MessageRef{ChannelID: m[2], MessageID: m[3]}, true
}

// ChannelSpec describes a private channel visible to the given members and roles.
type ChannelSpec struct {
	Name       string   `json:"name"`
	CategoryID string   `json:"categoryId,omitempty"`
	Topic      string   `json:"topic,omitempty"`
	MemberIDs  []string `json:"memberIds"`
	RoleIDs    []string `json:"roleIds,omitempty"`
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

const maxChannelName = 95

// ChannelName builds a platform-safe channel name from parts.
func ChannelName(parts ...string) string {
	s := strings.ToLower(strings.Join(parts, "-"))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxChannelName {
		s = strings.TrimRight(s[:maxChannelName], "-")
	}
	if s == "" {
		return "deal"
	}
	return s
}
