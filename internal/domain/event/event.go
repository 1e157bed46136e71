package event

import (
	"path"
	"strings"
	"time"

	"github.com/execution-hub/dealflow/internal/domain/fault"
)

// Kind is the type of inbound platform event.
type Kind string

const (
	KindButton         Kind = "button"
	KindForm           Kind = "form"
	KindDirectMessage  Kind = "direct_message"
	KindChannelMessage Kind = "channel_message"
)

// Form field ids.
const (
	InputSellerCode   = "seller_code"
	InputPricingMode  = "pricing_mode"
	InputTrackingCode = "tracking_code"
)

// Event is a normalized inbound platform event.
type Event struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	CustomID    string            `json:"customId,omitempty"`
	ActorID     string            `json:"actorId"`
	ActorRoles  []string          `json:"actorRoles,omitempty"`
	ChannelID   string            `json:"channelId,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	ReceivedAt  time.Time         `json:"receivedAt"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

var imageExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".heic": true}

func (a Attachment) IsImage() bool {
	if strings.HasPrefix(strings.ToLower(a.ContentType), "image/") {
		return true
	}
	return imageExt[strings.ToLower(path.Ext(a.Filename))]
}

func (a Attachment) IsPDF() bool {
	if strings.EqualFold(a.ContentType, "application/pdf") {
		return true
	}
	return strings.EqualFold(path.Ext(a.Filename), ".pdf")
}

// Reply is the single response owed to the actor for an event.
type Reply struct {
	Content   string     `json:"content,omitempty"`
	Ephemeral bool       `json:"ephemeral"`
	Form      *Form      `json:"form,omitempty"`
	ErrorKind fault.Kind `json:"errorKind,omitempty"`
}

// Form asks the actor for text input; submission arrives as a KindForm event
// carrying CustomID.
type Form struct {
	CustomID string  `json:"customId"`
	Title    string  `json:"title"`
	Inputs   []Input `json:"inputs"`
}

type Input struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
	MaxLength   int    `json:"maxLength,omitempty"`
}

func Notice(msg string) Reply {
	return Reply{Content: msg, Ephemeral: true}
}
