package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_webhook.go -package=mocks . Webhook

import (
	"context"
)

// Platform is the outbound side of the messaging platform.
type Platform interface {
	SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, edit Edit) error
	CreatePrivateChannel(ctx context.Context, spec ChannelSpec) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	SendDirectMessage(ctx context.Context, userID string, msg Message) (MessageRef, error)
	CountCategoryChannels(ctx context.Context, categoryID string) (int, error)
}

// Webhook delivers payloads to the automation endpoint.
type Webhook interface {
	Post(ctx context.Context, payload *WebhookPayload) error
}

// Ledger remembers which one-time deliveries already happened.
type Ledger interface {
	// Claim records key and reports whether it was newly recorded.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
