package session

import "context"

// Store holds ephemeral sessions. Get methods return nil without error for
// missing or expired entries and drop expired entries as they are read.
// Set methods overwrite unconditionally.
type Store interface {
	GetClaim(ctx context.Context, channelID string) (*ClaimContext, error)
	SetClaim(ctx context.Context, c *ClaimContext) error
	DeleteClaim(ctx context.Context, channelID string) error

	GetUpload(ctx context.Context, actorID, dealID string) (*Upload, error)
	SetUpload(ctx context.Context, u *Upload) error
	DeleteUpload(ctx context.Context, actorID, dealID string) error
	// ListUploads returns the actor's live upload sessions, newest first.
	ListUploads(ctx context.Context, actorID string) ([]*Upload, error)
}
