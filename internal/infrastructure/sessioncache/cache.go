// Package sessioncache implements session.Store on top of an in-process TTL
// cache or a shared Redis instance.
package sessioncache

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/execution-hub/dealflow/internal/domain/session"
)

const cleanupInterval = 5 * time.Minute

// Cache is a single-instance session.Store. Expiry is judged against the
// injected clock on every read; the underlying cache's own expiry only
// bounds memory.
type Cache struct {
	claims  *cache.Cache
	uploads *cache.Cache
	now     func() time.Time
}

func New(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		claims:  cache.New(cache.NoExpiration, cleanupInterval),
		uploads: cache.New(cache.NoExpiration, cleanupInterval),
		now:     now,
	}
}

func uploadKey(actorID, dealID string) string {
	return actorID + "/" + dealID
}

func (c *Cache) GetClaim(_ context.Context, channelID string) (*session.ClaimContext, error) {
	v, ok := c.claims.Get(channelID)
	if !ok {
		return nil, nil
	}
	cc := v.(*session.ClaimContext)
	if cc.IsExpired(c.now()) {
		c.claims.Delete(channelID)
		return nil, nil
	}
	cp := *cc
	cp.EvidenceIDs = append([]string(nil), cc.EvidenceIDs...)
	return &cp, nil
}

func (c *Cache) SetClaim(_ context.Context, cc *session.ClaimContext) error {
	ttl := cc.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		c.claims.Delete(cc.ChannelID)
		return nil
	}
	cp := *cc
	cp.EvidenceIDs = append([]string(nil), cc.EvidenceIDs...)
	c.claims.Set(cc.ChannelID, &cp, ttl)
	return nil
}

func (c *Cache) DeleteClaim(_ context.Context, channelID string) error {
	c.claims.Delete(channelID)
	return nil
}

func (c *Cache) GetUpload(_ context.Context, actorID, dealID string) (*session.Upload, error) {
	key := uploadKey(actorID, dealID)
	v, ok := c.uploads.Get(key)
	if !ok {
		return nil, nil
	}
	u := v.(*session.Upload)
	if u.IsExpired(c.now()) {
		c.uploads.Delete(key)
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (c *Cache) SetUpload(_ context.Context, u *session.Upload) error {
	key := uploadKey(u.ActorID, u.DealID)
	ttl := u.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		c.uploads.Delete(key)
		return nil
	}
	cp := *u
	c.uploads.Set(key, &cp, ttl)
	return nil
}

func (c *Cache) DeleteUpload(_ context.Context, actorID, dealID string) error {
	c.uploads.Delete(uploadKey(actorID, dealID))
	return nil
}

func (c *Cache) ListUploads(_ context.Context, actorID string) ([]*session.Upload, error) {
	now := c.now()
	prefix := actorID + "/"
	var out []*session.Upload
	for key, item := range c.uploads.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		u := item.Object.(*session.Upload)
		if u.IsExpired(now) {
			c.uploads.Delete(key)
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(uploads []*session.Upload) {
	sort.Slice(uploads, func(i, j int) bool {
		return uploads[i].CreatedAt.After(uploads[j].CreatedAt)
	})
}
