package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/execution-hub/dealflow/internal/domain/session"
)

// RedisStore is a session.Store shared by every process instance.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, prefix string, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, prefix: prefix, now: now}
}

func (s *RedisStore) claimKey(channelID string) string {
	return s.prefix + "claim:" + channelID
}

func (s *RedisStore) uploadKey(actorID, dealID string) string {
	return s.prefix + "upload:" + actorID + ":" + dealID
}

func (s *RedisStore) GetClaim(ctx context.Context, channelID string) (*session.ClaimContext, error) {
	key := s.claimKey(channelID)
	var cc session.ClaimContext
	ok, err := s.load(ctx, key, &cc)
	if err != nil || !ok {
		return nil, err
	}
	if cc.IsExpired(s.now()) {
		return nil, s.client.Del(ctx, key).Err()
	}
	return &cc, nil
}

func (s *RedisStore) SetClaim(ctx context.Context, cc *session.ClaimContext) error {
	return s.store(ctx, s.claimKey(cc.ChannelID), cc, cc.ExpiresAt)
}

func (s *RedisStore) DeleteClaim(ctx context.Context, channelID string) error {
	return s.client.Del(ctx, s.claimKey(channelID)).Err()
}

func (s *RedisStore) GetUpload(ctx context.Context, actorID, dealID string) (*session.Upload, error) {
	key := s.uploadKey(actorID, dealID)
	var u session.Upload
	ok, err := s.load(ctx, key, &u)
	if err != nil || !ok {
		return nil, err
	}
	if u.IsExpired(s.now()) {
		return nil, s.client.Del(ctx, key).Err()
	}
	return &u, nil
}

func (s *RedisStore) SetUpload(ctx context.Context, u *session.Upload) error {
	return s.store(ctx, s.uploadKey(u.ActorID, u.DealID), u, u.ExpiresAt)
}

func (s *RedisStore) DeleteUpload(ctx context.Context, actorID, dealID string) error {
	return s.client.Del(ctx, s.uploadKey(actorID, dealID)).Err()
}

func (s *RedisStore) ListUploads(ctx context.Context, actorID string) ([]*session.Upload, error) {
	now := s.now()
	var out []*session.Upload
	iter := s.client.Scan(ctx, 0, s.prefix+"upload:"+actorID+":*", 100).Iterator()
	for iter.Next(ctx) {
		var u session.Upload
		ok, err := s.load(ctx, iter.Val(), &u)
		if err != nil {
			return nil, err
		}
		if !ok || u.IsExpired(now) {
			continue
		}
		out = append(out, &u)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan uploads: %w", err)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *RedisStore) load(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) store(ctx context.Context, key string, v any, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.client.Del(ctx, key).Err()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}
