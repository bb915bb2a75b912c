package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MediaReleaser gives a media-delivery handle back to its owner. Release
// must be safe to call more than once for the same handle.
type MediaReleaser interface {
	Release(ctx context.Context, handle string) error
}

// HandleAcquirer obtains a media-delivery handle before a session starts.
type HandleAcquirer interface {
	Acquire(ctx context.Context, userID, contentID uuid.UUID) (string, error)
}

const mediaHandleKeyPrefix = "media:handle:"

// RedisMediaHandles tracks outstanding playback handles in Redis. Each
// handle expires on its own after ttl so a lost release cannot leak it.
type RedisMediaHandles struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMediaHandles(client *redis.Client, ttl time.Duration) *RedisMediaHandles {
	return &RedisMediaHandles{client: client, ttl: ttl}
}

func (m *RedisMediaHandles) Acquire(ctx context.Context, userID, contentID uuid.UUID) (string, error) {
	handle := uuid.NewString()
	owner := userID.String() + ":" + contentID.String()

	if err := m.client.Set(ctx, mediaHandleKeyPrefix+handle, owner, m.ttl).Err(); err != nil {
		return "", fmt.Errorf("acquire media handle: %w", err)
	}
	return handle, nil
}

func (m *RedisMediaHandles) Release(ctx context.Context, handle string) error {
	// DEL of a missing key is a no-op, which keeps release idempotent.
	if err := m.client.Del(ctx, mediaHandleKeyPrefix+handle).Err(); err != nil {
		return fmt.Errorf("release media handle: %w", err)
	}
	return nil
}
