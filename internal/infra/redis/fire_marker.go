package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FireMarker records fired schedule slots with SET NX so every service
// instance agrees on which guild slot already dispatched.
type FireMarker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewFireMarker(client *redis.Client, ttl time.Duration) *FireMarker {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &FireMarker{client: client, ttl: ttl}
}

func (m *FireMarker) MarkFired(ctx context.Context, guildID, slot string) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key(guildID, slot), "1", m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark fired: %w", err)
	}
	return ok, nil
}

func (m *FireMarker) key(guildID, slot string) string {
	return "quiz:fired:" + guildID + ":" + slot
}
