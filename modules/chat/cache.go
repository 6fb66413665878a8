package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	domain "github.com/example/chat-relay/domain/chat"
)

// historyCache is a cache-aside layer over the latest history page of
// each room, the page every client loads on entry. Older pages
// (before != zero) always hit the database. A nil *historyCache is
// valid and disables caching.
type historyCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

func newHistoryCache(client *redis.Client, ttl time.Duration) *historyCache {
	if client == nil {
		return nil
	}
	return &historyCache{client: client, ttl: ttl}
}

func historyKey(roomID string, limit int) string {
	return fmt.Sprintf("history:%s:%d", roomID, limit)
}

// fetch returns the cached page or loads it through singleflight so a
// cold room does not stampede the database. Cache errors degrade to a
// direct load; they are never surfaced to the reader.
func (c *historyCache) fetch(ctx context.Context, roomID string, limit int, load func() ([]domain.Message, error)) ([]domain.Message, error) {
	if c == nil {
		return load()
	}

	key := historyKey(roomID, limit)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var messages []domain.Message
		if err := json.Unmarshal(data, &messages); err == nil {
			return messages, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return load()
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		messages, err := load()
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(messages); err == nil {
			c.client.Set(ctx, key, data, c.ttl)
		}
		return messages, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Message), nil
}

// invalidate drops every cached page for the room. Called after each
// write so readers never see a stale latest page.
func (c *historyCache) invalidate(ctx context.Context, roomID string) {
	if c == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("history:%s:*", roomID), 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}
