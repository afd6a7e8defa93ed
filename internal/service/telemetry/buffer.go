package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"parkclash/internal/model"
	rdb "parkclash/internal/redis"
	"parkclash/internal/service/storage"

	"github.com/redis/go-redis/v9"
)

// RedisBuffer keeps entries in the list match:<id>:telemetry. The list has no
// TTL so nothing is lost if a flush is delayed.
type RedisBuffer struct {
	client *redis.Client
}

func NewRedisBuffer(client *redis.Client) *RedisBuffer {
	return &RedisBuffer{client: client}
}

func (b *RedisBuffer) Append(ctx context.Context, entry model.TelemetryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal telemetry entry: %w", err)
	}
	return b.client.RPush(ctx, rdb.TelemetryKey(entry.MatchID), data).Err()
}

func (b *RedisBuffer) Entries(ctx context.Context, matchID string) ([]model.TelemetryEntry, error) {
	raw, err := b.client.LRange(ctx, rdb.TelemetryKey(matchID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.TelemetryEntry, 0, len(raw))
	for _, item := range raw {
		var entry model.TelemetryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode telemetry entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (b *RedisBuffer) Trim(ctx context.Context, matchID string, n int) error {
	// LTRIM removes the key once the list is empty
	return b.client.LTrim(ctx, rdb.TelemetryKey(matchID), int64(n), -1).Err()
}

// MemoryBuffer keeps entries in process
type MemoryBuffer struct {
	lists *storage.MemoryStorage[string, []model.TelemetryEntry]
}

func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{lists: storage.NewMemoryStorage[string, []model.TelemetryEntry]()}
}

func (b *MemoryBuffer) Append(_ context.Context, entry model.TelemetryEntry) error {
	b.lists.Compute(entry.MatchID, func(old []model.TelemetryEntry, _ bool) ([]model.TelemetryEntry, bool) {
		return append(old, entry), true
	})
	return nil
}

func (b *MemoryBuffer) Entries(_ context.Context, matchID string) ([]model.TelemetryEntry, error) {
	entries, _ := b.lists.Get(matchID)
	return append([]model.TelemetryEntry(nil), entries...), nil
}

func (b *MemoryBuffer) Trim(_ context.Context, matchID string, n int) error {
	b.lists.Compute(matchID, func(old []model.TelemetryEntry, exists bool) ([]model.TelemetryEntry, bool) {
		if !exists || n >= len(old) {
			return nil, false
		}
		return append([]model.TelemetryEntry(nil), old[n:]...), true
	})
	return nil
}
