package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"parkclash/internal/model"
	rdb "parkclash/internal/redis"

	"github.com/redis/go-redis/v9"
)

type relayMessage struct {
	Exclude string          `json:"exclude,omitempty"`
	Event   json.RawMessage `json:"event"`
}

// RedisRelay fans match events out through Redis pub/sub so that players
// connected to different instances see the same events
type RedisRelay struct {
	client *redis.Client
	hub    *Hub

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRedisRelay creates a relay delivering into the local hub
func NewRedisRelay(client *redis.Client, hub *Hub) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, ready: make(chan struct{})}
}

// Publish sends the event to every instance, this one included
func (r *RedisRelay) Publish(ctx context.Context, matchID, excludePlayerID string, event model.OutboundEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Type, err)
	}
	msg, err := json.Marshal(relayMessage{Exclude: excludePlayerID, Event: data})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, rdb.EventsChannel(matchID), msg).Err()
}

// Ready is closed once the subscription is active
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to every match channel and delivers to the local hub until ctx ends
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, rdb.EventsPattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", rdb.EventsPattern, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	log.Printf("Relay: subscribed to %s", rdb.EventsPattern)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(m)
		}
	}
}

func (r *RedisRelay) deliver(m *redis.Message) {
	matchID, ok := matchIDFromChannel(m.Channel)
	if !ok {
		return
	}

	var msg relayMessage
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		log.Printf("Relay: dropping malformed message on %s: %v", m.Channel, err)
		return
	}
	r.hub.Deliver(matchID, msg.Exclude, msg.Event)
}

func matchIDFromChannel(channel string) (string, bool) {
	rest, ok := strings.CutPrefix(channel, "match:")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ":events")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
