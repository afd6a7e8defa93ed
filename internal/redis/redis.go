package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient holds the Redis client connection
var redisClient *redis.Client

// Init initializes the Redis connection and sets the global client
func Init(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Println("Successfully connected to Redis")
	redisClient = client

	return client, nil
}

// GetClient returns the global Redis client connection
func GetClient() *redis.Client {
	return redisClient
}

// Close closes the Redis client connection
func Close() error {
	if redisClient != nil {
		log.Println("Closing Redis connection...")
		return redisClient.Close()
	}
	return nil
}

// Ping checks the connection with a short timeout
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return client.Ping(ctx).Err()
}

// MatchStateKey holds the JSON match state
func MatchStateKey(matchID string) string {
	return fmt.Sprintf("match:%s:state", matchID)
}

// MatchCodeKey maps a match code to its id
func MatchCodeKey(code string) string {
	return fmt.Sprintf("match:code:%s", code)
}

// LastLocationKey is the hash of last accepted locations, field = player id
func LastLocationKey(matchID string) string {
	return fmt.Sprintf("match:%s:last_location", matchID)
}

// TelemetryKey is the list of buffered telemetry entries
func TelemetryKey(matchID string) string {
	return fmt.Sprintf("match:%s:telemetry", matchID)
}

// EventsChannel is the pub/sub channel for match events
func EventsChannel(matchID string) string {
	return fmt.Sprintf("match:%s:events", matchID)
}

// EventsPattern matches every match events channel
const EventsPattern = "match:*:events"

// ParkClaimKey marks the single active match of a park
func ParkClaimKey(parkID string) string {
	return fmt.Sprintf("park:%s:active_match", parkID)
}

// ParkClaimPattern matches every park claim key
const ParkClaimPattern = "park:*:active_match"
