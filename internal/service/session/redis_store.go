package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parkclash/internal/model"
	rdb "parkclash/internal/redis"

	"github.com/redis/go-redis/v9"
)

var releaseParkScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisMatchStore keeps match state as JSON under match:<id>:state
type RedisMatchStore struct {
	client *redis.Client
}

// NewRedisMatchStore creates a match store on top of an open client
func NewRedisMatchStore(client *redis.Client) *RedisMatchStore {
	return &RedisMatchStore{client: client}
}

func (s *RedisMatchStore) Create(ctx context.Context, state *model.MatchState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal match state: %w", err)
	}

	ok, err := s.client.SetNX(ctx, rdb.MatchStateKey(state.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("store match state: %w", err)
	}
	if !ok {
		return ErrExists
	}

	if state.Code != "" {
		if err := s.client.Set(ctx, rdb.MatchCodeKey(state.Code), state.ID, ttl).Err(); err != nil {
			return fmt.Errorf("store match code: %w", err)
		}
	}
	return nil
}

func (s *RedisMatchStore) Get(ctx context.Context, matchID string) (*model.MatchState, error) {
	data, err := s.client.Get(ctx, rdb.MatchStateKey(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get match state: %w", err)
	}
	return decodeState(data)
}

func (s *RedisMatchStore) GetByCode(ctx context.Context, code string) (*model.MatchState, error) {
	matchID, err := s.client.Get(ctx, rdb.MatchCodeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get match code: %w", err)
	}
	return s.Get(ctx, matchID)
}

// Update runs an optimistic WATCH/MULTI cycle and retries when the key changed underneath
func (s *RedisMatchStore) Update(ctx context.Context, matchID string, fn func(*model.MatchState) error) (*model.MatchState, error) {
	key := rdb.MatchStateKey(matchID)

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var updated *model.MatchState

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("get match state: %w", err)
			}

			state, err := decodeState(data)
			if err != nil {
				return err
			}
			if err := fn(state); err != nil {
				return err
			}
			state.Version++

			out, err := json.Marshal(state)
			if err != nil {
				return fmt.Errorf("marshal match state: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, out, redis.SetArgs{KeepTTL: true})
				return nil
			})
			if err != nil {
				return err
			}
			updated = state
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, ErrConflict
}

func (s *RedisMatchStore) Expire(ctx context.Context, matchID string, ttl time.Duration) error {
	state, err := s.Get(ctx, matchID)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, rdb.MatchStateKey(matchID), ttl)
		if state.Code != "" {
			pipe.Expire(ctx, rdb.MatchCodeKey(state.Code), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("expire match state: %w", err)
	}
	return nil
}

func (s *RedisMatchStore) ClaimPark(ctx context.Context, parkID, matchID string, ttl time.Duration) (bool, error) {
	key := rdb.ParkClaimKey(parkID)

	ok, err := s.client.SetNX(ctx, key, matchID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim park: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Claim expired between SETNX and GET; try once more
		return s.client.SetNX(ctx, key, matchID, ttl).Result()
	}
	if err != nil {
		return false, fmt.Errorf("read park claim: %w", err)
	}
	return holder == matchID, nil
}

func (s *RedisMatchStore) ReleasePark(ctx context.Context, parkID, matchID string) error {
	if err := releaseParkScript.Run(ctx, s.client, []string{rdb.ParkClaimKey(parkID)}, matchID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release park: %w", err)
	}
	return nil
}

// ClaimedMatches scans the park claim keys
func (s *RedisMatchStore) ClaimedMatches(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, rdb.ParkClaimPattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan park claims: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read park claims: %w", err)
	}
	matchIDs := make([]string, 0, len(values))
	for _, v := range values {
		// a claim may expire between SCAN and MGET
		if id, ok := v.(string); ok {
			matchIDs = append(matchIDs, id)
		}
	}
	return matchIDs, nil
}

func decodeState(data []byte) (*model.MatchState, error) {
	var state model.MatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode match state: %w", err)
	}
	if state.Scores == nil {
		state.Scores = make(map[string]int)
	}
	return &state, nil
}

// RedisLocationStore keeps last accepted locations in the hash match:<id>:last_location
type RedisLocationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocationStore creates a location store whose hashes expire after ttl of inactivity
func NewRedisLocationStore(client *redis.Client, ttl time.Duration) *RedisLocationStore {
	return &RedisLocationStore{client: client, ttl: ttl}
}

func (s *RedisLocationStore) LastLocation(ctx context.Context, matchID, playerID string) (model.PlayerLastKnownLocation, bool, error) {
	var loc model.PlayerLastKnownLocation

	data, err := s.client.HGet(ctx, rdb.LastLocationKey(matchID), playerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return loc, false, nil
	}
	if err != nil {
		return loc, false, fmt.Errorf("get last location: %w", err)
	}
	if err := json.Unmarshal(data, &loc); err != nil {
		return loc, false, fmt.Errorf("decode last location: %w", err)
	}
	return loc, true, nil
}

func (s *RedisLocationStore) SetLastLocation(ctx context.Context, matchID string, loc model.PlayerLastKnownLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal last location: %w", err)
	}

	key := rdb.LastLocationKey(matchID)
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, loc.PlayerID, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set last location: %w", err)
	}
	return nil
}

func (s *RedisLocationStore) ClearMatch(ctx context.Context, matchID string) error {
	if err := s.client.Del(ctx, rdb.LastLocationKey(matchID)).Err(); err != nil {
		return fmt.Errorf("clear last locations: %w", err)
	}
	return nil
}
