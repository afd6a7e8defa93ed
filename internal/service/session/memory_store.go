package session

import (
	"context"
	"strings"
	"time"

	"parkclash/internal/model"
	"parkclash/internal/service/storage"
)

// MemoryMatchStore keeps match state in process. Used for single-instance
// deployments and tests. States are sharded so Update on one match never
// waits for another match's update unless they share a shard.
type MemoryMatchStore struct {
	states *storage.ShardedMemoryStorage[string, *model.MatchState]
	codes  *storage.MemoryStorage[string, string]
	parks  *storage.MemoryStorage[string, string]
}

const stateShards = 32

// NewMemoryMatchStore creates an empty store; now may be nil for the system clock
func NewMemoryMatchStore(now func() time.Time) *MemoryMatchStore {
	s := &MemoryMatchStore{
		states: storage.NewShardedMemoryStorage[string, *model.MatchState](stateShards, nil),
		codes:  storage.NewMemoryStorage[string, string](),
		parks:  storage.NewMemoryStorage[string, string](),
	}
	if now != nil {
		s.states.WithClock(now)
		s.codes.WithClock(now)
		s.parks.WithClock(now)
	}
	return s
}

func (s *MemoryMatchStore) Create(_ context.Context, state *model.MatchState, ttl time.Duration) error {
	created := false
	s.states.Compute(state.ID, func(old *model.MatchState, exists bool) (*model.MatchState, bool) {
		if exists {
			return old, true
		}
		created = true
		return state.Clone(), true
	})
	if !created {
		return ErrExists
	}
	s.states.Expire(state.ID, ttl)
	if state.Code != "" {
		s.codes.SetWithTTL(state.Code, state.ID, ttl)
	}
	return nil
}

func (s *MemoryMatchStore) Get(_ context.Context, matchID string) (*model.MatchState, error) {
	state, ok := s.states.Get(matchID)
	if !ok {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

func (s *MemoryMatchStore) GetByCode(ctx context.Context, code string) (*model.MatchState, error) {
	matchID, ok := s.codes.Get(code)
	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(ctx, matchID)
}

func (s *MemoryMatchStore) Update(_ context.Context, matchID string, fn func(*model.MatchState) error) (*model.MatchState, error) {
	var (
		updated *model.MatchState
		fnErr   error
	)

	s.states.Compute(matchID, func(old *model.MatchState, exists bool) (*model.MatchState, bool) {
		if !exists {
			fnErr = ErrNotFound
			return old, false
		}
		next := old.Clone()
		if err := fn(next); err != nil {
			fnErr = err
			return old, true
		}
		next.Version++
		updated = next
		return next, true
	})

	if fnErr != nil {
		return nil, fnErr
	}
	return updated.Clone(), nil
}

func (s *MemoryMatchStore) Expire(_ context.Context, matchID string, ttl time.Duration) error {
	state, ok := s.states.Get(matchID)
	if !ok {
		return ErrNotFound
	}
	s.states.Expire(matchID, ttl)
	if state.Code != "" {
		s.codes.Expire(state.Code, ttl)
	}
	return nil
}

func (s *MemoryMatchStore) ClaimPark(_ context.Context, parkID, matchID string, ttl time.Duration) (bool, error) {
	claimed := false
	s.parks.Compute(parkID, func(holder string, exists bool) (string, bool) {
		if exists && holder != matchID {
			return holder, true
		}
		claimed = true
		return matchID, true
	})
	if claimed {
		s.parks.Expire(parkID, ttl)
	}
	return claimed, nil
}

func (s *MemoryMatchStore) ReleasePark(_ context.Context, parkID, matchID string) error {
	s.parks.Compute(parkID, func(holder string, exists bool) (string, bool) {
		return holder, exists && holder != matchID
	})
	return nil
}

func (s *MemoryMatchStore) ClaimedMatches(_ context.Context) ([]string, error) {
	return s.parks.GetAllValues(), nil
}

// Sweep removes expired entries; memory storage only expires lazily otherwise
func (s *MemoryMatchStore) Sweep() int {
	return s.states.DeleteExpired() + s.codes.DeleteExpired() + s.parks.DeleteExpired()
}

// MemoryLocationStore keeps last accepted locations in a sharded map
type MemoryLocationStore struct {
	locations *storage.ShardedMemoryStorage[string, model.PlayerLastKnownLocation]
}

// NewMemoryLocationStore creates an empty location store
func NewMemoryLocationStore() *MemoryLocationStore {
	return &MemoryLocationStore{
		locations: storage.NewShardedMemoryStorage[string, model.PlayerLastKnownLocation](32, nil),
	}
}

func locationKey(matchID, playerID string) string {
	return matchID + "|" + playerID
}

func (s *MemoryLocationStore) LastLocation(_ context.Context, matchID, playerID string) (model.PlayerLastKnownLocation, bool, error) {
	loc, ok := s.locations.Get(locationKey(matchID, playerID))
	return loc, ok, nil
}

func (s *MemoryLocationStore) SetLastLocation(_ context.Context, matchID string, loc model.PlayerLastKnownLocation) error {
	s.locations.Set(locationKey(matchID, loc.PlayerID), loc)
	return nil
}

func (s *MemoryLocationStore) ClearMatch(_ context.Context, matchID string) error {
	prefix := matchID + "|"

	var keys []string
	s.locations.ForEach(func(key string, _ model.PlayerLastKnownLocation) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	for _, key := range keys {
		s.locations.Delete(key)
	}
	return nil
}
