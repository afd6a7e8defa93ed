// Package session holds the ephemeral per-match state: the authoritative
// MatchState document, the last accepted location of every player and the
// one-active-match-per-park claim.
package session

import (
	"context"
	"errors"
	"time"

	"parkclash/internal/model"
)

var (
	// ErrNotFound is returned when no state exists for a match (never created or expired)
	ErrNotFound = errors.New("match state not found")
	// ErrConflict is returned when an update kept losing to concurrent writers
	ErrConflict = errors.New("match state changed concurrently")
	// ErrExists is returned when creating a match whose id is already taken
	ErrExists = errors.New("match state already exists")
)

// maxUpdateRetries bounds optimistic update attempts
const maxUpdateRetries = 16

// MatchStore keeps MatchState documents. Every mutation goes through Update,
// which applies fn to the freshest state and bumps Version atomically.
type MatchStore interface {
	Create(ctx context.Context, state *model.MatchState, ttl time.Duration) error
	Get(ctx context.Context, matchID string) (*model.MatchState, error)
	GetByCode(ctx context.Context, code string) (*model.MatchState, error)
	// Update returns fn's error untouched and writes nothing when fn fails
	Update(ctx context.Context, matchID string, fn func(*model.MatchState) error) (*model.MatchState, error)
	Expire(ctx context.Context, matchID string, ttl time.Duration) error
	// ClaimPark marks matchID as the active match of parkID. It reports false when
	// another match holds the park; re-claiming by the holder succeeds.
	ClaimPark(ctx context.Context, parkID, matchID string, ttl time.Duration) (bool, error)
	// ReleasePark drops the claim only if matchID holds it
	ReleasePark(ctx context.Context, parkID, matchID string) error
	// ClaimedMatches lists the matches currently holding a park claim
	ClaimedMatches(ctx context.Context) ([]string, error)
}

// LocationStore keeps the last accepted location per player and match
type LocationStore interface {
	LastLocation(ctx context.Context, matchID, playerID string) (model.PlayerLastKnownLocation, bool, error)
	SetLastLocation(ctx context.Context, matchID string, loc model.PlayerLastKnownLocation) error
	ClearMatch(ctx context.Context, matchID string) error
}
