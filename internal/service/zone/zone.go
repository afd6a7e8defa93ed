// Package zone owns zone geometry and ownership. Ownership only changes through
// AttemptCapture (and the park-wide reset at match start); concurrent captures of
// one zone resolve to a single winner inside the store.
package zone

import (
	"context"
	"errors"

	"parkclash/internal/model"
)

// Outcome of a capture attempt
type Outcome int

const (
	NoZoneInRange Outcome = iota
	AlreadyOwned
	Captured
)

func (o Outcome) String() string {
	switch o {
	case NoZoneInRange:
		return "no_zone_in_range"
	case AlreadyOwned:
		return "already_owned"
	case Captured:
		return "captured"
	default:
		return "unknown"
	}
}

// CaptureResult describes what AttemptCapture did. Zone is the state after the attempt.
type CaptureResult struct {
	Outcome       Outcome
	Zone          model.Zone
	PreviousOwner string
}

var (
	// ErrTransactionFailed wraps any failure inside a capture; ownership is unchanged
	ErrTransactionFailed = errors.New("capture transaction failed")
	// ErrZoneNotFound is returned by Zone for an unknown id
	ErrZoneNotFound = errors.New("zone not found")

	errLostUpdate = errors.New("zone version changed during capture")
	// errRollback aborts a transaction that decided not to write
	errRollback = errors.New("rollback")
)

// Store is the durable zone ownership store
type Store interface {
	ZonesForPark(ctx context.Context, parkID string) ([]model.Zone, error)
	Zone(ctx context.Context, zoneID string) (model.Zone, error)
	// AttemptCapture gives teamID the nearest zone of parkID whose radius covers at.
	// Zones locked by a concurrent capture are skipped.
	AttemptCapture(ctx context.Context, parkID string, at model.Coordinate, teamID string) (CaptureResult, error)
	ResetOwnership(ctx context.Context, parkID string) error
	Upsert(ctx context.Context, zones []model.Zone) error
}
