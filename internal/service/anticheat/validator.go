// Package anticheat decides whether a location sample is physically plausible.
package anticheat

import (
	"context"
	"fmt"
	"log"
	"time"

	"parkclash/internal/config"
	"parkclash/internal/model"
	"parkclash/internal/service/session"
	"parkclash/internal/service/storage"
	"parkclash/internal/util"
)

// Decision is the outcome of validating one sample. A rejection is a normal
// outcome, not an error.
type Decision struct {
	Accepted       bool
	Reason         string
	SpeedMps       float64
	DistanceMeters float64
	Elapsed        time.Duration
	// FirstSample is set when there was no baseline to compare against
	FirstSample bool
}

// Config holds the thresholds in internal units
type Config struct {
	SignalQualityThreshold float64
	SpeedThresholdMps      float64
	// Samples at most this far apart skip the speed gate to tolerate GPS jitter
	JitterWindow time.Duration
}

// ConfigFromGame converts the user-facing game configuration
func ConfigFromGame(g config.GameConfig) Config {
	return Config{
		SignalQualityThreshold: g.SignalQualityThreshold,
		SpeedThresholdMps:      util.MphToMetersPerSecond(g.SpeedThresholdMph),
		JitterWindow:           g.JitterWindow,
	}
}

// Validator runs the signal and speed gates and maintains the accepted baseline
type Validator struct {
	cfg       Config
	locations session.LocationStore
	audit     AuditLog
	locks     *storage.KeyedMutex
}

// NewValidator creates a validator; audit may be nil to disable the audit trail
func NewValidator(cfg Config, locations session.LocationStore, audit AuditLog) *Validator {
	return &Validator{
		cfg:       cfg,
		locations: locations,
		audit:     audit,
		locks:     storage.NewKeyedMutex(256),
	}
}

// Validate checks sample against the player's last accepted location and stores it
// as the new baseline when accepted. Errors are store failures or invalid coordinates.
func (v *Validator) Validate(ctx context.Context, sample model.LocationSample) (Decision, error) {
	if !util.ValidCoordinate(sample.Coordinate) {
		return Decision{}, util.ErrInvalidCoordinate
	}

	if sample.SignalQuality > v.cfg.SignalQualityThreshold {
		v.record(ctx, sample, model.ReasonGPSDrift, map[string]any{
			"hdop": sample.SignalQuality,
			"lat":  sample.Coordinate.Lat,
			"lng":  sample.Coordinate.Lng,
		})
		return Decision{Reason: model.ReasonGPSDrift}, nil
	}

	// read-compare-write of one player's baseline must not interleave
	unlock := v.locks.Lock(sample.MatchID + "|" + sample.PlayerID)
	defer unlock()

	last, found, err := v.locations.LastLocation(ctx, sample.MatchID, sample.PlayerID)
	if err != nil {
		return Decision{}, fmt.Errorf("load last location: %w", err)
	}

	decision := Decision{Accepted: true, FirstSample: !found}
	if found {
		decision.Elapsed = sample.Timestamp.Sub(last.Timestamp)
		decision.DistanceMeters, err = util.Distance(last.Coordinate, sample.Coordinate)
		if err != nil {
			return Decision{}, err
		}

		// Jitter bypass: updates inside the window are not speed checked. Known gap:
		// a client hopping faster than the window escapes the gate on every hop.
		if decision.Elapsed > v.cfg.JitterWindow {
			decision.SpeedMps = decision.DistanceMeters / decision.Elapsed.Seconds()
			if decision.SpeedMps > v.cfg.SpeedThresholdMps {
				decision.Accepted = false
				decision.Reason = model.ReasonTeleportation
				v.record(ctx, sample, model.ReasonTeleportation, map[string]any{
					"speedMps":       decision.SpeedMps,
					"speedMph":       util.MetersPerSecondToMph(decision.SpeedMps),
					"distanceMeters": decision.DistanceMeters,
					"elapsedSeconds": decision.Elapsed.Seconds(),
				})
				return decision, nil
			}
		}
	}

	err = v.locations.SetLastLocation(ctx, sample.MatchID, model.PlayerLastKnownLocation{
		PlayerID:   sample.PlayerID,
		Coordinate: sample.Coordinate,
		Timestamp:  sample.Timestamp,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("store last location: %w", err)
	}

	return decision, nil
}

// record writes an audit entry; failures never change the decision
func (v *Validator) record(ctx context.Context, sample model.LocationSample, reason string, details map[string]any) {
	log.Printf("Anti-cheat: rejected sample of player %s in match %s: %s %v", sample.PlayerID, sample.MatchID, reason, details)

	if v.audit == nil {
		return
	}
	err := v.audit.Record(ctx, model.SuspiciousActivity{
		ID:        util.ShortUUID(),
		PlayerID:  sample.PlayerID,
		MatchID:   sample.MatchID,
		Reason:    reason,
		Details:   details,
		Timestamp: sample.Timestamp,
	})
	if err != nil {
		log.Printf("Anti-cheat: failed to record suspicious activity for player %s: %v", sample.PlayerID, err)
	}
}
