package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"parkclash/internal/model"
	"parkclash/internal/service/anticheat"
	"parkclash/internal/service/zone"
	"parkclash/internal/util"

	"github.com/google/uuid"
)

// DefaultSignalQuality is assumed when a client does not report HDOP
const DefaultSignalQuality = 1.0

// LocationUpdate is a position report received from a player
type LocationUpdate struct {
	MatchID    string
	PlayerID   string
	Coordinate model.Coordinate
	// SpeedMps is the speed reported by the device, meters per second
	SpeedMps float64
	// SignalQuality is HDOP; nil means not reported
	SignalQuality *float64
	// Timestamp defaults to the service clock
	Timestamp time.Time
}

// CaptureOutcome is the scoring result of a capture attempt
type CaptureOutcome struct {
	Outcome  zone.Outcome
	ZoneID   string
	ZoneName string
	TeamID   string
	NewScore int
}

// LocationResult reports what happened to a location update
type LocationResult struct {
	Decision anticheat.Decision
	Capture  *CaptureOutcome
}

// HandleLocation validates a sample, records it, relays it to the other players
// and, for active matches, attempts a zone capture
func (s *Service) HandleLocation(ctx context.Context, update LocationUpdate) (LocationResult, error) {
	state, err := s.state(ctx, update.MatchID)
	if err != nil {
		return LocationResult{}, err
	}
	if state.Status == model.MatchStatusFinished {
		return LocationResult{}, ErrMatchFinished
	}
	player, ok := state.Player(update.PlayerID)
	if !ok {
		return LocationResult{}, ErrPlayerNotInMatch
	}

	sample := model.LocationSample{
		PlayerID:      update.PlayerID,
		MatchID:       update.MatchID,
		Coordinate:    update.Coordinate,
		ReportedSpeed: update.SpeedMps,
		SignalQuality: DefaultSignalQuality,
		Timestamp:     update.Timestamp,
	}
	if update.SignalQuality != nil {
		sample.SignalQuality = *update.SignalQuality
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.Clock.Now()
	}

	decision, err := s.Validator.Validate(ctx, sample)
	if err != nil {
		return LocationResult{}, err
	}
	result := LocationResult{Decision: decision}
	if !decision.Accepted {
		return result, nil
	}

	err = s.Telemetry.Append(ctx, model.TelemetryEntry{
		ID:         uuid.NewString(),
		PlayerID:   sample.PlayerID,
		MatchID:    sample.MatchID,
		Coordinate: sample.Coordinate,
		SpeedMph:   util.MetersPerSecondToMph(sample.ReportedSpeed),
		Timestamp:  sample.Timestamp,
	})
	if err != nil {
		return result, err
	}

	s.notify(ctx, update.MatchID, update.PlayerID, model.OutboundEvent{
		Type: model.MsgOpponentLocation,
		Payload: model.OpponentLocationPayload{
			UserID: update.PlayerID,
			TeamID: player.TeamID,
			Lat:    sample.Coordinate.Lat,
			Lng:    sample.Coordinate.Lng,
		},
	})

	if state.Status != model.MatchStatusActive {
		return result, nil
	}

	capture, err := s.capture(ctx, state, player, sample.Coordinate)
	if err != nil {
		return result, err
	}
	result.Capture = &capture
	return result, nil
}

// Capture attempts to capture the zone at the given position for the player's team
func (s *Service) Capture(ctx context.Context, matchID, playerID string, at model.Coordinate) (CaptureOutcome, error) {
	state, err := s.state(ctx, matchID)
	if err != nil {
		return CaptureOutcome{}, err
	}
	switch state.Status {
	case model.MatchStatusFinished:
		return CaptureOutcome{}, ErrMatchFinished
	case model.MatchStatusWaiting:
		return CaptureOutcome{}, ErrInvalidTransition
	}
	player, ok := state.Player(playerID)
	if !ok {
		return CaptureOutcome{}, ErrPlayerNotInMatch
	}
	return s.capture(ctx, state, player, at)
}

func (s *Service) capture(ctx context.Context, state *model.MatchState, player model.Player, at model.Coordinate) (CaptureOutcome, error) {
	res, err := s.Zones.AttemptCapture(ctx, state.ParkID, at, player.TeamID)
	if err != nil {
		log.Printf("Match %s: capture by %s failed: %v", state.ID, player.ID, err)
		if errors.Is(err, util.ErrInvalidCoordinate) {
			return CaptureOutcome{}, err
		}
		return CaptureOutcome{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	outcome := CaptureOutcome{
		Outcome:  res.Outcome,
		ZoneID:   res.Zone.ID,
		ZoneName: res.Zone.Name,
		TeamID:   player.TeamID,
		NewScore: state.Scores[player.TeamID],
	}
	if res.Outcome != zone.Captured {
		return outcome, nil
	}

	award := s.cfg.CapturePoints
	now := s.Clock.Now()
	updated, err := s.Matches.Update(ctx, state.ID, func(m *model.MatchState) error {
		if m.Status != model.MatchStatusActive {
			return ErrMatchFinished
		}
		applyCapture(m, res.Zone, award)
		m.LastUpdated = now
		return nil
	})
	if err != nil {
		log.Printf("Match %s: zone %s captured by %s but score update failed: %v", state.ID, res.Zone.ID, player.TeamID, err)
		return outcome, mapStoreErr(err)
	}

	outcome.NewScore = updated.Scores[player.TeamID]
	log.Printf("Match %s: %s (%s) captured %s, score %d", state.ID, player.ID, player.TeamID, res.Zone.Name, outcome.NewScore)

	s.notify(ctx, state.ID, "", model.OutboundEvent{
		Type: model.MsgZoneCaptured,
		Payload: model.ZoneCapturedPayload{
			UserID:   player.ID,
			TeamID:   player.TeamID,
			ZoneID:   res.Zone.ID,
			ZoneName: res.Zone.Name,
			NewScore: outcome.NewScore,
			Scores:   updated.Scores,
		},
	})

	if s.Events != nil {
		err := s.Events.Record(context.WithoutCancel(ctx), model.MatchEvent{
			ID:        uuid.NewString(),
			UserID:    player.ID,
			EventType: model.EventZoneCaptured,
			Data: map[string]any{
				"matchId":       state.ID,
				"zoneId":        res.Zone.ID,
				"teamId":        player.TeamID,
				"previousOwner": res.PreviousOwner,
			},
			Timestamp: now,
		})
		if err != nil {
			log.Printf("Match %s: failed to record capture event: %v", state.ID, err)
		}
	}

	return outcome, nil
}

// applyCapture records a committed capture in the zone snapshot unless a newer
// write of the same zone already landed, then derives every score from zone
// ownership. Score updates of concurrent captures may arrive in any order.
func applyCapture(m *model.MatchState, captured model.Zone, points int) {
	found := false
	for i := range m.Zones {
		if m.Zones[i].ID != captured.ID {
			continue
		}
		found = true
		if captured.Version > m.Zones[i].Version {
			m.Zones[i] = captured
		}
	}
	if !found {
		m.Zones = append(m.Zones, captured)
	}

	for team := range m.Scores {
		m.Scores[team] = 0
	}
	for _, z := range m.Zones {
		if _, ok := m.Scores[z.OwnerTeamID]; ok {
			m.Scores[z.OwnerTeamID] += points
		}
	}
}
