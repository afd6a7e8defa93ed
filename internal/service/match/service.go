// Package match drives the lifecycle of a match: create, join, start, periodic
// tick, capture scoring and the one-time finish that flushes telemetry.
package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"parkclash/internal/config"
	"parkclash/internal/model"
	"parkclash/internal/service/anticheat"
	"parkclash/internal/service/session"
	"parkclash/internal/service/storage"
	"parkclash/internal/service/telemetry"
	"parkclash/internal/service/zone"
	"parkclash/internal/util"
	"parkclash/internal/worker"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

const (
	orphanAfter        = 3
	maxChatLength      = 500
	maxEventGoroutines = 8
)

// Notifier fans an event out to the connected players of a match.
// excludePlayerID may be empty.
type Notifier interface {
	Publish(ctx context.Context, matchID, excludePlayerID string, event model.OutboundEvent) error
}

// Deps are the collaborators of the Service
type Deps struct {
	Matches   session.MatchStore
	Locations session.LocationStore
	Zones     zone.Store
	Validator *anticheat.Validator
	Telemetry *telemetry.Log
	Records   Repository
	Events    EventRecorder
	Notifier  Notifier
	Tickers   *worker.TickerGroup
	Clock     util.Clock
}

// Service is the match lifecycle controller
type Service struct {
	cfg config.GameConfig
	Deps

	startLocks *storage.KeyedMutex
}

// NewService wires the controller; a nil Clock or Tickers gets a default
func NewService(cfg config.GameConfig, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = util.RealClock{}
	}
	if deps.Tickers == nil {
		deps.Tickers = worker.NewTickerGroup()
	}
	return &Service{cfg: cfg, Deps: deps, startLocks: storage.NewKeyedMutex(64)}
}

// CreateInput describes a new match
type CreateInput struct {
	ParkID          string
	DurationMinutes int
	TeamSize        int
	HostID          string
	HostName        string
}

// JoinInput describes a player joining. An empty TeamID picks the smallest team.
type JoinInput struct {
	PlayerID    string
	DisplayName string
	TeamID      string
}

// Create opens a match in the waiting state with the host already on a team
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.MatchState, error) {
	if strings.TrimSpace(in.ParkID) == "" || in.HostID == "" {
		return nil, fmt.Errorf("%w: park and host are required", ErrInvalidInput)
	}
	if in.DurationMinutes <= 0 {
		in.DurationMinutes = s.cfg.DefaultMatchMinutes
	}
	if in.TeamSize <= 0 {
		in.TeamSize = s.cfg.DefaultTeamSize
	}

	zones, err := s.Zones.ZonesForPark(ctx, in.ParkID)
	if err != nil {
		return nil, fmt.Errorf("load park zones: %w", err)
	}
	if len(zones) == 0 {
		log.Printf("Match: park %s has no zones, creating match anyway", in.ParkID)
	}

	now := s.Clock.Now()
	id := uuid.NewString()
	scores := make(map[string]int, len(s.cfg.Teams))
	for _, team := range s.cfg.Teams {
		scores[team] = 0
	}

	state := &model.MatchState{
		ID:                    id,
		Code:                  util.MatchCode(id),
		ParkID:                in.ParkID,
		HostID:                in.HostID,
		Status:                model.MatchStatusWaiting,
		Players:               []model.Player{{ID: in.HostID, DisplayName: in.HostName, TeamID: s.cfg.Teams[0], JoinedAt: now}},
		Zones:                 zones,
		Scores:                scores,
		TeamSize:              in.TeamSize,
		DurationSeconds:       in.DurationMinutes * 60,
		TimerSecondsRemaining: in.DurationMinutes * 60,
		CreatedAt:             now,
		LastUpdated:           now,
	}

	err = s.Records.Create(ctx, &model.MatchPG{
		ID:              id,
		Code:            state.Code,
		ParkID:          in.ParkID,
		HostID:          in.HostID,
		Status:          model.MatchStatusWaiting,
		DurationMinutes: in.DurationMinutes,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Matches.Create(ctx, state, s.cfg.MatchStateTTL); err != nil {
		return nil, fmt.Errorf("store match state: %w", err)
	}

	log.Printf("Match %s (%s) created in park %s by %s, %d zones, %d minutes",
		id, state.Code, in.ParkID, in.HostID, len(zones), in.DurationMinutes)
	return state, nil
}

// Join adds a player to a match. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, matchID string, in JoinInput) (*model.MatchState, error) {
	if in.PlayerID == "" {
		return nil, fmt.Errorf("%w: player is required", ErrInvalidInput)
	}

	now := s.Clock.Now()
	state, err := s.Matches.Update(ctx, matchID, func(m *model.MatchState) error {
		if m.Status == model.MatchStatusFinished {
			return ErrMatchFinished
		}
		if _, ok := m.Player(in.PlayerID); ok {
			return errNoChange
		}

		team, err := s.pickTeam(m, in.TeamID)
		if err != nil {
			return err
		}

		m.Players = append(m.Players, model.Player{
			ID:          in.PlayerID,
			DisplayName: in.DisplayName,
			TeamID:      team,
			JoinedAt:    now,
		})
		m.LastUpdated = now
		return nil
	})

	if errors.Is(err, errNoChange) {
		return s.state(ctx, matchID)
	}
	if err != nil {
		return nil, mapStoreErr(err)
	}

	log.Printf("Match %s: player %s joined", matchID, in.PlayerID)
	return state, nil
}

// pickTeam validates a requested team or picks the smallest one in configured order
func (s *Service) pickTeam(m *model.MatchState, requested string) (string, error) {
	counts := m.TeamCounts()

	if requested != "" {
		if _, ok := m.Scores[requested]; !ok {
			return "", ErrInvalidTeam
		}
		if counts[requested] >= m.TeamSize {
			return "", ErrMatchFull
		}
		return requested, nil
	}

	best := ""
	for _, team := range s.cfg.Teams {
		if _, ok := m.Scores[team]; !ok {
			continue
		}
		if best == "" || counts[team] < counts[best] {
			best = team
		}
	}
	if best == "" || counts[best] >= m.TeamSize {
		return "", ErrMatchFull
	}
	return best, nil
}

// Get returns the match with zone ownership read from the zone store
func (s *Service) Get(ctx context.Context, matchID string) (*model.MatchState, error) {
	state, err := s.state(ctx, matchID)
	if err != nil {
		return nil, err
	}

	zones, err := s.Zones.ZonesForPark(ctx, state.ParkID)
	if err != nil {
		return nil, fmt.Errorf("load park zones: %w", err)
	}
	state.Zones = zones
	return state, nil
}

// FindByCode resolves the short code players type in
func (s *Service) FindByCode(ctx context.Context, code string) (*model.MatchState, error) {
	state, err := s.Matches.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return state, nil
}

// ZonesForPark lists the zones of a park with their current owners
func (s *Service) ZonesForPark(ctx context.Context, parkID string) ([]model.Zone, error) {
	return s.Zones.ZonesForPark(ctx, parkID)
}

func (s *Service) state(ctx context.Context, matchID string) (*model.MatchState, error) {
	state, err := s.Matches.Get(ctx, matchID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return state, nil
}

// Start moves a waiting match to active, claims its park and starts the timer
func (s *Service) Start(ctx context.Context, matchID, requesterID string) (*model.MatchState, error) {
	unlock := s.startLocks.Lock(matchID)
	defer unlock()

	current, err := s.state(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if current.HostID != requesterID {
		return nil, ErrNotHost
	}
	if err := checkWaiting(current); err != nil {
		return nil, err
	}

	claimed, err := s.Matches.ClaimPark(ctx, current.ParkID, matchID, s.cfg.MatchStateTTL)
	if err != nil {
		return nil, fmt.Errorf("claim park: %w", err)
	}
	if !claimed {
		return nil, ErrParkBusy
	}

	// scores start at zero, so ownership has to as well
	if err := s.Zones.ResetOwnership(ctx, current.ParkID); err != nil {
		s.releasePark(ctx, current.ParkID, matchID)
		return nil, fmt.Errorf("reset zone ownership: %w", err)
	}
	zones, err := s.Zones.ZonesForPark(ctx, current.ParkID)
	if err != nil {
		s.releasePark(ctx, current.ParkID, matchID)
		return nil, fmt.Errorf("load park zones: %w", err)
	}

	now := s.Clock.Now()
	state, err := s.Matches.Update(ctx, matchID, func(m *model.MatchState) error {
		if err := checkWaiting(m); err != nil {
			return err
		}
		m.Status = model.MatchStatusActive
		m.StartedAt = &now
		m.TimerSecondsRemaining = m.DurationSeconds
		m.Zones = zones
		for team := range m.Scores {
			m.Scores[team] = 0
		}
		m.LastUpdated = now
		return nil
	})
	if err != nil {
		s.releasePark(ctx, current.ParkID, matchID)
		return nil, mapStoreErr(err)
	}

	if err := s.Records.MarkStarted(ctx, matchID, now); err != nil {
		log.Printf("Match %s: failed to mark record started: %v", matchID, err)
	}

	s.startTicker(ctx, matchID)

	s.notify(ctx, matchID, "", model.OutboundEvent{Type: model.MsgMatchState, Payload: state})
	s.recordForPlayers(ctx, state, model.EventMatchStarted, func(p model.Player) map[string]any {
		return map[string]any{"matchId": matchID, "parkId": state.ParkID, "teamId": p.TeamID}
	})

	log.Printf("Match %s started, %d players, %d seconds", matchID, len(state.Players), state.DurationSeconds)
	return state, nil
}

func (s *Service) startTicker(ctx context.Context, matchID string) bool {
	return s.Tickers.Start(context.WithoutCancel(ctx), matchID, s.cfg.TickInterval, func(tickCtx context.Context) {
		if _, err := s.Tick(tickCtx, matchID); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Match %s: tick failed: %v", matchID, err)
		}
	})
}

// Resume picks up active matches whose timer nobody is running, e.g. after a
// restart against a shared Redis. A match counts as orphaned once it has not
// been updated for orphanAfter tick intervals; a live ticker touches it every tick.
func (s *Service) Resume(ctx context.Context) (int, error) {
	matchIDs, err := s.Matches.ClaimedMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("list claimed matches: %w", err)
	}

	now := s.Clock.Now()
	stale := time.Duration(orphanAfter) * s.cfg.TickInterval
	resumed := 0
	for _, matchID := range matchIDs {
		state, err := s.Matches.Get(ctx, matchID)
		if errors.Is(err, session.ErrNotFound) {
			// the claim expires on its own
			continue
		}
		if err != nil {
			return resumed, err
		}

		switch {
		case state.Status != model.MatchStatusActive:
			s.releasePark(ctx, state.ParkID, matchID)
		case s.Tickers.Running(matchID) || now.Sub(state.LastUpdated) < stale:
		case state.TimerSecondsRemaining <= 0:
			if _, err := s.finish(ctx, matchID, "timer"); err != nil {
				log.Printf("Match %s: finish on resume failed: %v", matchID, err)
			}
		default:
			if s.startTicker(ctx, matchID) {
				resumed++
				log.Printf("Match %s: resumed with %d seconds left", matchID, state.TimerSecondsRemaining)
			}
		}
	}
	return resumed, nil
}

func checkWaiting(m *model.MatchState) error {
	switch m.Status {
	case model.MatchStatusWaiting:
		return nil
	case model.MatchStatusFinished:
		return ErrMatchFinished
	default:
		return ErrInvalidTransition
	}
}

// tickSeconds is how much one tick takes off the timer
func (s *Service) tickSeconds() int {
	return int(math.Max(1, math.Round(s.cfg.TickInterval.Seconds())))
}

// Tick advances the timer of an active match by one tick interval and finishes
// the match when it reaches zero
func (s *Service) Tick(ctx context.Context, matchID string) (*model.MatchState, error) {
	step := s.tickSeconds()
	now := s.Clock.Now()

	state, err := s.Matches.Update(ctx, matchID, func(m *model.MatchState) error {
		if m.Status != model.MatchStatusActive {
			return errNoChange
		}
		m.TimerSecondsRemaining -= step
		if m.TimerSecondsRemaining < 0 {
			m.TimerSecondsRemaining = 0
		}
		m.LastUpdated = now
		return nil
	})
	if errors.Is(err, errNoChange) {
		s.Tickers.Stop(matchID)
		return s.state(ctx, matchID)
	}
	if errors.Is(err, session.ErrNotFound) {
		s.Tickers.Stop(matchID)
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}

	s.notify(ctx, matchID, "", model.OutboundEvent{Type: model.MsgMatchState, Payload: state})

	if state.TimerSecondsRemaining == 0 {
		return s.finish(ctx, matchID, "timer")
	}
	return state, nil
}

// End lets the host finish an active match immediately
func (s *Service) End(ctx context.Context, matchID, requesterID string) (*model.MatchState, error) {
	current, err := s.state(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if current.HostID != requesterID {
		return nil, ErrNotHost
	}
	switch current.Status {
	case model.MatchStatusFinished:
		return nil, ErrMatchFinished
	case model.MatchStatusWaiting:
		return nil, ErrInvalidTransition
	}

	return s.finish(ctx, matchID, "host")
}

// finish runs at most once per match: the status compare-and-swap decides the
// single caller that performs the flush and cleanup
func (s *Service) finish(ctx context.Context, matchID, reason string) (*model.MatchState, error) {
	// cleanup must complete even if the caller (a tick or a request) goes away
	ctx = context.WithoutCancel(ctx)
	now := s.Clock.Now()

	state, err := s.Matches.Update(ctx, matchID, func(m *model.MatchState) error {
		if m.Status != model.MatchStatusActive {
			return ErrMatchFinished
		}
		m.Status = model.MatchStatusFinished
		m.EndedAt = &now
		m.LastUpdated = now
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.Tickers.Stop(matchID)
	log.Printf("Match %s finished (%s), scores %v", matchID, reason, state.Scores)

	flushed, flushErr := s.Telemetry.Flush(ctx, matchID)
	if flushErr != nil {
		log.Printf("Match %s: telemetry flush failed, retry via flush endpoint: %v", matchID, flushErr)
	}

	if err := s.Records.MarkFinished(ctx, matchID, now); err != nil {
		log.Printf("Match %s: failed to mark record finished: %v", matchID, err)
	}
	s.releasePark(ctx, state.ParkID, matchID)
	if err := s.Matches.Expire(ctx, matchID, s.cfg.FinishedRetention); err != nil {
		log.Printf("Match %s: failed to shorten state ttl: %v", matchID, err)
	}
	if err := s.Locations.ClearMatch(ctx, matchID); err != nil {
		log.Printf("Match %s: failed to clear last locations: %v", matchID, err)
	}

	s.notify(ctx, matchID, "", model.OutboundEvent{
		Type:    model.MsgMatchEnded,
		Payload: model.MatchEndedPayload{MatchID: matchID, Reason: reason, Scores: state.Scores},
	})

	winner := winningTeam(state.Scores)
	s.recordForPlayers(ctx, state, model.EventMatchFinished, func(p model.Player) map[string]any {
		return map[string]any{
			"matchId":       matchID,
			"teamId":        p.TeamID,
			"teamScore":     state.Scores[p.TeamID],
			"won":           winner != "" && winner == p.TeamID,
			"telemetryRows": flushed,
			"playedSeconds": state.DurationSeconds - state.TimerSecondsRemaining,
		}
	})

	if flushErr != nil {
		return state, flushErr
	}
	return state, nil
}

// winningTeam returns the single top scorer, or "" on a tie
func winningTeam(scores map[string]int) string {
	teams := make([]string, 0, len(scores))
	for team := range scores {
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool { return scores[teams[i]] > scores[teams[j]] })

	if len(teams) == 0 || (len(teams) > 1 && scores[teams[0]] == scores[teams[1]]) {
		return ""
	}
	return teams[0]
}

// FlushTelemetry retries the flush of a finished (or already expired) match
func (s *Service) FlushTelemetry(ctx context.Context, matchID string) (int, error) {
	state, err := s.Matches.Get(ctx, matchID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return 0, err
	}
	if state != nil && state.Status != model.MatchStatusFinished {
		return 0, ErrInvalidTransition
	}
	return s.Telemetry.Flush(ctx, matchID)
}

// Chat relays a message to every player of the match, sender included
func (s *Service) Chat(ctx context.Context, matchID, senderID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" || len(message) > maxChatLength {
		return fmt.Errorf("%w: chat message must be 1-%d characters", ErrInvalidInput, maxChatLength)
	}

	state, err := s.state(ctx, matchID)
	if err != nil {
		return err
	}
	player, ok := state.Player(senderID)
	if !ok {
		return ErrPlayerNotInMatch
	}

	s.notify(ctx, matchID, "", model.OutboundEvent{
		Type: model.MsgChatMessage,
		Payload: model.ChatMessagePayload{
			SenderID:   senderID,
			SenderName: player.DisplayName,
			Message:    message,
			SentAt:     s.Clock.Now(),
		},
	})
	return nil
}

// Shutdown stops every match timer
func (s *Service) Shutdown() {
	s.Tickers.StopAll()
}

func (s *Service) releasePark(ctx context.Context, parkID, matchID string) {
	if err := s.Matches.ReleasePark(ctx, parkID, matchID); err != nil {
		log.Printf("Match %s: failed to release park %s: %v", matchID, parkID, err)
	}
}

// notify publishes with a short timeout; delivery failures never undo committed state
func (s *Service) notify(ctx context.Context, matchID, exclude string, event model.OutboundEvent) {
	if s.Notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.BroadcastTimeout)
	defer cancel()

	if err := s.Notifier.Publish(ctx, matchID, exclude, event); err != nil {
		log.Printf("Match %s: failed to publish %s: %v", matchID, event.Type, err)
	}
}

// recordForPlayers writes one event per player in parallel; failures are logged
func (s *Service) recordForPlayers(ctx context.Context, state *model.MatchState, eventType string, data func(model.Player) map[string]any) {
	if s.Events == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	now := s.Clock.Now()

	p := pool.New().WithErrors().WithMaxGoroutines(maxEventGoroutines)
	for _, player := range state.Players {
		player := player
		p.Go(func() error {
			return s.Events.Record(ctx, model.MatchEvent{
				ID:        uuid.NewString(),
				UserID:    player.ID,
				EventType: eventType,
				Data:      data(player),
				Timestamp: now,
			})
		})
	}
	if err := p.Wait(); err != nil {
		log.Printf("Match %s: failed to record %s events: %v", state.ID, eventType, err)
	}
}

func mapStoreErr(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return ErrMatchNotFound
	}
	if errors.Is(err, errNoChange) {
		return ErrMatchFinished
	}
	return err
}
