package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parkclash/internal/config"
	"parkclash/internal/model"
	"parkclash/internal/service/anticheat"
	"parkclash/internal/service/session"
	"parkclash/internal/service/telemetry"
	"parkclash/internal/service/zone"
	"parkclash/internal/util"
)

var (
	zoneA = model.Zone{ID: "zone-a", ParkID: "central-park", Name: "Great Lawn", Center: model.Coordinate{Lat: 40.785091, Lng: -73.968285}, RadiusMeters: 60}
	zoneB = model.Zone{ID: "zone-b", ParkID: "central-park", Name: "Belvedere Castle", Center: model.Coordinate{Lat: 40.7842, Lng: -73.9665}, RadiusMeters: 55}
	zoneC = model.Zone{ID: "zone-c", ParkID: "central-park", Name: "Turtle Pond", Center: model.Coordinate{Lat: 40.7862, Lng: -73.9691}, RadiusMeters: 50}
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

type published struct {
	matchID string
	exclude string
	event   model.OutboundEvent
}

func (n *recordingNotifier) Publish(_ context.Context, matchID, exclude string, event model.OutboundEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{matchID: matchID, exclude: exclude, event: event})
	return nil
}

func (n *recordingNotifier) ofType(t string) []published {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []published
	for _, p := range n.events {
		if p.event.Type == t {
			out = append(out, p)
		}
	}
	return out
}

type failingNotifier struct{}

func (failingNotifier) Publish(context.Context, string, string, model.OutboundEvent) error {
	return errors.New("relay unreachable")
}

type harness struct {
	svc      *Service
	clock    *util.ManualClock
	zones    *zone.MemoryStore
	sink     *telemetry.MemorySink
	buffer   *telemetry.MemoryBuffer
	notifier *recordingNotifier
	events   *MemoryEventRecorder
	records  *MemoryRepository
	audit    *anticheat.MemoryAuditLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.DefaultGameConfig()
	clock := util.NewManualClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	locations := session.NewMemoryLocationStore()

	h := &harness{
		clock:    clock,
		zones:    zone.NewMemoryStore(zoneA, zoneB, zoneC),
		sink:     telemetry.NewMemorySink(),
		buffer:   telemetry.NewMemoryBuffer(),
		notifier: &recordingNotifier{},
		events:   NewMemoryEventRecorder(),
		records:  NewMemoryRepository(),
		audit:    anticheat.NewMemoryAuditLog(),
	}

	h.svc = NewService(cfg, Deps{
		Matches:   session.NewMemoryMatchStore(clock.Now),
		Locations: locations,
		Zones:     h.zones,
		Validator: anticheat.NewValidator(anticheat.ConfigFromGame(cfg), locations, h.audit),
		Telemetry: telemetry.NewLog(h.buffer, h.sink),
		Records:   h.records,
		Events:    h.events,
		Notifier:  h.notifier,
		Clock:     clock,
	})
	t.Cleanup(h.svc.Shutdown)
	return h
}

// activeMatch creates a one-minute match with host (blue) and guest (red) and starts it
func (h *harness) activeMatch(t *testing.T) *model.MatchState {
	t.Helper()
	ctx := context.Background()

	state, err := h.svc.Create(ctx, CreateInput{ParkID: "central-park", DurationMinutes: 1, HostID: "host", HostName: "Host"})
	if err != nil {
		t.Fatalf("Create = %v", err)
	}
	if _, err := h.svc.Join(ctx, state.ID, JoinInput{PlayerID: "guest", DisplayName: "Guest"}); err != nil {
		t.Fatalf("Join = %v", err)
	}
	state, err = h.svc.Start(ctx, state.ID, "host")
	if err != nil {
		t.Fatalf("Start = %v", err)
	}
	return state
}

func (h *harness) locate(t *testing.T, matchID, playerID string, at model.Coordinate) LocationResult {
	t.Helper()
	h.clock.Advance(10 * time.Second)
	res, err := h.svc.HandleLocation(context.Background(), LocationUpdate{MatchID: matchID, PlayerID: playerID, Coordinate: at, SpeedMps: 1.2})
	if err != nil {
		t.Fatalf("HandleLocation(%s) = %v", playerID, err)
	}
	return res
}

func TestMatchEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	state, err := h.svc.Create(ctx, CreateInput{ParkID: "central-park", DurationMinutes: 1, HostID: "host"})
	if err != nil {
		t.Fatalf("Create = %v", err)
	}
	if state.Status != model.MatchStatusWaiting || len(state.Zones) != 3 || len(state.Code) != 6 {
		t.Fatalf("created state = %+v", state)
	}
	if rec, ok := h.records.Record(state.ID); !ok || rec.Status != model.MatchStatusWaiting {
		t.Errorf("durable record = %+v, %v", rec, ok)
	}

	if _, err := h.svc.Start(ctx, state.ID, "host"); err != nil {
		t.Fatalf("Start = %v", err)
	}

	res := h.locate(t, state.ID, "host", zoneA.Center)
	if res.Capture == nil || res.Capture.Outcome != zone.Captured || res.Capture.ZoneID != "zone-a" {
		t.Fatalf("capture = %+v, want zone-a captured", res.Capture)
	}
	if res.Capture.NewScore != 10 {
		t.Errorf("NewScore = %d, want 10", res.Capture.NewScore)
	}

	res = h.locate(t, state.ID, "host", zoneA.Center)
	if res.Capture == nil || res.Capture.Outcome != zone.AlreadyOwned {
		t.Fatalf("recapture = %+v, want AlreadyOwned", res.Capture)
	}

	got, _ := h.svc.Get(ctx, state.ID)
	if got.Scores["blue"] != 10 {
		t.Errorf("blue = %d after recapture, want 10", got.Scores["blue"])
	}
	if captured := h.notifier.ofType(model.MsgZoneCaptured); len(captured) != 1 {
		t.Errorf("zone_captured broadcasts = %d, want 1", len(captured))
	}

	for i := 0; i < 12; i++ {
		if _, err := h.svc.Tick(ctx, state.ID); err != nil {
			t.Fatalf("Tick %d = %v", i, err)
		}
	}

	got, _ = h.svc.Get(ctx, state.ID)
	if got.Status != model.MatchStatusFinished || got.TimerSecondsRemaining != 0 {
		t.Fatalf("after timer: status = %s, remaining = %d", got.Status, got.TimerSecondsRemaining)
	}
	if rows := h.sink.Rows(state.ID); len(rows) != 2 {
		t.Errorf("telemetry rows = %d, want 2", len(rows))
	}
	if ended := h.notifier.ofType(model.MsgMatchEnded); len(ended) != 1 {
		t.Errorf("match_ended broadcasts = %d, want 1", len(ended))
	}
	if finished := h.events.Events(model.EventMatchFinished); len(finished) != 1 || finished[0].UserID != "host" {
		t.Errorf("MATCH_FINISHED events = %+v, want one for host", finished)
	}
	if rec, _ := h.records.Record(state.ID); rec.Status != model.MatchStatusFinished || rec.EndedAt == nil {
		t.Errorf("durable record = %+v, want finished", rec)
	}
	if h.svc.Tickers.Running(state.ID) {
		t.Errorf("ticker still running after finish")
	}

	// a second flush writes nothing and leaves ownership alone
	n, err := h.svc.FlushTelemetry(ctx, state.ID)
	if err != nil || n != 0 {
		t.Errorf("second flush = %d, %v, want 0", n, err)
	}
	z, _ := h.zones.Zone(ctx, "zone-a")
	if z.OwnerTeamID != "blue" {
		t.Errorf("zone-a owner after flush = %q, want blue", z.OwnerTeamID)
	}
}

func TestCaptureFromOtherTeamMovesPoints(t *testing.T) {
	h := newHarness(t)
	state := h.activeMatch(t)

	h.locate(t, state.ID, "host", zoneC.Center)
	res := h.locate(t, state.ID, "guest", zoneC.Center)
	if res.Capture == nil || res.Capture.Outcome != zone.Captured || res.Capture.NewScore != 10 {
		t.Fatalf("steal = %+v, want red captured with 10", res.Capture)
	}

	got, _ := h.svc.Get(context.Background(), state.ID)
	if got.Scores["blue"] != 0 || got.Scores["red"] != 10 {
		t.Errorf("scores = %v, want blue 0 red 10", got.Scores)
	}
}

func TestFinishedMatchRejectsPlay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state := h.activeMatch(t)

	if _, err := h.svc.End(ctx, state.ID, "host"); err != nil {
		t.Fatalf("End = %v", err)
	}

	if _, err := h.svc.Join(ctx, state.ID, JoinInput{PlayerID: "late"}); !errors.Is(err, ErrMatchFinished) {
		t.Errorf("Join = %v, want ErrMatchFinished", err)
	}
	if _, err := h.svc.HandleLocation(ctx, LocationUpdate{MatchID: state.ID, PlayerID: "guest", Coordinate: zoneA.Center}); !errors.Is(err, ErrMatchFinished) {
		t.Errorf("HandleLocation = %v, want ErrMatchFinished", err)
	}
	if _, err := h.svc.Capture(ctx, state.ID, "guest", zoneA.Center); !errors.Is(err, ErrMatchFinished) {
		t.Errorf("Capture = %v, want ErrMatchFinished", err)
	}
	if _, err := h.svc.End(ctx, state.ID, "host"); !errors.Is(err, ErrMatchFinished) {
		t.Errorf("second End = %v, want ErrMatchFinished", err)
	}

	z, _ := h.zones.Zone(ctx, "zone-a")
	if z.OwnerTeamID != "" {
		t.Errorf("zone-a owned by %q after finished-match capture attempt", z.OwnerTeamID)
	}
}

func TestStartGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, _ := h.svc.Create(ctx, CreateInput{ParkID: "central-park", HostID: "host"})
	second, _ := h.svc.Create(ctx, CreateInput{ParkID: "central-park", HostID: "other"})

	if _, err := h.svc.Start(ctx, first.ID, "guest"); !errors.Is(err, ErrNotHost) {
		t.Errorf("Start by non-host = %v, want ErrNotHost", err)
	}
	if _, err := h.svc.Start(ctx, first.ID, "host"); err != nil {
		t.Fatalf("Start = %v", err)
	}
	if _, err := h.svc.Start(ctx, first.ID, "host"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start = %v, want ErrInvalidTransition", err)
	}
	if _, err := h.svc.Start(ctx, second.ID, "other"); !errors.Is(err, ErrParkBusy) {
		t.Errorf("Start in busy park = %v, want ErrParkBusy", err)
	}

	if _, err := h.svc.End(ctx, first.ID, "host"); err != nil {
		t.Fatalf("End = %v", err)
	}
	if _, err := h.svc.Start(ctx, second.ID, "other"); err != nil {
		t.Errorf("Start after park released = %v", err)
	}
	if _, err := h.svc.Start(ctx, "missing", "host"); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("Start(missing) = %v, want ErrMatchNotFound", err)
	}
}

func TestStartResetsZoneOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.zones.AttemptCapture(ctx, "central-park", zoneB.Center, "red"); err != nil {
		t.Fatalf("AttemptCapture = %v", err)
	}
	state := h.activeMatch(t)

	for _, z := range state.Zones {
		if z.OwnerTeamID != "" {
			t.Errorf("zone %s owned by %q at start", z.ID, z.OwnerTeamID)
		}
	}
}

func TestEndGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	state, _ := h.svc.Create(ctx, CreateInput{ParkID: "central-park", HostID: "host"})
	if _, err := h.svc.End(ctx, state.ID, "host"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("End of waiting match = %v, want ErrInvalidTransition", err)
	}
	if _, err := h.svc.Start(ctx, state.ID, "host"); err != nil {
		t.Fatalf("Start = %v", err)
	}
	if _, err := h.svc.End(ctx, state.ID, "guest"); !errors.Is(err, ErrNotHost) {
		t.Errorf("End by non-host = %v, want ErrNotHost", err)
	}
	if _, err := h.svc.End(ctx, "missing", "host"); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("End(missing) = %v, want ErrMatchNotFound", err)
	}
}

func TestConcurrentFinishRunsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state := h.activeMatch(t)
	h.locate(t, state.ID, "host", zoneA.Center)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.svc.End(ctx, state.ID, "host")
		}()
		go func() {
			defer wg.Done()
			_, _ = h.svc.finish(ctx, state.ID, "timer")
		}()
	}
	wg.Wait()

	if ended := h.notifier.ofType(model.MsgMatchEnded); len(ended) != 1 {
		t.Errorf("match_ended broadcasts = %d, want 1", len(ended))
	}
	if finished := h.events.Events(model.EventMatchFinished); len(finished) != 2 {
		t.Errorf("MATCH_FINISHED events = %d, want 2", len(finished))
	}
	if rows := h.sink.Rows(state.ID); len(rows) != 1 {
		t.Errorf("telemetry rows = %d, want 1", len(rows))
	}
}

func TestJoinBalancesTeams(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	state, _ := h.svc.Create(ctx, CreateInput{ParkID: "central-park", HostID: "host", TeamSize: 2})

	state, _ = h.svc.Join(ctx, state.ID, JoinInput{PlayerID: "p2"})
	if p, _ := state.Player("p2"); p.TeamID != "red" {
		t.Errorf("p2 team = %q, want red", p.TeamID)
	}

	// joining again changes nothing
	again, err := h.svc.Join(ctx, state.ID, JoinInput{PlayerID: "p2", TeamID: "blue"})
	if err != nil || len(again.Players) != 2 {
		t.Errorf("rejoin = %d players, %v, want 2", len(again.Players), err)
	}

	if _, err := h.svc.Join(ctx, state.ID, JoinInput{PlayerID: "p3", TeamID: "green"}); !errors.Is(err, ErrInvalidTeam) {
		t.Errorf("Join(green) = %v, want ErrInvalidTeam", err)
	}
	_, _ = h.svc.Join(ctx, state.ID, JoinInput{PlayerID: "p3"})
	_, _ = h.svc.Join(ctx, state.ID, JoinInput{PlayerID: "p4"})
	if _, err := h.svc.Join(ctx, state.ID, JoinInput{PlayerID: "p5"}); !errors.Is(err, ErrMatchFull) {
		t.Errorf("Join into full match = %v, want ErrMatchFull", err)
	}
	if _, err := h.svc.Join(ctx, "missing", JoinInput{PlayerID: "p1"}); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("Join(missing) = %v, want ErrMatchNotFound", err)
	}

	byCode, err := h.svc.FindByCode(ctx, state.Code)
	if err != nil || byCode.ID != state.ID {
		t.Errorf("FindByCode = %v, %v", byCode, err)
	}
}

func TestRejectedLocationIsDropped(t *testing.T) {
	h := newHarness(t)
	state := h.activeMatch(t)

	h.locate(t, state.ID, "guest", model.Coordinate{Lat: 40.7829, Lng: -73.9654})

	h.clock.Advance(2 * time.Second)
	res, err := h.svc.HandleLocation(context.Background(), LocationUpdate{
		MatchID: state.ID, PlayerID: "guest", Coordinate: zoneA.Center,
	})
	if err != nil {
		t.Fatalf("HandleLocation = %v", err)
	}
	if res.Decision.Accepted || res.Capture != nil {
		t.Fatalf("result = %+v, want rejected without capture", res)
	}

	if relayed := h.notifier.ofType(model.MsgOpponentLocation); len(relayed) != 1 {
		t.Errorf("opponent_location broadcasts = %d, want 1", len(relayed))
	}
	entries, _ := h.buffer.Entries(context.Background(), state.ID)
	if len(entries) != 1 {
		t.Errorf("buffered telemetry = %d, want 1", len(entries))
	}
	if len(h.audit.Entries()) != 1 {
		t.Errorf("audit entries = %d, want 1", len(h.audit.Entries()))
	}
}

func TestRelayExcludesSender(t *testing.T) {
	h := newHarness(t)
	state := h.activeMatch(t)

	h.locate(t, state.ID, "guest", model.Coordinate{Lat: 40.7829, Lng: -73.9654})

	relayed := h.notifier.ofType(model.MsgOpponentLocation)
	if len(relayed) != 1 || relayed[0].exclude != "guest" {
		t.Fatalf("relay = %+v, want one excluding guest", relayed)
	}
	payload := relayed[0].event.Payload.(model.OpponentLocationPayload)
	if payload.UserID != "guest" || payload.TeamID != "red" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWaitingMatchTracksButDoesNotCapture(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	state, _ := h.svc.Create(ctx, CreateInput{ParkID: "central-park", HostID: "host"})
	res := h.locate(t, state.ID, "host", zoneA.Center)
	if !res.Decision.Accepted || res.Capture != nil {
		t.Errorf("result = %+v, want accepted without capture", res)
	}
	if _, err := h.svc.Capture(ctx, state.ID, "host", zoneA.Center); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Capture in waiting match = %v, want ErrInvalidTransition", err)
	}
	if _, err := h.svc.HandleLocation(ctx, LocationUpdate{MatchID: state.ID, PlayerID: "stranger", Coordinate: zoneA.Center}); !errors.Is(err, ErrPlayerNotInMatch) {
		t.Errorf("HandleLocation by stranger = %v, want ErrPlayerNotInMatch", err)
	}
}

func TestNotifierFailureDoesNotUndoCapture(t *testing.T) {
	h := newHarness(t)
	h.svc.Notifier = failingNotifier{}
	state := h.activeMatch(t)

	res := h.locate(t, state.ID, "host", zoneB.Center)
	if res.Capture == nil || res.Capture.Outcome != zone.Captured {
		t.Fatalf("capture = %+v, want captured", res.Capture)
	}
	got, _ := h.svc.Get(context.Background(), state.ID)
	if got.Scores["blue"] != 10 {
		t.Errorf("blue = %d, want 10", got.Scores["blue"])
	}
}

func TestChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state := h.activeMatch(t)

	if err := h.svc.Chat(ctx, state.ID, "guest", "  go red  "); err != nil {
		t.Fatalf("Chat = %v", err)
	}
	msgs := h.notifier.ofType(model.MsgChatMessage)
	if len(msgs) != 1 || msgs[0].exclude != "" {
		t.Fatalf("chat broadcasts = %+v", msgs)
	}
	if p := msgs[0].event.Payload.(model.ChatMessagePayload); p.Message != "go red" || p.SenderName != "Guest" {
		t.Errorf("payload = %+v", p)
	}

	if err := h.svc.Chat(ctx, state.ID, "guest", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty Chat = %v, want ErrInvalidInput", err)
	}
	if err := h.svc.Chat(ctx, state.ID, "stranger", "hi"); !errors.Is(err, ErrPlayerNotInMatch) {
		t.Errorf("stranger Chat = %v, want ErrPlayerNotInMatch", err)
	}
}

func TestFlushTelemetryRefusesActiveMatch(t *testing.T) {
	h := newHarness(t)
	state := h.activeMatch(t)

	if _, err := h.svc.FlushTelemetry(context.Background(), state.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("FlushTelemetry(active) = %v, want ErrInvalidTransition", err)
	}
}

func TestWinningTeam(t *testing.T) {
	if got := winningTeam(map[string]int{"blue": 20, "red": 10}); got != "blue" {
		t.Errorf("winningTeam = %q, want blue", got)
	}
	if got := winningTeam(map[string]int{"blue": 10, "red": 10}); got != "" {
		t.Errorf("winningTeam on tie = %q, want empty", got)
	}
}

// holdingMatchStore parks the next Update until release is closed
type holdingMatchStore struct {
	session.MatchStore

	once    sync.Once
	armed   chan struct{}
	held    chan struct{}
	release chan struct{}
}

func newHoldingMatchStore(inner session.MatchStore) *holdingMatchStore {
	armed := make(chan struct{}, 1)
	armed <- struct{}{}
	return &holdingMatchStore{
		MatchStore: inner,
		armed:      armed,
		held:       make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (s *holdingMatchStore) Update(ctx context.Context, matchID string, fn func(*model.MatchState) error) (*model.MatchState, error) {
	select {
	case <-s.armed:
		s.once.Do(func() { close(s.held) })
		<-s.release
	default:
	}
	return s.MatchStore.Update(ctx, matchID, fn)
}

// assertScoresTrackOwnership checks score = owned zones x capture points for every team
func assertScoresTrackOwnership(t *testing.T, h *harness, matchID string) {
	t.Helper()
	ctx := context.Background()

	state, err := h.svc.Get(ctx, matchID)
	if err != nil {
		t.Fatalf("Get = %v", err)
	}
	zones, _ := h.zones.ZonesForPark(ctx, state.ParkID)

	want := make(map[string]int)
	for _, z := range zones {
		if z.OwnerTeamID != "" {
			want[z.OwnerTeamID] += h.svc.cfg.CapturePoints
		}
	}
	for team, score := range state.Scores {
		if score != want[team] {
			t.Errorf("%s score = %d, want %d (scores %v)", team, score, want[team], state.Scores)
		}
	}
}

func TestLateScoreUpdateDoesNotOverrideNewerCapture(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state := h.activeMatch(t)

	hold := newHoldingMatchStore(h.svc.Matches)
	h.svc.Matches = hold

	blueDone := make(chan CaptureOutcome, 1)
	go func() {
		res, err := h.svc.Capture(ctx, state.ID, "host", zoneA.Center)
		if err != nil {
			t.Errorf("blue Capture = %v", err)
		}
		blueDone <- res
	}()

	// blue owns the zone but its score update has not landed yet
	<-hold.held
	red, err := h.svc.Capture(ctx, state.ID, "guest", zoneA.Center)
	if err != nil || red.Outcome != zone.Captured || red.NewScore != 10 {
		t.Fatalf("red Capture = %+v, %v, want captured with 10", red, err)
	}

	close(hold.release)
	blue := <-blueDone
	if blue.Outcome != zone.Captured || blue.NewScore != 0 {
		t.Errorf("blue outcome = %+v, want captured with score 0", blue)
	}

	got, _ := h.svc.Get(ctx, state.ID)
	if got.Scores["blue"] != 0 || got.Scores["red"] != 10 {
		t.Errorf("scores = %v, want blue 0 red 10", got.Scores)
	}
	assertScoresTrackOwnership(t, h, state.ID)
}

func TestInterleavedCapturesKeepScoresConsistent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state := h.activeMatch(t)

	players := []string{"host", "guest"}
	targets := []model.Coordinate{zoneA.Center, zoneB.Center, zoneC.Center}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.svc.Capture(ctx, state.ID, players[i%2], targets[i%3])
		}()
	}
	wg.Wait()

	assertScoresTrackOwnership(t, h, state.ID)
}

// restarted builds a second service over the same stores with its own timers
func (h *harness) restarted(t *testing.T) *Service {
	t.Helper()
	deps := h.svc.Deps
	deps.Tickers = nil
	svc := NewService(h.svc.cfg, deps)
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestResumePicksUpOrphanedMatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state := h.activeMatch(t)
	other := h.restarted(t)

	// recently ticked, so some instance still owns the timer
	if n, err := other.Resume(ctx); err != nil || n != 0 {
		t.Fatalf("Resume of live match = %d, %v, want 0", n, err)
	}

	h.clock.Advance(time.Minute)
	if n, err := other.Resume(ctx); err != nil || n != 1 {
		t.Fatalf("Resume = %d, %v, want 1", n, err)
	}
	if !other.Tickers.Running(state.ID) {
		t.Error("ticker not running after resume")
	}
	if n, _ := other.Resume(ctx); n != 0 {
		t.Errorf("second Resume = %d, want 0", n)
	}
}

func TestResumeFinishesExpiredMatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state := h.activeMatch(t)

	_, err := h.svc.Matches.Update(ctx, state.ID, func(m *model.MatchState) error {
		m.TimerSecondsRemaining = 0
		return nil
	})
	if err != nil {
		t.Fatalf("Update = %v", err)
	}
	h.clock.Advance(time.Minute)

	other := h.restarted(t)
	if n, err := other.Resume(ctx); err != nil || n != 0 {
		t.Fatalf("Resume = %d, %v, want 0", n, err)
	}

	got, _ := other.Get(ctx, state.ID)
	if got.Status != model.MatchStatusFinished {
		t.Errorf("status = %s, want finished", got.Status)
	}
	if ended := h.notifier.ofType(model.MsgMatchEnded); len(ended) != 1 {
		t.Errorf("match_ended broadcasts = %d, want 1", len(ended))
	}
	claimed, _ := h.svc.Matches.ClaimedMatches(ctx)
	if len(claimed) != 0 {
		t.Errorf("claimed matches = %v, want none", claimed)
	}
}
