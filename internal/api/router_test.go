package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	routes "parkclash/internal/api/handlers"
	"parkclash/internal/config"
	"parkclash/internal/model"
	"parkclash/internal/realtime"
	"parkclash/internal/service/anticheat"
	"parkclash/internal/service/match"
	"parkclash/internal/service/session"
	"parkclash/internal/service/telemetry"
	"parkclash/internal/service/zone"

	"github.com/gin-gonic/gin"
)

type testAPI struct {
	router *gin.Engine
	tokens *realtime.TokenValidator
	audit  *anticheat.MemoryAuditLog
}

func newTestAPI(t *testing.T, checks ...routes.HealthCheck) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultGameConfig()
	locations := session.NewMemoryLocationStore()
	audit := anticheat.NewMemoryAuditLog()
	svc := match.NewService(cfg, match.Deps{
		Matches:   session.NewMemoryMatchStore(time.Now),
		Locations: locations,
		Zones: zone.NewMemoryStore(model.Zone{
			ID:           "zone-a",
			ParkID:       "central-park",
			Name:         "Great Lawn",
			Center:       model.Coordinate{Lat: 40.785091, Lng: -73.968285},
			RadiusMeters: 60,
		}),
		Validator: anticheat.NewValidator(anticheat.ConfigFromGame(cfg), locations, audit),
		Telemetry: telemetry.NewLog(telemetry.NewMemoryBuffer(), telemetry.NewMemorySink()),
		Records:   match.NewMemoryRepository(),
	})
	t.Cleanup(svc.Shutdown)

	tokens := realtime.NewTokenValidator("test-secret")
	r := gin.New()
	SetupRouter(r, RouterDeps{
		Matches: svc,
		Audit:   audit,
		Tokens:  tokens,
		Health:  checks,
		Info:    map[string]string{"service": "parkclash"},
	})
	return &testAPI{router: r, tokens: tokens, audit: audit}
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := a.tokens.IssueToken(realtime.Identity{UserID: userID, Username: userID}, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken = %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestMatchEndpoints(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, "POST", "/api/matches", "host", map[string]any{"parkId": "central-park", "durationMinutes": 10})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	created := decode[struct {
		MatchID string            `json:"matchId"`
		Code    string            `json:"code"`
		State   *model.MatchState `json:"state"`
	}](t, w)
	if created.State.HostID != "host" || len(created.State.Zones) != 1 {
		t.Errorf("created state = %+v", created.State)
	}
	base := "/api/matches/" + created.MatchID

	if w := a.do(t, "GET", "/api/matches/code/"+created.Code, "guest", nil); w.Code != http.StatusOK {
		t.Errorf("get by code = %d", w.Code)
	}

	w = a.do(t, "POST", base+"/join", "guest", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("join = %d %s", w.Code, w.Body.String())
	}
	if state := decode[model.MatchState](t, w); len(state.Players) != 2 {
		t.Errorf("players after join = %d", len(state.Players))
	}

	if w := a.do(t, "POST", base+"/join", "third", map[string]string{"teamId": "green"}); w.Code != http.StatusBadRequest {
		t.Errorf("join unknown team = %d, want 400", w.Code)
	}
	if w := a.do(t, "POST", base+"/start", "guest", nil); w.Code != http.StatusForbidden {
		t.Errorf("start by guest = %d, want 403", w.Code)
	}
	if w := a.do(t, "POST", base+"/end", "host", nil); w.Code != http.StatusConflict {
		t.Errorf("end waiting match = %d, want 409", w.Code)
	}
	if w := a.do(t, "POST", base+"/start", "host", nil); w.Code != http.StatusOK {
		t.Fatalf("start = %d %s", w.Code, w.Body.String())
	}
	if w := a.do(t, "POST", base+"/start", "host", nil); w.Code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", w.Code)
	}
	if w := a.do(t, "POST", base+"/telemetry/flush", "host", nil); w.Code != http.StatusConflict {
		t.Errorf("flush of active match = %d, want 409", w.Code)
	}

	w = a.do(t, "POST", base+"/end", "host", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("end = %d %s", w.Code, w.Body.String())
	}
	if state := decode[model.MatchState](t, w); state.Status != model.MatchStatusFinished {
		t.Errorf("status after end = %s", state.Status)
	}

	w = a.do(t, "POST", base+"/telemetry/flush", "host", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("flush = %d %s", w.Code, w.Body.String())
	}
	if flushed := decode[map[string]int](t, w); flushed["flushed"] != 0 {
		t.Errorf("second flush wrote %d rows", flushed["flushed"])
	}

	if w := a.do(t, "POST", base+"/join", "late", nil); w.Code != http.StatusConflict {
		t.Errorf("join finished match = %d, want 409", w.Code)
	}
}

func TestMatchEndpointErrors(t *testing.T) {
	a := newTestAPI(t)

	if w := a.do(t, "GET", "/api/matches/nope", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := a.do(t, "GET", "/api/matches/nope", "u1", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing match = %d, want 404", w.Code)
	}
	if w := a.do(t, "POST", "/api/matches", "u1", map[string]any{"durationMinutes": 10}); w.Code != http.StatusBadRequest {
		t.Errorf("create without park = %d, want 400", w.Code)
	}
	if w := a.do(t, "POST", "/api/matches", "u1", map[string]any{"parkId": "p", "durationMinutes": 1000}); w.Code != http.StatusBadRequest {
		t.Errorf("create with huge duration = %d, want 400", w.Code)
	}

	w := a.do(t, "GET", "/api/parks/central-park/zones", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("zones = %d", w.Code)
	}
	zones := decode[struct {
		Zones []model.Zone `json:"zones"`
	}](t, w)
	if len(zones.Zones) != 1 || zones.Zones[0].ID != "zone-a" {
		t.Errorf("zones = %+v", zones.Zones)
	}
}

func TestParkBusyConflict(t *testing.T) {
	a := newTestAPI(t)

	first := decode[map[string]any](t, a.do(t, "POST", "/api/matches", "h1", map[string]any{"parkId": "central-park"}))
	second := decode[map[string]any](t, a.do(t, "POST", "/api/matches", "h2", map[string]any{"parkId": "central-park"}))

	if w := a.do(t, "POST", "/api/matches/"+first["matchId"].(string)+"/start", "h1", nil); w.Code != http.StatusOK {
		t.Fatalf("start first = %d", w.Code)
	}
	if w := a.do(t, "POST", "/api/matches/"+second["matchId"].(string)+"/start", "h2", nil); w.Code != http.StatusConflict {
		t.Errorf("start second = %d, want 409", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	healthy := newTestAPI(t, routes.HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }})
	if w := healthy.do(t, "GET", "/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", w.Code)
	}

	degraded := newTestAPI(t,
		routes.HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }},
		routes.HealthCheck{Name: "postgres", Check: func(context.Context) error { return errors.New("connection refused") }},
	)
	w := degraded.do(t, "GET", "/healthz", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz = %d, want 503", w.Code)
	}
	body := decode[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, w)
	if body.Status != "degraded" || body.Checks["redis"] != "ok" || body.Checks["postgres"] != "connection refused" {
		t.Errorf("body = %+v", body)
	}
}

func TestSuspiciousReport(t *testing.T) {
	a := newTestAPI(t)
	_ = a.audit.Record(context.Background(), model.SuspiciousActivity{ID: "s1", PlayerID: "p1", MatchID: "m1", Reason: model.ReasonTeleportation})

	w := a.do(t, "GET", "/api/admin/suspicious?limit=10", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("suspicious = %d", w.Code)
	}
	body := decode[struct {
		Entries []model.SuspiciousActivity `json:"entries"`
	}](t, w)
	if len(body.Entries) != 1 || body.Entries[0].Reason != model.ReasonTeleportation {
		t.Errorf("entries = %+v", body.Entries)
	}

	if w := a.do(t, "GET", "/api/admin/suspicious?limit=0", "u1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 = %d, want 400", w.Code)
	}
}
