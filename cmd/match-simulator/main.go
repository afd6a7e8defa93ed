package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"parkclash/internal/model"
	"parkclash/internal/realtime"
	"parkclash/internal/util"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Command line flags
var (
	serverURL    string
	jwtSecret    string
	parkID       string
	botCount     int
	durationMins int
	stepInterval time.Duration
	walkSpeed    float64
	withCheater  bool
)

func init() {
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the match server")
	flag.StringVar(&jwtSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "Secret used to sign bot tokens")
	flag.StringVar(&parkID, "park-id", "", "Park to play in")
	flag.IntVar(&botCount, "bots", 4, "Number of bots, split across both teams")
	flag.IntVar(&durationMins, "duration", 2, "Match duration in minutes")
	flag.DurationVar(&stepInterval, "step", 2*time.Second, "Time between location updates")
	flag.Float64Var(&walkSpeed, "speed", 3.0, "Bot running speed in m/s")
	flag.BoolVar(&withCheater, "cheater", true, "Make the last bot teleport between zones")
}

type bot struct {
	identity realtime.Identity
	token    string
	cheater  bool

	mu       sync.Mutex
	position model.Coordinate
}

func main() {
	flag.Parse()

	if parkID == "" || jwtSecret == "" {
		log.Fatal("-park-id and -jwt-secret must be specified")
	}
	if botCount < 2 {
		log.Fatal("-bots must be at least 2")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := realtime.NewTokenValidator(jwtSecret)
	bots := make([]*bot, botCount)
	for i := range bots {
		suffix, err := util.GenerateUUIDWithLength(8)
		if err != nil {
			log.Fatalf("Failed to generate bot id: %v", err)
		}
		id := realtime.Identity{UserID: "bot-" + suffix, Username: fmt.Sprintf("Bot %d", i+1)}
		token, err := tokens.IssueToken(id, time.Duration(durationMins+10)*time.Minute)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		bots[i] = &bot{identity: id, token: token, cheater: withCheater && i == botCount-1}
	}
	host := bots[0]

	var zonesResp struct {
		Zones []model.Zone `json:"zones"`
	}
	if err := call(ctx, http.MethodGet, "/api/parks/"+url.PathEscape(parkID)+"/zones", host.token, nil, &zonesResp); err != nil {
		log.Fatalf("Failed to load zones: %v", err)
	}
	zones := zonesResp.Zones
	if len(zones) == 0 {
		log.Fatalf("Park %s has no zones; seed it first", parkID)
	}
	log.Printf("Park %s has %d zones", parkID, len(zones))

	var created struct {
		MatchID string `json:"matchId"`
		Code    string `json:"code"`
	}
	createReq := map[string]any{
		"parkId":          parkID,
		"durationMinutes": durationMins,
		"teamSize":        (botCount + 1) / 2,
	}
	if err := call(ctx, http.MethodPost, "/api/matches", host.token, createReq, &created); err != nil {
		log.Fatalf("Failed to create match: %v", err)
	}
	matchID := created.MatchID
	log.Printf("Created match %s (code %s)", matchID, created.Code)

	for _, b := range bots[1:] {
		req := map[string]any{"displayName": b.identity.Username}
		if err := call(ctx, http.MethodPost, "/api/matches/"+matchID+"/join", b.token, req, nil); err != nil {
			log.Fatalf("%s failed to join: %v", b.identity.Username, err)
		}
	}

	start := spawnPoint(zones)
	for _, b := range bots {
		b.position = util.MoveToward(start, zones[rand.IntN(len(zones))].Center, rand.Float64()*30)
	}

	g, ctx := errgroup.WithContext(ctx)
	ended := make(chan struct{})
	var endOnce sync.Once

	for _, b := range bots {
		conn, err := dial(ctx, b.token)
		if err != nil {
			log.Fatalf("%s failed to connect: %v", b.identity.Username, err)
		}
		defer conn.Close()

		if err := send(conn, realtime.MsgJoinMatch, realtime.JoinMatchMsg{MatchID: matchID}); err != nil {
			log.Fatalf("%s failed to join over websocket: %v", b.identity.Username, err)
		}

		g.Go(func() error {
			b.listen(conn)
			endOnce.Do(func() { close(ended) })
			return nil
		})
		go func() {
			// unblocks listen on interrupt
			<-ctx.Done()
			conn.Close()
		}()
		g.Go(func() error {
			return b.play(ctx, conn, matchID, zones, ended)
		})
	}

	if err := call(ctx, http.MethodPost, "/api/matches/"+matchID+"/start", host.token, nil, nil); err != nil {
		log.Fatalf("Failed to start match: %v", err)
	}
	log.Printf("Match %s started with %d bots", matchID, botCount)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Simulation stopped: %v", err)
	}

	var final model.MatchState
	if err := call(context.Background(), http.MethodGet, "/api/matches/"+matchID, host.token, nil, &final); err == nil {
		log.Printf("Final status %s, scores %v", final.Status, final.Scores)
	}

	var report struct {
		Entries []model.SuspiciousActivity `json:"entries"`
	}
	if err := call(context.Background(), http.MethodGet, "/api/admin/suspicious?limit=20", host.token, nil, &report); err != nil {
		log.Printf("Suspicious activity report unavailable: %v", err)
		return
	}
	for _, e := range report.Entries {
		if e.MatchID == matchID {
			log.Printf("Flagged %s: %s %v", e.PlayerID, e.Reason, e.Details)
		}
	}
}

// spawnPoint is the mean of the zone centers
func spawnPoint(zones []model.Zone) model.Coordinate {
	var c model.Coordinate
	for _, z := range zones {
		c.Lat += z.Center.Lat
		c.Lng += z.Center.Lng
	}
	c.Lat /= float64(len(zones))
	c.Lng /= float64(len(zones))
	return c
}

// play walks toward random zones until the match ends. A cheater jumps
// straight to its target every few steps.
func (b *bot) play(ctx context.Context, conn *websocket.Conn, matchID string, zones []model.Zone, ended <-chan struct{}) error {
	ticker := time.NewTicker(stepInterval)
	defer ticker.Stop()

	target := zones[rand.IntN(len(zones))]
	step := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ended:
			return nil
		case <-ticker.C:
		}
		step++

		b.mu.Lock()
		if b.cheater && step%5 == 0 {
			b.position = target.Center
		} else {
			b.position = util.MoveToward(b.position, target.Center, walkSpeed*stepInterval.Seconds())
		}
		pos := b.position
		b.mu.Unlock()

		if d, err := util.Distance(pos, target.Center); err == nil && d < target.RadiusMeters/2 {
			target = zones[rand.IntN(len(zones))]
		}

		quality := 0.9 + rand.Float64()*0.1
		msg := realtime.LocationUpdateMsg{
			MatchID:       matchID,
			Lat:           pos.Lat,
			Lng:           pos.Lng,
			Speed:         walkSpeed,
			SignalQuality: &quality,
		}
		if err := send(conn, realtime.MsgLocationUpdate, msg); err != nil {
			return fmt.Errorf("%s: %w", b.identity.Username, err)
		}
	}
}

// listen logs what the server pushes until the match ends or the socket closes
func (b *bot) listen(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case model.MsgZoneCaptured:
			var ev model.ZoneCapturedPayload
			if json.Unmarshal(env.Payload, &ev) == nil && ev.UserID == b.identity.UserID {
				log.Printf("%s captured %s for %s (%d)", b.identity.Username, ev.ZoneName, ev.TeamID, ev.NewScore)
			}
		case model.MsgError:
			log.Printf("%s got error: %s", b.identity.Username, env.Payload)
		case model.MsgMatchEnded:
			log.Printf("%s saw the match end: %s", b.identity.Username, env.Payload)
			return
		}
	}
}

func dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	return conn, err
}

func send(conn *websocket.Conn, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(realtime.InEnvelope{Type: msgType, Payload: raw})
}

func call(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(serverURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, data)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
