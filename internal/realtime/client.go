package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"parkclash/internal/model"
	"parkclash/internal/service/match"
	"parkclash/internal/util"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 64
	maxMessagesPerSec = 20
)

// ConnState is the lifecycle state of a connection
type ConnState int

const (
	StateUnauthenticated ConnState = iota
	StateAuthenticated
	StateJoined
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

var errIllegalTransition = errors.New("illegal connection state transition")

// MatchService is what the channel needs from the match engine
type MatchService interface {
	Join(ctx context.Context, matchID string, in match.JoinInput) (*model.MatchState, error)
	HandleLocation(ctx context.Context, update match.LocationUpdate) (match.LocationResult, error)
	End(ctx context.Context, matchID, requesterID string) (*model.MatchState, error)
	Chat(ctx context.Context, matchID, senderID, message string) error
}

// Client represents a WebSocket connection
type Client struct {
	hub     *Hub
	service MatchService
	conn    *websocket.Conn
	send    chan []byte

	// ctx is cancelled on disconnect so in-flight handlers stop
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    ConnState
	identity Identity
	matchID  string

	msgCount   int
	msgResetAt time.Time
}

// NewClient creates an unauthenticated client
func NewClient(hub *Hub, service MatchService, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:     hub,
		service: service,
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns the current connection state
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MatchID returns the joined match, or ""
func (c *Client) MatchID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matchID
}

// Authenticate binds a validated identity to the connection
func (c *Client) Authenticate(id Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUnauthenticated {
		return errIllegalTransition
	}
	c.identity = id
	c.state = StateAuthenticated
	return nil
}

// enterRoom moves an authenticated or joined client into matchID's room
func (c *Client) enterRoom(matchID string) error {
	c.mu.Lock()
	if c.state != StateAuthenticated && c.state != StateJoined {
		c.mu.Unlock()
		return errIllegalTransition
	}
	prev := c.matchID
	c.matchID = matchID
	c.state = StateJoined
	c.mu.Unlock()

	if prev != "" && prev != matchID {
		c.hub.Leave(prev, c)
	}
	c.hub.Join(matchID, c)
	return nil
}

// disconnect is terminal: it leaves the room and stops in-flight handlers. It never
// touches match state.
func (c *Client) disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	matchID := c.matchID
	close(c.send)
	c.mu.Unlock()

	c.cancel()
	if matchID != "" {
		c.hub.Leave(matchID, c)
	}
	log.Printf("WS: user %s disconnected", c.identity.UserID)
}

// ReadPump reads messages from the WebSocket connection and handles them in order
func (c *Client) ReadPump() {
	defer func() {
		c.disconnect()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WS: read error for user %s: %v", c.identity.UserID, err)
			}
			break
		}

		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			c.sendError(CodeRateLimited, "too many messages")
			continue
		}

		c.handleMessage(message)
	}
}

// WritePump writes queued messages and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendRaw queues pre-marshaled bytes; a full buffer or closed client drops them
func (c *Client) SendRaw(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendEvent marshals and queues an event for this client only
func (c *Client) SendEvent(event model.OutboundEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("WS: marshal %s: %v", event.Type, err)
		return
	}
	c.SendRaw(data)
}

func (c *Client) sendError(code, message string) {
	c.SendEvent(model.OutboundEvent{
		Type:    model.MsgError,
		Payload: model.ErrorPayload{Code: code, Message: message},
	})
}

func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError(CodeBadMessage, "malformed message")
		return
	}

	switch env.Type {
	case MsgJoinMatch:
		c.handleJoin(env.Payload)
	case MsgLocationUpdate:
		c.handleLocation(env.Payload)
	case MsgEndMatch:
		c.handleEnd(env.Payload)
	case MsgChat:
		c.handleChat(env.Payload)
	default:
		c.sendError(CodeUnknownType, fmt.Sprintf("unknown message type %q", env.Type))
	}
}

func (c *Client) handleJoin(payload json.RawMessage) {
	var msg JoinMatchMsg
	if err := json.Unmarshal(payload, &msg); err != nil || msg.MatchID == "" {
		c.sendError(CodeBadMessage, "join_match needs a matchId")
		return
	}

	state, err := c.service.Join(c.ctx, msg.MatchID, match.JoinInput{
		PlayerID:    c.identity.UserID,
		DisplayName: c.identity.Username,
		TeamID:      msg.TeamID,
	})
	if err != nil {
		c.sendServiceError(err)
		return
	}
	if err := c.enterRoom(msg.MatchID); err != nil {
		c.sendError(CodeInvalidState, err.Error())
		return
	}

	player, _ := state.Player(c.identity.UserID)
	c.SendEvent(model.OutboundEvent{
		Type:    model.MsgJoined,
		Payload: model.JoinedPayload{MatchID: msg.MatchID, TeamID: player.TeamID},
	})
	c.SendEvent(model.OutboundEvent{Type: model.MsgMatchState, Payload: state})
	log.Printf("WS: user %s joined match %s", c.identity.UserID, msg.MatchID)
}

// joinedMatch resolves the match a message refers to; it must be the joined one
func (c *Client) joinedMatch(requested string) (string, bool) {
	current := c.MatchID()
	if current == "" || c.State() != StateJoined {
		c.sendError(CodeNotJoined, "join a match first")
		return "", false
	}
	if requested != "" && requested != current {
		c.sendError(CodeNotJoined, "not joined to that match")
		return "", false
	}
	return current, true
}

func (c *Client) handleLocation(payload json.RawMessage) {
	var msg LocationUpdateMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.sendError(CodeBadMessage, "malformed location_update")
		return
	}
	matchID, ok := c.joinedMatch(msg.MatchID)
	if !ok {
		return
	}

	// rejected samples come back as a decision, not an error, and are dropped silently
	_, err := c.service.HandleLocation(c.ctx, match.LocationUpdate{
		MatchID:       matchID,
		PlayerID:      c.identity.UserID,
		Coordinate:    model.Coordinate{Lat: msg.Lat, Lng: msg.Lng},
		SpeedMps:      msg.Speed,
		SignalQuality: msg.SignalQuality,
	})
	if err != nil {
		c.sendServiceError(err)
	}
}

func (c *Client) handleEnd(payload json.RawMessage) {
	var msg EndMatchMsg
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.sendError(CodeBadMessage, "malformed end_match")
			return
		}
	}
	matchID, ok := c.joinedMatch(msg.MatchID)
	if !ok {
		return
	}

	if _, err := c.service.End(c.ctx, matchID, c.identity.UserID); err != nil {
		c.sendServiceError(err)
	}
}

func (c *Client) handleChat(payload json.RawMessage) {
	var msg ChatMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.sendError(CodeBadMessage, "malformed chat")
		return
	}
	matchID, ok := c.joinedMatch(msg.MatchID)
	if !ok {
		return
	}

	if err := c.service.Chat(c.ctx, matchID, c.identity.UserID, msg.Message); err != nil {
		c.sendServiceError(err)
	}
}

func (c *Client) sendServiceError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	code := errorCode(err)
	if code == CodeInternal {
		log.Printf("WS: user %s: %v", c.identity.UserID, err)
		c.sendError(code, "internal error")
		return
	}
	c.sendError(code, err.Error())
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		return CodeMatchNotFound
	case errors.Is(err, match.ErrMatchFinished):
		return CodeMatchFinished
	case errors.Is(err, match.ErrNotHost):
		return CodeNotHost
	case errors.Is(err, match.ErrInvalidTransition), errors.Is(err, match.ErrParkBusy):
		return CodeInvalidState
	case errors.Is(err, match.ErrMatchFull), errors.Is(err, match.ErrInvalidTeam):
		return CodeMatchFull
	case errors.Is(err, match.ErrPlayerNotInMatch):
		return CodeNotInMatch
	case errors.Is(err, match.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, util.ErrInvalidCoordinate):
		return CodeInvalidLocation
	case errors.Is(err, match.ErrTransactionFailed):
		return CodeRetry
	}
	return CodeInternal
}
