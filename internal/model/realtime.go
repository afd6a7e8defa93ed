package model

import "time"

// Message types sent to clients
const (
	MsgJoined           = "joined"
	MsgOpponentLocation = "opponent_location"
	MsgZoneCaptured     = "zone_captured"
	MsgMatchEnded       = "match_ended"
	MsgMatchState       = "match_state"
	MsgChatMessage      = "chat_message"
	MsgError            = "error"
)

// OutboundEvent is a message fanned out to the players of a match
type OutboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type JoinedPayload struct {
	MatchID string `json:"matchId"`
	TeamID  string `json:"teamId,omitempty"`
}

type OpponentLocationPayload struct {
	UserID string  `json:"userId"`
	TeamID string  `json:"teamId,omitempty"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

type ZoneCapturedPayload struct {
	UserID   string         `json:"userId"`
	TeamID   string         `json:"teamId"`
	ZoneID   string         `json:"zoneId"`
	ZoneName string         `json:"zoneName"`
	NewScore int            `json:"newScore"`
	Scores   map[string]int `json:"scores"`
}

type MatchEndedPayload struct {
	MatchID string         `json:"matchId"`
	Reason  string         `json:"reason"`
	Scores  map[string]int `json:"scores"`
}

type ChatMessagePayload struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sentAt"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
