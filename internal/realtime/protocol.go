// Package realtime is the WebSocket channel between players and the match engine.
package realtime

import "encoding/json"

// Client -> Server message types
const (
	MsgJoinMatch      = "join_match"
	MsgLocationUpdate = "location_update"
	MsgEndMatch       = "end_match"
	MsgChat           = "chat"
)

// Error codes sent in error messages
const (
	CodeBadMessage      = "BAD_MESSAGE"
	CodeNotJoined       = "NOT_JOINED"
	CodeMatchNotFound   = "MATCH_NOT_FOUND"
	CodeMatchFinished   = "MATCH_FINISHED"
	CodeNotHost         = "NOT_HOST"
	CodeInvalidState    = "INVALID_STATE"
	CodeMatchFull       = "MATCH_FULL"
	CodeNotInMatch      = "NOT_IN_MATCH"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeRetry           = "RETRY"
	CodeInternal        = "INTERNAL"
	CodeRateLimited     = "RATE_LIMITED"
	CodeUnknownType     = "UNKNOWN_TYPE"
	CodeInvalidLocation = "INVALID_LOCATION"
)

// InEnvelope is used for incoming messages; the payload is decoded per type
type InEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinMatchMsg asks to join a match room
type JoinMatchMsg struct {
	MatchID string `json:"matchId"`
	TeamID  string `json:"teamId,omitempty"`
}

// LocationUpdateMsg is a position report. Speed is meters per second,
// SignalQuality is HDOP and optional.
type LocationUpdateMsg struct {
	MatchID       string   `json:"matchId"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Speed         float64  `json:"speed"`
	SignalQuality *float64 `json:"signalQuality,omitempty"`
}

// EndMatchMsg asks the host to end a match
type EndMatchMsg struct {
	MatchID string `json:"matchId"`
}

// ChatMsg is a chat line for the match room
type ChatMsg struct {
	MatchID string `json:"matchId"`
	Message string `json:"message"`
}
