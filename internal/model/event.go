package model

import "time"

// Event types written to the match event log
const (
	EventMatchStarted  = "MATCH_STARTED"
	EventZoneCaptured  = "ZONE_CAPTURED"
	EventMatchFinished = "MATCH_FINISHED"
)

// MatchEvent is an entry of the durable event log
type MatchEvent struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// MatchEventPG model for PostgreSQL storage
type MatchEventPG struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"column:user_id;size:64;not null;index"`
	EventType string    `gorm:"column:event_type;size:64;not null;index"`
	Data      string    `gorm:"type:jsonb"`
	Timestamp time.Time `gorm:"not null"`
}

// TableName overrides the table name
func (MatchEventPG) TableName() string {
	return "match_events"
}
