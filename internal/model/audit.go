package model

import "time"

// Rejection reasons recorded for suspicious samples
const (
	ReasonGPSDrift      = "GPS_DRIFT"
	ReasonTeleportation = "TELEPORTATION"
)

// SuspiciousActivity is an append-only record of a rejected sample
type SuspiciousActivity struct {
	ID        string         `json:"id"`
	PlayerID  string         `json:"playerId"`
	MatchID   string         `json:"matchId"`
	Reason    string         `json:"reason"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// SuspiciousActivityPG model for PostgreSQL storage
type SuspiciousActivityPG struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"column:user_id;size:64;not null;index"`
	MatchID   string    `gorm:"column:match_id;size:64;index"`
	Reason    string    `gorm:"size:32;not null"`
	Details   string    `gorm:"type:jsonb"`
	Timestamp time.Time `gorm:"not null"`
}

// TableName overrides the table name
func (SuspiciousActivityPG) TableName() string {
	return "suspicious_activity"
}
