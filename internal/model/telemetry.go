package model

import "time"

// TelemetryEntry is one accepted location kept until the match is flushed
type TelemetryEntry struct {
	ID         string     `json:"id"`
	PlayerID   string     `json:"playerId"`
	MatchID    string     `json:"matchId"`
	Coordinate Coordinate `json:"coordinate"`
	SpeedMph   float64    `json:"speedMph"`
	Timestamp  time.Time  `json:"timestamp"`
}

// TelemetryPG is the durable telemetry row
type TelemetryPG struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"column:user_id;size:64;not null;index"`
	MatchID   string    `gorm:"column:match_id;size:64;not null;index"`
	Location  string    `gorm:"type:text;not null"` // WKT POINT
	Lat       float64   `gorm:"not null"`
	Lng       float64   `gorm:"not null"`
	SpeedMph  float64   `gorm:"column:speed_mph"`
	Timestamp time.Time `gorm:"not null"`
}

// TableName overrides the table name
func (TelemetryPG) TableName() string {
	return "telemetry"
}
