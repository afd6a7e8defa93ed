package model

import "time"

// MatchStatus is the lifecycle phase of a match
type MatchStatus string

const (
	MatchStatusWaiting  MatchStatus = "waiting"
	MatchStatusActive   MatchStatus = "active"
	MatchStatusFinished MatchStatus = "finished"
)

// Player is a participant of a match
type Player struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	TeamID      string    `json:"teamId"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// MatchState is the ephemeral, authoritative state of a match
type MatchState struct {
	ID                    string         `json:"id"`
	Code                  string         `json:"code"`
	ParkID                string         `json:"parkId"`
	HostID                string         `json:"hostId"`
	Status                MatchStatus    `json:"status"`
	Players               []Player       `json:"players"`
	Zones                 []Zone         `json:"zones"`
	Scores                map[string]int `json:"scores"`
	TeamSize              int            `json:"teamSize"`
	DurationSeconds       int            `json:"durationSeconds"`
	TimerSecondsRemaining int            `json:"timerSecondsRemaining"`
	Version               int64          `json:"version"`
	CreatedAt             time.Time      `json:"createdAt"`
	StartedAt             *time.Time     `json:"startedAt,omitempty"`
	EndedAt               *time.Time     `json:"endedAt,omitempty"`
	LastUpdated           time.Time      `json:"lastUpdated"`
}

// Player returns the participant with the given id
func (m *MatchState) Player(id string) (Player, bool) {
	for _, p := range m.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// TeamCounts returns the number of players per team
func (m *MatchState) TeamCounts() map[string]int {
	counts := make(map[string]int, len(m.Scores))
	for team := range m.Scores {
		counts[team] = 0
	}
	for _, p := range m.Players {
		counts[p.TeamID]++
	}
	return counts
}

// Clone returns a deep copy so callers can mutate freely
func (m *MatchState) Clone() *MatchState {
	c := *m
	c.Players = append([]Player(nil), m.Players...)
	c.Zones = append([]Zone(nil), m.Zones...)
	c.Scores = make(map[string]int, len(m.Scores))
	for k, v := range m.Scores {
		c.Scores[k] = v
	}
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.EndedAt != nil {
		t := *m.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// MatchPG is the durable record of a match
type MatchPG struct {
	ID              string      `gorm:"primaryKey;size:64"`
	Code            string      `gorm:"size:16;index"`
	ParkID          string      `gorm:"size:64;not null;index"`
	HostID          string      `gorm:"size:64;not null"`
	Status          MatchStatus `gorm:"size:16;not null"`
	DurationMinutes int         `gorm:"not null"`
	StartedAt       *time.Time
	EndedAt         *time.Time

	UpdatedAt time.Time `gorm:"column:updated_at"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the table name
func (MatchPG) TableName() string {
	return "matches"
}
