package model

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// ZonePG model for PostgreSQL storage
type ZonePG struct {
	ID           string  `gorm:"primaryKey;size:64"`
	ParkID       string  `gorm:"size:64;not null;index"`
	Name         string  `gorm:"size:255;not null"`
	CenterLat    float64 `gorm:"column:center_lat;not null"`
	CenterLng    float64 `gorm:"column:center_lng;not null"`
	RadiusMeters float64 `gorm:"column:radius_meters;not null"`
	OwnerTeamID  *string `gorm:"column:owner_team_id;size:64"`
	Version      int64   `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"column:updated_at"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the table name
func (ZonePG) TableName() string {
	return "zones"
}

// Zone is a circular capturable area inside a park
type Zone struct {
	ID           string     `json:"id"`
	ParkID       string     `json:"parkId"`
	Name         string     `json:"name"`
	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radiusMeters"`
	OwnerTeamID  string     `json:"ownerTeamId,omitempty"`
	Version      int64      `json:"version"`
}

// Bound returns the bounding box of the zone circle
func (z *Zone) Bound() orb.Bound {
	return geo.NewBoundAroundPoint(z.Center.Point(), z.RadiusMeters)
}

// ZoneFromPG creates a Zone from ZonePG
func ZoneFromPG(pg *ZonePG) *Zone {
	z := &Zone{
		ID:           pg.ID,
		ParkID:       pg.ParkID,
		Name:         pg.Name,
		Center:       Coordinate{Lat: pg.CenterLat, Lng: pg.CenterLng},
		RadiusMeters: pg.RadiusMeters,
		Version:      pg.Version,
	}
	if pg.OwnerTeamID != nil {
		z.OwnerTeamID = *pg.OwnerTeamID
	}
	return z
}

// ZoneToPG converts a Zone to its storage model
func ZoneToPG(z *Zone) *ZonePG {
	pg := &ZonePG{
		ID:           z.ID,
		ParkID:       z.ParkID,
		Name:         z.Name,
		CenterLat:    z.Center.Lat,
		CenterLng:    z.Center.Lng,
		RadiusMeters: z.RadiusMeters,
		Version:      z.Version,
	}
	if z.OwnerTeamID != "" {
		owner := z.OwnerTeamID
		pg.OwnerTeamID = &owner
	}
	return pg
}
