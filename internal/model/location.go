package model

import (
	"time"

	"github.com/paulmach/orb"
)

// Coordinate is a WGS84 position in degrees
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point converts the coordinate to an orb point (x = lng, y = lat)
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// CoordinateFromPoint is the inverse of Coordinate.Point
func CoordinateFromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lng: p.Lon()}
}

// LocationSample is a single position report from a client.
// ReportedSpeed is in meters per second, SignalQuality is HDOP (lower is better).
type LocationSample struct {
	PlayerID      string
	MatchID       string
	Coordinate    Coordinate
	ReportedSpeed float64
	SignalQuality float64
	Timestamp     time.Time
}

// PlayerLastKnownLocation is the last accepted sample position of a player
type PlayerLastKnownLocation struct {
	PlayerID   string     `json:"playerId"`
	Coordinate Coordinate `json:"coordinate"`
	Timestamp  time.Time  `json:"timestamp"`
}
