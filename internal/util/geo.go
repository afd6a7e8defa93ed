package util

import (
	"errors"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"parkclash/internal/model"
)

// EarthRadiusMeters is the fixed mean Earth radius used for every distance in the service
const EarthRadiusMeters = 6371000.0

// MetersPerSecondPerMph converts miles per hour to meters per second
const MetersPerSecondPerMph = 0.44704

// ErrInvalidCoordinate is returned for latitudes outside [-90, 90] or longitudes outside [-180, 180]
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// ValidCoordinate reports whether c is a finite point on the globe
func ValidCoordinate(c model.Coordinate) bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return math.Abs(c.Lat) <= 90 && math.Abs(c.Lng) <= 180
}

// Distance returns the great-circle distance in meters between a and b (haversine)
func Distance(a, b model.Coordinate) (float64, error) {
	if !ValidCoordinate(a) || !ValidCoordinate(b) {
		return 0, ErrInvalidCoordinate
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h marginally above 1 for antipodal points
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h)), nil
}

// MphToMetersPerSecond converts a speed limit from configuration units
func MphToMetersPerSecond(mph float64) float64 {
	return mph * MetersPerSecondPerMph
}

// MetersPerSecondToMph converts an internal speed to the unit stored in telemetry
func MetersPerSecondToMph(mps float64) float64 {
	return mps / MetersPerSecondPerMph
}

// MoveToward returns the point distanceMeters along the great circle from start to end,
// or end itself when it is closer than distanceMeters
func MoveToward(start, end model.Coordinate, distanceMeters float64) model.Coordinate {
	// Convert degrees to S2 points
	startPoint := s2.PointFromLatLng(s2.LatLngFromDegrees(start.Lat, start.Lng))
	endPoint := s2.PointFromLatLng(s2.LatLngFromDegrees(end.Lat, end.Lng))

	totalDistanceAngle := s1.Angle(s2.ChordAngleBetweenPoints(startPoint, endPoint).Angle())
	totalDistanceMeters := totalDistanceAngle.Radians() * EarthRadiusMeters

	if distanceMeters >= totalDistanceMeters {
		return end
	}

	fraction := distanceMeters / totalDistanceMeters

	// Interpolate on the great circle path
	newLatLng := s2.LatLngFromPoint(s2.Interpolate(fraction, startPoint, endPoint))

	return model.Coordinate{Lat: newLatLng.Lat.Degrees(), Lng: newLatLng.Lng.Degrees()}
}
