// Package seed turns map data into parks and capturable zones.
package seed

import (
	"errors"
	"fmt"
	"log"
	"math"

	"parkclash/internal/model"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const (
	DefaultRadiusMeters = 40.0
	MinRadiusMeters     = 15.0
	MaxRadiusMeters     = 150.0
)

var ErrNoZones = errors.New("no zones found")

// Park is a park with its outline
type Park struct {
	ID       string
	Name     string
	Boundary orb.Polygon
}

// ToPG converts the park to its storage model with a GeoJSON boundary
func (p *Park) ToPG() (model.ParkPG, error) {
	row := model.ParkPG{ID: p.ID, Name: p.Name}
	if len(p.Boundary) == 0 {
		return row, nil
	}
	data, err := geojson.NewGeometry(p.Boundary).MarshalJSON()
	if err != nil {
		return row, fmt.Errorf("marshal park boundary: %w", err)
	}
	row.Boundary = string(data)
	return row, nil
}

// Result is what a source produced for one park
type Result struct {
	Park  *Park
	Zones []model.Zone
}

// FromGeoJSON reads a feature collection. A polygon with property kind=park is
// the park boundary; other points and polygons become zones. Point zones take
// their radius from the radius property.
func FromGeoJSON(data []byte, parkID string) (Result, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return Result{}, fmt.Errorf("parse geojson: %w", err)
	}

	var res Result
	for i, f := range fc.Features {
		name := f.Properties.MustString("name", "")

		var center orb.Point
		var radius float64
		switch g := f.Geometry.(type) {
		case orb.Point:
			center = g
			radius = f.Properties.MustFloat64("radius", DefaultRadiusMeters)
		case orb.Polygon:
			if f.Properties.MustString("kind", "") == "park" {
				res.Park = &Park{ID: parkID, Name: name, Boundary: g}
				continue
			}
			center, radius = CircleAround(g)
		default:
			log.Printf("Skipping feature %d: unsupported geometry %s", i, f.Geometry.GeoJSONType())
			continue
		}

		if name == "" {
			name = fmt.Sprintf("Zone %d", len(res.Zones)+1)
		}
		id := f.Properties.MustString("id", "")
		if id == "" && f.ID != nil {
			id = fmt.Sprint(f.ID)
		}
		res.Zones = append(res.Zones, NewZone(parkID, id, name, center, radius))
	}

	if res.Park != nil {
		res.Zones = InsideBoundary(res.Park.Boundary, res.Zones)
	}
	if len(res.Zones) == 0 {
		return res, ErrNoZones
	}
	return res, nil
}

// NewZone builds a zone; an empty id is derived from the park and position so
// seeding the same data twice updates rather than duplicates
func NewZone(parkID, id, name string, center orb.Point, radius float64) model.Zone {
	if id == "" {
		key := fmt.Sprintf("%s|%.6f|%.6f", parkID, center.Lat(), center.Lon())
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
	}
	return model.Zone{
		ID:           id,
		ParkID:       parkID,
		Name:         name,
		Center:       model.CoordinateFromPoint(center),
		RadiusMeters: ClampRadius(radius),
	}
}

// CircleAround returns the area centroid of a polygon and the distance to its
// farthest outer vertex, in meters
func CircleAround(poly orb.Polygon) (orb.Point, float64) {
	center, _ := planar.CentroidArea(poly)
	radius := 0.0
	if len(poly) > 0 {
		for _, p := range poly[0] {
			radius = math.Max(radius, geo.Distance(center, p))
		}
	}
	return center, radius
}

// ClampRadius keeps a radius playable on foot with phone GPS
func ClampRadius(r float64) float64 {
	if r <= 0 || math.IsNaN(r) {
		return DefaultRadiusMeters
	}
	return math.Min(MaxRadiusMeters, math.Max(MinRadiusMeters, r))
}

// InsideBoundary drops zones whose center is outside the park
func InsideBoundary(boundary orb.Polygon, zones []model.Zone) []model.Zone {
	kept := zones[:0]
	for _, z := range zones {
		if planar.PolygonContains(boundary, z.Center.Point()) {
			kept = append(kept, z)
			continue
		}
		log.Printf("Dropping zone %q: center outside park boundary", z.Name)
	}
	return kept
}
