package seed

import (
	"encoding/json"
	"fmt"

	"parkclash/internal/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

const circleSegments = 32

// ExportGeoJSON renders the park and its zones for visual checking
func ExportGeoJSON(park *Park, zones []model.Zone) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	if park != nil && len(park.Boundary) > 0 {
		feature := geojson.NewFeature(park.Boundary)
		feature.Properties["kind"] = "park"
		feature.Properties["name"] = park.Name
		fc.Append(feature)
	}

	for _, z := range zones {
		feature := geojson.NewFeature(circle(z.Center.Point(), z.RadiusMeters))
		feature.ID = z.ID
		feature.Properties["id"] = z.ID
		feature.Properties["name"] = z.Name
		feature.Properties["radius"] = z.RadiusMeters
		fc.Append(feature)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal geojson: %w", err)
	}
	return data, nil
}

// circle approximates a zone as a polygon
func circle(center orb.Point, radius float64) orb.Polygon {
	ring := make(orb.Ring, 0, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		bearing := 360.0 * float64(i) / circleSegments
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radius))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}
