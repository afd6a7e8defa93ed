package seed

import (
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"

	"parkclash/internal/model"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/qedus/osmpbf"
)

// TagFilter matches an OSM tag; Value "*" matches any value
type TagFilter struct {
	Key   string
	Value string
}

// DefaultTagFilters pick landmarks that make good capture points
var DefaultTagFilters = []TagFilter{
	{Key: "leisure", Value: "playground"},
	{Key: "leisure", Value: "pitch"},
	{Key: "amenity", Value: "fountain"},
	{Key: "tourism", Value: "artwork"},
	{Key: "historic", Value: "*"},
}

// ParseTagFilters parses "key=value,key=*"
func ParseTagFilters(s string) ([]TagFilter, error) {
	var filters []TagFilter
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid tag filter %q, want key=value", part)
		}
		filters = append(filters, TagFilter{Key: key, Value: value})
	}
	if len(filters) == 0 {
		return nil, errors.New("no tag filters")
	}
	return filters, nil
}

func (f TagFilter) matches(tags map[string]string) bool {
	v, ok := tags[f.Key]
	if !ok || v == "no" {
		return false
	}
	return f.Value == "*" || f.Value == v
}

// candidateSpatial is an accepted zone in the spacing index
type candidateSpatial struct {
	bound orb.Bound
}

// Bounds implements the rtreego.Spatial interface
func (c *candidateSpatial) Bounds() rtreego.Rect {
	rect, _ := rtreego.NewRect(
		rtreego.Point{c.bound.Min[0], c.bound.Min[1]},
		[]float64{c.bound.Max[0] - c.bound.Min[0], c.bound.Max[1] - c.bound.Min[1]},
	)
	return rect
}

// OSMExtractor finds zone candidates in an OSM PBF extract
type OSMExtractor struct {
	ParkID  string
	Bound   orb.Bound
	Filters []TagFilter
	// Radius is used for point features
	Radius float64

	nodes map[int64]orb.Point
	index *rtreego.Rtree
	zones []model.Zone
}

// NewOSMExtractor creates an extractor for features inside bound
func NewOSMExtractor(parkID string, bound orb.Bound, filters []TagFilter) *OSMExtractor {
	return &OSMExtractor{
		ParkID:  parkID,
		Bound:   bound,
		Filters: filters,
		Radius:  DefaultRadiusMeters,
		nodes:   make(map[int64]orb.Point),
		index:   rtreego.NewTree(2, 25, 50),
	}
}

// Extract reads the file twice: tagged nodes and all node positions first, then
// tagged ways whose outlines need those positions
func (e *OSMExtractor) Extract(file io.ReadSeeker) ([]model.Zone, error) {
	decoder := osmpbf.NewDecoder(file)
	decoder.SetBufferSize(osmpbf.MaxBlobSize)
	if err := decoder.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return nil, fmt.Errorf("start decoder: %w", err)
	}

	log.Println("First pass: collecting nodes...")
	if err := e.collectNodes(decoder); err != nil {
		return nil, err
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind OSM file: %w", err)
	}

	decoder = osmpbf.NewDecoder(file)
	decoder.SetBufferSize(osmpbf.MaxBlobSize)
	if err := decoder.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return nil, fmt.Errorf("start decoder: %w", err)
	}

	log.Println("Second pass: processing ways...")
	if err := e.processWays(decoder); err != nil {
		return nil, err
	}

	log.Printf("Extraction complete. Found %d zones.", len(e.zones))
	if len(e.zones) == 0 {
		return nil, ErrNoZones
	}
	return e.zones, nil
}

func (e *OSMExtractor) collectNodes(decoder *osmpbf.Decoder) error {
	var nodeCount int
	for {
		obj, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error decoding OSM data: %w", err)
		}

		node, ok := obj.(*osmpbf.Node)
		if !ok {
			continue
		}
		p := orb.Point{node.Lon, node.Lat}
		if !e.Bound.Contains(p) {
			continue
		}
		e.nodes[node.ID] = p
		nodeCount++

		if e.wanted(node.Tags) {
			e.add(node.Tags["name"], p, e.Radius)
		}
	}

	log.Printf("Collected %d nodes inside the park bound", nodeCount)
	return nil
}

func (e *OSMExtractor) processWays(decoder *osmpbf.Decoder) error {
	for {
		obj, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error decoding OSM data: %w", err)
		}

		way, ok := obj.(*osmpbf.Way)
		if !ok || !e.wanted(way.Tags) {
			continue
		}
		if poly, ok := e.outline(way.NodeIDs); ok {
			center, radius := CircleAround(poly)
			e.add(way.Tags["name"], center, radius)
		}
	}
	return nil
}

func (e *OSMExtractor) wanted(tags map[string]string) bool {
	for _, f := range e.Filters {
		if f.matches(tags) {
			return true
		}
	}
	return false
}

// outline builds a closed ring from way nodes; every node must be known
func (e *OSMExtractor) outline(nodeIDs []int64) (orb.Polygon, bool) {
	if len(nodeIDs) < 3 {
		return nil, false
	}
	ring := make(orb.Ring, 0, len(nodeIDs)+1)
	for _, id := range nodeIDs {
		p, ok := e.nodes[id]
		if !ok {
			return nil, false
		}
		ring = append(ring, p)
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, true
}

// add keeps a candidate unless it overlaps one already accepted
func (e *OSMExtractor) add(name string, center orb.Point, radius float64) bool {
	z := NewZone(e.ParkID, "", name, center, radius)
	spatial := &candidateSpatial{bound: z.Bound()}
	if len(e.index.SearchIntersect(spatial.Bounds())) > 0 {
		return false
	}
	e.index.Insert(spatial)

	if z.Name == "" {
		z.Name = fmt.Sprintf("Zone %d", len(e.zones)+1)
	}
	e.zones = append(e.zones, z)
	return true
}
