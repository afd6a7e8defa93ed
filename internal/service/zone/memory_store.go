package zone

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"parkclash/internal/model"
	"parkclash/internal/util"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// zoneSpatial is a zone entry of the R-tree. captureMu plays the role of the
// row lock: a capture that cannot take it immediately skips the zone.
type zoneSpatial struct {
	bound     orb.Bound
	captureMu sync.Mutex
	state     atomic.Pointer[model.Zone]
}

// Bounds implements the rtreego.Spatial interface
func (z *zoneSpatial) Bounds() rtreego.Rect {
	minX, minY := z.bound.Min[0], z.bound.Min[1]
	maxX, maxY := z.bound.Max[0], z.bound.Max[1]

	// Create a new rectangle with the bottom-left corner at (minX, minY)
	// and with width and height dimensions
	rect, _ := rtreego.NewRect(
		rtreego.Point{minX, minY},
		[]float64{maxX - minX, maxY - minY},
	)

	return rect
}

// MemoryStore keeps zones in process with one R-tree per park
type MemoryStore struct {
	indexMutex sync.RWMutex
	zones      map[string]*zoneSpatial
	parks      map[string]*rtreego.Rtree
}

// NewMemoryStore creates a store seeded with zones
func NewMemoryStore(zones ...model.Zone) *MemoryStore {
	s := &MemoryStore{
		zones: make(map[string]*zoneSpatial),
		parks: make(map[string]*rtreego.Rtree),
	}
	if err := s.Upsert(context.Background(), zones); err != nil {
		log.Printf("Failed to seed memory zone store: %v", err)
	}
	return s
}

func (s *MemoryStore) ZonesForPark(_ context.Context, parkID string) ([]model.Zone, error) {
	s.indexMutex.RLock()
	defer s.indexMutex.RUnlock()

	var zones []model.Zone
	for _, entry := range s.zones {
		if z := entry.state.Load(); z.ParkID == parkID {
			zones = append(zones, *z)
		}
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })
	return zones, nil
}

func (s *MemoryStore) Zone(_ context.Context, zoneID string) (model.Zone, error) {
	s.indexMutex.RLock()
	defer s.indexMutex.RUnlock()

	entry, ok := s.zones[zoneID]
	if !ok {
		return model.Zone{}, ErrZoneNotFound
	}
	return *entry.state.Load(), nil
}

type candidate struct {
	entry    *zoneSpatial
	distance float64
}

// candidatesAt returns the zones of parkID covering at, nearest first
func (s *MemoryStore) candidatesAt(parkID string, at model.Coordinate) ([]candidate, error) {
	s.indexMutex.RLock()
	defer s.indexMutex.RUnlock()

	tree, ok := s.parks[parkID]
	if !ok {
		return nil, nil
	}

	var result []candidate
	for _, item := range tree.SearchIntersect(rtreego.Point{at.Lng, at.Lat}.ToRect(1e-9)) {
		entry := item.(*zoneSpatial)
		z := entry.state.Load()

		d, err := util.Distance(at, z.Center)
		if err != nil {
			return nil, err
		}
		if d <= z.RadiusMeters {
			result = append(result, candidate{entry: entry, distance: d})
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].distance < result[j].distance })
	return result, nil
}

func (s *MemoryStore) AttemptCapture(_ context.Context, parkID string, at model.Coordinate, teamID string) (CaptureResult, error) {
	if !util.ValidCoordinate(at) {
		return CaptureResult{}, util.ErrInvalidCoordinate
	}

	candidates, err := s.candidatesAt(parkID, at)
	if err != nil {
		return CaptureResult{}, err
	}

	for _, c := range candidates {
		if !c.entry.captureMu.TryLock() {
			continue
		}
		result, err := capture(c.entry, teamID)
		c.entry.captureMu.Unlock()
		return result, err
	}

	return CaptureResult{Outcome: NoZoneInRange}, nil
}

// capture flips ownership of a locked entry with a compare-and-swap on the snapshot
func capture(entry *zoneSpatial, teamID string) (CaptureResult, error) {
	current := entry.state.Load()
	if current.OwnerTeamID == teamID {
		return CaptureResult{Outcome: AlreadyOwned, Zone: *current, PreviousOwner: teamID}, nil
	}

	next := *current
	next.OwnerTeamID = teamID
	next.Version++
	if !entry.state.CompareAndSwap(current, &next) {
		return CaptureResult{}, fmt.Errorf("%w: %w", ErrTransactionFailed, errLostUpdate)
	}

	return CaptureResult{Outcome: Captured, Zone: next, PreviousOwner: current.OwnerTeamID}, nil
}

func (s *MemoryStore) ResetOwnership(_ context.Context, parkID string) error {
	s.indexMutex.RLock()
	defer s.indexMutex.RUnlock()

	for _, entry := range s.zones {
		if entry.state.Load().ParkID != parkID {
			continue
		}
		entry.captureMu.Lock()
		current := entry.state.Load()
		if current.OwnerTeamID != "" {
			next := *current
			next.OwnerTeamID = ""
			next.Version++
			entry.state.Store(&next)
		}
		entry.captureMu.Unlock()
	}
	return nil
}

// Upsert replaces zone geometry and rebuilds the affected park indexes.
// Ownership and version of existing zones are preserved. The batch is
// validated up front so a bad zone leaves the store untouched.
func (s *MemoryStore) Upsert(_ context.Context, zones []model.Zone) error {
	for _, z := range zones {
		if !util.ValidCoordinate(z.Center) || z.RadiusMeters <= 0 {
			return fmt.Errorf("zone %s: %w", z.ID, util.ErrInvalidCoordinate)
		}
	}

	s.indexMutex.Lock()
	defer s.indexMutex.Unlock()

	touched := make(map[string]bool)
	for i := range zones {
		z := zones[i]
		touched[z.ParkID] = true

		old, ok := s.zones[z.ID]
		if !ok {
			entry := &zoneSpatial{bound: z.Bound()}
			entry.state.Store(&z)
			s.zones[z.ID] = entry
			continue
		}

		// in place, so a capture holding the entry never writes to a detached copy
		old.captureMu.Lock()
		prev := old.state.Load()
		touched[prev.ParkID] = true
		z.OwnerTeamID = prev.OwnerTeamID
		z.Version = prev.Version
		old.bound = z.Bound()
		old.state.Store(&z)
		old.captureMu.Unlock()
	}

	for parkID := range touched {
		s.rebuildParkIndex(parkID)
	}
	return nil
}

// rebuildParkIndex rebuilds the R-tree of one park. Caller holds indexMutex.
func (s *MemoryStore) rebuildParkIndex(parkID string) {
	// 2D index with min 25, max 50 entries per node
	tree := rtreego.NewTree(2, 25, 50)
	for _, entry := range s.zones {
		if entry.state.Load().ParkID == parkID {
			tree.Insert(entry)
		}
	}
	s.parks[parkID] = tree
}
