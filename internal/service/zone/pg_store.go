package zone

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parkclash/internal/model"
	"parkclash/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// haversineSQL is util.Distance expressed in SQL against the zone center
var haversineSQL = fmt.Sprintf(`(2 * %f * asin(sqrt(least(1.0,
	power(sin(radians(center_lat - @lat) / 2), 2) +
	cos(radians(@lat)) * cos(radians(center_lat)) * power(sin(radians(center_lng - @lng) / 2), 2)
))))`, util.EarthRadiusMeters)

// nearestZoneSQL selects and row-locks the closest zone in range, skipping zones
// another capture transaction holds
var nearestZoneSQL = `SELECT id, park_id, name, center_lat, center_lng, radius_meters, owner_team_id, version, ` +
	haversineSQL + ` AS distance
FROM zones
WHERE park_id = @park AND ` + haversineSQL + ` <= radius_meters
ORDER BY distance ASC
LIMIT 1
FOR UPDATE SKIP LOCKED`

type nearestZoneRow struct {
	ID           string
	ParkID       string
	Name         string
	CenterLat    float64
	CenterLng    float64
	RadiusMeters float64
	OwnerTeamID  *string
	Version      int64
	Distance     float64
}

// PGStore keeps zones in PostgreSQL
type PGStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPGStore creates a store on top of an open gorm connection
func NewPGStore(db *gorm.DB) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

func (s *PGStore) ZonesForPark(ctx context.Context, parkID string) ([]model.Zone, error) {
	var rows []*model.ZonePG
	if err := s.db.WithContext(ctx).Where("park_id = ?", parkID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load zones for park %s: %w", parkID, err)
	}

	zones := make([]model.Zone, len(rows))
	for i, row := range rows {
		zones[i] = *model.ZoneFromPG(row)
	}
	return zones, nil
}

func (s *PGStore) Zone(ctx context.Context, zoneID string) (model.Zone, error) {
	var row model.ZonePG
	err := s.db.WithContext(ctx).Where("id = ?", zoneID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Zone{}, ErrZoneNotFound
	}
	if err != nil {
		return model.Zone{}, fmt.Errorf("load zone %s: %w", zoneID, err)
	}
	return *model.ZoneFromPG(&row), nil
}

func (s *PGStore) AttemptCapture(ctx context.Context, parkID string, at model.Coordinate, teamID string) (CaptureResult, error) {
	if !util.ValidCoordinate(at) {
		return CaptureResult{}, util.ErrInvalidCoordinate
	}

	var result CaptureResult
	args := map[string]interface{}{"lat": at.Lat, "lng": at.Lng, "park": parkID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []nearestZoneRow
		if err := tx.Raw(nearestZoneSQL, args).Scan(&rows).Error; err != nil {
			return fmt.Errorf("select nearest zone: %w", err)
		}
		if len(rows) == 0 {
			result.Outcome = NoZoneInRange
			return errRollback
		}

		row := rows[0]
		zone := model.ZoneFromPG(&model.ZonePG{
			ID:           row.ID,
			ParkID:       row.ParkID,
			Name:         row.Name,
			CenterLat:    row.CenterLat,
			CenterLng:    row.CenterLng,
			RadiusMeters: row.RadiusMeters,
			OwnerTeamID:  row.OwnerTeamID,
			Version:      row.Version,
		})

		if zone.OwnerTeamID == teamID {
			result = CaptureResult{Outcome: AlreadyOwned, Zone: *zone, PreviousOwner: teamID}
			return errRollback
		}

		update := tx.Model(&model.ZonePG{}).
			Where("id = ? AND version = ?", zone.ID, zone.Version).
			Updates(map[string]interface{}{
				"owner_team_id": teamID,
				"version":       gorm.Expr("version + 1"),
				"updated_at":    s.now(),
			})
		if update.Error != nil {
			return fmt.Errorf("update zone owner: %w", update.Error)
		}
		if update.RowsAffected == 0 {
			return errLostUpdate
		}

		result = CaptureResult{Outcome: Captured, PreviousOwner: zone.OwnerTeamID}
		zone.OwnerTeamID = teamID
		zone.Version++
		result.Zone = *zone
		return nil
	})

	if errors.Is(err, errRollback) {
		return result, nil
	}
	if err != nil {
		return CaptureResult{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	return result, nil
}

func (s *PGStore) ResetOwnership(ctx context.Context, parkID string) error {
	err := s.db.WithContext(ctx).Model(&model.ZonePG{}).
		Where("park_id = ? AND owner_team_id IS NOT NULL", parkID).
		Updates(map[string]interface{}{
			"owner_team_id": nil,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    s.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("reset zone ownership for park %s: %w", parkID, err)
	}
	return nil
}

// Upsert writes zone geometry in batches; existing ownership and version are preserved
func (s *PGStore) Upsert(ctx context.Context, zones []model.Zone) error {
	if len(zones) == 0 {
		return nil
	}

	rows := make([]*model.ZonePG, len(zones))
	for i := range zones {
		rows[i] = model.ZoneToPG(&zones[i])
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"park_id", "name", "center_lat", "center_lng", "radius_meters", "updated_at"}),
		}).CreateInBatches(rows, 500).Error
		if err != nil {
			return fmt.Errorf("upsert zones: %w", err)
		}
		return nil
	})
}
