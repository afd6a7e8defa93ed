package telemetry

import (
	"context"
	"fmt"
	"sync"

	"parkclash/internal/model"

	"github.com/paulmach/orb/encoding/wkt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 1000

// PGSink writes to the telemetry table; duplicate ids are ignored
type PGSink struct {
	db *gorm.DB
}

func NewPGSink(db *gorm.DB) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Write(ctx context.Context, entries []model.TelemetryEntry) (int, error) {
	rows := make([]model.TelemetryPG, len(entries))
	for i, e := range entries {
		rows[i] = toRow(e)
	}

	var written int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, insertBatchSize)
		if res.Error != nil {
			return fmt.Errorf("insert telemetry: %w", res.Error)
		}
		written = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(written), nil
}

func toRow(e model.TelemetryEntry) model.TelemetryPG {
	return model.TelemetryPG{
		ID:        e.ID,
		UserID:    e.PlayerID,
		MatchID:   e.MatchID,
		Location:  wkt.MarshalString(e.Coordinate.Point()),
		Lat:       e.Coordinate.Lat,
		Lng:       e.Coordinate.Lng,
		SpeedMph:  e.SpeedMph,
		Timestamp: e.Timestamp,
	}
}

// MemorySink keeps rows in process, keyed by entry id
type MemorySink struct {
	mu   sync.Mutex
	rows map[string]model.TelemetryPG
}

func NewMemorySink() *MemorySink {
	return &MemorySink{rows: make(map[string]model.TelemetryPG)}
}

func (s *MemorySink) Write(_ context.Context, entries []model.TelemetryEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, e := range entries {
		if _, exists := s.rows[e.ID]; exists {
			continue
		}
		s.rows[e.ID] = toRow(e)
		written++
	}
	return written, nil
}

// Rows returns the persisted rows of one match
func (s *MemorySink) Rows(matchID string) []model.TelemetryPG {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []model.TelemetryPG
	for _, r := range s.rows {
		if r.MatchID == matchID {
			rows = append(rows, r)
		}
	}
	return rows
}
