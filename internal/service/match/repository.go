package match

import (
	"context"
	"fmt"
	"time"

	"parkclash/internal/model"
	"parkclash/internal/service/storage"

	"gorm.io/gorm"
)

// Repository keeps the durable record of every match
type Repository interface {
	Create(ctx context.Context, rec *model.MatchPG) error
	MarkStarted(ctx context.Context, matchID string, at time.Time) error
	MarkFinished(ctx context.Context, matchID string, at time.Time) error
}

// PGRepository stores match records in the matches table
type PGRepository struct {
	db *gorm.DB
}

func NewPGRepository(db *gorm.DB) *PGRepository {
	return &PGRepository{db: db}
}

func (r *PGRepository) Create(ctx context.Context, rec *model.MatchPG) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert match %s: %w", rec.ID, err)
	}
	return nil
}

func (r *PGRepository) MarkStarted(ctx context.Context, matchID string, at time.Time) error {
	return r.setStatus(ctx, matchID, map[string]interface{}{
		"status":     model.MatchStatusActive,
		"started_at": at,
	})
}

func (r *PGRepository) MarkFinished(ctx context.Context, matchID string, at time.Time) error {
	return r.setStatus(ctx, matchID, map[string]interface{}{
		"status":   model.MatchStatusFinished,
		"ended_at": at,
	})
}

func (r *PGRepository) setStatus(ctx context.Context, matchID string, fields map[string]interface{}) error {
	err := r.db.WithContext(ctx).Model(&model.MatchPG{}).Where("id = ?", matchID).Updates(fields).Error
	if err != nil {
		return fmt.Errorf("update match %s: %w", matchID, err)
	}
	return nil
}

// MemoryRepository keeps match records in process
type MemoryRepository struct {
	records *storage.MemoryStorage[string, model.MatchPG]
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: storage.NewMemoryStorage[string, model.MatchPG]()}
}

func (r *MemoryRepository) Create(_ context.Context, rec *model.MatchPG) error {
	r.records.Set(rec.ID, *rec)
	return nil
}

func (r *MemoryRepository) MarkStarted(_ context.Context, matchID string, at time.Time) error {
	r.records.Compute(matchID, func(rec model.MatchPG, exists bool) (model.MatchPG, bool) {
		rec.Status = model.MatchStatusActive
		rec.StartedAt = &at
		return rec, exists
	})
	return nil
}

func (r *MemoryRepository) MarkFinished(_ context.Context, matchID string, at time.Time) error {
	r.records.Compute(matchID, func(rec model.MatchPG, exists bool) (model.MatchPG, bool) {
		rec.Status = model.MatchStatusFinished
		rec.EndedAt = &at
		return rec, exists
	})
	return nil
}

// Record returns the stored record of a match
func (r *MemoryRepository) Record(matchID string) (model.MatchPG, bool) {
	return r.records.Get(matchID)
}
