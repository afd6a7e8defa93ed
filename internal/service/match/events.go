package match

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"parkclash/internal/model"

	"gorm.io/gorm"
)

// EventRecorder appends to the durable event log
type EventRecorder interface {
	Record(ctx context.Context, event model.MatchEvent) error
}

// PGEventRecorder writes to the match_events table
type PGEventRecorder struct {
	db *gorm.DB
}

func NewPGEventRecorder(db *gorm.DB) *PGEventRecorder {
	return &PGEventRecorder{db: db}
}

func (r *PGEventRecorder) Record(ctx context.Context, event model.MatchEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	row := model.MatchEventPG{
		ID:        event.ID,
		UserID:    event.UserID,
		EventType: event.EventType,
		Data:      string(data),
		Timestamp: event.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert %s event: %w", event.EventType, err)
	}
	return nil
}

// MemoryEventRecorder keeps events in process
type MemoryEventRecorder struct {
	mu     sync.Mutex
	events []model.MatchEvent
}

func NewMemoryEventRecorder() *MemoryEventRecorder {
	return &MemoryEventRecorder{}
}

func (r *MemoryEventRecorder) Record(_ context.Context, event model.MatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns recorded events of the given type
func (r *MemoryEventRecorder) Events(eventType string) []model.MatchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.MatchEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
