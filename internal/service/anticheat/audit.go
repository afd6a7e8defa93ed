package anticheat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"parkclash/internal/model"

	"gorm.io/gorm"
)

// AuditLog is the append-only trail of rejected samples
type AuditLog interface {
	Record(ctx context.Context, entry model.SuspiciousActivity) error
	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]model.SuspiciousActivity, error)
}

// PGAuditLog writes to the suspicious_activity table
type PGAuditLog struct {
	db *gorm.DB
}

func NewPGAuditLog(db *gorm.DB) *PGAuditLog {
	return &PGAuditLog{db: db}
}

func (a *PGAuditLog) Record(ctx context.Context, entry model.SuspiciousActivity) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	row := model.SuspiciousActivityPG{
		ID:        entry.ID,
		UserID:    entry.PlayerID,
		MatchID:   entry.MatchID,
		Reason:    entry.Reason,
		Details:   string(details),
		Timestamp: entry.Timestamp,
	}
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert suspicious activity: %w", err)
	}
	return nil
}

func (a *PGAuditLog) Recent(ctx context.Context, limit int) ([]model.SuspiciousActivity, error) {
	var rows []model.SuspiciousActivityPG
	err := a.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query suspicious activity: %w", err)
	}

	entries := make([]model.SuspiciousActivity, 0, len(rows))
	for _, row := range rows {
		entry := model.SuspiciousActivity{
			ID:        row.ID,
			PlayerID:  row.UserID,
			MatchID:   row.MatchID,
			Reason:    row.Reason,
			Timestamp: row.Timestamp,
		}
		if row.Details != "" {
			_ = json.Unmarshal([]byte(row.Details), &entry.Details)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MemoryAuditLog keeps entries in process
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []model.SuspiciousActivity
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (a *MemoryAuditLog) Record(_ context.Context, entry model.SuspiciousActivity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far
func (a *MemoryAuditLog) Entries() []model.SuspiciousActivity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.SuspiciousActivity(nil), a.entries...)
}

func (a *MemoryAuditLog) Recent(_ context.Context, limit int) ([]model.SuspiciousActivity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.SuspiciousActivity, 0, min(limit, len(a.entries)))
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.entries[i])
	}
	return out, nil
}
