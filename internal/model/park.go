package model

import "time"

// ParkPG stores a park boundary as a GeoJSON polygon string
type ParkPG struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:255;not null"`
	Boundary string `gorm:"type:text"`

	UpdatedAt time.Time `gorm:"column:updated_at"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the table name
func (ParkPG) TableName() string {
	return "parks"
}
