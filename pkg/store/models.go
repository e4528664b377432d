package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used by the Postgres-backed reflection archive.
type ReflectionModel struct {
	ID         string         `gorm:"primaryKey"`
	OwnerID    string         `gorm:"not null;index:idx_reflections_owner_created,priority:1"`
	Text       string         `gorm:"type:text;not null"`
	Enrichment datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_reflections_owner_created,priority:2"`
	EnrichedAt *time.Time
}

// TableName keeps the table name stable across GORM naming changes.
func (ReflectionModel) TableName() string { return "reflections" }
