package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed event as stored in the index.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	Module     string    `gorm:"size:16;index"`
	Subject    string    `gorm:"size:96;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// AutoMigrate creates or updates the index schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
