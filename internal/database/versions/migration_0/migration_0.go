package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EstimateJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	OriginalName string
	SizeBytes    int64

	Status        string         `gorm:"size:20;not null;index"`
	Reason        sql.NullString `gorm:"size:40"`
	ExitCode      sql.NullInt64
	History       string
	CleanupErrors int `gorm:"default:0"`

	PrintTimeHours sql.NullFloat64
	PriceAmount    sql.NullFloat64

	StartTime time.Time
	EndTime   time.Time

	Events []OutboundEvent `gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
}

type OutboundEvent struct {
	Id    uuid.UUID `gorm:"type:uuid;primaryKey"`
	JobId uuid.UUID `gorm:"type:uuid;index"`

	Type    string `gorm:"size:40;not null"`
	Payload datatypes.JSON

	Status          string `gorm:"size:20;not null"`
	Attempts        int    `gorm:"default:0"`
	NextAttemptTime time.Time
	LastError       sql.NullString

	CreationTime time.Time
	DeliveryTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&EstimateJob{}, &OutboundEvent{}); err != nil {
		return fmt.Errorf("error creating estimate tables: %w", err)
	}
	return nil
}
