package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobDone   string = "DONE"
	JobFailed string = "FAILED"
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

const (
	EventPending   string = "PENDING"
	EventDelivered string = "DELIVERED"
	EventFailed    string = "FAILED"
)

const (
	EventEstimateCompleted string = "estimate.completed"
	EventEstimateFailed    string = "estimate.failed"
)

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
