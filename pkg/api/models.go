package api

import (
	"time"

	"github.com/google/uuid"
)

// EstimateResponse is the body returned by POST /estimate on success.
type EstimateResponse struct {
	Time  float64 `json:"time"`
	Price float64 `json:"price"`
}

// ErrorResponse is the body of every non-200 response.
type ErrorResponse struct {
	Message string `json:"message"`
}

type EstimateJob struct {
	Id uuid.UUID

	OriginalName string
	SizeBytes    int64

	Status        string
	Reason        string `json:"Reason,omitempty"`
	ExitCode      *int   `json:"ExitCode,omitempty"`
	History       []string
	CleanupErrors int

	PrintTimeHours *float64 `json:"PrintTimeHours,omitempty"`
	PriceAmount    *float64 `json:"PriceAmount,omitempty"`

	StartTime time.Time
	EndTime   time.Time

	Events []OutboundEvent `json:"Events,omitempty"`
}

type OutboundEvent struct {
	Id       uuid.UUID
	Type     string
	Status   string
	Attempts int

	LastError string `json:"LastError,omitempty"`

	CreationTime time.Time
	DeliveryTime *time.Time `json:"DeliveryTime,omitempty"`
}

type ListEstimatesParams struct {
	Status string `schema:"status"`
	Limit  int    `schema:"limit"`
	Offset int    `schema:"offset"`
}

// EstimateEvent is the payload delivered to webhook and queue subscribers
// when an estimate job finishes.
type EstimateEvent struct {
	EventId uuid.UUID
	Type    string
	JobId   uuid.UUID

	OriginalName string
	SizeBytes    int64

	Status string
	Reason string `json:"Reason,omitempty"`

	PrintTimeHours *float64 `json:"PrintTimeHours,omitempty"`
	PriceAmount    *float64 `json:"PriceAmount,omitempty"`

	StartTime time.Time
	EndTime   time.Time
}
