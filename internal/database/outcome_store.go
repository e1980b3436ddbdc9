package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"estimate-backend/internal/estimate"
	"estimate-backend/pkg/api"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OutcomeStore persists finished estimate jobs. Each job row is written in
// the same transaction as the event announcing it, so the notification
// dispatcher never sees an event without its job or misses a job.
type OutcomeStore struct {
	db *gorm.DB
}

func NewOutcomeStore(db *gorm.DB) *OutcomeStore {
	return &OutcomeStore{db: db}
}

func historyString(history []estimate.State) string {
	states := make([]string, len(history))
	for i, s := range history {
		states[i] = string(s)
	}
	return strings.Join(states, ",")
}

func jobStatus(outcome estimate.Outcome) string {
	if outcome.State == estimate.StateDone {
		return JobDone
	}
	return JobFailed
}

func newEstimateJob(outcome estimate.Outcome) EstimateJob {
	job := EstimateJob{
		Id:            outcome.JobId,
		OriginalName:  outcome.OriginalName,
		SizeBytes:     outcome.SizeBytes,
		Status:        jobStatus(outcome),
		Reason:        sql.NullString{String: outcome.Reason, Valid: outcome.Reason != ""},
		History:       historyString(outcome.History),
		CleanupErrors: outcome.CleanupErrors,
		StartTime:     outcome.StartTime.UTC(),
		EndTime:       outcome.EndTime.UTC(),
	}
	if outcome.ExitCode != nil {
		job.ExitCode = sql.NullInt64{Int64: int64(*outcome.ExitCode), Valid: true}
	}
	if outcome.Quote != nil {
		job.PrintTimeHours = sql.NullFloat64{Float64: outcome.Quote.PrintTimeHours, Valid: true}
		job.PriceAmount = sql.NullFloat64{Float64: outcome.Quote.PriceAmount, Valid: true}
	}
	return job
}

func newEstimateEvent(job EstimateJob, outcome estimate.Outcome) (OutboundEvent, error) {
	eventType := EventEstimateCompleted
	if job.Status != JobDone {
		eventType = EventEstimateFailed
	}

	payload := api.EstimateEvent{
		EventId:      uuid.New(),
		Type:         eventType,
		JobId:        job.Id,
		OriginalName: job.OriginalName,
		SizeBytes:    job.SizeBytes,
		Status:       job.Status,
		Reason:       outcome.Reason,
		StartTime:    job.StartTime,
		EndTime:      job.EndTime,
	}
	if outcome.Quote != nil {
		hours, price := outcome.Quote.PrintTimeHours, outcome.Quote.PriceAmount
		payload.PrintTimeHours = &hours
		payload.PriceAmount = &price
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return OutboundEvent{}, fmt.Errorf("error serializing event payload: %w", err)
	}

	now := time.Now().UTC()
	return OutboundEvent{
		Id:              payload.EventId,
		JobId:           job.Id,
		Type:            eventType,
		Payload:         datatypes.JSON(data),
		Status:          EventPending,
		NextAttemptTime: now,
		CreationTime:    now,
	}, nil
}

func (s *OutcomeStore) Record(ctx context.Context, outcome estimate.Outcome) error {
	job := newEstimateJob(outcome)

	event, err := newEstimateEvent(job, outcome)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&job).Error; err != nil {
			return fmt.Errorf("error saving estimate job: %w", err)
		}
		if err := txn.Create(&event).Error; err != nil {
			return fmt.Errorf("error saving estimate event: %w", err)
		}
		return nil
	}); err != nil {
		slog.Error("error recording estimate outcome", "job_id", job.Id, "error", err)
		return err
	}

	return nil
}
