package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultListLimit = 50

func GetEstimateJob(ctx context.Context, db *gorm.DB, jobId uuid.UUID) (EstimateJob, error) {
	var job EstimateJob
	if err := db.WithContext(ctx).Preload("Events").First(&job, "id = ?", jobId).Error; err != nil {
		return job, err
	}
	return job, nil
}

// ListEstimateJobs returns jobs newest first. An empty status matches every job.
func ListEstimateJobs(ctx context.Context, db *gorm.DB, status string, limit, offset int) ([]EstimateJob, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := db.WithContext(ctx).Order("start_time DESC").Limit(limit).Offset(offset)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var jobs []EstimateJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("error listing estimate jobs: %w", err)
	}
	return jobs, nil
}

// DueEvents returns pending events whose next attempt is at or before now,
// oldest first.
func DueEvents(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]OutboundEvent, error) {
	var events []OutboundEvent
	if err := db.WithContext(ctx).
		Where("status = ? AND next_attempt_time <= ?", EventPending, now.UTC()).
		Order("creation_time ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("error loading pending events: %w", err)
	}
	return events, nil
}

func MarkEventDelivered(ctx context.Context, db *gorm.DB, eventId uuid.UUID, attempts int) error {
	updates := map[string]any{
		"status":        EventDelivered,
		"attempts":      attempts,
		"delivery_time": time.Now().UTC(),
		"last_error":    sql.NullString{},
	}
	if err := db.WithContext(ctx).Model(&OutboundEvent{Id: eventId}).Updates(updates).Error; err != nil {
		slog.Error("error marking event delivered", "event_id", eventId, "error", err)
		return err
	}
	return nil
}

// MarkEventAttemptFailed records a failed delivery. The event stays pending
// until retryAt unless status is EventFailed.
func MarkEventAttemptFailed(ctx context.Context, db *gorm.DB, eventId uuid.UUID, attempts int, status string, retryAt time.Time, deliveryErr error) error {
	updates := map[string]any{
		"status":            status,
		"attempts":          attempts,
		"next_attempt_time": retryAt.UTC(),
		"last_error":        sql.NullString{String: deliveryErr.Error(), Valid: true},
	}
	if err := db.WithContext(ctx).Model(&OutboundEvent{Id: eventId}).Updates(updates).Error; err != nil {
		slog.Error("error recording failed delivery", "event_id", eventId, "status", status, "error", err)
		return err
	}
	return nil
}
