package notify

import (
	"context"
	"estimate-backend/internal/database"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

const (
	defaultBatchSize  = 20
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 5 * time.Minute
	deliveryTimeout   = 30 * time.Second
	defaultMaxAttempt = 5
)

// Dispatcher drains the outbox. Events are delivered at least once; a failed
// delivery is retried with exponential backoff until MaxAttempts is reached,
// after which the event is marked failed and left for inspection.
type Dispatcher struct {
	db       *gorm.DB
	notifier Notifier

	MaxAttempts int
	BatchSize   int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	now func() time.Time
}

func NewDispatcher(db *gorm.DB, notifier Notifier, maxAttempts int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempt
	}
	return &Dispatcher{
		db:          db,
		notifier:    notifier,
		MaxAttempts: maxAttempts,
		BatchSize:   defaultBatchSize,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		now:         time.Now,
	}
}

func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.MaxDelay {
			return d.MaxDelay
		}
	}
	return delay
}

// DispatchOnce attempts every event that is due and returns how many were
// delivered.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := database.DueEvents(ctx, d.db, d.now(), d.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		attempts := event.Attempts + 1

		notifyCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		notifyErr := d.notifier.Notify(notifyCtx, event)
		cancel()

		if notifyErr == nil {
			if err := database.MarkEventDelivered(ctx, d.db, event.Id, attempts); err != nil {
				return delivered, err
			}
			delivered++
			slog.Debug("delivered estimate event", "event_id", event.Id, "job_id", event.JobId, "type", event.Type)
			continue
		}

		status := database.EventPending
		if attempts >= d.MaxAttempts {
			status = database.EventFailed
			slog.Error("giving up on estimate event", "event_id", event.Id, "job_id", event.JobId, "attempts", attempts, "error", notifyErr)
		} else {
			slog.Warn("estimate event delivery failed", "event_id", event.Id, "job_id", event.JobId, "attempts", attempts, "error", notifyErr)
		}

		retryAt := d.now().Add(d.backoff(attempts))
		if err := database.MarkEventAttemptFailed(ctx, d.db, event.Id, attempts, status, retryAt, notifyErr); err != nil {
			return delivered, err
		}
	}

	return delivered, nil
}

func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("event dispatcher started", "interval", interval, "max_attempts", d.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			slog.Info("event dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("error dispatching estimate events", "error", err)
			}
		}
	}
}
