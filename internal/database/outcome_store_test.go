package database_test

import (
	"context"
	"encoding/json"
	"estimate-backend/internal/database"
	"estimate-backend/internal/estimate"
	"estimate-backend/pkg/api"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func successOutcome() estimate.Outcome {
	exitCode := 0
	start := time.Now().Add(-2 * time.Second)
	return estimate.Outcome{
		JobId:        uuid.New(),
		OriginalName: "cube.stl",
		SizeBytes:    51200,
		State:        estimate.StateDone,
		ExitCode:     &exitCode,
		Quote:        &estimate.PriceQuote{PrintTimeHours: 1.5, PriceAmount: 7.5},
		History: []estimate.State{
			estimate.StateStaged, estimate.StateSliced, estimate.StateParsed,
			estimate.StateQuoted, estimate.StateCleaned, estimate.StateDone,
		},
		StartTime: start,
		EndTime:   start.Add(time.Second),
	}
}

func TestRecordSuccessfulOutcome(t *testing.T) {
	db := createDB(t)
	store := database.NewOutcomeStore(db)
	outcome := successOutcome()

	require.NoError(t, store.Record(context.Background(), outcome))

	job, err := database.GetEstimateJob(context.Background(), db, outcome.JobId)
	require.NoError(t, err)
	assert.Equal(t, database.JobDone, job.Status)
	assert.False(t, job.Reason.Valid)
	assert.Equal(t, int64(0), job.ExitCode.Int64)
	assert.True(t, job.ExitCode.Valid)
	assert.Equal(t, 1.5, job.PrintTimeHours.Float64)
	assert.Equal(t, 7.5, job.PriceAmount.Float64)
	assert.Equal(t, "STAGED,SLICED,PARSED,QUOTED,CLEANED,DONE", job.History)

	require.Len(t, job.Events, 1)
	event := job.Events[0]
	assert.Equal(t, database.EventEstimateCompleted, event.Type)
	assert.Equal(t, database.EventPending, event.Status)
	assert.Zero(t, event.Attempts)

	var payload api.EstimateEvent
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, event.Id, payload.EventId)
	assert.Equal(t, outcome.JobId, payload.JobId)
	assert.Equal(t, 7.5, *payload.PriceAmount)
}

func TestRecordFailedOutcome(t *testing.T) {
	db := createDB(t)
	store := database.NewOutcomeStore(db)

	outcome := estimate.Outcome{
		JobId:        uuid.New(),
		OriginalName: "broken.stl",
		State:        estimate.StateFailed,
		Reason:       estimate.ReasonSlicerTimeout,
		History:      []estimate.State{estimate.StateStaged, estimate.StateFailed},
		StartTime:    time.Now(),
		EndTime:      time.Now(),
	}
	require.NoError(t, store.Record(context.Background(), outcome))

	job, err := database.GetEstimateJob(context.Background(), db, outcome.JobId)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Equal(t, estimate.ReasonSlicerTimeout, job.Reason.String)
	assert.False(t, job.ExitCode.Valid)
	assert.False(t, job.PriceAmount.Valid)
	require.Len(t, job.Events, 1)
	assert.Equal(t, database.EventEstimateFailed, job.Events[0].Type)
}

func TestRecordDuplicateJobWritesNothing(t *testing.T) {
	db := createDB(t)
	store := database.NewOutcomeStore(db)
	outcome := successOutcome()

	require.NoError(t, store.Record(context.Background(), outcome))
	assert.Error(t, store.Record(context.Background(), outcome))

	var events int64
	require.NoError(t, db.Model(&database.OutboundEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestListEstimateJobs(t *testing.T) {
	db := createDB(t)
	store := database.NewOutcomeStore(db)

	for i := 0; i < 3; i++ {
		outcome := successOutcome()
		outcome.StartTime = time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Record(context.Background(), outcome))
	}
	failed := estimate.Outcome{JobId: uuid.New(), State: estimate.StateFailed, Reason: estimate.ReasonCanceled, StartTime: time.Now()}
	require.NoError(t, store.Record(context.Background(), failed))

	all, err := database.ListEstimateJobs(context.Background(), db, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].StartTime.After(all[i-1].StartTime))
	}

	done, err := database.ListEstimateJobs(context.Background(), db, database.JobDone, 2, 0)
	require.NoError(t, err)
	assert.Len(t, done, 2)

	rest, err := database.ListEstimateJobs(context.Background(), db, database.JobDone, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	onlyFailed, err := database.ListEstimateJobs(context.Background(), db, database.JobFailed, 0, 0)
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, failed.JobId, onlyFailed[0].Id)
}

func TestOutboxDeliveryBookkeeping(t *testing.T) {
	db := createDB(t)
	store := database.NewOutcomeStore(db)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, successOutcome()))
	require.NoError(t, store.Record(ctx, successOutcome()))

	due, err := database.DueEvents(ctx, db, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)

	require.NoError(t, database.MarkEventDelivered(ctx, db, due[0].Id, 1))
	retryAt := time.Now().Add(time.Hour)
	require.NoError(t, database.MarkEventAttemptFailed(ctx, db, due[1].Id, 1, database.EventPending, retryAt, assert.AnError))

	due, err = database.DueEvents(ctx, db, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = database.DueEvents(ctx, db, retryAt.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, assert.AnError.Error(), due[0].LastError.String)

	var delivered database.OutboundEvent
	require.NoError(t, db.First(&delivered, "status = ?", database.EventDelivered).Error)
	assert.True(t, delivered.DeliveryTime.Valid)
}
