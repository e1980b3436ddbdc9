//go:build integration
// +build integration

package integrationtests

import (
	"context"
	"estimate-backend/internal/database"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeStorePostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	db := createDB(t, ctx)
	store := database.NewOutcomeStore(db)

	done := completedOutcome("cube.stl", 1.5, 7.5)
	failed := failedOutcome("broken.stl")
	require.NoError(t, store.Record(ctx, done))
	require.NoError(t, store.Record(ctx, failed))

	// The job id is the primary key, so recording twice fails and leaves no
	// second event behind.
	assert.Error(t, store.Record(ctx, done))

	job, err := database.GetEstimateJob(ctx, db, done.JobId)
	require.NoError(t, err)
	assert.Equal(t, database.JobDone, job.Status)
	assert.Equal(t, "cube.stl", job.OriginalName)
	assert.Equal(t, 1.5, job.PrintTimeHours.Float64)
	assert.Equal(t, 7.5, job.PriceAmount.Float64)
	assert.False(t, job.Reason.Valid)
	require.Len(t, job.Events, 1)
	assert.Equal(t, database.EventEstimateCompleted, job.Events[0].Type)

	failedJobs, err := database.ListEstimateJobs(ctx, db, database.JobFailed, database.DefaultListLimit, 0)
	require.NoError(t, err)
	require.Len(t, failedJobs, 1)
	assert.Equal(t, failed.JobId, failedJobs[0].Id)
	assert.Equal(t, "SLICER_CRASHED", failedJobs[0].Reason.String)
	assert.Equal(t, int64(3), failedJobs[0].ExitCode.Int64)

	due, err := database.DueEvents(ctx, db, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	require.NoError(t, database.MarkEventDelivered(ctx, db, due[0].Id, 1))
	due, err = database.DueEvents(ctx, db, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}
