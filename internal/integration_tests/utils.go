//go:build integration
// +build integration

package integrationtests

import (
	"context"
	"estimate-backend/internal/database"
	"estimate-backend/internal/estimate"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func setupRabbitMQContainer(t *testing.T, ctx context.Context) string {
	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.12.11-management-alpine")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := rabbitmqContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	return connStr
}

func createDB(t *testing.T, ctx context.Context) *gorm.DB {
	db, err := database.NewDatabase(setupPostgresContainer(t, ctx))
	require.NoError(t, err)
	return db
}

func completedOutcome(name string, hours, price float64) estimate.Outcome {
	exitCode := 0
	start := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	return estimate.Outcome{
		JobId:        uuid.New(),
		OriginalName: name,
		SizeBytes:    1024,
		State:        estimate.StateDone,
		ExitCode:     &exitCode,
		Quote:        &estimate.PriceQuote{PrintTimeHours: hours, PriceAmount: price},
		History: []estimate.State{
			estimate.StateStaged, estimate.StateSliced, estimate.StateParsed,
			estimate.StateQuoted, estimate.StateCleaned, estimate.StateDone,
		},
		StartTime: start,
		EndTime:   start.Add(30 * time.Second),
	}
}

func failedOutcome(name string) estimate.Outcome {
	exitCode := 3
	start := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	return estimate.Outcome{
		JobId:        uuid.New(),
		OriginalName: name,
		SizeBytes:    2048,
		State:        estimate.StateFailed,
		Reason:       estimate.ReasonSlicerCrashed,
		ExitCode:     &exitCode,
		History:      []estimate.State{estimate.StateStaged, estimate.StateSliced, estimate.StateParsed, estimate.StateFailed},
		StartTime:    start,
		EndTime:      start.Add(10 * time.Second),
	}
}
