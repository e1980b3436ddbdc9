//go:build integration
// +build integration

package integrationtests

import (
	"bytes"
	"context"
	"estimate-backend/internal/storage"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diagnosticsBucket = "test-diagnostics"

func setupS3Provider(t *testing.T, ctx context.Context) *storage.S3Provider {
	t.Helper()

	endpoint := setupMinioContainer(t, ctx)

	provider, err := storage.NewS3Provider(storage.S3ProviderConfig{
		S3EndpointURL:     endpoint,
		S3AccessKeyID:     minioUsername,
		S3SecretAccessKey: minioPassword,
		S3Region:          "us-east-1",
	})
	require.NoError(t, err)
	return provider
}

func TestS3ProviderPutGet(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupS3Provider(t, ctx)
	require.NoError(t, provider.CreateBucket(ctx, diagnosticsBucket))
	// Creating an existing bucket is not an error.
	require.NoError(t, provider.CreateBucket(ctx, diagnosticsBucket))

	content := []byte("Test content")
	require.NoError(t, provider.PutObject(ctx, diagnosticsBucket, "test-dir/test-file.txt", bytes.NewReader(content)))

	data, err := provider.GetObject(ctx, diagnosticsBucket, "test-dir/test-file.txt")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	_, err = provider.GetObject(ctx, diagnosticsBucket, "test-dir/missing.txt")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestCaptureArchiveS3(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	archive, err := storage.NewCaptureArchive(ctx, setupS3Provider(t, ctx), diagnosticsBucket)
	require.NoError(t, err)

	jobId := uuid.New()
	capture := []byte("Loading model\nError: mesh is not manifold\n")
	require.NoError(t, archive.ArchiveCapture(ctx, jobId, capture))

	data, err := archive.FetchCapture(ctx, jobId)
	require.NoError(t, err)
	assert.Equal(t, capture, data)

	_, err = archive.FetchCapture(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}
