package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const captureObjectName = "capture.log"

// CaptureArchive keeps slicer output of failed jobs in object storage, keyed
// by job id.
type CaptureArchive struct {
	provider Provider
	bucket   string
}

func NewCaptureArchive(ctx context.Context, provider Provider, bucket string) (*CaptureArchive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("diagnostics bucket is required")
	}
	if err := provider.CreateBucket(ctx, bucket); err != nil {
		return nil, fmt.Errorf("error creating diagnostics bucket: %w", err)
	}
	return &CaptureArchive{provider: provider, bucket: bucket}, nil
}

func captureKey(jobId uuid.UUID) string {
	return jobId.String() + "/" + captureObjectName
}

func (a *CaptureArchive) ArchiveCapture(ctx context.Context, jobId uuid.UUID, capture []byte) error {
	if err := a.provider.PutObject(ctx, a.bucket, captureKey(jobId), bytes.NewReader(capture)); err != nil {
		return fmt.Errorf("error archiving capture for job %s: %w", jobId, err)
	}
	slog.Info("archived slicer capture", "job_id", jobId, "bucket", a.bucket, "bytes", len(capture))
	return nil
}

// FetchCapture returns the archived capture. The error wraps
// ErrObjectNotFound when the job has none.
func (a *CaptureArchive) FetchCapture(ctx context.Context, jobId uuid.UUID) ([]byte, error) {
	return a.provider.GetObject(ctx, a.bucket, captureKey(jobId))
}
