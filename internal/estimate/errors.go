package estimate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidFormat       = errors.New("invalid model format")
	ErrPayloadTooLarge     = errors.New("model exceeds maximum upload size")
	ErrSlicerLaunchFailed  = errors.New("slicing engine could not be launched")
	ErrSlicerTimeout       = errors.New("slicing engine timed out")
	ErrSlicerCrashed       = errors.New("slicing engine exited with an error")
	ErrEstimateUnavailable = errors.New("slicing engine produced no time estimate")
	ErrServerBusy          = errors.New("estimation capacity exhausted")
	ErrCanceled            = errors.New("estimation canceled")
	ErrInternal            = errors.New("internal estimation error")
)

const (
	ReasonInvalidFormat       = "INVALID_FORMAT"
	ReasonPayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	ReasonSlicerLaunchFailed  = "SLICER_LAUNCH_FAILED"
	ReasonSlicerTimeout       = "SLICER_TIMEOUT"
	ReasonSlicerCrashed       = "SLICER_CRASHED"
	ReasonEstimateUnavailable = "ESTIMATE_UNAVAILABLE"
	ReasonServerBusy          = "SERVER_BUSY"
	ReasonCanceled            = "CANCELED"
	ReasonInternal            = "INTERNAL"
	ReasonCleanupFailure      = "CLEANUP_PARTIAL_FAILURE"
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidFormat, ReasonInvalidFormat},
	{ErrPayloadTooLarge, ReasonPayloadTooLarge},
	{ErrSlicerLaunchFailed, ReasonSlicerLaunchFailed},
	{ErrSlicerTimeout, ReasonSlicerTimeout},
	{ErrSlicerCrashed, ReasonSlicerCrashed},
	{ErrEstimateUnavailable, ReasonEstimateUnavailable},
	{ErrServerBusy, ReasonServerBusy},
	{ErrCanceled, ReasonCanceled},
}

// Reason maps an error returned by the pipeline to a stable reason string.
// Errors outside the taxonomy map to ReasonInternal.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	return ReasonInternal
}

// IsClientError reports whether err was caused by the uploaded input rather
// than by the engine or the environment.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrPayloadTooLarge)
}

// JobError ties a pipeline failure to the job it happened in. Errors
// returned before a job exists are never wrapped.
type JobError struct {
	JobId uuid.UUID
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("estimate job %s: %v", e.JobId, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}
