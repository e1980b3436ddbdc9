package estimate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	recordTimeout = 10 * time.Second

	// Engines write their summary header at the top of the toolpath.
	toolpathHeadBytes = 1024 * 1024
)

type Slicer interface {
	NewJob(id uuid.UUID, input *UploadedModel) (*SliceJob, error)

	Run(ctx context.Context, job *SliceJob) (*SliceResult, error)
}

// Recorder receives the outcome of every job that got past staging. Errors
// are logged and never change the caller's result.
type Recorder interface {
	Record(ctx context.Context, outcome Outcome) error
}

// DiagnosticsArchive keeps the engine output of jobs that failed to produce
// an estimate, for operators to inspect after the artifacts are gone.
type DiagnosticsArchive interface {
	ArchiveCapture(ctx context.Context, jobId uuid.UUID, capture []byte) error
}

type Options struct {
	Stager     *Stager
	Slicer     Slicer
	Calculator Calculator
	Reaper     *Reaper

	MaxConcurrent int64
	AdmissionWait time.Duration
	QuotaBytes    int64

	Recorder    Recorder
	Diagnostics DiagnosticsArchive
}

type Service struct {
	stager     *Stager
	slicer     Slicer
	calculator Calculator
	reaper     *Reaper

	slots         *semaphore.Weighted
	admissionWait time.Duration
	quota         diskQuota

	recorder    Recorder
	diagnostics DiagnosticsArchive
}

func NewService(opts Options) (*Service, error) {
	if opts.Stager == nil || opts.Slicer == nil {
		return nil, fmt.Errorf("stager and slicer are required")
	}
	if opts.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent slices must be positive, got %d", opts.MaxConcurrent)
	}
	if opts.Reaper == nil {
		opts.Reaper = NewReaper()
	}

	return &Service{
		stager:        opts.Stager,
		slicer:        opts.Slicer,
		calculator:    opts.Calculator,
		reaper:        opts.Reaper,
		slots:         semaphore.NewWeighted(opts.MaxConcurrent),
		admissionWait: opts.AdmissionWait,
		quota:         diskQuota{limit: opts.QuotaBytes},
		recorder:      opts.Recorder,
		diagnostics:   opts.Diagnostics,
	}, nil
}

func (s *Service) Reaper() *Reaper {
	return s.reaper
}

type jobRun struct {
	model    *UploadedModel
	state    State
	history  []State
	exitCode *int
	start    time.Time
}

func (r *jobRun) transition(to State) {
	slog.Debug("estimate job transition", "job_id", r.model.Id, "from", r.state, "to", to)
	r.state = to
	r.history = append(r.history, to)
}

// Estimate runs one upload through the pipeline: stage, slice, parse, quote.
// Every artifact created along the way is removed before it returns.
func (s *Service) Estimate(ctx context.Context, data io.Reader, declaredName string) (result *Estimate, err error) {
	model, err := s.stager.Stage(data, declaredName)
	if err != nil {
		if IsClientError(err) {
			return nil, err
		}
		slog.Error("failed to stage upload", "name", declaredName, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	run := &jobRun{model: model, start: time.Now()}
	run.transition(StateStaged)

	// The quota is released only after the job's files are gone, so it is
	// reserved before the cleanup defer is registered.
	reserved := s.quota.reserve(model.SizeBytes)
	if reserved {
		defer s.quota.release(model.SizeBytes)
	}

	scope := s.reaper.NewScope(model.Id)
	scope.Track(model.StoredPath)

	defer func() {
		cleanupErrs := scope.Close()
		if err == nil && result == nil {
			err = fmt.Errorf("%w: pipeline aborted", ErrInternal)
		}
		if err == nil {
			run.transition(StateCleaned)
			run.transition(StateDone)
		} else {
			run.transition(StateFailed)
		}
		s.complete(ctx, run, result, err, len(cleanupErrs))
		if err != nil {
			err = &JobError{JobId: model.Id, Err: err}
		}
	}()

	if !reserved {
		return nil, fmt.Errorf("%w: work dir quota exhausted", ErrServerBusy)
	}

	return s.process(ctx, run, scope)
}

func (s *Service) process(ctx context.Context, run *jobRun, scope *Scope) (*Estimate, error) {
	job, err := s.slicer.NewJob(run.model.Id, run.model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	scope.Track(job.WorkDir, job.ToolpathPath, job.CaptureLogPath)

	release, err := s.admit(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.slicer.Run(ctx, job)
	release()
	if err != nil {
		if Reason(err) == ReasonInternal {
			return nil, fmt.Errorf("%w: %w", ErrInternal, err)
		}
		return nil, err
	}
	run.exitCode = &res.ExitCode
	run.transition(StateSliced)

	// The capture file is scanned in full; RawCaptureText is truncated and
	// only kept for the diagnostics archive.
	seconds, found := scanFile(job.CaptureLogPath, -1)
	if !found {
		seconds, found = scanFile(job.ToolpathPath, toolpathHeadBytes)
	}
	run.transition(StateParsed)

	if !found {
		s.archive(ctx, job.Id, res.RawCaptureText)
		if !res.Succeeded {
			return nil, fmt.Errorf("%w: exit code %d", ErrSlicerCrashed, res.ExitCode)
		}
		return nil, ErrEstimateUnavailable
	}
	res.ElapsedPrintSeconds = &seconds

	quote := s.calculator.Compute(seconds)
	run.transition(StateQuoted)

	return &Estimate{JobId: job.Id, Quote: quote}, nil
}

// admit reserves a slicer slot. It waits at most the admission window.
func (s *Service) admit(ctx context.Context) (func(), error) {
	release := func() { s.slots.Release(1) }

	if s.admissionWait <= 0 {
		if !s.slots.TryAcquire(1) {
			return nil, ErrServerBusy
		}
		return release, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.admissionWait)
	defer cancel()

	if err := s.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: no slicer slot within %v", ErrServerBusy, s.admissionWait)
	}
	return release, nil
}

// scanFile looks for the time marker in the first limit bytes of path, or in
// the whole file when limit is negative.
func scanFile(path string, limit int64) (float64, bool) {
	file, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer file.Close()

	var r io.Reader = file
	if limit >= 0 {
		r = io.LimitReader(file, limit)
	}
	return ScanEstimate(r)
}

func (s *Service) archive(ctx context.Context, jobId uuid.UUID, capture string) {
	if s.diagnostics == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.diagnostics.ArchiveCapture(archiveCtx, jobId, []byte(capture)); err != nil {
		slog.Error("failed to archive slicer capture", "job_id", jobId, "error", err)
	}
}

func (s *Service) complete(ctx context.Context, run *jobRun, result *Estimate, err error, cleanupErrors int) {
	outcome := Outcome{
		JobId:         run.model.Id,
		OriginalName:  run.model.OriginalName,
		SizeBytes:     run.model.SizeBytes,
		State:         run.state,
		Reason:        Reason(err),
		ExitCode:      run.exitCode,
		History:       run.history,
		CleanupErrors: cleanupErrors,
		StartTime:     run.start,
		EndTime:       time.Now(),
	}
	if result != nil {
		quote := result.Quote
		outcome.Quote = &quote
	}

	switch {
	case err == nil:
		slog.Info("estimate completed", "job_id", outcome.JobId, "hours", result.Quote.PrintTimeHours, "price", result.Quote.PriceAmount, "duration", outcome.EndTime.Sub(outcome.StartTime))
	case errors.Is(err, ErrSlicerLaunchFailed) || errors.Is(err, ErrInternal):
		slog.Error("estimate failed", "job_id", outcome.JobId, "reason", outcome.Reason, "error", err)
	default:
		slog.Warn("estimate failed", "job_id", outcome.JobId, "reason", outcome.Reason, "error", err)
	}

	if s.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.recorder.Record(recordCtx, outcome); err != nil {
		slog.Error("failed to record estimate outcome", "job_id", outcome.JobId, "error", err)
	}
}

type diskQuota struct {
	limit int64
	used  atomic.Int64
}

func (q *diskQuota) reserve(n int64) bool {
	if q.limit <= 0 {
		return true
	}
	for {
		used := q.used.Load()
		if used+n > q.limit {
			return false
		}
		if q.used.CompareAndSwap(used, used+n) {
			return true
		}
	}
}

func (q *diskQuota) release(n int64) {
	if q.limit > 0 {
		q.used.Add(-n)
	}
}
