package estimate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	toolpathFileName = "toolpath.gcode"
	captureFileName  = "capture.log"

	defaultOutputFlag      = "--output"
	defaultMaxCaptureBytes = 4 * 1024 * 1024
	killWaitDelay          = 2 * time.Second
)

type SlicerConfig struct {
	// InstallDir is the engine's installation directory; it is the working
	// directory of every invocation. A relative Binary is resolved against it.
	InstallDir string
	Binary     string
	Profile    string
	OutputFlag string
	// Settings are per-setting overrides applied on top of Profile.
	Settings map[string]string

	WorkDir         string
	Timeout         time.Duration
	MaxCaptureBytes int64
}

type Invoker struct {
	cfg    SlicerConfig
	binary string
}

func NewInvoker(cfg SlicerConfig) (*Invoker, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("slicer binary is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("slicer timeout must be positive, got %v", cfg.Timeout)
	}
	if cfg.OutputFlag == "" {
		cfg.OutputFlag = defaultOutputFlag
	}
	if cfg.MaxCaptureBytes <= 0 {
		cfg.MaxCaptureBytes = defaultMaxCaptureBytes
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create work dir %s: %w", cfg.WorkDir, err)
	}

	return &Invoker{cfg: cfg, binary: resolveBinary(cfg.InstallDir, cfg.Binary)}, nil
}

// resolveBinary anchors a relative binary in the install dir. A bare name that
// does not exist there is left for PATH lookup.
func resolveBinary(installDir, binary string) string {
	if filepath.IsAbs(binary) || installDir == "" {
		return binary
	}
	candidate := filepath.Join(installDir, binary)
	if filepath.Base(binary) == binary {
		if _, err := os.Stat(candidate); err != nil {
			return binary
		}
	}
	if abs, err := filepath.Abs(candidate); err == nil {
		return abs
	}
	return candidate
}

func (inv *Invoker) Timeout() time.Duration {
	return inv.cfg.Timeout
}

func (inv *Invoker) WorkDir() string {
	return inv.cfg.WorkDir
}

// NewJob creates the job's private working directory. Every generated file of
// the job lives inside it.
func (inv *Invoker) NewJob(id uuid.UUID, input *UploadedModel) (*SliceJob, error) {
	workDir := filepath.Join(inv.cfg.WorkDir, id.String())
	if err := os.Mkdir(workDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create job dir: %w", err)
	}

	return &SliceJob{
		Id:             id,
		Input:          input,
		WorkDir:        workDir,
		ConfigProfile:  inv.cfg.Profile,
		ToolpathPath:   filepath.Join(workDir, toolpathFileName),
		CaptureLogPath: filepath.Join(workDir, captureFileName),
		Timeout:        inv.cfg.Timeout,
	}, nil
}

func (inv *Invoker) args(job *SliceJob) []string {
	args := []string{"slice"}
	if job.ConfigProfile != "" {
		args = append(args, "--config", job.ConfigProfile)
	}
	args = append(args, settingArgs(inv.cfg.Settings)...)
	return append(args, "--load", job.Input.StoredPath, inv.cfg.OutputFlag, job.ToolpathPath)
}

// Run executes the engine for job. A non-zero exit status is reported in the
// result, not as an error; errors are returned only for launch failure,
// timeout and cancellation.
func (inv *Invoker) Run(ctx context.Context, job *SliceJob) (*SliceResult, error) {
	capture, err := os.OpenFile(job.CaptureLogPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	defer capture.Close()

	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.binary, inv.args(job)...)
	cmd.Dir = inv.cfg.InstallDir
	cmd.Stdout = capture
	cmd.Stderr = capture
	configureProcess(cmd)
	cmd.WaitDelay = killWaitDelay

	job.StartedAt = time.Now()
	slog.Debug("starting slicing engine", "job_id", job.Id, "binary", inv.binary, "args", cmd.Args[1:])

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
	}
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		}
		slog.Error("failed to launch slicing engine", "job_id", job.Id, "binary", inv.binary, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSlicerLaunchFailed, err)
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(job.StartedAt)

	if waitErr != nil && runCtx.Err() != nil {
		if ctx.Err() != nil {
			slog.Warn("slicing engine killed after cancellation", "job_id", job.Id, "elapsed", elapsed)
			return nil, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		}
		slog.Warn("slicing engine killed after timeout", "job_id", job.Id, "timeout", job.Timeout)
		return nil, fmt.Errorf("%w: exceeded %v", ErrSlicerTimeout, job.Timeout)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("failed waiting for slicing engine: %w", waitErr)
		}
		exitCode = exitErr.ExitCode()
		slog.Warn("slicing engine exited with non-zero status", "job_id", job.Id, "exit_code", exitCode)
	}

	text, err := readCapture(job.CaptureLogPath, inv.cfg.MaxCaptureBytes)
	if err != nil {
		return nil, err
	}

	return &SliceResult{
		RawCaptureText: text,
		Succeeded:      exitCode == 0,
		ExitCode:       exitCode,
		Duration:       elapsed,
	}, nil
}

func readCapture(path string, limit int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open capture file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		return "", fmt.Errorf("failed to read capture file: %w", err)
	}
	return string(data), nil
}
