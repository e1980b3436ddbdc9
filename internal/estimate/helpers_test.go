package estimate_test

import (
	"context"
	"estimate-backend/internal/estimate"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const engineArgs = `load=""; out=""; config=""; settings=""
while [ $# -gt 0 ]; do
  case "$1" in
    --load) load="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    --config) config="$2"; shift 2 ;;
    -s) settings="$settings $2"; shift 2 ;;
    *) shift ;;
  esac
done
`

const (
	engineOK           = `echo "slicing $load"; echo ";TIME:5400"; echo "G1 X0 Y0" > "$out"`
	engineEcho         = `cat "$load"; echo; echo ";TIME:3600"; cp "$load" "$out"`
	engineNoMarker     = `echo "slicing finished"; echo "G1 X0" > "$out"`
	engineCrash        = `echo "fatal: mesh is not manifold"; exit 3`
	engineLateCrash    = `echo ";TIME:1800"; echo "G1" > "$out"; exit 1`
	engineToolpathOnly = `echo "no summary"; printf ';FLAVOR:Marlin\n;TIME:7200\nG1 X1\n' > "$out"`
	engineHang         = `echo "started" > "$out"; echo "layer 1"; exec sleep 30`
)

// writeEngine creates an executable fake slicing engine running body after
// the standard argument parsing.
func writeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake slicing engine requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-slicer")
	script := "#!/bin/sh\n" + engineArgs + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newInvoker(t *testing.T, engine string, timeout time.Duration) *estimate.Invoker {
	t.Helper()
	invoker, err := estimate.NewInvoker(estimate.SlicerConfig{
		InstallDir: t.TempDir(),
		Binary:     engine,
		Profile:    "printer.def.json",
		WorkDir:    filepath.Join(t.TempDir(), "jobs"),
		Timeout:    timeout,
	})
	require.NoError(t, err)
	return invoker
}

type spySlicer struct {
	inner *estimate.Invoker

	runs atomic.Int32

	mu   sync.Mutex
	jobs []*estimate.SliceJob
}

func (s *spySlicer) NewJob(id uuid.UUID, input *estimate.UploadedModel) (*estimate.SliceJob, error) {
	job, err := s.inner.NewJob(id, input)
	if err == nil {
		s.mu.Lock()
		s.jobs = append(s.jobs, job)
		s.mu.Unlock()
	}
	return job, err
}

func (s *spySlicer) Run(ctx context.Context, job *estimate.SliceJob) (*estimate.SliceResult, error) {
	s.runs.Add(1)
	return s.inner.Run(ctx, job)
}

func (s *spySlicer) Jobs() []*estimate.SliceJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*estimate.SliceJob(nil), s.jobs...)
}

type memRecorder struct {
	mu       sync.Mutex
	outcomes []estimate.Outcome

	// onRecord, when set, runs after the outcome is stored.
	onRecord func(outcome estimate.Outcome)
}

func (r *memRecorder) Record(ctx context.Context, outcome estimate.Outcome) error {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	hook := r.onRecord
	r.mu.Unlock()

	if hook != nil {
		hook(outcome)
	}
	return nil
}

func (r *memRecorder) Outcomes() []estimate.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]estimate.Outcome(nil), r.outcomes...)
}

type memArchive struct {
	mu       sync.Mutex
	captures map[uuid.UUID]string
}

func (a *memArchive) ArchiveCapture(ctx context.Context, jobId uuid.UUID, capture []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.captures == nil {
		a.captures = make(map[uuid.UUID]string)
	}
	a.captures[jobId] = string(capture)
	return nil
}

type testEnv struct {
	uploadDir string
	workDir   string
	slicer    *spySlicer
	recorder  *memRecorder
	archive   *memArchive
	service   *estimate.Service
}

func newTestEnv(t *testing.T, engineBody string, timeout time.Duration, configure ...func(*estimate.Options)) *testEnv {
	t.Helper()

	env := &testEnv{
		uploadDir: filepath.Join(t.TempDir(), "uploads"),
		recorder:  &memRecorder{},
		archive:   &memArchive{},
	}

	stager, err := estimate.NewStager(env.uploadDir, ".stl", 1024*1024)
	require.NoError(t, err)

	invoker := newInvoker(t, writeEngine(t, engineBody), timeout)
	env.workDir = invoker.WorkDir()
	env.slicer = &spySlicer{inner: invoker}

	opts := estimate.Options{
		Stager:        stager,
		Slicer:        env.slicer,
		Calculator:    estimate.Calculator{RatePerHour: 5},
		MaxConcurrent: 4,
		AdmissionWait: 5 * time.Second,
		Recorder:      env.recorder,
		Diagnostics:   env.archive,
	}
	for _, c := range configure {
		c(&opts)
	}

	env.service, err = estimate.NewService(opts)
	require.NoError(t, err)
	return env
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Empty(t, names, "expected %s to be empty", dir)
}
