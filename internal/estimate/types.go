package estimate

import (
	"time"

	"github.com/google/uuid"
)

type UploadedModel struct {
	Id           uuid.UUID
	OriginalName string
	StoredPath   string
	SizeBytes    int64
	Extension    string
}

type SliceJob struct {
	Id             uuid.UUID
	Input          *UploadedModel
	WorkDir        string
	ConfigProfile  string
	ToolpathPath   string
	CaptureLogPath string
	StartedAt      time.Time
	Timeout        time.Duration
}

type SliceResult struct {
	RawCaptureText      string
	ElapsedPrintSeconds *float64
	Succeeded           bool
	ExitCode            int
	Duration            time.Duration
}

type PriceQuote struct {
	PrintTimeHours float64
	PriceAmount    float64
}

type State string

const (
	StateStaged  State = "STAGED"
	StateSliced  State = "SLICED"
	StateParsed  State = "PARSED"
	StateQuoted  State = "QUOTED"
	StateCleaned State = "CLEANED"
	StateDone    State = "DONE"
	StateFailed  State = "FAILED"
)

// Estimate is the successful result of one pipeline run.
type Estimate struct {
	JobId uuid.UUID
	Quote PriceQuote
}

// Outcome describes a finished run, successful or not. It is handed to the
// Recorder once the job has reached a terminal state.
type Outcome struct {
	JobId         uuid.UUID
	OriginalName  string
	SizeBytes     int64
	State         State
	Reason        string
	ExitCode      *int
	Quote         *PriceQuote
	History       []State
	CleanupErrors int
	StartTime     time.Time
	EndTime       time.Time
}
