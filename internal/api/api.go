package api

import (
	"context"
	"errors"
	"estimate-backend/internal/database"
	"estimate-backend/internal/estimate"
	"estimate-backend/internal/storage"
	"estimate-backend/pkg/api"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// Multipart framing and other form fields on top of the model itself.
	multipartOverheadBytes = 1 << 20

	maxListLimit = 500

	EstimateIdHeader = "X-Estimate-Id"
)

type Estimator interface {
	Estimate(ctx context.Context, data io.Reader, declaredName string) (*estimate.Estimate, error)
}

type CaptureFetcher interface {
	FetchCapture(ctx context.Context, jobId uuid.UUID) ([]byte, error)
}

type BackendService struct {
	db        *gorm.DB
	estimator Estimator
	captures  CaptureFetcher

	maxRequestBytes int64
}

// NewBackendService wires the HTTP surface. captures may be nil when the
// diagnostics archive is disabled.
func NewBackendService(db *gorm.DB, estimator Estimator, captures CaptureFetcher, maxUploadBytes int64) *BackendService {
	return &BackendService{
		db:              db,
		estimator:       estimator,
		captures:        captures,
		maxRequestBytes: maxUploadBytes + multipartOverheadBytes,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/estimate", s.Estimate)
	r.Route("/estimates", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListEstimates))
		r.Get("/{estimate_id}", RestHandler(s.GetEstimate))
		r.Get("/{estimate_id}/capture", s.GetCapture)
	})
}

var publicMessages = []struct {
	err     error
	code    int
	message string
}{
	{estimate.ErrInvalidFormat, http.StatusBadRequest, "invalid model file: upload a supported 3D model"},
	{estimate.ErrPayloadTooLarge, http.StatusBadRequest, "model file exceeds the maximum upload size"},
	{estimate.ErrServerBusy, http.StatusServiceUnavailable, "estimation capacity exhausted, try again later"},
	{estimate.ErrSlicerTimeout, http.StatusInternalServerError, "slicing timed out, try again or simplify the model"},
	{estimate.ErrSlicerCrashed, http.StatusInternalServerError, "the slicing engine could not process the model"},
	{estimate.ErrEstimateUnavailable, http.StatusInternalServerError, "no print time estimate could be produced for the model"},
	{estimate.ErrCanceled, http.StatusInternalServerError, "estimation was canceled"},
}

// estimateError maps a pipeline error onto a fixed public message so that no
// filesystem or process detail reaches the client.
func estimateError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return CodedErrorf(http.StatusBadRequest, "model file exceeds the maximum upload size")
	}

	for _, m := range publicMessages {
		if errors.Is(err, m.err) {
			return CodedError(m.code, errors.New(m.message))
		}
	}

	slog.Error("estimate failed with internal error", "error", err)
	return CodedErrorf(http.StatusInternalServerError, "internal error while estimating the model")
}

// nextFilePart returns the first multipart part that carries a file.
func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (s *BackendService) Estimate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		WriteError(w, CodedErrorf(http.StatusBadRequest, "request must be a multipart/form-data upload"))
		return
	}

	part, err := nextFilePart(reader)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			WriteError(w, CodedErrorf(http.StatusBadRequest, "request does not contain a model file"))
		case errors.As(err, &maxBytesErr):
			WriteError(w, CodedErrorf(http.StatusBadRequest, "model file exceeds the maximum upload size"))
		default:
			WriteError(w, CodedErrorf(http.StatusBadRequest, "malformed multipart body"))
		}
		return
	}
	defer part.Close()

	result, err := s.estimator.Estimate(r.Context(), part, part.FileName())
	if err != nil {
		var jobErr *estimate.JobError
		if errors.As(err, &jobErr) {
			w.Header().Set(EstimateIdHeader, jobErr.JobId.String())
		}
		WriteError(w, estimateError(err))
		return
	}

	w.Header().Set(EstimateIdHeader, result.JobId.String())
	WriteJsonResponse(w, http.StatusOK, api.EstimateResponse{
		Time:  result.Quote.PrintTimeHours,
		Price: result.Quote.PriceAmount,
	})
}

func (s *BackendService) ListEstimates(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListEstimatesParams](r)
	if err != nil {
		return nil, err
	}

	switch params.Status {
	case "", database.JobDone, database.JobFailed:
	default:
		return nil, CodedErrorf(http.StatusBadRequest, "invalid status '%s': expected %s or %s", params.Status, database.JobDone, database.JobFailed)
	}
	if params.Limit < 0 || params.Offset < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit and offset must not be negative")
	}

	jobs, err := database.ListEstimateJobs(r.Context(), s.db, params.Status, min(params.Limit, maxListLimit), params.Offset)
	if err != nil {
		slog.Error("error listing estimates", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing estimates")
	}

	return convertEstimateJobs(jobs), nil
}

func (s *BackendService) GetEstimate(r *http.Request) (any, error) {
	jobId, err := URLParamUUID(r, "estimate_id")
	if err != nil {
		return nil, err
	}

	job, err := database.GetEstimateJob(r.Context(), s.db, jobId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "estimate not found")
		}
		slog.Error("error loading estimate", "job_id", jobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error loading estimate")
	}

	return convertEstimateJob(job), nil
}

func (s *BackendService) GetCapture(w http.ResponseWriter, r *http.Request) {
	jobId, err := URLParamUUID(r, "estimate_id")
	if err != nil {
		WriteError(w, err)
		return
	}

	if s.captures == nil {
		WriteError(w, CodedErrorf(http.StatusNotFound, "diagnostics archive is disabled"))
		return
	}

	capture, err := s.captures.FetchCapture(r.Context(), jobId)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			WriteError(w, CodedErrorf(http.StatusNotFound, "no capture archived for estimate"))
			return
		}
		slog.Error("error fetching capture", "job_id", jobId, "error", err)
		WriteError(w, CodedErrorf(http.StatusInternalServerError, "error fetching capture"))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(capture); err != nil {
		slog.Error("error writing capture", "job_id", jobId, "error", err)
	}
}
