package api

import (
	"estimate-backend/internal/database"
	"estimate-backend/pkg/api"
	"strings"
)

func convertEvent(e database.OutboundEvent) api.OutboundEvent {
	event := api.OutboundEvent{
		Id:           e.Id,
		Type:         e.Type,
		Status:       e.Status,
		Attempts:     e.Attempts,
		LastError:    e.LastError.String,
		CreationTime: e.CreationTime,
	}
	if e.DeliveryTime.Valid {
		event.DeliveryTime = &e.DeliveryTime.Time
	}
	return event
}

func convertEstimateJob(j database.EstimateJob) api.EstimateJob {
	job := api.EstimateJob{
		Id:            j.Id,
		OriginalName:  j.OriginalName,
		SizeBytes:     j.SizeBytes,
		Status:        j.Status,
		Reason:        j.Reason.String,
		CleanupErrors: j.CleanupErrors,
		StartTime:     j.StartTime,
		EndTime:       j.EndTime,
	}
	if j.History != "" {
		job.History = strings.Split(j.History, ",")
	}
	if j.ExitCode.Valid {
		code := int(j.ExitCode.Int64)
		job.ExitCode = &code
	}
	if j.PrintTimeHours.Valid {
		job.PrintTimeHours = &j.PrintTimeHours.Float64
	}
	if j.PriceAmount.Valid {
		job.PriceAmount = &j.PriceAmount.Float64
	}
	for _, e := range j.Events {
		job.Events = append(job.Events, convertEvent(e))
	}
	return job
}

func convertEstimateJobs(js []database.EstimateJob) []api.EstimateJob {
	jobs := make([]api.EstimateJob, 0, len(js))
	for _, j := range js {
		jobs = append(jobs, convertEstimateJob(j))
	}
	return jobs
}
