package structs

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	maxNameLength   = 500
	maxTargetLength = 500
	maxPathLength   = 4096
)

// CreateJobRequest is an outline to create a new job.
type CreateJobRequest struct {
	JobSpec `json:",inline"`
}

// Validate checks the shape of the request. Checks that need the outside world (is the
// time in the future, does the source exist) are done by the job store.
func (r *CreateJobRequest) Validate() error {
	s := &r.JobSpec
	return validation.ValidateStruct(s,
		validation.Field(&s.SourcePath, validation.Required, validation.Length(1, maxPathLength)),
		validation.Field(&s.Filename, validation.Length(0, maxNameLength)),
		validation.Field(&s.Target, validation.Required, validation.Length(1, maxTargetLength)),
		validation.Field(&s.Transport, validation.Required, validation.In(TransportWired, TransportNetwork)),
		validation.Field(&s.ScheduledAt, validation.Required),
		validation.Field(&s.CompilePolicy, validation.In(CompileAtDispatch, CompileImmediately)),
		validation.Field(&s.BuilderID, validation.Length(0, maxNameLength)),
	)
}

// CreateBatchRequest is an outline to create a new batch.
type CreateBatchRequest struct {
	BatchSpec `json:",inline"`
}

func (r *CreateBatchRequest) Validate() error {
	s := &r.BatchSpec
	return validation.ValidateStruct(s,
		validation.Field(&s.Name, validation.Required, validation.Length(1, maxNameLength)),
	)
}

// AddToBatchRequest adds jobs to an existing batch.
type AddToBatchRequest struct {
	JobIDs []string `json:"job_ids"`
}

// RescheduleRequest moves a job back to SCHEDULED at a new time.
type RescheduleRequest struct {
	ScheduledAt int64 `json:"scheduled_at"`
}
