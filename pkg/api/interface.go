package api

import (
	"github.com/voidshard/flashd/pkg/structs"
)

// API represents the functions flashd servers should expose.
type API interface {
	// Implemented in flashd/internal/core.JobStore

	CreateJob(req *structs.CreateJobRequest) (*structs.Job, error)
	Jobs(q *structs.Query) ([]*structs.Job, error)
	Job(id string) (*structs.Job, error)
	DeleteJob(id string) error
	Reschedule(id string, req *structs.RescheduleRequest) (*structs.Job, error)

	CreateBatch(req *structs.CreateBatchRequest) (*structs.Batch, error)
	Batches(q *structs.Query) ([]*structs.Batch, error)
	AddToBatch(batchID string, req *structs.AddToBatchRequest) (int64, error)
	BatchJobs(batchID string) ([]*structs.Job, error)
}

type Server interface {
	ServeForever(api API) error
	Close() error
}
