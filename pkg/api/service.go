package api

import (
	"fmt"

	"github.com/voidshard/flashd/internal/core"
	"github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/structs"
)

type service struct {
	store *core.JobStore
}

// NewAPI exposes a JobStore as an API.
//
// Jobs created with CompileImmediately build in the background; callers poll the job
// to see the outcome.
func NewAPI(store *core.JobStore) API {
	return &service{store: store}
}

func (s *service) CreateJob(req *structs.CreateJobRequest) (*structs.Job, error) {
	job, _, err := s.store.Create(req)
	return job, err
}

func (s *service) Jobs(q *structs.Query) ([]*structs.Job, error) {
	return s.store.Jobs(q)
}

func (s *service) Job(id string) (*structs.Job, error) {
	return s.store.Get(id)
}

func (s *service) DeleteJob(id string) error {
	return s.store.Delete(id)
}

func (s *service) Reschedule(id string, req *structs.RescheduleRequest) (*structs.Job, error) {
	if req == nil {
		return nil, fmt.Errorf("%w no schedule given", errors.ErrInvalidArg)
	}
	return s.store.Reschedule(id, req.ScheduledAt)
}

func (s *service) CreateBatch(req *structs.CreateBatchRequest) (*structs.Batch, error) {
	return s.store.CreateBatch(req)
}

func (s *service) Batches(q *structs.Query) ([]*structs.Batch, error) {
	return s.store.Batches(q)
}

func (s *service) AddToBatch(batchID string, req *structs.AddToBatchRequest) (int64, error) {
	if req == nil {
		return 0, fmt.Errorf("%w no jobs given", errors.ErrInvalidArg)
	}
	return s.store.AddToBatch(batchID, req.JobIDs...)
}

func (s *service) BatchJobs(batchID string) ([]*structs.Job, error) {
	return s.store.BatchJobs(batchID)
}
