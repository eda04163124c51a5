package database

import (
	"github.com/voidshard/flashd/pkg/structs"
)

// Database is the persistent store of jobs & batches.
//
// Implementations are not required to enforce the job state machine; callers are.
type Database interface {
	// InsertJob inserts a job, setting it's Seq (insertion order).
	InsertJob(j *structs.Job) error
	InsertBatch(b *structs.Batch) error
	InsertBatchJobs(batchID string, jobIDs []string) (int64, error)

	// SetJobStatus sets the lifecycle status of a job
	SetJobStatus(id string, status structs.Status) (int64, error)

	// SetJobCompileStatus records a build attempt. If status is not CompileSuccess the
	// artifact path is cleared, whatever is passed in.
	SetJobCompileStatus(id string, status structs.CompileStatus, log, artifactPath string) (int64, error)

	// SetJobSchedule sets a job SCHEDULED at the given time
	SetJobSchedule(id string, at int64) (int64, error)

	// DeleteJob removes a job (and it's batch memberships) in a single transaction.
	// If given, beforeCommit is called inside the transaction; if it errors the
	// transaction is rolled back.
	DeleteJob(id string, beforeCommit func() error) error

	// Jobs returns jobs matching the query, ordered by scheduled time then insertion order.
	Jobs(q *structs.Query) ([]*structs.Job, error)

	// Batches returns batches matching the query (BatchIDs filter only)
	Batches(q *structs.Query) ([]*structs.Batch, error)

	Close() error
}
