package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/voidshard/flashd/internal/cache"
	"github.com/voidshard/flashd/internal/utils"
	"github.com/voidshard/flashd/pkg/backup"
	"github.com/voidshard/flashd/pkg/database"
	ie "github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/structs"
	"github.com/voidshard/flashd/pkg/toolchain"
)

const (
	// jobs are read from the database in pages of this size
	pageSize = 500

	msgInterrupted = "interrupted: flashd stopped while this job was running"

	// prepared workspaces older than this were never committed & are tidied
	abandonedAfter = time.Hour
)

// JobStoreOptions are the optional collaborators of a JobStore
type JobStoreOptions struct {
	// Builder compiles jobs created with CompileImmediately. If nil such jobs are rejected.
	Builder toolchain.Builder

	// Backups, if set, takes a backup of each config a job is created for
	Backups *backup.Store

	Logger *zap.Logger
}

// JobStore is the durable record of jobs & batches. It owns each job's workspace.
//
// Every storage access happens under a single lock; builds are never run while
// holding it.
type JobStore struct {
	lock sync.Mutex

	db      database.Database
	ws      *cache.Cache
	builder toolchain.Builder
	backups *backup.Store
	log     *zap.Logger

	// ids of jobs with a build running in this process
	compiling map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

func NewJobStore(db database.Database, ws *cache.Cache, opts *JobStoreOptions) *JobStore {
	if opts == nil {
		opts = &JobStoreOptions{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobStore{
		db:        db,
		ws:        ws,
		builder:   opts.Builder,
		backups:   opts.Backups,
		log:       opts.Logger,
		compiling: map[string]bool{},
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Close cancels running builds, waits for them to finish & closes the database.
func (s *JobStore) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.db.Close()
}

// Create validates & records a new job, staging it's config into a fresh workspace.
//
// The workspace only goes live once the job is recorded, so a tidy pass by another
// process sharing the workspace root can't remove it in between.
//
// Jobs with CompileImmediately start building straight away; the returned channel
// yields the build's result once it has been recorded and is then closed. For other
// jobs the channel is nil.
func (s *JobStore) Create(req *structs.CreateJobRequest) (*structs.Job, <-chan *structs.CompileResult, error) {
	if req == nil {
		return nil, nil, fmt.Errorf("%w no job given", ie.ErrInvalidArg)
	}
	err := req.Validate()
	if err != nil {
		return nil, nil, fmt.Errorf("%w %v", ie.ErrValidation, err)
	}
	if req.ScheduledAt <= s.now().Unix() {
		return nil, nil, fmt.Errorf("%w got %d", ie.ErrScheduleInPast, req.ScheduledAt)
	}

	job := &structs.Job{
		JobSpec:       req.JobSpec,
		ID:            utils.NewRandomID(),
		Status:        structs.SCHEDULED,
		CompileStatus: structs.CompilePending,
	}
	if job.CompilePolicy == "" {
		job.CompilePolicy = structs.CompileAtDispatch
	}
	if job.Filename == "" {
		job.Filename = filepath.Base(job.SourcePath)
	}
	immediate := job.CompilePolicy == structs.CompileImmediately
	if immediate && s.builder == nil {
		return nil, nil, fmt.Errorf("%w no builder configured to compile immediately", ie.ErrInvalidArg)
	}

	s.lock.Lock()
	ws, err := s.ws.Prepare(job.SourcePath)
	if err != nil {
		s.lock.Unlock()
		return nil, nil, err
	}
	job.WorkspaceID = ws.ID
	job.StagedPath = ws.Source
	if immediate {
		job.CompileStatus = structs.CompileCompiling
		s.compiling[job.ID] = true
	}

	err = s.db.InsertJob(job)
	if err != nil {
		delete(s.compiling, job.ID)
		derr := s.ws.Discard(ws.ID)
		if derr != nil {
			s.log.Warn("failed to discard workspace", zap.String("workspace", ws.ID), zap.Error(derr))
		}
		s.lock.Unlock()
		return nil, nil, fmt.Errorf("%w inserting job: %v", ie.ErrStorage, err)
	}

	err = s.ws.Commit(ws.ID)
	if err != nil {
		delete(s.compiling, job.ID)
		derr := s.db.DeleteJob(job.ID, nil)
		if derr != nil {
			s.log.Error("failed to remove job without a workspace", zap.String("job_id", job.ID), zap.Error(derr))
		}
		derr = s.ws.Discard(ws.ID)
		if derr != nil {
			s.log.Warn("failed to discard workspace", zap.String("workspace", ws.ID), zap.Error(derr))
		}
		s.lock.Unlock()
		return nil, nil, err
	}
	s.lock.Unlock()

	if s.backups != nil {
		_, err = s.backups.Create(job.SourcePath)
		if err != nil {
			s.log.Warn("failed to back up config", zap.String("path", job.SourcePath), zap.Error(err))
		}
	}

	s.log.Info("created job",
		zap.String("job_id", job.ID),
		zap.String("workspace", job.WorkspaceID),
		zap.String("path", job.SourcePath),
		zap.Int64("scheduled_at", job.ScheduledAt),
	)

	if !immediate {
		return job, nil, nil
	}

	done := make(chan *structs.CompileResult, 1)
	building := *job
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		done <- s.compile(s.ctx, s.builder, &building)
	}()
	return job, done, nil
}

// Get returns a single job
func (s *JobStore) Get(id string) (*structs.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.get(id)
}

// Jobs returns jobs matching the query
func (s *JobStore) Jobs(q *structs.Query) ([]*structs.Job, error) {
	if q == nil {
		q = &structs.Query{}
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	jobs, err := s.db.Jobs(q)
	if err != nil {
		return nil, fmt.Errorf("%w %v", ie.ErrStorage, err)
	}
	return jobs, nil
}

// ListDue returns SCHEDULED jobs whose time is at or before now, oldest first with ties
// in creation order. Jobs still building are left out until their build finishes.
func (s *JobStore) ListDue(now int64) ([]*structs.Job, error) {
	if now <= 0 {
		return []*structs.Job{}, nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	jobs, err := s.allJobs(&structs.Query{Statuses: []structs.Status{structs.SCHEDULED}, DueBy: now})
	if err != nil {
		return nil, err
	}
	out := []*structs.Job{}
	for _, j := range jobs {
		if j.CompileStatus == structs.CompileCompiling {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// ListAll returns every job, or only those not yet finished.
func (s *JobStore) ListAll(includeTerminal bool) ([]*structs.Job, error) {
	q := &structs.Query{}
	if !includeTerminal {
		q.Statuses = []structs.Status{structs.SCHEDULED, structs.PROCESSING}
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	return s.allJobs(q)
}

// UpdateLifecycleStatus sets a job's status. Transitions are not checked here, that's
// left to the scheduler.
func (s *JobStore) UpdateLifecycleStatus(id string, status structs.Status) error {
	if structs.ToStatus(string(status)) == "" {
		return fmt.Errorf("%w unknown status %s", ie.ErrInvalidArg, status)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	n, err := s.db.SetJobStatus(id, status)
	return rowUpdated(id, n, err)
}

// UpdateCompileStatus records a build attempt. The artifact is only stored alongside
// a successful build.
func (s *JobStore) UpdateCompileStatus(id string, status structs.CompileStatus, log, artifactPath string) error {
	if structs.ToCompileStatus(string(status)) == "" {
		return fmt.Errorf("%w unknown compile status %s", ie.ErrInvalidArg, status)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	n, err := s.db.SetJobCompileStatus(id, status, log, artifactPath)
	return rowUpdated(id, n, err)
}

// Delete removes a job & it's workspace together.
//
// The workspace is moved aside inside the database transaction and only removed once
// the transaction has committed. If the delete fails it's put back.
func (s *JobStore) Delete(id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	job, err := s.get(id)
	if err != nil {
		return err
	}
	if job.Status == structs.PROCESSING {
		return fmt.Errorf("%w job %s is being dispatched", ie.ErrInvalidState, id)
	}

	err = s.db.DeleteJob(id, func() error {
		return s.ws.Bury(job.WorkspaceID)
	})
	if err != nil {
		uerr := s.ws.Unbury(job.WorkspaceID)
		if uerr != nil {
			s.log.Error("failed to restore workspace", zap.String("job_id", id), zap.String("workspace", job.WorkspaceID), zap.Error(uerr))
		}
		if errors.Is(err, ie.ErrNotFound) || errors.Is(err, ie.ErrStorage) {
			return err
		}
		return fmt.Errorf("%w deleting job %s: %v", ie.ErrStorage, id, err)
	}

	err = s.ws.Discard(job.WorkspaceID)
	if err != nil {
		// the job is gone; the tidy pass will get the workspace later
		s.log.Warn("failed to discard workspace", zap.String("job_id", id), zap.String("workspace", job.WorkspaceID), zap.Error(err))
	}

	s.log.Info("deleted job", zap.String("job_id", id), zap.String("workspace", job.WorkspaceID))
	return nil
}

// Reschedule sets a job SCHEDULED again at a new time. This is the only way a finished
// job runs again.
//
// Jobs that build at dispatch (or have no usable artifact) have their build state reset.
func (s *JobStore) Reschedule(id string, at int64) (*structs.Job, error) {
	if at <= s.now().Unix() {
		return nil, fmt.Errorf("%w got %d", ie.ErrScheduleInPast, at)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	job, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if job.Status == structs.PROCESSING || s.compiling[id] {
		return nil, fmt.Errorf("%w job %s is busy", ie.ErrInvalidState, id)
	}

	n, err := s.db.SetJobSchedule(id, at)
	err = rowUpdated(id, n, err)
	if err != nil {
		return nil, err
	}

	if job.CompilePolicy == structs.CompileAtDispatch || !job.HasArtifact() {
		n, err = s.db.SetJobCompileStatus(id, structs.CompilePending, "", "")
		err = rowUpdated(id, n, err)
		if err != nil {
			return nil, err
		}
	}

	s.log.Info("rescheduled job", zap.String("job_id", id), zap.Int64("scheduled_at", at))
	return s.get(id)
}

// CreateBatch records a new (empty) batch
func (s *JobStore) CreateBatch(req *structs.CreateBatchRequest) (*structs.Batch, error) {
	if req == nil {
		return nil, fmt.Errorf("%w no batch given", ie.ErrInvalidArg)
	}
	err := req.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w %v", ie.ErrValidation, err)
	}

	b := &structs.Batch{
		BatchSpec: req.BatchSpec,
		ID:        utils.NewRandomID(),
		CreatedAt: s.now().Unix(),
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	err = s.db.InsertBatch(b)
	if err != nil {
		return nil, fmt.Errorf("%w inserting batch: %v", ie.ErrStorage, err)
	}
	return b, nil
}

// AddToBatch adds jobs to a batch and returns how many weren't already in it.
// Adding a job already in the batch is a no-op.
func (s *JobStore) AddToBatch(batchID string, jobIDs ...string) (int64, error) {
	if !utils.IsValidID(batchID) {
		return 0, fmt.Errorf("%w batch id %s", ie.ErrInvalidArg, batchID)
	}
	ids := []string{}
	seen := map[string]bool{}
	for _, id := range jobIDs {
		if !utils.IsValidID(id) {
			return 0, fmt.Errorf("%w job id %s", ie.ErrInvalidArg, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w no job ids given", ie.ErrInvalidArg)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	batches, err := s.db.Batches(&structs.Query{BatchIDs: []string{batchID}, Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("%w %v", ie.ErrStorage, err)
	}
	if len(batches) == 0 {
		return 0, fmt.Errorf("%w batch %s", ie.ErrNotFound, batchID)
	}

	jobs, err := s.allJobs(&structs.Query{JobIDs: ids})
	if err != nil {
		return 0, err
	}
	if len(jobs) != len(ids) {
		for _, j := range jobs {
			delete(seen, j.ID)
		}
		missing := []string{}
		for _, id := range ids {
			if seen[id] {
				missing = append(missing, id)
			}
		}
		return 0, fmt.Errorf("%w jobs %s", ie.ErrNotFound, strings.Join(missing, ", "))
	}

	added, err := s.db.InsertBatchJobs(batchID, ids)
	if err != nil {
		return 0, fmt.Errorf("%w %v", ie.ErrStorage, err)
	}
	return added, nil
}

// Batches returns batches matching the query
func (s *JobStore) Batches(q *structs.Query) ([]*structs.Batch, error) {
	if q == nil {
		q = &structs.Query{}
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	batches, err := s.db.Batches(q)
	if err != nil {
		return nil, fmt.Errorf("%w %v", ie.ErrStorage, err)
	}
	return batches, nil
}

// BatchJobs returns every job in a batch
func (s *JobStore) BatchJobs(batchID string) ([]*structs.Job, error) {
	if !utils.IsValidID(batchID) {
		return nil, fmt.Errorf("%w batch id %s", ie.ErrInvalidArg, batchID)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.allJobs(&structs.Query{BatchIDs: []string{batchID}})
}

// RecoverInterrupted fails jobs left PROCESSING (or building) by a previous run, so
// nothing stays in flight forever. It returns the number of jobs changed.
func (s *JobStore) RecoverInterrupted() (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	processing, err := s.allJobs(&structs.Query{Statuses: []structs.Status{structs.PROCESSING}})
	if err != nil {
		return 0, err
	}
	building, err := s.allJobs(&structs.Query{CompileStatuses: []structs.CompileStatus{structs.CompileCompiling}})
	if err != nil {
		return 0, err
	}

	count := 0
	var errs error
	done := map[string]bool{}

	for _, j := range processing {
		done[j.ID] = true
		_, err := s.db.SetJobStatus(j.ID, structs.FAILED)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if j.CompileStatus == structs.CompileCompiling {
			_, err = s.db.SetJobCompileStatus(j.ID, structs.CompileFailed, msgInterrupted, "")
		} else {
			_, err = s.db.SetJobCompileStatus(j.ID, j.CompileStatus, appendLog(j.CompileLog, msgInterrupted), j.ArtifactPath)
		}
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		count++
		s.log.Warn("failed interrupted job", zap.String("job_id", j.ID))
	}

	for _, j := range building {
		if done[j.ID] || s.compiling[j.ID] {
			continue
		}
		_, err := s.db.SetJobCompileStatus(j.ID, structs.CompileFailed, msgInterrupted, "")
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		count++
		s.log.Warn("failed interrupted build", zap.String("job_id", j.ID))
	}

	if errs != nil {
		return count, fmt.Errorf("%w %v", ie.ErrStorage, errs)
	}
	return count, nil
}

// TidyWorkspaces removes workspaces that no job refers to, including any left moved
// aside by a failed delete or prepared & never committed. It returns the number removed.
//
// Workspaces still being prepared (possibly by another process) are left alone.
func (s *JobStore) TidyWorkspaces() (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	live, buried, err := s.ws.List()
	if err != nil {
		return 0, err
	}
	abandoned, err := s.ws.Abandoned(abandonedAfter)
	if err != nil {
		return 0, err
	}
	jobs, err := s.allJobs(&structs.Query{})
	if err != nil {
		return 0, err
	}
	known := map[string]bool{}
	for _, j := range jobs {
		known[j.WorkspaceID] = true
	}

	count := 0
	var errs error
	for _, id := range abandoned {
		err = s.ws.Discard(id)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		count++
		s.log.Debug("tidied abandoned workspace", zap.String("workspace", id))
	}
	for _, id := range append(buried, live...) {
		if known[id] && s.ws.Exists(id) {
			continue
		}
		if known[id] {
			// buried, but the job is still here; a delete was rolled back
			err = s.ws.Unbury(id)
		} else {
			err = s.ws.Discard(id)
		}
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		count++
		s.log.Debug("tidied workspace", zap.String("workspace", id))
	}

	WorkspacesTidiedCount.Add(float64(count))
	return count, errs
}

// compile builds a job's staged config, keeps the artifact in the job's workspace and
// records the outcome.
func (s *JobStore) compile(ctx context.Context, builder toolchain.Builder, job *structs.Job) *structs.CompileResult {
	result := &structs.CompileResult{JobID: job.ID, Status: structs.CompileFailed}

	s.lock.Lock()
	s.compiling[job.ID] = true
	n, err := s.db.SetJobCompileStatus(job.ID, structs.CompileCompiling, "", "")
	s.lock.Unlock()

	defer func() {
		s.lock.Lock()
		delete(s.compiling, job.ID)
		s.lock.Unlock()
	}()

	err = rowUpdated(job.ID, n, err)
	if err != nil {
		result.Err = err
		return result
	}

	built, err := builder.Build(ctx, job.StagedPath, job.BuilderID)
	if built != nil {
		result.Log = built.Log
	}
	switch {
	case err != nil:
		result.Log = appendLog(result.Log, err.Error())
	case built == nil || !built.Success || built.ArtifactPath == "":
		result.Log = appendLog(result.Log, "build produced no firmware")
	default:
		cached, err := s.storeArtifact(job.WorkspaceID, built.ArtifactPath)
		if err != nil {
			result.Log = appendLog(result.Log, err.Error())
			break
		}
		result.Status = structs.CompileSuccess
		result.ArtifactPath = cached
	}

	BuildsCount.WithLabelValues(string(result.Status)).Inc()
	s.log.Info("build finished", zap.String("job_id", job.ID), zap.String("status", string(result.Status)))

	err = s.UpdateCompileStatus(job.ID, result.Status, result.Log, result.ArtifactPath)
	if err != nil {
		result.Err = err
	}
	return result
}

// storeArtifact copies a build's output into a live workspace
func (s *JobStore) storeArtifact(workspaceID, builtPath string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.ws.Exists(workspaceID) {
		return "", fmt.Errorf("%w workspace %s", ie.ErrNotFound, workspaceID)
	}
	return s.ws.StoreCompiled(workspaceID, builtPath)
}

// get returns a job, the caller must hold the lock
func (s *JobStore) get(id string) (*structs.Job, error) {
	if !utils.IsValidID(id) {
		return nil, fmt.Errorf("%w job id %s", ie.ErrInvalidArg, id)
	}
	jobs, err := s.db.Jobs(&structs.Query{JobIDs: []string{id}, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("%w %v", ie.ErrStorage, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w job %s", ie.ErrNotFound, id)
	}
	return jobs[0], nil
}

// allJobs pages through every job matching q, the caller must hold the lock
func (s *JobStore) allJobs(q *structs.Query) ([]*structs.Job, error) {
	q.Limit = pageSize
	q.Offset = 0

	out := []*structs.Job{}
	for {
		page, err := s.db.Jobs(q)
		if err != nil {
			return nil, fmt.Errorf("%w %v", ie.ErrStorage, err)
		}
		out = append(out, page...)
		if len(page) < q.Limit {
			return out, nil
		}
		q.Offset += len(page)
	}
}

func rowUpdated(id string, n int64, err error) error {
	if err != nil {
		return fmt.Errorf("%w %v", ie.ErrStorage, err)
	}
	if n == 0 {
		return fmt.Errorf("%w job %s", ie.ErrNotFound, id)
	}
	return nil
}

func appendLog(log, line string) string {
	if log == "" {
		return line
	}
	return strings.TrimRight(log, "\n") + "\n" + line
}
