package core

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/voidshard/flashd/internal/cache"
	"github.com/voidshard/flashd/internal/mocks/pkg/toolchain_mock"
	"github.com/voidshard/flashd/internal/utils"
	"github.com/voidshard/flashd/pkg/database"
	"github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/structs"
	"github.com/voidshard/flashd/pkg/toolchain"
)

const (
	testWorkspaceRoot = "/ws"
	testConfig        = "/configs/kitchen.yaml"

	// the store's clock is pinned here, jobs are scheduled after it and the
	// scheduler's clock is after that
	testCreatedAt   = 1000
	testDueAt       = 2000
	testSchedulerAt = 3000
)

type testEnv struct {
	fs      afero.Fs
	dbPath  string
	cache   *cache.Cache
	store   *JobStore
	builder *toolchain_mock.MockBuilder
}

func newTestEnv(t *testing.T) *testEnv {
	ctrl := gomock.NewController(t)
	env := &testEnv{
		fs:      afero.NewMemMapFs(),
		dbPath:  filepath.Join(t.TempDir(), "flashd.db"),
		builder: toolchain_mock.NewMockBuilder(ctrl),
	}
	require.NoError(t, afero.WriteFile(env.fs, testConfig, []byte("esphome:\n  name: kitchen\n"), 0644))

	c, err := cache.New(env.fs, &cache.Options{Root: testWorkspaceRoot}, nil, nil)
	require.NoError(t, err)
	env.cache = c

	env.store = env.open(t, nil)
	return env
}

// open returns a new store over the env's database file
func (e *testEnv) open(t *testing.T, wrap func(database.Database) database.Database) *JobStore {
	db, err := database.New(&database.Options{URL: "sqlite://" + e.dbPath})
	require.NoError(t, err)

	var d database.Database = db
	if wrap != nil {
		d = wrap(db)
	}
	s := NewJobStore(d, e.cache, &JobStoreOptions{Builder: e.builder})
	s.now = func() time.Time { return time.Unix(testCreatedAt, 0) }
	t.Cleanup(func() { s.Close() })
	return s
}

func newCreateRequest(at int64) *structs.CreateJobRequest {
	return &structs.CreateJobRequest{JobSpec: structs.JobSpec{
		SourcePath:  testConfig,
		Target:      "kitchen.local",
		Transport:   structs.TransportNetwork,
		ScheduledAt: at,
	}}
}

func (e *testEnv) create(t *testing.T, at int64) *structs.Job {
	job, done, err := e.store.Create(newCreateRequest(at))
	require.NoError(t, err)
	require.Nil(t, done)
	return job
}

// buildOK returns a Build func that writes firmware next to the config it's given
func buildOK(fs afero.Fs) func(context.Context, string, string) (*toolchain.BuildResult, error) {
	return func(ctx context.Context, src, builderID string) (*toolchain.BuildResult, error) {
		out := filepath.Join(filepath.Dir(src), ".esphome", "firmware.bin")
		err := afero.WriteFile(fs, out, []byte("firmware"), 0644)
		return &toolchain.BuildResult{ArtifactPath: out, Success: true, Log: "INFO Successfully compiled program."}, err
	}
}

// failingDelete runs the delete hook then fails, as if the commit failed
type failingDelete struct {
	database.Database
}

func (f *failingDelete) DeleteJob(id string, beforeCommit func() error) error {
	if beforeCommit != nil {
		err := beforeCommit()
		if err != nil {
			return err
		}
	}
	return fmt.Errorf("disk I/O error")
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	env.store.builder = nil

	cases := []struct {
		Name      string
		Mutate    func(r *structs.CreateJobRequest)
		ExpectErr error
	}{
		{
			Name:      "InThePast",
			Mutate:    func(r *structs.CreateJobRequest) { r.ScheduledAt = testCreatedAt - 1 },
			ExpectErr: errors.ErrScheduleInPast,
		},
		{
			Name:      "Now",
			Mutate:    func(r *structs.CreateJobRequest) { r.ScheduledAt = testCreatedAt },
			ExpectErr: errors.ErrValidation,
		},
		{
			Name:      "MissingSource",
			Mutate:    func(r *structs.CreateJobRequest) { r.SourcePath = "/configs/nope.yaml" },
			ExpectErr: errors.ErrSourceNotFound,
		},
		{
			Name:      "SourceIsDir",
			Mutate:    func(r *structs.CreateJobRequest) { r.SourcePath = "/configs" },
			ExpectErr: errors.ErrValidation,
		},
		{
			Name:      "NoTarget",
			Mutate:    func(r *structs.CreateJobRequest) { r.Target = "" },
			ExpectErr: errors.ErrValidation,
		},
		{
			Name:      "BadTransport",
			Mutate:    func(r *structs.CreateJobRequest) { r.Transport = "PIGEON" },
			ExpectErr: errors.ErrValidation,
		},
		{
			Name:      "ImmediateWithoutBuilder",
			Mutate:    func(r *structs.CreateJobRequest) { r.CompilePolicy = structs.CompileImmediately },
			ExpectErr: errors.ErrInvalidArg,
		},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			req := newCreateRequest(testDueAt)
			c.Mutate(req)

			job, done, err := env.store.Create(req)

			assert.ErrorIs(t, err, c.ExpectErr)
			assert.Nil(t, job)
			assert.Nil(t, done)
		})
	}

	all, err := env.store.ListAll(true)
	require.NoError(t, err)
	assert.Equal(t, 0, len(all))

	live, _, err := env.cache.List()
	require.NoError(t, err)
	assert.Equal(t, 0, len(live))
}

func TestCreate(t *testing.T) {
	env := newTestEnv(t)

	job := env.create(t, testDueAt)

	assert.True(t, utils.IsValidID(job.ID))
	assert.Equal(t, structs.SCHEDULED, job.Status)
	assert.Equal(t, structs.CompilePending, job.CompileStatus)
	assert.Equal(t, structs.CompileAtDispatch, job.CompilePolicy)
	assert.Equal(t, "kitchen.yaml", job.Filename)
	assert.True(t, env.cache.Exists(job.WorkspaceID))
	assert.Equal(t, filepath.Join(testWorkspaceRoot, job.WorkspaceID, "kitchen.yaml"), job.StagedPath)

	staged, err := afero.ReadFile(env.fs, job.StagedPath)
	require.NoError(t, err)
	assert.Equal(t, "esphome:\n  name: kitchen\n", string(staged))

	got, err := env.store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.WorkspaceID, got.WorkspaceID)
	assert.Equal(t, int64(testDueAt), got.ScheduledAt)
}

func TestCreateCompileImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.builder.EXPECT().Build(gomock.Any(), gomock.Any(), "").DoAndReturn(buildOK(env.fs)).Times(1)

	req := newCreateRequest(testDueAt)
	req.CompilePolicy = structs.CompileImmediately

	job, done, err := env.store.Create(req)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, structs.SCHEDULED, job.Status)

	result := <-done
	require.NotNil(t, result)
	assert.NoError(t, result.Err)
	assert.Equal(t, structs.CompileSuccess, result.Status)
	assert.Equal(t, filepath.Join(testWorkspaceRoot, job.WorkspaceID, "build", "firmware.bin"), result.ArtifactPath)

	_, open := <-done
	assert.False(t, open)

	got, err := env.store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, structs.SCHEDULED, got.Status)
	assert.Equal(t, structs.CompileSuccess, got.CompileStatus)
	assert.True(t, got.HasArtifact())
	assert.Equal(t, result.ArtifactPath, got.ArtifactPath)
	assert.Contains(t, got.CompileLog, "Successfully compiled")
}

func TestCreateCompileImmediatelyFails(t *testing.T) {
	env := newTestEnv(t)
	env.builder.EXPECT().Build(gomock.Any(), gomock.Any(), "").Return(
		&toolchain.BuildResult{Log: "ERROR Unable to find component"},
		fmt.Errorf("%w exit status 2", errors.ErrBuild),
	)

	req := newCreateRequest(testDueAt)
	req.CompilePolicy = structs.CompileImmediately

	job, done, err := env.store.Create(req)
	require.NoError(t, err)

	result := <-done
	assert.NoError(t, result.Err)
	assert.Equal(t, structs.CompileFailed, result.Status)
	assert.Equal(t, "", result.ArtifactPath)

	got, err := env.store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, structs.SCHEDULED, got.Status)
	assert.Equal(t, structs.CompileFailed, got.CompileStatus)
	assert.False(t, got.HasArtifact())
	assert.Contains(t, got.CompileLog, "Unable to find component")
	assert.Contains(t, got.CompileLog, "exit status 2")
}

func TestListDue(t *testing.T) {
	env := newTestEnv(t)

	a := env.create(t, testDueAt)
	b := env.create(t, testDueAt-500)
	c := env.create(t, testDueAt)
	env.create(t, testSchedulerAt+1000)

	ids := func(in []*structs.Job) []string {
		out := []string{}
		for _, j := range in {
			out = append(out, j.ID)
		}
		return out
	}

	due, err := env.store.ListDue(testSchedulerAt)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, ids(due))

	require.NoError(t, env.store.UpdateCompileStatus(c.ID, structs.CompileCompiling, "", ""))
	due, err = env.store.ListDue(testSchedulerAt)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, ids(due))

	require.NoError(t, env.store.UpdateLifecycleStatus(a.ID, structs.COMPLETED))
	due, err = env.store.ListDue(testSchedulerAt)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(due))

	due, err = env.store.ListDue(testDueAt - 501)
	require.NoError(t, err)
	assert.Equal(t, 0, len(due))

	due, err = env.store.ListDue(0)
	require.NoError(t, err)
	assert.Equal(t, 0, len(due))
}

func TestListAll(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, testDueAt)
	b := env.create(t, testDueAt)
	c := env.create(t, testDueAt)
	require.NoError(t, env.store.UpdateLifecycleStatus(a.ID, structs.FAILED))
	require.NoError(t, env.store.UpdateLifecycleStatus(b.ID, structs.PROCESSING))

	cases := []struct {
		Name            string
		IncludeTerminal bool
		Expect          []string
	}{
		{"Everything", true, []string{a.ID, b.ID, c.ID}},
		{"Unfinished", false, []string{b.ID, c.ID}},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			result, err := env.store.ListAll(tc.IncludeTerminal)
			require.NoError(t, err)

			found := []string{}
			for _, j := range result {
				found = append(found, j.ID)
			}
			assert.ElementsMatch(t, tc.Expect, found)
		})
	}
}

func TestUpdateErrors(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)
	missing := utils.NewRandomID()

	cases := []struct {
		Name      string
		Do        func() error
		ExpectErr error
	}{
		{"UnknownStatus", func() error { return env.store.UpdateLifecycleStatus(job.ID, "ASLEEP") }, errors.ErrInvalidArg},
		{"UnknownCompileStatus", func() error { return env.store.UpdateCompileStatus(job.ID, "MAYBE", "", "") }, errors.ErrInvalidArg},
		{"StatusNotFound", func() error { return env.store.UpdateLifecycleStatus(missing, structs.FAILED) }, errors.ErrNotFound},
		{"CompileNotFound", func() error { return env.store.UpdateCompileStatus(missing, structs.CompileFailed, "", "") }, errors.ErrNotFound},
		{"GetNotFound", func() error { _, err := env.store.Get(missing); return err }, errors.ErrNotFound},
		{"GetInvalid", func() error { _, err := env.store.Get("nope"); return err }, errors.ErrInvalidArg},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.ErrorIs(t, c.Do(), c.ExpectErr)
		})
	}
}

func TestUpdateCompileStatusDropsArtifactUnlessSuccess(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)

	require.NoError(t, env.store.UpdateCompileStatus(job.ID, structs.CompileFailed, "nope", "/ws/firmware.bin"))

	got, err := env.store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.ArtifactPath)
	assert.False(t, got.HasArtifact())
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)
	other := env.create(t, testDueAt)

	err := env.store.Delete(job.ID)
	require.NoError(t, err)

	all, err := env.store.ListAll(true)
	require.NoError(t, err)
	require.Equal(t, 1, len(all))
	assert.Equal(t, other.ID, all[0].ID)

	assert.False(t, env.cache.Exists(job.WorkspaceID))
	live, buried, err := env.cache.List()
	require.NoError(t, err)
	assert.Equal(t, []string{other.WorkspaceID}, live)
	assert.Equal(t, 0, len(buried))

	err = env.store.Delete(job.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestDeleteProcessing(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)
	require.NoError(t, env.store.UpdateLifecycleStatus(job.ID, structs.PROCESSING))

	err := env.store.Delete(job.ID)

	assert.ErrorIs(t, err, errors.ErrInvalidState)
	assert.True(t, env.cache.Exists(job.WorkspaceID))
}

func TestDeleteRollsBackWorkspace(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)

	store := env.open(t, func(db database.Database) database.Database { return &failingDelete{Database: db} })

	err := store.Delete(job.ID)
	assert.ErrorIs(t, err, errors.ErrStorage)

	assert.True(t, env.cache.Exists(job.WorkspaceID))
	_, buried, err := env.cache.List()
	require.NoError(t, err)
	assert.Equal(t, 0, len(buried))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestReschedule(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)
	require.NoError(t, env.store.UpdateCompileStatus(job.ID, structs.CompileSuccess, "ok", "/ws/firmware.bin"))
	require.NoError(t, env.store.UpdateLifecycleStatus(job.ID, structs.FAILED))

	got, err := env.store.Reschedule(job.ID, testDueAt+100)
	require.NoError(t, err)

	assert.Equal(t, structs.SCHEDULED, got.Status)
	assert.Equal(t, int64(testDueAt+100), got.ScheduledAt)
	assert.Equal(t, structs.CompilePending, got.CompileStatus)
	assert.Equal(t, "", got.ArtifactPath)
}

func TestRescheduleKeepsImmediateArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.builder.EXPECT().Build(gomock.Any(), gomock.Any(), "").DoAndReturn(buildOK(env.fs))

	req := newCreateRequest(testDueAt)
	req.CompilePolicy = structs.CompileImmediately
	job, done, err := env.store.Create(req)
	require.NoError(t, err)
	result := <-done
	require.Equal(t, structs.CompileSuccess, result.Status)
	require.NoError(t, env.store.UpdateLifecycleStatus(job.ID, structs.COMPLETED))

	got, err := env.store.Reschedule(job.ID, testDueAt+100)
	require.NoError(t, err)

	assert.Equal(t, structs.SCHEDULED, got.Status)
	assert.True(t, got.HasArtifact())
	assert.Equal(t, result.ArtifactPath, got.ArtifactPath)
}

func TestRescheduleErrors(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)
	busy := env.create(t, testDueAt)
	require.NoError(t, env.store.UpdateLifecycleStatus(busy.ID, structs.PROCESSING))

	cases := []struct {
		Name      string
		ID        string
		At        int64
		ExpectErr error
	}{
		{"InThePast", job.ID, testCreatedAt, errors.ErrScheduleInPast},
		{"NotFound", utils.NewRandomID(), testDueAt, errors.ErrNotFound},
		{"Processing", busy.ID, testDueAt, errors.ErrInvalidState},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			_, err := env.store.Reschedule(c.ID, c.At)
			assert.ErrorIs(t, err, c.ExpectErr)
		})
	}
}

func TestBatches(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, testDueAt)
	b := env.create(t, testDueAt)
	env.create(t, testDueAt)

	batch, err := env.store.CreateBatch(&structs.CreateBatchRequest{BatchSpec: structs.BatchSpec{Name: "upstairs"}})
	require.NoError(t, err)
	assert.True(t, utils.IsValidID(batch.ID))
	assert.Equal(t, int64(testCreatedAt), batch.CreatedAt)

	added, err := env.store.AddToBatch(batch.ID, a.ID, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	added, err = env.store.AddToBatch(batch.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), added)

	jobs, err := env.store.BatchJobs(batch.ID)
	require.NoError(t, err)
	found := []string{}
	for _, j := range jobs {
		found = append(found, j.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, found)

	batches, err := env.store.Batches(nil)
	require.NoError(t, err)
	require.Equal(t, 1, len(batches))
	assert.Equal(t, "upstairs", batches[0].Name)

	// deleting a job drops it from the batch
	require.NoError(t, env.store.Delete(a.ID))
	jobs, err = env.store.BatchJobs(batch.ID)
	require.NoError(t, err)
	require.Equal(t, 1, len(jobs))
	assert.Equal(t, b.ID, jobs[0].ID)
}

func addToBatch(s *JobStore, batchID string, jobIDs ...string) error {
	_, err := s.AddToBatch(batchID, jobIDs...)
	return err
}

func TestBatchErrors(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)
	batch, err := env.store.CreateBatch(&structs.CreateBatchRequest{BatchSpec: structs.BatchSpec{Name: "b"}})
	require.NoError(t, err)

	cases := []struct {
		Name      string
		Do        func() error
		ExpectErr error
	}{
		{"NoName", func() error {
			_, err := env.store.CreateBatch(&structs.CreateBatchRequest{})
			return err
		}, errors.ErrValidation},
		{"UnknownBatch", func() error { return addToBatch(env.store, utils.NewRandomID(), job.ID) }, errors.ErrNotFound},
		{"UnknownJob", func() error { return addToBatch(env.store, batch.ID, job.ID, utils.NewRandomID()) }, errors.ErrNotFound},
		{"InvalidBatchID", func() error { return addToBatch(env.store, "x", job.ID) }, errors.ErrInvalidArg},
		{"InvalidJobID", func() error { return addToBatch(env.store, batch.ID, "x") }, errors.ErrInvalidArg},
		{"NoJobs", func() error { return addToBatch(env.store, batch.ID) }, errors.ErrInvalidArg},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.ErrorIs(t, c.Do(), c.ExpectErr)
		})
	}

	jobs, err := env.store.BatchJobs(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, len(jobs))
}

func TestRecoverInterrupted(t *testing.T) {
	env := newTestEnv(t)
	processing := env.create(t, testDueAt)
	building := env.create(t, testDueAt)
	untouched := env.create(t, testDueAt)
	require.NoError(t, env.store.UpdateLifecycleStatus(processing.ID, structs.PROCESSING))
	require.NoError(t, env.store.UpdateCompileStatus(building.ID, structs.CompileCompiling, "", ""))

	count, err := env.store.RecoverInterrupted()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := env.store.Get(processing.ID)
	require.NoError(t, err)
	assert.Equal(t, structs.FAILED, got.Status)
	assert.Contains(t, got.CompileLog, "interrupted")

	got, err = env.store.Get(building.ID)
	require.NoError(t, err)
	assert.Equal(t, structs.SCHEDULED, got.Status)
	assert.Equal(t, structs.CompileFailed, got.CompileStatus)
	assert.Contains(t, got.CompileLog, "interrupted")

	got, err = env.store.Get(untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, structs.SCHEDULED, got.Status)
	assert.Equal(t, structs.CompilePending, got.CompileStatus)

	count, err = env.store.RecoverInterrupted()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestTidyWorkspaces(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)

	orphan, err := env.cache.Stage(testConfig)
	require.NoError(t, err)
	buried, err := env.cache.Stage(testConfig)
	require.NoError(t, err)
	require.NoError(t, env.cache.Bury(buried.ID))

	count, err := env.store.TidyWorkspaces()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	live, trash, err := env.cache.List()
	require.NoError(t, err)
	assert.Equal(t, []string{job.WorkspaceID}, live)
	assert.Equal(t, 0, len(trash))
	assert.False(t, env.cache.Exists(orphan.ID))
}

func TestTidyWorkspacesRestoresBuried(t *testing.T) {
	env := newTestEnv(t)
	job := env.create(t, testDueAt)
	require.NoError(t, env.cache.Bury(job.WorkspaceID))

	count, err := env.store.TidyWorkspaces()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, env.cache.Exists(job.WorkspaceID))
}

// tidyBeforeInsert has another store tidy the shared workspace root just before each
// job is recorded
type tidyBeforeInsert struct {
	database.Database
	other  *JobStore
	tidied int
}

func (d *tidyBeforeInsert) InsertJob(j *structs.Job) error {
	n, err := d.other.TidyWorkspaces()
	if err != nil {
		return err
	}
	d.tidied += n
	return d.Database.InsertJob(j)
}

func TestCreateWhileOtherStoreTidies(t *testing.T) {
	env := newTestEnv(t)
	worker := env.store

	var racer *tidyBeforeInsert
	api := env.open(t, func(db database.Database) database.Database {
		racer = &tidyBeforeInsert{Database: db, other: worker}
		return racer
	})

	job, _, err := api.Create(newCreateRequest(testDueAt))
	require.NoError(t, err)

	assert.Equal(t, 0, racer.tidied)
	assert.True(t, env.cache.Exists(job.WorkspaceID))
	data, err := afero.ReadFile(env.fs, job.StagedPath)
	require.NoError(t, err)
	assert.Equal(t, "esphome:\n  name: kitchen\n", string(data))

	// and the worker sees it as in use from now on
	count, err := worker.TidyWorkspaces()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.True(t, env.cache.Exists(job.WorkspaceID))
}

func TestTidyWorkspacesAbandoned(t *testing.T) {
	env := newTestEnv(t)

	fresh, err := env.cache.Prepare(testConfig)
	require.NoError(t, err)
	stale, err := env.cache.Prepare(testConfig)
	require.NoError(t, err)
	old := time.Now().Add(-2 * abandonedAfter)
	require.NoError(t, env.fs.Chtimes(filepath.Join(testWorkspaceRoot, ".staging-"+stale.ID), old, old))

	count, err := env.store.TidyWorkspaces()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ok, err := afero.DirExists(env.fs, filepath.Join(testWorkspaceRoot, ".staging-"+stale.ID))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, env.cache.Commit(fresh.ID))
	assert.True(t, env.cache.Exists(fresh.ID))
}
