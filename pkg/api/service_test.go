package api_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/voidshard/flashd/internal/cache"
	"github.com/voidshard/flashd/internal/core"
	"github.com/voidshard/flashd/internal/mocks/pkg/toolchain_mock"
	"github.com/voidshard/flashd/pkg/api"
	"github.com/voidshard/flashd/pkg/api/http/client"
	"github.com/voidshard/flashd/pkg/api/http/server"
	"github.com/voidshard/flashd/pkg/database"
	"github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/structs"
	"github.com/voidshard/flashd/pkg/toolchain"
)

const testConfig = "/configs/porch.yaml"

type setup struct {
	fs       afero.Fs
	store    *core.JobStore
	sched    *core.Scheduler
	builder  *toolchain_mock.MockBuilder
	deployer *toolchain_mock.MockDeployer
	client   *client.Client
}

func newSetup(t *testing.T) *setup {
	ctrl := gomock.NewController(t)
	s := &setup{
		fs:       afero.NewMemMapFs(),
		builder:  toolchain_mock.NewMockBuilder(ctrl),
		deployer: toolchain_mock.NewMockDeployer(ctrl),
	}
	require.NoError(t, afero.WriteFile(s.fs, testConfig, []byte("esphome:\n  name: porch\n"), 0644))

	db, err := database.New(&database.Options{URL: "sqlite://" + filepath.Join(t.TempDir(), "flashd.db")})
	require.NoError(t, err)

	ws, err := cache.New(s.fs, &cache.Options{Root: "/ws"}, nil, nil)
	require.NoError(t, err)

	s.store = core.NewJobStore(db, ws, &core.JobStoreOptions{Builder: s.builder})
	t.Cleanup(func() { s.store.Close() })

	s.sched = core.NewScheduler(s.store, s.builder, s.deployer, nil, nil, nil)

	srv := httptest.NewServer(server.NewServer(nil, nil).Handler(api.NewAPI(s.store)))
	t.Cleanup(srv.Close)

	s.client, err = client.New(srv.URL)
	require.NoError(t, err)
	return s
}

func (s *setup) buildOK(ctx context.Context, src, builderID string) (*toolchain.BuildResult, error) {
	out := filepath.Join(filepath.Dir(src), ".esphome", "firmware.bin")
	err := afero.WriteFile(s.fs, out, []byte("firmware"), 0644)
	return &toolchain.BuildResult{ArtifactPath: out, Success: true, Log: "INFO Successfully compiled program."}, err
}

// TestJobLifecycle runs a job end to end over http
//
// - creates a job a couple of seconds out
// - groups it into a batch
// - waits for the scheduler to build & deploy it
// - reschedules it, then deletes it
func TestJobLifecycle(t *testing.T) {
	s := newSetup(t)

	s.builder.EXPECT().Build(gomock.Any(), gomock.Any(), "").DoAndReturn(s.buildOK)
	s.deployer.EXPECT().Deploy(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, req *toolchain.DeployRequest) error {
		assert.Equal(t, "porch.local", req.Target)
		assert.Equal(t, structs.TransportNetwork, req.Transport)
		data, err := afero.ReadFile(s.fs, req.Path)
		assert.NoError(t, err)
		assert.Equal(t, "firmware", string(data))
		return nil
	})

	// create job
	job, err := s.client.CreateJob(&structs.CreateJobRequest{JobSpec: structs.JobSpec{
		SourcePath:  testConfig,
		Target:      "porch.local",
		Transport:   structs.TransportNetwork,
		ScheduledAt: time.Now().Unix() + 2,
	}})
	require.NoError(t, err)
	assert.Equal(t, structs.SCHEDULED, job.Status)
	assert.Equal(t, structs.CompilePending, job.CompileStatus)
	assert.Equal(t, "porch.yaml", job.Filename)

	// batch it
	batch, err := s.client.CreateBatch(&structs.CreateBatchRequest{BatchSpec: structs.BatchSpec{Name: "outside"}})
	require.NoError(t, err)
	added, err := s.client.AddToBatch(batch.ID, &structs.AddToBatchRequest{JobIDs: []string{job.ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)

	// already there, so nothing is added
	added, err = s.client.AddToBatch(batch.ID, &structs.AddToBatchRequest{JobIDs: []string{job.ID, job.ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), added)

	inBatch, err := s.client.BatchJobs(batch.ID)
	require.NoError(t, err)
	require.Len(t, inBatch, 1)
	assert.Equal(t, job.ID, inBatch[0].ID)

	scheduled, err := s.client.Jobs(&structs.Query{Statuses: []structs.Status{structs.SCHEDULED}})
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)

	// wait for it to be due & dispatched
	require.Eventually(t, func() bool {
		err := s.sched.RunOnce(context.Background())
		if err != nil {
			return false
		}
		got, err := s.client.Job(job.ID)
		return err == nil && got.Status == structs.COMPLETED
	}, 10*time.Second, 250*time.Millisecond)

	done, err := s.client.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, structs.CompileSuccess, done.CompileStatus)
	assert.NotEmpty(t, done.ArtifactPath)

	// run it again later
	at := time.Now().Unix() + 3600
	again, err := s.client.Reschedule(job.ID, &structs.RescheduleRequest{ScheduledAt: at})
	require.NoError(t, err)
	assert.Equal(t, structs.SCHEDULED, again.Status)
	assert.Equal(t, at, again.ScheduledAt)
	assert.Equal(t, structs.CompilePending, again.CompileStatus)

	// and delete it
	require.NoError(t, s.client.DeleteJob(job.ID))

	_, err = s.client.Job(job.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	inBatch, err = s.client.BatchJobs(batch.ID)
	require.NoError(t, err)
	assert.Len(t, inBatch, 0)
}

func TestCreateJobInPast(t *testing.T) {
	s := newSetup(t)

	_, err := s.client.CreateJob(&structs.CreateJobRequest{JobSpec: structs.JobSpec{
		SourcePath:  testConfig,
		Target:      "porch.local",
		Transport:   structs.TransportNetwork,
		ScheduledAt: time.Now().Unix() - 60,
	}})

	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestNilRequests(t *testing.T) {
	s := newSetup(t)
	svc := api.NewAPI(s.store)
	id := "2b1b0d4c-4e0a-4c63-9f57-7a8f1b6e1d8a"

	_, err := svc.Reschedule(id, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArg)

	_, err = svc.AddToBatch(id, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArg)
}
