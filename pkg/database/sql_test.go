package database

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/structs"
)

func newTestDB(t *testing.T) (*SQLDB, string) {
	path := filepath.Join(t.TempDir(), "flashd.db")
	db, err := New(&Options{URL: "sqlite://" + path})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func newTestJob(id string, at int64) *structs.Job {
	return &structs.Job{
		JobSpec: structs.JobSpec{
			SourcePath:    "/configs/" + id + ".yaml",
			Filename:      id + ".yaml",
			Target:        "192.168.1.10",
			Transport:     structs.TransportNetwork,
			ScheduledAt:   at,
			CompilePolicy: structs.CompileAtDispatch,
		},
		ID:            id,
		WorkspaceID:   "ws-" + id,
		StagedPath:    "/ws/" + id + "/" + id + ".yaml",
		Status:        structs.SCHEDULED,
		CompileStatus: structs.CompilePending,
	}
}

func TestRebind(t *testing.T) {
	cases := []struct {
		Name   string
		Driver string
		Given  string
		Expect string
	}{
		{"SQLite", DriverSQLite, "UPDATE jobs SET a=$1, b=$12 WHERE id=$3;", "UPDATE jobs SET a=?1, b=?12 WHERE id=?3;"},
		{"Pgx", DriverPgx, "UPDATE jobs SET a=$1 WHERE id=$2;", "UPDATE jobs SET a=$1 WHERE id=$2;"},
		{"PQ", DriverPQ, "SELECT $1;", "SELECT $1;"},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			p := &SQLDB{opts: &Options{Driver: c.Driver}}
			assert.Equal(t, c.Expect, p.rebind(c.Given))
		})
	}
}

func TestToSqlQuery(t *testing.T) {
	cases := []struct {
		Name       string
		In         map[string][]string
		BatchIDs   []string
		DueBy      int64
		ExpectStr  string
		ExpectArgs []interface{}
	}{
		{
			Name:       "Empty",
			ExpectStr:  "",
			ExpectArgs: []interface{}{},
		},
		{
			Name:       "EmptyValuesIgnored",
			In:         map[string][]string{"id": nil, "status": {}},
			ExpectStr:  "",
			ExpectArgs: []interface{}{},
		},
		{
			Name:       "SortedFields",
			In:         map[string][]string{"status": {"SCHEDULED"}, "id": {"a", "b"}},
			ExpectStr:  "WHERE id IN ($1, $2) AND status IN ($3)",
			ExpectArgs: []interface{}{"a", "b", "SCHEDULED"},
		},
		{
			Name:       "Batches",
			In:         map[string][]string{"id": {"a"}},
			BatchIDs:   []string{"b1"},
			ExpectStr:  "WHERE id IN ($1) AND id IN (SELECT job_id FROM batch_jobs WHERE batch_id IN ($2))",
			ExpectArgs: []interface{}{"a", "b1"},
		},
		{
			Name:       "DueBy",
			In:         map[string][]string{"status": {"SCHEDULED"}},
			DueBy:      100,
			ExpectStr:  "WHERE status IN ($1) AND scheduled_at <= $2",
			ExpectArgs: []interface{}{"SCHEDULED", int64(100)},
		},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			qstr, args := toSqlQuery(c.In, c.BatchIDs, c.DueBy)

			assert.Equal(t, c.ExpectStr, qstr)
			assert.Equal(t, c.ExpectArgs, args)
		})
	}
}

func TestToSqlIn(t *testing.T) {
	qstr, args := toSqlIn(3, "id", []string{"a", "b"})

	assert.Equal(t, "id IN ($3, $4)", qstr)
	assert.Equal(t, []interface{}{"a", "b"}, args)
}

func TestToJobSqlArgs(t *testing.T) {
	in := newTestJob("id", 100)
	in.DeviceSnapshot = json.RawMessage(`{"name": "kitchen"}`)
	in.CreatedAt = 10
	in.UpdatedAt = 20

	qstr, result := toJobSqlArgs(2, in)

	assert.Equal(t, "($2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)", qstr)
	assert.Equal(t, []interface{}{
		in.ID,
		in.SourcePath,
		in.Filename,
		in.Target,
		"NETWORK",
		int64(100),
		"AT_DISPATCH",
		"",
		`{"name": "kitchen"}`,
		"",
		in.WorkspaceID,
		in.StagedPath,
		"SCHEDULED",
		"PENDING",
		"",
		"",
		int64(0),
		int64(10),
		int64(20),
	}, result)
}

func TestStatusToStrings(t *testing.T) {
	assert.Nil(t, statusToStrings(nil))
	assert.Equal(t, []string{"SCHEDULED", "FAILED"}, statusToStrings([]structs.Status{structs.SCHEDULED, structs.FAILED}))
	assert.Equal(t, []string{"COMPILING"}, compileStatusToStrings([]structs.CompileStatus{structs.CompileCompiling}))
}

func TestSQLiteJobsOrdering(t *testing.T) {
	db, _ := newTestDB(t)

	// inserted out of time order, with a tie at 200
	for _, j := range []*structs.Job{
		newTestJob("c", 300),
		newTestJob("b1", 200),
		newTestJob("a", 100),
		newTestJob("b2", 200),
	} {
		require.NoError(t, db.InsertJob(j))
		assert.NotZero(t, j.Seq)
	}

	jobs, err := db.Jobs(&structs.Query{})
	require.NoError(t, err)

	ids := []string{}
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)

	due, err := db.Jobs(&structs.Query{DueBy: 200, Statuses: []structs.Status{structs.SCHEDULED}})
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestSQLiteRoundTrip(t *testing.T) {
	db, path := newTestDB(t)

	in := newTestJob("kitchen", 1000)
	in.HistorySnapshot = json.RawMessage(`[{"at":1}]`)
	require.NoError(t, db.InsertJob(in))
	require.NoError(t, db.Close())

	// reopening must see the committed job
	db2, err := New(&Options{URL: "sqlite://" + path})
	require.NoError(t, err)
	defer db2.Close()

	jobs, err := db2.Jobs(&structs.Query{JobIDs: []string{"kitchen"}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, in, jobs[0])
	assert.Nil(t, jobs[0].DeviceSnapshot)
}

func TestSQLiteSetJobCompileStatus(t *testing.T) {
	cases := []struct {
		Name         string
		Status       structs.CompileStatus
		ExpectArtif  string
		ExpectLogged string
	}{
		{"Success", structs.CompileSuccess, "/ws/a/firmware.bin", "ok"},
		{"FailedClearsArtifact", structs.CompileFailed, "", "ok"},
		{"PendingClearsArtifact", structs.CompilePending, "", "ok"},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			db, _ := newTestDB(t)
			require.NoError(t, db.InsertJob(newTestJob("a", 100)))

			n, err := db.SetJobCompileStatus("a", c.Status, "ok", "/ws/a/firmware.bin")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			jobs, err := db.Jobs(&structs.Query{JobIDs: []string{"a"}})
			require.NoError(t, err)
			assert.Equal(t, c.Status, jobs[0].CompileStatus)
			assert.Equal(t, c.ExpectArtif, jobs[0].ArtifactPath)
			assert.Equal(t, c.ExpectLogged, jobs[0].CompileLog)
			assert.NotZero(t, jobs[0].CompiledAt)
		})
	}
}

func TestSQLiteSetJobStatusAndSchedule(t *testing.T) {
	db, _ := newTestDB(t)
	require.NoError(t, db.InsertJob(newTestJob("a", 100)))

	n, err := db.SetJobStatus("a", structs.PROCESSING)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = db.SetJobStatus("missing", structs.PROCESSING)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = db.SetJobSchedule("a", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	jobs, err := db.Jobs(&structs.Query{JobIDs: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, structs.SCHEDULED, jobs[0].Status)
	assert.Equal(t, int64(500), jobs[0].ScheduledAt)
}

func TestSQLiteDeleteJob(t *testing.T) {
	cases := []struct {
		Name         string
		ID           string
		Hook         func() error
		ExpectErr    error
		ExpectExists bool
	}{
		{
			Name: "Deleted",
			ID:   "a",
		},
		{
			Name:         "HookFailsRollsBack",
			ID:           "a",
			Hook:         func() error { return fmt.Errorf("disk full") },
			ExpectErr:    fmt.Errorf("disk full"),
			ExpectExists: true,
		},
		{
			Name:         "NotFound",
			ID:           "missing",
			ExpectErr:    errors.ErrNotFound,
			ExpectExists: true,
		},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			db, _ := newTestDB(t)
			require.NoError(t, db.InsertJob(newTestJob("a", 100)))
			require.NoError(t, db.InsertBatch(&structs.Batch{ID: "b", BatchSpec: structs.BatchSpec{Name: "b"}}))
			_, err := db.InsertBatchJobs("b", []string{"a"})
			require.NoError(t, err)

			err = db.DeleteJob(c.ID, c.Hook)
			if c.ExpectErr != nil {
				require.Error(t, err)
				if c.ExpectErr == errors.ErrNotFound {
					assert.ErrorIs(t, err, errors.ErrNotFound)
				} else {
					assert.Equal(t, c.ExpectErr.Error(), err.Error())
				}
			} else {
				require.NoError(t, err)
			}

			jobs, err := db.Jobs(&structs.Query{JobIDs: []string{"a"}})
			require.NoError(t, err)
			assert.Equal(t, c.ExpectExists, len(jobs) == 1)

			members, err := db.Jobs(&structs.Query{BatchIDs: []string{"b"}})
			require.NoError(t, err)
			assert.Equal(t, c.ExpectExists, len(members) == 1)
		})
	}
}

func TestSQLiteBatches(t *testing.T) {
	db, _ := newTestDB(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.InsertJob(newTestJob(id, 100)))
	}
	require.NoError(t, db.InsertBatch(&structs.Batch{ID: "b1", BatchSpec: structs.BatchSpec{Name: "upstairs"}, CreatedAt: 1}))
	require.NoError(t, db.InsertBatch(&structs.Batch{ID: "b2", BatchSpec: structs.BatchSpec{Name: "garage"}, CreatedAt: 2}))

	added := map[string][]string{
		"b1": {"a", "b"},
		"b2": {"c"},
	}
	for batch, ids := range added {
		n, err := db.InsertBatchJobs(batch, ids)
		require.NoError(t, err)
		assert.Equal(t, int64(len(ids)), n)
	}

	// again is fine, but adds nothing
	n, err := db.InsertBatchJobs("b1", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = db.InsertBatchJobs("b1", []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = db.InsertBatchJobs("b2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	batches, err := db.Batches(&structs.Query{})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "upstairs", batches[0].Name)
	assert.Equal(t, "garage", batches[1].Name)

	batches, err = db.Batches(&structs.Query{BatchIDs: []string{"b2"}})
	require.NoError(t, err)
	require.Len(t, batches, 1)

	members, err := db.Jobs(&structs.Query{BatchIDs: []string{"b1"}})
	require.NoError(t, err)
	assert.Len(t, members, 3)
}
