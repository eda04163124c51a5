package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/structs"
)

const (
	tableJobs      = "jobs"
	tableBatches   = "batches"
	tableBatchJobs = "batch_jobs"

	jobColumns = `id, source_path, filename, target, transport, scheduled_at, compile_policy, builder_id, ` +
		`device_snapshot, history_snapshot, workspace_id, staged_path, status, compile_status, artifact_path, ` +
		`compile_log, compiled_at, created_at, updated_at`
	jobColumnCount = 19
)

var reDollarArg = regexp.MustCompile(`\$(\d+)`)

// SQLDB is a flashd database implementation over database/sql. It speaks to sqlite
// (github.com/mattn/go-sqlite3) or postgres (github.com/jackc/pgx/v5 or github.com/lib/pq).
//
// Queries are written with postgres style $N args and rebound for sqlite.
type SQLDB struct {
	opts *Options
	db   *sql.DB
}

// New opens the database described by opts and applies any pending migrations.
func New(opts *Options) (*SQLDB, error) {
	opts.SetDefaults()

	dsn := opts.URL
	if opts.Driver == DriverSQLite {
		dsn = sqliteDSN(opts.URL)
	} else {
		dsn = strings.Replace(dsn, "$"+opts.UsernameEnvVar, os.Getenv(opts.UsernameEnvVar), 1)
		dsn = strings.Replace(dsn, "$"+opts.PasswordEnvVar, os.Getenv(opts.PasswordEnvVar), 1)
	}

	err := migrateUp(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w migrating database: %v", errors.ErrStorage, err)
	}

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if opts.Driver == DriverSQLite {
		// sqlite permits a single writer
		db.SetMaxOpenConns(1)
	}

	return &SQLDB{opts: opts, db: db}, db.Ping()
}

// Close shuts down the database connection.
func (p *SQLDB) Close() error {
	return p.db.Close()
}

// InsertJob inserts a job & records it's insertion order on the struct.
func (p *SQLDB) InsertJob(j *structs.Job) error {
	jstr, jargs := toJobSqlArgs(1, j) // the sql lib starts at 1
	jstr = fmt.Sprintf(`INSERT INTO %s (%s) VALUES %s RETURNING seq;`, tableJobs, jobColumns, jstr)

	return p.db.QueryRowContext(context.Background(), p.rebind(jstr), jargs...).Scan(&j.Seq)
}

// InsertBatch inserts a batch
func (p *SQLDB) InsertBatch(b *structs.Batch) error {
	if b.CreatedAt == 0 {
		b.CreatedAt = timeNow()
	}
	qstr := fmt.Sprintf(`INSERT INTO %s (id, name, description, created_at) VALUES ($1, $2, $3, $4);`, tableBatches)

	_, err := p.db.ExecContext(context.Background(), p.rebind(qstr), b.ID, b.Name, b.Description, b.CreatedAt)
	return err
}

// InsertBatchJobs adds jobs to a batch & returns how many were added. Adding a job
// twice is a no-op.
func (p *SQLDB) InsertBatchJobs(batchID string, jobIDs []string) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	vals, args := []string{}, []interface{}{}
	for _, id := range jobIDs {
		vals = append(vals, fmt.Sprintf("($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, batchID, id)
	}
	qstr := fmt.Sprintf(`INSERT INTO %s (batch_id, job_id) VALUES %s ON CONFLICT DO NOTHING;`,
		tableBatchJobs, strings.Join(vals, ", "), // join so its (),(),() etc
	)

	return p.exec(qstr, args...)
}

// SetJobStatus sets the lifecycle status of the given job
func (p *SQLDB) SetJobStatus(id string, status structs.Status) (int64, error) {
	qstr := fmt.Sprintf(`UPDATE %s SET status=$1, updated_at=$2 WHERE id=$3;`, tableJobs)
	return p.exec(qstr, string(status), timeNow(), id)
}

// SetJobCompileStatus records the outcome of a build. The artifact is dropped unless
// the build succeeded so a stale artifact can't outlive a failed recompile.
func (p *SQLDB) SetJobCompileStatus(id string, status structs.CompileStatus, log, artifactPath string) (int64, error) {
	if status != structs.CompileSuccess {
		artifactPath = ""
	}
	now := timeNow()
	qstr := fmt.Sprintf(`UPDATE %s SET compile_status=$1, compile_log=$2, artifact_path=$3, compiled_at=$4, updated_at=$5 WHERE id=$6;`, tableJobs)
	return p.exec(qstr, string(status), log, artifactPath, now, now, id)
}

// SetJobSchedule sets the job SCHEDULED for the given time
func (p *SQLDB) SetJobSchedule(id string, at int64) (int64, error) {
	qstr := fmt.Sprintf(`UPDATE %s SET status=$1, scheduled_at=$2, updated_at=$3 WHERE id=$4;`, tableJobs)
	return p.exec(qstr, string(structs.SCHEDULED), at, timeNow(), id)
}

// DeleteJob deletes a job & it's batch memberships in one transaction, calling beforeCommit
// (if given) before the transaction commits.
func (p *SQLDB) DeleteJob(id string, beforeCommit func() error) error {
	ctx := context.Background()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, p.rebind(fmt.Sprintf(`DELETE FROM %s WHERE job_id=$1;`, tableBatchJobs)), id)
	if err != nil {
		tx.Rollback()
		return err
	}

	info, err := tx.ExecContext(ctx, p.rebind(fmt.Sprintf(`DELETE FROM %s WHERE id=$1;`, tableJobs)), id)
	if err != nil {
		tx.Rollback()
		return err
	}
	deleted, err := info.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if deleted == 0 {
		tx.Rollback()
		return fmt.Errorf("%w job %s", errors.ErrNotFound, id)
	}

	if beforeCommit != nil {
		err = beforeCommit()
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Jobs returns jobs matching the given query
func (p *SQLDB) Jobs(q *structs.Query) ([]*structs.Job, error) {
	q.Sanitize()
	where, args := toSqlQuery(map[string][]string{
		"id":             q.JobIDs,
		"status":         statusToStrings(q.Statuses),
		"compile_status": compileStatusToStrings(q.CompileStatuses),
	},
		q.BatchIDs, q.DueBy,
	)
	args = append(args, q.Limit, q.Offset)

	qstr := fmt.Sprintf(`SELECT seq, %s FROM %s %s ORDER BY scheduled_at ASC, seq ASC LIMIT $%d OFFSET $%d;`,
		jobColumns, tableJobs, where, len(args)-1, len(args),
	)

	rows, err := p.db.QueryContext(context.Background(), p.rebind(qstr), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*structs.Job{}
	for rows.Next() {
		j := structs.Job{}
		var transport, policy, status, compileStatus, device, history string
		err = rows.Scan(
			&j.Seq,
			&j.ID,
			&j.SourcePath,
			&j.Filename,
			&j.Target,
			&transport,
			&j.ScheduledAt,
			&policy,
			&j.BuilderID,
			&device,
			&history,
			&j.WorkspaceID,
			&j.StagedPath,
			&status,
			&compileStatus,
			&j.ArtifactPath,
			&j.CompileLog,
			&j.CompiledAt,
			&j.CreatedAt,
			&j.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		j.Transport = structs.TransportMode(transport)
		j.CompilePolicy = structs.CompilePolicy(policy)
		j.Status = structs.Status(status)
		j.CompileStatus = structs.CompileStatus(compileStatus)
		j.DeviceSnapshot = toRawJSON(device)
		j.HistorySnapshot = toRawJSON(history)
		jobs = append(jobs, &j)
	}

	return jobs, rows.Err()
}

// Batches returns batches matching the given query
func (p *SQLDB) Batches(q *structs.Query) ([]*structs.Batch, error) {
	q.Sanitize()
	where, args := toSqlQuery(map[string][]string{"id": q.BatchIDs}, nil, 0)
	args = append(args, q.Limit, q.Offset)

	qstr := fmt.Sprintf(`SELECT id, name, description, created_at FROM %s %s ORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d;`,
		tableBatches, where, len(args)-1, len(args),
	)

	rows, err := p.db.QueryContext(context.Background(), p.rebind(qstr), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := []*structs.Batch{}
	for rows.Next() {
		b := structs.Batch{}
		err = rows.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt)
		if err != nil {
			return nil, err
		}
		batches = append(batches, &b)
	}

	return batches, rows.Err()
}

// exec runs an update & returns the number of rows altered
func (p *SQLDB) exec(qstr string, args ...interface{}) (int64, error) {
	info, err := p.db.ExecContext(context.Background(), p.rebind(qstr), args...)
	if err != nil {
		return 0, err
	}
	return info.RowsAffected()
}

// rebind converts $N args to sqlite's ?N form
func (p *SQLDB) rebind(qstr string) string {
	if p.opts.Driver != DriverSQLite {
		return qstr
	}
	return reDollarArg.ReplaceAllString(qstr, "?$1")
}

// toSqlQuery converts query data into a SQL query string & args
func toSqlQuery(in map[string][]string, batchIDs []string, dueBy int64) (string, []interface{}) {
	if in == nil {
		in = map[string][]string{}
	}
	keys := []string{}
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys) // stable sql for the same query

	and := []string{}
	args := []interface{}{}
	for _, k := range keys {
		v := in[k]
		if len(v) == 0 {
			continue
		}
		s, a := toSqlIn(len(args)+1, k, v)
		and = append(and, s)
		args = append(args, a...)
	}
	if len(batchIDs) > 0 {
		s, a := toSqlIn(len(args)+1, "batch_id", batchIDs)
		and = append(and, fmt.Sprintf("id IN (SELECT job_id FROM %s WHERE %s)", tableBatchJobs, s))
		args = append(args, a...)
	}
	if dueBy > 0 {
		args = append(args, dueBy)
		and = append(and, fmt.Sprintf("scheduled_at <= $%d", len(args)))
	}
	if len(and) == 0 {
		return "", args
	}
	return fmt.Sprintf("WHERE %s", strings.Join(and, " AND ")), args
}

// toSqlIn converts a list of strings into a SQL IN clause
func toSqlIn(offset int, field string, args []string) (string, []interface{}) {
	if len(args) == 0 {
		return "", []interface{}{}
	}
	vals := []string{}
	ifargs := []interface{}{}
	for i, a := range args {
		vals = append(vals, fmt.Sprintf("$%d", i+offset))
		ifargs = append(ifargs, a)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(vals, ", ")), ifargs
}

// toJobSqlArgs converts a job into a SQL query string & args (for an insert)
func toJobSqlArgs(offset int, j *structs.Job) (string, []interface{}) {
	vals := []string{}
	for i := offset; i < jobColumnCount+offset; i++ {
		vals = append(vals, fmt.Sprintf("$%d", i))
	}
	if j.CreatedAt == 0 {
		j.CreatedAt = timeNow()
		j.UpdatedAt = j.CreatedAt
	}
	return fmt.Sprintf("(%s)", strings.Join(vals, ", ")), []interface{}{
		j.ID,
		j.SourcePath,
		j.Filename,
		j.Target,
		string(j.Transport),
		j.ScheduledAt,
		string(j.CompilePolicy),
		j.BuilderID,
		string(j.DeviceSnapshot),
		string(j.HistorySnapshot),
		j.WorkspaceID,
		j.StagedPath,
		string(j.Status),
		string(j.CompileStatus),
		j.ArtifactPath,
		j.CompileLog,
		j.CompiledAt,
		j.CreatedAt,
		j.UpdatedAt,
	}
}

// statusToStrings converts a list of statuses into a list of strings
func statusToStrings(in []structs.Status) []string {
	if len(in) == 0 {
		return nil
	}
	out := []string{}
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

// compileStatusToStrings converts a list of compile statuses into a list of strings
func compileStatusToStrings(in []structs.CompileStatus) []string {
	if len(in) == 0 {
		return nil
	}
	out := []string{}
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

func toRawJSON(in string) json.RawMessage {
	if in == "" {
		return nil
	}
	return json.RawMessage(in)
}

// timeNow returns the current time in unix seconds
func timeNow() int64 {
	return time.Now().Unix()
}
