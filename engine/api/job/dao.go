package job

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/go-gorp/gorp"
	"github.com/lib/pq"

	"github.com/hostops/hops/engine/database"
	"github.com/hostops/hops/sdk"
	"github.com/hostops/hops/sdk/telemetry"
)

func init() {
	database.RegisterTableMapping(func(m *gorp.DbMap) {
		m.AddTableWithName(sdk.Job{}, "job").SetKeys(false, "ID").SetVersionCol("Version")
		m.AddTableWithName(sdk.JobStep{}, "job_step").SetKeys(false, "ID")
		m.AddTableWithName(sdk.JobEvent{}, "job_event").SetKeys(true, "ID")
		m.AddTableWithName(sdk.WorkerHeartbeat{}, "worker_heartbeat").SetKeys(false, "WorkerID")
	})
}

// GorpStore is the PostgreSQL Store.
type GorpStore struct {
	DBFunc func() *gorp.DbMap
}

var _ Store = new(GorpStore)

func NewGorpStore(dbFunc func() *gorp.DbMap) *GorpStore {
	return &GorpStore{DBFunc: dbFunc}
}

func (s *GorpStore) db() (*gorp.DbMap, error) {
	db := s.DBFunc()
	if db == nil {
		return nil, sdk.NewErrorFrom(sdk.ErrServiceUnavailable, "database is unavailable")
	}
	return db, nil
}

func statusArray(statuses []sdk.JobStatus) pq.StringArray {
	res := make(pq.StringArray, len(statuses))
	for i := range statuses {
		res[i] = string(statuses[i])
	}
	return res
}

func (s *GorpStore) InsertJob(ctx context.Context, j *sdk.Job) error {
	_, end := telemetry.Span(ctx, "job.InsertJob")
	defer end()
	db, err := s.db()
	if err != nil {
		return err
	}
	if j.ID == "" {
		j.ID = sdk.UUID()
	}
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if err := db.Insert(j); err != nil {
		if e, ok := err.(*pq.Error); ok && e.Code == "23505" {
			return sdk.NewErrorFrom(sdk.ErrConflict, "job %s already exists", j.ID)
		}
		return sdk.WrapError(err, "unable to insert job %s", j.ID)
	}
	return nil
}

func (s *GorpStore) LoadJob(ctx context.Context, id string) (*sdk.Job, error) {
	_, end := telemetry.Span(ctx, "job.LoadJob")
	defer end()
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	var j sdk.Job
	if err := db.SelectOne(&j, "SELECT * FROM job WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, sdk.WithStack(sdk.ErrNotFound)
		}
		return nil, sdk.WrapError(err, "unable to load job %s", id)
	}
	return &j, nil
}

func (s *GorpStore) LoadJobs(ctx context.Context, f Filter) ([]sdk.Job, error) {
	_, end := telemetry.Span(ctx, "job.LoadJobs")
	defer end()
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	query := "SELECT * FROM job"
	var args []interface{}
	if len(f.Statuses) > 0 {
		query += " WHERE status = ANY($1)"
		args = append(args, statusArray(f.Statuses))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	var jobs []sdk.Job
	if _, err := db.Select(&jobs, query, args...); err != nil {
		return nil, sdk.WrapError(err, "unable to load jobs")
	}
	return jobs, nil
}

func (s *GorpStore) LoadRunnableJobs(ctx context.Context) ([]sdk.Job, error) {
	_, end := telemetry.Span(ctx, "job.LoadRunnableJobs")
	defer end()
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	var jobs []sdk.Job
	if _, err := db.Select(&jobs, `
		SELECT * FROM job
		WHERE status = ANY($1)
		ORDER BY priority DESC, COALESCE(scheduled_at, created_at) ASC
	`, statusArray(sdk.RunnableJobStatuses)); err != nil {
		return nil, sdk.WrapError(err, "unable to load runnable jobs")
	}
	return jobs, nil
}

func (s *GorpStore) CountJobsByStatus(ctx context.Context, statuses ...sdk.JobStatus) (int64, error) {
	_, end := telemetry.Span(ctx, "job.CountJobsByStatus")
	defer end()
	db, err := s.db()
	if err != nil {
		return 0, err
	}
	n, err := db.SelectInt("SELECT COUNT(1) FROM job WHERE status = ANY($1)", statusArray(statuses))
	return n, sdk.WrapError(err, "unable to count jobs")
}

func (s *GorpStore) UpdateJob(ctx context.Context, j *sdk.Job) error {
	_, end := telemetry.Span(ctx, "job.UpdateJob", telemetry.Tag(telemetry.TagJobID, j.ID))
	defer end()
	db, err := s.db()
	if err != nil {
		return err
	}
	dbJob := *j
	dbJob.UpdatedAt = time.Now()
	if _, err := db.Update(&dbJob); err != nil {
		if e, ok := err.(gorp.OptimisticLockError); ok {
			if !e.RowExists {
				return sdk.WithStack(sdk.ErrNotFound)
			}
			return sdk.NewErrorFrom(sdk.ErrConflict, "job %s version %d is outdated", j.ID, e.LocalVersion)
		}
		return sdk.WrapError(err, "unable to update job %s", j.ID)
	}
	*j = dbJob
	return nil
}

func (s *GorpStore) InsertSteps(ctx context.Context, jobID string, steps []sdk.JobStep) ([]sdk.JobStep, error) {
	_, end := telemetry.Span(ctx, "job.InsertSteps", telemetry.Tag(telemetry.TagJobID, jobID))
	defer end()
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, sdk.WithStack(err)
	}
	defer tx.Rollback() // nolint

	// Lock the job row so concurrent expansions wait for each other
	if _, err := tx.SelectInt("SELECT 1 FROM job WHERE id = $1 FOR UPDATE", jobID); err != nil {
		return nil, sdk.WrapError(err, "unable to lock job %s", jobID)
	}

	existing, err := loadSteps(tx, jobID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	for i := range steps {
		st := steps[i]
		if st.ID == "" {
			st.ID = sdk.UUID()
		}
		st.JobID = jobID
		if err := tx.Insert(&st); err != nil {
			return nil, sdk.WrapError(err, "unable to insert step %d of job %s", st.Sequence, jobID)
		}
	}

	inserted, err := loadSteps(tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, sdk.WithStack(err)
	}
	return inserted, nil
}

func loadSteps(db gorp.SqlExecutor, jobID string) ([]sdk.JobStep, error) {
	var steps []sdk.JobStep
	if _, err := db.Select(&steps, "SELECT * FROM job_step WHERE job_id = $1 ORDER BY sequence", jobID); err != nil {
		return nil, sdk.WrapError(err, "unable to load steps of job %s", jobID)
	}
	return steps, nil
}

func (s *GorpStore) LoadSteps(ctx context.Context, jobID string) ([]sdk.JobStep, error) {
	_, end := telemetry.Span(ctx, "job.LoadSteps", telemetry.Tag(telemetry.TagJobID, jobID))
	defer end()
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	return loadSteps(db, jobID)
}

func (s *GorpStore) UpdateStep(ctx context.Context, st *sdk.JobStep) error {
	_, end := telemetry.Span(ctx, "job.UpdateStep", telemetry.Tag(telemetry.TagJobID, st.JobID))
	defer end()
	db, err := s.db()
	if err != nil {
		return err
	}
	n, err := db.Update(st)
	if err != nil {
		return sdk.WrapError(err, "unable to update step %s", st.ID)
	}
	if n == 0 {
		return sdk.WithStack(sdk.ErrNotFound)
	}
	return nil
}

func (s *GorpStore) AppendEvent(ctx context.Context, e *sdk.JobEvent) error {
	_, end := telemetry.Span(ctx, "job.AppendEvent", telemetry.Tag(telemetry.TagJobID, e.JobID))
	defer end()
	db, err := s.db()
	if err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	var res struct {
		ID        int64     `db:"id"`
		Timestamp time.Time `db:"timestamp"`
	}
	if err := db.SelectOne(&res, `
		INSERT INTO job_event (job_id, step_id, timestamp, level, code, message, data)
		VALUES ($1, $2, GREATEST($3::timestamptz, (SELECT MAX(timestamp) FROM job_event WHERE job_id = $1)), $4, $5, $6, $7)
		RETURNING id, timestamp
	`, e.JobID, e.StepID, e.Timestamp, e.Level, e.Code, e.Message, e.Data); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return sdk.WithStack(sdk.ErrNotFound)
		}
		return sdk.WrapError(err, "unable to insert event for job %s", e.JobID)
	}
	e.ID = res.ID
	e.Timestamp = res.Timestamp
	return nil
}

func (s *GorpStore) LoadEvents(ctx context.Context, jobID string, limit int) ([]sdk.JobEvent, error) {
	_, end := telemetry.Span(ctx, "job.LoadEvents", telemetry.Tag(telemetry.TagJobID, jobID))
	defer end()
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	query := "SELECT * FROM job_event WHERE job_id = $1 ORDER BY timestamp DESC, id DESC"
	args := []interface{}{jobID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	var events []sdk.JobEvent
	if _, err := db.Select(&events, query, args...); err != nil {
		return nil, sdk.WrapError(err, "unable to load events of job %s", jobID)
	}
	return events, nil
}

func (s *GorpStore) UpsertHeartbeat(ctx context.Context, hb sdk.WorkerHeartbeat) error {
	_, end := telemetry.Span(ctx, "job.UpsertHeartbeat")
	defer end()
	db, err := s.db()
	if err != nil {
		return err
	}
	if _, err := db.Exec(`
		INSERT INTO worker_heartbeat (worker_id, last_seen, payload) VALUES ($1, $2, $3)
		ON CONFLICT (worker_id) DO UPDATE SET last_seen = EXCLUDED.last_seen, payload = EXCLUDED.payload
	`, hb.WorkerID, hb.LastSeen, hb.Payload); err != nil {
		return sdk.WrapError(err, "unable to upsert heartbeat of %s", hb.WorkerID)
	}
	return nil
}

func (s *GorpStore) LoadLatestHeartbeat(ctx context.Context) (*sdk.WorkerHeartbeat, error) {
	_, end := telemetry.Span(ctx, "job.LoadLatestHeartbeat")
	defer end()
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	var hb sdk.WorkerHeartbeat
	if err := db.SelectOne(&hb, "SELECT * FROM worker_heartbeat ORDER BY last_seen DESC LIMIT 1"); err != nil {
		if err == sql.ErrNoRows {
			return nil, sdk.WithStack(sdk.ErrNotFound)
		}
		return nil, sdk.WrapError(err, "unable to load latest heartbeat")
	}
	return &hb, nil
}
