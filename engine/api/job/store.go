package job

import (
	"context"

	"github.com/hostops/hops/sdk"
)

// Filter narrows LoadJobs results. A zero Limit means no limit.
type Filter struct {
	Statuses []sdk.JobStatus
	Limit    int
}

// Store persists jobs, steps, events and worker heartbeats.
//
// UpdateJob is a compare-and-set on Job.Version: it fails with sdk.ErrConflict
// when the persisted version differs, and increments the version on success.
type Store interface {
	InsertJob(ctx context.Context, j *sdk.Job) error
	LoadJob(ctx context.Context, id string) (*sdk.Job, error)
	LoadJobs(ctx context.Context, f Filter) ([]sdk.Job, error)
	// LoadRunnableJobs returns pending, scheduled and running jobs ordered by
	// priority desc then by scheduled date (or creation date) asc.
	LoadRunnableJobs(ctx context.Context) ([]sdk.Job, error)
	CountJobsByStatus(ctx context.Context, statuses ...sdk.JobStatus) (int64, error)
	UpdateJob(ctx context.Context, j *sdk.Job) error

	// InsertSteps creates the steps of a job. If the job already has steps they
	// are returned untouched.
	InsertSteps(ctx context.Context, jobID string, steps []sdk.JobStep) ([]sdk.JobStep, error)
	LoadSteps(ctx context.Context, jobID string) ([]sdk.JobStep, error)
	UpdateStep(ctx context.Context, s *sdk.JobStep) error

	// AppendEvent sets the event id. The event timestamp is clamped so that
	// timestamps of a job never decrease.
	AppendEvent(ctx context.Context, e *sdk.JobEvent) error
	// LoadEvents returns the latest events of a job, newest first.
	LoadEvents(ctx context.Context, jobID string, limit int) ([]sdk.JobEvent, error)

	UpsertHeartbeat(ctx context.Context, hb sdk.WorkerHeartbeat) error
	LoadLatestHeartbeat(ctx context.Context) (*sdk.WorkerHeartbeat, error)
}

// LoadDetails returns a job with its steps and its latest events.
func LoadDetails(ctx context.Context, s Store, id string, eventLimit int) (*sdk.JobDetails, error) {
	j, err := s.LoadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.LoadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.LoadEvents(ctx, id, eventLimit)
	if err != nil {
		return nil, err
	}
	return &sdk.JobDetails{Job: *j, Steps: steps, Events: events}, nil
}

// QueueHealth returns the number of jobs waiting to start and the latest worker heartbeat.
func QueueHealth(ctx context.Context, s Store) (sdk.QueueHealth, error) {
	depth, err := s.CountJobsByStatus(ctx, sdk.JobStatusPending, sdk.JobStatusScheduled)
	if err != nil {
		return sdk.QueueHealth{}, err
	}
	hb, err := s.LoadLatestHeartbeat(ctx)
	if err != nil && !sdk.ErrorIs(err, sdk.ErrNotFound) {
		return sdk.QueueHealth{}, err
	}
	return sdk.QueueHealth{QueueDepth: depth, LatestHeartbeat: hb}, nil
}
