package job_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostops/hops/engine/api/job"
	"github.com/hostops/hops/sdk"
)

func newTestJob(priority int, createdAt time.Time) *sdk.Job {
	return &sdk.Job{
		Name:       "maintenance " + sdk.RandomString(6),
		Type:       sdk.JobTypeMaintenanceMode,
		Status:     sdk.JobStatusPending,
		Priority:   priority,
		TargetIDs:  sdk.StringSlice{"esxi-" + sdk.RandomString(6)},
		TargetType: sdk.TargetTypeHost,
		CreatedBy:  "alice",
		CreatedAt:  createdAt.Truncate(time.Millisecond),
		Policy:     sdk.JobPolicy{AllowVMShutdown: true},
	}
}

func indexOf(jobs []sdk.Job, id string) int {
	for i := range jobs {
		if jobs[i].ID == id {
			return i
		}
	}
	return -1
}

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, s job.Store) {
	ctx := context.TODO()

	t.Run("insert and load", func(t *testing.T) {
		j := newTestJob(0, time.Now())
		require.NoError(t, s.InsertJob(ctx, j))
		require.NotEmpty(t, j.ID)
		assert.EqualValues(t, 1, j.Version)

		res, err := s.LoadJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, j.Name, res.Name)
		assert.Equal(t, j.TargetIDs, res.TargetIDs)
		assert.True(t, res.Policy.AllowVMShutdown)

		_, err = s.LoadJob(ctx, sdk.UUID())
		assert.True(t, sdk.ErrorIs(err, sdk.ErrNotFound))
	})

	t.Run("compare and set", func(t *testing.T) {
		j := newTestJob(0, time.Now())
		require.NoError(t, s.InsertJob(ctx, j))

		first, err := s.LoadJob(ctx, j.ID)
		require.NoError(t, err)
		second, err := s.LoadJob(ctx, j.ID)
		require.NoError(t, err)

		first.Status = sdk.JobStatusRunning
		require.NoError(t, s.UpdateJob(ctx, first))
		assert.EqualValues(t, 2, first.Version)

		second.Status = sdk.JobStatusCancelled
		err = s.UpdateJob(ctx, second)
		require.Error(t, err)
		assert.True(t, sdk.ErrorIs(err, sdk.ErrConflict), "got %v", err)

		res, err := s.LoadJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, sdk.JobStatusRunning, res.Status)
		assert.EqualValues(t, 2, res.Version)
	})

	t.Run("runnable jobs order", func(t *testing.T) {
		now := time.Now()
		low := newTestJob(0, now.Add(-time.Hour))
		high := newTestJob(10, now)
		highOlder := newTestJob(10, now.Add(-time.Minute))
		done := newTestJob(20, now)
		done.Status = sdk.JobStatusCompleted
		for _, j := range []*sdk.Job{low, high, highOlder, done} {
			require.NoError(t, s.InsertJob(ctx, j))
		}

		jobs, err := s.LoadRunnableJobs(ctx)
		require.NoError(t, err)
		assert.Equal(t, -1, indexOf(jobs, done.ID))
		assert.True(t, indexOf(jobs, highOlder.ID) < indexOf(jobs, high.ID))
		assert.True(t, indexOf(jobs, high.ID) < indexOf(jobs, low.ID))

		n, err := s.CountJobsByStatus(ctx, sdk.JobStatusCompleted)
		require.NoError(t, err)
		assert.True(t, n >= 1)

		latest, err := s.LoadJobs(ctx, job.Filter{Statuses: []sdk.JobStatus{sdk.JobStatusCompleted}, Limit: 1})
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.Equal(t, sdk.JobStatusCompleted, latest[0].Status)
	})

	t.Run("steps are created once", func(t *testing.T) {
		j := newTestJob(0, time.Now())
		j.TargetIDs = sdk.StringSlice{"esxi-1", "esxi-2"}
		require.NoError(t, s.InsertJob(ctx, j))

		steps := []sdk.JobStep{
			{Sequence: 2, TargetID: "esxi-2", Status: sdk.StepStatusPending},
			{Sequence: 1, TargetID: "esxi-1", Status: sdk.StepStatusPending},
		}
		inserted, err := s.InsertSteps(ctx, j.ID, steps)
		require.NoError(t, err)
		require.Len(t, inserted, 2)
		assert.Equal(t, 1, inserted[0].Sequence)
		assert.Equal(t, "esxi-1", inserted[0].TargetID)

		again, err := s.InsertSteps(ctx, j.ID, []sdk.JobStep{{Sequence: 1, TargetID: "other", Status: sdk.StepStatusPending}})
		require.NoError(t, err)
		require.Len(t, again, 2)
		assert.Equal(t, inserted[0].ID, again[0].ID)

		taskID := "task-42"
		again[0].Status = sdk.StepStatusRunning
		again[0].ExternalTaskID = &taskID
		require.NoError(t, s.UpdateStep(ctx, &again[0]))

		loaded, err := s.LoadSteps(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, sdk.StepStatusRunning, loaded[0].Status)
		require.NotNil(t, loaded[0].ExternalTaskID)
		assert.Equal(t, "task-42", *loaded[0].ExternalTaskID)
	})

	t.Run("event timestamps never decrease", func(t *testing.T) {
		j := newTestJob(0, time.Now())
		require.NoError(t, s.InsertJob(ctx, j))

		now := time.Now().Truncate(time.Millisecond)
		first := sdk.JobEvent{JobID: j.ID, Timestamp: now, Level: sdk.EventLevelInfo, Message: "first"}
		require.NoError(t, s.AppendEvent(ctx, &first))
		late := sdk.JobEvent{JobID: j.ID, Timestamp: now.Add(-time.Hour), Level: sdk.EventLevelWarning, Code: "policy_denied", Message: "second", Data: sdk.JobEventData{"vms": "3"}}
		require.NoError(t, s.AppendEvent(ctx, &late))
		assert.True(t, late.ID > first.ID)
		assert.False(t, late.Timestamp.Before(first.Timestamp))

		events, err := s.LoadEvents(ctx, j.ID, 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "second", events[0].Message)
		assert.Equal(t, "policy_denied", events[0].Code)
		assert.Equal(t, "3", events[0].Data["vms"])

		events, err = s.LoadEvents(ctx, j.ID, 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "second", events[0].Message)

		details, err := job.LoadDetails(ctx, s, j.ID, 200)
		require.NoError(t, err)
		assert.Equal(t, j.ID, details.ID)
		assert.Len(t, details.Events, 2)
	})

	t.Run("heartbeats", func(t *testing.T) {
		worker := "worker-" + sdk.RandomString(6)
		require.NoError(t, s.UpsertHeartbeat(ctx, sdk.WorkerHeartbeat{WorkerID: worker, LastSeen: time.Now().Add(time.Hour), Payload: sdk.WorkerHeartbeatPayload{Status: sdk.WorkerStatusIdle}}))
		require.NoError(t, s.UpsertHeartbeat(ctx, sdk.WorkerHeartbeat{WorkerID: worker, LastSeen: time.Now().Add(2 * time.Hour), Payload: sdk.WorkerHeartbeatPayload{Status: sdk.WorkerStatusBusy, InFlight: 2}}))

		hb, err := s.LoadLatestHeartbeat(ctx)
		require.NoError(t, err)
		assert.Equal(t, worker, hb.WorkerID)
		assert.Equal(t, sdk.WorkerStatusBusy, hb.Payload.Status)
		assert.Equal(t, 2, hb.Payload.InFlight)

		health, err := job.QueueHealth(ctx, s)
		require.NoError(t, err)
		require.NotNil(t, health.LatestHeartbeat)
		assert.True(t, health.QueueDepth > 0)
	})
}
