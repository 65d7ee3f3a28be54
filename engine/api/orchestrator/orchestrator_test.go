package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rockbears/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/engine/api/inventory"
	"github.com/hostops/hops/engine/api/job"
	"github.com/hostops/hops/engine/api/statemachine"
	"github.com/hostops/hops/engine/cache"
	"github.com/hostops/hops/sdk"
)

type asyncExecutor struct{}

func (asyncExecutor) Execute(_ context.Context, req executor.Request) (executor.Outcome, error) {
	return executor.InProgress("task-"+req.Step.TargetID, "started"), nil
}

func (asyncExecutor) Poll(_ context.Context, req executor.Request) (executor.Outcome, error) {
	return executor.InProgress(req.ExternalTaskID(), "running"), nil
}

type fixture struct {
	orchestrator *Orchestrator
	machine      *statemachine.Machine
	store        *job.MemoryStore
	locks        *cache.LocalStore
}

func newFixture(t *testing.T, cfg Configuration) *fixture {
	return newFixtureWith(t, cfg, asyncExecutor{})
}

func newFixtureWith(t *testing.T, cfg Configuration, exec executor.Executor) *fixture {
	log.Factory = log.NewTestingWrapper(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var targets []inventory.StaticTarget
	for i := 1; i <= 3; i++ {
		targets = append(targets, inventory.StaticTarget{ID: fmt.Sprintf("esxi-%d", i), Type: "host", DRSEnabled: true, SupportsGracefulShutdown: true})
	}
	f := &fixture{store: job.NewMemoryStore(), locks: cache.NewLocalStore(0)}
	f.machine = statemachine.New(f.store, exec, inventory.NewStatic(targets...), statemachine.Configuration{})
	cfg.WorkerID = "worker-test"
	f.orchestrator = New(cfg, f.machine, f.locks, sdk.NewGoRoutines(ctx))
	return f
}

func (f *fixture) submit(t *testing.T, priority int, policy sdk.JobPolicy, targets ...string) string {
	j, err := f.machine.Submit(context.TODO(), sdk.JobSubmission{
		Type:       sdk.JobTypeMaintenanceMode,
		TargetType: sdk.TargetTypeHost,
		TargetIDs:  targets,
		Priority:   priority,
		Policy:     policy,
		CreatedBy:  "alice",
	})
	require.NoError(t, err)
	return j.ID
}

func (f *fixture) tick(t *testing.T) {
	require.NoError(t, f.orchestrator.Tick(context.TODO()))
	require.Eventually(t, func() bool { return f.orchestrator.InFlight() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func (f *fixture) status(t *testing.T, id string) sdk.JobStatus {
	j, err := f.store.LoadJob(context.TODO(), id)
	require.NoError(t, err)
	return j.Status
}

func TestTickSharedTarget(t *testing.T) {
	f := newFixture(t, Configuration{})
	a := f.submit(t, 3, sdk.JobPolicy{}, "esxi-1")
	b := f.submit(t, 2, sdk.JobPolicy{}, "esxi-1", "esxi-3")
	c := f.submit(t, 1, sdk.JobPolicy{}, "esxi-2")

	f.tick(t)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, a))
	assert.Equal(t, sdk.JobStatusPending, f.status(t, b))
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, c))

	// running jobs go on, b still waits for esxi-1
	f.tick(t)
	assert.Equal(t, sdk.JobStatusPending, f.status(t, b))
	steps, err := f.store.LoadSteps(context.TODO(), a)
	require.NoError(t, err)
	require.NotNil(t, steps[0].ExternalTaskID)
	assert.Equal(t, "task-esxi-1", *steps[0].ExternalTaskID)

	_, err = f.machine.Cancel(context.TODO(), a, "bob")
	require.NoError(t, err)
	f.tick(t)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, b))
}

func TestTickTargetTypeCap(t *testing.T) {
	f := newFixture(t, Configuration{MaxRunningJobsPerTargetType: map[string]int{"host": 1}})
	a := f.submit(t, 2, sdk.JobPolicy{}, "esxi-1")
	b := f.submit(t, 1, sdk.JobPolicy{}, "esxi-2")

	f.tick(t)
	f.tick(t)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, a))
	assert.Equal(t, sdk.JobStatusPending, f.status(t, b))
}

func TestTickGlobalCap(t *testing.T) {
	f := newFixture(t, Configuration{MaxRunningJobs: 1})
	a := f.submit(t, 2, sdk.JobPolicy{}, "esxi-1")
	b := f.submit(t, 1, sdk.JobPolicy{}, "esxi-2")

	f.tick(t)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, a))
	assert.Equal(t, sdk.JobStatusPending, f.status(t, b))
}

func TestTickTargetLockedByAnotherInstance(t *testing.T) {
	f := newFixture(t, Configuration{})
	a := f.submit(t, 2, sdk.JobPolicy{}, "esxi-1")
	b := f.submit(t, 1, sdk.JobPolicy{}, "esxi-2")

	locked, err := f.locks.Lock(cache.Key("orchestrator", "target", "host", "esxi-2"), time.Minute, 0, 1)
	require.NoError(t, err)
	require.True(t, locked)

	f.tick(t)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, a))
	assert.Equal(t, sdk.JobStatusPending, f.status(t, b))

	// locks taken for admission are released
	has, err := f.locks.Exist(cache.Key("orchestrator", "target", "host", "esxi-1"))
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, f.locks.Unlock(cache.Key("orchestrator", "target", "host", "esxi-2")))
	f.tick(t)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, b))
}

func TestTickJobLockedByAnotherInstance(t *testing.T) {
	f := newFixture(t, Configuration{})
	a := f.submit(t, 1, sdk.JobPolicy{}, "esxi-1")

	locked, err := f.locks.Lock(cache.Key("orchestrator", "job", a), time.Minute, 0, 1)
	require.NoError(t, err)
	require.True(t, locked)

	f.tick(t)
	assert.Equal(t, sdk.JobStatusPending, f.status(t, a))
}

func TestTickWaitsForApproval(t *testing.T) {
	f := newFixture(t, Configuration{})
	a := f.submit(t, 1, sdk.JobPolicy{RequireApproval: true}, "esxi-1")

	f.tick(t)
	assert.Equal(t, sdk.JobStatusPending, f.status(t, a))

	_, err := f.machine.Approve(context.TODO(), a, "bob")
	require.NoError(t, err)
	f.tick(t)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, a))
}

func TestRun(t *testing.T) {
	f := newFixture(t, Configuration{TickInterval: 60})
	a := f.submit(t, 1, sdk.JobPolicy{}, "esxi-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.orchestrator.Run(ctx)
		close(done)
	}()

	f.orchestrator.Trigger()
	assert.Eventually(t, func() bool {
		j, err := f.store.LoadJob(context.TODO(), a)
		return err == nil && j.Status == sdk.JobStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not stop")
	}

	hb, err := f.store.LoadLatestHeartbeat(context.TODO())
	require.NoError(t, err)
	require.NotNil(t, hb)
	assert.Equal(t, "worker-test", hb.WorkerID)
}

func TestHeartbeatAndStatus(t *testing.T) {
	f := newFixture(t, Configuration{})
	assert.Equal(t, sdk.MonitoringStatusWarn, f.orchestrator.Status(context.TODO()).Status)

	f.orchestrator.heartbeat(context.TODO())
	hb, err := f.store.LoadLatestHeartbeat(context.TODO())
	require.NoError(t, err)
	require.NotNil(t, hb)
	assert.Equal(t, sdk.WorkerStatusIdle, hb.Payload.Status)

	f.tick(t)
	assert.Equal(t, sdk.MonitoringStatusOK, f.orchestrator.Status(context.TODO()).Status)
}

func TestRetry(t *testing.T) {
	f := newFixture(t, Configuration{RetryPolicies: map[string]RetryPolicy{"power_cycle": {MaxAttempts: 1}}})
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f.orchestrator.now = func() time.Time { return now }

	mm := sdk.Job{Type: sdk.JobTypeMaintenanceMode}
	unreachable := sdk.NewErrorFrom(sdk.ErrTargetUnreachable, "no route to host")

	at, ok := f.orchestrator.retry(mm, sdk.JobStep{Attempts: 1}, unreachable)
	assert.True(t, ok)
	assert.Equal(t, now.Add(5*time.Second), at)

	at, ok = f.orchestrator.retry(mm, sdk.JobStep{Attempts: 2}, fmt.Errorf("connection reset"))
	assert.True(t, ok)
	assert.Equal(t, now.Add(10*time.Second), at)

	_, ok = f.orchestrator.retry(mm, sdk.JobStep{Attempts: 3}, unreachable)
	assert.False(t, ok)

	_, ok = f.orchestrator.retry(mm, sdk.JobStep{Attempts: 1}, sdk.NewErrorFrom(sdk.ErrPolicyRejectedByTarget, "refused"))
	assert.False(t, ok)

	// the task ran and reported a failure, running it again is not safe
	_, ok = f.orchestrator.retry(mm, sdk.JobStep{Attempts: 1}, sdk.NewErrorFrom(sdk.ErrExternalTaskFailed, "task failed"))
	assert.False(t, ok)

	_, ok = f.orchestrator.retry(sdk.Job{Type: sdk.JobTypePowerCycle}, sdk.JobStep{Attempts: 1}, unreachable)
	assert.False(t, ok)
}

func TestBackoff(t *testing.T) {
	p := DefaultRetryPolicy
	assert.Equal(t, 5*time.Second, p.Backoff(1))
	assert.Equal(t, 10*time.Second, p.Backoff(2))
	assert.Equal(t, 20*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Minute, p.Backoff(12))
}

func TestOccupancy(t *testing.T) {
	l := newLimits(Configuration{MaxRunningJobs: 3, MaxRunningJobsPerTargetType: map[string]int{"cluster": 2}})
	assert.Equal(t, 4, l.perType[sdk.TargetTypeHost])
	assert.Equal(t, 2, l.perType[sdk.TargetTypeCluster])

	occ := newOccupancy([]sdk.Job{
		{ID: "a", TargetType: sdk.TargetTypeCluster, TargetIDs: sdk.StringSlice{"c1"}},
		{ID: "b", TargetType: sdk.TargetTypeCluster, TargetIDs: sdk.StringSlice{"c2"}},
	})
	assert.Contains(t, occ.admits(l, sdk.Job{ID: "c", TargetType: sdk.TargetTypeCluster, TargetIDs: sdk.StringSlice{"c3"}}), "running cluster job(s)")
	assert.Empty(t, occ.admits(l, sdk.Job{ID: "d", TargetType: sdk.TargetTypeHost, TargetIDs: sdk.StringSlice{"c1"}}))

	occ.add(sdk.Job{ID: "e", TargetType: sdk.TargetTypeHost, TargetIDs: sdk.StringSlice{"h1"}})
	assert.Contains(t, occ.admits(l, sdk.Job{ID: "f", TargetType: sdk.TargetTypeServer, TargetIDs: sdk.StringSlice{"s1"}}), "max is 3")
}

// stallingExecutor blocks every call on a target until it is released.
type stallingExecutor struct {
	target  string
	started chan struct{}
	release chan struct{}
	outcome executor.Outcome
	once    sync.Once
}

func newStallingExecutor(target string, outcome executor.Outcome) *stallingExecutor {
	return &stallingExecutor{target: target, started: make(chan struct{}), release: make(chan struct{}), outcome: outcome}
}

func (s *stallingExecutor) Execute(ctx context.Context, req executor.Request) (executor.Outcome, error) {
	if req.Step.TargetID != s.target {
		return executor.Succeeded("done"), nil
	}
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return s.outcome, nil
	case <-ctx.Done():
		return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrTimeout, "cancelled")
	}
}

func (s *stallingExecutor) Poll(context.Context, executor.Request) (executor.Outcome, error) {
	return executor.Succeeded("done"), nil
}

func waitStarted(t *testing.T, exec *stallingExecutor) {
	select {
	case <-exec.started:
	case <-time.After(5 * time.Second):
		t.Fatal("step was not executed")
	}
}

func TestStalledJobDoesNotBlockOthers(t *testing.T) {
	exec := newStallingExecutor("esxi-1", executor.Succeeded("done"))
	f := newFixtureWith(t, Configuration{}, exec)
	a := f.submit(t, 2, sdk.JobPolicy{}, "esxi-1")
	b := f.submit(t, 1, sdk.JobPolicy{}, "esxi-2")

	f.tick(t)
	require.NoError(t, f.orchestrator.Tick(context.TODO()))
	waitStarted(t, exec)

	assert.Eventually(t, func() bool {
		assert.NoError(t, f.orchestrator.Tick(context.TODO()))
		return f.status(t, b) == sdk.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, a))
	assert.Eventually(t, func() bool { return f.orchestrator.InFlight() == 1 }, 5*time.Second, 10*time.Millisecond)

	close(exec.release)
	assert.Eventually(t, func() bool {
		assert.NoError(t, f.orchestrator.Tick(context.TODO()))
		return f.status(t, a) == sdk.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestPauseWhileStepInFlight(t *testing.T) {
	exec := newStallingExecutor("esxi-1", executor.InProgress("task-42", "entering maintenance"))
	f := newFixtureWith(t, Configuration{}, exec)
	a := f.submit(t, 1, sdk.JobPolicy{}, "esxi-1")

	f.tick(t)
	require.NoError(t, f.orchestrator.Tick(context.TODO()))
	waitStarted(t, exec)

	_, err := f.machine.Pause(context.TODO(), a, "bob")
	require.NoError(t, err)
	close(exec.release)
	require.Eventually(t, func() bool { return f.orchestrator.InFlight() == 0 }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, sdk.JobStatusPaused, f.status(t, a))
	steps, err := f.store.LoadSteps(context.TODO(), a)
	require.NoError(t, err)
	assert.Equal(t, sdk.StepStatusRunning, steps[0].Status)
	require.NotNil(t, steps[0].ExternalTaskID)
	assert.Equal(t, "task-42", *steps[0].ExternalTaskID)
}

func TestJobLockExtended(t *testing.T) {
	exec := newStallingExecutor("esxi-1", executor.Succeeded("done"))
	f := newFixtureWith(t, Configuration{}, exec)
	f.orchestrator.lockTTL = 150 * time.Millisecond
	a := f.submit(t, 1, sdk.JobPolicy{}, "esxi-1")

	f.tick(t)
	require.NoError(t, f.orchestrator.Tick(context.TODO()))
	waitStarted(t, exec)

	// the advance outlives the lock ttl
	time.Sleep(500 * time.Millisecond)
	key := cache.Key("orchestrator", "job", a)
	has, err := f.locks.Exist(key)
	require.NoError(t, err)
	assert.True(t, has)

	close(exec.release)
	require.Eventually(t, func() bool { return f.orchestrator.InFlight() == 0 }, 5*time.Second, 10*time.Millisecond)
	has, err = f.locks.Exist(key)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestResumedJobRespectsCaps(t *testing.T) {
	f := newFixture(t, Configuration{MaxRunningJobs: 1})
	a := f.submit(t, 1, sdk.JobPolicy{}, "esxi-1")
	f.tick(t)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, a))

	// a paused job frees its slot
	_, err := f.machine.Pause(context.TODO(), a, "bob")
	require.NoError(t, err)
	b := f.submit(t, 1, sdk.JobPolicy{}, "esxi-2")
	f.tick(t)
	f.tick(t)
	assert.Equal(t, sdk.JobStatusRunning, f.status(t, b))

	_, err = f.machine.Resume(context.TODO(), a, "bob")
	require.NoError(t, err)
	f.tick(t)
	f.tick(t)
	steps, err := f.store.LoadSteps(context.TODO(), a)
	require.NoError(t, err)
	assert.Equal(t, sdk.StepStatusPending, steps[0].Status, "a resumed job waits for a free slot")

	c := f.submit(t, 5, sdk.JobPolicy{}, "esxi-3")
	f.tick(t)
	assert.Equal(t, sdk.JobStatusPending, f.status(t, c), "a held job goes first")

	_, err = f.machine.Cancel(context.TODO(), b, "bob")
	require.NoError(t, err)
	f.tick(t)
	steps, err = f.store.LoadSteps(context.TODO(), a)
	require.NoError(t, err)
	assert.Equal(t, sdk.StepStatusRunning, steps[0].Status)
	assert.Equal(t, sdk.JobStatusPending, f.status(t, c))
}

func TestFits(t *testing.T) {
	l := newLimits(Configuration{MaxRunningJobs: 2})
	a := sdk.Job{ID: "a", TargetType: sdk.TargetTypeHost, TargetIDs: sdk.StringSlice{"h1"}}
	b := sdk.Job{ID: "b", TargetType: sdk.TargetTypeHost, TargetIDs: sdk.StringSlice{"h2"}}
	c := sdk.Job{ID: "c", TargetType: sdk.TargetTypeHost, TargetIDs: sdk.StringSlice{"h1"}}
	assert.True(t, fits(l, []sdk.Job{a, b}))
	assert.False(t, fits(l, []sdk.Job{a, c}))
	assert.False(t, fits(newLimits(Configuration{MaxRunningJobs: 1}), []sdk.Job{a, b}))
}

func TestBroadcast(t *testing.T) {
	f := newFixture(t, Configuration{})
	other := New(Configuration{WorkerID: "worker-other"}, f.machine, f.locks, sdk.NewGoRoutines(context.TODO()))
	other.SetBroadcaster(f.locks)
	f.orchestrator.SetBroadcaster(f.locks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		other.ListenTriggers(ctx)
		close(done)
	}()
	// the subscription is registered asynchronously
	require.Eventually(t, func() bool {
		f.orchestrator.Broadcast(context.TODO(), "job-1")
		return len(other.trigger) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, f.orchestrator.trigger, 1)

	// an instance ignores its own triggers
	time.Sleep(100 * time.Millisecond)
	select {
	case <-other.trigger:
	default:
	}
	require.NoError(t, f.locks.Publish(context.TODO(), TriggerChannel, triggerMessage{WorkerID: "worker-other"}))
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, other.trigger, 0)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}
