// Package orchestrator drives the state machine: it admits waiting jobs under
// concurrency caps and advances every runnable job on each tick.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/api/job"
	"github.com/hostops/hops/engine/api/observability"
	"github.com/hostops/hops/engine/api/statemachine"
	"github.com/hostops/hops/engine/cache"
	"github.com/hostops/hops/sdk"
	hopslog "github.com/hostops/hops/sdk/log"
	"github.com/hostops/hops/sdk/telemetry"
)

const (
	DefaultMaxRunningJobs    = 16
	DefaultTickInterval      = 2
	DefaultHeartbeatInterval = 10
)

// Configuration of the orchestrator loop, durations are in seconds.
type Configuration struct {
	WorkerID                    string                 `toml:"workerID" default:"" comment:"Identifier of this instance in heartbeats, hostname when empty" json:"workerID"`
	TickInterval                int                    `toml:"tickInterval" default:"2" json:"tickInterval"`
	HeartbeatInterval           int                    `toml:"heartbeatInterval" default:"10" json:"heartbeatInterval"`
	MaxRunningJobs              int                    `toml:"maxRunningJobs" default:"16" json:"maxRunningJobs"`
	MaxRunningJobsPerTargetType map[string]int         `toml:"maxRunningJobsPerTargetType" comment:"Per target type caps, defaults are host=4 server=8 cluster=1 vcenter=2" json:"maxRunningJobsPerTargetType,omitempty"`
	JobLockTimeout              int                    `toml:"jobLockTimeout" default:"300" comment:"TTL of the job lock, extended while an advance is in progress" json:"jobLockTimeout"`
	Retry                       RetryPolicy            `toml:"retry" json:"retry"`
	RetryPolicies               map[string]RetryPolicy `toml:"retryPolicies" comment:"Retry policies by job type, overriding retry" json:"retryPolicies,omitempty"`
}

// Orchestrator advances runnable jobs. Several instances may share a store
// and a cache: job and target locks keep them from stepping on each other.
type Orchestrator struct {
	config     Configuration
	limits     limits
	machine    *statemachine.Machine
	store      job.Store
	locks      cache.LockStore
	goRoutines *sdk.GoRoutines
	trigger     chan struct{}
	broadcaster Broadcaster
	lockTTL     time.Duration
	now         func() time.Time

	mutex    sync.Mutex
	inFlight map[string]struct{}
	lastTick time.Time
}

// New returns an orchestrator driving the given machine. It installs its retry
// policy as the machine retry hook.
func New(cfg Configuration, m *statemachine.Machine, locks cache.LockStore, goRoutines *sdk.GoRoutines) *Orchestrator {
	if cfg.WorkerID == "" {
		hostname, _ := os.Hostname()
		cfg.WorkerID = fmt.Sprintf("%s-%s", hostname, sdk.UUID()[:8])
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.JobLockTimeout <= 0 {
		cfg.JobLockTimeout = 300
	}
	o := &Orchestrator{
		config:     cfg,
		limits:     newLimits(cfg),
		machine:    m,
		store:      m.Store(),
		locks:      locks,
		goRoutines: goRoutines,
		trigger:    make(chan struct{}, 1),
		lockTTL:    time.Duration(cfg.JobLockTimeout) * time.Second,
		now:        time.Now,
		inFlight:   make(map[string]struct{}),
	}
	m.SetRetryFunc(o.retry)
	return o
}

func (o *Orchestrator) WorkerID() string {
	return o.config.WorkerID
}

// Trigger asks for a tick as soon as possible. It never blocks.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run loops until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	ctx = context.WithValue(ctx, hopslog.WorkerID, o.config.WorkerID)
	tick := time.NewTicker(time.Duration(o.config.TickInterval) * time.Second)
	defer tick.Stop()
	heartbeat := time.NewTicker(time.Duration(o.config.HeartbeatInterval) * time.Second)
	defer heartbeat.Stop()

	log.Info(ctx, "orchestrator %s started", o.config.WorkerID)
	o.heartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && err != context.Canceled {
				log.Error(ctx, "orchestrator> exiting: %v", err)
			}
			return
		case <-heartbeat.C:
			o.heartbeat(ctx)
		case <-tick.C:
			o.tick(ctx)
		case <-o.trigger:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	if err := o.Tick(ctx); err != nil {
		log.ErrorWithStackTrace(ctx, err)
	}
}

// Tick advances running jobs and admits waiting jobs within the caps.
// Advances run asynchronously.
func (o *Orchestrator) Tick(ctx context.Context) error {
	ctx, end := telemetry.Span(ctx, "orchestrator.Tick")
	defer end()
	begin := o.now()

	jobs, err := o.store.LoadRunnableJobs(ctx)
	if err != nil {
		return sdk.WrapError(err, "unable to load runnable jobs")
	}

	var running, waiting []sdk.Job
	for _, j := range jobs {
		if j.Status == sdk.JobStatusRunning {
			running = append(running, j)
		} else {
			waiting = append(waiting, j)
		}
	}

	occ := o.dispatchRunning(ctx, running)

	now := o.now()
	var queued int64
	for _, j := range waiting {
		if o.isInFlight(j.ID) {
			// admitted by a previous tick, not started yet
			occ.add(j)
			continue
		}
		if j.ScheduledAt != nil && j.ScheduledAt.After(now) {
			continue
		}
		queued++
		if !j.IsApproved() {
			continue
		}
		if reason := occ.admits(o.limits, j); reason != "" {
			log.Debug(ctx, "orchestrator> job %s is waiting: %s", j.ID, reason)
			continue
		}
		release, ok := o.admit(ctx, j)
		if !ok {
			continue
		}
		occ.add(j)
		queued--
		o.dispatch(ctx, j.ID, release)
	}

	o.mutex.Lock()
	o.lastTick = o.now()
	o.mutex.Unlock()
	observability.RecordQueue(ctx, int64(occ.running), queued, o.now().Sub(begin))
	return nil
}

// dispatchRunning advances running jobs and returns what they hold. When a
// resumed job makes them exceed the caps, jobs in the middle of a step go on
// and the others are held before their next step until they fit again.
func (o *Orchestrator) dispatchRunning(ctx context.Context, running []sdk.Job) *occupancy {
	if fits(o.limits, running) {
		for _, j := range running {
			o.dispatch(ctx, j.ID, nil)
		}
		return newOccupancy(running)
	}

	occ := newOccupancy(nil)
	var idle, held []sdk.Job
	for _, j := range running {
		if o.isInFlight(j.ID) || o.inStep(ctx, j) {
			occ.add(j)
			o.dispatch(ctx, j.ID, nil)
			continue
		}
		idle = append(idle, j)
	}
	for _, j := range idle {
		if reason := occ.admits(o.limits, j); reason != "" {
			log.Debug(ctx, "orchestrator> job %s is held before its next step: %s", j.ID, reason)
			held = append(held, j)
			continue
		}
		occ.add(j)
		o.dispatch(ctx, j.ID, nil)
	}
	// held jobs go before waiting ones
	for _, j := range held {
		occ.add(j)
	}
	return occ
}

// inStep is true if a step of the job is running.
func (o *Orchestrator) inStep(ctx context.Context, j sdk.Job) bool {
	steps, err := o.store.LoadSteps(ctx, j.ID)
	if err != nil {
		ctx = sdk.ContextWithStacktrace(ctx, err)
		log.Error(ctx, "orchestrator> unable to load steps of job %s: %v", j.ID, err)
		return true
	}
	for _, st := range steps {
		if st.Status == sdk.StepStatusRunning {
			return true
		}
	}
	return false
}

// admit locks the targets of a job then checks the caps again against the
// running jobs in the store, which may have been started by another instance.
// The returned func releases the target locks.
func (o *Orchestrator) admit(ctx context.Context, j sdk.Job) (func(), bool) {
	var keys []string
	release := func() {
		for _, k := range keys {
			if err := o.locks.Unlock(k); err != nil {
				log.Error(ctx, "orchestrator> unable to release lock %s: %v", k, err)
			}
		}
	}

	for _, id := range j.TargetIDs {
		k := cache.Key("orchestrator", "target", string(j.TargetType), id)
		locked, err := o.locks.Lock(k, o.lockTTL, 0, 1)
		if err != nil || !locked {
			if err != nil {
				log.Error(ctx, "orchestrator> unable to lock %s: %v", k, err)
			}
			log.Debug(ctx, "orchestrator> target %s/%s of job %s is locked", j.TargetType, id, j.ID)
			release()
			return nil, false
		}
		keys = append(keys, k)
	}

	running, err := o.store.LoadJobs(ctx, job.Filter{Statuses: []sdk.JobStatus{sdk.JobStatusRunning}})
	if err != nil {
		ctx = sdk.ContextWithStacktrace(ctx, err)
		log.Error(ctx, "orchestrator> unable to load running jobs: %v", err)
		release()
		return nil, false
	}
	if reason := newOccupancy(running).admits(o.limits, j); reason != "" {
		log.Debug(ctx, "orchestrator> job %s is waiting: %s", j.ID, reason)
		release()
		return nil, false
	}
	return release, true
}

func (o *Orchestrator) isInFlight(id string) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	_, has := o.inFlight[id]
	return has
}

// InFlight returns the number of advances in progress in this instance.
func (o *Orchestrator) InFlight() int {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return len(o.inFlight)
}

// dispatch advances a job in its own goroutine, unless this instance is
// already advancing it. release is called once the advance is over.
func (o *Orchestrator) dispatch(ctx context.Context, id string, release func()) {
	o.mutex.Lock()
	if _, has := o.inFlight[id]; has {
		o.mutex.Unlock()
		if release != nil {
			release()
		}
		return
	}
	o.inFlight[id] = struct{}{}
	o.mutex.Unlock()

	o.goRoutines.Exec(ctx, "orchestrator.advance-"+id, func(ctx context.Context) {
		defer func() {
			if release != nil {
				release()
			}
			o.mutex.Lock()
			delete(o.inFlight, id)
			o.mutex.Unlock()
		}()
		o.advance(ctx, id)
	})
}

func (o *Orchestrator) advance(ctx context.Context, id string) {
	ctx = context.WithValue(ctx, hopslog.JobID, id)
	k := cache.Key("orchestrator", "job", id)
	locked, err := o.locks.Lock(k, o.lockTTL, 0, 1)
	if err != nil {
		log.Error(ctx, "orchestrator> unable to lock job %s: %v", id, err)
		return
	}
	if !locked {
		log.Debug(ctx, "orchestrator> job %s is advanced by another instance", id)
		return
	}
	done := make(chan struct{})
	o.goRoutines.Exec(ctx, "orchestrator.extendLock-"+id, func(ctx context.Context) {
		o.extendLock(ctx, k, done)
	})
	defer func() {
		close(done)
		if err := o.locks.Unlock(k); err != nil {
			log.Error(ctx, "orchestrator> unable to unlock job %s: %v", id, err)
		}
	}()

	if _, err := o.machine.Advance(ctx, id); err != nil {
		switch {
		case sdk.ErrorIs(err, sdk.ErrConflict):
			log.Info(ctx, "orchestrator> job %s was updated concurrently", id)
		case sdk.ErrorIs(err, sdk.ErrJobNotApproved):
			log.Debug(ctx, "orchestrator> job %s is waiting for approval", id)
		default:
			log.ErrorWithStackTrace(ctx, err)
		}
	}
}

// extendLock keeps a job lock alive until done is closed, an executor call
// may last up to the step timeout.
func (o *Orchestrator) extendLock(ctx context.Context, key string, done <-chan struct{}) {
	tick := time.NewTicker(o.lockTTL / 3)
	defer tick.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-tick.C:
			extended, err := o.locks.Extend(key, o.lockTTL)
			switch {
			case err != nil:
				log.Error(ctx, "orchestrator> unable to extend lock %s: %v", key, err)
			case !extended:
				log.Warn(ctx, "orchestrator> lock %s expired during the advance", key)
			}
		}
	}
}

func (o *Orchestrator) heartbeat(ctx context.Context) {
	n := o.InFlight()
	hb := sdk.WorkerHeartbeat{
		WorkerID: o.config.WorkerID,
		LastSeen: o.now(),
		Payload:  sdk.WorkerHeartbeatPayload{Status: sdk.WorkerStatusIdle, InFlight: n},
	}
	if n > 0 {
		hb.Payload.Status = sdk.WorkerStatusBusy
	}
	if err := o.store.UpsertHeartbeat(ctx, hb); err != nil {
		ctx = sdk.ContextWithStacktrace(ctx, err)
		log.Error(ctx, "orchestrator> unable to upsert heartbeat: %v", err)
	}
}

// Status returns the monitoring line of the orchestrator.
func (o *Orchestrator) Status(_ context.Context) sdk.MonitoringStatusLine {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	line := sdk.MonitoringStatusLine{
		Component: "Orchestrator",
		Value:     fmt.Sprintf("%s: %d in flight", o.config.WorkerID, len(o.inFlight)),
		Status:    sdk.MonitoringStatusOK,
	}
	if o.lastTick.IsZero() || o.now().Sub(o.lastTick) > 10*time.Duration(o.config.TickInterval)*time.Second {
		line.Status = sdk.MonitoringStatusWarn
		line.Value = fmt.Sprintf("%s: no recent tick", o.config.WorkerID)
	}
	return line
}

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
