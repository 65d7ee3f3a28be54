// Package statemachine owns the lifecycle of jobs: status transitions, step
// sequencing, policy checks before each step and operator actions.
//
// The machine keeps no state of its own. Every decision is taken from the
// persisted job and steps, so any process can advance any job after a restart.
package statemachine

import (
	"context"
	"fmt"
	"time"

	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/engine/api/inventory"
	"github.com/hostops/hops/engine/api/job"
	"github.com/hostops/hops/engine/api/observability"
	"github.com/hostops/hops/sdk"
	hopslog "github.com/hostops/hops/sdk/log"
)

const (
	DefaultStepTimeout     = time.Hour
	DefaultPollInterval    = time.Second
	DefaultMaxPollInterval = time.Minute
)

// Configuration of the state machine.
type Configuration struct {
	StepTimeout     time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// RetryFunc decides whether a failed step is attempted again and when.
type RetryFunc func(j sdk.Job, st sdk.JobStep, err error) (time.Time, bool)

// EventPublisher receives every appended event.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, e sdk.JobEvent)
}

// Machine advances jobs one transition at a time.
type Machine struct {
	store     job.Store
	executor  executor.Executor
	inventory inventory.Provider
	config    Configuration
	retry     RetryFunc
	publisher EventPublisher
	now       func() time.Time
}

func New(store job.Store, exec executor.Executor, inv inventory.Provider, cfg Configuration) *Machine {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = DefaultMaxPollInterval
	}
	return &Machine{
		store:     store,
		executor:  exec,
		inventory: inv,
		config:    cfg,
		now:       time.Now,
	}
}

// SetRetryFunc sets the hook called when a step fails. Without hook, a failed step is final.
func (m *Machine) SetRetryFunc(f RetryFunc) {
	m.retry = f
}

func (m *Machine) SetPublisher(p EventPublisher) {
	m.publisher = p
}

// Store returns the store the machine works on.
func (m *Machine) Store() job.Store {
	return m.store
}

func jobContext(ctx context.Context, j *sdk.Job) context.Context {
	ctx = context.WithValue(ctx, hopslog.JobID, j.ID)
	return context.WithValue(ctx, hopslog.JobType, string(j.Type))
}

func stepContext(ctx context.Context, st *sdk.JobStep) context.Context {
	ctx = context.WithValue(ctx, hopslog.StepID, st.ID)
	ctx = context.WithValue(ctx, hopslog.StepSeq, st.Sequence)
	return context.WithValue(ctx, hopslog.TargetID, st.TargetID)
}

// transition is a set of changes persisted together by commit. It must be
// created before the job is modified.
type transition struct {
	job    *sdk.Job
	from   sdk.JobStatus
	steps  []*sdk.JobStep
	events []sdk.JobEvent
	// statusEvents describe the job status change, they are written after events
	statusEvents []sdk.JobEvent
}

func newTransition(j *sdk.Job) *transition {
	return &transition{job: j, from: j.Status}
}

func (t *transition) step(st *sdk.JobStep) *transition {
	t.steps = append(t.steps, st)
	return t
}

func (t *transition) event(e sdk.JobEvent) *transition {
	t.events = append(t.events, e)
	return t
}

func (t *transition) statusEvent(e sdk.JobEvent) *transition {
	t.statusEvents = append(t.statusEvents, e)
	return t
}

// commit writes the job first: a concurrent update of the job makes the whole
// transition fail with sdk.ErrConflict before any step is written.
func (m *Machine) commit(ctx context.Context, t *transition) error {
	if err := m.store.UpdateJob(ctx, t.job); err != nil {
		return sdk.WrapError(err, "unable to update job %s", t.job.ID)
	}
	for _, st := range t.steps {
		if err := m.store.UpdateStep(ctx, st); err != nil {
			return sdk.WrapError(err, "unable to update step %d of job %s", st.Sequence, t.job.ID)
		}
		if st.Status.IsTerminal() {
			var d time.Duration
			if st.StartedAt != nil && st.CompletedAt != nil {
				d = st.CompletedAt.Sub(*st.StartedAt)
			}
			observability.RecordStepResult(ctx, t.job.Type, t.job.TargetType, st.Status, d)
		}
	}
	for i := range t.events {
		m.appendEvent(ctx, &t.events[i])
	}
	for i := range t.statusEvents {
		m.appendEvent(ctx, &t.statusEvents[i])
	}
	if t.job.Status != t.from {
		observability.RecordJobTransition(ctx, t.job.Type, t.job.Status)
	}
	return nil
}

// commitOutcome commits a transition built from an executor answer. The
// executor is not asked twice: if an operator updated the job during the
// call, the steps and their events are written on the reloaded job. A paused
// job keeps its status, a cancelled job only gets the late answer recorded.
func (m *Machine) commitOutcome(ctx context.Context, t *transition) error {
	err := m.commit(ctx, t)
	if !sdk.ErrorIs(err, sdk.ErrConflict) {
		return err
	}
	cur, err := m.load(ctx, t.job.ID)
	if err != nil {
		return err
	}
	if cur.Status == sdk.JobStatusCancelled {
		return m.lateOutcome(ctx, cur, t)
	}

	next := newTransition(cur)
	next.steps = t.steps
	next.events = t.events
	if cur.Status == t.from {
		cur.Status = t.job.Status
		cur.CompletedAt = t.job.CompletedAt
		next.statusEvents = t.statusEvents
	} else {
		log.Info(ctx, "job %s became %s during the step, recording the step only", cur.ID, cur.Status)
	}
	if t.job.Progress > cur.Progress {
		cur.Progress = t.job.Progress
	}
	cur.CurrentStep = t.job.CurrentStep
	if err := m.commit(ctx, next); err != nil {
		return err
	}
	*t.job = *cur
	return nil
}

// lateOutcome records an answer received after the job was cancelled. The
// steps are already skipped, only their task and output are kept. A task
// still running is cancelled, its id was unknown to the cancellation.
func (m *Machine) lateOutcome(ctx context.Context, j *sdk.Job, t *transition) error {
	steps, err := m.store.LoadSteps(ctx, j.ID)
	if err != nil {
		return sdk.WrapError(err, "unable to load steps of job %s", j.ID)
	}
	for _, late := range t.steps {
		for i := range steps {
			st := &steps[i]
			if st.ID != late.ID {
				continue
			}
			st.Output = late.Output
			if late.ExternalTaskID != nil {
				st.ExternalTaskID = late.ExternalTaskID
			}
			if err := m.store.UpdateStep(ctx, st); err != nil {
				return sdk.WrapError(err, "unable to update step %d of job %s", st.Sequence, j.ID)
			}
			if late.Status == sdk.StepStatusRunning {
				m.cancelStep(ctx, j, st)
			}
			e := m.event(j, st, sdk.EventLevelWarning, "", nil, "step %d on %s answered after the job was cancelled: %s", st.Sequence, st.TargetID, late.Output)
			m.appendEvent(ctx, &e)
		}
	}
	*t.job = *j
	return nil
}

// appendEvent never fails the transition, the job and steps are already persisted.
func (m *Machine) appendEvent(ctx context.Context, e *sdk.JobEvent) {
	if err := m.store.AppendEvent(ctx, e); err != nil {
		ctx = sdk.ContextWithStacktrace(ctx, err)
		log.Error(ctx, "unable to append event %q on job %s: %v", e.Message, e.JobID, err)
		return
	}
	if m.publisher != nil {
		m.publisher.PublishJobEvent(ctx, *e)
	}
}

func (m *Machine) event(j *sdk.Job, st *sdk.JobStep, level sdk.EventLevel, code string, data sdk.JobEventData, format string, args ...interface{}) sdk.JobEvent {
	e := sdk.JobEvent{
		JobID:     j.ID,
		Timestamp: m.now(),
		Level:     level,
		Code:      code,
		Message:   sprintf(format, args...),
		Data:      data,
	}
	if st != nil {
		id := st.ID
		e.StepID = &id
	}
	return e
}

func (m *Machine) load(ctx context.Context, id string) (*sdk.Job, error) {
	j, err := m.store.LoadJob(ctx, id)
	if err != nil {
		return nil, sdk.WrapError(err, "unable to load job %s", id)
	}
	return j, nil
}

// refreshPosition recomputes progress and currentStep from the steps.
func refreshPosition(j *sdk.Job, steps []sdk.JobStep) {
	if p := sdk.ComputeProgress(steps); p > j.Progress {
		j.Progress = p
	}
	if i := firstNonTerminal(steps); i >= 0 {
		j.CurrentStep = steps[i].Sequence
	} else {
		j.CurrentStep = j.TotalSteps
	}
}

func firstNonTerminal(steps []sdk.JobStep) int {
	for i := range steps {
		if !steps[i].Status.IsTerminal() {
			return i
		}
	}
	return -1
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
