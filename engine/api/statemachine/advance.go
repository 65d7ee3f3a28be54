package statemachine

import (
	"context"
	"time"

	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/engine/api/observability"
	"github.com/hostops/hops/engine/api/policy"
	"github.com/hostops/hops/sdk"
	"github.com/hostops/hops/sdk/telemetry"
)

// Advance performs at most one transition of a job. Terminal and paused jobs
// are left untouched. A sdk.ErrConflict error means another process updated
// the job first and that nothing was written.
func (m *Machine) Advance(ctx context.Context, id string) (*sdk.Job, error) {
	ctx, end := telemetry.Span(ctx, "statemachine.Advance", telemetry.Tag(telemetry.TagJobID, id))
	defer end()

	j, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = jobContext(ctx, j)

	switch {
	case j.Status.IsTerminal(), j.Status == sdk.JobStatusPaused:
		return j, nil
	case j.Status.IsWaitingStart():
		err = m.start(ctx, j)
	default:
		err = m.advanceRunning(ctx, j)
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (m *Machine) start(ctx context.Context, j *sdk.Job) error {
	now := m.now()
	if j.ScheduledAt != nil && j.ScheduledAt.After(now) {
		return nil
	}
	if !j.IsApproved() {
		return sdk.NewErrorFrom(sdk.ErrJobNotApproved, "job %s requires an approval before it can start", j.ID)
	}

	steps := make([]sdk.JobStep, len(j.TargetIDs))
	for i, targetID := range j.TargetIDs {
		steps[i] = sdk.JobStep{
			JobID:    j.ID,
			Sequence: i + 1,
			TargetID: targetID,
			Status:   sdk.StepStatusPending,
		}
	}
	steps, err := m.store.InsertSteps(ctx, j.ID, steps)
	if err != nil {
		return sdk.WrapError(err, "unable to create steps of job %s", j.ID)
	}

	t := newTransition(j)
	j.Status = sdk.JobStatusRunning
	j.StartedAt = timePtr(now)
	j.TotalSteps = len(steps)
	refreshPosition(j, steps)
	t.event(m.event(j, nil, sdk.EventLevelInfo, "", nil, "job started with %d step(s)", len(steps)))
	if err := m.commit(ctx, t); err != nil {
		return err
	}
	log.Info(ctx, "job %s started with %d step(s)", j.ID, len(steps))
	return nil
}

func (m *Machine) advanceRunning(ctx context.Context, j *sdk.Job) error {
	steps, err := m.store.LoadSteps(ctx, j.ID)
	if err != nil {
		return sdk.WrapError(err, "unable to load steps of job %s", j.ID)
	}
	if err := checkSteps(j, steps); err != nil {
		return m.failInvariant(ctx, j, err)
	}

	if j.Policy.AbortOnError {
		if st := firstFailed(steps); st != nil {
			return m.abort(ctx, j, st)
		}
	}

	i := firstNonTerminal(steps)
	if i < 0 {
		t := newTransition(j)
		m.complete(t, j, steps)
		return m.commit(ctx, t)
	}

	st := &steps[i]
	ctx = stepContext(ctx, st)
	if st.NextAttemptAt != nil && st.NextAttemptAt.After(m.now()) {
		return nil
	}
	if st.Status == sdk.StepStatusRunning {
		return m.resumeStep(ctx, j, steps, st)
	}
	return m.dispatch(ctx, j, steps, st)
}

func firstFailed(steps []sdk.JobStep) *sdk.JobStep {
	for i := range steps {
		if steps[i].Status == sdk.StepStatusFailed {
			return &steps[i]
		}
	}
	return nil
}

// abort fails a job with abortOnError whose step failed while the job was
// paused.
func (m *Machine) abort(ctx context.Context, j *sdk.Job, st *sdk.JobStep) error {
	t := newTransition(j)
	j.Status = sdk.JobStatusFailed
	j.CompletedAt = timePtr(m.now())
	j.CurrentStep = st.Sequence
	t.statusEvent(m.event(j, st, sdk.EventLevelError, "", nil, "job failed: step %d on %s failed: %s", st.Sequence, st.TargetID, st.Error))
	log.Warn(ctx, "job %s failed: step %d failed: %s", j.ID, st.Sequence, st.Error)
	return m.commit(ctx, t)
}

// checkSteps verifies the persisted steps are consistent with the job.
func checkSteps(j *sdk.Job, steps []sdk.JobStep) error {
	if len(steps) != j.TotalSteps {
		return sdk.NewErrorFrom(sdk.ErrInvariantViolation, "job has %d step(s), %d expected", len(steps), j.TotalSteps)
	}
	if j.CurrentStep > j.TotalSteps {
		return sdk.NewErrorFrom(sdk.ErrInvariantViolation, "current step %d is beyond %d step(s)", j.CurrentStep, j.TotalSteps)
	}
	var open *sdk.JobStep
	for i := range steps {
		st := &steps[i]
		if st.Sequence != i+1 {
			return sdk.NewErrorFrom(sdk.ErrInvariantViolation, "step at position %d has sequence %d", i+1, st.Sequence)
		}
		if open != nil && st.Status != sdk.StepStatusPending {
			return sdk.NewErrorFrom(sdk.ErrInvariantViolation, "step %d is %s while step %d is %s", st.Sequence, st.Status, open.Sequence, open.Status)
		}
		if !st.Status.IsTerminal() && open == nil {
			open = st
		}
	}
	return nil
}

func (m *Machine) failInvariant(ctx context.Context, j *sdk.Job, cause error) error {
	ctx = sdk.ContextWithStacktrace(ctx, cause)
	log.Error(ctx, "job %s is inconsistent, failing it: %v", j.ID, cause)

	t := newTransition(j)
	j.Status = sdk.JobStatusFailed
	j.CompletedAt = timePtr(m.now())
	t.event(m.event(j, nil, sdk.EventLevelError, sdk.ErrorCode(cause), nil, "job failed: %v", cause))
	return m.commit(ctx, t)
}

// complete must be called once every step is terminal.
func (m *Machine) complete(t *transition, j *sdk.Job, steps []sdk.JobStep) {
	var failed, skipped int
	for _, st := range steps {
		switch st.Status {
		case sdk.StepStatusFailed:
			failed++
		case sdk.StepStatusSkipped:
			skipped++
		}
	}
	j.Status = sdk.JobStatusCompleted
	j.Progress = 100
	j.CurrentStep = j.TotalSteps
	j.CompletedAt = timePtr(m.now())
	data := sdk.JobEventData{"failed": failed, "skipped": skipped}
	level := sdk.EventLevelInfo
	if failed > 0 {
		level = sdk.EventLevelWarning
	}
	t.statusEvent(m.event(j, nil, level, "", data, "job completed: %d step(s), %d failed, %d skipped", len(steps), failed, skipped))
}

func (m *Machine) request(j *sdk.Job, st *sdk.JobStep, facts sdk.TargetFacts) executor.Request {
	return executor.Request{Job: *j, Step: *st, Target: j.Target(st.TargetID), Facts: facts}
}

// stepContext bounds an executor call by what remains of the step timeout.
func (m *Machine) stepDeadline(ctx context.Context, st *sdk.JobStep) (context.Context, context.CancelFunc) {
	remaining := m.config.StepTimeout
	if st.StartedAt != nil {
		remaining -= m.now().Sub(*st.StartedAt)
	}
	return context.WithTimeout(ctx, remaining)
}

func (m *Machine) evaluate(ctx context.Context, j *sdk.Job, st *sdk.JobStep) (sdk.TargetFacts, policy.Decision, error) {
	facts, err := m.inventory.Facts(ctx, j.Target(st.TargetID))
	if err != nil {
		return facts, policy.Decision{}, sdk.WrapError(err, "unable to get facts of %s", st.TargetID)
	}
	d := policy.Evaluate(j.Policy, policy.Propose(j.Type, facts), facts)
	decision := "allowed"
	if !d.Allowed {
		decision = string(d.Code)
	}
	observability.RecordPolicyDecision(ctx, j.Type, decision)
	return facts, d, nil
}

func (m *Machine) dispatch(ctx context.Context, j *sdk.Job, steps []sdk.JobStep, st *sdk.JobStep) error {
	facts, d, err := m.evaluate(ctx, j, st)
	if err != nil {
		st.Attempts++
		return m.handleError(ctx, j, steps, st, err)
	}
	if !d.Allowed {
		return m.denied(ctx, j, steps, st, d)
	}

	t := newTransition(j)
	st.Status = sdk.StepStatusRunning
	st.StartedAt = timePtr(m.now())
	st.Attempts++
	st.Polls = 0
	st.NextAttemptAt = nil
	st.ExternalTaskID = nil
	st.Error = ""
	refreshPosition(j, steps)
	t.step(st).event(m.event(j, st, sdk.EventLevelInfo, "", nil, "step %d started on %s (attempt %d)", st.Sequence, st.TargetID, st.Attempts))
	if err := m.commit(ctx, t); err != nil {
		return err
	}

	execCtx, cancel := m.stepDeadline(ctx, st)
	defer cancel()
	out, err := m.executor.Execute(execCtx, m.request(j, st, facts))
	return m.handleOutcome(ctx, j, steps, st, out, err)
}

func (m *Machine) denied(ctx context.Context, j *sdk.Job, steps []sdk.JobStep, st *sdk.JobStep, d policy.Decision) error {
	t := newTransition(j)
	now := m.now()
	data := sdk.JobEventData{"code": string(d.Code), "reason": d.Reason, "transient": d.Transient}
	code := sdk.ErrorCode(sdk.ErrPolicyDenied)

	switch {
	case d.Skip():
		st.Status = sdk.StepStatusSkipped
		st.Output = d.Reason
		st.CompletedAt = timePtr(now)
		refreshPosition(j, steps)
		t.step(st).event(m.event(j, st, sdk.EventLevelInfo, code, data, "step %d on %s skipped: %s", st.Sequence, st.TargetID, d.Reason))
		if firstNonTerminal(steps) < 0 {
			m.complete(t, j, steps)
		}
	case d.Transient:
		j.Status = sdk.JobStatusPaused
		t.event(m.event(j, st, sdk.EventLevelWarning, code, data, "job paused before step %d on %s: %s", st.Sequence, st.TargetID, d.Reason))
		log.Warn(ctx, "job %s paused by policy: %s", j.ID, d.Reason)
	default:
		st.Status = sdk.StepStatusFailed
		st.Error = d.Error().Error()
		st.CompletedAt = timePtr(now)
		j.Status = sdk.JobStatusFailed
		j.CompletedAt = timePtr(now)
		refreshPosition(j, steps)
		j.CurrentStep = st.Sequence
		t.step(st).event(m.event(j, st, sdk.EventLevelError, code, data, "job failed: step %d on %s denied by policy: %s", st.Sequence, st.TargetID, d.Reason))
		log.Warn(ctx, "job %s failed by policy: %s", j.ID, d.Reason)
	}
	return m.commit(ctx, t)
}

// resumeStep continues a step left running by a previous advance, possibly
// made by another process. A known external task is polled, never re-issued.
func (m *Machine) resumeStep(ctx context.Context, j *sdk.Job, steps []sdk.JobStep, st *sdk.JobStep) error {
	if st.StartedAt == nil {
		st.StartedAt = timePtr(m.now())
	}
	if elapsed := m.now().Sub(*st.StartedAt); elapsed > m.config.StepTimeout {
		m.cancelStep(ctx, j, st)
		return m.handleError(ctx, j, steps, st, sdk.NewErrorFrom(sdk.ErrTimeout, "step %d did not end within %s", st.Sequence, m.config.StepTimeout))
	}

	execCtx, cancel := m.stepDeadline(ctx, st)
	defer cancel()

	if st.ExternalTaskID != nil {
		st.Polls++
		out, err := m.executor.Poll(execCtx, m.request(j, st, sdk.TargetFacts{}))
		return m.handleOutcome(ctx, j, steps, st, out, err)
	}

	// the previous process stopped before the executor answered
	log.Warn(ctx, "step %d of job %s is running without external task, re-issuing it", st.Sequence, j.ID)
	warning := m.event(j, st, sdk.EventLevelWarning, "", nil, "step %d on %s was interrupted, re-issuing the action", st.Sequence, st.TargetID)
	facts, err := m.inventory.Facts(ctx, j.Target(st.TargetID))
	if err != nil {
		return m.handleError(ctx, j, steps, st, sdk.WrapError(err, "unable to get facts of %s", st.TargetID), warning)
	}
	out, err := m.executor.Execute(execCtx, m.request(j, st, facts))
	return m.handleOutcome(ctx, j, steps, st, out, err, warning)
}

func (m *Machine) cancelStep(ctx context.Context, j *sdk.Job, st *sdk.JobStep) {
	c, ok := m.executor.(executor.Canceller)
	if !ok || st.ExternalTaskID == nil {
		return
	}
	if err := c.Cancel(ctx, m.request(j, st, sdk.TargetFacts{})); err != nil {
		log.Warn(ctx, "unable to cancel task %s of step %d: %v", *st.ExternalTaskID, st.Sequence, err)
	}
}

func (m *Machine) pollBackoff(polls int) time.Duration {
	return sdk.Backoff(polls, m.config.PollInterval, m.config.MaxPollInterval)
}

func (m *Machine) handleOutcome(ctx context.Context, j *sdk.Job, steps []sdk.JobStep, st *sdk.JobStep, out executor.Outcome, err error, events ...sdk.JobEvent) error {
	if err != nil {
		return m.handleError(ctx, j, steps, st, err, events...)
	}

	t := newTransition(j)
	t.events = events
	now := m.now()
	st.Output = out.Output

	switch out.State {
	case executor.StateSucceeded:
		st.Status = sdk.StepStatusCompleted
		st.CompletedAt = timePtr(now)
		st.NextAttemptAt = nil
		st.Error = ""
		refreshPosition(j, steps)
		t.step(st).event(m.event(j, st, sdk.EventLevelInfo, "", nil, "step %d completed on %s", st.Sequence, st.TargetID))
		if firstNonTerminal(steps) < 0 {
			m.complete(t, j, steps)
		}

	case executor.StateInProgress:
		if out.ExternalTaskID == "" {
			return m.handleError(ctx, j, steps, st, sdk.NewErrorFrom(sdk.ErrExternalTaskFailed, "executor returned no task id for step %d", st.Sequence), events...)
		}
		if st.ExternalTaskID == nil || *st.ExternalTaskID != out.ExternalTaskID {
			id := out.ExternalTaskID
			st.ExternalTaskID = &id
			st.Polls = 0
			t.event(m.event(j, st, sdk.EventLevelInfo, "", sdk.JobEventData{"externalTaskId": id}, "step %d on %s is waiting for task %s", st.Sequence, st.TargetID, id))
		}
		st.NextAttemptAt = timePtr(now.Add(m.pollBackoff(st.Polls)))
		t.step(st)

	case executor.StateBlocked:
		if out.ExternalTaskID != "" {
			id := out.ExternalTaskID
			st.ExternalTaskID = &id
		} else {
			st.Status = sdk.StepStatusPending
			st.StartedAt = nil
			st.ExternalTaskID = nil
		}
		st.NextAttemptAt = nil
		j.Status = sdk.JobStatusPaused
		t.step(st).event(m.event(j, st, sdk.EventLevelWarning, "", sdk.JobEventData{"output": out.Output}, "job paused, step %d on %s needs an operator: %s", st.Sequence, st.TargetID, out.Output))

	default:
		return m.handleError(ctx, j, steps, st, sdk.NewErrorFrom(sdk.ErrExternalTaskFailed, "executor returned unknown state %q", out.State), events...)
	}
	return m.commitOutcome(ctx, t)
}

// handleError records a step failure. The retry hook may send the step back
// to pending, otherwise the step fails and, with abortOnError, the job too.
func (m *Machine) handleError(ctx context.Context, j *sdk.Job, steps []sdk.JobStep, st *sdk.JobStep, cause error, events ...sdk.JobEvent) error {
	t := newTransition(j)
	t.events = events
	now := m.now()
	code := sdk.ErrorCode(cause)
	st.Error = cause.Error()
	ctx = sdk.ContextWithStacktrace(ctx, cause)

	if m.retry != nil {
		if at, ok := m.retry(*j, *st, cause); ok {
			st.Status = sdk.StepStatusPending
			st.StartedAt = nil
			st.ExternalTaskID = nil
			st.Polls = 0
			st.NextAttemptAt = timePtr(at)
			refreshPosition(j, steps)
			data := sdk.JobEventData{"attempt": st.Attempts, "nextAttemptAt": at}
			t.step(st).event(m.event(j, st, sdk.EventLevelWarning, code, data, "step %d on %s failed (attempt %d), retrying at %s: %v", st.Sequence, st.TargetID, st.Attempts, at.Format(time.RFC3339), cause))
			log.Warn(ctx, "step %d of job %s failed (attempt %d): %v", st.Sequence, j.ID, st.Attempts, cause)
			return m.commitOutcome(ctx, t)
		}
	}

	st.Status = sdk.StepStatusFailed
	st.CompletedAt = timePtr(now)
	st.NextAttemptAt = nil
	refreshPosition(j, steps)
	t.step(st).event(m.event(j, st, sdk.EventLevelError, code, nil, "step %d on %s failed: %v", st.Sequence, st.TargetID, cause))
	log.Error(ctx, "step %d of job %s failed: %v", st.Sequence, j.ID, cause)

	switch {
	case j.Policy.AbortOnError:
		j.Status = sdk.JobStatusFailed
		j.CompletedAt = timePtr(now)
		j.CurrentStep = st.Sequence
		t.statusEvent(m.event(j, st, sdk.EventLevelError, code, nil, "job failed: step %d on %s failed: %v", st.Sequence, st.TargetID, cause))
	case firstNonTerminal(steps) < 0:
		m.complete(t, j, steps)
	}
	return m.commitOutcome(ctx, t)
}
