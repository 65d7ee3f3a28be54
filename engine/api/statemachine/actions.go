package statemachine

import (
	"context"

	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/engine/api/observability"
	"github.com/hostops/hops/sdk"
	"github.com/hostops/hops/sdk/telemetry"
)

// Submit validates a submission and persists the new job.
func (m *Machine) Submit(ctx context.Context, s sdk.JobSubmission) (*sdk.Job, error) {
	ctx, end := telemetry.Span(ctx, "statemachine.Submit", telemetry.Tag(telemetry.TagJobType, string(s.Type)))
	defer end()

	s.Policy = s.Policy.Normalize()
	if err := s.IsValid(); err != nil {
		return nil, err
	}

	j := &sdk.Job{
		Name:              s.Name,
		Description:       s.Description,
		SiteID:            s.SiteID,
		Type:              s.Type,
		Status:            sdk.JobStatusPending,
		Priority:          s.Priority,
		TargetIDs:         append(sdk.StringSlice{}, s.TargetIDs...),
		TargetType:        s.TargetType,
		Policy:            s.Policy,
		CreatedBy:         s.CreatedBy,
		ServiceIdentityID: s.ServiceIdentityID,
		ScheduledAt:       s.ScheduledAt,
		TotalSteps:        len(s.TargetIDs),
	}
	if j.ScheduledAt != nil {
		j.Status = sdk.JobStatusScheduled
	}
	if j.Name == "" {
		j.Name = sprintf("%s on %d %s(s)", j.Type, len(j.TargetIDs), j.TargetType)
	}

	if err := m.store.InsertJob(ctx, j); err != nil {
		return nil, sdk.WrapError(err, "unable to insert job")
	}
	ctx = jobContext(ctx, j)
	e := m.event(j, nil, sdk.EventLevelInfo, "", sdk.JobEventData{"targets": len(j.TargetIDs)}, "job submitted by %s", j.CreatedBy)
	m.appendEvent(ctx, &e)
	observability.RecordJobTransition(ctx, j.Type, j.Status)
	log.Info(ctx, "job %s (%s) submitted by %s on %d target(s)", j.ID, j.Type, j.CreatedBy, len(j.TargetIDs))
	return j, nil
}

// Pause stops a running job after its current step.
func (m *Machine) Pause(ctx context.Context, id, by string) (*sdk.Job, error) {
	j, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = jobContext(ctx, j)
	if j.Status != sdk.JobStatusRunning {
		return nil, sdk.NewErrorFrom(sdk.ErrInvalidJobStatus, "cannot pause a %s job", j.Status)
	}
	t := newTransition(j)
	j.Status = sdk.JobStatusPaused
	t.event(m.event(j, nil, sdk.EventLevelInfo, "", sdk.JobEventData{"by": by}, "job paused by %s", by))
	if err := m.commit(ctx, t); err != nil {
		return nil, err
	}
	return j, nil
}

// Resume sets a paused job back to running. The next step waiting for a
// decision is checked again against fresh facts and a denial fails the job,
// except a filter mismatch which only skips a pending step later on.
func (m *Machine) Resume(ctx context.Context, id, by string) (*sdk.Job, error) {
	j, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = jobContext(ctx, j)
	if j.Status != sdk.JobStatusPaused {
		return nil, sdk.NewErrorFrom(sdk.ErrInvalidJobStatus, "cannot resume a %s job", j.Status)
	}

	steps, err := m.store.LoadSteps(ctx, j.ID)
	if err != nil {
		return nil, sdk.WrapError(err, "unable to load steps of job %s", j.ID)
	}

	t := newTransition(j)
	j.Status = sdk.JobStatusRunning
	if j.StartedAt == nil {
		j.StartedAt = timePtr(m.now())
	}

	if i := firstNonTerminal(steps); i >= 0 && awaitsDecision(&steps[i]) {
		st := &steps[i]
		_, d, err := m.evaluate(ctx, j, st)
		if err != nil {
			return nil, err
		}
		if !d.Allowed && !d.Skip() {
			blocked := st.Status == sdk.StepStatusRunning
			now := m.now()
			st.Status = sdk.StepStatusFailed
			st.Error = d.Error().Error()
			st.CompletedAt = timePtr(now)
			st.NextAttemptAt = nil
			j.Status = sdk.JobStatusFailed
			j.CompletedAt = timePtr(now)
			refreshPosition(j, steps)
			j.CurrentStep = st.Sequence
			data := sdk.JobEventData{"by": by, "code": string(d.Code), "reason": d.Reason}
			t.step(st).event(m.event(j, st, sdk.EventLevelError, sdk.ErrorCode(sdk.ErrPolicyDenied), data, "job failed on resume: step %d on %s denied by policy: %s", st.Sequence, st.TargetID, d.Reason))
			if err := m.commit(ctx, t); err != nil {
				return nil, err
			}
			if blocked {
				m.cancelStep(ctx, j, st)
			}
			return j, nil
		}
	}

	t.event(m.event(j, nil, sdk.EventLevelInfo, "", sdk.JobEventData{"by": by}, "job resumed by %s", by))
	if err := m.commit(ctx, t); err != nil {
		return nil, err
	}
	return j, nil
}

// awaitsDecision is true for a pending step and for a step blocked on an
// operator, which keeps its task without a next poll.
func awaitsDecision(st *sdk.JobStep) bool {
	switch st.Status {
	case sdk.StepStatusPending:
		return true
	case sdk.StepStatusRunning:
		return st.ExternalTaskID != nil && st.NextAttemptAt == nil
	}
	return false
}

// Approve records the approval required by a job policy.
func (m *Machine) Approve(ctx context.Context, id, by string) (*sdk.Job, error) {
	j, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = jobContext(ctx, j)
	if !j.Status.IsWaitingStart() && j.Status != sdk.JobStatusPaused {
		return nil, sdk.NewErrorFrom(sdk.ErrInvalidJobStatus, "cannot approve a %s job", j.Status)
	}
	if j.ApprovedBy != nil && *j.ApprovedBy != "" {
		return nil, sdk.NewErrorFrom(sdk.ErrJobAlreadyApproved, "job already approved by %s", *j.ApprovedBy)
	}
	t := newTransition(j)
	j.ApprovedBy = &by
	t.event(m.event(j, nil, sdk.EventLevelInfo, "", sdk.JobEventData{"by": by}, "job approved by %s", by))
	if err := m.commit(ctx, t); err != nil {
		return nil, err
	}
	return j, nil
}

// Cancel aborts a job. Pending steps are skipped and a running step is
// abandoned after a best effort cancellation of its external task.
func (m *Machine) Cancel(ctx context.Context, id, by string) (*sdk.Job, error) {
	j, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = jobContext(ctx, j)
	if j.Status.IsTerminal() {
		return nil, sdk.NewErrorFrom(sdk.ErrInvalidJobStatus, "cannot cancel a %s job", j.Status)
	}

	steps, err := m.store.LoadSteps(ctx, j.ID)
	if err != nil {
		return nil, sdk.WrapError(err, "unable to load steps of job %s", j.ID)
	}

	now := m.now()
	t := newTransition(j)
	j.Status = sdk.JobStatusCancelled
	j.CompletedAt = timePtr(now)

	var running *sdk.JobStep
	for i := range steps {
		st := &steps[i]
		switch st.Status {
		case sdk.StepStatusPending:
			st.Error = sprintf("cancelled by %s", by)
		case sdk.StepStatusRunning:
			running = st
			st.Error = sprintf("abandoned: cancelled by %s", by)
		default:
			continue
		}
		st.Status = sdk.StepStatusSkipped
		st.CompletedAt = timePtr(now)
		st.NextAttemptAt = nil
		t.step(st)
	}
	t.event(m.event(j, nil, sdk.EventLevelWarning, "", sdk.JobEventData{"by": by}, "job cancelled by %s", by))
	if err := m.commit(ctx, t); err != nil {
		return nil, err
	}

	if running != nil && running.ExternalTaskID != nil {
		if c, ok := m.executor.(executor.Canceller); ok {
			if err := c.Cancel(ctx, m.request(j, running, sdk.TargetFacts{})); err != nil {
				log.Warn(ctx, "unable to cancel task %s of step %d: %v", *running.ExternalTaskID, running.Sequence, err)
			}
		}
	}
	return j, nil
}
