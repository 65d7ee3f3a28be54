package job

import (
	"time"

	"github.com/hostops/hops/sdk"
)

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneJob(j sdk.Job) sdk.Job {
	j.TargetIDs = append(sdk.StringSlice(nil), j.TargetIDs...)
	j.ApprovedBy = cloneString(j.ApprovedBy)
	j.ScheduledAt = cloneTime(j.ScheduledAt)
	j.StartedAt = cloneTime(j.StartedAt)
	j.CompletedAt = cloneTime(j.CompletedAt)
	if j.Policy.VMLimit != nil {
		l := *j.Policy.VMLimit
		j.Policy.VMLimit = &l
	}
	j.Policy.TagFilters = append([]string(nil), j.Policy.TagFilters...)
	j.Policy.FolderFilters = append([]string(nil), j.Policy.FolderFilters...)
	if len(j.Policy.TagFilters) == 0 {
		j.Policy.TagFilters = nil
	}
	if len(j.Policy.FolderFilters) == 0 {
		j.Policy.FolderFilters = nil
	}
	return j
}

func cloneStep(s sdk.JobStep) sdk.JobStep {
	s.ExternalTaskID = cloneString(s.ExternalTaskID)
	s.StartedAt = cloneTime(s.StartedAt)
	s.CompletedAt = cloneTime(s.CompletedAt)
	s.NextAttemptAt = cloneTime(s.NextAttemptAt)
	return s
}

func cloneEvent(e sdk.JobEvent) sdk.JobEvent {
	e.StepID = cloneString(e.StepID)
	if e.Data != nil {
		data := make(sdk.JobEventData, len(e.Data))
		for k, v := range e.Data {
			data[k] = v
		}
		e.Data = data
	}
	return e
}
