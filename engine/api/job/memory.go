package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hostops/hops/sdk"
)

// MemoryStore is an in-process Store. Values are copied in and out so callers
// never share memory with the store.
type MemoryStore struct {
	mutex      sync.RWMutex
	jobs       map[string]sdk.Job
	steps      map[string][]sdk.JobStep
	events     map[string][]sdk.JobEvent
	heartbeats map[string]sdk.WorkerHeartbeat
	eventSeq   int64
	now        func() time.Time
}

var _ Store = new(MemoryStore)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]sdk.Job),
		steps:      make(map[string][]sdk.JobStep),
		events:     make(map[string][]sdk.JobEvent),
		heartbeats: make(map[string]sdk.WorkerHeartbeat),
		now:        time.Now,
	}
}

func (s *MemoryStore) InsertJob(_ context.Context, j *sdk.Job) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if j.ID == "" {
		j.ID = sdk.UUID()
	}
	if _, has := s.jobs[j.ID]; has {
		return sdk.NewErrorFrom(sdk.ErrConflict, "job %s already exists", j.ID)
	}
	now := s.now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	j.Version = 1
	s.jobs[j.ID] = cloneJob(*j)
	return nil
}

func (s *MemoryStore) LoadJob(_ context.Context, id string) (*sdk.Job, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	j, has := s.jobs[id]
	if !has {
		return nil, sdk.WithStack(sdk.ErrNotFound)
	}
	res := cloneJob(j)
	return &res, nil
}

func (s *MemoryStore) LoadJobs(_ context.Context, f Filter) ([]sdk.Job, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	res := make([]sdk.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if len(f.Statuses) > 0 && !sdk.IsInArray(j.Status, f.Statuses) {
			continue
		}
		res = append(res, cloneJob(j))
	}
	sort.SliceStable(res, func(i, k int) bool {
		if res[i].CreatedAt.Equal(res[k].CreatedAt) {
			return res[i].ID > res[k].ID
		}
		return res[i].CreatedAt.After(res[k].CreatedAt)
	})
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (s *MemoryStore) LoadRunnableJobs(ctx context.Context) ([]sdk.Job, error) {
	res, err := s.LoadJobs(ctx, Filter{Statuses: sdk.RunnableJobStatuses})
	if err != nil {
		return nil, err
	}
	SortRunnable(res)
	return res, nil
}

// SortRunnable orders jobs by priority desc then by scheduled or creation date asc.
func SortRunnable(jobs []sdk.Job) {
	startAt := func(j sdk.Job) time.Time {
		if j.ScheduledAt != nil {
			return *j.ScheduledAt
		}
		return j.CreatedAt
	}
	sort.SliceStable(jobs, func(i, k int) bool {
		if jobs[i].Priority != jobs[k].Priority {
			return jobs[i].Priority > jobs[k].Priority
		}
		return startAt(jobs[i]).Before(startAt(jobs[k]))
	})
}

func (s *MemoryStore) CountJobsByStatus(_ context.Context, statuses ...sdk.JobStatus) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var n int64
	for _, j := range s.jobs {
		if sdk.IsInArray(j.Status, statuses) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, j *sdk.Job) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	current, has := s.jobs[j.ID]
	if !has {
		return sdk.WithStack(sdk.ErrNotFound)
	}
	if current.Version != j.Version {
		return sdk.NewErrorFrom(sdk.ErrConflict, "job %s version %d is outdated (current %d)", j.ID, j.Version, current.Version)
	}
	j.Version++
	j.UpdatedAt = s.now()
	s.jobs[j.ID] = cloneJob(*j)
	return nil
}

func (s *MemoryStore) InsertSteps(_ context.Context, jobID string, steps []sdk.JobStep) ([]sdk.JobStep, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, has := s.jobs[jobID]; !has {
		return nil, sdk.WithStack(sdk.ErrNotFound)
	}
	if len(s.steps[jobID]) == 0 {
		inserted := make([]sdk.JobStep, len(steps))
		for i := range steps {
			st := cloneStep(steps[i])
			if st.ID == "" {
				st.ID = sdk.UUID()
			}
			st.JobID = jobID
			inserted[i] = st
		}
		sort.Slice(inserted, func(i, k int) bool { return inserted[i].Sequence < inserted[k].Sequence })
		s.steps[jobID] = inserted
	}
	return s.copySteps(jobID), nil
}

func (s *MemoryStore) copySteps(jobID string) []sdk.JobStep {
	res := make([]sdk.JobStep, len(s.steps[jobID]))
	for i := range s.steps[jobID] {
		res[i] = cloneStep(s.steps[jobID][i])
	}
	return res
}

func (s *MemoryStore) LoadSteps(_ context.Context, jobID string) ([]sdk.JobStep, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.copySteps(jobID), nil
}

func (s *MemoryStore) UpdateStep(_ context.Context, st *sdk.JobStep) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	steps := s.steps[st.JobID]
	for i := range steps {
		if steps[i].ID == st.ID {
			steps[i] = cloneStep(*st)
			return nil
		}
	}
	return sdk.WithStack(sdk.ErrNotFound)
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *sdk.JobEvent) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, has := s.jobs[e.JobID]; !has {
		return sdk.WithStack(sdk.ErrNotFound)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if events := s.events[e.JobID]; len(events) > 0 {
		if last := events[len(events)-1].Timestamp; e.Timestamp.Before(last) {
			e.Timestamp = last
		}
	}
	s.eventSeq++
	e.ID = s.eventSeq
	s.events[e.JobID] = append(s.events[e.JobID], cloneEvent(*e))
	return nil
}

func (s *MemoryStore) LoadEvents(_ context.Context, jobID string, limit int) ([]sdk.JobEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	events := s.events[jobID]
	res := make([]sdk.JobEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if limit > 0 && len(res) == limit {
			break
		}
		res = append(res, cloneEvent(events[i]))
	}
	return res, nil
}

func (s *MemoryStore) UpsertHeartbeat(_ context.Context, hb sdk.WorkerHeartbeat) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.heartbeats[hb.WorkerID] = hb
	return nil
}

func (s *MemoryStore) LoadLatestHeartbeat(_ context.Context) (*sdk.WorkerHeartbeat, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var latest *sdk.WorkerHeartbeat
	for _, hb := range s.heartbeats {
		if latest == nil || hb.LastSeen.After(latest.LastSeen) {
			h := hb
			latest = &h
		}
	}
	if latest == nil {
		return nil, sdk.WithStack(sdk.ErrNotFound)
	}
	return latest, nil
}
