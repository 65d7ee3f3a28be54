// Package schedule submits jobs on cron expressions. Several instances may
// run the same entries: an occurrence is submitted once thanks to a cache lock.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/cache"
	"github.com/hostops/hops/sdk"
	hopslog "github.com/hostops/hops/sdk/log"
)

// Entry is a recurring job submission.
type Entry struct {
	Name        string        `toml:"name" json:"name"`
	Cron        string        `toml:"cron" comment:"Cron expression, e.g. 0 2 * * 6" json:"cron"`
	Timezone    string        `toml:"timezone" default:"UTC" json:"timezone"`
	Disabled    bool          `toml:"disabled" json:"disabled"`
	Type        string        `toml:"type" json:"type"`
	TargetType  string        `toml:"targetType" json:"targetType"`
	TargetIDs   []string      `toml:"targetIds" json:"targetIds"`
	Priority    int           `toml:"priority" json:"priority"`
	SiteID      string        `toml:"siteId" json:"siteId,omitempty"`
	CreatedBy   string        `toml:"createdBy" default:"scheduler" json:"createdBy"`
	Description string        `toml:"description" json:"description,omitempty"`
	Policy      sdk.JobPolicy `toml:"policy" json:"policy"`
}

func (e Entry) submission() sdk.JobSubmission {
	createdBy := e.CreatedBy
	if createdBy == "" {
		createdBy = "scheduler"
	}
	return sdk.JobSubmission{
		Description: e.Description,
		SiteID:      e.SiteID,
		Type:        sdk.JobType(e.Type),
		Priority:    e.Priority,
		TargetIDs:   e.TargetIDs,
		TargetType:  sdk.TargetType(e.TargetType),
		Policy:      e.Policy.Normalize(),
		CreatedBy:   createdBy,
	}
}

// Submitter creates jobs.
type Submitter interface {
	Submit(ctx context.Context, s sdk.JobSubmission) (*sdk.Job, error)
}

type entry struct {
	Entry
	expr *cronexpr.Expression
	loc  *time.Location
	next time.Time
}

// Scheduler evaluates entries on each Tick.
type Scheduler struct {
	entries   []*entry
	submitter Submitter
	locks     cache.LockStore
	onSubmit  func()
	now       func() time.Time
	mutex     sync.Mutex
}

// New checks every enabled entry. An invalid entry is an error.
func New(entries []Entry, submitter Submitter, locks cache.LockStore) (*Scheduler, error) {
	s := &Scheduler{submitter: submitter, locks: locks, now: time.Now}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Disabled {
			continue
		}
		if e.Name == "" {
			return nil, sdk.NewErrorFrom(sdk.ErrWrongRequest, "schedule entry without name")
		}
		if _, has := names[e.Name]; has {
			return nil, sdk.NewErrorFrom(sdk.ErrWrongRequest, "duplicate schedule entry %q", e.Name)
		}
		names[e.Name] = struct{}{}

		expr, err := cronexpr.Parse(e.Cron)
		if err != nil {
			return nil, sdk.NewErrorFrom(sdk.ErrWrongRequest, "unable to parse cron expression %q of %s: %v", e.Cron, e.Name, err)
		}
		loc, err := time.LoadLocation(e.Timezone)
		if err != nil {
			return nil, sdk.NewErrorFrom(sdk.ErrWrongRequest, "unable to parse timezone %q of %s: %v", e.Timezone, e.Name, err)
		}
		if err := e.submission().IsValid(); err != nil {
			return nil, sdk.WrapError(err, "invalid schedule entry %s", e.Name)
		}
		s.entries = append(s.entries, &entry{Entry: e, expr: expr, loc: loc})
	}
	return s, nil
}

// OnSubmit sets a func called after each submission.
func (s *Scheduler) OnSubmit(f func()) {
	s.onSubmit = f
}

// Len returns the number of enabled entries.
func (s *Scheduler) Len() int {
	return len(s.entries)
}

// Run ticks every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.Tick(ctx)
		}
	}
}

// Tick submits the entries whose occurrence is reached. Missed occurrences
// are not caught up, only the latest one is submitted.
func (s *Scheduler) Tick(ctx context.Context) []sdk.Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	var res []sdk.Job
	for _, e := range s.entries {
		ctx := context.WithValue(ctx, hopslog.Schedule, e.Name)
		if e.next.IsZero() {
			e.next = e.expr.Next(now.In(e.loc))
			log.Debug(ctx, "schedule> next occurrence of %s at %s", e.Name, e.next)
			continue
		}
		if now.Before(e.next) {
			continue
		}
		occurrence := e.next
		e.next = e.expr.Next(now.In(e.loc))

		j, err := s.submit(ctx, e, occurrence)
		if err != nil {
			ctx = sdk.ContextWithStacktrace(ctx, err)
			log.Error(ctx, "schedule> unable to submit %s: %v", e.Name, err)
			continue
		}
		if j != nil {
			res = append(res, *j)
		}
	}
	if len(res) > 0 && s.onSubmit != nil {
		s.onSubmit()
	}
	return res
}

func (s *Scheduler) submit(ctx context.Context, e *entry, occurrence time.Time) (*sdk.Job, error) {
	k := cache.Key("schedule", e.Name, strconv.FormatInt(occurrence.Unix(), 10))
	locked, err := s.locks.Lock(k, 24*time.Hour, 0, 1)
	if err != nil {
		return nil, err
	}
	if !locked {
		log.Debug(ctx, "schedule> occurrence %s of %s already submitted", occurrence, e.Name)
		return nil, nil
	}

	sub := e.submission()
	sub.Name = fmt.Sprintf("%s (%s)", e.Name, occurrence.Format(time.RFC3339))
	j, err := s.submitter.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "schedule> job %s submitted for %s", j.ID, e.Name)
	return j, nil
}
