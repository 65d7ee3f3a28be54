package orchestrator

import (
	"github.com/hostops/hops/sdk"
)

// DefaultMaxRunningJobsPerTargetType are the caps used for target types
// missing from the configuration.
var DefaultMaxRunningJobsPerTargetType = map[sdk.TargetType]int{
	sdk.TargetTypeHost:    4,
	sdk.TargetTypeServer:  8,
	sdk.TargetTypeCluster: 1,
	sdk.TargetTypeVCenter: 2,
}

type limits struct {
	max     int
	perType map[sdk.TargetType]int
}

func newLimits(cfg Configuration) limits {
	l := limits{max: cfg.MaxRunningJobs, perType: make(map[sdk.TargetType]int)}
	if l.max <= 0 {
		l.max = DefaultMaxRunningJobs
	}
	for t, n := range DefaultMaxRunningJobsPerTargetType {
		l.perType[t] = n
	}
	for t, n := range cfg.MaxRunningJobsPerTargetType {
		if n > 0 {
			l.perType[sdk.TargetType(t)] = n
		}
	}
	return l
}

// occupancy is what running jobs hold.
type occupancy struct {
	running int
	perType map[sdk.TargetType]int
	targets map[sdk.TargetRef]string
}

func newOccupancy(jobs []sdk.Job) *occupancy {
	o := &occupancy{
		perType: make(map[sdk.TargetType]int),
		targets: make(map[sdk.TargetRef]string),
	}
	for _, j := range jobs {
		o.add(j)
	}
	return o
}

func (o *occupancy) add(j sdk.Job) {
	o.running++
	o.perType[j.TargetType]++
	for _, id := range j.TargetIDs {
		o.targets[j.Target(id)] = j.ID
	}
}

// admits returns an empty string if the job can start, the reason otherwise.
func (o *occupancy) admits(l limits, j sdk.Job) string {
	if o.running >= l.max {
		return sprintf("%d running job(s), max is %d", o.running, l.max)
	}
	if max, ok := l.perType[j.TargetType]; ok && o.perType[j.TargetType] >= max {
		return sprintf("%d running %s job(s), max is %d", o.perType[j.TargetType], j.TargetType, max)
	}
	for _, id := range j.TargetIDs {
		if other, has := o.targets[j.Target(id)]; has && other != j.ID {
			return sprintf("target %s is used by job %s", j.Target(id), other)
		}
	}
	return ""
}

// fits is true if the jobs can all run together.
func fits(l limits, jobs []sdk.Job) bool {
	o := newOccupancy(nil)
	for _, j := range jobs {
		if o.admits(l, j) != "" {
			return false
		}
		o.add(j)
	}
	return true
}
