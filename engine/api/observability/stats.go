package observability

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/hostops/hops/sdk"
)

// Tags contants
const (
	TagServiceName = "service_name"
	TagJobType     = "job_type"
	TagJobStatus   = "job_status"
	TagStepStatus  = "step_status"
	TagTargetType  = "target_type"
	TagDecision    = "decision"
)

var (
	keyJobType    = MustNewKey(TagJobType)
	keyJobStatus  = MustNewKey(TagJobStatus)
	keyStepStatus = MustNewKey(TagStepStatus)
	keyTargetType = MustNewKey(TagTargetType)
	keyDecision   = MustNewKey(TagDecision)
)

var (
	JobTransitions   = stats.Int64("hops/job_transitions", "number of job status transitions", stats.UnitDimensionless)
	StepResults      = stats.Int64("hops/step_results", "number of terminal step results", stats.UnitDimensionless)
	StepDuration     = stats.Float64("hops/step_duration", "duration of steps from dispatch to end", stats.UnitSeconds)
	PolicyDecisions  = stats.Int64("hops/policy_decisions", "number of policy evaluations", stats.UnitDimensionless)
	RunningJobs      = stats.Int64("hops/running_jobs", "number of running jobs", stats.UnitDimensionless)
	QueueDepth       = stats.Int64("hops/queue_depth", "number of jobs waiting to start", stats.UnitDimensionless)
	OrchestratorTick = stats.Float64("hops/orchestrator_tick", "duration of an orchestrator tick", stats.UnitMilliseconds)
)

// RecordJobTransition counts a job entering a status.
func RecordJobTransition(ctx context.Context, t sdk.JobType, s sdk.JobStatus) {
	record(ctx, JobTransitions.M(1), tag.Upsert(keyJobType, string(t)), tag.Upsert(keyJobStatus, string(s)))
}

// RecordStepResult counts a step reaching a terminal status and its duration.
func RecordStepResult(ctx context.Context, t sdk.JobType, target sdk.TargetType, s sdk.StepStatus, d time.Duration) {
	mutators := []tag.Mutator{tag.Upsert(keyJobType, string(t)), tag.Upsert(keyTargetType, string(target)), tag.Upsert(keyStepStatus, string(s))}
	record(ctx, StepResults.M(1), mutators...)
	if d > 0 {
		record(ctx, StepDuration.M(d.Seconds()), mutators...)
	}
}

// RecordPolicyDecision counts a policy evaluation, decision is "allowed" or a deny code.
func RecordPolicyDecision(ctx context.Context, t sdk.JobType, decision string) {
	record(ctx, PolicyDecisions.M(1), tag.Upsert(keyJobType, string(t)), tag.Upsert(keyDecision, decision))
}

// RecordQueue records the gauges computed at each orchestrator tick.
func RecordQueue(ctx context.Context, running, waiting int64, tick time.Duration) {
	record(ctx, RunningJobs.M(running))
	record(ctx, QueueDepth.M(waiting))
	record(ctx, OrchestratorTick.M(float64(tick)/float64(time.Millisecond)))
}

func record(ctx context.Context, m stats.Measurement, mutators ...tag.Mutator) {
	if len(mutators) > 0 {
		var err error
		ctx, err = tag.New(ctx, mutators...)
		if err != nil {
			return
		}
	}
	stats.Record(ctx, m)
}

func views() []*view.View {
	return []*view.View{
		NewViewCount("hops/job_transitions_count", JobTransitions, []tag.Key{keyJobType, keyJobStatus}),
		NewViewCount("hops/step_results_count", StepResults, []tag.Key{keyJobType, keyTargetType, keyStepStatus}),
		NewViewDistribution("hops/step_duration_seconds", StepDuration, []tag.Key{keyJobType, keyTargetType}, 1, 10, 60, 300, 900, 1800, 3600),
		NewViewCount("hops/policy_decisions_count", PolicyDecisions, []tag.Key{keyJobType, keyDecision}),
		NewViewLast("hops/running_jobs", RunningJobs, nil),
		NewViewLast("hops/queue_depth", QueueDepth, nil),
		NewViewDistribution("hops/orchestrator_tick_milliseconds", OrchestratorTick, nil, 1, 10, 50, 100, 500, 1000, 5000),
	}
}
