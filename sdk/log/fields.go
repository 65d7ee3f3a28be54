package hopslog

import (
	"context"

	"github.com/rockbears/log"
)

const (
	// If you add a field constant, don't forget to add it in the log.RegisterField below
	JobID       = log.Field("job_id")
	JobType     = log.Field("job_type")
	JobStatus   = log.Field("job_status")
	StepID      = log.Field("step_id")
	StepSeq     = log.Field("step_sequence_num")
	TargetID    = log.Field("target_id")
	TargetType  = log.Field("target_type")
	WorkerID    = log.Field("worker_id")
	VCenterID   = log.Field("vcenter_id")
	Method      = log.Field("method")
	Route       = log.Field("route")
	RequestURI  = log.Field("request_uri")
	Handler     = log.Field("handler")
	Action      = log.Field("action")
	Latency     = log.Field("latency")
	LatencyNum  = log.Field("latency_num")
	Status      = log.Field("status")
	StatusNum   = log.Field("status_num")
	Goroutine   = log.Field("goroutine")
	RequestID   = log.Field("request_id")
	Service     = log.Field("service")
	Stacktrace  = log.Field("stack_trace")
	Duration    = log.Field("duration_milliseconds_num")
	Broker      = log.Field("broker")
	Component   = log.Field("component")
	Schedule    = log.Field("schedule")
	Attempt     = log.Field("attempt_num")
	ExternalRef = log.Field("external_task_id")
)

func init() {
	log.RegisterField(
		JobID,
		JobType,
		JobStatus,
		StepID,
		StepSeq,
		TargetID,
		TargetType,
		WorkerID,
		VCenterID,
		Method,
		Route,
		RequestURI,
		Handler,
		Action,
		Latency,
		LatencyNum,
		Status,
		StatusNum,
		Goroutine,
		RequestID,
		Service,
		Stacktrace,
		Duration,
		Broker,
		Component,
		Schedule,
		Attempt,
		ExternalRef,
	)
}

func ContextValue(ctx context.Context, f log.Field) string {
	i := ctx.Value(f)
	if i != nil {
		if s, ok := i.(string); ok {
			return s
		}
	}
	return ""
}
