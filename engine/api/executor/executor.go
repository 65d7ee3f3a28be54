package executor

import (
	"context"
	"fmt"

	"github.com/hostops/hops/sdk"
)

type State string

const (
	StateSucceeded  State = "succeeded"
	StateInProgress State = "in_progress"
	// StateBlocked means the target needs a human decision before going further.
	StateBlocked State = "blocked"
)

// Request is what an executor receives for one step.
type Request struct {
	Job    sdk.Job
	Step   sdk.JobStep
	Target sdk.TargetRef
	Facts  sdk.TargetFacts
}

// ExternalTaskID returns the id of the infrastructure task started by a previous Execute.
func (r Request) ExternalTaskID() string {
	if r.Step.ExternalTaskID == nil {
		return ""
	}
	return *r.Step.ExternalTaskID
}

// Outcome is the result of Execute or Poll. ExternalTaskID is set when the
// action goes on asynchronously.
type Outcome struct {
	State          State  `json:"state"`
	Output         string `json:"output,omitempty"`
	ExternalTaskID string `json:"externalTaskId,omitempty"`
}

// Executor carries out one step on a target.
//
// Errors must carry one of sdk.ErrTargetUnreachable, sdk.ErrPolicyRejectedByTarget,
// sdk.ErrTimeout or sdk.ErrExternalTaskFailed. Any other error is handled as unknown.
type Executor interface {
	Execute(ctx context.Context, req Request) (Outcome, error)
	// Poll re-queries the state of the task identified by req.Step.ExternalTaskID.
	Poll(ctx context.Context, req Request) (Outcome, error)
}

// Canceller is implemented by executors able to abort a running task.
type Canceller interface {
	Cancel(ctx context.Context, req Request) error
}

// IsRetryable returns true for failures that may succeed on a later attempt.
func IsRetryable(err error) bool {
	return sdk.ErrorIs(err, sdk.ErrTargetUnreachable) || sdk.ErrorIs(err, sdk.ErrTimeout)
}

// Succeeded returns a succeeded outcome.
func Succeeded(format string, args ...interface{}) Outcome {
	return Outcome{State: StateSucceeded, Output: sprintf(format, args...)}
}

// InProgress returns an outcome for an asynchronous task.
func InProgress(taskID string, format string, args ...interface{}) Outcome {
	return Outcome{State: StateInProgress, ExternalTaskID: taskID, Output: sprintf(format, args...)}
}

// Blocked returns an outcome for a target waiting on an operator.
func Blocked(format string, args ...interface{}) Outcome {
	return Outcome{State: StateBlocked, Output: sprintf(format, args...)}
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
