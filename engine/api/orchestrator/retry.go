package orchestrator

import (
	"time"

	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/sdk"
)

// RetryPolicy bounds the attempts of a step. Backoff doubles from
// BackoffSeconds at each attempt, up to MaxBackoffSeconds.
type RetryPolicy struct {
	MaxAttempts       int `toml:"maxAttempts" default:"3" json:"maxAttempts"`
	BackoffSeconds    int `toml:"backoffSeconds" default:"5" json:"backoffSeconds"`
	MaxBackoffSeconds int `toml:"maxBackoffSeconds" default:"300" json:"maxBackoffSeconds"`
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BackoffSeconds: 5, MaxBackoffSeconds: 300}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BackoffSeconds <= 0 {
		p.BackoffSeconds = DefaultRetryPolicy.BackoffSeconds
	}
	if p.MaxBackoffSeconds < p.BackoffSeconds {
		p.MaxBackoffSeconds = DefaultRetryPolicy.MaxBackoffSeconds
	}
	return p
}

// Backoff returns the delay before the attempt following the given one.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	return sdk.Backoff(attempts, time.Duration(p.BackoffSeconds)*time.Second, time.Duration(p.MaxBackoffSeconds)*time.Second)
}

// shouldRetry is false for errors a new attempt cannot fix, like a target
// refusing the action or an external task that reported a failure.
func shouldRetry(err error) bool {
	switch {
	case executor.IsRetryable(err):
		return true
	default:
		return sdk.ErrorIsUnknown(err)
	}
}

func (o *Orchestrator) retryPolicy(t sdk.JobType) RetryPolicy {
	if p, ok := o.config.RetryPolicies[string(t)]; ok {
		return p.withDefaults()
	}
	return o.config.Retry.withDefaults()
}

// retry is the hook given to the state machine.
func (o *Orchestrator) retry(j sdk.Job, st sdk.JobStep, err error) (time.Time, bool) {
	p := o.retryPolicy(j.Type)
	if st.Attempts >= p.MaxAttempts || !shouldRetry(err) {
		return time.Time{}, false
	}
	return o.now().Add(p.Backoff(st.Attempts)), true
}
