package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostops/hops/sdk"
)

type countingExecutor struct {
	executed, polled, cancelled int
}

func (c *countingExecutor) Execute(context.Context, Request) (Outcome, error) {
	c.executed++
	return InProgress("task-1", "started"), nil
}

func (c *countingExecutor) Poll(context.Context, Request) (Outcome, error) {
	c.polled++
	return Succeeded("done in %d polls", c.polled), nil
}

func (c *countingExecutor) Cancel(context.Context, Request) error {
	c.cancelled++
	return nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	host := &countingExecutor{}
	r.Register(host, sdk.TargetTypeHost, sdk.TargetTypeCluster)
	assert.Equal(t, []sdk.TargetType{sdk.TargetTypeHost, sdk.TargetTypeCluster}, r.TargetTypes())

	req := Request{Target: sdk.TargetRef{ID: "esxi-1", Type: sdk.TargetTypeHost}}
	out, err := r.Execute(context.TODO(), req)
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, out.State)
	assert.Equal(t, "task-1", out.ExternalTaskID)

	out, err = r.Poll(context.TODO(), req)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, "done in 1 polls", out.Output)

	require.NoError(t, r.Cancel(context.TODO(), req))
	assert.Equal(t, 1, host.cancelled)

	_, err = r.Execute(context.TODO(), Request{Target: sdk.TargetRef{ID: "srv-1", Type: sdk.TargetTypeServer}})
	require.Error(t, err)
	assert.True(t, sdk.ErrorIs(err, sdk.ErrNotImplemented))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(sdk.NewErrorFrom(sdk.ErrTargetUnreachable, "connection refused")))
	assert.True(t, IsRetryable(sdk.WrapError(sdk.ErrTimeout, "waiting task")))
	assert.False(t, IsRetryable(sdk.WithStack(sdk.ErrExternalTaskFailed)))
	assert.False(t, IsRetryable(sdk.WithStack(sdk.ErrPolicyRejectedByTarget)))
	assert.False(t, IsRetryable(nil))
}

func TestRequestExternalTaskID(t *testing.T) {
	assert.Empty(t, Request{}.ExternalTaskID())
	id := "task-7"
	assert.Equal(t, "task-7", Request{Step: sdk.JobStep{ExternalTaskID: &id}}.ExternalTaskID())
}
