package remote

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rockbears/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/sdk"
)

func newTestExecutor(t *testing.T) *Executor {
	log.Factory = log.NewTestingWrapper(t)
	e := New(Configuration{URL: "http://oob.local/api/", Token: "s3cr3t"})
	gock.InterceptClient(e.HTTPClient())
	t.Cleanup(gock.Off)
	return e
}

func newRequest(jobType sdk.JobType) executor.Request {
	return executor.Request{
		Job:    sdk.Job{ID: "job-1", Type: jobType, TargetType: sdk.TargetTypeServer},
		Step:   sdk.JobStep{ID: "step-1", Sequence: 1, TargetID: "srv-1"},
		Target: sdk.TargetRef{ID: "srv-1", Type: sdk.TargetTypeServer},
		Facts:  sdk.TargetFacts{PowerState: sdk.PowerStateOn, SupportsGracefulShutdown: true},
	}
}

func TestExecute(t *testing.T) {
	e := newTestExecutor(t)

	gock.New("http://oob.local").Post("/api/actions").
		MatchHeader("Authorization", "Bearer s3cr3t").
		JSON(ActionRequest{JobID: "job-1", StepID: "step-1", Type: sdk.JobTypeFirmwareUpdate, TargetID: "srv-1"}).
		Reply(http.StatusAccepted).
		JSON(Action{ID: "act-1", State: ActionStatePending})

	out, err := e.Execute(context.TODO(), newRequest(sdk.JobTypeFirmwareUpdate))
	require.NoError(t, err)
	assert.Equal(t, executor.StateInProgress, out.State)
	assert.Equal(t, "act-1", out.ExternalTaskID)
	assert.True(t, gock.IsDone())
}

func TestExecuteRejected(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.Execute(context.TODO(), newRequest(sdk.JobTypeMaintenanceMode))
	assert.True(t, sdk.ErrorIs(err, sdk.ErrPolicyRejectedByTarget))

	req := newRequest(sdk.JobTypePowerCycle)
	req.Facts.SupportsGracefulShutdown = false
	_, err = e.Execute(context.TODO(), req)
	assert.True(t, sdk.ErrorIs(err, sdk.ErrPolicyRejectedByTarget))
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		status    int
		want      sdk.Error
		retryable bool
	}{
		{http.StatusConflict, sdk.ErrPolicyRejectedByTarget, false},
		{http.StatusUnprocessableEntity, sdk.ErrPolicyRejectedByTarget, false},
		{http.StatusGatewayTimeout, sdk.ErrTimeout, true},
		{http.StatusRequestTimeout, sdk.ErrTimeout, true},
		{http.StatusServiceUnavailable, sdk.ErrTargetUnreachable, true},
		{http.StatusInternalServerError, sdk.ErrExternalTaskFailed, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			e := newTestExecutor(t)
			gock.New("http://oob.local").Post("/api/actions").Reply(tt.status).BodyString("nope")

			_, err := e.Execute(context.TODO(), newRequest(sdk.JobTypePowerCycle))
			require.Error(t, err)
			assert.True(t, sdk.ErrorIs(err, tt.want), "got %v", err)
			assert.Equal(t, tt.retryable, executor.IsRetryable(err))
		})
	}
}

func TestExecuteUnreachable(t *testing.T) {
	e := newTestExecutor(t)
	gock.New("http://oob.local").Post("/api/actions").ReplyError(errors.New("connection refused"))

	_, err := e.Execute(context.TODO(), newRequest(sdk.JobTypePowerCycle))
	require.Error(t, err)
	assert.True(t, sdk.ErrorIs(err, sdk.ErrTargetUnreachable), "got %v", err)
}

func TestCircuitBreaker(t *testing.T) {
	log.Factory = log.NewTestingWrapper(t)
	e := New(Configuration{URL: "http://oob.local/api", BreakerErrors: 2, BreakerTimeout: 60})
	gock.InterceptClient(e.HTTPClient())
	defer gock.Off()

	// endpoint errors do not open the circuit
	gock.New("http://oob.local").Post("/api/actions").Times(3).Reply(http.StatusInternalServerError)
	for i := 0; i < 3; i++ {
		_, err := e.Execute(context.TODO(), newRequest(sdk.JobTypePowerCycle))
		assert.True(t, sdk.ErrorIs(err, sdk.ErrExternalTaskFailed), "got %v", err)
	}

	gock.New("http://oob.local").Post("/api/actions").Times(2).ReplyError(errors.New("connection refused"))
	for i := 0; i < 2; i++ {
		_, err := e.Execute(context.TODO(), newRequest(sdk.JobTypePowerCycle))
		assert.True(t, sdk.ErrorIs(err, sdk.ErrTargetUnreachable), "got %v", err)
	}
	require.True(t, gock.IsDone())

	gock.New("http://oob.local").Post("/api/actions").Reply(http.StatusAccepted).JSON(Action{ID: "act-1", State: ActionStatePending})
	_, err := e.Execute(context.TODO(), newRequest(sdk.JobTypePowerCycle))
	assert.True(t, sdk.ErrorIs(err, sdk.ErrTargetUnreachable), "got %v", err)
	assert.False(t, gock.IsDone())
}

func TestPoll(t *testing.T) {
	e := newTestExecutor(t)
	req := newRequest(sdk.JobTypePowerCycle)
	id := "act-1"
	req.Step.ExternalTaskID = &id

	gock.New("http://oob.local").Get("/api/actions/act-1").Reply(http.StatusOK).JSON(Action{ID: "act-1", State: ActionStateRunning})
	out, err := e.Poll(context.TODO(), req)
	require.NoError(t, err)
	assert.Equal(t, executor.StateInProgress, out.State)

	gock.New("http://oob.local").Get("/api/actions/act-1").Reply(http.StatusOK).JSON(Action{ID: "act-1", State: ActionStateSucceeded})
	out, err = e.Poll(context.TODO(), req)
	require.NoError(t, err)
	assert.Equal(t, executor.StateSucceeded, out.State)

	gock.New("http://oob.local").Get("/api/actions/act-1").Reply(http.StatusOK).JSON(Action{ID: "act-1", State: ActionStateBlocked, Message: "bmc asks for confirmation"})
	out, err = e.Poll(context.TODO(), req)
	require.NoError(t, err)
	assert.Equal(t, executor.StateBlocked, out.State)
	assert.Equal(t, "bmc asks for confirmation", out.Output)

	gock.New("http://oob.local").Get("/api/actions/act-1").Reply(http.StatusOK).JSON(Action{ID: "act-1", State: ActionStateFailed, Message: "flash error"})
	_, err = e.Poll(context.TODO(), req)
	assert.True(t, sdk.ErrorIs(err, sdk.ErrExternalTaskFailed))

	gock.New("http://oob.local").Get("/api/actions/act-1").Reply(http.StatusNotFound)
	_, err = e.Poll(context.TODO(), req)
	assert.True(t, sdk.ErrorIs(err, sdk.ErrExternalTaskFailed))
	assert.True(t, gock.IsDone())
}

func TestCancel(t *testing.T) {
	e := newTestExecutor(t)
	req := newRequest(sdk.JobTypePowerCycle)
	require.NoError(t, e.Cancel(context.TODO(), req))

	id := "act-1"
	req.Step.ExternalTaskID = &id
	gock.New("http://oob.local").Delete("/api/actions/act-1").Reply(http.StatusNoContent)
	require.NoError(t, e.Cancel(context.TODO(), req))
	assert.True(t, gock.IsDone())
}

func TestNoEndpoint(t *testing.T) {
	e := New(Configuration{})
	_, err := e.Execute(context.TODO(), newRequest(sdk.JobTypePowerCycle))
	assert.True(t, sdk.ErrorIs(err, sdk.ErrTargetUnreachable))
}
