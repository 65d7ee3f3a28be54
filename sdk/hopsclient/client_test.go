package hopsclient

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/hostops/hops/sdk"
)

func newTestClient(t *testing.T) Interface {
	c := New(Config{Host: "http://hops.api/", Retry: 1})
	gock.InterceptClient(c.HTTPClient())
	t.Cleanup(gock.Off)
	return c
}

func TestJobSubmit(t *testing.T) {
	c := newTestClient(t)

	gock.New("http://hops.api").Post("/job").
		MatchHeader(RequestedWithHeader, RequestedWithValue).
		MatchType("json").
		Reply(http.StatusCreated).
		JSON(sdk.Job{ID: "job-1", Status: sdk.JobStatusPending})

	j, err := c.JobSubmit(context.TODO(), sdk.JobSubmission{Type: sdk.JobTypeMaintenanceMode})
	require.NoError(t, err)
	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, sdk.JobStatusPending, j.Status)
	assert.True(t, gock.IsDone())
}

func TestJobList(t *testing.T) {
	c := newTestClient(t)

	gock.New("http://hops.api").Get("/job").
		MatchParam("limit", "10").
		MatchParam("status", "running").
		Reply(http.StatusOK).
		JSON([]sdk.Job{{ID: "job-2"}, {ID: "job-1"}})

	jobs, err := c.JobList(context.TODO(), 10, sdk.JobStatusRunning)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.True(t, gock.IsDone())
}

func TestJobActionError(t *testing.T) {
	c := newTestClient(t)

	gock.New("http://hops.api").Post("/job/job-1/approve").
		Reply(http.StatusConflict).
		JSON(sdk.ExtractHTTPError(sdk.ErrJobAlreadyApproved))

	_, err := c.JobApprove(context.TODO(), "job-1", "bob")
	require.Error(t, err)
	assert.True(t, sdk.ErrorIs(err, sdk.ErrJobAlreadyApproved))
	assert.True(t, gock.IsDone())
}

func TestRequestRetriesServerErrors(t *testing.T) {
	c := newTestClient(t)

	gock.New("http://hops.api").Get("/mon/health").Reply(http.StatusBadGateway)
	gock.New("http://hops.api").Get("/mon/health").
		Reply(http.StatusOK).
		JSON(sdk.QueueHealth{QueueDepth: 3})

	h, err := c.MonHealth(context.TODO())
	require.NoError(t, err)
	assert.EqualValues(t, 3, h.QueueDepth)
	assert.True(t, gock.IsDone())
}

func TestVCenterSync(t *testing.T) {
	c := newTestClient(t)

	gock.New("http://hops.api").Post("/vcenter/vc-1/sync").
		JSON(sdk.JobActionRequest{By: "alice"}).
		Reply(http.StatusCreated).
		JSON(sdk.Job{ID: "job-3", Type: sdk.JobTypeInventorySync, TargetType: sdk.TargetTypeVCenter})

	j, err := c.VCenterSync(context.TODO(), "vc-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, sdk.JobTypeInventorySync, j.Type)
	assert.True(t, gock.IsDone())
}

func TestAdminMaintenance(t *testing.T) {
	c := newTestClient(t)

	gock.New("http://hops.api").Post("/admin/maintenance").
		MatchParam("enable", "true").
		Reply(http.StatusOK).
		JSON(map[string]bool{"enabled": true})
	gock.New("http://hops.api").Get("/admin/maintenance").
		Reply(http.StatusOK).
		JSON(map[string]bool{"enabled": true})

	require.NoError(t, c.AdminSetMaintenance(context.TODO(), true))
	enabled, err := c.AdminMaintenance(context.TODO())
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.True(t, gock.IsDone())
}
