package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostops/hops/sdk"
)

var jobs = []sdk.Job{
	{ID: "job-1", Name: "patch night", Type: sdk.JobTypeMaintenanceMode, Status: sdk.JobStatusRunning, TargetIDs: []string{"esxi-1"}, CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	{ID: "job-2", Name: "firmware", Type: sdk.JobTypeFirmwareUpdate, Status: sdk.JobStatusFailed},
}

func TestListItem(t *testing.T) {
	res := listItem(jobs[0], nil, false, nil, map[string]string{})
	assert.Equal(t, "job-1", res["id"])
	assert.Equal(t, "running", res["status"])
	assert.Equal(t, "", res["approved_by"])
	assert.NotContains(t, res, "TargetIDs")
	assert.NotContains(t, res, "version")

	res = listItem(&jobs[0], nil, true, nil, map[string]string{})
	assert.Equal(t, map[string]string{"key": "job-1"}, res)

	res = listItem(jobs[0], nil, false, []string{"ID", "status"}, map[string]string{})
	assert.Equal(t, map[string]string{"id": "job-1", "status": "running"}, res)

	assert.Nil(t, listItem(jobs[0], map[string]string{"status": "fail.*"}, false, nil, map[string]string{}))
	assert.NotNil(t, listItem(jobs[1], map[string]string{"status": "fail.*"}, false, nil, map[string]string{}))
}

func TestDisplayList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, displayList(&buf, AsListResult(jobs), "table", false, map[string]string{"type": "firmware_update"}, []string{"id", "type"}))
	assert.Contains(t, buf.String(), "job-2")
	assert.NotContains(t, buf.String(), "job-1")

	buf.Reset()
	require.NoError(t, displayList(&buf, AsListResult(jobs), "table", true, nil, nil))
	assert.Equal(t, "job-1\njob-2\n", buf.String())

	buf.Reset()
	require.NoError(t, displayList(&buf, ListResult{}, "table", false, nil, nil))
	assert.Equal(t, "nothing to display...\n", buf.String())
}

func TestValues(t *testing.T) {
	v := Values{"limit": {"10"}, "status": {"running||paused"}, "force": {"true"}, "bad": {"ten"}}
	i, err := v.GetInt("limit")
	require.NoError(t, err)
	assert.Equal(t, 10, i)
	_, err = v.GetInt("bad")
	assert.Error(t, err)
	assert.Equal(t, []string{"running", "paused"}, v.GetStringSlice("status"))
	assert.True(t, v.GetBool("force"))
	assert.Nil(t, v.GetStringSlice("missing"))
}
