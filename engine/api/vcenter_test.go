package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostops/hops/sdk"
)

func TestGetVCentersHandler(t *testing.T) {
	api := newTestAPI(t)

	rec := api.request(t, http.MethodGet, "/vcenter", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "s3cr3t")
	assert.NotContains(t, rec.Body.String(), "administrator")

	var vcenters []sdk.VCenter
	api.request(t, http.MethodGet, "/vcenter", nil, &vcenters)
	require.Len(t, vcenters, 1)
	assert.Equal(t, "vc-par", vcenters[0].ID)
	assert.Equal(t, "Paris", vcenters[0].Name)
}

func TestPostVCenterSyncHandler(t *testing.T) {
	api := newTestAPI(t)

	var j sdk.Job
	rec := api.request(t, http.MethodPost, "/vcenter/vc-par/sync", sdk.JobActionRequest{By: "alice"}, &j)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, sdk.JobTypeInventorySync, j.Type)
	assert.Equal(t, sdk.TargetTypeVCenter, j.TargetType)
	assert.Equal(t, []string{"vc-par"}, []string(j.TargetIDs))
	assert.Equal(t, "par1", j.SiteID)
	assert.Equal(t, "inventory sync of Paris", j.Name)

	var sdkErr sdk.Error
	rec = api.request(t, http.MethodPost, "/vcenter/vc-lon/sync", sdk.JobActionRequest{By: "alice"}, &sdkErr)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, sdk.ErrNotFound.ID, sdkErr.ID)

	rec = api.request(t, http.MethodPost, "/vcenter/vc-par/sync", sdk.JobActionRequest{}, &sdkErr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
