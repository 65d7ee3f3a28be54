package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hostops/hops/engine/service"
	"github.com/hostops/hops/sdk"
)

func (a *API) getVCentersHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return service.WriteJSON(w, a.VCenters.VCenters(), http.StatusOK)
	}
}

// postVCenterSyncHandler submits an inventory sync job on the vCenter.
func (a *API) postVCenterSyncHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req sdk.JobActionRequest
		if err := service.UnmarshalBody(r, &req); err != nil {
			return err
		}
		if err := req.IsValid(); err != nil {
			return err
		}
		vc, err := a.VCenters.VCenter(mux.Vars(r)["id"])
		if err != nil {
			return err
		}

		j, err := a.Machine.Submit(ctx, sdk.JobSubmission{
			Name:       fmt.Sprintf("inventory sync of %s", vc.Name),
			SiteID:     vc.SiteID,
			Type:       sdk.JobTypeInventorySync,
			TargetType: sdk.TargetTypeVCenter,
			TargetIDs:  []string{vc.ID},
			CreatedBy:  req.By,
		})
		if err != nil {
			return err
		}
		a.Orchestrator.Broadcast(ctx, j.ID)
		return service.WriteJSON(w, j, http.StatusCreated)
	}
}
