package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/service"
	"github.com/hostops/hops/sdk"
)

type maintenanceStatus struct {
	Enabled bool `json:"enabled"`
}

func (a *API) getMaintenanceHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		enabled, err := a.isMaintenance()
		if err != nil {
			return err
		}
		return service.WriteJSON(w, maintenanceStatus{Enabled: enabled}, http.StatusOK)
	}
}

// postMaintenanceHandler toggles the maintenance mode. Running jobs keep
// running, submissions and approvals are rejected.
func (a *API) postMaintenanceHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		enabled, err := strconv.ParseBool(r.FormValue("enable"))
		if err != nil {
			return sdk.NewErrorFrom(sdk.ErrWrongRequest, "invalid given enable value %q", r.FormValue("enable"))
		}
		if err := a.Cache.SetWithTTL(maintenanceKey, enabled, 0); err != nil {
			return err
		}
		log.Warn(ctx, "maintenance mode set to %t", enabled)
		return service.WriteJSON(w, maintenanceStatus{Enabled: enabled}, http.StatusOK)
	}
}
