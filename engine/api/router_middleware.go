package api

import (
	"context"
	"net/http"

	"github.com/hostops/hops/engine/cache"
	"github.com/hostops/hops/engine/service"
	"github.com/hostops/hops/sdk"
)

var maintenanceKey = cache.Key("api", "maintenance")

// isMaintenance reads the flag from the cache, so that every instance shares it.
func (a *API) isMaintenance() (bool, error) {
	var enabled bool
	if _, err := a.Cache.Get(maintenanceKey, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

func (a *API) maintenanceMiddleware(ctx context.Context, w http.ResponseWriter, req *http.Request, rc *service.HandlerConfig) (context.Context, error) {
	if rc.Options["maintenance_aware"] != "true" {
		return ctx, nil
	}
	enabled, err := a.isMaintenance()
	if err != nil {
		return ctx, err
	}
	if enabled {
		return ctx, sdk.NewErrorFrom(sdk.ErrServiceUnavailable, "hops is in maintenance, new jobs and approvals are rejected")
	}
	return ctx, nil
}
