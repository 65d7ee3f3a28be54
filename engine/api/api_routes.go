package api

import (
	"net/http"

	"github.com/hostops/hops/engine/service"
)

// InitRouter initializes the router and all the routes
func (a *API) InitRouter() {
	a.Router.SetHeaderFunc = service.DefaultHeaders
	a.Router.Middlewares = append(a.Router.Middlewares, a.maintenanceMiddleware)

	r := a.Router

	// Jobs
	r.Handle("/job", r.GET(a.getJobsHandler), r.POST(a.postJobHandler, MaintenanceAware()))
	r.Handle("/job/{id}", r.GET(a.getJobHandler))
	r.Handle("/job/{id}/step", r.GET(a.getJobStepsHandler))
	r.Handle("/job/{id}/event", r.GET(a.getJobEventsHandler))
	r.Handle("/job/{id}/approve", r.POST(a.postJobApproveHandler, MaintenanceAware()))
	r.Handle("/job/{id}/pause", r.POST(a.postJobPauseHandler))
	r.Handle("/job/{id}/resume", r.POST(a.postJobResumeHandler, MaintenanceAware()))
	r.Handle("/job/{id}/cancel", r.POST(a.postJobCancelHandler))

	// vCenters
	r.Handle("/vcenter", r.GET(a.getVCentersHandler))
	r.Handle("/vcenter/{id}/sync", r.POST(a.postVCenterSyncHandler, MaintenanceAware()))

	// Admin
	r.Handle("/admin/maintenance", r.GET(a.getMaintenanceHandler), r.POST(a.postMaintenanceHandler))

	// Overall health
	r.Handle("/mon/version", r.GET(a.getVersionHandler))
	r.Handle("/mon/status", r.GET(a.getStatusHandler))
	r.Handle("/mon/health", r.GET(a.getHealthHandler))
	r.Handle("/mon/metrics", r.GET(a.getMetricsHandler))
	r.Handle("/mon/metrics/runtime", r.GET(a.getRuntimeMetricsHandler))

	//Not Found handler
	r.Mux.NotFoundHandler = http.HandlerFunc(notFoundHandler)
}
