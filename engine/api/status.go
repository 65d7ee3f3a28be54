package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hostops/hops/engine/api/job"
	"github.com/hostops/hops/engine/service"
	"github.com/hostops/hops/sdk"
)

// Status returns the monitoring status of every component of the api.
func (a *API) Status(ctx context.Context) *sdk.MonitoringStatus {
	m := a.CommonMonitoring()

	if a.DBConnectionFactory != nil {
		m.Lines = append(m.Lines, a.DBConnectionFactory.Status(ctx))
	} else {
		m.Lines = append(m.Lines, sdk.MonitoringStatusLine{Component: "Database", Value: "memory", Status: sdk.MonitoringStatusWarn})
	}
	m.Lines = append(m.Lines, a.Cache.Status(ctx))
	m.Lines = append(m.Lines, a.EventManager.Status(ctx))
	m.Lines = append(m.Lines, a.Orchestrator.Status(ctx))
	m.Lines = append(m.Lines, sdk.MonitoringStatusLine{Component: "Scheduler", Value: fmt.Sprintf("%d entries", a.Scheduler.Len()), Status: sdk.MonitoringStatusOK})
	if a.Router != nil {
		m.Lines = append(m.Lines, a.Router.StatusPanic())
	}
	if a.GoRoutines != nil {
		m.Lines = append(m.Lines, a.GoRoutines.GetStatus()...)
	}
	return m
}

func (a *API) getVersionHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return service.WriteJSON(w, sdk.VersionInfo{Version: sdk.Version}, http.StatusOK)
	}
}

func (a *API) getStatusHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		status := http.StatusOK
		s := a.Status(ctx)
		if !s.IsOK() {
			status = http.StatusServiceUnavailable
		}
		return service.WriteJSON(w, s, status)
	}
}

func (a *API) getHealthHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		health, err := job.QueueHealth(ctx, a.Store)
		if err != nil {
			return err
		}
		return service.WriteJSON(w, health, http.StatusOK)
	}
}

func (a *API) getMetricsHandler() service.Handler {
	return service.GetMetricsHandler()
}

func (a *API) getRuntimeMetricsHandler() service.Handler {
	return service.GetRuntimeMetricsHandler()
}
