package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hostops/hops/engine/api/job"
	"github.com/hostops/hops/engine/service"
	"github.com/hostops/hops/sdk"
)

const (
	defaultJobsLimit   = 100
	maxJobsLimit       = 500
	jobDetailsEvents   = 200
	defaultEventsLimit = 200
	maxEventsLimit     = 1000
)

func (a *API) getJobsHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		limit, err := service.FormInt(r, "limit", defaultJobsLimit, 1, maxJobsLimit)
		if err != nil {
			return err
		}
		var statuses []sdk.JobStatus
		for _, s := range r.URL.Query()["status"] {
			status := sdk.JobStatus(s)
			if !sdk.IsInArray(status, sdk.JobStatuses) {
				return sdk.NewErrorFrom(sdk.ErrWrongRequest, "invalid job status %q", s)
			}
			statuses = append(statuses, status)
		}

		jobs, err := a.Store.LoadJobs(ctx, job.Filter{Statuses: statuses, Limit: limit})
		if err != nil {
			return err
		}
		return service.WriteJSON(w, jobs, http.StatusOK)
	}
}

func (a *API) postJobHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var sub sdk.JobSubmission
		if err := service.UnmarshalBody(r, &sub); err != nil {
			return err
		}
		j, err := a.Machine.Submit(ctx, sub)
		if err != nil {
			return err
		}
		a.Orchestrator.Broadcast(ctx, j.ID)
		return service.WriteJSON(w, j, http.StatusCreated)
	}
}

func (a *API) getJobHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		details, err := job.LoadDetails(ctx, a.Store, mux.Vars(r)["id"], jobDetailsEvents)
		if err != nil {
			return err
		}
		return service.WriteJSON(w, details, http.StatusOK)
	}
}

func (a *API) getJobStepsHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := mux.Vars(r)["id"]
		if _, err := a.Store.LoadJob(ctx, id); err != nil {
			return err
		}
		steps, err := a.Store.LoadSteps(ctx, id)
		if err != nil {
			return err
		}
		return service.WriteJSON(w, steps, http.StatusOK)
	}
}

func (a *API) getJobEventsHandler() service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		limit, err := service.FormInt(r, "limit", defaultEventsLimit, 1, maxEventsLimit)
		if err != nil {
			return err
		}
		id := mux.Vars(r)["id"]
		if _, err := a.Store.LoadJob(ctx, id); err != nil {
			return err
		}
		events, err := a.Store.LoadEvents(ctx, id, limit)
		if err != nil {
			return err
		}
		return service.WriteJSON(w, events, http.StatusOK)
	}
}

type jobAction func(ctx context.Context, id, by string) (*sdk.Job, error)

// jobActionHandler runs an operator action then wakes the orchestrator up.
func (a *API) jobActionHandler(action jobAction) service.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req sdk.JobActionRequest
		if err := service.UnmarshalBody(r, &req); err != nil {
			return err
		}
		if err := req.IsValid(); err != nil {
			return err
		}
		j, err := action(ctx, mux.Vars(r)["id"], req.By)
		if err != nil {
			return err
		}
		a.Orchestrator.Broadcast(ctx, j.ID)
		return service.WriteJSON(w, j, http.StatusOK)
	}
}

func (a *API) postJobApproveHandler() service.Handler {
	return a.jobActionHandler(a.Machine.Approve)
}

func (a *API) postJobPauseHandler() service.Handler {
	return a.jobActionHandler(a.Machine.Pause)
}

func (a *API) postJobResumeHandler() service.Handler {
	return a.jobActionHandler(a.Machine.Resume)
}

func (a *API) postJobCancelHandler() service.Handler {
	return a.jobActionHandler(a.Machine.Cancel)
}
