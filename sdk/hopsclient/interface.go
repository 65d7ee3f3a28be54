package hopsclient

import (
	"context"
	"net/http"

	"github.com/hostops/hops/sdk"
)

// Interface is the hops API client interface
type Interface interface {
	JobClient
	VCenterClient
	MonClient
	AdminClient
	Raw
}

// Raw is a low-level interface exposing HTTP functions
type Raw interface {
	PostJSON(ctx context.Context, path string, in interface{}, out interface{}, mods ...RequestModifier) (int, error)
	GetJSON(ctx context.Context, path string, out interface{}, mods ...RequestModifier) (int, error)
	RequestJSON(ctx context.Context, method, path string, in interface{}, out interface{}, mods ...RequestModifier) ([]byte, http.Header, int, error)
	HTTPClient() *http.Client
}

// JobClient exposes job related functions
type JobClient interface {
	JobSubmit(ctx context.Context, s sdk.JobSubmission) (*sdk.Job, error)
	JobList(ctx context.Context, limit int, statuses ...sdk.JobStatus) ([]sdk.Job, error)
	JobGet(ctx context.Context, id string) (*sdk.JobDetails, error)
	JobSteps(ctx context.Context, id string) ([]sdk.JobStep, error)
	JobEvents(ctx context.Context, id string, limit int) ([]sdk.JobEvent, error)
	JobApprove(ctx context.Context, id, by string) (*sdk.Job, error)
	JobPause(ctx context.Context, id, by string) (*sdk.Job, error)
	JobResume(ctx context.Context, id, by string) (*sdk.Job, error)
	JobCancel(ctx context.Context, id, by string) (*sdk.Job, error)
}

// VCenterClient exposes vCenter related functions
type VCenterClient interface {
	VCenterList(ctx context.Context) ([]sdk.VCenter, error)
	VCenterSync(ctx context.Context, id, by string) (*sdk.Job, error)
}

// MonClient exposes monitoring functions
type MonClient interface {
	MonStatus(ctx context.Context) (*sdk.MonitoringStatus, error)
	MonVersion(ctx context.Context) (*sdk.VersionInfo, error)
	MonHealth(ctx context.Context) (*sdk.QueueHealth, error)
}

// AdminClient exposes administration functions
type AdminClient interface {
	AdminMaintenance(ctx context.Context) (bool, error)
	AdminSetMaintenance(ctx context.Context, enable bool) error
}
