package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rockbears/log"
	"github.com/stretchr/testify/require"

	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/engine/api/executor/vsphere"
	"github.com/hostops/hops/engine/api/inventory"
	"github.com/hostops/hops/engine/api/job"
	"github.com/hostops/hops/engine/cache"
	"github.com/hostops/hops/sdk"
)

type succeedingExecutor struct{}

func (succeedingExecutor) Execute(_ context.Context, req executor.Request) (executor.Outcome, error) {
	return executor.Succeeded("%s done", req.Step.TargetID), nil
}

func (succeedingExecutor) Poll(_ context.Context, req executor.Request) (executor.Outcome, error) {
	return executor.Succeeded("%s done", req.Step.TargetID), nil
}

func newTestAPI(t *testing.T) *API {
	log.Factory = log.NewTestingWrapper(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	api := New()
	api.Config = Configuration{Name: "hops-test", Storage: StorageMemory}
	api.Config.Orchestrator.WorkerID = "worker-test"
	api.ServiceName = api.Config.Name
	api.Store = job.NewMemoryStore()
	api.Cache = cache.NewLocalStore(0)
	api.Inventory = inventory.NewStatic(
		inventory.StaticTarget{ID: "esxi-1", Type: "host", DRSEnabled: true, SupportsGracefulShutdown: true},
		inventory.StaticTarget{ID: "esxi-2", Type: "host", DRSEnabled: true, SupportsGracefulShutdown: true},
	)
	api.Executor = succeedingExecutor{}
	api.VCenters = vsphere.NewClients([]sdk.VCenter{
		{ID: "vc-par", Name: "Paris", SiteID: "par1", URL: "https://vc-par.local/sdk", User: "administrator@vsphere.local", Password: "s3cr3t"},
	})
	api.GoRoutines = sdk.NewGoRoutines(ctx)
	require.NoError(t, api.initEngine(ctx))

	api.Router = newRouter(mux.NewRouter(), "")
	api.Router.Background = ctx
	api.InitRouter()
	return api
}

// request runs the request against the router and decodes the response in out, if not nil.
func (a *API) request(t *testing.T, method, uri string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, uri, &buf)
	rec := httptest.NewRecorder()
	a.Router.Mux.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func (a *API) submit(t *testing.T, sub sdk.JobSubmission) sdk.Job {
	var j sdk.Job
	rec := a.request(t, http.MethodPost, "/job", sub, &j)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return j
}

func TestCheckConfiguration(t *testing.T) {
	api := New()
	valid := Configuration{Name: "hops", Storage: StorageMemory}
	valid.HTTP.Port = 8081
	require.NoError(t, api.CheckConfiguration(valid))

	tests := []struct {
		name   string
		change func(c *Configuration)
	}{
		{"no name", func(c *Configuration) { c.Name = "" }},
		{"port", func(c *Configuration) { c.HTTP.Port = 0 }},
		{"storage", func(c *Configuration) { c.Storage = "s3" }},
		{"database", func(c *Configuration) { c.Storage = StorageDatabase }},
		{"vcenter url", func(c *Configuration) { c.VCenters = []sdk.VCenter{{ID: "vc-1"}} }},
		{"duplicate vcenter", func(c *Configuration) {
			c.VCenters = []sdk.VCenter{{ID: "vc-1", URL: "https://a"}, {ID: "vc-1", URL: "https://b"}}
		}},
		{"target type", func(c *Configuration) { c.Inventory.Targets = []inventory.StaticTarget{{ID: "sw-1", Type: "switch"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.change(&c)
			require.Error(t, api.CheckConfiguration(c))
		})
	}
	require.Error(t, api.CheckConfiguration("hops"))
}
