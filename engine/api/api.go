package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/api/event"
	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/engine/api/executor/remote"
	"github.com/hostops/hops/engine/api/executor/vsphere"
	"github.com/hostops/hops/engine/api/inventory"
	"github.com/hostops/hops/engine/api/job"
	"github.com/hostops/hops/engine/api/observability"
	"github.com/hostops/hops/engine/api/orchestrator"
	"github.com/hostops/hops/engine/api/schedule"
	"github.com/hostops/hops/engine/api/statemachine"
	"github.com/hostops/hops/engine/cache"
	"github.com/hostops/hops/engine/database"
	"github.com/hostops/hops/engine/service"
	"github.com/hostops/hops/sdk"
)

const (
	StorageDatabase = "database"
	StorageMemory   = "memory"
)

// Configuration is the configuration structure for hops API
type Configuration struct {
	Name     string                          `toml:"name" default:"hops-api" comment:"Name of this hops API instance" json:"name"`
	URL      string                          `toml:"url" default:"http://localhost:8081" json:"url"`
	HTTP     service.HTTPRouterConfiguration `toml:"http" json:"http"`
	Storage  string                          `toml:"storage" default:"database" comment:"Job store: database or memory. The memory store is lost on restart" json:"storage"`
	Database database.DBConfiguration        `toml:"database" comment:"################################\n Postgresql Database settings \n###############################" json:"database"`
	Cache    struct {
		TTL   int `toml:"ttl" default:"60" json:"ttl"`
		Redis struct {
			Host     string `toml:"host" default:"localhost:6379" comment:"If your want to use a redis-sentinel based cluster, follow this syntax! <clustername>@sentinel1:26379,sentinel2:26379,sentinel3:26379\n Leave empty to use a local cache, only for a single instance" json:"host"`
			Password string `toml:"password" json:"-"`
			DbIndex  int    `toml:"dbindex" default:"0" json:"dbindex"`
		} `toml:"redis" comment:"Connect hops to a redis cache to share locks and events between instances" json:"redis"`
	} `toml:"cache" comment:"######################\n hops Cache Settings \n#####################" json:"cache"`
	StateMachine struct {
		StepTimeout     int `toml:"stepTimeout" default:"3600" comment:"Max duration of a step, in seconds" json:"stepTimeout"`
		PollInterval    int `toml:"pollInterval" default:"1" comment:"First poll delay of an external task, in seconds" json:"pollInterval"`
		MaxPollInterval int `toml:"maxPollInterval" default:"60" comment:"Max poll delay of an external task, in seconds" json:"maxPollInterval"`
	} `toml:"stateMachine" json:"stateMachine"`
	Orchestrator orchestrator.Configuration `toml:"orchestrator" comment:"######################\n Orchestrator Settings \n#####################" json:"orchestrator"`
	Inventory    struct {
		CacheTTL int                      `toml:"cacheTTL" default:"30" comment:"vSphere facts cache duration, in seconds" json:"cacheTTL"`
		Targets  []inventory.StaticTarget `toml:"targets" comment:"Targets known without vCenter, servers are always read from here" json:"targets,omitempty"`
	} `toml:"inventory" json:"inventory"`
	VCenters      []sdk.VCenter               `toml:"vcenters" comment:"######################\n vCenters \n#####################" json:"vcenters,omitempty"`
	Remote        remote.Configuration        `toml:"remote" comment:"Out-of-band management endpoint for server targets" json:"remote"`
	Event         event.Configuration         `toml:"events" mapstructure:"events" comment:"######################\n Event brokers \n#####################" json:"events"`
	Schedules     []schedule.Entry            `toml:"schedules" comment:"Recurring job submissions" json:"schedules,omitempty"`
	Observability observability.Configuration `toml:"observability" json:"observability"`
}

// API is a struct containing the configuration, the router, the stores and the engine components
type API struct {
	service.Common
	Router              *Router
	Config              Configuration
	DBConnectionFactory *database.DBConnectionFactory
	Cache               cache.Store
	Store               job.Store
	Inventory           inventory.Provider
	Executor            executor.Executor
	VCenters            *vsphere.Clients
	Machine             *statemachine.Machine
	Orchestrator        *orchestrator.Orchestrator
	EventManager        *event.Manager
	Scheduler           *schedule.Scheduler
	GoRoutines          *sdk.GoRoutines
}

var _ service.Service = new(API)

// New instanciates a new API object
func New() *API {
	return &API{}
}

// ApplyConfiguration apply an object of type api.Configuration after checking it
func (a *API) ApplyConfiguration(config interface{}) error {
	if err := a.CheckConfiguration(config); err != nil {
		return err
	}
	a.Config = config.(Configuration)
	a.ServiceName = a.Config.Name
	return nil
}

// CheckConfiguration checks the validity of the configuration object
func (a *API) CheckConfiguration(config interface{}) error {
	aConfig, ok := config.(Configuration)
	if !ok {
		return fmt.Errorf("invalid API configuration")
	}

	if aConfig.Name == "" {
		return fmt.Errorf("your hops API name is empty")
	}
	if aConfig.HTTP.Port <= 0 {
		return fmt.Errorf("invalid HTTP port %d", aConfig.HTTP.Port)
	}
	switch aConfig.Storage {
	case StorageDatabase:
		if aConfig.Database.Name == "" || aConfig.Database.Host == "" {
			return fmt.Errorf("database name and host are required with storage %q", StorageDatabase)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage %q, expected %s or %s", aConfig.Storage, StorageDatabase, StorageMemory)
	}

	ids := make(map[string]struct{}, len(aConfig.VCenters))
	for _, vc := range aConfig.VCenters {
		if vc.ID == "" || vc.URL == "" {
			return fmt.Errorf("vcenter id and url are required")
		}
		if _, has := ids[vc.ID]; has {
			return fmt.Errorf("duplicate vcenter %q", vc.ID)
		}
		ids[vc.ID] = struct{}{}
	}
	for _, t := range aConfig.Inventory.Targets {
		if t.ID == "" || !sdk.IsInArray(sdk.TargetType(t.Type), sdk.TargetTypes) {
			return fmt.Errorf("invalid inventory target %q of type %q", t.ID, t.Type)
		}
	}
	return nil
}

// initStores opens the cache and the job store.
func (a *API) initStores(ctx context.Context) error {
	var err error
	if a.Config.Cache.Redis.Host != "" {
		log.Info(ctx, "Initializing Redis connection (%s)...", a.Config.Cache.Redis.Host)
		a.Cache, err = cache.NewRedisStore(a.Config.Cache.Redis.Host, a.Config.Cache.Redis.Password, a.Config.Cache.Redis.DbIndex, a.Config.Cache.TTL)
		if err != nil {
			return sdk.WrapError(err, "cannot connect to redis instance")
		}
	} else {
		log.Warn(ctx, "No redis configured, locks are local to this instance")
		a.Cache = cache.NewLocalStore(a.Config.Cache.TTL)
	}

	if a.Config.Storage == StorageMemory {
		log.Warn(ctx, "Jobs are kept in memory and will be lost on restart")
		a.Store = job.NewMemoryStore()
		return nil
	}

	log.Info(ctx, "Initializing database connection...")
	a.DBConnectionFactory, err = database.Init(ctx, a.Config.Database)
	if err != nil {
		return sdk.WrapError(err, "cannot connect to database")
	}
	a.Store = job.NewGorpStore(a.DBConnectionFactory.GetDBMap())
	return nil
}

func (a *API) stateMachineConfiguration() statemachine.Configuration {
	cfg := a.Config.StateMachine
	return statemachine.Configuration{
		StepTimeout:     time.Duration(cfg.StepTimeout) * time.Second,
		PollInterval:    time.Duration(cfg.PollInterval) * time.Second,
		MaxPollInterval: time.Duration(cfg.MaxPollInterval) * time.Second,
	}
}

// initEngine wires the inventory, the executors, the state machine, the
// orchestrator, the event manager and the scheduler. Inventory and Executor
// are built from the configuration unless already set.
func (a *API) initEngine(ctx context.Context) error {
	if a.VCenters == nil {
		a.VCenters = vsphere.NewClients(a.Config.VCenters)
	}

	var invalidator vsphere.Invalidator
	if a.Inventory == nil {
		static := inventory.NewStatic(a.Config.Inventory.Targets...)
		router := inventory.Router{}
		for _, t := range sdk.TargetTypes {
			router[t] = static
		}
		if len(a.Config.VCenters) > 0 {
			cached := inventory.NewCached(inventory.NewVSphere(a.VCenters), time.Duration(a.Config.Inventory.CacheTTL)*time.Second)
			router[sdk.TargetTypeHost] = cached
			router[sdk.TargetTypeCluster] = cached
			router[sdk.TargetTypeVCenter] = cached
			invalidator = cached
		}
		a.Inventory = router
	}

	if a.Executor == nil {
		registry := executor.NewRegistry()
		if len(a.Config.VCenters) > 0 {
			vsExec := vsphere.NewExecutor(a.VCenters, invalidator)
			registry.Register(vsExec, vsExec.TargetTypes()...)
		}
		if a.Config.Remote.URL != "" {
			registry.Register(remote.New(a.Config.Remote), sdk.TargetTypeServer)
		}
		log.Info(ctx, "Executors registered for target types %v", registry.TargetTypes())
		a.Executor = registry
	}

	a.EventManager = event.NewManager(a.Cache)
	if err := a.EventManager.Initialize(ctx, a.Config.Event); err != nil {
		return sdk.WrapError(err, "unable to initialize event brokers")
	}

	a.Machine = statemachine.New(a.Store, a.Executor, a.Inventory, a.stateMachineConfiguration())
	a.Machine.SetPublisher(a.EventManager)
	a.Orchestrator = orchestrator.New(a.Config.Orchestrator, a.Machine, a.Cache, a.GoRoutines)
	a.Orchestrator.SetBroadcaster(a.Cache)

	var err error
	a.Scheduler, err = schedule.New(a.Config.Schedules, a.Machine, a.Cache)
	if err != nil {
		return err
	}
	a.Scheduler.OnSubmit(a.Orchestrator.Trigger)
	return nil
}

// Serve will start the http api server
func (a *API) Serve(ctx context.Context) error {
	log.Info(ctx, "Starting hops API Server %s", sdk.Version)
	a.StartupTime = time.Now()

	var err error
	ctx, err = observability.Init(ctx, a.Config.Observability, a.ServiceName)
	if err != nil {
		return sdk.WrapError(err, "unable to initialize observability")
	}

	if err := a.initStores(ctx); err != nil {
		return err
	}
	a.GoRoutines = sdk.NewGoRoutines(ctx)
	if err := a.initEngine(ctx); err != nil {
		return err
	}

	a.Router = newRouter(mux.NewRouter(), "")
	a.Router.Background = ctx
	a.InitRouter()

	a.GoRoutines.RunWithRestart(ctx, "orchestrator.Run", a.Orchestrator.Run)
	a.GoRoutines.RunWithRestart(ctx, "orchestrator.ListenTriggers", a.Orchestrator.ListenTriggers)
	a.GoRoutines.RunWithRestart(ctx, "event.Dequeue", a.EventManager.Dequeue)
	if a.DBConnectionFactory != nil {
		a.GoRoutines.RunWithRestart(ctx, "api.listenJobChanges", a.listenJobChanges)
	}
	if a.Scheduler.Len() > 0 {
		a.GoRoutines.RunWithRestart(ctx, "schedule.Run", func(ctx context.Context) {
			a.Scheduler.Run(ctx, 30*time.Second)
		})
	}

	s := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", a.Config.HTTP.Addr, a.Config.HTTP.Port),
		Handler:        handlers.CompressHandler(a.Router.Mux),
		ReadTimeout:    time.Minute,
		WriteTimeout:   time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		<-ctx.Done()
		log.Warn(ctx, "Shutdown hops API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Shutdown(shutdownCtx) // nolint
		a.EventManager.Close(shutdownCtx)
		a.VCenters.Close(shutdownCtx)
		if a.DBConnectionFactory != nil {
			a.DBConnectionFactory.Close() // nolint
		}
	}()

	log.Info(ctx, "Starting hops API HTTP Server on %s:%d", a.Config.HTTP.Addr, a.Config.HTTP.Port)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("cannot start HTTP server: %v", err)
	}
	return nil
}
