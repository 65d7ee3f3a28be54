package api

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/service"
	"github.com/hostops/hops/sdk"
	hopslog "github.com/hostops/hops/sdk/log"
	"github.com/hostops/hops/sdk/telemetry"
)

// Router is a wrapper around mux.Router
type Router struct {
	Background      context.Context
	Mux             *mux.Router
	Prefix          string
	SetHeaderFunc   func() map[string]string
	Middlewares     []service.Middleware
	PostMiddlewares []service.Middleware

	mutex     sync.Mutex
	nbPanic   int
	lastPanic *time.Time
}

func newRouter(m *mux.Router, p string) *Router {
	return &Router{
		Background:    context.Background(),
		Mux:           m,
		Prefix:        p,
		SetHeaderFunc: service.DefaultHeaders,
	}
}

// handlerName returns the name of the method returning the handler, ex: getJobHandler.
func handlerName(h service.HandlerFunc) string {
	name := runtime.FuncForPC(reflect.ValueOf(h).Pointer()).Name()
	name = strings.TrimSuffix(name, "-fm")
	splittedName := strings.Split(name, ".")
	return splittedName[len(splittedName)-1]
}

func newHandlerConfig(method string, h service.HandlerFunc, cfg ...service.HandlerConfigParam) *service.HandlerConfig {
	rc := &service.HandlerConfig{
		Name:    handlerName(h),
		Method:  method,
		Handler: h(),
		Options: make(map[string]string),
	}
	for _, c := range cfg {
		c(rc)
	}
	return rc
}

// GET will set given handler only for GET request
func (r *Router) GET(h service.HandlerFunc, cfg ...service.HandlerConfigParam) service.RouterConfigParam {
	return func(rc *service.RouterConfig) {
		rc.Config[http.MethodGet] = newHandlerConfig(http.MethodGet, h, cfg...)
	}
}

// POST will set given handler only for POST request
func (r *Router) POST(h service.HandlerFunc, cfg ...service.HandlerConfigParam) service.RouterConfigParam {
	return func(rc *service.RouterConfig) {
		rc.Config[http.MethodPost] = newHandlerConfig(http.MethodPost, h, cfg...)
	}
}

// MaintenanceAware rejects the request while the engine is in maintenance.
func MaintenanceAware() service.HandlerConfigParam {
	return func(rc *service.HandlerConfig) {
		rc.Options["maintenance_aware"] = "true"
	}
}

type trackingResponseWriter struct {
	writer     http.ResponseWriter
	statusCode int
}

func (w *trackingResponseWriter) Header() http.Header {
	return w.writer.Header()
}

func (w *trackingResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.writer.Write(b)
}

func (w *trackingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.writer.WriteHeader(code)
}

// Handle adds all handler for their specific verb in gorilla router for given uri
func (r *Router) Handle(uri string, handlers ...service.RouterConfigParam) {
	uri = r.Prefix + uri
	cfg := &service.RouterConfig{Config: map[string]*service.HandlerConfig{}}
	for _, h := range handlers {
		h(cfg)
	}

	f := func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ctx := req.Context()

		requestID := req.Header.Get(hopslog.HeaderRequestID)
		if requestID == "" {
			requestID = sdk.UUID()
		}
		ctx = context.WithValue(ctx, hopslog.RequestID, requestID)
		ctx = context.WithValue(ctx, hopslog.Method, req.Method)
		ctx = context.WithValue(ctx, hopslog.Route, uri)
		ctx = context.WithValue(ctx, hopslog.RequestURI, req.RequestURI)

		tw := &trackingResponseWriter{writer: w}
		for k, v := range r.SetHeaderFunc() {
			tw.Header().Set(k, v)
		}
		tw.Header().Set(hopslog.HeaderRequestID, requestID)

		if req.Method == http.MethodOptions {
			tw.WriteHeader(http.StatusOK)
			return
		}

		rc, has := cfg.Config[req.Method]
		if !has {
			service.WriteError(ctx, tw, req, sdk.NewErrorFrom(sdk.ErrNotFound, "no handler for %s %s", req.Method, uri))
			return
		}
		ctx = context.WithValue(ctx, hopslog.Handler, rc.Name)

		defer func() {
			if re := recover(); re != nil {
				r.recordPanic()
				err := sdk.NewErrorFrom(sdk.ErrUnknownError, "panic in %s: %v", rc.Name, re)
				service.WriteError(ctx, tw, req, err)
			}
			r.logRequest(ctx, tw, req, rc, start)
		}()

		var end func()
		ctx, end = telemetry.Span(ctx, rc.Name, telemetry.Tag("http.method", req.Method), telemetry.Tag("http.route", uri))
		defer end()

		for _, m := range r.Middlewares {
			var err error
			ctx, err = m(ctx, tw, req, rc)
			if err != nil {
				service.WriteError(ctx, tw, req, err)
				return
			}
		}

		if err := rc.Handler(ctx, tw, req.WithContext(ctx)); err != nil {
			service.WriteError(ctx, tw, req, err)
			return
		}

		for _, m := range r.PostMiddlewares {
			var err error
			ctx, err = m(ctx, tw, req, rc)
			if err != nil {
				log.Error(ctx, "PostMiddlewares > %s", err)
			}
		}
	}

	r.Mux.HandleFunc(uri, f)
}

func (r *Router) logRequest(ctx context.Context, w *trackingResponseWriter, req *http.Request, rc *service.HandlerConfig, start time.Time) {
	latency := time.Since(start)
	ctx = context.WithValue(ctx, hopslog.Status, fmt.Sprintf("%d", w.statusCode))
	ctx = context.WithValue(ctx, hopslog.StatusNum, w.statusCode)
	ctx = context.WithValue(ctx, hopslog.Latency, latency.String())
	ctx = context.WithValue(ctx, hopslog.LatencyNum, latency.Nanoseconds())

	log.Info(ctx, "%-7s | %13v | %v [%d]", req.Method, latency, req.URL, w.statusCode)
}

func (r *Router) recordPanic() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	now := time.Now()
	r.nbPanic++
	r.lastPanic = &now
}

// StatusPanic returns router status. If nbPanic > 30 -> Alert, if nbPanic > 0 -> Warn
func (r *Router) StatusPanic() sdk.MonitoringStatusLine {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	statusPanic := sdk.MonitoringStatusOK
	if r.nbPanic > 30 {
		statusPanic = sdk.MonitoringStatusAlert
	} else if r.nbPanic > 0 {
		statusPanic = sdk.MonitoringStatusWarn
	}
	value := fmt.Sprintf("%d", r.nbPanic)
	if r.lastPanic != nil {
		value += fmt.Sprintf(", last at %s", r.lastPanic.Format(time.RFC3339))
	}
	return sdk.MonitoringStatusLine{Component: "Nb of Panics", Value: value, Status: statusPanic}
}

// notFoundHandler is called by default by Mux is any matching handler has been found
func notFoundHandler(w http.ResponseWriter, req *http.Request) {
	service.WriteError(req.Context(), w, req, sdk.NewErrorFrom(sdk.ErrNotFound, "%s not found", req.URL.Path))
}
