package service

import (
	"context"
	"net/http"
	"runtime"

	"github.com/hostops/hops/engine/api/observability"
	"github.com/hostops/hops/sdk"
)

// GetMetricsHandler returns the latest rows of the registered views.
func GetMetricsHandler() Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		e := observability.StatsHTTPExporter()
		if e == nil {
			return sdk.NewErrorFrom(sdk.ErrNotFound, "stats are disabled")
		}
		return WriteJSON(w, e.Rows(), http.StatusOK)
	}
}

// GetRuntimeMetricsHandler returns memory figures of the process, in MB.
func GetRuntimeMetricsHandler() Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var bToMb = func(b uint64) uint64 {
			return b / 1024 / 1024
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return WriteJSON(w, map[string]uint64{
			"alloc":       bToMb(m.Alloc),
			"total_alloc": bToMb(m.TotalAlloc),
			"sys":         bToMb(m.Sys),
			"num_gc":      uint64(m.NumGC),
			"goroutines":  uint64(runtime.NumGoroutine()),
		}, http.StatusOK)
	}
}
