package observability

import (
	"context"
	"sync"
	"time"

	"github.com/rockbears/log"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"

	"github.com/hostops/hops/sdk"
)

// Configuration for stats and tracing.
type Configuration struct {
	MetricsEnabled    bool    `toml:"metricsEnabled" default:"true" json:"metricsEnabled"`
	ReportingPeriod   int     `toml:"reportingPeriod" default:"10" comment:"Stats reporting period, in seconds" json:"reportingPeriod"`
	TracingEnabled    bool    `toml:"tracingEnabled" default:"false" json:"tracingEnabled"`
	SamplingProbability float64 `toml:"samplingProbability" default:"0.1" json:"samplingProbability"`
}

var (
	initOnce     sync.Once
	httpExporter *HTTPExporter
)

// Init registers the hops views and the in-memory exporter served on /mon/metrics.
func Init(ctx context.Context, cfg Configuration, serviceName string) (context.Context, error) {
	ctx = ContextWithTag(ctx, TagServiceName, serviceName)

	if cfg.TracingEnabled {
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.ProbabilitySampler(cfg.SamplingProbability)})
	}
	if !cfg.MetricsEnabled {
		log.Info(ctx, "observability> stats are disabled")
		return ctx, nil
	}

	var err error
	initOnce.Do(func() {
		if cfg.ReportingPeriod <= 0 {
			cfg.ReportingPeriod = 10
		}
		view.SetReportingPeriod(time.Duration(cfg.ReportingPeriod) * time.Second)
		if err = view.Register(views()...); err != nil {
			return
		}
		httpExporter = NewHTTPExporter()
		view.RegisterExporter(httpExporter)
		log.Info(ctx, "observability> stats initialized for %s", serviceName)
	})
	return ctx, sdk.WithStack(err)
}

// StatsHTTPExporter returns the exporter registered by Init, nil if stats are disabled.
func StatsHTTPExporter() *HTTPExporter {
	return httpExporter
}
