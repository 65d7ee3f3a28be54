package service

import (
	"context"
	"time"

	"github.com/hostops/hops/sdk"
)

// HTTPRouterConfiguration is the listening address of a service.
type HTTPRouterConfiguration struct {
	Addr string `toml:"addr" default:"" commented:"true" comment:"Listen address without port, example: 127.0.0.1" json:"addr"`
	Port int    `toml:"port" default:"8081" json:"port"`
}

// Common is the part shared by every hops service.
type Common struct {
	ServiceName string
	StartupTime time.Time
}

// Service is the interface for a engine service
type Service interface {
	ApplyConfiguration(cfg interface{}) error
	CheckConfiguration(cfg interface{}) error
	Serve(ctx context.Context) error
	Status(ctx context.Context) *sdk.MonitoringStatus
}
