package hopsclient

import (
	"context"

	"github.com/hostops/hops/sdk"
)

func (c *client) MonStatus(ctx context.Context) (*sdk.MonitoringStatus, error) {
	monStatus := sdk.MonitoringStatus{}
	if _, err := c.GetJSON(ctx, "/mon/status", &monStatus); err != nil {
		return nil, err
	}
	return &monStatus, nil
}

func (c *client) MonVersion(ctx context.Context) (*sdk.VersionInfo, error) {
	monVersion := sdk.VersionInfo{}
	if _, err := c.GetJSON(ctx, "/mon/version", &monVersion); err != nil {
		return nil, err
	}
	return &monVersion, nil
}

func (c *client) MonHealth(ctx context.Context) (*sdk.QueueHealth, error) {
	health := sdk.QueueHealth{}
	if _, err := c.GetJSON(ctx, "/mon/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}
