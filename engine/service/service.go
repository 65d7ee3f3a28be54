package service

import (
	"fmt"
	"time"

	"github.com/hostops/hops/sdk"
)

// CommonMonitoring returns common part of MonitoringStatus
func (c *Common) CommonMonitoring() *sdk.MonitoringStatus {
	t := time.Now()
	return &sdk.MonitoringStatus{
		Now: t,
		Lines: []sdk.MonitoringStatusLine{{
			Component: "Version",
			Value:     sdk.Version,
			Status:    sdk.MonitoringStatusOK,
		}, {
			Component: "Uptime",
			Value:     time.Since(c.StartupTime).Truncate(time.Second).String(),
			Status:    sdk.MonitoringStatusOK,
		}, {
			Component: "Time",
			Value:     fmt.Sprintf("%dh%dm%ds", t.Hour(), t.Minute(), t.Second()),
			Status:    sdk.MonitoringStatusOK,
		}},
	}
}
