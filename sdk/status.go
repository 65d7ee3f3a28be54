package sdk

import (
	"fmt"
	"time"
)

const (
	MonitoringStatusAlert = "AL"
	MonitoringStatusWarn  = "WARN"
	MonitoringStatusOK    = "OK"
)

// MonitoringStatus contains status of hops components
type MonitoringStatus struct {
	Now   time.Time              `json:"now"`
	Lines []MonitoringStatusLine `json:"lines"`
}

// MonitoringStatusLine represents a component status
type MonitoringStatusLine struct {
	Status    string `json:"status"`
	Component string `json:"component"`
	Value     string `json:"value"`
}

func (m MonitoringStatusLine) String() string {
	return fmt.Sprintf("%s - %s: %s", m.Status, m.Component, m.Value)
}

// IsOK returns false if at least one line is in alert.
func (m MonitoringStatus) IsOK() bool {
	for _, l := range m.Lines {
		if l.Status == MonitoringStatusAlert {
			return false
		}
	}
	return true
}

// Version is the running version, set at build time.
var Version = "snapshot"

// VersionInfo is returned by /mon/version.
type VersionInfo struct {
	Version string `json:"version"`
}
