package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mgutz/ansi"

	"github.com/hostops/hops/sdk"
)

var (
	colorOK      = color.New(color.FgGreen).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorAlert   = color.New(color.FgRed, color.Bold).SprintFunc()
)

// JobStatusColor returns the job status colored for a terminal.
func JobStatusColor(s sdk.JobStatus) string {
	switch s {
	case sdk.JobStatusCompleted:
		return colorOK(s)
	case sdk.JobStatusFailed:
		return colorAlert(s)
	case sdk.JobStatusPaused, sdk.JobStatusCancelled:
		return colorWarning(s)
	case sdk.JobStatusRunning:
		return ansi.Color(string(s), "cyan+b")
	}
	return string(s)
}

// EventLevelColor returns the event level colored for a terminal.
func EventLevelColor(l sdk.EventLevel) string {
	switch l {
	case sdk.EventLevelError:
		return colorAlert(l)
	case sdk.EventLevelWarning:
		return colorWarning(l)
	}
	return string(l)
}

// DisplayMonitoringStatus prints one line per component, alerts in red.
func DisplayMonitoringStatus(w io.Writer, s sdk.MonitoringStatus) {
	for _, l := range s.Lines {
		status := l.Status
		switch l.Status {
		case sdk.MonitoringStatusOK:
			status = colorOK(l.Status)
		case sdk.MonitoringStatusWarn:
			status = colorWarning(l.Status)
		case sdk.MonitoringStatusAlert:
			status = colorAlert(l.Status)
		}
		fmt.Fprintf(w, "%s\t%s: %s\n", status, l.Component, l.Value)
	}
}
