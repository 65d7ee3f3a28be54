package sdk

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	WorkerStatusIdle = "idle"
	WorkerStatusBusy = "busy"
)

// WorkerHeartbeatPayload is the state reported by an orchestrator instance.
type WorkerHeartbeatPayload struct {
	Status   string `json:"status"`
	InFlight int    `json:"inFlight"`
}

func (p WorkerHeartbeatPayload) Value() (driver.Value, error) {
	j, err := json.Marshal(p)
	return j, WrapError(err, "cannot marshal WorkerHeartbeatPayload")
}

func (p *WorkerHeartbeatPayload) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	source, ok := src.([]byte)
	if !ok {
		return WithStack(fmt.Errorf("type assertion .([]byte) failed (%T)", src))
	}
	return WrapError(json.Unmarshal(source, p), "cannot unmarshal WorkerHeartbeatPayload")
}

// WorkerHeartbeat is upserted periodically by each orchestrator instance.
type WorkerHeartbeat struct {
	WorkerID string                 `json:"workerId" db:"worker_id"`
	LastSeen time.Time              `json:"lastSeen" db:"last_seen"`
	Payload  WorkerHeartbeatPayload `json:"payload" db:"payload"`
}

// QueueHealth is returned by /mon/health.
type QueueHealth struct {
	QueueDepth      int64            `json:"queueDepth"`
	LatestHeartbeat *WorkerHeartbeat `json:"latestHeartbeat"`
}
