package sdk

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeFirmwareUpdate  JobType = "firmware_update"
	JobTypeMaintenanceMode JobType = "maintenance_mode"
	JobTypeDRSEvacuation   JobType = "drs_evacuation"
	JobTypePowerCycle      JobType = "power_cycle"
	JobTypeInventorySync   JobType = "inventory_sync"
)

type TargetType string

const (
	TargetTypeHost    TargetType = "host"
	TargetTypeServer  TargetType = "server"
	TargetTypeCluster TargetType = "cluster"
	TargetTypeVCenter TargetType = "vcenter"
)

// TargetTypes lists every target type known by the engine.
var TargetTypes = []TargetType{TargetTypeHost, TargetTypeServer, TargetTypeCluster, TargetTypeVCenter}

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true for absorbing statuses.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsWaitingStart returns true for statuses a job leaves when entering running for the first time.
func (s JobStatus) IsWaitingStart() bool {
	return s == JobStatusPending || s == JobStatusScheduled
}

// JobStatuses lists every job status.
var JobStatuses = []JobStatus{JobStatusPending, JobStatusScheduled, JobStatusRunning, JobStatusPaused, JobStatusCompleted, JobStatusFailed, JobStatusCancelled}

// RunnableJobStatuses are the statuses the orchestrator looks at.
var RunnableJobStatuses = []JobStatus{JobStatusPending, JobStatusScheduled, JobStatusRunning}

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// StringSlice is a list of strings stored as json.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		s = StringSlice{}
	}
	j, err := json.Marshal(s)
	return j, WrapError(err, "cannot marshal StringSlice")
}

func (s *StringSlice) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	source, ok := src.([]byte)
	if !ok {
		return WithStack(fmt.Errorf("type assertion .([]byte) failed (%T)", src))
	}
	return WrapError(JSONUnmarshal(source, s), "cannot unmarshal StringSlice")
}

// Job is one orchestrated multi-step infrastructure operation.
type Job struct {
	ID                string      `json:"id" db:"id" cli:"id,key"`
	Name              string      `json:"name" db:"name" cli:"name"`
	Description       string      `json:"description,omitempty" db:"description"`
	SiteID            string      `json:"siteId,omitempty" db:"site_id"`
	Type              JobType     `json:"type" db:"type" cli:"type"`
	Status            JobStatus   `json:"status" db:"status" cli:"status"`
	Priority          int         `json:"priority" db:"priority" cli:"priority"`
	TargetIDs         StringSlice `json:"targetIds" db:"target_ids"`
	TargetType        TargetType  `json:"targetType" db:"target_type" cli:"target_type"`
	Policy            JobPolicy   `json:"policy" db:"policy"`
	CreatedBy         string      `json:"createdBy" db:"created_by" cli:"created_by"`
	ApprovedBy        *string     `json:"approvedBy" db:"approved_by" cli:"approved_by"`
	ServiceIdentityID string      `json:"serviceIdentityId,omitempty" db:"service_identity_id"`
	ScheduledAt       *time.Time  `json:"scheduledAt" db:"scheduled_at"`
	StartedAt         *time.Time  `json:"startedAt" db:"started_at"`
	CompletedAt       *time.Time  `json:"completedAt" db:"completed_at"`
	CreatedAt         time.Time   `json:"createdAt" db:"created_at" cli:"created_at"`
	UpdatedAt         time.Time   `json:"updatedAt" db:"updated_at"`
	Progress          int         `json:"progress" db:"progress" cli:"progress"`
	CurrentStep       int         `json:"currentStep" db:"current_step"`
	TotalSteps        int         `json:"totalSteps" db:"total_steps"`
	Version           int64       `json:"version" db:"version"`
}

// Target returns the reference of one of the job targets.
func (j Job) Target(targetID string) TargetRef {
	return TargetRef{ID: targetID, Type: j.TargetType}
}

// IsApproved returns true if the job can leave pending/scheduled regarding approval.
func (j Job) IsApproved() bool {
	return !j.Policy.RequireApproval || (j.ApprovedBy != nil && *j.ApprovedBy != "")
}

// JobDetails is a job with its steps and latest events.
type JobDetails struct {
	Job
	Steps  []JobStep  `json:"steps"`
	Events []JobEvent `json:"events"`
}

// JobSubmission is a request for a new job.
type JobSubmission struct {
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	SiteID            string     `json:"siteId,omitempty"`
	Type              JobType    `json:"type"`
	Priority          int        `json:"priority"`
	TargetIDs         []string   `json:"targetIds"`
	TargetType        TargetType `json:"targetType"`
	Policy            JobPolicy  `json:"policy"`
	CreatedBy         string     `json:"createdBy"`
	ServiceIdentityID string     `json:"serviceIdentityId,omitempty"`
	ScheduledAt       *time.Time `json:"scheduledAt,omitempty"`
}

// IsValid checks the submission and the policy against its job type.
func (s JobSubmission) IsValid() error {
	spec, ok := JobTypeSpecs[s.Type]
	if !ok {
		return NewErrorFrom(ErrWrongRequest, "unknown job type %q", s.Type)
	}
	if !IsInArray(s.TargetType, spec.TargetTypes) {
		return NewErrorFrom(ErrWrongRequest, "job type %s does not accept target type %q", s.Type, s.TargetType)
	}
	if len(s.TargetIDs) == 0 {
		return NewErrorFrom(ErrWrongRequest, "at least one target is required")
	}
	seen := make(map[string]struct{}, len(s.TargetIDs))
	for _, id := range s.TargetIDs {
		if id == "" {
			return NewErrorFrom(ErrWrongRequest, "empty target id")
		}
		if _, has := seen[id]; has {
			return NewErrorFrom(ErrWrongRequest, "duplicate target id %q", id)
		}
		seen[id] = struct{}{}
	}
	if s.CreatedBy == "" {
		return NewErrorFrom(ErrWrongRequest, "createdBy is required")
	}
	return s.Policy.ValidateFor(s.Type)
}

// JobStep is one target-scoped unit of work within a job.
type JobStep struct {
	ID             string     `json:"id" db:"id" cli:"id,key"`
	JobID          string     `json:"jobId" db:"job_id"`
	Sequence       int        `json:"sequence" db:"sequence" cli:"sequence"`
	TargetID       string     `json:"targetId" db:"target_id" cli:"target"`
	Status         StepStatus `json:"status" db:"status" cli:"status"`
	ExternalTaskID *string    `json:"externalTaskId" db:"external_task_id"`
	StartedAt      *time.Time `json:"startedAt" db:"started_at"`
	CompletedAt    *time.Time `json:"completedAt" db:"completed_at"`
	Output         string     `json:"output,omitempty" db:"output"`
	Error          string     `json:"error,omitempty" db:"error" cli:"error"`
	Attempts       int        `json:"attempts" db:"attempts" cli:"attempts"`
	Polls          int        `json:"polls" db:"polls"`
	NextAttemptAt  *time.Time `json:"nextAttemptAt,omitempty" db:"next_attempt_at"`
}

// JobEventData is free structured data attached to an event.
type JobEventData map[string]interface{}

func (d JobEventData) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	j, err := json.Marshal(d)
	return j, WrapError(err, "cannot marshal JobEventData")
}

func (d *JobEventData) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	source, ok := src.([]byte)
	if !ok {
		return WithStack(fmt.Errorf("type assertion .([]byte) failed (%T)", src))
	}
	return WrapError(JSONUnmarshal(source, d), "cannot unmarshal JobEventData")
}

// JobEvent is an append-only audit record.
type JobEvent struct {
	ID        int64        `json:"id" db:"id" cli:"id,key"`
	JobID     string       `json:"jobId" db:"job_id"`
	StepID    *string      `json:"stepId,omitempty" db:"step_id"`
	Timestamp time.Time    `json:"timestamp" db:"timestamp" cli:"timestamp"`
	Level     EventLevel   `json:"level" db:"level" cli:"level"`
	Code      string       `json:"code,omitempty" db:"code" cli:"code"`
	Message   string       `json:"message" db:"message" cli:"message"`
	Data      JobEventData `json:"data,omitempty" db:"data"`
}

// ComputeProgress returns the percentage of terminal steps.
func ComputeProgress(steps []JobStep) int {
	if len(steps) == 0 {
		return 0
	}
	var done int
	for _, s := range steps {
		if s.Status.IsTerminal() {
			done++
		}
	}
	return done * 100 / len(steps)
}

// JobActionRequest is the body of approve/pause/resume/cancel requests.
type JobActionRequest struct {
	By string `json:"by"`
}

func (r JobActionRequest) IsValid() error {
	if r.By == "" {
		return NewErrorFrom(ErrWrongRequest, "field 'by' is required")
	}
	return nil
}
