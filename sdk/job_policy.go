package sdk

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultShutdownTimeout is used when a policy does not set shutdownTimeoutSeconds.
const DefaultShutdownTimeout = 5 * time.Minute

// JobPolicy is the safety envelope attached to a job. It is immutable after creation.
//
// VMLimit is nil when there is no explicit limit. A zero value sent by legacy
// clients is normalized to nil at submission.
type JobPolicy struct {
	AllowVMShutdown        bool     `json:"allowVmShutdown"`
	AllowHardPoweroff      bool     `json:"allowHardPoweroff"`
	VMLimit                *int     `json:"vmLimit"`
	ShutdownTimeoutSeconds int      `json:"shutdownTimeoutSeconds"`
	TagFilters             []string `json:"tagFilters,omitempty"`
	FolderFilters          []string `json:"folderFilters,omitempty"`
	AbortOnError           bool     `json:"abortOnError"`
	RequireApproval        bool     `json:"requireApproval"`
}

func (p JobPolicy) Value() (driver.Value, error) {
	j, err := json.Marshal(p)
	return j, WrapError(err, "cannot marshal JobPolicy")
}

func (p *JobPolicy) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	source, ok := src.([]byte)
	if !ok {
		return WithStack(fmt.Errorf("type assertion .([]byte) failed (%T)", src))
	}
	return WrapError(json.Unmarshal(source, p), "cannot unmarshal JobPolicy")
}

// Normalize returns the policy with legacy sentinels converted.
func (p JobPolicy) Normalize() JobPolicy {
	if p.VMLimit != nil && *p.VMLimit == 0 {
		p.VMLimit = nil
	}
	return p
}

// ShutdownTimeout returns the max wait before escalating to a hard action.
func (p JobPolicy) ShutdownTimeout() time.Duration {
	if p.ShutdownTimeoutSeconds <= 0 {
		return DefaultShutdownTimeout
	}
	return time.Duration(p.ShutdownTimeoutSeconds) * time.Second
}

// HasFilters returns true if the policy narrows the affected targets.
func (p JobPolicy) HasFilters() bool {
	return len(p.TagFilters) > 0 || len(p.FolderFilters) > 0
}

type PolicyField string

const (
	PolicyFieldVMShutdown      PolicyField = "allowVmShutdown"
	PolicyFieldHardPoweroff    PolicyField = "allowHardPoweroff"
	PolicyFieldVMLimit         PolicyField = "vmLimit"
	PolicyFieldShutdownTimeout PolicyField = "shutdownTimeoutSeconds"
	PolicyFieldFilters         PolicyField = "filters"
)

// JobTypeSpec describes what a job type accepts.
type JobTypeSpec struct {
	TargetTypes    []TargetType
	PolicyFields   []PolicyField
	Parallelizable bool
}

var vmPolicyFields = []PolicyField{PolicyFieldVMShutdown, PolicyFieldVMLimit, PolicyFieldShutdownTimeout, PolicyFieldFilters}

// JobTypeSpecs declares, for each job type, its target types and the policy fields it uses.
var JobTypeSpecs = map[JobType]JobTypeSpec{
	JobTypeMaintenanceMode: {
		TargetTypes:  []TargetType{TargetTypeHost},
		PolicyFields: append([]PolicyField{PolicyFieldHardPoweroff}, vmPolicyFields...),
	},
	JobTypeDRSEvacuation: {
		TargetTypes:  []TargetType{TargetTypeHost},
		PolicyFields: vmPolicyFields,
	},
	JobTypePowerCycle: {
		TargetTypes:  []TargetType{TargetTypeHost, TargetTypeServer},
		PolicyFields: append([]PolicyField{PolicyFieldHardPoweroff}, vmPolicyFields...),
	},
	JobTypeFirmwareUpdate: {
		TargetTypes:  []TargetType{TargetTypeServer},
		PolicyFields: []PolicyField{PolicyFieldHardPoweroff, PolicyFieldFilters},
	},
	JobTypeInventorySync: {
		TargetTypes: []TargetType{TargetTypeHost, TargetTypeCluster, TargetTypeVCenter},
	},
}

// IsParallelizable returns true if the steps of a job type may run concurrently.
func (t JobType) IsParallelizable() bool {
	return JobTypeSpecs[t].Parallelizable
}

// ValidateFor checks that the policy only sets fields used by the job type.
func (p JobPolicy) ValidateFor(t JobType) error {
	spec, ok := JobTypeSpecs[t]
	if !ok {
		return NewErrorFrom(ErrInvalidPolicy, "unknown job type %q", t)
	}
	var used []PolicyField
	if p.AllowVMShutdown {
		used = append(used, PolicyFieldVMShutdown)
	}
	if p.AllowHardPoweroff {
		used = append(used, PolicyFieldHardPoweroff)
	}
	if p.VMLimit != nil {
		if *p.VMLimit < 0 {
			return NewErrorFrom(ErrInvalidPolicy, "vmLimit must be positive")
		}
		used = append(used, PolicyFieldVMLimit)
	}
	if p.ShutdownTimeoutSeconds != 0 {
		if p.ShutdownTimeoutSeconds < 0 {
			return NewErrorFrom(ErrInvalidPolicy, "shutdownTimeoutSeconds must be positive")
		}
		used = append(used, PolicyFieldShutdownTimeout)
	}
	if p.HasFilters() {
		for _, f := range append(append([]string{}, p.TagFilters...), p.FolderFilters...) {
			if f == "" {
				return NewErrorFrom(ErrInvalidPolicy, "empty filter")
			}
		}
		used = append(used, PolicyFieldFilters)
	}
	for _, f := range used {
		if !IsInArray(f, spec.PolicyFields) {
			return NewErrorFrom(ErrInvalidPolicy, "field %s is not applicable to %s jobs", f, t)
		}
	}
	return nil
}
