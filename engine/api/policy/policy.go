package policy

import (
	"fmt"
	"strings"

	"github.com/hostops/hops/sdk"
)

type DenyCode string

const (
	DenyVMShutdownForbidden   DenyCode = "vm_shutdown_forbidden"
	DenyHardPoweroffForbidden DenyCode = "hard_poweroff_forbidden"
	DenyVMLimitExceeded       DenyCode = "vm_limit_exceeded"
	DenyFilterMismatch        DenyCode = "filter_mismatch"
)

// ProposedAction describes what a step is about to do on its target.
type ProposedAction struct {
	JobType              sdk.JobType   `json:"jobType"`
	Target               sdk.TargetRef `json:"target"`
	AffectedVMs          []string      `json:"affectedVms,omitempty"`
	RequiresVMShutdown   bool          `json:"requiresVmShutdown"`
	RequiresHardPowerOff bool          `json:"requiresHardPowerOff"`
}

// Decision is the result of Evaluate. A transient denial may be lifted by an
// operator (e.g. after migrating VMs away); a structural one cannot.
type Decision struct {
	Allowed   bool     `json:"allowed"`
	Reason    string   `json:"reason,omitempty"`
	Code      DenyCode `json:"code,omitempty"`
	Transient bool     `json:"transient"`
}

// Skip returns true if the step should be skipped rather than failed or paused.
func (d Decision) Skip() bool {
	return !d.Allowed && d.Code == DenyFilterMismatch
}

// Error returns a sdk.ErrPolicyDenied error for denials, nil otherwise.
func (d Decision) Error() error {
	if d.Allowed {
		return nil
	}
	return sdk.NewErrorFrom(sdk.ErrPolicyDenied, "%s: %s", d.Code, d.Reason)
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(code DenyCode, transient bool, format string, args ...interface{}) Decision {
	return Decision{Code: code, Transient: transient, Reason: fmt.Sprintf(format, args...)}
}

// Propose builds the action a job type implies on a target from its live facts.
func Propose(jobType sdk.JobType, facts sdk.TargetFacts) ProposedAction {
	a := ProposedAction{JobType: jobType, Target: facts.Target}
	if jobType == sdk.JobTypeInventorySync {
		return a
	}

	poweredOn := facts.PoweredOnVMs()
	var nonMigratable bool
	for _, vm := range poweredOn {
		a.AffectedVMs = append(a.AffectedVMs, vm.Name)
		if !vm.Migratable {
			nonMigratable = true
		}
	}

	switch jobType {
	case sdk.JobTypeMaintenanceMode, sdk.JobTypeDRSEvacuation:
		a.RequiresVMShutdown = nonMigratable
	case sdk.JobTypePowerCycle:
		a.RequiresVMShutdown = nonMigratable || (len(poweredOn) > 0 && !facts.DRSEnabled)
		a.RequiresHardPowerOff = facts.PowerState == sdk.PowerStateOn && !facts.SupportsGracefulShutdown
	case sdk.JobTypeFirmwareUpdate:
		a.RequiresHardPowerOff = facts.PowerState == sdk.PowerStateOn && !facts.SupportsGracefulShutdown
	}
	return a
}

// Evaluate decides whether the policy allows the proposed action on a target.
// It has no side effect.
func Evaluate(p sdk.JobPolicy, a ProposedAction, facts sdk.TargetFacts) Decision {
	if len(p.TagFilters) > 0 && !matchTags(p.TagFilters, facts.Tags) {
		return deny(DenyFilterMismatch, false, "target %s tags %v do not match %v", a.Target, facts.Tags, p.TagFilters)
	}
	if len(p.FolderFilters) > 0 && !matchFolder(p.FolderFilters, facts.Folder) {
		return deny(DenyFilterMismatch, false, "target %s folder %q does not match %v", a.Target, facts.Folder, p.FolderFilters)
	}
	if a.RequiresHardPowerOff && !p.AllowHardPoweroff {
		return deny(DenyHardPoweroffForbidden, false, "target %s does not support graceful shutdown and hard power-off is not allowed", a.Target)
	}
	if a.RequiresVMShutdown && !p.AllowVMShutdown {
		return deny(DenyVMShutdownForbidden, true, "%d VM(s) on %s would have to be shut down and VM shutdown is not allowed", len(a.AffectedVMs), a.Target)
	}
	if p.VMLimit != nil && len(a.AffectedVMs) > *p.VMLimit {
		return deny(DenyVMLimitExceeded, true, "%d VM(s) affected on %s, limit is %d", len(a.AffectedVMs), a.Target, *p.VMLimit)
	}
	return allow()
}

func matchTags(filters, tags []string) bool {
	for _, f := range filters {
		for _, t := range tags {
			if strings.EqualFold(f, t) {
				return true
			}
		}
	}
	return false
}

func matchFolder(filters []string, folder string) bool {
	if folder == "" {
		return false
	}
	for _, f := range filters {
		f = strings.TrimSuffix(f, "/")
		if folder == f || strings.HasPrefix(folder, f+"/") {
			return true
		}
	}
	return false
}
