package policy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostops/hops/sdk"
)

func intPtr(i int) *int { return &i }

func hostFacts(vms ...sdk.VMFacts) sdk.TargetFacts {
	return sdk.TargetFacts{
		Target:                   sdk.TargetRef{ID: "esxi-1", Type: sdk.TargetTypeHost},
		PowerState:               sdk.PowerStateOn,
		Tags:                     []string{"prod", "rack-2"},
		Folder:                   "/dc1/host/cluster-a",
		VMs:                      vms,
		DRSEnabled:               true,
		SupportsGracefulShutdown: true,
	}
}

func TestPropose(t *testing.T) {
	facts := hostFacts(
		sdk.VMFacts{Name: "vm-1", PowerState: sdk.PowerStateOn, Migratable: true},
		sdk.VMFacts{Name: "vm-2", PowerState: sdk.PowerStateOn, Migratable: false},
		sdk.VMFacts{Name: "vm-3", PowerState: sdk.PowerStateOff},
	)

	a := Propose(sdk.JobTypeMaintenanceMode, facts)
	assert.Equal(t, []string{"vm-1", "vm-2"}, a.AffectedVMs)
	assert.True(t, a.RequiresVMShutdown)
	assert.False(t, a.RequiresHardPowerOff)

	facts.VMs[1].Migratable = true
	a = Propose(sdk.JobTypeDRSEvacuation, facts)
	assert.False(t, a.RequiresVMShutdown)

	facts.DRSEnabled = false
	a = Propose(sdk.JobTypePowerCycle, facts)
	assert.True(t, a.RequiresVMShutdown)

	a = Propose(sdk.JobTypeInventorySync, facts)
	assert.Empty(t, a.AffectedVMs)
	assert.False(t, a.RequiresVMShutdown)

	server := sdk.TargetFacts{Target: sdk.TargetRef{ID: "srv-1", Type: sdk.TargetTypeServer}, PowerState: sdk.PowerStateOn}
	a = Propose(sdk.JobTypeFirmwareUpdate, server)
	assert.True(t, a.RequiresHardPowerOff)
	server.SupportsGracefulShutdown = true
	a = Propose(sdk.JobTypeFirmwareUpdate, server)
	assert.False(t, a.RequiresHardPowerOff)
}

func TestEvaluate(t *testing.T) {
	facts := hostFacts()
	tests := []struct {
		name      string
		policy    sdk.JobPolicy
		action    ProposedAction
		allowed   bool
		code      DenyCode
		transient bool
	}{
		{
			name:    "nothing to shut down",
			action:  ProposedAction{AffectedVMs: []string{"vm-1"}},
			allowed: true,
		},
		{
			name:      "vm shutdown forbidden",
			action:    ProposedAction{AffectedVMs: []string{"vm-1"}, RequiresVMShutdown: true},
			code:      DenyVMShutdownForbidden,
			transient: true,
		},
		{
			name:    "vm shutdown allowed",
			policy:  sdk.JobPolicy{AllowVMShutdown: true},
			action:  ProposedAction{AffectedVMs: []string{"vm-1"}, RequiresVMShutdown: true},
			allowed: true,
		},
		{
			name:   "hard poweroff forbidden",
			policy: sdk.JobPolicy{AllowVMShutdown: true},
			action: ProposedAction{RequiresHardPowerOff: true},
			code:   DenyHardPoweroffForbidden,
		},
		{
			name:      "vm limit exceeded",
			policy:    sdk.JobPolicy{AllowVMShutdown: true, VMLimit: intPtr(1)},
			action:    ProposedAction{AffectedVMs: []string{"vm-1", "vm-2"}},
			code:      DenyVMLimitExceeded,
			transient: true,
		},
		{
			name:    "vm limit reached",
			policy:  sdk.JobPolicy{VMLimit: intPtr(2)},
			action:  ProposedAction{AffectedVMs: []string{"vm-1", "vm-2"}},
			allowed: true,
		},
		{
			name:   "tag filter mismatch",
			policy: sdk.JobPolicy{TagFilters: []string{"staging"}},
			code:   DenyFilterMismatch,
		},
		{
			name:    "tag filter match",
			policy:  sdk.JobPolicy{TagFilters: []string{"staging", "PROD"}},
			allowed: true,
		},
		{
			name:    "folder filter match",
			policy:  sdk.JobPolicy{FolderFilters: []string{"/dc1/host/"}},
			allowed: true,
		},
		{
			name:   "folder filter prefix is not a parent",
			policy: sdk.JobPolicy{FolderFilters: []string{"/dc1/ho"}},
			code:   DenyFilterMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.policy, tt.action, facts)
			assert.Equal(t, tt.allowed, d.Allowed, d.Reason)
			assert.Equal(t, tt.code, d.Code)
			assert.Equal(t, tt.transient, d.Transient)
			if tt.allowed {
				assert.NoError(t, d.Error())
			} else {
				assert.NotEmpty(t, d.Reason)
				assert.True(t, sdk.ErrorIs(d.Error(), sdk.ErrPolicyDenied))
			}
			assert.Equal(t, tt.code == DenyFilterMismatch, d.Skip())
		})
	}
}

func TestEvaluateShutdownAlwaysDeniedWithoutPermission(t *testing.T) {
	facts := hostFacts()
	for _, hard := range []bool{true, false} {
		for _, limit := range []*int{nil, intPtr(1), intPtr(100)} {
			for _, tags := range [][]string{nil, {"prod"}, {"other"}} {
				p := sdk.JobPolicy{AllowVMShutdown: false, AllowHardPoweroff: hard, VMLimit: limit, TagFilters: tags}
				a := ProposedAction{AffectedVMs: []string{"vm-1"}, RequiresVMShutdown: true}
				d := Evaluate(p, a, facts)
				require.False(t, d.Allowed, fmt.Sprintf("policy %+v", p))
			}
		}
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	facts := hostFacts(sdk.VMFacts{Name: "vm-1", PowerState: sdk.PowerStateOn})
	p := sdk.JobPolicy{VMLimit: intPtr(1)}
	a := Propose(sdk.JobTypeMaintenanceMode, facts)
	first := Evaluate(p, a, facts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(p, a, facts))
	}
}
