package vsphere_test

import (
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/hostops/hops/engine/api/executor/vsphere"
	"github.com/hostops/hops/engine/api/executor/vsphere/mock_vsphere"
	"github.com/hostops/hops/sdk"
)

func NewVSphereClientTest(t *testing.T) *mock_vsphere.MockVSphereClient {
	ctrl := gomock.NewController(t)
	t.Cleanup(func() { ctrl.Finish() })
	mockClient := mock_vsphere.NewMockVSphereClient(ctrl)
	return mockClient
}

func newClients(c vsphere.VSphereClient) *vsphere.Clients {
	clients := vsphere.NewClients(nil)
	clients.Set(sdk.VCenter{ID: "vc-1", Name: "vCenter 1"}, c)
	return clients
}

func newVM(id, name string, state types.VirtualMachinePowerState, tags ...string) mo.VirtualMachine {
	var vm mo.VirtualMachine
	vm.Self = types.ManagedObjectReference{Type: "VirtualMachine", Value: id}
	vm.Name = name
	vm.Runtime.PowerState = state
	for _, t := range tags {
		vm.Tag = append(vm.Tag, types.Tag{Key: t})
	}
	return vm
}

func newHost(name string, drs bool, vms ...mo.VirtualMachine) *vsphere.HostSystem {
	host := &vsphere.HostSystem{DRSEnabled: drs, InventoryPath: "/dc1/host/cluster-a/" + name}
	host.Self = types.ManagedObjectReference{Type: "HostSystem", Value: "host-" + name}
	host.Name = name
	host.Runtime.PowerState = types.HostSystemPowerStatePoweredOn
	host.Capability = &types.HostCapability{RebootSupported: true, ShutdownSupported: true}
	for _, vm := range vms {
		host.Vm = append(host.Vm, vm.Self)
	}
	return host
}

type invalidations []sdk.TargetRef

func (i *invalidations) Invalidate(t sdk.TargetRef) { *i = append(*i, t) }
