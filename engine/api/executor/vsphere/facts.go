package vsphere

import (
	"path"
	"time"

	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/hostops/hops/sdk"
)

// PinnedTag marks virtual machines that cannot be migrated to another host.
const PinnedTag = "hops-pinned"

func tagKeys(tags []types.Tag) []string {
	if len(tags) == 0 {
		return nil
	}
	res := make([]string, len(tags))
	for i := range tags {
		res[i] = tags[i].Key
	}
	return res
}

// VirtualMachineFacts converts a virtual machine. A VM is migratable when DRS
// can move it and it is not pinned.
func VirtualMachineFacts(vm mo.VirtualMachine, drsEnabled bool) sdk.VMFacts {
	tags := tagKeys(vm.Tag)
	return sdk.VMFacts{
		Name:       vm.Name,
		PowerState: string(vm.Runtime.PowerState),
		Migratable: drsEnabled && !sdk.IsInArray(PinnedTag, tags),
		Tags:       tags,
	}
}

// HostFacts converts a host and its virtual machines.
func HostFacts(target sdk.TargetRef, host HostSystem, vms []mo.VirtualMachine) sdk.TargetFacts {
	f := sdk.TargetFacts{
		Target:        target,
		Name:          host.Name,
		PowerState:    string(host.Runtime.PowerState),
		Tags:          tagKeys(host.Tag),
		DRSEnabled:    host.DRSEnabled,
		InMaintenance: host.Runtime.InMaintenanceMode,
		ObservedAt:    time.Now(),
	}
	if f.PowerState == "" {
		f.PowerState = sdk.PowerStateUnknown
	}
	if host.InventoryPath != "" {
		f.Folder = path.Dir(host.InventoryPath)
	}
	if host.Capability != nil {
		f.SupportsGracefulShutdown = host.Capability.RebootSupported && host.Capability.ShutdownSupported
	}
	for _, vm := range vms {
		f.VMs = append(f.VMs, VirtualMachineFacts(vm, host.DRSEnabled))
	}
	return f
}

// ClusterFacts converts a cluster. Clusters have no VMs of their own.
func ClusterFacts(target sdk.TargetRef, cluster ClusterComputeResource) sdk.TargetFacts {
	f := sdk.TargetFacts{
		Target:                   target,
		Name:                     cluster.Name,
		PowerState:               sdk.PowerStateOn,
		Tags:                     tagKeys(cluster.Tag),
		DRSEnabled:               cluster.DRSEnabled,
		SupportsGracefulShutdown: true,
		ObservedAt:               time.Now(),
	}
	if cluster.InventoryPath != "" {
		f.Folder = path.Dir(cluster.InventoryPath)
	}
	return f
}
