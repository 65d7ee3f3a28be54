package vsphere

import (
	"context"
	"encoding/json"

	"github.com/rockbears/log"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/hostops/hops/engine/api/executor"
	"github.com/hostops/hops/sdk"
)

// Invalidator drops cached facts of a target.
type Invalidator interface {
	Invalidate(target sdk.TargetRef)
}

// Executor carries out host, cluster and vcenter steps through the vSphere API.
type Executor struct {
	clients     *Clients
	invalidator Invalidator
}

var (
	_ executor.Executor  = new(Executor)
	_ executor.Canceller = new(Executor)
)

func NewExecutor(clients *Clients, invalidator Invalidator) *Executor {
	return &Executor{clients: clients, invalidator: invalidator}
}

// TargetTypes returns the target types handled by the executor.
func (e *Executor) TargetTypes() []sdk.TargetType {
	return []sdk.TargetType{sdk.TargetTypeHost, sdk.TargetTypeCluster, sdk.TargetTypeVCenter}
}

func (e *Executor) Execute(ctx context.Context, req executor.Request) (executor.Outcome, error) {
	client, name, err := e.clients.Resolve(ctx, req.Target)
	if err != nil {
		return executor.Outcome{}, err
	}

	if req.Job.Type == sdk.JobTypeInventorySync {
		return e.syncInventory(ctx, client, req.Target)
	}
	if req.Target.Type != sdk.TargetTypeHost {
		return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrPolicyRejectedByTarget, "%s is not supported on %s targets", req.Job.Type, req.Target.Type)
	}

	host, err := client.LoadHost(ctx, name)
	if err != nil {
		return executor.Outcome{}, err
	}
	vms, err := client.LoadVirtualMachines(ctx, host.Vm)
	if err != nil {
		return executor.Outcome{}, err
	}
	facts := HostFacts(req.Target, *host, vms)

	switch req.Job.Type {
	case sdk.JobTypeMaintenanceMode, sdk.JobTypeDRSEvacuation:
		if host.Runtime.InMaintenanceMode {
			return executor.Succeeded("host %s is already in maintenance mode", name), nil
		}
		if out, blocked, err := e.shutdownVirtualMachines(ctx, client, req.Job.Policy, vms, facts, false); err != nil || blocked {
			return out, err
		}
		evacuate := req.Job.Type == sdk.JobTypeDRSEvacuation || host.DRSEnabled
		taskID, err := client.EnterMaintenanceMode(ctx, host.Reference(), evacuate)
		if err != nil {
			return executor.Outcome{}, err
		}
		e.invalidate(req.Target)
		return executor.InProgress(taskID, "entering maintenance mode on %s", name), nil

	case sdk.JobTypePowerCycle:
		if out, blocked, err := e.shutdownVirtualMachines(ctx, client, req.Job.Policy, vms, facts, !host.DRSEnabled); err != nil || blocked {
			return out, err
		}
		force := req.Job.Policy.AllowHardPoweroff
		if !force && !facts.SupportsGracefulShutdown {
			return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrPolicyRejectedByTarget, "host %s does not support graceful reboot", name)
		}
		taskID, err := client.RebootHost(ctx, host.Reference(), force)
		if err != nil {
			return executor.Outcome{}, err
		}
		e.invalidate(req.Target)
		return executor.InProgress(taskID, "rebooting %s", name), nil
	}

	return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrPolicyRejectedByTarget, "%s is not supported on vsphere hosts", req.Job.Type)
}

// shutdownVirtualMachines shuts down the powered-on VMs that cannot be moved
// away (all powered-on VMs if all is set). A guest shutdown that does not end
// within the policy timeout is escalated to a power-off if the policy allows it.
func (e *Executor) shutdownVirtualMachines(ctx context.Context, client VSphereClient, p sdk.JobPolicy, vms []mo.VirtualMachine, facts sdk.TargetFacts, all bool) (executor.Outcome, bool, error) {
	var refs []types.ManagedObjectReference
	for i, vm := range facts.VMs {
		if vm.PowerState == sdk.PowerStateOn && (all || !vm.Migratable) {
			refs = append(refs, vms[i].Reference())
		}
	}
	if len(refs) == 0 {
		return executor.Outcome{}, false, nil
	}
	if !p.AllowVMShutdown {
		return executor.Blocked("%d virtual machine(s) on %s must be shut down", len(refs), facts.Name), true, nil
	}

	for _, ref := range refs {
		errShutdown := client.ShutdownGuest(ctx, ref)
		if errShutdown == nil {
			errShutdown = client.WaitForVirtualMachinePowerOff(ctx, ref, p.ShutdownTimeout())
		}
		if errShutdown == nil {
			continue
		}
		if !p.AllowHardPoweroff {
			return executor.Outcome{}, false, sdk.NewError(sdk.ErrTimeout, sdk.WrapError(errShutdown, "guest shutdown of %s did not complete", ref.Value))
		}
		log.Warn(ctx, "guest shutdown of %s failed, powering off: %v", ref.Value, errShutdown)
		if err := client.PowerOffVirtualMachine(ctx, ref); err != nil {
			return executor.Outcome{}, false, err
		}
	}
	return executor.Outcome{}, false, nil
}

func (e *Executor) syncInventory(ctx context.Context, client VSphereClient, target sdk.TargetRef) (executor.Outcome, error) {
	clusters, err := client.ListClusters(ctx)
	if err != nil {
		return executor.Outcome{}, err
	}
	hosts, err := client.ListHosts(ctx)
	if err != nil {
		return executor.Outcome{}, err
	}
	vms, err := client.ListVirtualMachines(ctx)
	if err != nil {
		return executor.Outcome{}, err
	}
	report := sdk.InventorySyncReport{Clusters: len(clusters), Hosts: len(hosts), VMs: len(vms)}
	e.invalidate(target)
	log.Info(ctx, "inventory of %s synced: %d cluster(s), %d host(s), %d vm(s)", target, report.Clusters, report.Hosts, report.VMs)
	b, _ := json.Marshal(report)
	return executor.Succeeded("%s", b), nil
}

func (e *Executor) invalidate(target sdk.TargetRef) {
	if e.invalidator != nil {
		e.invalidator.Invalidate(target)
	}
}

func (e *Executor) Poll(ctx context.Context, req executor.Request) (executor.Outcome, error) {
	taskID := req.ExternalTaskID()
	if taskID == "" {
		return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrWrongRequest, "step %d has no external task", req.Step.Sequence)
	}
	client, _, err := e.clients.Resolve(ctx, req.Target)
	if err != nil {
		return executor.Outcome{}, err
	}
	info, err := client.TaskInfo(ctx, taskID)
	if err != nil {
		return executor.Outcome{}, err
	}

	switch info.State {
	case types.TaskInfoStateSuccess:
		e.invalidate(req.Target)
		return executor.Succeeded("task %s (%s) succeeded", taskID, info.DescriptionId), nil
	case types.TaskInfoStateError:
		msg := "unknown error"
		if info.Error != nil {
			msg = info.Error.LocalizedMessage
		}
		return executor.Outcome{}, sdk.NewErrorFrom(sdk.ErrExternalTaskFailed, "task %s failed: %s", taskID, msg)
	}
	return executor.InProgress(taskID, "task %s is %s (%d%%)", taskID, info.State, info.Progress), nil
}

func (e *Executor) Cancel(ctx context.Context, req executor.Request) error {
	taskID := req.ExternalTaskID()
	if taskID == "" {
		return nil
	}
	client, _, err := e.clients.Resolve(ctx, req.Target)
	if err != nil {
		return err
	}
	return client.CancelTask(ctx, taskID)
}
