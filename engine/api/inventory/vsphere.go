package inventory

import (
	"context"
	"time"

	"github.com/hostops/hops/engine/api/executor/vsphere"
	"github.com/hostops/hops/sdk"
	"github.com/hostops/hops/sdk/telemetry"
)

// VSphere reads host, cluster and vcenter facts from the vCenters.
type VSphere struct {
	clients *vsphere.Clients
}

func NewVSphere(clients *vsphere.Clients) *VSphere {
	return &VSphere{clients: clients}
}

func (p *VSphere) Facts(ctx context.Context, target sdk.TargetRef) (sdk.TargetFacts, error) {
	ctx, end := telemetry.Span(ctx, "inventory.VSphere.Facts", telemetry.Tag(telemetry.TagTargetType, string(target.Type)))
	defer end()

	if target.Type == sdk.TargetTypeVCenter {
		vc, err := p.clients.VCenter(target.ID)
		if err != nil {
			return sdk.TargetFacts{}, err
		}
		return sdk.TargetFacts{
			Target:                   target,
			Name:                     vc.Name,
			PowerState:               sdk.PowerStateOn,
			SupportsGracefulShutdown: true,
			ObservedAt:               time.Now(),
		}, nil
	}

	client, name, err := p.clients.Resolve(ctx, target)
	if err != nil {
		return sdk.TargetFacts{}, err
	}
	switch target.Type {
	case sdk.TargetTypeHost:
		host, err := client.LoadHost(ctx, name)
		if err != nil {
			return sdk.TargetFacts{}, err
		}
		vms, err := client.LoadVirtualMachines(ctx, host.Vm)
		if err != nil {
			return sdk.TargetFacts{}, err
		}
		return vsphere.HostFacts(target, *host, vms), nil
	case sdk.TargetTypeCluster:
		cluster, err := client.LoadCluster(ctx, name)
		if err != nil {
			return sdk.TargetFacts{}, err
		}
		return vsphere.ClusterFacts(target, *cluster), nil
	}
	return sdk.TargetFacts{}, sdk.NewErrorFrom(sdk.ErrNotImplemented, "no vsphere facts for target type %q", target.Type)
}
