package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/hostops/hops/engine/api/executor/vsphere"
	"github.com/hostops/hops/engine/api/executor/vsphere/mock_vsphere"
	"github.com/hostops/hops/engine/api/inventory"
	"github.com/hostops/hops/sdk"
)

type countingProvider struct {
	inventory.Provider
	calls int
}

func (c *countingProvider) Facts(ctx context.Context, target sdk.TargetRef) (sdk.TargetFacts, error) {
	c.calls++
	return c.Provider.Facts(ctx, target)
}

func TestStatic(t *testing.T) {
	s := inventory.NewStatic(inventory.StaticTarget{
		ID:   "srv-1",
		Type: string(sdk.TargetTypeServer),
		Tags: []string{"rack-1"},
	})

	f, err := s.Facts(context.TODO(), sdk.TargetRef{ID: "srv-1", Type: sdk.TargetTypeServer})
	require.NoError(t, err)
	assert.Equal(t, sdk.PowerStateOn, f.PowerState)
	assert.Equal(t, []string{"rack-1"}, f.Tags)
	assert.False(t, f.ObservedAt.IsZero())

	_, err = s.Facts(context.TODO(), sdk.TargetRef{ID: "srv-1", Type: sdk.TargetTypeHost})
	assert.True(t, sdk.ErrorIs(err, sdk.ErrNotFound))
}

func TestCached(t *testing.T) {
	host := sdk.TargetRef{ID: "esxi-1", Type: sdk.TargetTypeHost}
	static := inventory.NewStatic()
	static.Set(sdk.TargetFacts{Target: host, PowerState: sdk.PowerStateOn})
	p := &countingProvider{Provider: static}
	c := inventory.NewCached(p, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := c.Facts(context.TODO(), host)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.calls)

	c.Invalidate(host)
	_, err := c.Facts(context.TODO(), host)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)

	c.Invalidate(sdk.TargetRef{ID: "vc-1", Type: sdk.TargetTypeVCenter})
	_, err = c.Facts(context.TODO(), host)
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)

	// errors are not cached
	_, err = c.Facts(context.TODO(), sdk.TargetRef{ID: "unknown", Type: sdk.TargetTypeHost})
	require.Error(t, err)
	_, err = c.Facts(context.TODO(), sdk.TargetRef{ID: "unknown", Type: sdk.TargetTypeHost})
	require.Error(t, err)
	assert.Equal(t, 5, p.calls)
}

func TestRouter(t *testing.T) {
	r := inventory.Router{sdk.TargetTypeServer: inventory.NewStatic(inventory.StaticTarget{ID: "srv-1", Type: "server"})}
	_, err := r.Facts(context.TODO(), sdk.TargetRef{ID: "srv-1", Type: sdk.TargetTypeServer})
	require.NoError(t, err)
	_, err = r.Facts(context.TODO(), sdk.TargetRef{ID: "c-1", Type: sdk.TargetTypeCluster})
	assert.True(t, sdk.ErrorIs(err, sdk.ErrNotFound))
}

func TestVSphere(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	c := mock_vsphere.NewMockVSphereClient(ctrl)
	clients := vsphere.NewClients(nil)
	clients.Set(sdk.VCenter{ID: "vc-1", Name: "Paris"}, c)
	p := inventory.NewVSphere(clients)

	host := &vsphere.HostSystem{DRSEnabled: true}
	host.Name = "esxi-1"
	host.Runtime.PowerState = types.HostSystemPowerStatePoweredOn
	var vm mo.VirtualMachine
	vm.Name = "web-1"
	vm.Runtime.PowerState = types.VirtualMachinePowerStatePoweredOn
	host.Vm = []types.ManagedObjectReference{{Type: "VirtualMachine", Value: "vm-1"}}

	c.EXPECT().LoadHost(gomock.Any(), "esxi-1").Return(host, nil)
	c.EXPECT().LoadVirtualMachines(gomock.Any(), host.Vm).Return([]mo.VirtualMachine{vm}, nil)

	f, err := p.Facts(context.TODO(), sdk.TargetRef{ID: "vc-1/esxi-1", Type: sdk.TargetTypeHost})
	require.NoError(t, err)
	assert.Equal(t, "esxi-1", f.Name)
	require.Len(t, f.VMs, 1)
	assert.True(t, f.VMs[0].Migratable)

	var cluster vsphere.ClusterComputeResource
	cluster.Name = "cluster-a"
	c.EXPECT().LoadCluster(gomock.Any(), "cluster-a").Return(&cluster, nil)
	f, err = p.Facts(context.TODO(), sdk.TargetRef{ID: "cluster-a", Type: sdk.TargetTypeCluster})
	require.NoError(t, err)
	assert.Equal(t, "cluster-a", f.Name)

	f, err = p.Facts(context.TODO(), sdk.TargetRef{ID: "vc-1", Type: sdk.TargetTypeVCenter})
	require.NoError(t, err)
	assert.Equal(t, "Paris", f.Name)

	_, err = p.Facts(context.TODO(), sdk.TargetRef{ID: "srv-1", Type: sdk.TargetTypeServer})
	assert.True(t, sdk.ErrorIs(err, sdk.ErrNotImplemented))
}
