package vsphere

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/rockbears/log"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/hostops/hops/sdk"
)

//go:generate mockgen -source=client.go -destination=mock_vsphere/client_mock.go -package mock_vsphere

var (
	hostProperties    = []string{"name", "parent", "tag", "runtime", "capability", "vm"}
	clusterProperties = []string{"name", "parent", "tag", "configurationEx", "host"}
	vmProperties      = []string{"name", "parent", "tag", "runtime"}
)

// HostSystem is an ESXi host with its inventory path and the DRS state of its cluster.
type HostSystem struct {
	mo.HostSystem
	InventoryPath string
	DRSEnabled    bool
}

// ClusterComputeResource is a cluster with its inventory path.
type ClusterComputeResource struct {
	mo.ClusterComputeResource
	InventoryPath string
	DRSEnabled    bool
}

// VSphereClient is the subset of the vSphere API used by the engine.
type VSphereClient interface {
	ListClusters(ctx context.Context) ([]mo.ClusterComputeResource, error)
	ListHosts(ctx context.Context) ([]mo.HostSystem, error)
	ListVirtualMachines(ctx context.Context) ([]mo.VirtualMachine, error)
	LoadHost(ctx context.Context, name string) (*HostSystem, error)
	LoadCluster(ctx context.Context, name string) (*ClusterComputeResource, error)
	LoadVirtualMachines(ctx context.Context, refs []types.ManagedObjectReference) ([]mo.VirtualMachine, error)
	EnterMaintenanceMode(ctx context.Context, host types.ManagedObjectReference, evacuate bool) (string, error)
	RebootHost(ctx context.Context, host types.ManagedObjectReference, force bool) (string, error)
	ShutdownGuest(ctx context.Context, vm types.ManagedObjectReference) error
	PowerOffVirtualMachine(ctx context.Context, vm types.ManagedObjectReference) error
	WaitForVirtualMachinePowerOff(ctx context.Context, vm types.ManagedObjectReference, timeout time.Duration) error
	TaskInfo(ctx context.Context, taskID string) (*types.TaskInfo, error)
	CancelTask(ctx context.Context, taskID string) error
	Logout(ctx context.Context) error
}

// Connect opens a session on a vCenter.
func Connect(ctx context.Context, vc sdk.VCenter) (VSphereClient, error) {
	u, err := url.Parse(vc.URL)
	if err != nil {
		return nil, sdk.NewErrorFrom(sdk.ErrWrongRequest, "invalid url for vcenter %s: %v", vc.ID, err)
	}
	if u.Path == "" {
		u.Path = "/sdk"
	}
	u.User = url.UserPassword(vc.User, vc.Password)

	ctxC, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	c, err := govmomi.NewClient(ctxC, u, vc.Insecure)
	if err != nil {
		return nil, wrapError(err, "unable to connect to vcenter %s", vc.ID)
	}
	log.Info(ctx, "connected to vcenter %s (%s)", vc.ID, u.Host)
	return NewVSphereClient(c, vc.Datacenter), nil
}

func NewVSphereClient(vclient *govmomi.Client, datacenter string) VSphereClient {
	return &vSphereClient{
		vclient:        vclient,
		requestTimeout: 20 * time.Second,
		datacenter:     datacenter,
	}
}

type vSphereClient struct {
	datacenter     string
	vclient        *govmomi.Client
	requestTimeout time.Duration
}

// wrapError maps transport failures to the executor error taxonomy.
func wrapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return sdk.NewError(sdk.ErrTimeout, sdk.WrapError(err, format, args...))
	case errors.As(err, &netErr):
		return sdk.NewError(sdk.ErrTargetUnreachable, sdk.WrapError(err, format, args...))
	}
	return sdk.WrapError(err, format, args...)
}

func (c *vSphereClient) finder(ctx context.Context) (*find.Finder, error) {
	finder := find.NewFinder(c.vclient.Client, false)

	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	datacenter, err := finder.DatacenterOrDefault(ctxC, c.datacenter)
	if err != nil {
		return nil, wrapError(err, "unable to find datacenter %q", c.datacenter)
	}
	finder.SetDatacenter(datacenter)

	return finder, nil
}

func (c *vSphereClient) retrieve(ctx context.Context, kind string, ps []string, dst interface{}) error {
	m := view.NewManager(c.vclient.Client)

	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()

	v, err := m.CreateContainerView(ctxC, c.vclient.ServiceContent.RootFolder, []string{kind}, true)
	if err != nil {
		return wrapError(err, "unable to create container view for %s", kind)
	}
	defer v.Destroy(ctx) // nolint

	ctxR, cancelR := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelR()
	if err := v.Retrieve(ctxR, []string{kind}, ps, dst); err != nil {
		return wrapError(err, "unable to retrieve %s from vsphere", kind)
	}
	return nil
}

func (c *vSphereClient) ListClusters(ctx context.Context) ([]mo.ClusterComputeResource, error) {
	var clusters []mo.ClusterComputeResource
	if err := c.retrieve(ctx, "ClusterComputeResource", []string{"name"}, &clusters); err != nil {
		return nil, err
	}
	return clusters, nil
}

func (c *vSphereClient) ListHosts(ctx context.Context) ([]mo.HostSystem, error) {
	var hosts []mo.HostSystem
	if err := c.retrieve(ctx, "HostSystem", []string{"name", "runtime"}, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

func (c *vSphereClient) ListVirtualMachines(ctx context.Context) ([]mo.VirtualMachine, error) {
	var vms []mo.VirtualMachine
	if err := c.retrieve(ctx, "VirtualMachine", []string{"name", "runtime"}, &vms); err != nil {
		return nil, err
	}
	return vms, nil
}

func (c *vSphereClient) drsEnabled(ctx context.Context, ref types.ManagedObjectReference) (bool, error) {
	var cluster mo.ClusterComputeResource
	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	if err := property.DefaultCollector(c.vclient.Client).RetrieveOne(ctxC, ref, []string{"configurationEx"}, &cluster); err != nil {
		return false, wrapError(err, "unable to retrieve cluster %s configuration", ref.Value)
	}
	return clusterDRSEnabled(cluster), nil
}

func clusterDRSEnabled(cluster mo.ClusterComputeResource) bool {
	cfg, ok := cluster.ConfigurationEx.(*types.ClusterConfigInfoEx)
	if !ok || cfg.DrsConfig.Enabled == nil {
		return false
	}
	return *cfg.DrsConfig.Enabled
}

func (c *vSphereClient) LoadHost(ctx context.Context, name string) (*HostSystem, error) {
	finder, err := c.finder(ctx)
	if err != nil {
		return nil, err
	}

	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	obj, err := finder.HostSystem(ctxC, name)
	if err != nil {
		var notFound *find.NotFoundError
		if errors.As(err, &notFound) {
			return nil, sdk.NewErrorFrom(sdk.ErrNotFound, "host %q not found", name)
		}
		return nil, wrapError(err, "unable to find host %q", name)
	}

	res := HostSystem{InventoryPath: obj.InventoryPath}
	if err := obj.Properties(ctxC, obj.Reference(), hostProperties, &res.HostSystem); err != nil {
		return nil, wrapError(err, "unable to retrieve host %q properties", name)
	}
	if res.Parent != nil && res.Parent.Type == "ClusterComputeResource" {
		res.DRSEnabled, err = c.drsEnabled(ctx, *res.Parent)
		if err != nil {
			return nil, err
		}
	}
	return &res, nil
}

func (c *vSphereClient) LoadCluster(ctx context.Context, name string) (*ClusterComputeResource, error) {
	finder, err := c.finder(ctx)
	if err != nil {
		return nil, err
	}

	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	obj, err := finder.ClusterComputeResource(ctxC, name)
	if err != nil {
		var notFound *find.NotFoundError
		if errors.As(err, &notFound) {
			return nil, sdk.NewErrorFrom(sdk.ErrNotFound, "cluster %q not found", name)
		}
		return nil, wrapError(err, "unable to find cluster %q", name)
	}

	res := ClusterComputeResource{InventoryPath: obj.InventoryPath}
	if err := obj.Properties(ctxC, obj.Reference(), clusterProperties, &res.ClusterComputeResource); err != nil {
		return nil, wrapError(err, "unable to retrieve cluster %q properties", name)
	}
	res.DRSEnabled = clusterDRSEnabled(res.ClusterComputeResource)
	return &res, nil
}

func (c *vSphereClient) LoadVirtualMachines(ctx context.Context, refs []types.ManagedObjectReference) ([]mo.VirtualMachine, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	var vms []mo.VirtualMachine
	if err := property.DefaultCollector(c.vclient.Client).Retrieve(ctxC, refs, vmProperties, &vms); err != nil {
		return nil, wrapError(err, "unable to retrieve virtual machines")
	}
	return vms, nil
}

func (c *vSphereClient) EnterMaintenanceMode(ctx context.Context, ref types.ManagedObjectReference, evacuate bool) (string, error) {
	host := object.NewHostSystem(c.vclient.Client, ref)
	log.Info(ctx, "entering maintenance mode on host %s (evacuate: %v)", ref.Value, evacuate)

	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	task, err := host.EnterMaintenanceMode(ctxC, 0, evacuate, nil)
	if err != nil {
		return "", wrapError(err, "unable to enter maintenance mode on host %s", ref.Value)
	}
	return task.Reference().Value, nil
}

func (c *vSphereClient) RebootHost(ctx context.Context, ref types.ManagedObjectReference, force bool) (string, error) {
	log.Info(ctx, "rebooting host %s (force: %v)", ref.Value, force)

	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	res, err := methods.RebootHost_Task(ctxC, c.vclient.Client, &types.RebootHost_Task{This: ref, Force: force})
	if err != nil {
		return "", wrapError(err, "unable to reboot host %s", ref.Value)
	}
	return res.Returnval.Value, nil
}

func (c *vSphereClient) ShutdownGuest(ctx context.Context, ref types.ManagedObjectReference) error {
	vm := object.NewVirtualMachine(c.vclient.Client, ref)
	log.Info(ctx, "shutting down guest of virtual machine %s", ref.Value)

	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	return wrapError(vm.ShutdownGuest(ctxC), "unable to shutdown guest of %s", ref.Value)
}

func (c *vSphereClient) PowerOffVirtualMachine(ctx context.Context, ref types.ManagedObjectReference) error {
	vm := object.NewVirtualMachine(c.vclient.Client, ref)
	log.Warn(ctx, "powering off virtual machine %s", ref.Value)

	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	task, err := vm.PowerOff(ctxC)
	if err != nil {
		return wrapError(err, "unable to power off %s", ref.Value)
	}
	return wrapError(task.Wait(ctx), "error while powering off %s", ref.Value)
}

func (c *vSphereClient) WaitForVirtualMachinePowerOff(ctx context.Context, ref types.ManagedObjectReference, timeout time.Duration) error {
	vm := object.NewVirtualMachine(c.vclient.Client, ref)

	ctxTo, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug(ctx, "waiting virtual machine %s to be powered off...", ref.Value)
	if err := vm.WaitForPowerState(ctxTo, types.VirtualMachinePowerStatePoweredOff); err != nil {
		return wrapError(err, "error while waiting for power state off on %s", ref.Value)
	}
	return wrapError(ctxTo.Err(), "virtual machine %s is still powered on", ref.Value)
}

func taskRef(taskID string) types.ManagedObjectReference {
	return types.ManagedObjectReference{Type: "Task", Value: taskID}
}

func (c *vSphereClient) TaskInfo(ctx context.Context, taskID string) (*types.TaskInfo, error) {
	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	var t mo.Task
	if err := property.DefaultCollector(c.vclient.Client).RetrieveOne(ctxC, taskRef(taskID), []string{"info"}, &t); err != nil {
		return nil, wrapError(err, "unable to retrieve task %s", taskID)
	}
	return &t.Info, nil
}

func (c *vSphereClient) CancelTask(ctx context.Context, taskID string) error {
	ctxC, cancelC := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelC()
	return wrapError(object.NewTask(c.vclient.Client, taskRef(taskID)).Cancel(ctxC), "unable to cancel task %s", taskID)
}

func (c *vSphereClient) Logout(ctx context.Context) error {
	return wrapError(c.vclient.Logout(ctx), "unable to logout")
}
