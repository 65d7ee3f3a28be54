package vsphere

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rockbears/log"

	"github.com/hostops/hops/sdk"
	hopslog "github.com/hostops/hops/sdk/log"
)

// Clients holds the sessions to the configured vCenters, opened on first use.
//
// Host and cluster target ids are "<vcenter id>/<name>", or just "<name>" for
// the default vCenter. A vcenter target id is the vCenter id.
type Clients struct {
	mutex     sync.Mutex
	vcenters  map[string]sdk.VCenter
	clients   map[string]VSphereClient
	defaultID string
	connect   func(ctx context.Context, vc sdk.VCenter) (VSphereClient, error)
}

func NewClients(vcenters []sdk.VCenter) *Clients {
	c := &Clients{
		vcenters: make(map[string]sdk.VCenter, len(vcenters)),
		clients:  make(map[string]VSphereClient, len(vcenters)),
		connect:  Connect,
	}
	for i, vc := range vcenters {
		if i == 0 {
			c.defaultID = vc.ID
		}
		c.vcenters[vc.ID] = vc
	}
	return c
}

// Set registers an already opened client.
func (c *Clients) Set(vc sdk.VCenter, client VSphereClient) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.defaultID == "" {
		c.defaultID = vc.ID
	}
	c.vcenters[vc.ID] = vc
	c.clients[vc.ID] = client
}

// VCenters returns the configured vCenters sorted by id.
func (c *Clients) VCenters() []sdk.VCenter {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	res := make([]sdk.VCenter, 0, len(c.vcenters))
	for _, vc := range c.vcenters {
		res = append(res, vc)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// VCenter returns a configured vCenter.
func (c *Clients) VCenter(id string) (sdk.VCenter, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	vc, ok := c.vcenters[id]
	if !ok {
		return sdk.VCenter{}, sdk.NewErrorFrom(sdk.ErrNotFound, "vcenter %q not found", id)
	}
	return vc, nil
}

// Reset drops the session of a vCenter, a new one is opened on next use.
func (c *Clients) Reset(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.clients, id)
}

func (c *Clients) get(ctx context.Context, id string) (VSphereClient, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if client, ok := c.clients[id]; ok {
		return client, nil
	}
	vc, ok := c.vcenters[id]
	if !ok {
		return nil, sdk.NewErrorFrom(sdk.ErrNotFound, "vcenter %q not found", id)
	}
	ctx = context.WithValue(ctx, hopslog.VCenterID, id)
	client, err := c.connect(ctx, vc)
	if err != nil {
		return nil, err
	}
	c.clients[id] = client
	return client, nil
}

// Resolve returns the client of the vCenter owning a target and the name of the target in it.
func (c *Clients) Resolve(ctx context.Context, target sdk.TargetRef) (VSphereClient, string, error) {
	if target.Type == sdk.TargetTypeVCenter {
		client, err := c.get(ctx, target.ID)
		return client, "", err
	}
	id, name := c.defaultID, target.ID
	if i := strings.Index(target.ID, "/"); i > 0 {
		c.mutex.Lock()
		_, known := c.vcenters[target.ID[:i]]
		c.mutex.Unlock()
		if known {
			id, name = target.ID[:i], target.ID[i+1:]
		}
	}
	if id == "" {
		return nil, "", sdk.NewErrorFrom(sdk.ErrNotFound, "no vcenter configured for %s", target)
	}
	client, err := c.get(ctx, id)
	return client, name, err
}

// Close logs out of every opened session.
func (c *Clients) Close(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for id, client := range c.clients {
		if err := client.Logout(ctx); err != nil {
			log.Warn(ctx, "unable to logout from vcenter %s: %v", id, err)
		}
		delete(c.clients, id)
	}
}
