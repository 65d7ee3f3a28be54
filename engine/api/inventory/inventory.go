// Package inventory provides the live facts of targets.
package inventory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hostops/hops/sdk"
)

// Provider returns the current facts of a target.
type Provider interface {
	Facts(ctx context.Context, target sdk.TargetRef) (sdk.TargetFacts, error)
}

// StaticTarget is a target declared in the configuration file.
type StaticTarget struct {
	ID                       string        `toml:"id" json:"id"`
	Type                     string        `toml:"type" json:"type"`
	Name                     string        `toml:"name" json:"name,omitempty"`
	PowerState               string        `toml:"powerState" json:"powerState"`
	Tags                     []string      `toml:"tags" json:"tags,omitempty"`
	Folder                   string        `toml:"folder" json:"folder,omitempty"`
	DRSEnabled               bool          `toml:"drsEnabled" json:"drsEnabled"`
	SupportsGracefulShutdown bool          `toml:"supportsGracefulShutdown" json:"supportsGracefulShutdown"`
	VMs                      []sdk.VMFacts `toml:"vms" json:"vms,omitempty"`
}

// Static serves facts known in advance.
type Static struct {
	mutex sync.RWMutex
	facts map[sdk.TargetRef]sdk.TargetFacts
}

func NewStatic(targets ...StaticTarget) *Static {
	s := &Static{facts: make(map[sdk.TargetRef]sdk.TargetFacts, len(targets))}
	for _, t := range targets {
		ref := sdk.TargetRef{ID: t.ID, Type: sdk.TargetType(t.Type)}
		f := sdk.TargetFacts{
			Target:                   ref,
			Name:                     t.Name,
			PowerState:               t.PowerState,
			Tags:                     t.Tags,
			Folder:                   t.Folder,
			VMs:                      t.VMs,
			DRSEnabled:               t.DRSEnabled,
			SupportsGracefulShutdown: t.SupportsGracefulShutdown,
		}
		if f.PowerState == "" {
			f.PowerState = sdk.PowerStateOn
		}
		s.Set(f)
	}
	return s
}

// Set replaces the facts of a target.
func (s *Static) Set(f sdk.TargetFacts) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.facts[f.Target] = f
}

func (s *Static) Facts(_ context.Context, target sdk.TargetRef) (sdk.TargetFacts, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	f, ok := s.facts[target]
	if !ok {
		return sdk.TargetFacts{}, sdk.NewErrorFrom(sdk.ErrNotFound, "no facts for target %s", target)
	}
	f.VMs = append([]sdk.VMFacts(nil), f.VMs...)
	f.Tags = append([]string(nil), f.Tags...)
	f.ObservedAt = time.Now()
	return f, nil
}

// Cached keeps facts in memory for a while. Executors invalidate the facts of
// the targets they act upon.
type Cached struct {
	provider Provider
	cache    *gocache.Cache
}

func NewCached(p Provider, ttl time.Duration) *Cached {
	return &Cached{provider: p, cache: gocache.New(ttl, 2*ttl)}
}

func (c *Cached) Facts(ctx context.Context, target sdk.TargetRef) (sdk.TargetFacts, error) {
	if f, ok := c.cache.Get(target.String()); ok {
		return f.(sdk.TargetFacts), nil
	}
	f, err := c.provider.Facts(ctx, target)
	if err != nil {
		return f, err
	}
	c.cache.SetDefault(target.String(), f)
	return f, nil
}

// Invalidate drops the facts of a target. Invalidating a vcenter drops everything.
func (c *Cached) Invalidate(target sdk.TargetRef) {
	if target.Type == sdk.TargetTypeVCenter {
		c.cache.Flush()
		return
	}
	c.cache.Delete(target.String())
}

// Router dispatches to the provider of the target type.
type Router map[sdk.TargetType]Provider

func (r Router) Facts(ctx context.Context, target sdk.TargetRef) (sdk.TargetFacts, error) {
	p, ok := r[target.Type]
	if !ok {
		return sdk.TargetFacts{}, sdk.NewErrorFrom(sdk.ErrNotFound, "no inventory for target type %q", target.Type)
	}
	return p.Facts(ctx, target)
}
