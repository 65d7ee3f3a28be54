package executor

import (
	"context"
	"sync"

	"github.com/hostops/hops/sdk"
)

// Registry dispatches requests to the executor registered for their target type.
type Registry struct {
	mutex     sync.RWMutex
	executors map[sdk.TargetType]Executor
}

var (
	_ Executor  = new(Registry)
	_ Canceller = new(Registry)
)

func NewRegistry() *Registry {
	return &Registry{executors: make(map[sdk.TargetType]Executor)}
}

// Register sets the executor of the given target types.
func (r *Registry) Register(e Executor, types ...sdk.TargetType) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, t := range types {
		r.executors[t] = e
	}
}

// Get returns the executor of a target type.
func (r *Registry) Get(t sdk.TargetType) (Executor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	e, ok := r.executors[t]
	if !ok {
		return nil, sdk.NewErrorFrom(sdk.ErrNotImplemented, "no executor for target type %q", t)
	}
	return e, nil
}

// TargetTypes returns the target types with a registered executor.
func (r *Registry) TargetTypes() []sdk.TargetType {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	res := make([]sdk.TargetType, 0, len(r.executors))
	for _, t := range sdk.TargetTypes {
		if _, ok := r.executors[t]; ok {
			res = append(res, t)
		}
	}
	return res
}

func (r *Registry) Execute(ctx context.Context, req Request) (Outcome, error) {
	e, err := r.Get(req.Target.Type)
	if err != nil {
		return Outcome{}, err
	}
	return e.Execute(ctx, req)
}

func (r *Registry) Poll(ctx context.Context, req Request) (Outcome, error) {
	e, err := r.Get(req.Target.Type)
	if err != nil {
		return Outcome{}, err
	}
	return e.Poll(ctx, req)
}

// Cancel calls Cancel on the target executor if it implements Canceller.
func (r *Registry) Cancel(ctx context.Context, req Request) error {
	e, err := r.Get(req.Target.Type)
	if err != nil {
		return err
	}
	c, ok := e.(Canceller)
	if !ok {
		return nil
	}
	return c.Cancel(ctx, req)
}
