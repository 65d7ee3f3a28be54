package sdk

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rockbears/log"

	hopslog "github.com/hostops/hops/sdk/log"
)

// GoRoutine is a named goroutine tracked by GoRoutines.
type GoRoutine struct {
	ctx     context.Context
	Name    string
	Func    func(ctx context.Context)
	Restart bool
	Active  bool
	mutex   sync.RWMutex
}

func (g *GoRoutine) isActive() bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.Active
}

func (g *GoRoutine) setActive(b bool) {
	g.mutex.Lock()
	g.Active = b
	g.mutex.Unlock()
}

// GoRoutines contains list of goroutines launched by a service.
type GoRoutines struct {
	mutex  sync.RWMutex
	status []*GoRoutine
}

// NewGoRoutines instanciates a new GoRoutines manager. Goroutines started with
// RunWithRestart are restarted by a watcher loop if they end before ctx is done.
func NewGoRoutines(ctx context.Context) *GoRoutines {
	m := &GoRoutines{}
	go func() {
		tick := time.NewTicker(10 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				m.restartGoRoutines()
			}
		}
	}()
	return m
}

func (m *GoRoutines) restartGoRoutines() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, g := range m.status {
		if g.Restart && !g.isActive() && g.ctx.Err() == nil {
			log.Info(g.ctx, "restarting goroutine %q", g.Name)
			m.exec(g)
		}
	}
}

// GetStatus returns the monitoring status of tracked goroutines.
func (m *GoRoutines) GetStatus() []MonitoringStatusLine {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	lines := make([]MonitoringStatusLine, 0, len(m.status))
	for _, g := range m.status {
		status := MonitoringStatusOK
		value := "running"
		if !g.isActive() {
			status = MonitoringStatusAlert
			value = "stopped"
		}
		lines = append(lines, MonitoringStatusLine{Status: status, Component: "goroutine/" + g.Name, Value: value})
	}
	return lines
}

func (m *GoRoutines) register(g *GoRoutine) {
	m.mutex.Lock()
	m.status = append(m.status, g)
	m.mutex.Unlock()
}

// Run runs the function within a tracked goroutine.
func (m *GoRoutines) Run(c context.Context, name string, fn func(ctx context.Context)) {
	g := &GoRoutine{ctx: c, Name: name, Func: fn}
	m.register(g)
	m.exec(g)
}

// RunWithRestart runs the function within a tracked goroutine restarted when it stops.
func (m *GoRoutines) RunWithRestart(c context.Context, name string, fn func(ctx context.Context)) {
	g := &GoRoutine{ctx: c, Name: name, Func: fn, Restart: true}
	m.register(g)
	m.exec(g)
}

func (m *GoRoutines) exec(g *GoRoutine) {
	g.setActive(true)
	go func() {
		defer g.setActive(false)
		runSafe(g.ctx, g.Name, g.Func)
	}()
}

// Exec runs the function within an untracked goroutine, recovering panics.
func (m *GoRoutines) Exec(c context.Context, name string, fn func(ctx context.Context)) {
	go runSafe(c, name, fn)
}

func runSafe(ctx context.Context, name string, fn func(ctx context.Context)) {
	ctx = context.WithValue(ctx, hopslog.Goroutine, name)
	defer func() {
		if r := recover(); r != nil {
			err := WithStack(fmt.Errorf("[PANIC] goroutine %s: %v", name, r))
			ctx = context.WithValue(ctx, hopslog.Stacktrace, string(debug.Stack()))
			log.Error(ctx, "%v", err)
		}
	}()
	fn(ctx)
}
