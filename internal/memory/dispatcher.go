package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// Dispatcher keeps job runs in memory. Dispatched runs stay in the enqueued
// state since no worker consumes them; it serves local runs and tests.
type Dispatcher struct {
	mu      sync.Mutex
	runs    map[string]*core.JobRun
	servers []core.ServerInfo
	now     func() time.Time
}

// NewDispatcher returns a Dispatcher reporting servers as its live workers.
func NewDispatcher(servers ...core.ServerInfo) *Dispatcher {
	return &Dispatcher{
		runs:    make(map[string]*core.JobRun),
		servers: servers,
		now:     time.Now,
	}
}

// SetServers replaces the reported worker list.
func (d *Dispatcher) SetServers(servers ...core.ServerInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.servers = servers
}

func (d *Dispatcher) Dispatch(_ context.Context, run *core.JobRun) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *run
	d.runs[run.ID] = &cp
	return nil
}

func (d *Dispatcher) ScheduleRun(ctx context.Context, run *core.JobRun) error {
	return d.Dispatch(ctx, run)
}

func (d *Dispatcher) DeleteRun(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	run, ok := d.runs[id]
	if !ok || run.State == core.StateDeleted {
		return false, nil
	}
	run.State = core.StateDeleted
	run.DeletedAt = core.FormatTime(d.now())
	return true, nil
}

func (d *Dispatcher) Run(_ context.Context, id string) (*core.JobRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	run, ok := d.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (d *Dispatcher) Servers(context.Context) ([]core.ServerInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]core.ServerInfo, len(d.servers))
	copy(out, d.servers)
	return out, nil
}

// Runs returns every tracked run ordered by id.
func (d *Dispatcher) Runs() []*core.JobRun {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*core.JobRun, 0, len(d.runs))
	for _, r := range d.runs {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PromoteScheduled moves due scheduled runs to the enqueued state.
func (d *Dispatcher) PromoteScheduled(context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	promoted := 0
	for _, r := range d.runs {
		if r.State != core.StateScheduled {
			continue
		}
		at, err := time.Parse(core.TimeFormat, r.ScheduledAt)
		if err != nil || now.Before(at) {
			continue
		}
		r.State = core.StateEnqueued
		r.EnqueuedAt = core.FormatTime(now)
		promoted++
	}
	return promoted, nil
}
