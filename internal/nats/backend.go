// Package nats dispatches job runs over NATS JetStream. Run records and the
// scheduled index live in KV buckets, worker and agent hosts report
// heartbeats into TTL buckets, and agent job detail is fetched with
// request/reply.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/openjobspec/ojs-httpjob/internal/core"
	"github.com/openjobspec/ojs-httpjob/internal/kv"
)

// Option configures a Backend.
type Option func(*Backend)

// WithAgentTimeout bounds agent detail requests.
func WithAgentTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.agentTimeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// Backend implements engine.Dispatcher, core.AgentInspector and
// core.AgentRegistry on NATS.
type Backend struct {
	nc *nats.Conn
	js jetstream.JetStream

	runs      *kv.Store
	scheduled *kv.Store
	workers   *kv.Store
	agents    *kv.Store

	agentTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

var (
	_ core.AgentInspector = (*Backend)(nil)
	_ core.AgentRegistry  = (*Backend)(nil)
)

// New connects to NATS and sets up the stream and KV buckets.
func New(natsURL string, opts ...Option) (*Backend, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("httpjob-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := SetupJetStream(ctx, js); err != nil {
		nc.Close()
		return nil, fmt.Errorf("setting up JetStream: %w", err)
	}

	open := func(name string) (*kv.Store, error) {
		bucket, err := js.KeyValue(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("opening KV bucket %s: %w", name, err)
		}
		return kv.NewStore(bucket), nil
	}

	b := &Backend{
		nc:           nc,
		js:           js,
		agentTimeout: 5 * time.Second,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, target := range []struct {
		name string
		dst  **kv.Store
	}{
		{BucketRuns, &b.runs},
		{BucketScheduled, &b.scheduled},
		{BucketWorkers, &b.workers},
		{BucketAgents, &b.agents},
	} {
		store, err := open(target.name)
		if err != nil {
			nc.Close()
			return nil, err
		}
		*target.dst = store
	}

	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Conn returns the underlying NATS connection.
func (b *Backend) Conn() *nats.Conn {
	return b.nc
}

// Close closes the NATS connection.
func (b *Backend) Close() error {
	b.nc.Close()
	return nil
}

// Ping reports whether NATS is connected and JetStream answers.
func (b *Backend) Ping(ctx context.Context) error {
	if status := b.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("NATS status: %v", status)
	}
	if _, err := b.js.AccountInfo(ctx); err != nil {
		return fmt.Errorf("jetstream account info: %w", err)
	}
	return nil
}

// Dispatch records run and publishes it to its queue.
func (b *Backend) Dispatch(ctx context.Context, run *core.JobRun) error {
	if _, err := b.runs.PutJSON(ctx, run.ID, run); err != nil {
		return fmt.Errorf("store run %s: %w", run.ID, err)
	}
	if err := PublishJob(ctx, b.js, run.Queue, run.ID); err != nil {
		return err
	}
	b.publishEvent(EventRunEnqueued, run)
	return nil
}

// ScheduleRun records run and indexes it until PromoteScheduled picks it up.
func (b *Backend) ScheduleRun(ctx context.Context, run *core.JobRun) error {
	if _, err := b.runs.PutJSON(ctx, run.ID, run); err != nil {
		return fmt.Errorf("store run %s: %w", run.ID, err)
	}
	if _, err := b.scheduled.Put(ctx, run.ID, []byte(run.ScheduledAt)); err != nil {
		return fmt.Errorf("index scheduled run %s: %w", run.ID, err)
	}
	b.publishEvent(EventRunScheduled, run)
	return nil
}

// DeleteRun marks a run deleted. A run id already published stays in the
// stream; workers are expected to check the record state before executing.
func (b *Backend) DeleteRun(ctx context.Context, id string) (bool, error) {
	var run core.JobRun
	updated, err := b.runs.UpdateJSON(ctx, id, &run, func() bool {
		if run.State == core.StateDeleted {
			return false
		}
		run.State = core.StateDeleted
		run.DeletedAt = core.FormatTime(b.now())
		return true
	})
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !updated {
		return false, nil
	}
	if err := b.scheduled.Delete(ctx, id); err != nil {
		return true, fmt.Errorf("remove scheduled index for %s: %w", id, err)
	}
	b.publishEvent(EventRunDeleted, &run)
	return true, nil
}

// Run returns the stored run, or nil when id is unknown.
func (b *Backend) Run(ctx context.Context, id string) (*core.JobRun, error) {
	var run core.JobRun
	if _, err := b.runs.GetJSON(ctx, id, &run); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// Heartbeat records a worker as alive for HeartbeatTTL.
func (b *Backend) Heartbeat(ctx context.Context, info core.ServerInfo) error {
	info.LastHeartbeat = b.now().UTC()
	if _, err := b.workers.PutJSON(ctx, info.ID, info); err != nil {
		return fmt.Errorf("worker heartbeat %s: %w", info.ID, err)
	}
	return nil
}

// Servers lists workers with a live heartbeat, ordered by id.
func (b *Backend) Servers(ctx context.Context) ([]core.ServerInfo, error) {
	keys, err := b.workers.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	servers := make([]core.ServerInfo, 0, len(keys))
	for _, key := range keys {
		var info core.ServerInfo
		if _, err := b.workers.GetJSON(ctx, key, &info); err != nil {
			continue
		}
		servers = append(servers, info)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}
