// Package engine is the bundled scheduler behind core.Scheduler. Recurring
// records live in a core.Store; job runs are handed to a Dispatcher that
// owns delivery to workers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// Dispatcher delivers job runs to workers and tracks them until they are
// picked up.
type Dispatcher interface {
	// Dispatch records run and makes it available to workers now.
	Dispatch(ctx context.Context, run *core.JobRun) error
	// ScheduleRun records run and holds it until run.ScheduledAt.
	ScheduleRun(ctx context.Context, run *core.JobRun) error
	// DeleteRun marks a run deleted. It reports false when the run is
	// unknown or already deleted.
	DeleteRun(ctx context.Context, id string) (bool, error)
	// Run returns a tracked run, or nil when id is unknown.
	Run(ctx context.Context, id string) (*core.JobRun, error)
	// Servers lists live workers.
	Servers(ctx context.Context) ([]core.ServerInfo, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultQueue sets the queue used when none is given.
func WithDefaultQueue(q string) Option {
	return func(e *Engine) {
		if q != "" {
			e.defaultQueue = q
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// DefaultQueueName is the queue used when no WithDefaultQueue option is given.
const DefaultQueueName = "default"

// Engine implements core.Scheduler.
type Engine struct {
	store        core.Store
	dispatcher   Dispatcher
	defaultQueue string
	logger       *slog.Logger
	now          func() time.Time
}

var _ core.Scheduler = (*Engine)(nil)

// New creates an Engine over store and dispatcher.
func New(store core.Store, dispatcher Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		dispatcher:   dispatcher,
		defaultQueue: DefaultQueueName,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// DefaultQueue returns the fallback queue name.
func (e *Engine) DefaultQueue() string { return e.defaultQueue }

// Enqueue dispatches def for immediate execution.
func (e *Engine) Enqueue(ctx context.Context, def *core.JobDefinition, queue string) (string, error) {
	return e.enqueue(ctx, def, queue, "")
}

func (e *Engine) enqueue(ctx context.Context, def *core.JobDefinition, queue, recurringID string) (string, error) {
	run := e.newRun(def, queue, core.StateEnqueued)
	run.RecurringJobID = recurringID
	run.EnqueuedAt = run.CreatedAt
	if err := e.dispatcher.Dispatch(ctx, run); err != nil {
		return "", core.NewStorageError("dispatch job "+run.ID, err)
	}
	return run.ID, nil
}

// Schedule dispatches def for execution at the given time. Times not in the
// future are enqueued right away.
func (e *Engine) Schedule(ctx context.Context, def *core.JobDefinition, queue string, at time.Time) (string, error) {
	if !at.After(e.now()) {
		return e.Enqueue(ctx, def, queue)
	}
	run := e.newRun(def, queue, core.StateScheduled)
	run.ScheduledAt = core.FormatTime(at)
	if err := e.dispatcher.ScheduleRun(ctx, run); err != nil {
		return "", core.NewStorageError("schedule job "+run.ID, err)
	}
	return run.ID, nil
}

func (e *Engine) newRun(def *core.JobDefinition, queue, state string) *core.JobRun {
	if queue == "" {
		queue = e.defaultQueue
	}
	return &core.JobRun{
		ID:         core.NewJobID(),
		Queue:      queue,
		State:      state,
		Definition: def,
		CreatedAt:  core.FormatTime(e.now()),
	}
}

// AddOrUpdateRecurring writes the recurring record and its index entry in
// one transaction. CreatedAt and LastExecution survive an update.
func (e *Engine) AddOrUpdateRecurring(ctx context.Context, spec core.RecurringSpec) error {
	if spec.ID == "" {
		return core.NewValidationError("recurring job id is empty", nil)
	}
	if spec.Definition == nil {
		return core.NewValidationError("recurring job definition is empty", nil)
	}
	loc := spec.Location
	if loc == nil {
		loc = time.UTC
	}
	queue := spec.Queue
	if queue == "" {
		queue = e.defaultQueue
	}

	now := e.now()
	next, fires, err := core.NextExecution(spec.Cron, loc, now)
	if err != nil {
		return err
	}
	payload, err := core.EncodeInvocation(spec.Definition)
	if err != nil {
		return core.NewInternalError(err.Error())
	}

	existing, err := e.store.GetAllEntriesFromHash(ctx, core.RecurringJobKey(spec.ID))
	if err != nil {
		return core.NewStorageError("read recurring-job:"+spec.ID, err)
	}
	createdAt := existing[core.FieldCreatedAt]
	if createdAt == "" {
		createdAt = core.FormatTime(now)
	}

	fields := map[string]string{
		core.FieldJob:           payload,
		core.FieldCron:          spec.Cron,
		core.FieldQueue:         queue,
		core.FieldTimeZone:      loc.String(),
		core.FieldCreatedAt:     createdAt,
		core.FieldNextExecution: "",
	}
	score := float64(core.NeverScore)
	if fires {
		fields[core.FieldNextExecution] = core.FormatTime(next)
		score = float64(next.Unix())
	}

	tx := e.store.CreateWriteTransaction(ctx)
	tx.SetRangeInHash(core.RecurringJobKey(spec.ID), fields)
	tx.AddToSortedSet(core.RecurringJobsKey, spec.ID, score)
	if err := tx.Commit(); err != nil {
		return core.NewStorageError("write recurring-job:"+spec.ID, err)
	}

	e.logger.Debug("recurring job registered", "id", spec.ID, "cron", spec.Cron, "queue", queue, "fires", fires)
	return nil
}

// RemoveRecurring deletes the record and its index entry.
func (e *Engine) RemoveRecurring(ctx context.Context, id string) error {
	tx := e.store.CreateWriteTransaction(ctx)
	tx.RemoveHash(core.RecurringJobKey(id))
	tx.RemoveFromSortedSet(core.RecurringJobsKey, id)
	if err := tx.Commit(); err != nil {
		return core.NewStorageError("remove recurring-job:"+id, err)
	}
	return nil
}

// DeleteJob cancels a background job run.
func (e *Engine) DeleteJob(ctx context.Context, jobID string) (bool, error) {
	ok, err := e.dispatcher.DeleteRun(ctx, jobID)
	if err != nil {
		return false, core.NewStorageError("delete job "+jobID, err)
	}
	return ok, nil
}

// JobDefinition returns the definition a run was created from.
func (e *Engine) JobDefinition(ctx context.Context, jobID string) (*core.JobDefinition, error) {
	run, err := e.dispatcher.Run(ctx, jobID)
	if err != nil {
		return nil, core.NewStorageError("read job "+jobID, err)
	}
	if run == nil {
		return nil, nil
	}
	return run.Definition, nil
}

// Servers lists live workers.
func (e *Engine) Servers(ctx context.Context) ([]core.ServerInfo, error) {
	servers, err := e.dispatcher.Servers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return servers, nil
}
