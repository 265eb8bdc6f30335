// Package control implements the management operations layered over the
// scheduler: registration, pause and resume, runtime signals and listing.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// Registrar creates and replaces recurring jobs.
type Registrar struct {
	store     core.Store
	scheduler core.Scheduler
	location  *time.Location
	logger    *slog.Logger
}

// NewRegistrar returns a Registrar. loc is the time zone used when a
// definition names none; nil means time.Local.
func NewRegistrar(store core.Store, scheduler core.Scheduler, loc *time.Location, logger *slog.Logger) *Registrar {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{store: store, scheduler: scheduler, location: loc, logger: logger}
}

// ResolveQueue rewrites def.QueueName to a queue some live worker serves.
// An empty name becomes the scheduler's default queue. A name no worker
// serves falls back to the default queue with a warning.
func (r *Registrar) ResolveQueue(ctx context.Context, def *core.JobDefinition) error {
	if def.QueueName == "" {
		def.QueueName = r.scheduler.DefaultQueue()
		return nil
	}

	servers, err := r.scheduler.Servers(ctx)
	if err != nil {
		return core.NewStorageError("list servers", err)
	}
	live := make(map[string]struct{})
	for _, s := range servers {
		for _, q := range s.Queues {
			live[strings.ToLower(q)] = struct{}{}
		}
	}
	if len(live) == 0 {
		return core.NewUpstreamError("active server not exist!")
	}

	queue := strings.ToLower(def.QueueName)
	if _, ok := live[queue]; !ok {
		r.logger.Warn("queue not served by any worker, using default queue",
			"queue", def.QueueName,
			"default", r.scheduler.DefaultQueue(),
		)
		def.QueueName = r.scheduler.DefaultQueue()
		return nil
	}
	def.QueueName = queue
	return nil
}

// Register hands def to the scheduler as a recurring job. With addOnly set,
// an existing record under the same identifier is a conflict and nothing
// is written.
func (r *Registrar) Register(ctx context.Context, def *core.JobDefinition, addOnly bool) error {
	if err := r.ResolveQueue(ctx, def); err != nil {
		return err
	}

	loc, err := core.LoadTimeZone(def.TimeZone, r.location)
	if err != nil {
		return err
	}

	id := def.Identifier()
	if addOnly {
		existing, err := r.store.GetAllEntriesFromHash(ctx, core.RecurringJobKey(id))
		if err != nil {
			return core.NewStorageError("read recurring-job:"+id, err)
		}
		if len(existing) > 0 {
			return core.NewConflictError(fmt.Sprintf("%s is registered!", id), map[string]any{"id": id})
		}
	}

	expr := def.Cron
	if expr == "" {
		expr = core.CronNever
	} else if _, err := core.ParseCron(expr, loc); err != nil {
		return err
	}

	return r.scheduler.AddOrUpdateRecurring(ctx, core.RecurringSpec{
		ID:         id,
		Definition: def,
		Cron:       expr,
		Queue:      strings.ToLower(def.QueueName),
		Location:   loc,
	})
}
