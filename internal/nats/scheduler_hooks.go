package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/core"
	"github.com/openjobspec/ojs-httpjob/internal/kv"
)

// PromoteScheduled publishes scheduled runs whose time has come and returns
// how many were promoted.
func (b *Backend) PromoteScheduled(ctx context.Context) (int, error) {
	keys, err := b.scheduled.Keys(ctx)
	if err != nil {
		return 0, err
	}

	now := b.now()
	promoted := 0
	var firstErr error

	for _, runID := range keys {
		data, _, err := b.scheduled.Get(ctx, runID)
		if err != nil {
			continue
		}

		scheduledAt, err := time.Parse(core.TimeFormat, string(data))
		if err != nil {
			scheduledAt, err = time.Parse(time.RFC3339, string(data))
			if err != nil {
				b.logger.Warn("dropping unparseable scheduled entry", "job_id", runID, "value", string(data))
				_ = b.scheduled.Delete(ctx, runID)
				continue
			}
		}

		if now.Before(scheduledAt) {
			continue
		}

		var run core.JobRun
		updated, err := b.runs.UpdateJSON(ctx, runID, &run, func() bool {
			if run.State != core.StateScheduled {
				return false
			}
			run.State = core.StateEnqueued
			run.EnqueuedAt = core.FormatTime(now)
			return true
		})
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			if firstErr == nil {
				firstErr = fmt.Errorf("update scheduled run state for %s: %w", runID, err)
			}
			continue
		}
		if err := b.scheduled.Delete(ctx, runID); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("delete scheduled index for %s: %w", runID, err)
			}
			continue
		}
		// Deleted, missing or already promoted elsewhere.
		if !updated {
			continue
		}

		if err := PublishJob(ctx, b.js, run.Queue, runID); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("publish scheduled run %s: %w", runID, err)
			}
			continue
		}
		b.publishEvent(EventRunEnqueued, &run)
		promoted++
	}

	return promoted, firstErr
}
