package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// FireDue enqueues every recurring job whose next execution is at or before
// now, then advances its NextExecution. It returns how many runs were
// enqueued. One failing job does not stop the others; the first error is
// returned.
func (e *Engine) FireDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := e.store.GetSortedSetByScore(ctx, core.RecurringJobsKey, 0, float64(now.Unix()))
	if err != nil {
		return 0, core.NewStorageError("read due recurring jobs", err)
	}

	fired := 0
	var firstErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fired, err
		}
		ok, err := e.fireOne(ctx, id, now)
		if ok {
			fired++
		}
		if err != nil {
			e.logger.Error("recurring job trigger failed", "id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return fired, firstErr
}

func (e *Engine) fireOne(ctx context.Context, id string, now time.Time) (bool, error) {
	rec, err := core.LoadRecurringJob(ctx, e.store, id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		// Orphaned index entry.
		tx := e.store.CreateWriteTransaction(ctx)
		tx.RemoveFromSortedSet(core.RecurringJobsKey, id)
		return false, tx.Commit()
	}

	loc, err := core.LoadTimeZone(rec.TimeZone, time.UTC)
	if err != nil {
		loc = time.UTC
	}

	runID, err := e.enqueue(ctx, rec.Definition, rec.Queue, id)
	if err != nil {
		return false, err
	}

	fields := map[string]string{
		core.FieldLastExecution: core.FormatTime(now),
		core.FieldNextExecution: "",
	}
	score := float64(core.NeverScore)
	next, fires, err := core.NextExecution(rec.Cron, loc, now)
	if err != nil {
		e.logger.Warn("recurring job has invalid cron; parking it", "id", id, "cron", rec.Cron, "error", err)
	} else if fires {
		fields[core.FieldNextExecution] = core.FormatTime(next)
		score = float64(next.Unix())
	}

	tx := e.store.CreateWriteTransaction(ctx)
	tx.SetRangeInHash(core.RecurringJobKey(id), fields)
	tx.AddToSortedSet(core.RecurringJobsKey, id, score)
	if err := tx.Commit(); err != nil {
		return true, core.NewStorageError(fmt.Sprintf("advance recurring-job:%s after run %s", id, runID), err)
	}

	e.logger.Info("recurring job fired", "id", id, "job_id", runID, "queue", rec.Queue)
	return true, nil
}
