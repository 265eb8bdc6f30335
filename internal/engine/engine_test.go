package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/core"
	"github.com/openjobspec/ojs-httpjob/internal/memory"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *memory.Store, *memory.Dispatcher) {
	t.Helper()
	store := memory.New()
	disp := memory.NewDispatcher()
	e := New(store, disp, WithClock(func() time.Time { return testNow }))
	return e, store, disp
}

func testDef(name string) *core.JobDefinition {
	return &core.JobDefinition{Url: "http://example.com/" + name, ContentType: "application/json", JobName: name}
}

func TestEngine_AddOrUpdateRecurring(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	err := e.AddOrUpdateRecurring(ctx, core.RecurringSpec{
		ID:         "report",
		Definition: testDef("report"),
		Cron:       "30 10 * * *",
		Queue:      "reports",
	})
	if err != nil {
		t.Fatalf("AddOrUpdateRecurring() error = %v", err)
	}

	rec, err := core.LoadRecurringJob(ctx, store, "report")
	if err != nil || rec == nil {
		t.Fatalf("LoadRecurringJob() = %v, %v", rec, err)
	}
	if rec.Cron != "30 10 * * *" || rec.Queue != "reports" || rec.TimeZone != "UTC" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Definition.Url != "http://example.com/report" {
		t.Errorf("definition url = %q", rec.Definition.Url)
	}
	want := core.FormatTime(time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC))
	if rec.NextExecution != want {
		t.Errorf("NextExecution = %q, want %q", rec.NextExecution, want)
	}

	due, _ := store.GetSortedSetByScore(ctx, core.RecurringJobsKey, 0, float64(testNow.Add(time.Hour).Unix()))
	if len(due) != 1 || due[0] != "report" {
		t.Errorf("index = %v, want [report]", due)
	}
}

func TestEngine_UpdateKeepsCreatedAt(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	spec := core.RecurringSpec{ID: "j", Definition: testDef("j"), Cron: "* * * * *"}
	if err := e.AddOrUpdateRecurring(ctx, spec); err != nil {
		t.Fatal(err)
	}
	first, _ := core.LoadRecurringJob(ctx, store, "j")

	e.now = func() time.Time { return testNow.Add(time.Hour) }
	spec.Cron = "0 * * * *"
	if err := e.AddOrUpdateRecurring(ctx, spec); err != nil {
		t.Fatal(err)
	}
	second, _ := core.LoadRecurringJob(ctx, store, "j")
	if second.CreatedAt != first.CreatedAt {
		t.Errorf("CreatedAt changed: %q -> %q", first.CreatedAt, second.CreatedAt)
	}
	if second.Cron != "0 * * * *" {
		t.Errorf("Cron = %q", second.Cron)
	}
}

func TestEngine_NeverCronIsParked(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.AddOrUpdateRecurring(ctx, core.RecurringSpec{ID: "manual", Definition: testDef("manual"), Cron: core.CronNever}); err != nil {
		t.Fatal(err)
	}

	rec, _ := core.LoadRecurringJob(ctx, store, "manual")
	if rec == nil || rec.NextExecution != "" {
		t.Fatalf("record = %+v, want no next execution", rec)
	}
	if n, _ := store.GetSortedSetCount(ctx, core.RecurringJobsKey); n != 1 {
		t.Errorf("index count = %d, want 1", n)
	}

	fired, err := e.FireDue(ctx, testNow.AddDate(5, 0, 0))
	if err != nil || fired != 0 {
		t.Errorf("FireDue() = %d, %v; never-cron job must not fire", fired, err)
	}
}

func TestEngine_InvalidCron(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := e.AddOrUpdateRecurring(context.Background(), core.RecurringSpec{ID: "bad", Definition: testDef("bad"), Cron: "nope"})
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Code != core.ErrCodeValidation {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestEngine_RemoveRecurring(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	_ = e.AddOrUpdateRecurring(ctx, core.RecurringSpec{ID: "gone", Definition: testDef("gone"), Cron: "* * * * *"})
	if err := e.RemoveRecurring(ctx, "gone"); err != nil {
		t.Fatalf("RemoveRecurring() error = %v", err)
	}
	if rec, _ := core.LoadRecurringJob(ctx, store, "gone"); rec != nil {
		t.Error("record still present")
	}
	if n, _ := store.GetSortedSetCount(ctx, core.RecurringJobsKey); n != 0 {
		t.Errorf("index count = %d, want 0", n)
	}
	if err := e.RemoveRecurring(ctx, "never-existed"); err != nil {
		t.Errorf("RemoveRecurring(missing) error = %v", err)
	}
}

func TestEngine_EnqueueAndDelete(t *testing.T) {
	e, _, disp := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Enqueue(ctx, testDef("now"), "")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	run, _ := disp.Run(ctx, id)
	if run == nil || run.Queue != DefaultQueueName || run.State != core.StateEnqueued {
		t.Fatalf("run = %+v", run)
	}

	def, err := e.JobDefinition(ctx, id)
	if err != nil || def == nil || def.JobName != "now" {
		t.Errorf("JobDefinition() = %v, %v", def, err)
	}

	ok, err := e.DeleteJob(ctx, id)
	if err != nil || !ok {
		t.Errorf("DeleteJob() = %v, %v", ok, err)
	}

	def, err = e.JobDefinition(ctx, "missing")
	if err != nil || def != nil {
		t.Errorf("JobDefinition(missing) = %v, %v; want nil, nil", def, err)
	}
}

func TestEngine_Schedule(t *testing.T) {
	e, _, disp := newTestEngine(t)
	ctx := context.Background()

	at := testNow.Add(15 * time.Minute)
	id, err := e.Schedule(ctx, testDef("later"), "q", at)
	if err != nil {
		t.Fatal(err)
	}
	run, _ := disp.Run(ctx, id)
	if run.State != core.StateScheduled || run.ScheduledAt != core.FormatTime(at) {
		t.Errorf("run = %+v", run)
	}

	id, _ = e.Schedule(ctx, testDef("past"), "q", testNow.Add(-time.Minute))
	run, _ = disp.Run(ctx, id)
	if run.State != core.StateEnqueued {
		t.Errorf("past schedule state = %q, want enqueued", run.State)
	}
}

func TestEngine_FireDue(t *testing.T) {
	e, store, disp := newTestEngine(t)
	ctx := context.Background()

	_ = e.AddOrUpdateRecurring(ctx, core.RecurringSpec{ID: "minutely", Definition: testDef("minutely"), Cron: "* * * * *", Queue: "q1"})
	_ = e.AddOrUpdateRecurring(ctx, core.RecurringSpec{ID: "hourly", Definition: testDef("hourly"), Cron: "0 * * * *"})

	fireAt := testNow.Add(90 * time.Second)
	fired, err := e.FireDue(ctx, fireAt)
	if err != nil {
		t.Fatalf("FireDue() error = %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	runs := disp.Runs()
	if len(runs) != 1 || runs[0].RecurringJobID != "minutely" || runs[0].Queue != "q1" {
		t.Fatalf("runs = %+v", runs)
	}

	rec, _ := core.LoadRecurringJob(ctx, store, "minutely")
	if rec.LastExecution != core.FormatTime(fireAt) {
		t.Errorf("LastExecution = %q", rec.LastExecution)
	}
	wantNext := time.Date(2025, 6, 1, 10, 2, 0, 0, time.UTC)
	if rec.NextExecution != core.FormatTime(wantNext) {
		t.Errorf("NextExecution = %q, want %q", rec.NextExecution, core.FormatTime(wantNext))
	}

	again, _ := e.FireDue(ctx, fireAt)
	if again != 0 {
		t.Errorf("second FireDue() = %d, want 0", again)
	}
}

func TestEngine_FireDueDropsOrphans(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	tx := store.CreateWriteTransaction(ctx)
	tx.AddToSortedSet(core.RecurringJobsKey, "orphan", float64(testNow.Unix()))
	_ = tx.Commit()

	fired, err := e.FireDue(ctx, testNow)
	if err != nil || fired != 0 {
		t.Fatalf("FireDue() = %d, %v", fired, err)
	}
	if n, _ := store.GetSortedSetCount(ctx, core.RecurringJobsKey); n != 0 {
		t.Errorf("orphan not removed, count = %d", n)
	}
}

type failingDispatcher struct {
	*memory.Dispatcher
	err error
}

func (f failingDispatcher) Dispatch(context.Context, *core.JobRun) error { return f.err }

func TestEngine_DispatchErrorIsStorageError(t *testing.T) {
	e := New(memory.New(), failingDispatcher{Dispatcher: memory.NewDispatcher(), err: errors.New("nats down")})
	_, err := e.Enqueue(context.Background(), testDef("x"), "")
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Code != core.ErrCodeStorage {
		t.Errorf("error = %v, want storage error", err)
	}
}

func TestEngine_TimeZoneStored(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	_ = e.AddOrUpdateRecurring(ctx, core.RecurringSpec{ID: "tz", Definition: testDef("tz"), Cron: "0 19 * * *", Location: loc})
	rec, _ := core.LoadRecurringJob(ctx, store, "tz")
	next := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	if rec.NextExecution != core.FormatTime(next) {
		t.Errorf("NextExecution = %q, want %q", rec.NextExecution, core.FormatTime(next))
	}
	if rec.TimeZone != "UTC+8" {
		t.Errorf("TimeZone = %q", rec.TimeZone)
	}

	due, _ := store.GetSortedSetByScore(ctx, core.RecurringJobsKey, float64(next.Unix()), float64(next.Unix()))
	if len(due) != 1 {
		t.Errorf("index score should equal next execution, got %v", due)
	}
}
