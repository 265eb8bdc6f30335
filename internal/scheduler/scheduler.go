// Package scheduler runs the bundled engine's background loop: it fires due
// recurring jobs and moves delayed runs onto their queues.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RecurringFirer enqueues recurring jobs that are due at now.
type RecurringFirer interface {
	FireDue(ctx context.Context, now time.Time) (int, error)
}

// ScheduledPromoter moves delayed runs whose time has come to their queue.
type ScheduledPromoter interface {
	PromoteScheduled(ctx context.Context) (int, error)
}

// Recorder counts loop activity.
type Recorder interface {
	RecurringFired(n int)
	ScheduledPromoted(n int)
}

// DefaultInterval is the tick period used when none is configured.
const DefaultInterval = 5 * time.Second

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithRecorder reports fired and promoted counts.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler ticks the recurring trigger and the delayed-run promoter.
type Scheduler struct {
	firer    RecurringFirer
	promoter ScheduledPromoter
	interval time.Duration
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Scheduler. Either collaborator may be nil to skip its step.
func New(firer RecurringFirer, promoter ScheduledPromoter, opts ...Option) *Scheduler {
	s := &Scheduler{
		firer:    firer,
		promoter: promoter,
		interval: DefaultInterval,
		logger:   slog.Default(),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs the loop in a new goroutine until Stop is called.
func (s *Scheduler) Start() {
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.loop(context.Background())
	}()
}

// Run blocks running the loop until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.loop(ctx)
	return nil
}

// Stop ends the loop and waits for a loop started with Start to return.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.done != nil {
		<-s.done
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-s.stop:
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass of every step.
func (s *Scheduler) Tick(ctx context.Context) {
	s.fireRecurring(ctx)
	s.promoteScheduled(ctx)
}
