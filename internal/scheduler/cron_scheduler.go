package scheduler

import "context"

func (s *Scheduler) fireRecurring(ctx context.Context) {
	if s.firer == nil {
		return
	}
	n, err := s.firer.FireDue(ctx, s.now())
	if err != nil {
		s.logger.Error("firing recurring jobs", "error", err, "fired", n)
	}
	if n > 0 {
		s.logger.Debug("recurring jobs fired", "count", n)
		if s.recorder != nil {
			s.recorder.RecurringFired(n)
		}
	}
}
