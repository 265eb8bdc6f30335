package scheduler

import "context"

func (s *Scheduler) promoteScheduled(ctx context.Context) {
	if s.promoter == nil {
		return
	}
	n, err := s.promoter.PromoteScheduled(ctx)
	if err != nil {
		s.logger.Error("promoting scheduled jobs", "error", err, "promoted", n)
	}
	if n > 0 {
		s.logger.Debug("scheduled jobs promoted", "count", n)
		if s.recorder != nil {
			s.recorder.ScheduledPromoted(n)
		}
	}
}
