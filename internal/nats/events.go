package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// Run lifecycle event types.
const (
	EventRunEnqueued  = "run.enqueued"
	EventRunScheduled = "run.scheduled"
	EventRunDeleted   = "run.deleted"
)

// RunEvent is published on EventSubject(Type) whenever a run changes state.
type RunEvent struct {
	Type           string `json:"type"`
	RunID          string `json:"run_id"`
	Queue          string `json:"queue"`
	JobName        string `json:"job_name,omitempty"`
	RecurringJobID string `json:"recurring_job_id,omitempty"`
	At             string `json:"at"`
}

func (b *Backend) publishEvent(eventType string, run *core.JobRun) {
	ev := RunEvent{
		Type:           eventType,
		RunID:          run.ID,
		Queue:          run.Queue,
		RecurringJobID: run.RecurringJobID,
		At:             core.FormatTime(b.now()),
	}
	if run.Definition != nil {
		ev.JobName = run.Definition.JobName
	}
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to marshal run event", "error", err, "job_id", run.ID)
		return
	}
	if err := b.nc.Publish(EventSubject(eventType), data); err != nil {
		b.logger.Error("failed to publish run event", "error", err, "job_id", run.ID, "event", eventType)
	}
}

// SubscribeEvents delivers every run event to fn until the returned
// subscription is unsubscribed.
func (b *Backend) SubscribeEvents(fn func(RunEvent)) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(EventsAllSubject(), func(m *nats.Msg) {
		var ev RunEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			b.logger.Warn("dropping malformed run event", "subject", m.Subject, "error", err)
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", EventsAllSubject(), err)
	}
	return sub, nil
}
