package nats

import "testing"

func TestSubjects(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{QueueJobsSubject("default"), "httpjob.queue.default.jobs"},
		{QueueAllSubject(), "httpjob.queue.>"},
		{EventSubject(EventRunDeleted), "httpjob.events.run.deleted"},
		{EventsAllSubject(), "httpjob.events.>"},
		{AgentDetailSubject("ReportAgent"), "httpjob.agent.ReportAgent.detail"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("subject = %q, want %q", tt.got, tt.want)
		}
	}
}
