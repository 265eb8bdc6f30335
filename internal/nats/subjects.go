package nats

import "fmt"

// Subject hierarchy.
//
//	httpjob.queue.{name}.jobs        -- job run ids ready for workers
//	httpjob.events.run.{event}       -- run lifecycle events
//	httpjob.agent.{class}.detail     -- agent job detail requests
const (
	StreamName    = "HTTPJOB"
	SubjectPrefix = "httpjob"

	// KV bucket names
	BucketRuns      = "httpjob-runs"
	BucketScheduled = "httpjob-scheduled"
	BucketWorkers   = "httpjob-workers"
	BucketAgents    = "httpjob-agents"
)

// QueueJobsSubject returns the subject for publishing runs to a queue.
// Example: httpjob.queue.default.jobs
func QueueJobsSubject(queue string) string {
	return fmt.Sprintf("%s.queue.%s.jobs", SubjectPrefix, queue)
}

// QueueAllSubject returns the wildcard subject for all queue messages.
// Used for stream subject filter.
func QueueAllSubject() string {
	return fmt.Sprintf("%s.queue.>", SubjectPrefix)
}

// EventSubject returns a subject for run lifecycle events.
// Example: httpjob.events.run.enqueued
func EventSubject(eventType string) string {
	return fmt.Sprintf("%s.events.%s", SubjectPrefix, eventType)
}

// EventsAllSubject returns the wildcard subject for all events.
func EventsAllSubject() string {
	return fmt.Sprintf("%s.events.>", SubjectPrefix)
}

// AgentDetailSubject returns the request subject answered by agents of class.
// Example: httpjob.agent.ReportAgent.detail
func AgentDetailSubject(agentClass string) string {
	return fmt.Sprintf("%s.agent.%s.detail", SubjectPrefix, agentClass)
}
