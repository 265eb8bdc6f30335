package core

import (
	"context"
	"time"
)

// Scheduler is the engine that owns job execution. The control plane only
// hands it definitions; it never runs callbacks itself.
type Scheduler interface {
	// DefaultQueue is the queue used when a definition names none or names
	// one no live worker serves.
	DefaultQueue() string

	// Enqueue dispatches def for immediate execution and returns the run id.
	Enqueue(ctx context.Context, def *JobDefinition, queue string) (string, error)

	// Schedule dispatches def for execution at the given time.
	Schedule(ctx context.Context, def *JobDefinition, queue string, at time.Time) (string, error)

	// AddOrUpdateRecurring creates or replaces the recurring record spec.ID.
	AddOrUpdateRecurring(ctx context.Context, spec RecurringSpec) error

	// RemoveRecurring deletes a recurring record; missing ids are not an error.
	RemoveRecurring(ctx context.Context, id string) error

	// DeleteJob cancels a background job run. It reports false when the run
	// does not exist or was already deleted.
	DeleteJob(ctx context.Context, jobID string) (bool, error)

	// JobDefinition returns the definition of a background job run, or nil
	// when the run is unknown.
	JobDefinition(ctx context.Context, jobID string) (*JobDefinition, error)

	// Servers lists workers that are currently alive.
	Servers(ctx context.Context) ([]ServerInfo, error)
}

// ServerInfo describes a live worker process and the queues it consumes.
type ServerInfo struct {
	ID            string    `json:"id"`
	Queues        []string  `json:"queues"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// AgentServer is a job agent host reporting heartbeats.
type AgentServer struct {
	ID            string    `json:"id"`
	Address       string    `json:"address"`
	Agents        []string  `json:"agents"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// AgentInspector asks a job agent for the live detail of an agent job.
type AgentInspector interface {
	AgentJobDetail(ctx context.Context, def *JobDefinition) (string, error)
}

// AgentRegistry lists the agent hosts currently reporting heartbeats.
type AgentRegistry interface {
	Agents(ctx context.Context) ([]AgentServer, error)
}
