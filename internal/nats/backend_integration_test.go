package nats

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

func TestBackendDispatchAndDelete(t *testing.T) {
	backend := newIntegrationBackend(t)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []RunEvent
	)
	sub, err := backend.SubscribeEvents(func(ev RunEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SubscribeEvents() error = %v", err)
	}
	defer sub.Unsubscribe()

	run := &core.JobRun{
		ID:         core.NewJobID(),
		Queue:      "it-dispatch",
		State:      core.StateEnqueued,
		Definition: &core.JobDefinition{Url: "http://x/a", ContentType: "application/json", JobName: "a"},
		CreatedAt:  core.FormatTime(time.Now()),
	}
	if err := backend.Dispatch(ctx, run); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	got, err := backend.Run(ctx, run.ID)
	if err != nil || got == nil {
		t.Fatalf("Run() = %v, %v", got, err)
	}
	if got.Definition.JobName != "a" || got.State != core.StateEnqueued {
		t.Errorf("Run() = %+v", got)
	}

	ok, err := backend.DeleteRun(ctx, run.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteRun() = %v, %v", ok, err)
	}
	ok, err = backend.DeleteRun(ctx, run.ID)
	if err != nil || ok {
		t.Errorf("second DeleteRun() = %v, %v; want false", ok, err)
	}
	ok, err = backend.DeleteRun(ctx, core.NewJobID())
	if err != nil || ok {
		t.Errorf("DeleteRun(unknown) = %v, %v; want false", ok, err)
	}

	if err := backend.Conn().Flush(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	var types []string
	for _, ev := range events {
		if ev.RunID == run.ID {
			types = append(types, ev.Type)
		}
	}
	if strings.Join(types, ",") != EventRunEnqueued+","+EventRunDeleted {
		t.Errorf("events = %v", types)
	}
}

func TestBackendPromoteScheduled(t *testing.T) {
	backend := newIntegrationBackend(t)
	ctx := context.Background()

	run := &core.JobRun{
		ID:          core.NewJobID(),
		Queue:       "it-scheduled",
		State:       core.StateScheduled,
		Definition:  &core.JobDefinition{Url: "http://x/s", ContentType: "text/plain", JobName: "s"},
		ScheduledAt: core.FormatTime(time.Now().Add(-time.Second)),
	}
	if err := backend.ScheduleRun(ctx, run); err != nil {
		t.Fatalf("ScheduleRun() error = %v", err)
	}

	if _, err := backend.PromoteScheduled(ctx); err != nil {
		t.Fatalf("PromoteScheduled() error = %v", err)
	}

	got, err := backend.Run(ctx, run.ID)
	if err != nil || got == nil {
		t.Fatalf("Run() = %v, %v", got, err)
	}
	if got.State != core.StateEnqueued || got.EnqueuedAt == "" {
		t.Errorf("state = %q enqueued_at = %q, want enqueued", got.State, got.EnqueuedAt)
	}
}

func TestBackendServersAndAgents(t *testing.T) {
	backend := newIntegrationBackend(t)
	ctx := context.Background()

	workerID := "it-worker-" + core.NewJobID()
	if err := backend.Heartbeat(ctx, core.ServerInfo{ID: workerID, Queues: []string{"default", "mail"}}); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	servers, err := backend.Servers(ctx)
	if err != nil {
		t.Fatalf("Servers() error = %v", err)
	}
	found := false
	for _, s := range servers {
		if s.ID == workerID {
			found = true
			if len(s.Queues) != 2 || s.LastHeartbeat.IsZero() {
				t.Errorf("server = %+v", s)
			}
		}
	}
	if !found {
		t.Errorf("Servers() missing %s", workerID)
	}

	agentID := "it-agent-" + core.NewJobID()
	if err := backend.AgentHeartbeat(ctx, core.AgentServer{ID: agentID, Address: "10.0.0.1", Agents: []string{"ReportAgent"}}); err != nil {
		t.Fatalf("AgentHeartbeat() error = %v", err)
	}
	agents, err := backend.Agents(ctx)
	if err != nil {
		t.Fatalf("Agents() error = %v", err)
	}
	found = false
	for _, a := range agents {
		if a.ID == agentID {
			found = true
		}
	}
	if !found {
		t.Errorf("Agents() missing %s", agentID)
	}
}

func TestBackendAgentJobDetail(t *testing.T) {
	backend := newIntegrationBackend(t)
	ctx := context.Background()
	class := "ItAgent" + strings.ReplaceAll(core.NewJobID(), "-", "")

	sub, err := ServeAgentDetail(backend.Conn(), class, func(def *core.JobDefinition) (string, error) {
		if def.JobName == "broken" {
			return "", errors.New("agent exploded")
		}
		return "progress 50%\r\nstep 2", nil
	})
	if err != nil {
		t.Fatalf("ServeAgentDetail() error = %v", err)
	}
	defer sub.Unsubscribe()
	_ = backend.Conn().Flush()

	detail, err := backend.AgentJobDetail(ctx, &core.JobDefinition{JobName: "ok", AgentClass: class})
	if err != nil {
		t.Fatalf("AgentJobDetail() error = %v", err)
	}
	if detail != "progress 50%\r\nstep 2" {
		t.Errorf("detail = %q", detail)
	}

	_, err = backend.AgentJobDetail(ctx, &core.JobDefinition{JobName: "broken", AgentClass: class})
	if err == nil || core.Message(err) != "agent exploded" {
		t.Errorf("error = %v, want agent exploded", err)
	}

	_, err = backend.AgentJobDetail(ctx, &core.JobDefinition{JobName: "x", AgentClass: class + "Missing"})
	if err == nil {
		t.Error("expected error for agent class without responders")
	}
}

func newIntegrationBackend(t *testing.T) *Backend {
	t.Helper()

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	backend, err := New(natsURL, WithAgentTimeout(time.Second))
	if err != nil {
		t.Skipf("skipping integration test; NATS unavailable at %s: %v", natsURL, err)
	}

	t.Cleanup(func() {
		_ = backend.Close()
	})

	return backend
}
