package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/nats-io/nats.go"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// AgentHeartbeat records an agent host as alive for HeartbeatTTL.
func (b *Backend) AgentHeartbeat(ctx context.Context, agent core.AgentServer) error {
	agent.LastHeartbeat = b.now().UTC()
	if _, err := b.agents.PutJSON(ctx, agent.ID, agent); err != nil {
		return fmt.Errorf("agent heartbeat %s: %w", agent.ID, err)
	}
	return nil
}

// Agents lists agent hosts with a live heartbeat, ordered by id.
func (b *Backend) Agents(ctx context.Context) ([]core.AgentServer, error) {
	keys, err := b.agents.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	agents := make([]core.AgentServer, 0, len(keys))
	for _, key := range keys {
		var a core.AgentServer
		if _, err := b.agents.GetJSON(ctx, key, &a); err != nil {
			continue
		}
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

// AgentJobDetail asks an agent of def.AgentClass for the live detail of the
// job. The request carries def as JSON; the reply body is the detail text.
func (b *Backend) AgentJobDetail(ctx context.Context, def *core.JobDefinition) (string, error) {
	if def == nil || def.AgentClass == "" {
		return "", core.NewValidationError("job has no agent class", nil)
	}
	payload, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("marshal job definition: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.agentTimeout)
	defer cancel()

	subject := AgentDetailSubject(def.AgentClass)
	msg, err := b.nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return "", core.NewUpstreamError(fmt.Sprintf("agent %s has no responders", def.AgentClass))
		}
		return "", core.NewUpstreamError(fmt.Sprintf("agent %s: %v", def.AgentClass, err))
	}
	if errMsg := msg.Header.Get(AgentErrorHeader); errMsg != "" {
		return "", core.NewUpstreamError(errMsg)
	}
	return string(msg.Data), nil
}

// AgentErrorHeader carries an agent-side failure in a detail reply.
const AgentErrorHeader = "Httpjob-Agent-Error"

// ServeAgentDetail answers detail requests for agentClass with fn. Agent
// hosts written in Go use it; the returned subscription must be
// unsubscribed by the caller.
func ServeAgentDetail(nc *nats.Conn, agentClass string, fn func(*core.JobDefinition) (string, error)) (*nats.Subscription, error) {
	return nc.Subscribe(AgentDetailSubject(agentClass), func(m *nats.Msg) {
		reply := nats.NewMsg(m.Reply)
		var def core.JobDefinition
		if err := json.Unmarshal(m.Data, &def); err != nil {
			reply.Header.Set(AgentErrorHeader, "bad request: "+err.Error())
		} else if detail, err := fn(&def); err != nil {
			reply.Header.Set(AgentErrorHeader, err.Error())
		} else {
			reply.Data = []byte(detail)
		}
		_ = m.RespondMsg(reply)
	})
}
