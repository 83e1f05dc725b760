package gateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/gg/gmap"

	"github.com/deca-sh/gateway/internal/agent"
)

// AgentRegistry is a thread-safe lookup of the agents a gateway manages,
// keyed by their configured ID.
type AgentRegistry struct {
	agents map[string]*agent.Agent
	mu     sync.RWMutex
}

func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]*agent.Agent, 8),
	}
}

func (r *AgentRegistry) Register(ag *agent.Agent) error {
	if ag == nil {
		return errors.New("agent cannot be nil")
	}
	if ag.ID() == "" {
		return errors.New("agent ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[ag.ID()]; exists {
		return fmt.Errorf("agent already registered: %s", ag.ID())
	}

	r.agents[ag.ID()] = ag
	return nil
}

func (r *AgentRegistry) Get(agentID string) (*agent.Agent, error) {
	if agentID == "" {
		return nil, errors.New("agent ID cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ag, exists := r.agents[agentID]
	if !exists {
		return nil, fmt.Errorf("agent not found: %s", agentID)
	}

	return ag, nil
}

func (r *AgentRegistry) List() []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return gmap.ToSlice(r.agents, func(_ string, v *agent.Agent) *agent.Agent { return v })
}
