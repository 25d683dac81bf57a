package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// AgentID names one stage in the closed set of agents a request may address.
type AgentID string

const (
	AgentClarifying        AgentID = "clarifying"
	AgentClassifying       AgentID = "classifying"
	AgentDomain            AgentID = "domain"
	AgentTasks             AgentID = "tasks"
	AgentAutomate          AgentID = "automate"
	AgentClarifyAutomation AgentID = "clarify_automation"
	AgentExpander          AgentID = "expander"
	AgentExecute           AgentID = "execute"
	AgentVenting           AgentID = "venting"
)

// AllAgents lists every agent in pipeline order.
var AllAgents = []AgentID{
	AgentClarifying,
	AgentClassifying,
	AgentDomain,
	AgentTasks,
	AgentAutomate,
	AgentClarifyAutomation,
	AgentExpander,
	AgentExecute,
	AgentVenting,
}

var (
	// ErrUnknownAgent is returned for identifiers outside the closed set.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrContractExists is returned when a contract is registered twice.
	ErrContractExists = errors.New("contract already registered")
)

// ParseAgentID validates s against the closed agent set.
func ParseAgentID(s string) (AgentID, error) {
	for _, id := range AllAgents {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAgent, s)
}

// Contract binds an agent to its template, context fields and output shape.
type Contract struct {
	Agent      AgentID
	TemplateID string
	Version    int

	// Required context keys must be present and non-null.
	Required []string

	// Optional context keys are filled with null when absent.
	Optional []string

	// Output is nil for agents that do not produce structured output.
	Output *Shape
}

// MissingFields returns the required keys that are absent or null in ctx.
func (c Contract) MissingFields(ctx map[string]json.RawMessage) []string {
	var missing []string
	for _, key := range c.Required {
		raw, ok := ctx[key]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			missing = append(missing, key)
		}
	}
	return missing
}

// FillOptional sets every absent optional key in ctx to null.
func (c Contract) FillOptional(ctx map[string]json.RawMessage) {
	for _, key := range c.Optional {
		if _, ok := ctx[key]; !ok {
			ctx[key] = json.RawMessage("null")
		}
	}
}

// Fields returns required followed by optional keys.
func (c Contract) Fields() []string {
	out := make([]string, 0, len(c.Required)+len(c.Optional))
	out = append(out, c.Required...)
	return append(out, c.Optional...)
}

// Registry holds one contract per agent.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	contracts map[AgentID]Contract
}

// NewRegistry creates an empty contract registry.
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[AgentID]Contract)}
}

// Register adds a contract. Agents outside the closed set are rejected.
func (r *Registry) Register(c Contract) error {
	if _, err := ParseAgentID(string(c.Agent)); err != nil {
		return err
	}
	if c.TemplateID == "" && c.Output != nil {
		return fmt.Errorf("contract %s: template id required for structured output", c.Agent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contracts[c.Agent]; exists {
		return fmt.Errorf("%w: %s", ErrContractExists, c.Agent)
	}
	r.contracts[c.Agent] = c
	return nil
}

// MustRegister registers a contract and panics on error.
func (r *Registry) MustRegister(c Contract) {
	if err := r.Register(c); err != nil {
		panic(fmt.Sprintf("failed to register contract %s: %v", c.Agent, err))
	}
}

// Lookup returns the contract for id.
func (r *Registry) Lookup(id AgentID) (Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contracts[id]
	if !ok {
		return Contract{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return c, nil
}

// Agents returns the registered agent ids, sorted.
func (r *Registry) Agents() []AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]AgentID, 0, len(r.contracts))
	for id := range r.contracts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
