// Package capability holds the closed set of tool actions the automation
// stages may reference, and the deterministic rules that decide whether a
// task can be carried out by one of them.
//
// Architecture:
//
//	task text → tokens → leading verb (judgment?) → first capability whose verbs AND objects match → Verdict
package capability

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
)

// Mode is an access mode every capability supports.
type Mode string

const (
	ModeRead   Mode = "read"
	ModeEdit   Mode = "edit"
	ModeCreate Mode = "create"
)

// AllModes is the fixed mode set of every capability.
var AllModes = []Mode{ModeRead, ModeEdit, ModeCreate}

var (
	ErrCapabilityNameEmpty  = errors.New("capability name cannot be empty")
	ErrCapabilityExists     = errors.New("capability already registered")
	ErrCapabilityNotFound   = errors.New("capability not found")
	ErrCapabilityNoKeywords = errors.New("capability needs verbs and objects")
)

// Param is one input a capability needs before it can run.
type Param struct {
	Name     string
	Question string
	Optional bool

	// Hints detect the parameter in free text. Any match means present.
	Hints []*regexp.Regexp
}

// Capability is one tool action.
type Capability struct {
	// Name is the canonical identifier, e.g. "mail-send".
	Name string

	// Aliases are alternate names callers and models use ("gmail").
	Aliases []string

	Description string

	// Server is the MCP server expected to provide the action.
	Server string

	// Verbs and Objects drive the automatability rule: a task matches
	// when it contains at least one of each.
	Verbs   []string
	Objects []string

	Params []Param
}

// Modes returns the access modes of the capability. Every capability is
// read/edit/create-capable.
func (c *Capability) Modes() []Mode {
	return append([]Mode(nil), AllModes...)
}

// RequiredParams returns the non-optional parameter names.
func (c *Capability) RequiredParams() []string {
	var out []string
	for _, p := range c.Params {
		if !p.Optional {
			out = append(out, p.Name)
		}
	}
	return out
}

// Validate checks that the capability definition is usable.
func (c *Capability) Validate() error {
	if c.Name == "" {
		return ErrCapabilityNameEmpty
	}
	if len(c.Verbs) == 0 || len(c.Objects) == 0 {
		return fmt.Errorf("%w: %s", ErrCapabilityNoKeywords, c.Name)
	}
	return nil
}

// Registry holds capabilities in registration order.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Capability
	aliases map[string]string
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Capability),
		aliases: make(map[string]string),
	}
}

// Register adds a capability. Names and aliases are case-insensitive.
func (r *Registry) Register(c *Capability) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid capability: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeName(c.Name)
	if _, exists := r.byName[key]; exists {
		return fmt.Errorf("%w: %s", ErrCapabilityExists, c.Name)
	}
	for _, a := range c.Aliases {
		if owner, taken := r.aliases[normalizeName(a)]; taken {
			return fmt.Errorf("%w: alias %q already used by %s", ErrCapabilityExists, a, owner)
		}
	}

	r.byName[key] = c
	r.order = append(r.order, key)
	r.aliases[key] = key
	for _, a := range c.Aliases {
		r.aliases[normalizeName(a)] = key
	}

	logging.StagesDebug("Registered capability: %s (aliases=%v)", c.Name, c.Aliases)
	return nil
}

// MustRegister registers a capability and panics on error.
func (r *Registry) MustRegister(c *Capability) {
	if err := r.Register(c); err != nil {
		panic(fmt.Sprintf("failed to register capability %s: %v", c.Name, err))
	}
}

// Resolve maps a name or alias to the canonical capability name.
func (r *Registry) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.aliases[normalizeName(name)]
	if !ok {
		return "", false
	}
	return r.byName[key].Name, true
}

// Get returns a capability by name or alias, or nil.
func (r *Registry) Get(name string) *Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.aliases[normalizeName(name)]
	if !ok {
		return nil
	}
	return r.byName[key]
}

// All returns capabilities in registration order.
func (r *Registry) All() []*Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Capability, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byName[key])
	}
	return out
}

// Names returns canonical names in registration order.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, c := range all {
		names[i] = c.Name
	}
	return names
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Subset returns a registry restricted to the named capabilities (names or
// aliases), keeping this registry's order. No names returns the full set.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		canonical, ok := r.Resolve(n)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, n)
		}
		want[canonical] = true
	}

	sub := NewRegistry()
	for _, c := range r.All() {
		if want[c.Name] {
			sub.MustRegister(c)
		}
	}
	return sub, nil
}

// Filter keeps the names that resolve in this registry, canonicalized and
// deduplicated, in input order.
func (r *Registry) Filter(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range names {
		canonical, ok := r.Resolve(n)
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	return out
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
