// Package catalog holds the registered agent specs the gateway will serve,
// keyed by agent id. Like pkg/plan, this is immutable process-wide state
// loaded once at startup — never mutated at request time.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/spec"
)

// Entry binds an agent id to the declarative spec the Spec Compiler will
// compile on every invocation of that agent.
type Entry struct {
	AgentID string        `json:"agent_id"`
	Spec    spec.AgentSpec `json:"spec"`
}

// Catalog is the process-wide, read-only set of registered agents.
type Catalog struct {
	entries map[string]Entry
}

// Load reads a JSON array of Entry records from path. An empty path yields
// an empty catalog.
func Load(path string) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry)}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	for _, e := range entries {
		c.entries[e.AgentID] = e
	}
	return c, nil
}

// New builds a catalog directly from entries, for tests and programmatic
// wiring.
func New(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		c.entries[e.AgentID] = e
	}
	return c
}

// Get returns the entry for agentID and whether it is known.
func (c *Catalog) Get(agentID string) (Entry, bool) {
	e, ok := c.entries[agentID]
	return e, ok
}

// List returns all entries, ordered by agent id for stable responses.
func (c *Catalog) List() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
