// Package plan holds immutable per-customer-segment caps and budgets,
// loaded once at startup and cached for the life of the process — modelled
// as process-wide read-only state per the "global caches and registries"
// redesign note: a plain map, no locking, because it is never mutated
// after Load returns.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
)

// Plan is immutable for the lifetime of the process.
type Plan struct {
	PlanID                string  `json:"plan_id"`
	Currency              string  `json:"currency"`
	MonthlyBudgetAmount   float64 `json:"monthly_budget_amount"`
	TrialDailyTasksCap    int64   `json:"trial_daily_tasks_cap"`
	TrialDailyTokensCap   int64   `json:"trial_daily_tokens_cap"`
	TrialMaxCostPerCall   float64 `json:"trial_max_cost_per_call"`
	AutopublishAllowed    bool    `json:"autopublish_allowed"`
}

// HasMonthlyBudget reports whether this plan enforces a positive monthly
// budget: a defined, positive budget requires a cost estimate on every
// invocation.
func (p Plan) HasMonthlyBudget() bool {
	return p.MonthlyBudgetAmount > 0
}

// Registry is the process-wide, read-only set of known plans, keyed by
// plan_id.
type Registry struct {
	plans map[string]Plan
}

// Load reads a JSON array of Plan records from path. An empty path yields
// an empty registry (useful for tests and for the in-memory default).
func Load(path string) (*Registry, error) {
	r := &Registry{plans: make(map[string]Plan)}
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: reading %s: %w", path, err)
	}
	var plans []Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("plan: parsing %s: %w", path, err)
	}
	for _, p := range plans {
		r.plans[p.PlanID] = p
	}
	return r, nil
}

// NewRegistry builds a registry directly from a slice, for tests and
// programmatic wiring.
func NewRegistry(plans ...Plan) *Registry {
	r := &Registry{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		r.plans[p.PlanID] = p
	}
	return r
}

// Get returns the plan for planID and whether it is known.
func (r *Registry) Get(planID string) (Plan, bool) {
	p, ok := r.plans[planID]
	return p, ok
}
