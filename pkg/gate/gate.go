// Package gate implements the Gate Chain: a fixed, compile-time-ordered
// slice of pure deny/allow checks run before any skill side effect, in a
// policy-decision-point style (Decision/Denial as data, never exceptions)
// but built as a static Go slice rather than a dynamically loaded rule
// engine or CEL-style evaluator.
package gate

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/audit"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/ledger"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/metering"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/plan"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/spec"
)

// Reason codes the chain's gates can produce.
const (
	ReasonIntentActionRequired    = "intent_action_required"
	ReasonApprovalRequired        = "approval_required"
	ReasonAutopublishNotAllowed   = "autopublish_not_allowed"
	ReasonTrialWriteBlocked       = "trial_production_write_blocked"
	ReasonTrialHighCostCall       = "trial_high_cost_call"
	ReasonTrialDailyCap           = "trial_daily_cap"
	ReasonTrialDailyTokenCap      = "trial_daily_token_cap"
	ReasonMeteringEnvelopeMissing = metering.ReasonEnvelopeRequired
	ReasonMeteringEnvelopeInvalid = metering.ReasonEnvelopeInvalid
	ReasonMeteringEnvelopeExpired = metering.ReasonEnvelopeExpired
	ReasonMeteringRequired        = "metering_required_for_budget"
	ReasonMonthlyBudgetExceeded   = "monthly_budget_exceeded"
	ReasonDeadline                = "deadline"
	ReasonInternal                = "internal"
)

// sideEffectingActions is the closed set of intent actions this process
// treats as requiring approval and trial restriction.
var sideEffectingActions = map[string]bool{
	"publish": true,
	"send":    true,
	"post":    true,
	"write":   true,
}

// IsSideEffecting reports whether intentAction names a side-effecting verb.
func IsSideEffecting(intentAction string) bool {
	return sideEffectingActions[intentAction]
}

// InvocationContext is the per-request mutable record threaded through the
// chain. It is owned exclusively by the request task.
type InvocationContext struct {
	CorrelationID string
	CallerID      string
	CustomerID    string
	PlanID        string
	AgentID       string

	IntentAction string
	TrialMode    bool
	ApprovalID   string

	// Caller-declared metering, used when no signed envelope is present.
	DeclaredCost      float64
	DeclaredTokensIn  int64
	DeclaredTokensOut int64
	Model             string
	CacheHit          bool

	// MeteringHeaders carries the raw X-Metering-* values, if present.
	MeteringHeaders map[string]string

	// Annotations accumulates allow-path notes from gates (e.g. the
	// resolved effective cost), consumed by the skill executor.
	Annotations map[string]any
}

func (ic *InvocationContext) annotate(key string, value any) {
	if ic.Annotations == nil {
		ic.Annotations = make(map[string]any)
	}
	ic.Annotations[key] = value
}

// Deps bundles the read-only collaborators every gate may consult.
type Deps struct {
	Ledger   ledger.Ledger
	Plans    *plan.Registry
	Metering *metering.Verifier
	Bundle   *spec.Bundle
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Denial carries everything needed to build both the audit record and the
// structured problem response.
type Denial struct {
	ReasonCode string
	Stage      audit.Stage
	Details    map[string]any
}

// Result is a gate's outcome: exactly one of Allowed or a non-nil Denial.
type Result struct {
	Allowed bool
	Denial  *Denial
}

func allow() Result { return Result{Allowed: true} }

func deny(reasonCode string, stage audit.Stage, details map[string]any) Result {
	return Result{Denial: &Denial{ReasonCode: reasonCode, Stage: stage, Details: details}}
}

// Gate is a pure function of the invocation context and its read-only
// dependencies. It may mutate ic's Annotations on allow but must never
// retain ic or deps beyond the call.
type Gate func(ctx context.Context, ic *InvocationContext, deps Deps) Result
