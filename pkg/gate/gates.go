package gate

import (
	"context"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/audit"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/ledger"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/spec"
)

// Chain is the fixed, compile-time-ordered gate sequence. Its composition
// never changes at request time.
var Chain = []Gate{
	IntentActionRequiredGate,
	ApprovalGate,
	TrialRestrictionsGate,
	TrialDailyCapGate,
	MeteringRequirementGate,
	BudgetGate,
}

// IntentActionRequiredGate is gate 1.
func IntentActionRequiredGate(ctx context.Context, ic *InvocationContext, deps Deps) Result {
	if ic.IntentAction == "" {
		return deny(ReasonIntentActionRequired, audit.StageOther, nil)
	}
	return allow()
}

func autopublishEnabled(bundle *spec.Bundle) bool {
	if bundle == nil {
		return false
	}
	inst, ok := bundle.Dimensions[spec.DimAutopublish]
	if !ok || inst.Null || inst.Config == nil {
		return false
	}
	enabled, _ := inst.Config["enabled"].(bool)
	return enabled
}

// ApprovalGate is gate 2.
func ApprovalGate(ctx context.Context, ic *InvocationContext, deps Deps) Result {
	if !IsSideEffecting(ic.IntentAction) {
		return allow()
	}

	specAutopublish := autopublishEnabled(deps.Bundle)
	planAllows := false
	if p, ok := deps.Plans.Get(ic.PlanID); ok {
		planAllows = p.AutopublishAllowed
	}

	if specAutopublish && !planAllows {
		return deny(ReasonAutopublishNotAllowed, audit.StageApproval, map[string]any{
			"plan_id": ic.PlanID,
		})
	}
	if specAutopublish && planAllows {
		ic.annotate("autopublish", true)
		return allow()
	}
	if ic.ApprovalID != "" {
		ic.annotate("approval_id", ic.ApprovalID)
		return allow()
	}
	return deny(ReasonApprovalRequired, audit.StageApproval, nil)
}

// TrialRestrictionsGate is gate 3.
func TrialRestrictionsGate(ctx context.Context, ic *InvocationContext, deps Deps) Result {
	if !ic.TrialMode {
		return allow()
	}
	if IsSideEffecting(ic.IntentAction) {
		return deny(ReasonTrialWriteBlocked, audit.StageTrial, nil)
	}

	p, ok := deps.Plans.Get(ic.PlanID)
	if ok && p.TrialMaxCostPerCall > 0 && ic.DeclaredCost > p.TrialMaxCostPerCall {
		return deny(ReasonTrialHighCostCall, audit.StageTrial, map[string]any{
			"estimated_cost":          ic.DeclaredCost,
			"trial_max_cost_per_call": p.TrialMaxCostPerCall,
		})
	}
	return allow()
}

// TrialDailyCapGate is gate 4.
func TrialDailyCapGate(ctx context.Context, ic *InvocationContext, deps Deps) Result {
	if !ic.TrialMode {
		return allow()
	}
	p, ok := deps.Plans.Get(ic.PlanID)
	if !ok {
		return allow()
	}

	start, end := ledger.DayWindow(deps.now())
	events, err := deps.Ledger.Query(ctx, ledger.Filter{
		CallerID:  ic.CallerID,
		EventType: ledger.EventSkillExecution,
		Since:     start,
		Until:     end,
	}, 0)
	if err != nil {
		if ctx.Err() != nil {
			return deny(ReasonDeadline, audit.StageOther, nil)
		}
		return deny(ReasonInternal, audit.StageOther, map[string]any{"error": err.Error()})
	}

	if p.TrialDailyTasksCap > 0 && int64(len(events)) >= p.TrialDailyTasksCap {
		return deny(ReasonTrialDailyCap, audit.StageTrial, map[string]any{
			"trial_daily_tasks_cap": p.TrialDailyTasksCap,
		})
	}

	var tokensSoFar int64
	for _, e := range events {
		tokensSoFar += e.TokensIn + e.TokensOut
	}
	if p.TrialDailyTokensCap > 0 && tokensSoFar+ic.DeclaredTokensIn+ic.DeclaredTokensOut > p.TrialDailyTokensCap {
		return deny(ReasonTrialDailyTokenCap, audit.StageTrial, map[string]any{
			"trial_daily_tokens_cap": p.TrialDailyTokensCap,
		})
	}
	return allow()
}

// MeteringRequirementGate is gate 5.
func MeteringRequirementGate(ctx context.Context, ic *InvocationContext, deps Deps) Result {
	p, ok := deps.Plans.Get(ic.PlanID)
	if !ok || !p.HasMonthlyBudget() {
		return allow()
	}

	if deps.Metering != nil && deps.Metering.Enabled() {
		attested, reasonCode := deps.Metering.Verify(ic.MeteringHeaders, ic.CorrelationID, deps.now())
		if reasonCode != "" {
			return deny(reasonCode, audit.StageMetering, nil)
		}
		ic.annotate("attested_metering", attested)
		ic.annotate("effective_cost", attested.CostAmount)
		return allow()
	}

	if ic.DeclaredCost == 0 {
		return deny(ReasonMeteringRequired, audit.StageMetering, nil)
	}
	ic.annotate("effective_cost", ic.DeclaredCost)
	return allow()
}

// BudgetGate is gate 6.
func BudgetGate(ctx context.Context, ic *InvocationContext, deps Deps) Result {
	p, ok := deps.Plans.Get(ic.PlanID)
	if !ok || !p.HasMonthlyBudget() {
		return allow()
	}

	effectiveCost, _ := ic.Annotations["effective_cost"].(float64)

	start, end := ledger.MonthWindow(deps.now())
	events, err := deps.Ledger.Query(ctx, ledger.Filter{
		CustomerID: ic.CustomerID,
		Since:      start,
		Until:      end,
	}, 0)
	if err != nil {
		if ctx.Err() != nil {
			return deny(ReasonDeadline, audit.StageOther, nil)
		}
		return deny(ReasonInternal, audit.StageOther, map[string]any{"error": err.Error()})
	}

	var sum float64
	for _, e := range events {
		if e.EventType == ledger.EventSkillExecution || e.EventType == ledger.EventPublishAction {
			sum += e.CostAmount
		}
	}

	if sum+effectiveCost > p.MonthlyBudgetAmount {
		return deny(ReasonMonthlyBudgetExceeded, audit.StageBudget, map[string]any{
			"window_resets_at": end,
			"monthly_budget":   p.MonthlyBudgetAmount,
			"current_spend":    sum,
		})
	}
	ic.annotate("monthly_spend_after_call", sum+effectiveCost)
	return allow()
}
