package gate

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/audit"
)

// deadlineAuditBudget bounds the best-effort audit append a deadline
// denial makes: the request's own context is already expired, so the
// append runs against a short detached one instead of failing outright.
const deadlineAuditBudget = 2 * time.Second

// Outcome is the chain's overall result for one invocation.
type Outcome struct {
	Allowed bool
	Denial  *Denial
	Record  *audit.DenialRecord // populated only when Denial is non-nil
}

// Run executes Chain in order against ic, short-circuiting on the first
// deny. On deny it appends exactly one audit record before returning,
// transactional with chain termination: if the append itself fails, the
// request fails closed and the caller must report an infrastructure error
// rather than the original reason code.
func Run(ctx context.Context, ic *InvocationContext, deps Deps, auditLog audit.Log) (Outcome, error) {
	for _, g := range Chain {
		if ctx.Err() != nil {
			return denyDeadline(ic, auditLog), nil
		}

		result := g(ctx, ic, deps)
		if result.Allowed {
			continue
		}

		record, err := auditLog.Append(ctx, audit.DenialRecord{
			CorrelationID: ic.CorrelationID,
			CallerID:      ic.CallerID,
			CustomerID:    ic.CustomerID,
			AgentID:       ic.AgentID,
			Stage:         result.Denial.Stage,
			Action:        ic.IntentAction,
			ReasonCode:    result.Denial.ReasonCode,
			Details:       result.Denial.Details,
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Denial: result.Denial, Record: &record}, nil
	}
	return Outcome{Allowed: true}, nil
}

// denyDeadline builds the deadline denial the chain returns when ctx
// expires before evaluation completes. No skill executes and no usage
// event is recorded; the audit record is best-effort against a detached
// budget since ic's own request context has already expired.
func denyDeadline(ic *InvocationContext, auditLog audit.Log) Outcome {
	denial := &Denial{ReasonCode: ReasonDeadline, Stage: audit.StageOther}

	auditCtx, cancel := context.WithTimeout(context.Background(), deadlineAuditBudget)
	defer cancel()
	record, err := auditLog.Append(auditCtx, audit.DenialRecord{
		CorrelationID: ic.CorrelationID,
		CallerID:      ic.CallerID,
		CustomerID:    ic.CustomerID,
		AgentID:       ic.AgentID,
		Stage:         audit.StageOther,
		Action:        ic.IntentAction,
		ReasonCode:    ReasonDeadline,
	})
	if err != nil {
		return Outcome{Denial: denial}
	}
	return Outcome{Denial: denial, Record: &record}
}
