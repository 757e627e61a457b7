package api

import (
	"encoding/json"
	"net/http"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/callerctx"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/gate"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/ledger"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/metering"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/problem"
)

// executeRequest is the invocation context body submitted to execute an agent.
type executeRequest struct {
	AgentID           string  `json:"agent_id"`
	IntentAction      string  `json:"intent_action"`
	TrialMode         bool    `json:"trial_mode"`
	ApprovalID        string  `json:"approval_id"`
	DeclaredCost      float64 `json:"declared_cost"`
	DeclaredTokensIn  int64   `json:"declared_tokens_in"`
	DeclaredTokensOut int64   `json:"declared_tokens_out"`
	Model             string  `json:"model"`
	CacheHit          bool    `json:"cache_hit"`
}

type executeResponse struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Output        any    `json:"output,omitempty"`
	Published     bool   `json:"published"`
}

var meteringHeaderNames = []string{
	metering.HeaderTimestamp, metering.HeaderTokensIn, metering.HeaderTokensOut,
	metering.HeaderModel, metering.HeaderCacheHit, metering.HeaderCost, metering.HeaderSignature,
}

func extractMeteringHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(meteringHeaderNames))
	for _, name := range meteringHeaderNames {
		if v := r.Header.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	correlationID := callerctx.GetCorrelationID(r.Context())
	caller, _ := callerctx.GetCaller(r.Context())

	var body executeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, correlationID, "malformed request body", "spec_validation", map[string]any{"error": err.Error()})
		return
	}

	entry, ok := s.Catalog.Get(body.AgentID)
	if !ok {
		problem.Write(w, correlationID, "unknown agent", "unknown_reference_agent", map[string]any{"agent_id": body.AgentID})
		return
	}

	bundle, violations := s.Cache.Compile(entry.Spec)
	if len(violations) > 0 {
		problem.Write(w, correlationID, "spec failed validation", "spec_validation", map[string]any{"violations": violations})
		return
	}

	// Impute a cost from the configured pricing table when the caller
	// declares tokens but no cost.
	declaredCost := body.DeclaredCost
	if declaredCost == 0 && s.Config != nil {
		if price, ok := s.Config.ModelPricing[body.Model]; ok {
			declaredCost = float64(body.DeclaredTokensIn)*price.CostPerInputToken +
				float64(body.DeclaredTokensOut)*price.CostPerOutputToken
		}
	}

	ic := &gate.InvocationContext{
		CorrelationID:     correlationID,
		CallerID:          caller.CallerID,
		CustomerID:        caller.CustomerID,
		PlanID:            caller.PlanID,
		AgentID:           body.AgentID,
		IntentAction:      body.IntentAction,
		TrialMode:         body.TrialMode,
		ApprovalID:        body.ApprovalID,
		DeclaredCost:      declaredCost,
		DeclaredTokensIn:  body.DeclaredTokensIn,
		DeclaredTokensOut: body.DeclaredTokensOut,
		Model:             body.Model,
		CacheHit:          body.CacheHit,
		MeteringHeaders:   extractMeteringHeaders(r),
	}

	deps := gate.Deps{Ledger: s.Ledger, Plans: s.Plans, Metering: s.Metering, Bundle: bundle}

	outcome, err := gate.Run(r.Context(), ic, deps, s.Audit)
	if err != nil {
		problem.WriteInternal(w, correlationID, err)
		return
	}
	if !outcome.Allowed {
		problem.Write(w, correlationID, "request denied", outcome.Denial.ReasonCode, outcome.Denial.Details)
		return
	}

	tokensIn, tokensOut, model, cacheHit, cost := resolveEffectiveMetering(ic)
	published := gate.IsSideEffecting(ic.IntentAction)

	output := runSkill(bundle, ic)

	event := ledger.Event{
		EventType:    ledger.EventSkillExecution,
		CorrelationID: correlationID,
		CallerID:     ic.CallerID,
		CustomerID:   ic.CustomerID,
		AgentID:      body.AgentID,
		Purpose:      ic.IntentAction,
		Model:        model,
		CacheHit:     cacheHit,
		TokensIn:     tokensIn,
		TokensOut:    tokensOut,
		CostAmount:   cost,
	}
	if _, err := s.Ledger.Append(r.Context(), event); err != nil {
		problem.WriteInternal(w, correlationID, err)
		return
	}

	if published {
		publishEvent := event
		publishEvent.EventType = ledger.EventPublishAction
		publishEvent.CostAmount = 0
		if _, err := s.Ledger.Append(r.Context(), publishEvent); err != nil {
			problem.WriteInternal(w, correlationID, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, executeResponse{
		CorrelationID: correlationID,
		Status:        "ok",
		Output:        output,
		Published:     published,
	})
}

// resolveEffectiveMetering applies envelope authority: when an envelope
// validated, its values are authoritative regardless of the body's
// declared values (testable property 5).
func resolveEffectiveMetering(ic *gate.InvocationContext) (tokensIn, tokensOut int64, model string, cacheHit bool, cost float64) {
	if attested, ok := ic.Annotations["attested_metering"].(*metering.AttestedMetering); ok && attested != nil {
		return attested.TokensIn, attested.TokensOut, attested.Model, attested.CacheHit, attested.CostAmount
	}
	cost, ok := ic.Annotations["effective_cost"].(float64)
	if !ok {
		cost = ic.DeclaredCost
	}
	return ic.DeclaredTokensIn, ic.DeclaredTokensOut, ic.Model, ic.CacheHit, cost
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
