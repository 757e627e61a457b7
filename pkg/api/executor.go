package api

import (
	"fmt"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/gate"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/spec"
)

// runSkill is the deterministic skill playbook: given a compiled bundle and
// an allowed invocation, it produces the output draft recorded by the
// skill_execution event. Real skill execution (calling out to an LLM
// back-end) is an external collaborator; this produces the deterministic
// shape the rest of the pipeline records and returns.
func runSkill(bundle *spec.Bundle, ic *gate.InvocationContext) map[string]any {
	return map[string]any{
		"agent_id":      ic.AgentID,
		"spec_id":       bundle.SpecID,
		"content_hash":  bundle.ContentHash,
		"intent_action": ic.IntentAction,
		"draft":         fmt.Sprintf("%s/%s executed %s", bundle.SpecID, ic.AgentID, ic.IntentAction),
	}
}
