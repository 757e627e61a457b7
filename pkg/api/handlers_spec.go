package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/callerctx"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/problem"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/spec"
)

func (s *Server) handleSpecSchema(w http.ResponseWriter, r *http.Request) {
	correlationID := callerctx.GetCorrelationID(r.Context())
	schema, err := s.Compiler.Schema()
	if err != nil {
		problem.WriteInternal(w, correlationID, err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(schema)
}

func (s *Server) handleSpecValidate(w http.ResponseWriter, r *http.Request) {
	correlationID := callerctx.GetCorrelationID(r.Context())

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		problem.Write(w, correlationID, "could not read spec body", "spec_validation", map[string]any{"error": err.Error()})
		return
	}

	// Preflight cross-check: the raw wire payload must match the emitted
	// JSON Schema before the descriptor-driven checks ever run.
	if s.SchemaVal != nil {
		if err := s.SchemaVal.ValidateRaw(raw); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"correlation_id": correlationID,
				"valid":          false,
				"violations": []spec.Violation{{
					Path: "", Code: "schema_mismatch", Message: err.Error(),
				}},
			})
			return
		}
	}

	var body spec.AgentSpec
	if err := json.Unmarshal(raw, &body); err != nil {
		problem.Write(w, correlationID, "malformed spec body", "spec_validation", map[string]any{"error": err.Error()})
		return
	}

	violations := s.Compiler.Validate(body)
	if len(violations) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"correlation_id": correlationID,
			"valid":          false,
			"violations":     violations,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"correlation_id": correlationID,
		"valid":          true,
	})
}
