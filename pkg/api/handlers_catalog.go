package api

import (
	"net/http"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/callerctx"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/problem"
)

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.Catalog.List()})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	correlationID := callerctx.GetCorrelationID(r.Context())
	agentID := r.PathValue("agentID")

	entry, ok := s.Catalog.Get(agentID)
	if !ok {
		problem.Write(w, correlationID, "unknown agent", "unknown_reference_agent", map[string]any{"agent_id": agentID})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
