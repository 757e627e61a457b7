package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/audit"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/callerctx"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/ledger"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/problem"
)

func parseTimeParam(q string) time.Time {
	if q == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, q)
	if err != nil {
		return time.Time{}
	}
	return t
}

func ledgerFilterFromQuery(r *http.Request) ledger.Filter {
	q := r.URL.Query()
	return ledger.Filter{
		CustomerID:    q.Get("customer_id"),
		AgentID:       q.Get("agent_id"),
		CorrelationID: q.Get("correlation_id"),
		CallerID:      q.Get("caller_id"),
		EventType:     ledger.EventType(q.Get("event_type")),
		Since:         parseTimeParam(q.Get("since")),
		Until:         parseTimeParam(q.Get("until")),
	}
}

func (s *Server) handleListUsageEvents(w http.ResponseWriter, r *http.Request) {
	correlationID := callerctx.GetCorrelationID(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	events, err := s.Ledger.Query(r.Context(), ledgerFilterFromQuery(r), limit)
	if err != nil {
		problem.WriteInternal(w, correlationID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleAggregateUsageEvents(w http.ResponseWriter, r *http.Request) {
	correlationID := callerctx.GetCorrelationID(r.Context())

	bucket := ledger.Bucket(r.URL.Query().Get("bucket"))
	if bucket == "" {
		bucket = ledger.BucketDay
	}

	rows, err := s.Ledger.Aggregate(r.Context(), ledgerFilterFromQuery(r), bucket)
	if err != nil {
		problem.WriteInternal(w, correlationID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleListDenials(w http.ResponseWriter, r *http.Request) {
	correlationID := callerctx.GetCorrelationID(r.Context())
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	filter := audit.ListFilter{
		CorrelationID: q.Get("correlation_id"),
		CallerID:      q.Get("caller_id"),
		AgentID:       q.Get("agent_id"),
		Since:         parseTimeParam(q.Get("since")),
		Until:         parseTimeParam(q.Get("until")),
		Limit:         limit,
	}

	records, err := s.Audit.List(r.Context(), filter)
	if err != nil {
		problem.WriteInternal(w, correlationID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"denials": records})
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	correlationID := callerctx.GetCorrelationID(r.Context())

	result, err := s.Audit.Verify(r.Context())
	if err != nil {
		problem.WriteInternal(w, correlationID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	correlationID := callerctx.GetCorrelationID(r.Context())

	bundle, err := s.Audit.Export(r.Context())
	if err != nil {
		problem.WriteInternal(w, correlationID, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}
