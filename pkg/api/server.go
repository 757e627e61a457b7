package api

import (
	"net/http"
	"time"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/audit"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/catalog"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/config"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/ledger"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/metering"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/plan"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/schemaval"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/spec"
)

// Server bundles every subsystem the HTTP surface dispatches into.
type Server struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Plans     *plan.Registry
	Compiler  *spec.Compiler
	Cache     *spec.BundleCache
	Ledger    ledger.Ledger
	Audit     audit.Log
	Metering  *metering.Verifier
	RateLimit *RateLimiter
	SchemaVal *schemaval.Validator
}

// Handler builds the complete routed, middleware-wrapped http.Handler.
// It wraps s.Ledger and s.Audit with writer-queue-depth counters, so call
// it once per Server at startup rather than per request.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	depth := &WriterQueueDepth{}
	s.Ledger = countingLedger{s.Ledger, depth}
	s.Audit = countingAuditLog{s.Audit, depth}

	// agent_id may itself contain "/" (e.g. "marketing/v1"), so it travels
	// in the request body for execute and as a trailing wildcard for the
	// single-agent lookup rather than as a single mux path segment.
	mux.HandleFunc("POST /v1/execute", s.handleExecute)
	mux.HandleFunc("GET /v1/agents", s.handleListAgents)
	mux.HandleFunc("GET /v1/agents/{agentID...}", s.handleGetAgent)

	mux.HandleFunc("GET /v1/spec/schema", s.handleSpecSchema)
	mux.HandleFunc("POST /v1/spec/validate", s.handleSpecValidate)

	mux.HandleFunc("GET /v1/admin/usage-events", s.handleListUsageEvents)
	mux.HandleFunc("GET /v1/admin/usage-events/aggregate", s.handleAggregateUsageEvents)
	mux.HandleFunc("GET /v1/admin/denials", s.handleListDenials)
	mux.HandleFunc("GET /v1/admin/audit/verify", s.handleAuditVerify)
	mux.HandleFunc("GET /v1/admin/audit/export", s.handleAuditExport)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	handler = stripBrowserMeteringMiddleware(handler)
	handler = callerMiddleware(handler)
	handler = correlationMiddleware(handler)
	handler = backpressureMiddleware(depth, s.Config.WriterQueueHighWaterMark)(handler)
	if s.RateLimit != nil {
		handler = s.RateLimit.Middleware(handler)
	}
	deadline := s.Config.RequestDeadline
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	handler = deadlineMiddleware(deadline)(handler)
	return handler
}
