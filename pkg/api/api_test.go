package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/audit"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/catalog"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/config"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/ledger"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/metering"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/plan"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/spec"
)

func marketingSpec(specID string) spec.AgentSpec {
	dims := map[spec.DimensionName]spec.RawDimension{}
	for _, name := range spec.AllDimensionNames() {
		dims[name] = spec.RawDimension{Null: true}
	}
	return spec.AgentSpec{SpecID: specID, Type: spec.TypeMarketing, Version: "1.0.0", Dimensions: dims}
}

func newTestServer(t *testing.T, planRecord plan.Plan) *Server {
	t.Helper()
	registry := spec.DefaultRegistry()
	compiler := spec.NewCompiler(registry)

	return &Server{
		Config:   &config.Config{RequestDeadline: 0},
		Catalog:  catalog.New(catalog.Entry{AgentID: "marketing/v1", Spec: marketingSpec("spec-1")}),
		Plans:    plan.NewRegistry(planRecord),
		Compiler: compiler,
		Cache:    spec.NewBundleCache(compiler, 64),
		Ledger:   ledger.NewMemoryLedger(),
		Audit:    audit.NewMemoryLog(),
		Metering: metering.NewVerifier("", 0),
	}
}

func doExecute(t *testing.T, srv *Server, body map[string]any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body["agent_id"] = "marketing/v1"
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", bytes.NewReader(raw))
	req.Header.Set(CustomerHeader, "cust-1")
	req.Header.Set(PlanHeader, planIDFrom(srv))

	handler := correlationMiddleware(callerMiddleware(http.HandlerFunc(srv.handleExecute)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func planIDFrom(srv *Server) string {
	if p, ok := srv.Plans.Get("starter"); ok {
		return p.PlanID
	}
	return "starter"
}

func TestS1ApprovalGatedPublishDenied(t *testing.T) {
	srv := newTestServer(t, plan.Plan{PlanID: "starter"})
	w, body := doExecute(t, srv, map[string]any{"intent_action": "publish"})

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "approval_required", body["reason_code"])

	events, err := srv.Ledger.Query(context.Background(), ledger.Filter{}, 0)
	require.NoError(t, err)
	require.Empty(t, events)

	records, err := srv.Audit.List(context.Background(), audit.ListFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, audit.StageApproval, records[0].Stage)
}

func TestS2ApprovalGatedPublishApproved(t *testing.T) {
	srv := newTestServer(t, plan.Plan{PlanID: "starter"})
	w, body := doExecute(t, srv, map[string]any{"intent_action": "publish", "approval_id": "A-1"})

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["published"])

	events, err := srv.Ledger.Query(context.Background(), ledger.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	records, err := srv.Audit.List(context.Background(), audit.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestS3TrialWriteBlocked(t *testing.T) {
	srv := newTestServer(t, plan.Plan{PlanID: "starter"})
	w, body := doExecute(t, srv, map[string]any{
		"intent_action": "publish", "approval_id": "A-1", "trial_mode": true,
	})

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "trial_production_write_blocked", body["reason_code"])
}

func TestS4BudgetExhaustion(t *testing.T) {
	srv := newTestServer(t, plan.Plan{PlanID: "starter", MonthlyBudgetAmount: 10.00})

	_, err := srv.Ledger.Append(context.Background(), ledger.Event{
		CustomerID: "cust-1", EventType: ledger.EventSkillExecution, CostAmount: 9.99,
	})
	require.NoError(t, err)

	w, body := doExecute(t, srv, map[string]any{"intent_action": "draft", "declared_cost": 0.02})

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "monthly_budget_exceeded", body["reason_code"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, details, "window_resets_at")
}

func meteredTestServer(t *testing.T) (*Server, *metering.Verifier) {
	t.Helper()
	verifier := metering.NewVerifier("shared-secret", 5*time.Minute)
	srv := newTestServer(t, plan.Plan{PlanID: "starter", MonthlyBudgetAmount: 100.00})
	srv.Metering = verifier
	return srv, verifier
}

func doExecuteWithHeaders(t *testing.T, srv *Server, body map[string]any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body["agent_id"] = "marketing/v1"
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", bytes.NewReader(raw))
	req.Header.Set(CustomerHeader, "cust-1")
	req.Header.Set(PlanHeader, planIDFrom(srv))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	handler := correlationMiddleware(callerMiddleware(http.HandlerFunc(srv.handleExecute)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

// TestS5MeteringEnvelopeSpoofRejected verifies a presented-but-invalid
// signature is rejected rather than trusted (testable property: a caller
// cannot forge a metering envelope without the shared secret).
func TestS5MeteringEnvelopeSpoofRejected(t *testing.T) {
	srv, _ := meteredTestServer(t)

	headers := map[string]string{
		metering.HeaderTimestamp: strconv.FormatInt(time.Now().Unix(), 10),
		metering.HeaderTokensIn:  "100",
		metering.HeaderTokensOut: "50",
		metering.HeaderModel:     "gpt-x",
		metering.HeaderCacheHit:  "false",
		metering.HeaderCost:      "1.000000",
		metering.HeaderSignature: "not-a-real-signature",
	}

	w, body := doExecuteWithHeaders(t, srv, map[string]any{"intent_action": "draft"}, headers)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, metering.ReasonEnvelopeInvalid, body["reason_code"])

	events, err := srv.Ledger.Query(context.Background(), ledger.Filter{}, 0)
	require.NoError(t, err)
	require.Empty(t, events)
}

// TestS6MeteringEnvelopeOverridesDeclaredValues verifies that once an
// envelope validates, its values are authoritative over the body's
// declared cost/tokens (testable property 5).
func TestS6MeteringEnvelopeOverridesDeclaredValues(t *testing.T) {
	srv, verifier := meteredTestServer(t)

	corr := "11111111-1111-1111-1111-111111111111"
	ts := time.Now().Unix()
	sig := verifier.Sign(ts, corr, 100, 50, "gpt-x", false, 1.50)

	headers := map[string]string{
		"X-Correlation-Id":        corr,
		metering.HeaderTimestamp:  strconv.FormatInt(ts, 10),
		metering.HeaderTokensIn:   "100",
		metering.HeaderTokensOut:  "50",
		metering.HeaderModel:      "gpt-x",
		metering.HeaderCacheHit:   "false",
		metering.HeaderCost:       "1.500000",
		metering.HeaderSignature:  sig,
	}

	w, body := doExecuteWithHeaders(t, srv, map[string]any{
		"intent_action": "draft", "declared_cost": 999.99, "declared_tokens_in": 1, "declared_tokens_out": 1,
	}, headers)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", body["status"])

	events, err := srv.Ledger.Query(context.Background(), ledger.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 1.50, events[0].CostAmount)
	require.Equal(t, int64(100), events[0].TokensIn)
	require.Equal(t, int64(50), events[0].TokensOut)
}

// TestBrowserOriginatedMeteringEnvelopeNeverReachesVerifier is the public
// ingress test the header-hygiene contract requires: a request that looks
// browser-originated must never have its X-Metering-* envelope honored,
// even when the signature is well-formed, because the ingress strips the
// headers before any handler — including the verifier — sees them.
func TestBrowserOriginatedMeteringEnvelopeNeverReachesVerifier(t *testing.T) {
	srv, verifier := meteredTestServer(t)

	corr := "22222222-2222-2222-2222-222222222222"
	ts := time.Now().Unix()
	sig := verifier.Sign(ts, corr, 100, 50, "gpt-x", false, 1.50)

	body := map[string]any{"agent_id": "marketing/v1", "intent_action": "draft"}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", bytes.NewReader(raw))
	req.Header.Set(CustomerHeader, "cust-1")
	req.Header.Set(PlanHeader, planIDFrom(srv))
	req.Header.Set("X-Correlation-Id", corr)
	req.Header.Set("Origin", "https://attacker.example")
	req.Header.Set(metering.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(metering.HeaderTokensIn, "100")
	req.Header.Set(metering.HeaderTokensOut, "50")
	req.Header.Set(metering.HeaderModel, "gpt-x")
	req.Header.Set(metering.HeaderCacheHit, "false")
	req.Header.Set(metering.HeaderCost, "1.500000")
	req.Header.Set(metering.HeaderSignature, sig)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))

	// With the envelope stripped, the metering verifier sees none of the
	// seven required headers and denies as if no envelope were ever
	// attached — proof the attacker-supplied envelope never arrived.
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, metering.ReasonEnvelopeRequired, decoded["reason_code"])
}

// TestDeadlineExpiredDuringGateEvaluationReturns408 verifies a request
// whose context is already past its deadline when the chain evaluates
// fails closed with the deadline problem rather than a generic 500.
func TestDeadlineExpiredDuringGateEvaluationReturns408(t *testing.T) {
	srv := newTestServer(t, plan.Plan{PlanID: "starter"})

	body := map[string]any{"agent_id": "marketing/v1", "intent_action": "draft"}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", bytes.NewReader(raw))
	req.Header.Set(CustomerHeader, "cust-1")
	req.Header.Set(PlanHeader, planIDFrom(srv))

	ctx, cancel := context.WithTimeout(req.Context(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	req = req.WithContext(ctx)

	handler := correlationMiddleware(callerMiddleware(http.HandlerFunc(srv.handleExecute)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))

	require.Equal(t, http.StatusRequestTimeout, w.Code)
	require.Equal(t, "deadline", decoded["reason_code"])

	events, err := srv.Ledger.Query(context.Background(), ledger.Filter{}, 0)
	require.NoError(t, err)
	require.Empty(t, events)
}

// TestS7AuditTamperDetected verifies VerifyBundle flags the first record
// whose stored hash no longer matches its recomputed chain hash.
func TestS7AuditTamperDetected(t *testing.T) {
	srv := newTestServer(t, plan.Plan{PlanID: "starter"})

	_, body := doExecute(t, srv, map[string]any{"intent_action": "publish"})
	require.Equal(t, "approval_required", body["reason_code"])

	result, err := srv.Audit.Verify(context.Background())
	require.NoError(t, err)
	require.True(t, result.OK)

	bundle, err := srv.Audit.Export(context.Background())
	require.NoError(t, err)
	require.Len(t, bundle.Records, 1)
	bundle.Records[0].ReasonCode = "tampered"

	tamperedResult := audit.VerifyBundle(bundle)
	require.False(t, tamperedResult.OK)
	require.NotNil(t, tamperedResult.FirstBadIndex)
	require.Equal(t, 0, *tamperedResult.FirstBadIndex)
}
