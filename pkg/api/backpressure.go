package api

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/audit"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/callerctx"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/ledger"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/problem"
)

// WriterQueueDepth is a process-wide gauge of in-flight durable writes to
// the usage ledger and audit log: the ledger and audit backends write
// under a per-partition lock rather than an explicit queue, so this
// in-flight counter is the proxy the ingress uses for "writer queue depth".
type WriterQueueDepth struct {
	inFlight int64
}

func (d *WriterQueueDepth) begin() { atomic.AddInt64(&d.inFlight, 1) }
func (d *WriterQueueDepth) end()   { atomic.AddInt64(&d.inFlight, -1) }

// Load returns the current count of in-flight ledger/audit appends.
func (d *WriterQueueDepth) Load() int64 { return atomic.LoadInt64(&d.inFlight) }

// countingLedger wraps a Ledger so every Append is counted against depth
// for the duration of the call.
type countingLedger struct {
	ledger.Ledger
	depth *WriterQueueDepth
}

func (c countingLedger) Append(ctx context.Context, event ledger.Event) (string, error) {
	c.depth.begin()
	defer c.depth.end()
	return c.Ledger.Append(ctx, event)
}

// countingAuditLog wraps an audit.Log so every Append is counted against
// depth for the duration of the call.
type countingAuditLog struct {
	audit.Log
	depth *WriterQueueDepth
}

func (c countingAuditLog) Append(ctx context.Context, r audit.DenialRecord) (audit.DenialRecord, error) {
	c.depth.begin()
	defer c.depth.end()
	return c.Log.Append(ctx, r)
}

// backpressureMiddleware sheds new requests with a transient problem
// response once depth exceeds highWaterMark, before any gate runs. A
// zero or negative highWaterMark disables shedding.
func backpressureMiddleware(depth *WriterQueueDepth, highWaterMark int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if highWaterMark <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if depth.Load() > highWaterMark {
				correlationID := callerctx.GetCorrelationID(r.Context())
				problem.Write(w, correlationID, "writer queue saturated", "backpressure", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
