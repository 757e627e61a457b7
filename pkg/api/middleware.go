// Package api wires the gateway's three HTTP endpoint classes — agent
// execution, reference/spec tooling, and read-only admin — on top of the
// Spec Compiler, Gate Chain, Usage Ledger, Metering Verifier and Audit Log.
package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/callerctx"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/problem"
)

// CorrelationHeader is the inbound/outbound correlation id header name.
const CorrelationHeader = "X-Correlation-Id"

// CallerHeader is the header an upstream identity proxy stamps with the
// caller's identity. The gateway verifies only that it is present —
// authenticating the stamp itself is out of scope.
const CallerHeader = "X-Caller-Id"

// CustomerHeader and PlanHeader carry the tenancy and plan the proxy has
// already resolved for this caller.
const (
	CustomerHeader = "X-Customer-Id"
	PlanHeader     = "X-Plan-Id"
)

// correlationMiddleware assigns (or echoes) the request's correlation id
// and stamps it on the request context before any gate runs.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		ctx := callerctx.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerMiddleware stamps the caller identity the upstream proxy attached,
// if any. Endpoints that require it check for presence themselves.
func callerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerctx.Caller{
			CallerID:   r.Header.Get(CallerHeader),
			CustomerID: r.Header.Get(CustomerHeader),
			PlanID:     r.Header.Get(PlanHeader),
		}
		ctx := callerctx.WithCaller(r.Context(), caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// browserOriginHeaders names headers a browser attaches to virtually every
// fetch/XHR request but a trusted server-to-server caller has no reason to
// set. Their presence marks the request as browser-originated.
var browserOriginHeaders = []string{"Origin", "Sec-Fetch-Site"}

func isBrowserOrigin(r *http.Request) bool {
	for _, name := range browserOriginHeaders {
		if r.Header.Get(name) != "" {
			return true
		}
	}
	return false
}

// stripBrowserMeteringMiddleware removes every X-Metering-* envelope
// header from a browser-originated request before it reaches any handler.
// The verifier itself is unaffected either way — a forged envelope still
// fails signature verification — but the envelope headers are server-only
// by contract and must never cross a browser boundary at all.
func stripBrowserMeteringMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isBrowserOrigin(r) {
			for _, name := range meteringHeaderNames {
				r.Header.Del(name)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// deadlineMiddleware bounds every request to a fixed wall-clock deadline.
// If the deadline is already exceeded by the time a handler checks
// r.Context().Err(), it must return the "deadline" problem.
func deadlineMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// visitor tracks the rate limiter and last-seen time for one caller key.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per caller identity (or remote address
// when no caller identity has been stamped yet), ahead of backpressure
// shedding, the way a global per-IP limiter throttles per IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

// NewRateLimiter builds a token-bucket limiter keyed per caller.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func remoteKey(r *http.Request) string {
	if callerID := r.Header.Get(CallerHeader); callerID != "" {
		return callerID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
	}
	return ip
}

// Middleware sheds requests over the per-caller rate before any gate runs.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.limiterFor(remoteKey(r))
		if !limiter.Allow() {
			correlationID := callerctx.GetCorrelationID(r.Context())
			problem.Write(w, correlationID, "rate limited", "rate_limited", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
