// Package problem implements the gateway's uniform RFC 7807-shaped error
// response: every failure path, regardless of which component raised it,
// is rendered through Write so callers see one consistent object shape.
package problem

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Detail is the structured body returned on every failure.
type Detail struct {
	Title         string `json:"title"`
	ReasonCode    string `json:"reason_code"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

// Status maps a reason code to its HTTP-style status code per the
// catalogue: 403 for approval-stage denials, 429 for trial/budget/metering,
// 422 for spec validation, 408 for deadline, 5xx for infrastructure.
func Status(reasonCode string) int {
	switch reasonCode {
	case "approval_required", "autopublish_not_allowed":
		return http.StatusForbidden
	case "trial_production_write_blocked", "trial_daily_cap", "trial_daily_token_cap",
		"trial_high_cost_call", "metering_required_for_budget", "monthly_budget_exceeded",
		"metering_envelope_required", "metering_envelope_invalid", "metering_envelope_expired",
		"rate_limited", "backpressure":
		return http.StatusTooManyRequests
	case "spec_validation":
		return http.StatusUnprocessableEntity
	case "deadline":
		return http.StatusRequestTimeout
	case "intent_action_required", "unknown_reference_agent":
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Write renders a Detail to w with the status implied by reasonCode.
func Write(w http.ResponseWriter, correlationID, title, reasonCode string, details any) {
	d := Detail{
		Title:         title,
		ReasonCode:    reasonCode,
		Details:       details,
		CorrelationID: correlationID,
	}
	status := Status(reasonCode)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(d); err != nil {
		slog.Error("problem: failed to encode response body", "error", err)
	}
}

// WriteInternal renders an infrastructure failure. The underlying error is
// logged but never exposed to the caller.
func WriteInternal(w http.ResponseWriter, correlationID string, err error) {
	slog.Error("internal error", "correlation_id", correlationID, "error", err)
	Write(w, correlationID, "internal error", "internal", nil)
}
