package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := map[string]int{
		"approval_required":            http.StatusForbidden,
		"autopublish_not_allowed":      http.StatusForbidden,
		"unknown_reference_agent":      http.StatusForbidden,
		"intent_action_required":       http.StatusForbidden,
		"trial_production_write_blocked": http.StatusTooManyRequests,
		"monthly_budget_exceeded":      http.StatusTooManyRequests,
		"metering_envelope_invalid":    http.StatusTooManyRequests,
		"rate_limited":                 http.StatusTooManyRequests,
		"backpressure":                 http.StatusTooManyRequests,
		"spec_validation":              http.StatusUnprocessableEntity,
		"deadline":                     http.StatusRequestTimeout,
		"something_unmapped":           http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, Status(code), code)
	}
}

func TestWriteRendersProblemDetail(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, "corr-1", "request denied", "approval_required", map[string]any{"plan_id": "starter"})

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var decoded Detail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.Equal(t, "corr-1", decoded.CorrelationID)
	require.Equal(t, "approval_required", decoded.ReasonCode)
}

func TestWriteInternalHidesUnderlyingError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternal(w, "corr-1", require.AnError)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var decoded Detail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.Equal(t, "internal", decoded.ReasonCode)
	require.NotContains(t, decoded.Title, require.AnError.Error())
}
