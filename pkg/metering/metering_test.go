package metering

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyAcceptsWellSignedEnvelope(t *testing.T) {
	v := NewVerifier("top-secret", 5*time.Minute)
	now := time.Now()
	sig := v.Sign(now.Unix(), "corr-1", 120, 80, "gpt-x", true, 0.42)

	headers := map[string]string{
		HeaderTimestamp: strconv.FormatInt(now.Unix(), 10),
		HeaderTokensIn:  "120",
		HeaderTokensOut: "80",
		HeaderModel:     "gpt-x",
		HeaderCacheHit:  "true",
		HeaderCost:      "0.420000",
		HeaderSignature: sig,
	}

	attested, reasonCode := v.Verify(headers, "corr-1", now)
	require.Equal(t, "", reasonCode)
	require.NotNil(t, attested)
	require.Equal(t, int64(120), attested.TokensIn)
	require.Equal(t, int64(80), attested.TokensOut)
	require.Equal(t, "gpt-x", attested.Model)
	require.True(t, attested.CacheHit)
	require.Equal(t, 0.42, attested.CostAmount)
}

func TestVerifyRejectsWrongCorrelationID(t *testing.T) {
	v := NewVerifier("top-secret", 5*time.Minute)
	now := time.Now()
	sig := v.Sign(now.Unix(), "corr-1", 120, 80, "gpt-x", true, 0.42)

	headers := map[string]string{
		HeaderTimestamp: strconv.FormatInt(now.Unix(), 10),
		HeaderTokensIn:  "120",
		HeaderTokensOut: "80",
		HeaderModel:     "gpt-x",
		HeaderCacheHit:  "true",
		HeaderCost:      "0.420000",
		HeaderSignature: sig,
	}

	_, reasonCode := v.Verify(headers, "corr-2", now)
	require.Equal(t, ReasonEnvelopeInvalid, reasonCode)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	v := NewVerifier("top-secret", time.Minute)
	past := time.Now().Add(-10 * time.Minute)
	sig := v.Sign(past.Unix(), "corr-1", 1, 1, "gpt-x", false, 0.01)

	headers := map[string]string{
		HeaderTimestamp: strconv.FormatInt(past.Unix(), 10),
		HeaderTokensIn:  "1",
		HeaderTokensOut: "1",
		HeaderModel:     "gpt-x",
		HeaderCacheHit:  "false",
		HeaderCost:      "0.010000",
		HeaderSignature: sig,
	}

	_, reasonCode := v.Verify(headers, "corr-1", time.Now())
	require.Equal(t, ReasonEnvelopeExpired, reasonCode)
}

func TestVerifyRequiresAllHeaders(t *testing.T) {
	v := NewVerifier("top-secret", 5*time.Minute)
	_, reasonCode := v.Verify(map[string]string{HeaderTokensIn: "1"}, "corr-1", time.Now())
	require.Equal(t, ReasonEnvelopeRequired, reasonCode)
}
