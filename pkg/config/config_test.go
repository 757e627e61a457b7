package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "REQUEST_DEADLINE_SECONDS", "METERING_ENVELOPE_SECRET",
		"METERING_ENVELOPE_TTL_SECONDS", "USAGE_LEDGER_STORE_PATH", "AUDIT_LOG_STORE_PATH",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "PLAN_CONFIG_PATH", "AGENT_CATALOG_PATH",
		"MODEL_PRICING_JSON", "WRITER_QUEUE_HIGH_WATER_MARK",
	} {
		t.Setenv(key, "")
	}

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", c.Port)
	require.Equal(t, "info", c.LogLevel)
	require.Equal(t, 10*time.Second, c.RequestDeadline)
	require.Equal(t, "", c.MeteringSecret)
	require.Equal(t, 300*time.Second, c.MeteringTTL)
	require.Equal(t, 50.0, c.RateLimitRPS)
	require.Equal(t, 100, c.RateLimitBurst)
	require.Equal(t, int64(128), c.WriterQueueHighWaterMark)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("METERING_ENVELOPE_SECRET", "shh")
	t.Setenv("RATE_LIMIT_RPS", "5.5")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", c.Port)
	require.Equal(t, "shh", c.MeteringSecret)
	require.Equal(t, 5.5, c.RateLimitRPS)
}

func TestLoadRejectsMalformedModelPricing(t *testing.T) {
	t.Setenv("MODEL_PRICING_JSON", "{not json")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadParsesModelPricing(t *testing.T) {
	t.Setenv("MODEL_PRICING_JSON", `{"gpt-x": {"cost_per_input_token": 0.001, "cost_per_output_token": 0.002}}`)
	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0.001, c.ModelPricing["gpt-x"].CostPerInputToken)
}
