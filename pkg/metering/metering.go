// Package metering implements the Metering Verifier: it turns the seven
// X-Metering-* headers into a validated AttestedMetering value or rejects
// with a reason code. HMAC-SHA-256 is used directly from the standard
// library (crypto/hmac, crypto/sha256) rather than through a third-party
// wrapper — see DESIGN.md for why no pack dependency fits here better than
// the primitive itself.
package metering

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names, server-only: a correct ingress strips these from any
// browser-originated request before it reaches the gateway.
const (
	HeaderTimestamp = "X-Metering-Timestamp"
	HeaderTokensIn  = "X-Metering-Tokens-In"
	HeaderTokensOut = "X-Metering-Tokens-Out"
	HeaderModel     = "X-Metering-Model"
	HeaderCacheHit  = "X-Metering-Cache-Hit"
	HeaderCost      = "X-Metering-Cost"
	HeaderSignature = "X-Metering-Signature"
)

var requiredHeaders = []string{
	HeaderTimestamp, HeaderTokensIn, HeaderTokensOut,
	HeaderModel, HeaderCacheHit, HeaderCost, HeaderSignature,
}

// AttestedMetering is the validated, authoritative metering data from an
// envelope that passed verification.
type AttestedMetering struct {
	TokensIn   int64
	TokensOut  int64
	Model      string
	CacheHit   bool
	CostAmount float64
}

// Reason codes this package can emit; mirrors the normative catalogue.
const (
	ReasonEnvelopeRequired = "metering_envelope_required"
	ReasonEnvelopeInvalid  = "metering_envelope_invalid"
	ReasonEnvelopeExpired  = "metering_envelope_expired"
)

// Verifier holds the process-wide metering secret and freshness window,
// both read-only after startup.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

// NewVerifier builds a Verifier. An empty secret means trusted-metering
// enforcement is disabled process-wide (pass-through).
func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: ttl}
}

// Enabled reports whether a metering secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify validates the envelope carried in headers against correlationID
// and now (server time). Returns (metering, "") on success or
// (nil, reasonCode) on a rejected envelope. Headers that are missing or
// cannot be parsed as well-formed values yield ReasonEnvelopeRequired.
func (v *Verifier) Verify(headers map[string]string, correlationID string, now time.Time) (*AttestedMetering, string) {
	for _, h := range requiredHeaders {
		if headers[h] == "" {
			return nil, ReasonEnvelopeRequired
		}
	}

	tsRaw := headers[HeaderTimestamp]
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return nil, ReasonEnvelopeRequired
	}
	tokensIn, err := strconv.ParseInt(headers[HeaderTokensIn], 10, 64)
	if err != nil {
		return nil, ReasonEnvelopeRequired
	}
	tokensOut, err := strconv.ParseInt(headers[HeaderTokensOut], 10, 64)
	if err != nil {
		return nil, ReasonEnvelopeRequired
	}
	cacheHit, err := strconv.ParseBool(headers[HeaderCacheHit])
	if err != nil {
		return nil, ReasonEnvelopeRequired
	}
	cost, err := strconv.ParseFloat(headers[HeaderCost], 64)
	if err != nil {
		return nil, ReasonEnvelopeRequired
	}
	model := headers[HeaderModel]

	costSixDP := fmt.Sprintf("%.6f", cost)
	payload := CanonicalPayload(tsRaw, correlationID, tokensIn, tokensOut, model, cacheHit, costSixDP)

	expectedSig := v.sign(payload)
	presentedSig, err := base64.RawURLEncoding.DecodeString(headers[HeaderSignature])
	if err != nil || !hmac.Equal(expectedSig, presentedSig) {
		return nil, ReasonEnvelopeInvalid
	}

	envelopeTime := time.Unix(ts, 0)
	skew := now.Sub(envelopeTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.ttl {
		return nil, ReasonEnvelopeExpired
	}

	parsedCost, _ := strconv.ParseFloat(costSixDP, 64)
	return &AttestedMetering{
		TokensIn:   tokensIn,
		TokensOut:  tokensOut,
		Model:      model,
		CacheHit:   cacheHit,
		CostAmount: parsedCost,
	}, ""
}

// Sign computes the base64-url (no padding) HMAC-SHA-256 signature a
// trusted metering signer would attach for the given values. Exposed so
// test fixtures and a reference signer implementation can produce valid
// envelopes without duplicating the MAC logic.
func (v *Verifier) Sign(ts int64, correlationID string, tokensIn, tokensOut int64, model string, cacheHit bool, costAmount float64) string {
	payload := CanonicalPayload(strconv.FormatInt(ts, 10), correlationID, tokensIn, tokensOut, model, cacheHit, fmt.Sprintf("%.6f", costAmount))
	return base64.RawURLEncoding.EncodeToString(v.sign(payload))
}

func (v *Verifier) sign(payload string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// CanonicalPayload builds the exact signing string:
// "{ts}|{correlation_id}|{tokens_in}|{tokens_out}|{model}|{cache_hit}|{cost_amount_6dp}".
func CanonicalPayload(ts string, correlationID string, tokensIn, tokensOut int64, model string, cacheHit bool, costSixDP string) string {
	return fmt.Sprintf("%s|%s|%d|%d|%s|%t|%s", ts, correlationID, tokensIn, tokensOut, model, cacheHit, costSixDP)
}
