// Package audit implements the Audit Log and Verifier: a
// single-writer-per-shard, hash-chained, append-only log of policy
// denials, in the style of a generic append/computeEntryHash/verifyChain
// store but re-keyed to the gateway's DenialRecord shape instead of a
// generic AuditEntry.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/canonicalize"
)

// Stage is the closed set of gate-chain stages a denial can originate from.
type Stage string

const (
	StageApproval Stage = "approval"
	StageTrial    Stage = "trial"
	StageBudget   Stage = "budget"
	StageMetering Stage = "metering"
	StageOther    Stage = "other"
)

// DenialRecord is one hash-chained audit entry.
type DenialRecord struct {
	DecisionID    string         `json:"decision_id"`
	CorrelationID string         `json:"correlation_id"`
	CallerID      string         `json:"caller_id"`
	CustomerID    string         `json:"customer_id"`
	AgentID       string         `json:"agent_id"`
	Stage         Stage          `json:"stage"`
	Action        string         `json:"action"`
	ReasonCode    string         `json:"reason_code"`
	Details       map[string]any `json:"details,omitempty"`
	Path          string         `json:"path,omitempty"`
	TimestampUTC  time.Time      `json:"timestamp_utc"`

	// Sequence is the record's position in the shard; the first record is
	// 0 and chains from genesisHash.
	Sequence int    `json:"sequence"`
	PrevHash string `json:"prev_hash"`
	SelfHash string `json:"self_hash"`
}

// body returns the part of the record that participates in self_hash —
// everything except the hashes themselves, so the hash cannot be
// self-referential.
func (r DenialRecord) body() any {
	return struct {
		DecisionID    string         `json:"decision_id"`
		CorrelationID string         `json:"correlation_id"`
		CallerID      string         `json:"caller_id"`
		CustomerID    string         `json:"customer_id"`
		AgentID       string         `json:"agent_id"`
		Stage         Stage          `json:"stage"`
		Action        string         `json:"action"`
		ReasonCode    string         `json:"reason_code"`
		Details       map[string]any `json:"details,omitempty"`
		Path          string         `json:"path,omitempty"`
		TimestampUTC  time.Time      `json:"timestamp_utc"`
		Sequence      int            `json:"sequence"`
		PrevHash      string         `json:"prev_hash"`
	}{
		r.DecisionID, r.CorrelationID, r.CallerID, r.CustomerID, r.AgentID,
		r.Stage, r.Action, r.ReasonCode, r.Details, r.Path, r.TimestampUTC,
		r.Sequence, r.PrevHash,
	}
}

// computeSelfHash returns H(prev_hash || canonical(body)).
func computeSelfHash(r DenialRecord) (string, error) {
	canon, err := canonicalize.JCS(r.body())
	if err != nil {
		return "", fmt.Errorf("audit: canonicalizing record: %w", err)
	}
	return canonicalize.HashBytes(append([]byte(r.PrevHash), canon...)), nil
}

const genesisHash = "sha256:genesis"

// ListFilter selects a subset of records for List.
type ListFilter struct {
	CorrelationID string
	CallerID      string
	AgentID       string
	Since, Until  time.Time
	Limit         int
}

// VerifyResult is the outcome of a chain-integrity walk.
type VerifyResult struct {
	OK            bool `json:"ok"`
	FirstBadIndex *int `json:"first_bad_index,omitempty"`
}

// Bundle is a self-contained, independently verifiable export of a range
// of the chain.
type Bundle struct {
	Records     []DenialRecord `json:"records"`
	GenesisHash string         `json:"genesis_hash"`
	HeadHash    string         `json:"head_hash"`
	RecordCount int            `json:"record_count"`
}

// Log is the Audit Log's operation surface.
type Log interface {
	// Append computes prev_hash/self_hash against the shard's current
	// head and durably persists the record before returning.
	Append(ctx context.Context, r DenialRecord) (DenialRecord, error)

	// List returns records matching filter, oldest first.
	List(ctx context.Context, filter ListFilter) ([]DenialRecord, error)

	// Verify walks [0, len) recomputing hashes; returns the earliest
	// mismatch, if any. Read-only and idempotent.
	Verify(ctx context.Context) (VerifyResult, error)

	// Export returns a detached, independently verifiable bundle of the
	// full shard.
	Export(ctx context.Context) (Bundle, error)
}

func matchesFilter(r DenialRecord, f ListFilter) bool {
	if f.CorrelationID != "" && f.CorrelationID != r.CorrelationID {
		return false
	}
	if f.CallerID != "" && f.CallerID != r.CallerID {
		return false
	}
	if f.AgentID != "" && f.AgentID != r.AgentID {
		return false
	}
	if !f.Since.IsZero() && r.TimestampUTC.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.TimestampUTC.Before(f.Until) {
		return false
	}
	return true
}

// verifyChain recomputes hashes over records in order and reports the
// first mismatch.
func verifyChain(records []DenialRecord) VerifyResult {
	prevHash := genesisHash
	for i, r := range records {
		if r.PrevHash != prevHash {
			idx := i
			return VerifyResult{OK: false, FirstBadIndex: &idx}
		}
		want, err := computeSelfHash(r)
		if err != nil || want != r.SelfHash {
			idx := i
			return VerifyResult{OK: false, FirstBadIndex: &idx}
		}
		prevHash = r.SelfHash
	}
	return VerifyResult{OK: true}
}

// VerifyBundle runs the same recomputation as Log.Verify against a
// detached bundle, so an auditor can check it without store access.
func VerifyBundle(b Bundle) VerifyResult {
	result := verifyChain(b.Records)
	if !result.OK {
		return result
	}
	head := genesisHash
	if len(b.Records) > 0 {
		head = b.Records[len(b.Records)-1].SelfHash
	}
	if head != b.HeadHash || len(b.Records) != b.RecordCount {
		idx := 0
		return VerifyResult{OK: false, FirstBadIndex: &idx}
	}
	return VerifyResult{OK: true}
}
