package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is the development backend: process-local, lost on restart.
// The shard is single-writer by construction — one mutex guards the whole
// chain, since hash-chaining requires strict append order.
type MemoryLog struct {
	mu      sync.Mutex
	records []DenialRecord
}

// NewMemoryLog returns an empty in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append implements Log.
func (l *MemoryLog) Append(ctx context.Context, r DenialRecord) (DenialRecord, error) {
	if err := ctx.Err(); err != nil {
		return DenialRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if r.DecisionID == "" {
		r.DecisionID = uuid.NewString()
	}
	if r.TimestampUTC.IsZero() {
		r.TimestampUTC = time.Now().UTC()
	} else {
		r.TimestampUTC = r.TimestampUTC.UTC()
	}
	r.Sequence = len(l.records)
	if r.Sequence == 0 {
		r.PrevHash = genesisHash
	} else {
		r.PrevHash = l.records[r.Sequence-1].SelfHash
	}
	selfHash, err := computeSelfHash(r)
	if err != nil {
		return DenialRecord{}, err
	}
	r.SelfHash = selfHash

	l.records = append(l.records, r)
	return r, nil
}

// List implements Log.
func (l *MemoryLog) List(ctx context.Context, filter ListFilter) ([]DenialRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []DenialRecord
	for _, r := range l.records {
		if matchesFilter(r, filter) {
			out = append(out, r)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Verify implements Log.
func (l *MemoryLog) Verify(ctx context.Context) (VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return verifyChain(l.records), nil
}

// Export implements Log.
func (l *MemoryLog) Export(ctx context.Context) (Bundle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	head := genesisHash
	if len(l.records) > 0 {
		head = l.records[len(l.records)-1].SelfHash
	}
	records := make([]DenialRecord, len(l.records))
	copy(records, l.records)
	return Bundle{
		Records:     records,
		GenesisHash: genesisHash,
		HeadHash:    head,
		RecordCount: len(records),
	}, nil
}
