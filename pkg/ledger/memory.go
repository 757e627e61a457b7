package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is the development backend: best-effort, process-local,
// lost on restart. Appends are single-writer per customer partition via a
// per-customer lock, matching the production file backend's consistency
// contract so gate-chain behaviour does not depend on which backend is wired.
type MemoryLedger struct {
	mu        sync.RWMutex
	partition map[string]*sync.Mutex
	events    []Event
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{partition: make(map[string]*sync.Mutex)}
}

func (l *MemoryLedger) partitionLock(customerID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.partition[customerID]
	if !ok {
		m = &sync.Mutex{}
		l.partition[customerID] = m
	}
	return m
}

// Append implements Ledger.
func (l *MemoryLedger) Append(ctx context.Context, event Event) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pm := l.partitionLock(event.CustomerID)
	pm.Lock()
	defer pm.Unlock()

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.TimestampUTC.IsZero() {
		event.TimestampUTC = time.Now().UTC()
	} else {
		event.TimestampUTC = event.TimestampUTC.UTC()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return event.EventID, nil
}

// Query implements Ledger.
func (l *MemoryLedger) Query(ctx context.Context, filter Filter, limit int) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampUTC.After(out[j].TimestampUTC) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Aggregate implements Ledger.
func (l *MemoryLedger) Aggregate(ctx context.Context, filter Filter, bucket Bucket) ([]AggregateRow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []Event
	for _, e := range l.events {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}
	return aggregateEvents(matched, bucket), nil
}
