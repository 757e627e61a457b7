package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileLog is the production backend: an append-only file of one canonical
// JSON record per line, fsynced before the append is acknowledged. Recovery
// replays from offset zero and stops at the first unparseable line, so a
// crash mid-append never leaves a partial record visible to a later reader.
type FileLog struct {
	path string

	mu      sync.Mutex // single-writer: hash-chaining requires strict order
	records []DenialRecord
}

// OpenFileLog opens (creating if needed) the audit log file at path and
// replays its durable prefix into memory.
func OpenFileLog(path string) (*FileLog, error) {
	l := &FileLog{path: path}
	if err := l.recover(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLog) recover() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: opening %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r DenialRecord
		if err := json.Unmarshal(line, &r); err != nil {
			break
		}
		l.records = append(l.records, r)
	}
	return nil
}

// Append implements Log.
func (l *FileLog) Append(ctx context.Context, r DenialRecord) (DenialRecord, error) {
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

	line, err := json.Marshal(r)
	if err != nil {
		return DenialRecord{}, fmt.Errorf("audit: marshaling record: %w", err)
	}
	line = append(line, '\n')

	if err := l.writeAndSync(line); err != nil {
		return DenialRecord{}, fmt.Errorf("audit: durable append failed: %w", err)
	}

	l.records = append(l.records, r)
	return r, nil
}

func (l *FileLog) writeAndSync(line []byte) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return err
	}
	return f.Sync()
}

// List implements Log.
func (l *FileLog) List(ctx context.Context, filter ListFilter) ([]DenialRecord, error) {
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
func (l *FileLog) Verify(ctx context.Context) (VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return verifyChain(l.records), nil
}

// Export implements Log.
func (l *FileLog) Export(ctx context.Context) (Bundle, error) {
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
