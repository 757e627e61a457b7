package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	require.ErrorIs(t, Event{}.Validate(), ErrEmptyCustomerID)
	require.ErrorIs(t, Event{CustomerID: "c1", TokensIn: -1}.Validate(), ErrNegativeTokens)
	require.NoError(t, Event{CustomerID: "c1", TokensIn: 1, TokensOut: 1}.Validate())
}

func TestDayWindow(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 3, 15, 13, 45, 0, 0, time.UTC)
	start, end := DayWindow(ts)
	require.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), end)
}

func TestMonthWindow(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	start, end := MonthWindow(ts)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestMemoryLedgerAppendAndQuery(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	id, err := l.Append(ctx, Event{CustomerID: "cust-1", EventType: EventSkillExecution, TokensIn: 10, TokensOut: 5, CostAmount: 1.0})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = l.Append(ctx, Event{CustomerID: "cust-2", EventType: EventSkillExecution, CostAmount: 2.0})
	require.NoError(t, err)

	events, err := l.Query(ctx, Filter{CustomerID: "cust-1"}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "cust-1", events[0].CustomerID)
}

func TestMemoryLedgerAppendRejectsInvalidEvent(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Append(context.Background(), Event{})
	require.ErrorIs(t, err, ErrEmptyCustomerID)
}

func TestMemoryLedgerAggregate(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	day1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	_, err := l.Append(ctx, Event{CustomerID: "cust-1", TokensIn: 10, CostAmount: 1, TimestampUTC: day1})
	require.NoError(t, err)
	_, err = l.Append(ctx, Event{CustomerID: "cust-1", TokensIn: 20, CostAmount: 2, TimestampUTC: day1})
	require.NoError(t, err)
	_, err = l.Append(ctx, Event{CustomerID: "cust-1", TokensIn: 5, CostAmount: 3, TimestampUTC: day2})
	require.NoError(t, err)

	rows, err := l.Aggregate(ctx, Filter{CustomerID: "cust-1"}, BucketDay)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(30), rows[0].TokensIn)
	require.Equal(t, 3.0, rows[0].CostAmount)
	require.Equal(t, int64(2), rows[0].Count)
}

func TestMemoryLedgerQueryLimit(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, Event{CustomerID: "cust-1", CostAmount: 1})
		require.NoError(t, err)
	}
	events, err := l.Query(ctx, Filter{CustomerID: "cust-1"}, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
}
