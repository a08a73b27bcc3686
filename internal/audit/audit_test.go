package audit_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pagebot/internal/audit"
	"github.com/edgard/pagebot/internal/database"
)

func newLog(t *testing.T, retention int) *audit.Log {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return audit.New(database.NewStore(db, nil), retention, nil)
}

func TestLog_RecordAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLog(t, 3)

	for _, status := range []database.HistoryStatus{
		database.StatusSuccess, database.StatusFailure, database.StatusError, database.StatusSuccess,
	} {
		require.NoError(t, l.Record(ctx, database.HistoryEntry{
			PageName: "Shop", Action: audit.ActionPublicReply, Status: status,
		}))
	}

	entries, err := l.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3, "history is trimmed to the retention")
	assert.Equal(t, database.StatusSuccess, entries[0].Status)
	assert.False(t, entries[0].CreatedAt.IsZero())

	count, err := l.SuccessesToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, l.Clear(ctx))
	entries, err = l.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		n        int
		expected string
	}{
		{name: "Short", input: "hello", n: 10, expected: "hello"},
		{name: "Exact", input: "hello", n: 5, expected: "hello"},
		{name: "Long", input: "hello world", n: 5, expected: "hello..."},
		{name: "Multibyte", input: "مرحبا بكم", n: 3, expected: "مرح..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, audit.Truncate(tt.input, tt.n))
		})
	}
}
