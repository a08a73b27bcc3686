package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	calls int
	err   error
}

func (f *fakeStore) RunSQLMaintenance(context.Context) error {
	f.calls++
	return f.err
}

type fakeHistory struct {
	count int
	err   error
}

func (f fakeHistory) SuccessesToday(context.Context) (int, error) { return f.count, f.err }

func deps(store *fakeStore, history fakeHistory) TaskDeps {
	return TaskDeps{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:   store,
		History: history,
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()
	registered := RegisterAllTasks(deps(&fakeStore{}, fakeHistory{}))
	assert.Contains(t, registered, "sql_maintenance")
	assert.Contains(t, registered, "daily_summary")
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	task := RegisterAllTasks(deps(store, fakeHistory{}))["sql_maintenance"]

	require.NoError(t, task(context.Background()))
	assert.Equal(t, 1, store.calls)

	store.err = errors.New("database is locked")
	err := task(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.err)
}

func TestSQLMaintenanceTask_MeasuresDatabaseFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pagebot.db")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o600))

	store := &fakeStore{}
	d := deps(store, fakeHistory{})
	d.DatabasePath = path

	require.NoError(t, newSQLMaintenanceTask(d)(context.Background()))
	assert.Equal(t, 1, store.calls)
	assert.EqualValues(t, 4096, fileSize(path))
	assert.Zero(t, fileSize(filepath.Join(t.TempDir(), "missing.db")))
	assert.Zero(t, fileSize(""))
}

func TestDailySummaryTask(t *testing.T) {
	t.Parallel()
	ok := RegisterAllTasks(deps(&fakeStore{}, fakeHistory{count: 4}))["daily_summary"]
	require.NoError(t, ok(context.Background()))

	failing := RegisterAllTasks(deps(&fakeStore{}, fakeHistory{err: errors.New("boom")}))["daily_summary"]
	require.Error(t, failing(context.Background()))
}
