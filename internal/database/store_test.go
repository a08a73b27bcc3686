package database_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pagebot/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func TestStore_Pages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	page, err := s.GetPage(ctx, "P1")
	require.NoError(t, err)
	assert.Nil(t, page, "unknown page is reported as absent")

	require.NoError(t, s.SavePage(ctx, &database.Page{ID: "P1", Name: "Shop", Token: "tok-1"}))
	require.NoError(t, s.SavePage(ctx, &database.Page{ID: "P1", Name: "Shop Renamed", Token: "tok-2"}))

	page, err = s.GetPage(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "Shop Renamed", page.Name)
	assert.Equal(t, "tok-2", page.Token)

	added, err := s.AddPages(ctx, []database.Page{
		{ID: "P1", Name: "Dup", Token: "x"},
		{ID: "P2", Name: "Cafe", Token: "tok-3"},
		{ID: "", Name: "No id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	pages, err := s.ListPages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "Cafe", pages[0].Name)

	require.NoError(t, s.DeletePage(ctx, "P2"))
	pages, err = s.ListPages(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestStore_Templates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.AddTemplate(ctx, database.TemplateComment, "{Thanks|Thank you}!")
	require.NoError(t, err)
	_, err = s.AddTemplate(ctx, database.TemplateComment, "Welcome")
	require.NoError(t, err)
	_, err = s.AddTemplate(ctx, database.TemplateMessage, "Check your inbox")
	require.NoError(t, err)

	_, err = s.AddTemplate(ctx, "bogus", "x")
	require.Error(t, err)
	_, err = s.AddTemplate(ctx, database.TemplateMessage, "")
	require.Error(t, err)

	comments, err := s.ListTemplates(ctx, database.TemplateComment)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "{Thanks|Thank you}!", comments[0].Body)
	assert.Equal(t, "Welcome", comments[1].Body)

	require.NoError(t, s.DeleteTemplate(ctx, first.ID))
	comments, err = s.ListTemplates(ctx, database.TemplateComment)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	messages, err := s.ListTemplates(ctx, database.TemplateMessage)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestStore_Settings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.DefaultSettings(), settings)

	require.NoError(t, s.SetSetting(ctx, database.SettingAutoReplyComments, false))
	require.NoError(t, s.SetSetting(ctx, database.SettingSendPrivateReply, false))
	require.NoError(t, s.SetSetting(ctx, database.SettingSendPrivateReply, true))
	require.ErrorIs(t, s.SetSetting(ctx, "dark_mode", true), database.ErrUnknownSetting)

	settings, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.Settings{AutoReplyComments: false, AutoReplyMessages: true, SendPrivateReply: true}, settings)
}

func TestStore_ProcessedEventsKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	for i := range 8 {
		ok, err := s.RecordProcessedEvent(ctx, fmt.Sprintf("C%d", i), 5)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := s.RecordProcessedEvent(ctx, "C7", 5)
	require.NoError(t, err)
	assert.False(t, ok, "a persisted id is not recorded twice")

	ids, err := s.RecentProcessedEvents(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"C3", "C4", "C5", "C6", "C7"}, ids, "only the newest entries survive trimming")

	ids, err = s.RecentProcessedEvents(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C6", "C7"}, ids)
}

func TestStore_HistoryAppendAndTrim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	for i := range 6 {
		entry := &database.HistoryEntry{
			PageName: "Shop",
			Action:   "public reply",
			Status:   database.StatusSuccess,
			Details:  fmt.Sprintf("reply %d", i),
			TargetID: fmt.Sprintf("C%d", i),
		}
		require.NoError(t, s.AppendHistory(ctx, entry, 4))
		assert.NotZero(t, entry.ID)
	}
	require.NoError(t, s.AppendHistory(ctx, &database.HistoryEntry{
		PageName: "Shop", Action: "private reply", Status: database.StatusFailure, Details: "bad token",
	}, 4))

	entries, err := s.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "private reply", entries[0].Action)
	assert.Equal(t, "reply 3", entries[3].Details)

	count, err := s.CountHistory(ctx, database.StatusSuccess, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, s.ClearHistory(ctx))
	entries, err = s.ListHistory(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendHistory(ctx, &database.HistoryEntry{
				PageName: "Shop", Action: "message reply", Status: database.StatusSuccess, TargetID: fmt.Sprint(i),
			}, 1000))
		}()
	}
	wg.Wait()

	entries, err := s.ListHistory(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestStore_RunSQLMaintenance(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.RunSQLMaintenance(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RunSQLMaintenance(ctx), context.Canceled)
}
