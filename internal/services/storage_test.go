package services

import (
	"path/filepath"
	"testing"

	. "aktis-launcher-jira/internal/common"
	. "aktis-launcher-jira/internal/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) Storage {
	t.Helper()

	store, err := NewStorage(&StorageConfig{
		DatabasePath: filepath.Join(t.TempDir(), "launcher.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSaveAndLoadIssues(t *testing.T) {
	store := newTestStorage(t)

	issues := []*Issue{
		{Key: "AB-1", Summary: "First issue", Type: "Bug", Status: "Open"},
		{Key: "AB-2", Summary: "Second issue", Type: "Task", Status: "Done", Resolved: true},
	}
	require.NoError(t, store.SaveIssues("AB", issues))

	loaded, err := store.LoadIssues("AB")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "AB-1", loaded[0].Key)
	assert.Equal(t, "First issue", loaded[0].Summary)
	assert.True(t, loaded[1].Resolved)
}

func TestSaveIssuesReplacesPreviousCache(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.SaveIssues("AB", []*Issue{
		{Key: "AB-1", Summary: "Stays"},
		{Key: "AB-2", Summary: "Goes away"},
	}))
	require.NoError(t, store.SaveIssues("AB", []*Issue{
		{Key: "AB-1", Summary: "Stays"},
	}))

	loaded, err := store.LoadIssues("AB")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "AB-1", loaded[0].Key)
}

func TestIssuesAreScopedByProject(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.SaveIssues("AB", []*Issue{{Key: "AB-1"}}))
	require.NoError(t, store.SaveIssues("CD", []*Issue{{Key: "CD-1"}, {Key: "CD-2"}}))

	loaded, err := store.LoadIssues("AB")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	loaded, err = store.LoadIssues("CD")
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestCacheAge(t *testing.T) {
	store := newTestStorage(t)

	age, err := store.CacheAge("AB")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), age, "uncached project reports -1")

	require.NoError(t, store.SaveIssues("AB", []*Issue{{Key: "AB-1"}}))

	age, err = store.CacheAge("AB")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, age, int64(0))
	assert.Less(t, age, int64(60))
}

func TestInvalidateCache(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.SaveIssues("AB", []*Issue{{Key: "AB-1"}}))
	require.NoError(t, store.InvalidateCache("AB"))

	age, err := store.CacheAge("AB")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), age)

	// Invalidation only drops the stamp, not the issues
	loaded, err := store.LoadIssues("AB")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestProjectListRoundTrip(t *testing.T) {
	store := newTestStorage(t)

	age, err := store.ProjectListAge()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), age)

	projects := []*Project{
		{ID: "1", Key: "AB", Name: "Alphabet"},
		{ID: "2", Key: "CD", Name: "Codex"},
	}
	require.NoError(t, store.SaveProjectList(projects))

	loaded, err := store.ProjectList()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "Alphabet", loaded[0].Name)

	age, err = store.ProjectListAge()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, age, int64(0))
}

func TestRecentKeysRoundTrip(t *testing.T) {
	store := newTestStorage(t)

	keys, err := store.RecentKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, store.SetRecentKeys([]string{"AB-3", "AB-1"}))

	keys, err = store.RecentKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"AB-3", "AB-1"}, keys)
}

func TestActiveProject(t *testing.T) {
	store := newTestStorage(t)

	active, err := store.ActiveProject()
	require.NoError(t, err)
	assert.Nil(t, active)

	project := &Project{
		ID:   "1",
		Key:  "AB",
		Name: "Alphabet",
		IssueTypes: []*IssueType{
			{ID: "3", Name: "Task"},
		},
	}
	require.NoError(t, store.SetActiveProject(project))

	active, err = store.ActiveProject()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "AB", active.Key)
	require.Len(t, active.IssueTypes, 1)
	assert.Equal(t, "Task", active.IssueTypes[0].Name)

	// nil resets the selection
	require.NoError(t, store.SetActiveProject(nil))

	active, err = store.ActiveProject()
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestClipboardBuffer(t *testing.T) {
	store := newTestStorage(t)

	data, err := store.Clipboard()
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, store.SetClipboard("pasted description"))

	data, err = store.Clipboard()
	require.NoError(t, err)
	assert.Equal(t, "pasted description", data)

	require.NoError(t, store.ClearClipboard())

	data, err = store.Clipboard()
	require.NoError(t, err)
	assert.Empty(t, data)
}
