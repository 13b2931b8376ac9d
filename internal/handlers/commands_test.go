package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"aktis-launcher-jira/internal/common"
	"aktis-launcher-jira/internal/interfaces"
	"aktis-launcher-jira/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJira records calls and serves canned responses.
type fakeJira struct {
	projects  []*interfaces.Project
	project   *interfaces.Project
	issues    []*interfaces.Issue
	detail    *interfaces.IssueDetail
	users     []*interfaces.User
	comments  []*interfaces.Comment
	total     int
	searchErr error

	searchQuery    string
	searchCriteria map[string]string
	requestedKeys  []string
	createdType    string
	createdSummary string
	createdDesc    string
	mutations      []string
}

func (f *fakeJira) GetProject(ctx context.Context, projectKey string) (*interfaces.Project, error) {
	return f.project, nil
}

func (f *fakeJira) GetProjects(ctx context.Context) ([]*interfaces.Project, error) {
	return f.projects, nil
}

func (f *fakeJira) Search(ctx context.Context, query string, criteria map[string]string) ([]*interfaces.Issue, error) {
	f.searchQuery = query
	f.searchCriteria = criteria
	return f.issues, nil
}

func (f *fakeJira) SearchPage(ctx context.Context, jql string, startAt, maxResults int) ([]*interfaces.Issue, int, error) {
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return f.issues, f.total, nil
}

func (f *fakeJira) GetTotal(ctx context.Context, projectKey string) (int, error) {
	return f.total, nil
}

func (f *fakeJira) GetIssue(ctx context.Context, issueKey string) (*interfaces.IssueDetail, error) {
	return f.detail, nil
}

func (f *fakeJira) GetIssues(ctx context.Context, issueKeys []string) ([]*interfaces.Issue, error) {
	f.requestedKeys = issueKeys
	return f.issues, nil
}

func (f *fakeJira) CreateIssue(ctx context.Context, projectID, typeID, summary, description string) (string, error) {
	f.createdType = typeID
	f.createdSummary = summary
	f.createdDesc = description
	return "AB-10", nil
}

func (f *fakeJira) GetAssignableUsers(ctx context.Context, issueKey, username string) ([]*interfaces.User, error) {
	return f.users, nil
}

func (f *fakeJira) GetComments(ctx context.Context, issueKey string) ([]*interfaces.Comment, error) {
	return f.comments, nil
}

func (f *fakeJira) AddComment(ctx context.Context, issueKey, body string) error {
	f.mutations = append(f.mutations, "comment:"+issueKey+":"+body)
	return nil
}

func (f *fakeJira) SetStatus(ctx context.Context, issueKey, transitionID string) error {
	f.mutations = append(f.mutations, "status:"+issueKey+":"+transitionID)
	return nil
}

func (f *fakeJira) SetAssignee(ctx context.Context, issueKey, name string) error {
	f.mutations = append(f.mutations, "assignee:"+issueKey+":"+name)
	return nil
}

func (f *fakeJira) AddAttachment(ctx context.Context, issueKey, filePath string) error {
	f.mutations = append(f.mutations, "attachment:"+issueKey+":"+filePath)
	return nil
}

func (f *fakeJira) SetField(ctx context.Context, issueKey, field string, value interface{}) error {
	f.mutations = append(f.mutations, "field:"+issueKey+":"+field)
	return nil
}

type fakeKeychain struct {
	entries map[string]string
}

func (f *fakeKeychain) GetPassword(service, account string) (string, error) {
	return f.entries[service+"/"+account], nil
}

func (f *fakeKeychain) SetPassword(service, account, password string) error {
	if f.entries == nil {
		f.entries = map[string]string{}
	}
	f.entries[service+"/"+account] = password
	return nil
}

func newTestCommands(t *testing.T) (*Commands, *fakeJira, interfaces.Storage) {
	t.Helper()

	config := common.DefaultConfig()
	config.Jira.BaseURL = "https://jira.example.com"
	config.Jira.Username = "tester"
	config.Storage.DatabasePath = filepath.Join(t.TempDir(), "launcher.db")

	store, err := services.NewStorage(&config.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := &fakeJira{}
	cmds := NewCommands(config, &fakeKeychain{}, common.GetLogger())
	cmds.SetClient(client)
	cmds.SetStorage(store)

	return cmds, client, store
}

func itemTitles(items []map[string]interface{}) []string {
	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, item["title"].(string))
	}
	return titles
}

func TestBrowseListsProjectsWhenNoneActive(t *testing.T) {
	cmds, client, store := newTestCommands(t)
	client.projects = []*interfaces.Project{
		{ID: "1", Key: "AB", Name: "Alphabet"},
		{ID: "2", Key: "CD", Name: "Codex"},
	}

	require.NoError(t, cmds.Browse(context.Background(), ""))

	items := cmds.Feedback().itemsForTest(t)
	require.Len(t, items, 3)
	assert.Equal(t, "No active project", items[0]["title"])
	assert.Equal(t, "AB: Alphabet", items[1]["title"])
	assert.Equal(t, "CD: Codex", items[2]["title"])

	// The fetched list lands in the cache for the next keystroke
	cached, err := store.ProjectList()
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestBrowseFiltersProjectsByQuery(t *testing.T) {
	cmds, client, _ := newTestCommands(t)
	client.projects = []*interfaces.Project{
		{ID: "1", Key: "AB", Name: "Alphabet"},
		{ID: "2", Key: "CD", Name: "Codex"},
	}

	require.NoError(t, cmds.Browse(context.Background(), "cod"))

	items := cmds.Feedback().itemsForTest(t)
	require.Len(t, items, 1)
	assert.Equal(t, "CD: Codex", items[0]["title"])
}

func TestBrowseServesCachedIssues(t *testing.T) {
	cmds, _, store := newTestCommands(t)
	require.NoError(t, store.SetActiveProject(&interfaces.Project{ID: "1", Key: "AB", Name: "Alphabet"}))
	require.NoError(t, store.SaveIssues("AB", []*interfaces.Issue{
		{Key: "AB-1", Summary: "Fix the login flow", Type: "Bug", Status: "Open"},
		{Key: "AB-2", Summary: "Add export button", Type: "Task", Status: "Open"},
	}))

	require.NoError(t, cmds.Browse(context.Background(), "export"))

	items := cmds.Feedback().itemsForTest(t)
	require.Len(t, items, 2)
	assert.Equal(t, "AB is the active project", items[0]["title"])
	assert.Equal(t, "AB-2: Add export button", items[1]["title"])
}

func TestMyIssuesSearchCriteria(t *testing.T) {
	cmds, client, _ := newTestCommands(t)
	client.issues = []*interfaces.Issue{
		{Key: "AB-3", Summary: "Investigate timeout", Type: "Bug", Status: "Open"},
	}

	require.NoError(t, cmds.MyIssues(context.Background(), "timeout"))

	assert.Equal(t, "timeout", client.searchQuery)
	assert.Equal(t, map[string]string{
		"assignee":   "currentUser()",
		"resolution": "Unresolved",
	}, client.searchCriteria)

	items := cmds.Feedback().itemsForTest(t)
	require.Len(t, items, 1)
	assert.Equal(t, "AB-3: Investigate timeout", items[0]["title"])
}

func TestRecentKeepsRingOrderAndPrunes(t *testing.T) {
	cmds, client, store := newTestCommands(t)
	require.NoError(t, store.SetRecentKeys([]string{"AB-2", "AB-9", "AB-1"}))

	// AB-9 was deleted on the server; the API also returns key order, not
	// ring order
	client.issues = []*interfaces.Issue{
		{Key: "AB-1", Summary: "First"},
		{Key: "AB-2", Summary: "Second"},
	}

	require.NoError(t, cmds.Recent(context.Background(), ""))

	items := cmds.Feedback().itemsForTest(t)
	assert.Equal(t, []string{"AB-2: Second", "AB-1: First"}, itemTitles(items))

	keys, err := store.RecentKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"AB-2", "AB-1"}, keys)
}

func TestRecentEmpty(t *testing.T) {
	cmds, client, _ := newTestCommands(t)

	require.NoError(t, cmds.Recent(context.Background(), ""))

	assert.Nil(t, client.requestedKeys)
	items := cmds.Feedback().itemsForTest(t)
	require.Len(t, items, 1)
	assert.Equal(t, "No recent issues", items[0]["title"])
}

func TestShowIssuePushesRecentRing(t *testing.T) {
	cmds, client, store := newTestCommands(t)
	require.NoError(t, store.SetActiveProject(&interfaces.Project{ID: "1", Key: "AB", Name: "Alphabet"}))
	require.NoError(t, store.SetRecentKeys([]string{"AB-1"}))

	client.detail = &interfaces.IssueDetail{
		Issue:      interfaces.Issue{Key: "AB-5", Summary: "Broken link", Type: "Bug", Status: "Open"},
		ProjectKey: "AB",
		Reporter:   "Alice",
		Created:    "2024-03-05T14:30:00.000+0000",
		Operations: []string{"edit-issue", "comment-issue"},
		Transitions: []*interfaces.Transition{
			{ID: "21", Name: "Start Progress"},
		},
	}

	require.NoError(t, cmds.ShowIssue(context.Background(), "AB-5"))

	keys, err := store.RecentKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"AB-5", "AB-1"}, keys)

	titles := itemTitles(cmds.Feedback().itemsForTest(t))
	assert.Contains(t, titles, "Start Progress")
}

func TestShowIssueMissing(t *testing.T) {
	cmds, _, store := newTestCommands(t)

	require.NoError(t, cmds.ShowIssue(context.Background(), "AB-99"))

	items := cmds.Feedback().itemsForTest(t)
	require.Len(t, items, 1)
	assert.Equal(t, "Issue AB-99 does not exist", items[0]["title"])

	keys, err := store.RecentKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAddRecentCapsRing(t *testing.T) {
	cmds, _, store := newTestCommands(t)
	cmds.config.Cache.RecentSize = 3

	for _, key := range []string{"AB-1", "AB-2", "AB-3", "AB-4", "AB-2"} {
		require.NoError(t, cmds.addRecent(key))
	}

	keys, err := store.RecentKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"AB-2", "AB-4", "AB-3"}, keys)
}

func TestUpdateIssueMessages(t *testing.T) {
	cmds, client, _ := newTestCommands(t)
	ctx := context.Background()

	msg, err := cmds.UpdateIssue(ctx, "AB-5", "comment", "looks good")
	require.NoError(t, err)
	assert.Equal(t, "Comment added to issue AB-5", msg)

	msg, err = cmds.UpdateIssue(ctx, "AB-5", "status", "21")
	require.NoError(t, err)
	assert.Equal(t, "Issue AB-5 status changed to '21'", msg)

	msg, err = cmds.UpdateIssue(ctx, "AB-5", "assignee", "bob")
	require.NoError(t, err)
	assert.Equal(t, "Issue AB-5 assigned to 'bob'", msg)

	msg, err = cmds.UpdateIssue(ctx, "AB-5", "summary", "New title")
	require.NoError(t, err)
	assert.Equal(t, "Issue AB-5 summary changed to 'New title'", msg)

	assert.Equal(t, []string{
		"comment:AB-5:looks good",
		"status:AB-5:21",
		"assignee:AB-5:bob",
		"field:AB-5:summary",
	}, client.mutations)
}

func TestCreateIssueUsesClipboardBuffer(t *testing.T) {
	cmds, client, store := newTestCommands(t)
	require.NoError(t, store.SetActiveProject(&interfaces.Project{ID: "1", Key: "AB", Name: "Alphabet"}))
	require.NoError(t, store.SetClipboard("steps to reproduce"))

	msg, err := cmds.CreateIssue(context.Background(), "3:Fix the thing")
	require.NoError(t, err)
	assert.Equal(t, "Issue AB-10 created", msg)

	assert.Equal(t, "3", client.createdType)
	assert.Equal(t, "Fix the thing", client.createdSummary)
	assert.Equal(t, "steps to reproduce", client.createdDesc)

	// The buffer is one-shot and the new issue lands in the recent ring
	data, err := store.Clipboard()
	require.NoError(t, err)
	assert.Empty(t, data)

	keys, err := store.RecentKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"AB-10"}, keys)
}

func TestCreateIssueWithoutClipboard(t *testing.T) {
	cmds, _, store := newTestCommands(t)
	require.NoError(t, store.SetActiveProject(&interfaces.Project{ID: "1", Key: "AB", Name: "Alphabet"}))

	msg, err := cmds.CreateIssue(context.Background(), "3:Fix the thing")
	require.NoError(t, err)
	assert.Equal(t, "Nothing to create", msg)
}

func TestCreateIssueWithoutActiveProject(t *testing.T) {
	cmds, _, _ := newTestCommands(t)

	msg, err := cmds.CreateIssue(context.Background(), "3:Fix the thing")
	require.NoError(t, err)
	assert.Equal(t, "No active project", msg)
}

func TestCreateIssueRejectsBadArgument(t *testing.T) {
	cmds, _, _ := newTestCommands(t)

	_, err := cmds.CreateIssue(context.Background(), "no separator here")
	assert.Error(t, err)
}

func TestSetProjectTogglesOffWhenReselected(t *testing.T) {
	cmds, client, store := newTestCommands(t)
	require.NoError(t, store.SetActiveProject(&interfaces.Project{ID: "1", Key: "AB", Name: "Alphabet"}))

	require.NoError(t, cmds.SetProject(context.Background(), "AB"))

	active, err := store.ActiveProject()
	require.NoError(t, err)
	assert.Nil(t, active)

	// Switching to a different project fetches and stores it
	client.project = &interfaces.Project{ID: "2", Key: "CD", Name: "Codex"}
	require.NoError(t, cmds.SetProject(context.Background(), "CD"))

	active, err = store.ActiveProject()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "CD", active.Key)
}

func TestEditIssueAssigneePrompt(t *testing.T) {
	cmds, client, _ := newTestCommands(t)
	client.users = []*interfaces.User{
		{Name: "bob", DisplayName: "Bob Builder"},
	}

	require.NoError(t, cmds.EditIssue(context.Background(), "AB-5", "assignee", "bo"))

	items := cmds.Feedback().itemsForTest(t)
	require.Len(t, items, 1)
	assert.Equal(t, "Bob Builder", items[0]["title"])
	assert.Equal(t, "AB-5 assignee=bob", items[0]["arg"])
}

func TestEditIssueCommentPrompt(t *testing.T) {
	cmds, client, _ := newTestCommands(t)
	client.comments = []*interfaces.Comment{
		{Body: "newer", DisplayName: "Alice", Created: "2024-03-06T10:00:00.000+0000"},
		{Body: "older", DisplayName: "Bob", Created: "2024-03-05T10:00:00.000+0000"},
	}

	require.NoError(t, cmds.EditIssue(context.Background(), "AB-5", "comment", "my reply"))

	items := cmds.Feedback().itemsForTest(t)
	require.Len(t, items, 3)
	assert.Equal(t, "Add comment to AB-5", items[0]["title"])
	assert.Equal(t, "my reply", items[0]["subtitle"])
	assert.Equal(t, "newer", items[1]["title"])
	assert.Equal(t, "older", items[2]["title"])
}

func TestRefreshCacheOpensStoreOnlyAfterFetch(t *testing.T) {
	config := common.DefaultConfig()
	config.Jira.BaseURL = "https://jira.example.com"
	config.Jira.Username = "tester"
	config.Storage.DatabasePath = filepath.Join(t.TempDir(), "launcher.db")

	client := &fakeJira{searchErr: errors.New("jira is down")}
	cmds := NewCommands(config, &fakeKeychain{}, common.GetLogger())
	cmds.SetClient(client)
	t.Cleanup(func() { cmds.Close() })

	require.Error(t, cmds.RefreshCache(context.Background(), "AB", 23))

	// A failed fetch must never have taken the database lock
	_, err := os.Stat(config.Storage.DatabasePath)
	assert.True(t, os.IsNotExist(err))
}

func TestRefreshCacheWritesFetchedIssues(t *testing.T) {
	config := common.DefaultConfig()
	config.Jira.BaseURL = "https://jira.example.com"
	config.Jira.Username = "tester"
	config.Storage.DatabasePath = filepath.Join(t.TempDir(), "launcher.db")

	// A browse invocation can hold the store while pages download; the
	// refresher only needs the lock for the final write, after this
	// handle is gone.
	reader, err := services.NewStorage(&config.Storage)
	require.NoError(t, err)

	client := &fakeJira{
		total: 2,
		issues: []*interfaces.Issue{
			{Key: "AB-1", Summary: "First"},
			{Key: "AB-2", Summary: "Second"},
		},
	}
	cmds := NewCommands(config, &fakeKeychain{}, common.GetLogger())
	cmds.SetClient(client)

	require.NoError(t, reader.Close())
	require.NoError(t, cmds.RefreshCache(context.Background(), "AB", 2))
	require.NoError(t, cmds.Close())

	store, err := services.NewStorage(&config.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	issues, err := store.LoadIssues("AB")
	require.NoError(t, err)
	assert.Len(t, issues, 2)

	age, err := store.CacheAge("AB")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, age, int64(0))

	// The pidfile is gone once the refresh returns
	_, err = os.Stat(filepath.Join(filepath.Dir(config.Storage.DatabasePath), "update.pid"))
	assert.True(t, os.IsNotExist(err))
}
