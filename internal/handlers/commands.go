package handlers

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"aktis-launcher-jira/internal/common"
	"aktis-launcher-jira/internal/interfaces"
	"aktis-launcher-jira/internal/services"

	"github.com/samber/lo"
	"github.com/ternarybob/arbor"
)

// Commands dispatches the host launcher commands and fills a Feedback
// with the resulting items.
type Commands struct {
	config   *common.Config
	keychain interfaces.Keychain
	logger   arbor.ILogger
	fb       *Feedback

	client  interfaces.JiraClient
	storage interfaces.Storage
}

// NewCommands creates the command dispatcher.
func NewCommands(config *common.Config, keychain interfaces.Keychain, logger arbor.ILogger) *Commands {
	return &Commands{
		config:   config,
		keychain: keychain,
		logger:   logger,
		fb:       NewFeedback(),
	}
}

// Feedback returns the accumulated launcher items.
func (c *Commands) Feedback() *Feedback {
	return c.fb
}

// SetClient injects a Jira client, bypassing the keychain lookup.
func (c *Commands) SetClient(client interfaces.JiraClient) {
	c.client = client
}

// SetStorage injects an already-open store, bypassing the lazy open.
func (c *Commands) SetStorage(storage interfaces.Storage) {
	c.storage = storage
}

// Close releases the store if a command opened it.
func (c *Commands) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}

// jira returns the REST client, resolving the password from the OS
// keychain on first use so credential errors surface only on commands
// that actually talk to Jira.
func (c *Commands) jira() (interfaces.JiraClient, error) {
	if c.client != nil {
		return c.client, nil
	}

	password, err := services.ResolvePassword(c.keychain, c.config.Jira.Username)
	if err != nil {
		return nil, err
	}

	c.client = services.NewJiraClient(&c.config.Jira, password)
	return c.client, nil
}

// store opens the database on first use. bbolt holds an exclusive file
// lock per open handle, so commands must not touch the store before
// they need it and the background refresher must not open it at all
// while its network fetch runs.
func (c *Commands) store() (interfaces.Storage, error) {
	if c.storage != nil {
		return c.storage, nil
	}

	storage, err := services.NewStorage(&c.config.Storage)
	if err != nil {
		return nil, err
	}

	c.storage = storage
	return c.storage, nil
}

func keyForProject(project *interfaces.Project) string {
	return project.Key + " " + project.Name
}

func keyForIssue(issue *interfaces.Issue) string {
	return issue.Key + " " + issue.Summary
}

func keyForUser(user *interfaces.User) string {
	return user.Name + " " + user.DisplayName
}

// Browse handles the default command: project selection when no project
// is active, cached issue browsing otherwise.
func (c *Commands) Browse(ctx context.Context, query string) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	active, err := store.ActiveProject()
	if err != nil {
		return err
	}

	if active == nil {
		return c.searchProjects(ctx, query)
	}

	return c.browseIssues(ctx, query, active.Key)
}

func (c *Commands) searchProjects(ctx context.Context, query string) error {
	projects, err := c.cachedProjects(ctx)
	if err != nil {
		return err
	}

	if query != "" {
		projects = Filter(query, projects, keyForProject)
	} else {
		c.fb.AddInfo("No active project")
	}

	if len(projects) == 0 {
		c.fb.AddWarning("No matching projects found")
		return nil
	}

	for _, project := range projects {
		c.fb.AddProject(project)
	}
	return nil
}

func (c *Commands) cachedProjects(ctx context.Context) ([]*interfaces.Project, error) {
	store, err := c.store()
	if err != nil {
		return nil, err
	}

	age, err := store.ProjectListAge()
	if err != nil {
		return nil, err
	}

	if age >= 0 && age < int64(c.config.Cache.MaxAge) {
		return store.ProjectList()
	}

	client, err := c.jira()
	if err != nil {
		return nil, err
	}

	projects, err := client.GetProjects(ctx)
	if err != nil {
		// A stale list beats an error item when Jira is unreachable
		if cached, cacheErr := store.ProjectList(); cacheErr == nil && len(cached) > 0 {
			c.logger.Warn().Err(err).Msg("Project refresh failed, serving stale list")
			return cached, nil
		}
		return nil, err
	}

	if err := store.SaveProjectList(projects); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache project list")
	}

	return projects, nil
}

func (c *Commands) browseIssues(ctx context.Context, query, projectKey string) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	age, err := store.CacheAge(projectKey)
	if err != nil {
		return err
	}
	isCached := age >= 0

	// Kick off a background refresh when the cache is stale or missing
	if age < 0 || age >= int64(c.config.Cache.MaxAge) {
		client, err := c.jira()
		if err != nil {
			return err
		}
		total, err := client.GetTotal(ctx, projectKey)
		if err != nil {
			return err
		}
		if err := services.StartBackgroundRefresh(c.config, projectKey, total); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to start background refresh")
		}
	}

	if services.IsRefreshRunning(&c.config.Storage) {
		c.fb.AddUpdating()
	} else if isCached {
		c.fb.AddActiveProject(projectKey)
	}

	issues, err := store.LoadIssues(projectKey)
	if err != nil {
		return err
	}

	if query != "" {
		issues = Filter(query, issues, keyForIssue)
	}

	if len(issues) == 0 {
		if isCached {
			c.fb.AddWarning(fmt.Sprintf("No issues found in project %s", projectKey))
		}
		return nil
	}

	for _, issue := range issues {
		c.fb.AddIssue(issue)
	}
	return nil
}

// MyIssues lists unresolved issues assigned to the current user.
func (c *Commands) MyIssues(ctx context.Context, query string) error {
	client, err := c.jira()
	if err != nil {
		return err
	}

	issues, err := client.Search(ctx, query, map[string]string{
		"assignee":   "currentUser()",
		"resolution": "Unresolved",
	})
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		c.fb.AddWarning("No matching issues assigned to you")
		return nil
	}

	for _, issue := range issues {
		c.fb.AddIssue(issue)
	}
	return nil
}

// Recent lists the issues from the recently-touched ring.
func (c *Commands) Recent(ctx context.Context, query string) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	recentKeys, err := store.RecentKeys()
	if err != nil {
		return err
	}

	var recent []*interfaces.Issue
	if len(recentKeys) > 0 {
		client, err := c.jira()
		if err != nil {
			return err
		}
		recent, err = client.GetIssues(ctx, recentKeys)
		if err != nil {
			return err
		}
	}

	// Keep ring order, not API order
	issues := lo.Map(recentKeys, func(key string, _ int) *interfaces.Issue {
		issue, _ := lo.Find(recent, func(issue *interfaces.Issue) bool { return issue.Key == key })
		return issue
	})
	issues = lo.Compact(issues)

	// Prune keys that no longer resolve to issues
	if len(recentKeys) != len(issues) {
		validKeys := lo.Map(issues, func(issue *interfaces.Issue, _ int) string { return issue.Key })
		if err := store.SetRecentKeys(validKeys); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to prune recent issues")
		}
	}

	if query != "" && len(issues) > 0 {
		issues = Filter(query, issues, keyForIssue)
	}

	if len(issues) == 0 {
		c.fb.AddWarning("No recent issues")
		return nil
	}

	for _, issue := range issues {
		c.fb.AddIssue(issue)
	}
	return nil
}

// ShowIssue renders the detail view of a single issue.
func (c *Commands) ShowIssue(ctx context.Context, issueKey string) error {
	client, err := c.jira()
	if err != nil {
		return err
	}

	issue, err := client.GetIssue(ctx, issueKey)
	if err != nil {
		return err
	}
	if issue == nil {
		c.fb.AddWarning(fmt.Sprintf("Issue %s does not exist", issueKey))
		return nil
	}

	if err := c.addRecent(issue.Key); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update recent issues")
	}

	store, err := c.store()
	if err != nil {
		return err
	}

	active, err := store.ActiveProject()
	if err != nil {
		return err
	}
	activeKey := ""
	if active != nil {
		activeKey = active.Key
	}

	// Viewing an issue from another project switches context to it
	if issue.ProjectKey != activeKey {
		if err := c.switchProject(ctx, activeKey, issue.ProjectKey); err != nil {
			return err
		}
	}

	c.fb.AddCurrentIssue(issue, issue.ProjectKey)

	canEdit := issue.CanEdit()
	c.fb.AddSummary(issue, canEdit)

	if issue.CanComment() {
		c.fb.AddCommentsEditable(issue)
	} else {
		c.fb.AddComments(issue)
	}

	if canEdit {
		c.fb.AddAttachmentsEditable(issue)
	} else {
		c.fb.AddAttachments(issue)
	}

	c.fb.AddReporter(issue)
	c.fb.AddAssignee(issue, issue.CanAssign())

	for _, transition := range issue.Transitions {
		c.fb.AddTransition(issue.Key, transition)
	}
	return nil
}

// EditIssue renders the prompt items for an in-progress field edit.
func (c *Commands) EditIssue(ctx context.Context, issueKey, field, value string) error {
	switch field {
	case "assignee":
		client, err := c.jira()
		if err != nil {
			return err
		}
		users, err := client.GetAssignableUsers(ctx, issueKey, value)
		if err != nil {
			return err
		}
		for _, user := range users {
			c.fb.AddAssignableUser(user, issueKey)
		}

	case "comment":
		c.fb.AddNewComment(issueKey, value)

		client, err := c.jira()
		if err != nil {
			return err
		}
		comments, err := client.GetComments(ctx, issueKey)
		if err != nil {
			return err
		}
		if len(comments) == 0 {
			c.fb.AddWarning("No comments yet")
			return nil
		}
		for _, comment := range comments {
			c.fb.AddComment(issueKey, comment)
		}

	case "attachment":
		files, err := desktopFiles(value)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			c.fb.AddWarning("No matching files")
			return nil
		}
		for _, file := range files {
			c.fb.AddFile(issueKey, file.name, file.path)
		}

	default:
		c.fb.AddFieldEdit(issueKey, field, value)
	}
	return nil
}

// UpdateIssue performs a mutation and returns the one-line result
// message printed instead of an item list.
func (c *Commands) UpdateIssue(ctx context.Context, issueKey, field, value string) (string, error) {
	client, err := c.jira()
	if err != nil {
		return "", err
	}

	switch field {
	case "comment":
		if err := client.AddComment(ctx, issueKey, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Comment added to issue %s", issueKey), nil

	case "status":
		if err := client.SetStatus(ctx, issueKey, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Issue %s status changed to '%s'", issueKey, value), nil

	case "assignee":
		if err := client.SetAssignee(ctx, issueKey, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Issue %s assigned to '%s'", issueKey, value), nil

	case "attachment":
		if err := client.AddAttachment(ctx, issueKey, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("File '%s' attached to issue %s", value, issueKey), nil

	default:
		if err := client.SetField(ctx, issueKey, field, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Issue %s %s changed to '%s'", issueKey, field, value), nil
	}
}

// NewIssuePrompt shows the create-issue rows, stashing the clipboard as
// the pending description.
func (c *Commands) NewIssuePrompt(summary string) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	active, err := store.ActiveProject()
	if err != nil {
		return err
	}
	if active == nil {
		c.fb.AddWarning("No active project")
		return nil
	}

	data := services.ReadClipboard()
	if err := store.SetClipboard(data); err != nil {
		return err
	}

	c.fb.AddClipboard(data)
	for _, issueType := range active.IssueTypes {
		c.fb.AddNew(active.Key, issueType, summary)
	}
	return nil
}

// CreateIssue creates an issue from a "typeID:summary" argument with
// the cached clipboard as description.
func (c *Commands) CreateIssue(ctx context.Context, arg string) (string, error) {
	typeID, summary, ok := strings.Cut(arg, ":")
	if !ok {
		return "", common.NewValidationError("create_arg", "expected TYPE:summary")
	}

	store, err := c.store()
	if err != nil {
		return "", err
	}

	active, err := store.ActiveProject()
	if err != nil {
		return "", err
	}
	if active == nil {
		return "No active project", nil
	}

	description, err := store.Clipboard()
	if err != nil {
		return "", err
	}
	if description == "" {
		return "Nothing to create", nil
	}

	client, err := c.jira()
	if err != nil {
		return "", err
	}

	key, err := client.CreateIssue(ctx, active.ID, typeID, summary, description)
	if err != nil {
		return "", fmt.Errorf("error creating issue: %w", err)
	}

	if err := c.addRecent(key); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update recent issues")
	}
	if err := store.ClearClipboard(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to clear clipboard buffer")
	}

	return fmt.Sprintf("Issue %s created", key), nil
}

// SetProject changes or resets the active project.
func (c *Commands) SetProject(ctx context.Context, newProject string) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	active, err := store.ActiveProject()
	if err != nil {
		return err
	}
	activeKey := ""
	if active != nil {
		activeKey = active.Key
	}
	return c.switchProject(ctx, activeKey, newProject)
}

func (c *Commands) switchProject(ctx context.Context, oldProject, newProject string) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	// Selecting the active project again clears it
	if newProject == oldProject {
		return store.SetActiveProject(nil)
	}

	if err := store.InvalidateCache(newProject); err != nil {
		return err
	}

	client, err := c.jira()
	if err != nil {
		return err
	}

	project, err := client.GetProject(ctx, newProject)
	if err != nil {
		return err
	}

	return store.SetActiveProject(project)
}

// RefreshCache is the background mode entry: fetch everything, then
// write the cache in one pass, dropping the pidfile on the way out.
// The store opens only after the last page landed because its file
// lock would otherwise starve every launcher invocation for the whole
// network-bound refresh.
func (c *Commands) RefreshCache(ctx context.Context, projectKey string, total int) error {
	if err := services.WritePidFile(&c.config.Storage); err != nil {
		return err
	}
	defer services.RemovePidFile(&c.config.Storage)

	client, err := c.jira()
	if err != nil {
		return err
	}

	updater := services.NewUpdater(c.config, client)
	issues, err := updater.FetchProject(ctx, projectKey, total)
	if err != nil {
		return err
	}

	store, err := c.store()
	if err != nil {
		return err
	}

	if err := store.SaveIssues(projectKey, issues); err != nil {
		return fmt.Errorf("failed to save issue cache for %s: %w", projectKey, err)
	}

	c.logger.Info().
		Str("project", projectKey).
		Int("issues", len(issues)).
		Int("max_age", c.config.Cache.MaxAge).
		Msg("Issue cache refreshed")

	return nil
}

// addRecent pushes a key onto the front of the recent ring.
func (c *Commands) addRecent(issueKey string) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	recent, err := store.RecentKeys()
	if err != nil {
		return err
	}

	recent = lo.Reject(recent, func(key string, _ int) bool { return key == issueKey })
	recent = append([]string{issueKey}, recent...)
	if len(recent) > c.config.Cache.RecentSize {
		recent = recent[:c.config.Cache.RecentSize]
	}

	return store.SetRecentKeys(recent)
}

type desktopFile struct {
	name string
	path string
}

// desktopFiles lists files under ~/Desktop whose name contains the
// query, skipping dotfiles.
func desktopFiles(query string) ([]desktopFile, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	var files []desktopFile
	root := filepath.Join(home, "Desktop")
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped, not fatal
		}
		if entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if strings.Contains(strings.ToLower(name), strings.ToLower(query)) {
			files = append(files, desktopFile{name: name, path: path})
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}
