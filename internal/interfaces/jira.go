package interfaces

import (
	"context"
)

// JiraClient is the REST API v2 surface the launcher consumes.
type JiraClient interface {
	GetProject(ctx context.Context, projectKey string) (*Project, error)
	GetProjects(ctx context.Context) ([]*Project, error)
	Search(ctx context.Context, query string, criteria map[string]string) ([]*Issue, error)
	SearchPage(ctx context.Context, jql string, startAt, maxResults int) ([]*Issue, int, error)
	GetTotal(ctx context.Context, projectKey string) (int, error)
	GetIssue(ctx context.Context, issueKey string) (*IssueDetail, error)
	GetIssues(ctx context.Context, issueKeys []string) ([]*Issue, error)
	CreateIssue(ctx context.Context, projectID, typeID, summary, description string) (string, error)
	GetAssignableUsers(ctx context.Context, issueKey, username string) ([]*User, error)
	GetComments(ctx context.Context, issueKey string) ([]*Comment, error)
	AddComment(ctx context.Context, issueKey, body string) error
	SetStatus(ctx context.Context, issueKey, transitionID string) error
	SetAssignee(ctx context.Context, issueKey, name string) error
	AddAttachment(ctx context.Context, issueKey, filePath string) error
	SetField(ctx context.Context, issueKey, field string, value interface{}) error
}

// Storage is the local bbolt-backed store for cached issues and
// launcher state (recent ring, active project, clipboard buffer).
type Storage interface {
	SaveIssues(projectKey string, issues []*Issue) error
	LoadIssues(projectKey string) ([]*Issue, error)
	CacheAge(projectKey string) (int64, error)
	InvalidateCache(projectKey string) error

	SaveProjectList(projects []*Project) error
	ProjectList() ([]*Project, error)
	ProjectListAge() (int64, error)

	RecentKeys() ([]string, error)
	SetRecentKeys(keys []string) error

	ActiveProject() (*Project, error)
	SetActiveProject(project *Project) error

	Clipboard() (string, error)
	SetClipboard(data string) error
	ClearClipboard() error

	Close() error
}

// Keychain abstracts the OS credential store.
type Keychain interface {
	GetPassword(service, account string) (string, error)
	SetPassword(service, account, password string) error
}

// Issue is the flat list-view projection of a Jira issue.
type Issue struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Resolved    bool   `json:"resolved"`
}

// IssueDetail carries the extra fields the issue view needs.
type IssueDetail struct {
	Issue

	ProjectKey  string        `json:"project"`
	Priority    string        `json:"priority"`
	Created     string        `json:"created"`
	Reporter    string        `json:"reporter"`
	Assignee    string        `json:"assignee"`
	Comments    int           `json:"comments"`
	Attachments int           `json:"attachments"`
	Transitions []*Transition `json:"transitions"`
	// Operations holds the permitted operation link ids
	// (edit-issue, comment-issue, assign-issue, ...).
	Operations []string `json:"operations"`
}

// CanEdit reports whether the edit-issue operation is permitted.
func (d *IssueDetail) CanEdit() bool { return d.hasOperation("edit-issue") }

// CanComment reports whether the comment-issue operation is permitted.
func (d *IssueDetail) CanComment() bool { return d.hasOperation("comment-issue") }

// CanAssign reports whether the assign-issue operation is permitted.
func (d *IssueDetail) CanAssign() bool { return d.hasOperation("assign-issue") }

func (d *IssueDetail) hasOperation(id string) bool {
	for _, op := range d.Operations {
		if op == id {
			return true
		}
	}
	return false
}

// Project is a Jira project with its valid (non-subtask) issue types.
type Project struct {
	ID         string       `json:"id"`
	Key        string       `json:"key"`
	Name       string       `json:"name"`
	IssueTypes []*IssueType `json:"issueTypes,omitempty"`
}

// IssueType is a creatable issue type within a project.
type IssueType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is an assignable Jira user.
type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Comment is a single issue comment.
type Comment struct {
	Body        string `json:"body"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Created     string `json:"created"`
}

// Transition is a workflow transition available on an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
