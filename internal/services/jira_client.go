package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	. "aktis-launcher-jira/internal/common"
	. "aktis-launcher-jira/internal/interfaces"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const (
	listFields   = "summary,description,issuetype,status,resolution"
	detailFields = "project,summary,description,issuetype,priority,status," +
		"resolution,created,reporter,assignee,comment,attachment"
)

type jiraClient struct {
	client  *resty.Client
	baseURL string
}

// NewJiraClient creates a Jira REST API v2 client. resty sends the
// Basic Authorization header preemptively, which matters because some
// Jira setups never answer with a 401 challenge.
func NewJiraClient(config *JiraConfig, password string) JiraClient {
	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetBasicAuth(config.Username, password).
		SetTimeout(time.Duration(config.Timeout)*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &jiraClient{
		client:  client,
		baseURL: config.BaseURL,
	}
}

type searchResponse struct {
	StartAt    int           `json:"startAt"`
	MaxResults int           `json:"maxResults"`
	Total      int           `json:"total"`
	Issues     []searchIssue `json:"issues"`
}

type searchIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		IssueType   struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
		Resolution *struct {
			Name string `json:"name"`
		} `json:"resolution"`
	} `json:"fields"`
}

func (si *searchIssue) toIssue() *Issue {
	return &Issue{
		Key:         si.Key,
		Summary:     si.Fields.Summary,
		Description: si.Fields.Description,
		Type:        si.Fields.IssueType.Name,
		Status:      si.Fields.Status.Name,
		Resolved:    si.Fields.Resolution != nil,
	}
}

func (jc *jiraClient) GetProject(ctx context.Context, projectKey string) (*Project, error) {
	resp, err := jc.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/rest/api/2/project/%s", projectKey))

	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", projectKey, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, NewJiraError("project_fetch", fmt.Sprintf("Jira API returned status %d for project %s", resp.StatusCode(), projectKey))
	}

	body := gjson.ParseBytes(resp.Body())

	project := &Project{
		ID:   body.Get("id").String(),
		Key:  body.Get("key").String(),
		Name: body.Get("name").String(),
	}

	// Subtask types cannot be created from the launcher
	body.Get("issueTypes").ForEach(func(_, value gjson.Result) bool {
		if value.Get("subtask").Bool() {
			return true
		}
		project.IssueTypes = append(project.IssueTypes, &IssueType{
			ID:   value.Get("id").String(),
			Name: value.Get("name").String(),
		})
		return true
	})

	return project, nil
}

func (jc *jiraClient) GetProjects(ctx context.Context) ([]*Project, error) {
	var items []struct {
		ID   string `json:"id"`
		Key  string `json:"key"`
		Name string `json:"name"`
	}

	resp, err := jc.client.R().
		SetContext(ctx).
		SetResult(&items).
		Get("/rest/api/2/project")

	if err != nil {
		return nil, fmt.Errorf("failed to get projects: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, NewJiraError("project_list", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	projects := make([]*Project, 0, len(items))
	for _, item := range items {
		projects = append(projects, &Project{ID: item.ID, Key: item.Key, Name: item.Name})
	}

	return projects, nil
}

// BuildJQL constructs a JQL query from a free-text term and field criteria.
func BuildJQL(query string, criteria map[string]string) string {
	var parts []string
	if query != "" {
		parts = append(parts, fmt.Sprintf("text ~ %q", query))
	}

	fields := make([]string, 0, len(criteria))
	for field := range criteria {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s=%s", field, criteria[field]))
	}

	return strings.Join(parts, " AND ")
}

func (jc *jiraClient) Search(ctx context.Context, query string, criteria map[string]string) ([]*Issue, error) {
	var response searchResponse

	resp, err := jc.client.R().
		SetContext(ctx).
		SetQueryParam("jql", BuildJQL(query, criteria)).
		SetQueryParam("fields", listFields).
		SetResult(&response).
		Get("/rest/api/2/search")

	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, NewJiraError("search", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	issues := make([]*Issue, 0, len(response.Issues))
	for i := range response.Issues {
		issues = append(issues, response.Issues[i].toIssue())
	}

	return issues, nil
}

func (jc *jiraClient) SearchPage(ctx context.Context, jql string, startAt, maxResults int) ([]*Issue, int, error) {
	var response searchResponse

	resp, err := jc.client.R().
		SetContext(ctx).
		SetQueryParam("jql", jql).
		SetQueryParam("startAt", strconv.Itoa(startAt)).
		SetQueryParam("maxResults", strconv.Itoa(maxResults)).
		SetQueryParam("fields", listFields).
		SetResult(&response).
		Get("/rest/api/2/search")

	if err != nil {
		return nil, 0, fmt.Errorf("failed to search issues: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, 0, NewJiraError("search", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	issues := make([]*Issue, 0, len(response.Issues))
	for i := range response.Issues {
		issues = append(issues, response.Issues[i].toIssue())
	}

	return issues, response.Total, nil
}

func (jc *jiraClient) GetTotal(ctx context.Context, projectKey string) (int, error) {
	var response searchResponse

	resp, err := jc.client.R().
		SetContext(ctx).
		SetQueryParam("jql", fmt.Sprintf("project=%s", projectKey)).
		SetQueryParam("maxResults", "0").
		SetResult(&response).
		Get("/rest/api/2/search")

	if err != nil {
		return 0, fmt.Errorf("failed to count issues in %s: %w", projectKey, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return 0, NewJiraError("search", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	return response.Total, nil
}

func (jc *jiraClient) GetIssue(ctx context.Context, issueKey string) (*IssueDetail, error) {
	resp, err := jc.client.R().
		SetContext(ctx).
		SetQueryParam("fields", detailFields).
		SetQueryParam("expand", "transitions,operations").
		Get(fmt.Sprintf("/rest/api/2/issue/%s", issueKey))

	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", issueKey, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, NewJiraError("issue_fetch", fmt.Sprintf("Jira API returned status %d for issue %s", resp.StatusCode(), issueKey))
	}

	body := gjson.ParseBytes(resp.Body())
	fields := body.Get("fields")

	detail := &IssueDetail{
		Issue: Issue{
			Key:         body.Get("key").String(),
			Summary:     fields.Get("summary").String(),
			Description: fields.Get("description").String(),
			Type:        fields.Get("issuetype.name").String(),
			Status:      fields.Get("status.name").String(),
			Resolved:    fields.Get("resolution").Type != gjson.Null && fields.Get("resolution").Exists(),
		},
		ProjectKey: fields.Get("project.key").String(),
		Priority:   fields.Get("priority.name").String(),
		Created:    fields.Get("created").String(),
		Reporter:   fields.Get("reporter.displayName").String(),
		Assignee:   fields.Get("assignee.displayName").String(),
		Comments:   int(fields.Get("comment.comments.#").Int()),
	}

	// The attachment field can be hidden by the project screen scheme;
	// -1 marks it as unavailable rather than empty.
	if attachments := fields.Get("attachment"); attachments.Exists() {
		detail.Attachments = int(attachments.Get("#").Int())
	} else {
		detail.Attachments = -1
	}

	body.Get("transitions").ForEach(func(_, value gjson.Result) bool {
		detail.Transitions = append(detail.Transitions, &Transition{
			ID:   value.Get("id").String(),
			Name: value.Get("name").String(),
		})
		return true
	})

	// Permitted operations arrive as nested link groups
	body.Get("operations.linkGroups").ForEach(func(_, linkGroup gjson.Result) bool {
		linkGroup.Get("groups").ForEach(func(_, group gjson.Result) bool {
			group.Get("links").ForEach(func(_, link gjson.Result) bool {
				if id := link.Get("id"); id.Exists() {
					detail.Operations = append(detail.Operations, id.String())
				}
				return true
			})
			return true
		})
		return true
	})

	return detail, nil
}

func (jc *jiraClient) GetIssues(ctx context.Context, issueKeys []string) ([]*Issue, error) {
	return jc.getIssues(ctx, issueKeys, false)
}

func (jc *jiraClient) getIssues(ctx context.Context, issueKeys []string, retrying bool) ([]*Issue, error) {
	if len(issueKeys) == 0 {
		return nil, nil
	}

	var response searchResponse

	resp, err := jc.client.R().
		SetContext(ctx).
		SetQueryParam("jql", fmt.Sprintf("key in (%s)", strings.Join(issueKeys, ","))).
		SetQueryParam("fields", listFields).
		SetResult(&response).
		Get("/rest/api/2/search")

	if err != nil {
		return nil, fmt.Errorf("failed to fetch issues by key: %w", err)
	}

	// A deleted issue turns the whole key-in query into a 400; probe the
	// keys individually and retry once with the survivors.
	if resp.StatusCode() == http.StatusBadRequest && !retrying {
		var validKeys []string
		for _, key := range issueKeys {
			issue, err := jc.GetIssue(ctx, key)
			if err != nil {
				return nil, err
			}
			if issue != nil {
				validKeys = append(validKeys, key)
			}
		}
		return jc.getIssues(ctx, validKeys, true)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, NewJiraError("search", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	issues := make([]*Issue, 0, len(response.Issues))
	for i := range response.Issues {
		issues = append(issues, response.Issues[i].toIssue())
	}

	return issues, nil
}

func (jc *jiraClient) CreateIssue(ctx context.Context, projectID, typeID, summary, description string) (string, error) {
	payload := map[string]interface{}{
		"fields": map[string]interface{}{
			"project":     map[string]string{"id": projectID},
			"issuetype":   map[string]string{"id": typeID},
			"summary":     summary,
			"description": description,
		},
	}

	resp, err := jc.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/rest/api/2/issue")

	if err != nil {
		return "", fmt.Errorf("failed to create issue: %w", err)
	}

	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		return "", NewJiraError("issue_create", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	return gjson.GetBytes(resp.Body(), "key").String(), nil
}

func (jc *jiraClient) GetAssignableUsers(ctx context.Context, issueKey, username string) ([]*User, error) {
	var items []struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	}

	resp, err := jc.client.R().
		SetContext(ctx).
		SetQueryParam("issueKey", issueKey).
		SetQueryParam("username", username).
		SetResult(&items).
		Get("/rest/api/2/user/assignable/search")

	// An empty prompt beats an error item while the user is mid-keystroke
	if err != nil || resp.StatusCode() != http.StatusOK {
		GetLogger().Warn().Str("issue", issueKey).Msg("Assignable user lookup failed")
		return nil, nil
	}

	users := make([]*User, 0, len(items))
	for _, item := range items {
		users = append(users, &User{Name: item.Name, DisplayName: item.DisplayName})
	}

	return users, nil
}

func (jc *jiraClient) GetComments(ctx context.Context, issueKey string) ([]*Comment, error) {
	var response struct {
		Comments []struct {
			Body   string `json:"body"`
			Author struct {
				Name        string `json:"name"`
				DisplayName string `json:"displayName"`
			} `json:"author"`
			Created string `json:"created"`
		} `json:"comments"`
	}

	resp, err := jc.client.R().
		SetContext(ctx).
		SetResult(&response).
		Get(fmt.Sprintf("/rest/api/2/issue/%s/comment", issueKey))

	if err != nil || resp.StatusCode() != http.StatusOK {
		GetLogger().Warn().Str("issue", issueKey).Msg("Comment lookup failed")
		return nil, nil
	}

	comments := make([]*Comment, 0, len(response.Comments))
	for _, item := range response.Comments {
		comments = append(comments, &Comment{
			Body:        item.Body,
			Name:        item.Author.Name,
			DisplayName: item.Author.DisplayName,
			Created:     item.Created,
		})
	}

	// Old API versions ignore orderBy for comments; sort newest first here
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Created > comments[j].Created
	})

	return comments, nil
}

func (jc *jiraClient) AddComment(ctx context.Context, issueKey, body string) error {
	resp, err := jc.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"body": body}).
		Post(fmt.Sprintf("/rest/api/2/issue/%s/comment", issueKey))

	if err != nil {
		return fmt.Errorf("failed to add comment to %s: %w", issueKey, err)
	}

	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		return NewJiraError("comment_add", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	return nil
}

func (jc *jiraClient) SetStatus(ctx context.Context, issueKey, transitionID string) error {
	resp, err := jc.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"transition": map[string]string{"id": transitionID},
		}).
		Post(fmt.Sprintf("/rest/api/2/issue/%s/transitions", issueKey))

	if err != nil {
		return fmt.Errorf("failed to transition %s: %w", issueKey, err)
	}

	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return NewJiraError("transition", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	return nil
}

func (jc *jiraClient) SetAssignee(ctx context.Context, issueKey, name string) error {
	resp, err := jc.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		Put(fmt.Sprintf("/rest/api/2/issue/%s/assignee", issueKey))

	if err != nil {
		return fmt.Errorf("failed to assign %s: %w", issueKey, err)
	}

	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return NewJiraError("assign", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	return nil
}

func (jc *jiraClient) AddAttachment(ctx context.Context, issueKey, filePath string) error {
	resp, err := jc.client.R().
		SetContext(ctx).
		SetHeader("X-Atlassian-Token", "no-check").
		SetFile("file", filePath).
		Post(fmt.Sprintf("/rest/api/2/issue/%s/attachments", issueKey))

	if err != nil {
		return fmt.Errorf("failed to attach %s to %s: %w", filePath, issueKey, err)
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return NewJiraError("attachment", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	return nil
}

func (jc *jiraClient) SetField(ctx context.Context, issueKey, field string, value interface{}) error {
	resp, err := jc.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"fields": map[string]interface{}{field: value},
		}).
		Put(fmt.Sprintf("/rest/api/2/issue/%s", issueKey))

	if err != nil {
		return fmt.Errorf("failed to set %s on %s: %w", field, issueKey, err)
	}

	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return NewJiraError("field_edit", fmt.Sprintf("Jira API returned status %d: %s", resp.StatusCode(), resp.String()))
	}

	return nil
}
