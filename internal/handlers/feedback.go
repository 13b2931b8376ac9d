package handlers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"

	"aktis-launcher-jira/internal/interfaces"

	"github.com/araddon/dateparse"
)

// Icon paths resolve relative to the plugin bundle shipped with the
// host launcher.
const (
	IconInfo           = "icons/icon_info.png"
	IconCache          = "icons/icon_cached.png"
	IconProject        = "icons/icon_assignment.png"
	IconBack           = "icons/icon_chevron_left.png"
	IconIssue          = "icons/icon_bug_report.png"
	IconIssueMissing   = "icons/icon_bug_report_missing.png"
	IconText           = "icons/icon_comment.png"
	IconComment        = "icons/icon_forum.png"
	IconCommentMissing = "icons/icon_forum_missing.png"
	IconAttach         = "icons/icon_attach.png"
	IconAttachMissing  = "icons/icon_attach_missing.png"
	IconUser           = "icons/icon_account_circle.png"
	IconUserMissing    = "icons/icon_account_circle_missing.png"
	IconTransition     = "icons/icon_share.png"
	IconAdd            = "icons/icon_add.png"
)

// Item is one selectable row in the host launcher list.
type Item struct {
	UID          string    `json:"uid,omitempty"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle,omitempty"`
	Arg          string    `json:"arg,omitempty"`
	Valid        *bool     `json:"valid,omitempty"`
	Autocomplete string    `json:"autocomplete,omitempty"`
	Icon         *Icon     `json:"icon,omitempty"`
	Mods         *Mods     `json:"mods,omitempty"`
	Text         *ItemText `json:"text,omitempty"`
	QuicklookURL string    `json:"quicklookurl,omitempty"`
}

type Icon struct {
	Path string `json:"path"`
}

type Mods struct {
	Cmd *Mod `json:"cmd,omitempty"`
	Alt *Mod `json:"alt,omitempty"`
}

type Mod struct {
	Subtitle string `json:"subtitle,omitempty"`
	Arg      string `json:"arg,omitempty"`
}

type ItemText struct {
	LargeType string `json:"largetype,omitempty"`
}

func valid(v bool) *bool { return &v }

// Pluralize renders a count title. A negative amount marks a field the
// API refused to return.
func Pluralize(item string, amount int) string {
	switch {
	case amount == 0:
		return fmt.Sprintf("No %ss yet", item)
	case amount == 1:
		return fmt.Sprintf("1 %s", item)
	case amount > 1:
		return fmt.Sprintf("%d %ss", amount, item)
	}
	return fmt.Sprintf("<Unable to retrieve %ss. Field hidden?>", item)
}

// Feedback accumulates launcher list items.
type Feedback struct {
	items []Item
}

func NewFeedback() *Feedback {
	return &Feedback{}
}

// Len reports how many items have been added.
func (f *Feedback) Len() int {
	return len(f.items)
}

// JSON renders the item list on the host launcher wire format.
func (f *Feedback) JSON() ([]byte, error) {
	items := f.items
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(map[string][]Item{"items": items})
}

// AddInfo adds an informational, non-actionable message.
func (f *Feedback) AddInfo(message string) {
	f.items = append(f.items, Item{Title: message, Valid: valid(false)})
}

// AddWarning adds a warning message.
func (f *Feedback) AddWarning(message string) {
	f.items = append(f.items, Item{
		Title: message,
		Valid: valid(false),
		Icon:  &Icon{Path: IconInfo},
	})
}

// AddUpdating notifies that the cache refresh is in flight.
func (f *Feedback) AddUpdating() {
	f.items = append(f.items, Item{
		Title:    "Updating issues in the background",
		Subtitle: "Refresh list",
		Icon:     &Icon{Path: IconCache},
	})
}

// AddProject adds a selectable project.
func (f *Feedback) AddProject(project *interfaces.Project) {
	f.items = append(f.items, Item{
		Title:    fmt.Sprintf("%s: %s", project.Key, project.Name),
		Subtitle: "Set as active project",
		Arg:      project.Key,
		Icon:     &Icon{Path: IconProject},
		Mods: &Mods{
			Cmd: &Mod{Subtitle: "Open project in the browser"},
			Alt: &Mod{Subtitle: "Copy project URL to the clipboard"},
		},
	})
}

// AddActiveProject adds the active-project header row.
func (f *Feedback) AddActiveProject(projectKey string) {
	f.items = append(f.items, Item{
		Title:    fmt.Sprintf("%s is the active project", projectKey),
		Subtitle: "Change project",
		Arg:      projectKey,
		Icon:     &Icon{Path: IconBack},
		Mods: &Mods{
			Cmd: &Mod{Subtitle: "Open active project in the browser"},
			Alt: &Mod{Subtitle: "Copy active project URL to the clipboard"},
		},
	})
}

// AddIssue adds a selectable issue.
func (f *Feedback) AddIssue(issue *interfaces.Issue) {
	icon := IconIssue
	if issue.Resolved {
		icon = IconIssueMissing
	}

	item := Item{
		Title:    fmt.Sprintf("%s: %s", issue.Key, issue.Summary),
		Subtitle: "Work on this issue",
		Arg:      issue.Key,
		Icon:     &Icon{Path: icon},
		Mods: &Mods{
			Cmd: &Mod{Subtitle: "Open issue in the browser"},
			Alt: &Mod{Subtitle: "Copy issue URL to the clipboard"},
		},
	}
	if issue.Description != "" {
		item.Text = &ItemText{LargeType: issue.Description}
	}
	f.items = append(f.items, item)
}

// AddClipboard previews the clipboard buffer used as the new issue
// description.
func (f *Feedback) AddClipboard(data string) {
	f.items = append(f.items, Item{
		Title:    fmt.Sprintf("Clipboard has %d characters", len([]rune(data))),
		Subtitle: "⌘+L to preview",
		Valid:    valid(false),
		Text:     &ItemText{LargeType: data},
	})
}

// AddNew adds a create-issue row for one issue type.
func (f *Feedback) AddNew(projectKey string, issueType *interfaces.IssueType, summary string) {
	subtitle := summary
	if subtitle == "" {
		subtitle = "(start typing)"
	}

	f.items = append(f.items, Item{
		Title:    fmt.Sprintf("Create a %s for project %s with summary", issueType.Name, projectKey),
		Subtitle: subtitle,
		Arg:      fmt.Sprintf("%s:%s", issueType.ID, summary),
		Icon:     &Icon{Path: IconAdd},
		Valid:    valid(summary != ""),
	})
}

// AddCurrentIssue adds the issue-view header row.
func (f *Feedback) AddCurrentIssue(issue *interfaces.IssueDetail, projectKey string) {
	f.items = append(f.items, Item{
		Title: fmt.Sprintf("Working on %s | %s | %s | Priority: %s",
			issue.Key, issue.Type, issue.Status, issue.Priority),
		Subtitle: "Return to the project",
		Arg:      projectKey,
		Icon:     &Icon{Path: IconBack},
		Mods: &Mods{
			Cmd: &Mod{Arg: issue.Key, Subtitle: "Open issue in the browser"},
			Alt: &Mod{Arg: issue.Key, Subtitle: "Copy issue URL to the clipboard"},
		},
	})
}

// AddSummary adds the summary field row.
func (f *Feedback) AddSummary(issue *interfaces.IssueDetail, editable bool) {
	item := Item{
		Title:    issue.Summary,
		Subtitle: "Edit issue summary",
		Icon:     &Icon{Path: IconText},
		Valid:    valid(editable),
	}
	if editable {
		item.Autocomplete = fmt.Sprintf("%s summary=", issue.Key)
	}
	if issue.Description != "" {
		item.Subtitle = "Edit issue summary (⌘+L for description)"
		item.Text = &ItemText{LargeType: issue.Description}
	}
	f.items = append(f.items, item)
}

// AddCommentsEditable adds the comment count with the add-comment action.
func (f *Feedback) AddCommentsEditable(issue *interfaces.IssueDetail) {
	subtitle := "Add a comment"
	icon := IconCommentMissing
	if issue.Comments > 0 {
		subtitle = "Add and show comments"
		icon = IconComment
	}

	f.items = append(f.items, Item{
		Title:        Pluralize("comment", issue.Comments),
		Subtitle:     subtitle,
		Icon:         &Icon{Path: icon},
		Autocomplete: fmt.Sprintf("%s comment=", issue.Key),
	})
}

// AddComments adds the comment count without any action.
func (f *Feedback) AddComments(issue *interfaces.IssueDetail) {
	icon := IconCommentMissing
	if issue.Comments > 0 {
		icon = IconComment
	}

	f.items = append(f.items, Item{
		Title: Pluralize("comment", issue.Comments),
		Icon:  &Icon{Path: icon},
		Valid: valid(false),
	})
}

// AddNewComment adds the pending-comment prompt row.
func (f *Feedback) AddNewComment(issueKey, value string) {
	subtitle := value
	if subtitle == "" {
		subtitle = "(start typing)"
	}

	f.items = append(f.items, Item{
		Title:    fmt.Sprintf("Add comment to %s", issueKey),
		Subtitle: subtitle,
		Arg:      fmt.Sprintf("%s comment=%s", issueKey, value),
		Icon:     &Icon{Path: IconComment},
		Valid:    valid(value != ""),
	})
}

// AddComment adds one existing comment.
func (f *Feedback) AddComment(issueKey string, comment *interfaces.Comment) {
	f.items = append(f.items, Item{
		Title:        comment.Body,
		Subtitle:     fmt.Sprintf("Reply to %s", comment.DisplayName),
		Icon:         &Icon{Path: IconComment},
		Autocomplete: fmt.Sprintf("%s comment=@%s ", issueKey, comment.Name),
		Text:         &ItemText{LargeType: comment.Body},
	})
}

// AddAttachmentsEditable adds the attachment count with the add action.
func (f *Feedback) AddAttachmentsEditable(issue *interfaces.IssueDetail) {
	icon := IconAttachMissing
	if issue.Attachments > 0 {
		icon = IconAttach
	}

	f.items = append(f.items, Item{
		Title:        Pluralize("attachment", issue.Attachments),
		Subtitle:     "Add a file from your desktop",
		Icon:         &Icon{Path: icon},
		Autocomplete: fmt.Sprintf("%s attachment=", issue.Key),
	})
}

// AddAttachments adds the attachment count without any action.
func (f *Feedback) AddAttachments(issue *interfaces.IssueDetail) {
	icon := IconAttachMissing
	if issue.Attachments > 0 {
		icon = IconAttach
	}

	f.items = append(f.items, Item{
		Title: Pluralize("attachment", issue.Attachments),
		Icon:  &Icon{Path: icon},
		Valid: valid(false),
	})
}

// AddFile adds a desktop file candidate for attachment.
func (f *Feedback) AddFile(issueKey, name, filePath string) {
	quicklook := (&url.URL{Scheme: "file", Path: filepath.ToSlash(filePath)}).String()

	f.items = append(f.items, Item{
		Title:        name,
		Subtitle:     "Attach file",
		Arg:          fmt.Sprintf("%s attachment=%s", issueKey, filePath),
		Icon:         &Icon{Path: IconAttach},
		QuicklookURL: quicklook,
	})
}

// AddFieldEdit adds the generic field-change prompt row.
func (f *Feedback) AddFieldEdit(issueKey, field, value string) {
	subtitle := value
	if subtitle == "" {
		subtitle = "(unchanged)"
	}

	f.items = append(f.items, Item{
		Title:    fmt.Sprintf("Change %s %s to", issueKey, field),
		Subtitle: subtitle,
		Arg:      fmt.Sprintf("%s %s=%s", issueKey, field, value),
		Icon:     &Icon{Path: IconText},
		Valid:    valid(value != ""),
	})
}

// AddAssignableUser adds one assignee candidate.
func (f *Feedback) AddAssignableUser(user *interfaces.User, issueKey string) {
	f.items = append(f.items, Item{
		UID:      user.Name,
		Title:    user.DisplayName,
		Subtitle: "Assign issue to this person",
		Arg:      fmt.Sprintf("%s assignee=%s", issueKey, user.Name),
		Icon:     &Icon{Path: IconUser},
	})
}

// AddReporter adds the reporter row with the creation timestamp.
func (f *Feedback) AddReporter(issue *interfaces.IssueDetail) {
	title := fmt.Sprintf("Reported by %s", issue.Reporter)
	if created, err := dateparse.ParseAny(issue.Created); err == nil {
		title = fmt.Sprintf("Reported by %s (@ %s)", issue.Reporter, created.Format("02.01.2006 15:04"))
	}

	f.items = append(f.items, Item{
		Title: title,
		Icon:  &Icon{Path: IconUser},
	})
}

// AddAssignee adds the assignee row.
func (f *Feedback) AddAssignee(issue *interfaces.IssueDetail, editable bool) {
	assignee := issue.Assignee
	icon := IconUser
	if assignee == "" {
		assignee = "no one"
		icon = IconUserMissing
	}

	item := Item{
		Title: fmt.Sprintf("Assigned to %s", assignee),
		Icon:  &Icon{Path: icon},
		Valid: valid(editable),
	}
	if editable {
		item.Subtitle = "(Re)assign issue"
		item.Autocomplete = fmt.Sprintf("%s assignee=", issue.Key)
	}
	f.items = append(f.items, item)
}

// AddTransition adds one workflow transition.
func (f *Feedback) AddTransition(issueKey string, transition *interfaces.Transition) {
	f.items = append(f.items, Item{
		Title:    transition.Name,
		Subtitle: "Change issue status",
		Arg:      fmt.Sprintf("%s status=%s", issueKey, transition.ID),
		Icon:     &Icon{Path: IconTransition},
	})
}
