package ui

import (
	"fmt"
	"strings"

	"github.com/edavis10/issuekit/internal/types"
)

// Refs resolves ids to display names. Callers populate the maps from the
// reference tables before rendering.
type Refs struct {
	Statuses   map[int64]*types.Status
	Priorities map[int64]*types.Priority
	Trackers   map[int64]*types.Tracker
	Users      map[int64]string
	Projects   map[int64]*types.Project
	Fields     map[int64]*types.CustomField
}

func (r *Refs) status(id int64) string {
	if s, ok := r.Statuses[id]; ok {
		return s.Name
	}
	return fmt.Sprintf("#%d", id)
}

func (r *Refs) closed(id int64) bool {
	s, ok := r.Statuses[id]
	return ok && s.IsClosed
}

func (r *Refs) priority(id int64) string {
	if p, ok := r.Priorities[id]; ok {
		return p.Name
	}
	return fmt.Sprintf("#%d", id)
}

func (r *Refs) tracker(id int64) string {
	if t, ok := r.Trackers[id]; ok {
		return t.Name
	}
	return fmt.Sprintf("#%d", id)
}

func (r *Refs) user(id int64) string {
	if name, ok := r.Users[id]; ok {
		return name
	}
	return fmt.Sprintf("user-%d", id)
}

// RenderIssue produces the full detail view of one issue.
func RenderIssue(issue *types.Issue, refs *Refs) string {
	var b strings.Builder

	title := fmt.Sprintf("%s #%d: %s", refs.tracker(issue.TrackerID), issue.ID, issue.Subject)
	b.WriteString(Header(title))
	b.WriteString("\n")

	b.WriteString(renderField("Status", statusLabel(issue.StatusID, refs)))
	b.WriteString(renderField("Priority", refs.priority(issue.PriorityID)))
	b.WriteString(renderField("Author", refs.user(issue.AuthorID)))
	if issue.AssignedToID != nil {
		b.WriteString(renderField("Assignee", refs.user(*issue.AssignedToID)))
	}
	if issue.StartDate != nil {
		b.WriteString(renderField("Start", issue.StartDate.String()))
	}
	if issue.DueDate != nil {
		due := issue.DueDate.String()
		if !refs.closed(issue.StatusID) && issue.DueDate.Before(types.Today()) {
			due = styled(OverdueStyle, due+" (overdue)")
		}
		b.WriteString(renderField("Due", due))
	}
	b.WriteString(renderField("Progress", fmt.Sprintf("%d%%", issue.DoneRatio)))
	if issue.EstimatedHours != nil {
		b.WriteString(renderField("Estimate", fmt.Sprintf("%.1fh", *issue.EstimatedHours)))
	}
	if issue.ParentID != nil {
		b.WriteString(renderField("Parent", fmt.Sprintf("#%d", *issue.ParentID)))
	}
	for fieldID, values := range issue.CustomValues {
		if f, ok := refs.Fields[fieldID]; ok && len(values) > 0 {
			b.WriteString(renderField(f.Name, strings.Join(values, ", ")))
		}
	}

	if issue.Description != "" {
		b.WriteString("\n")
		b.WriteString(RenderMarkdown(issue.Description))
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderField(label, value string) string {
	return fmt.Sprintf("%s %s\n", Muted(fmt.Sprintf("%-10s", label+":")), value)
}

func statusLabel(statusID int64, refs *Refs) string {
	name := refs.status(statusID)
	if refs.closed(statusID) {
		return styled(ClosedStyle, name)
	}
	return styled(OpenStyle, name)
}

// RenderList produces one line per issue for tabular listings.
func RenderList(issues []*types.Issue, refs *Refs) string {
	var b strings.Builder
	for _, issue := range issues {
		b.WriteString(listLine(issue, refs, ""))
	}
	return b.String()
}

// RenderTree renders a subtree with box-drawing indentation. Issues must be
// ordered by lft, the natural order of SubtreeIssues.
func RenderTree(issues []*types.Issue, refs *Refs) string {
	if len(issues) == 0 {
		return ""
	}
	depth := map[int64]int{}
	var b strings.Builder
	for _, issue := range issues {
		d := 0
		if issue.ParentID != nil {
			if pd, ok := depth[*issue.ParentID]; ok {
				d = pd + 1
			}
		}
		depth[issue.ID] = d
		prefix := strings.Repeat(TreeIndent, d)
		if d > 0 {
			prefix = strings.Repeat(TreeIndent, d-1) + TreeLast
		}
		b.WriteString(listLine(issue, refs, Muted(prefix)))
	}
	return b.String()
}

func listLine(issue *types.Issue, refs *Refs, prefix string) string {
	id := Accent(fmt.Sprintf("#%-5d", issue.ID))
	status := fmt.Sprintf("%-12s", refs.status(issue.StatusID))
	if refs.closed(issue.StatusID) {
		status = styled(ClosedStyle, status)
	} else {
		status = styled(OpenStyle, status)
	}
	subject := issue.Subject
	if refs.closed(issue.StatusID) {
		subject = Muted(subject)
	}
	return fmt.Sprintf("%s%s %s %s %s\n",
		prefix, id, status, fmt.Sprintf("%-8s", refs.priority(issue.PriorityID)), subject)
}

// RenderHistory renders an issue's journals, newest last.
func RenderHistory(journals []*types.Journal, refs *Refs) string {
	var b strings.Builder
	for i, j := range journals {
		if i > 0 {
			b.WriteString("\n")
		}
		head := fmt.Sprintf("%s by %s", j.CreatedOn.Format("2006-01-02 15:04"), refs.user(j.UserID))
		b.WriteString(Header(head))
		b.WriteString("\n")
		for i := range j.Details {
			b.WriteString("  " + Muted("* ") + detailLine(&j.Details[i], refs) + "\n")
		}
		if j.Notes != "" {
			b.WriteString(indent(RenderMarkdown(strings.TrimRight(j.Notes, "\n")), "  "))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func detailLine(d *types.JournalDetail, refs *Refs) string {
	name := d.PropKey
	switch d.Property {
	case types.PropCustom:
		if f, ok := refs.Fields[customFieldID(d.PropKey)]; ok {
			name = f.Name
		}
	case types.PropAttachment:
		name = "attachment " + d.PropKey
	}
	switch {
	case d.OldValue == nil && d.NewValue != nil:
		return fmt.Sprintf("%s set to %s", name, Accent(*d.NewValue))
	case d.OldValue != nil && d.NewValue == nil:
		return fmt.Sprintf("%s deleted (was %s)", name, Muted(*d.OldValue))
	case d.OldValue != nil && d.NewValue != nil:
		return fmt.Sprintf("%s changed from %s to %s", name, Muted(*d.OldValue), Accent(*d.NewValue))
	}
	return name + " changed"
}

func customFieldID(key string) int64 {
	var id int64
	for _, c := range key {
		if c < '0' || c > '9' {
			return 0
		}
		id = id*10 + int64(c-'0')
	}
	return id
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
