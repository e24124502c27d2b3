package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/types"
)

// transaction implements storage.Tx over one *sql.Tx.
type transaction struct {
	reader
	tx *sql.Tx
}

func lastID(res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (t *transaction) InsertIssue(ctx context.Context, issue *types.Issue) error {
	// A zero root id marks a fresh root. Give it its own [1,2] interval up
	// front so the lft < rgt check holds on the insert itself; root_id is
	// pointed at the new row once its id is known.
	if issue.RootID == 0 {
		issue.Lft, issue.Rgt = 1, 2
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO issues (project_id, tracker_id, status_id, priority_id, author_id,
		 assigned_to_id, category_id, fixed_version_id, parent_id, root_id, lft, rgt,
		 subject, description, start_date, due_date, done_ratio, estimated_hours,
		 lock_version, created_on, updated_on)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		issue.ProjectID, issue.TrackerID, issue.StatusID, issue.PriorityID, issue.AuthorID,
		idArg(issue.AssignedToID), idArg(issue.CategoryID), idArg(issue.FixedVersionID),
		idArg(issue.ParentID), issue.RootID, issue.Lft, issue.Rgt,
		issue.Subject, issue.Description, dateArg(issue.StartDate), dateArg(issue.DueDate),
		issue.DoneRatio, hoursArg(issue.EstimatedHours),
		issue.LockVersion, issue.CreatedOn, issue.UpdatedOn)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	issue.ID = id

	if issue.RootID == 0 {
		issue.RootID = id
		_, err = t.tx.ExecContext(ctx,
			`UPDATE issues SET root_id = ? WHERE id = ?`, id, id)
		if err != nil {
			return fmt.Errorf("init issue tree: %w", err)
		}
	}
	return nil
}

func (t *transaction) UpdateIssue(ctx context.Context, issue *types.Issue) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE issues SET project_id = ?, tracker_id = ?, status_id = ?, priority_id = ?,
		 assigned_to_id = ?, category_id = ?, fixed_version_id = ?,
		 subject = ?, description = ?, start_date = ?, due_date = ?,
		 done_ratio = ?, estimated_hours = ?, updated_on = ?,
		 lock_version = lock_version + 1
		 WHERE id = ? AND lock_version = ?`,
		issue.ProjectID, issue.TrackerID, issue.StatusID, issue.PriorityID,
		idArg(issue.AssignedToID), idArg(issue.CategoryID), idArg(issue.FixedVersionID),
		issue.Subject, issue.Description, dateArg(issue.StartDate), dateArg(issue.DueDate),
		issue.DoneRatio, hoursArg(issue.EstimatedHours), issue.UpdatedOn,
		issue.ID, issue.LockVersion)
	if err != nil {
		return fmt.Errorf("update issue %d: %w", issue.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := t.GetIssue(ctx, issue.ID); err != nil {
			return err
		}
		return storage.ErrStaleObject
	}
	issue.LockVersion++
	return nil
}

func (t *transaction) DeleteIssues(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	clause, args := in(ids)
	// detach time entries, drop dependents, then the rows
	steps := []string{
		`UPDATE time_entries SET issue_id = NULL WHERE issue_id IN ` + clause,
		`DELETE FROM relations WHERE issue_from_id IN ` + clause + ` OR issue_to_id IN ` + clause,
		`DELETE FROM journal_details WHERE journal_id IN (SELECT id FROM journals WHERE issue_id IN ` + clause + `)`,
		`DELETE FROM journals WHERE issue_id IN ` + clause,
		`DELETE FROM custom_values WHERE issue_id IN ` + clause,
		`DELETE FROM attachments WHERE issue_id IN ` + clause,
		`DELETE FROM issues WHERE id IN ` + clause,
	}
	for _, stmt := range steps {
		var stepArgs []any
		for len(stepArgs) < strings.Count(stmt, "?") {
			stepArgs = append(stepArgs, args...)
		}
		if _, err := t.tx.ExecContext(ctx, stmt, stepArgs...); err != nil {
			return fmt.Errorf("delete issues: %w", err)
		}
	}
	return nil
}

func (t *transaction) ApplyTreeUpdates(ctx context.Context, updates []types.TreeUpdate) error {
	for _, u := range updates {
		_, err := t.tx.ExecContext(ctx,
			`UPDATE issues SET parent_id = ?, root_id = ?, lft = ?, rgt = ? WHERE id = ?`,
			idArg(u.ParentID), u.RootID, u.Lft, u.Rgt, u.ID)
		if err != nil {
			return fmt.Errorf("apply tree update for issue %d: %w", u.ID, err)
		}
	}
	return nil
}

func (t *transaction) InsertRelation(ctx context.Context, rel *types.Relation) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO relations (issue_from_id, issue_to_id, relation_type, delay) VALUES (?,?,?,?)`,
		rel.IssueFromID, rel.IssueToID, rel.Type, rel.Delay)
	if err != nil {
		return fmt.Errorf("insert relation: %w", err)
	}
	rel.ID, err = lastID(res)
	return err
}

func (t *transaction) DeleteRelation(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, id)
	return err
}

func (t *transaction) InsertJournal(ctx context.Context, journal *types.Journal) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO journals (issue_id, user_id, notes, created_on) VALUES (?,?,?,?)`,
		journal.IssueID, journal.UserID, journal.Notes, journal.CreatedOn)
	if err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}
	if journal.ID, err = lastID(res); err != nil {
		return err
	}
	for i := range journal.Details {
		d := &journal.Details[i]
		d.JournalID = journal.ID
		res, err := t.tx.ExecContext(ctx,
			`INSERT INTO journal_details (journal_id, property, prop_key, old_value, new_value) VALUES (?,?,?,?,?)`,
			d.JournalID, d.Property, d.PropKey, strArg(d.OldValue), strArg(d.NewValue))
		if err != nil {
			return fmt.Errorf("insert journal detail: %w", err)
		}
		if d.ID, err = lastID(res); err != nil {
			return err
		}
	}
	return nil
}

func (t *transaction) SetCustomValues(ctx context.Context, issueID int64, values map[int64][]string) error {
	for fieldID, vs := range values {
		_, err := t.tx.ExecContext(ctx,
			`DELETE FROM custom_values WHERE issue_id = ? AND custom_field_id = ?`, issueID, fieldID)
		if err != nil {
			return err
		}
		for _, v := range vs {
			_, err := t.tx.ExecContext(ctx,
				`INSERT INTO custom_values (issue_id, custom_field_id, value) VALUES (?,?,?)`,
				issueID, fieldID, v)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *transaction) ReassignTimeEntries(ctx context.Context, issueID, projectID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE time_entries SET project_id = ? WHERE issue_id = ?`, projectID, issueID)
	return err
}

func (t *transaction) DeleteAttachment(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	return err
}

func (t *transaction) SetSetting(ctx context.Context, key, value string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM settings WHERE name = ?`, key); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO settings (name, value) VALUES (?,?)`, key, value)
	return err
}

// ── Seeding and administration ──────────────────────────────────────────────

func (t *transaction) InsertProject(ctx context.Context, p *types.Project) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO projects (identifier, name) VALUES (?,?)`, p.Identifier, p.Name)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if p.ID, err = lastID(res); err != nil {
		return err
	}
	for _, trackerID := range p.TrackerIDs {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO project_trackers (project_id, tracker_id) VALUES (?,?)`, p.ID, trackerID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *transaction) InsertTracker(ctx context.Context, tr *types.Tracker) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO trackers (name, position) VALUES (?,?)`, tr.Name, tr.Position)
	if err != nil {
		return fmt.Errorf("insert tracker: %w", err)
	}
	tr.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertStatus(ctx context.Context, s *types.Status) error {
	var ratio any
	if s.DefaultDoneRatio != nil {
		ratio = *s.DefaultDoneRatio
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO statuses (name, is_closed, is_default, position, default_done_ratio) VALUES (?,?,?,?,?)`,
		s.Name, s.IsClosed, s.IsDefault, s.Position, ratio)
	if err != nil {
		return fmt.Errorf("insert status: %w", err)
	}
	s.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertPriority(ctx context.Context, p *types.Priority) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO priorities (name, position, is_default) VALUES (?,?,?)`,
		p.Name, p.Position, p.IsDefault)
	if err != nil {
		return fmt.Errorf("insert priority: %w", err)
	}
	p.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertRole(ctx context.Context, role *types.Role) error {
	perms := make([]string, len(role.Permissions))
	for i, p := range role.Permissions {
		perms[i] = string(p)
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO roles (name, position, permissions) VALUES (?,?,?)`,
		role.Name, role.Position, strings.Join(perms, ","))
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	role.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertUser(ctx context.Context, u *types.User) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO principals (kind, login, name, mail, admin) VALUES ('user',?,?,?,?)`,
		u.Login, u.Name, u.Mail, u.Admin)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertGroup(ctx context.Context, g *types.Group, memberIDs []int64) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO principals (kind, name) VALUES ('group',?)`, g.Name)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	if g.ID, err = lastID(res); err != nil {
		return err
	}
	for _, userID := range memberIDs {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES (?,?)`, g.ID, userID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *transaction) AddMember(ctx context.Context, userID, projectID int64, roleIDs []int64) error {
	for _, roleID := range roleIDs {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO memberships (user_id, project_id, role_id) VALUES (?,?,?)`,
			userID, projectID, roleID)
		if err != nil {
			return fmt.Errorf("add member: %w", err)
		}
	}
	return nil
}

func (t *transaction) InsertCategory(ctx context.Context, c *types.Category) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO categories (project_id, name, assigned_to_id) VALUES (?,?,?)`,
		c.ProjectID, c.Name, idArg(c.AssignedToID))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	c.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertVersion(ctx context.Context, v *types.Version) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO versions (project_id, name, sharing, is_closed) VALUES (?,?,?,?)`,
		v.ProjectID, v.Name, v.Sharing, v.IsClosed)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	v.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertWorkflowRule(ctx context.Context, r *types.WorkflowRule) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO workflow_rules (role_id, tracker_id, old_status_id, new_status_id, author, assignee)
		 VALUES (?,?,?,?,?,?)`,
		r.RoleID, r.TrackerID, r.OldStatusID, r.NewStatusID, r.Author, r.Assignee)
	if err != nil {
		return fmt.Errorf("insert workflow rule: %w", err)
	}
	r.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertFieldRule(ctx context.Context, r *types.FieldRule) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO field_rules (role_id, tracker_id, status_id, field, rule) VALUES (?,?,?,?,?)`,
		r.RoleID, r.TrackerID, r.StatusID, r.Field, r.Rule)
	if err != nil {
		return fmt.Errorf("insert field rule: %w", err)
	}
	r.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertCustomField(ctx context.Context, f *types.CustomField) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO custom_fields (name, field_format, multiple, possible_values) VALUES (?,?,?,?)`,
		f.Name, f.FieldFormat, f.Multiple, strings.Join(f.PossibleValues, "\n"))
	if err != nil {
		return fmt.Errorf("insert custom field: %w", err)
	}
	f.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertTimeEntry(ctx context.Context, e *types.TimeEntry) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO time_entries (project_id, issue_id, user_id, hours) VALUES (?,?,?,?)`,
		e.ProjectID, e.IssueID, e.UserID, e.Hours)
	if err != nil {
		return fmt.Errorf("insert time entry: %w", err)
	}
	e.ID, err = lastID(res)
	return err
}

func (t *transaction) InsertAttachment(ctx context.Context, a *types.Attachment) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO attachments (issue_id, filename, author_id) VALUES (?,?,?)`,
		a.IssueID, a.Filename, a.AuthorID)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	a.ID, err = lastID(res)
	return err
}

func strArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
