package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/types"
)

// querier is the subset of *sql.DB and *sql.Tx the reader needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// reader implements storage.Reader over a querier. It backs both the store
// (against the pool) and the transaction (against its *sql.Tx).
type reader struct {
	q querier
}

const issueColumns = `id, project_id, tracker_id, status_id, priority_id, author_id,
	assigned_to_id, category_id, fixed_version_id, parent_id, root_id, lft, rgt,
	subject, description, start_date, due_date, done_ratio, estimated_hours,
	lock_version, created_on, updated_on`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var i types.Issue
	var assigned, category, version, parent sql.NullInt64
	var start, due sql.NullString
	var hours sql.NullFloat64
	err := row.Scan(&i.ID, &i.ProjectID, &i.TrackerID, &i.StatusID, &i.PriorityID, &i.AuthorID,
		&assigned, &category, &version, &parent, &i.RootID, &i.Lft, &i.Rgt,
		&i.Subject, &i.Description, &start, &due, &i.DoneRatio, &hours,
		&i.LockVersion, &i.CreatedOn, &i.UpdatedOn)
	if err != nil {
		return nil, err
	}
	i.AssignedToID = nullID(assigned)
	i.CategoryID = nullID(category)
	i.FixedVersionID = nullID(version)
	i.ParentID = nullID(parent)
	if i.StartDate, err = nullDate(start); err != nil {
		return nil, err
	}
	if i.DueDate, err = nullDate(due); err != nil {
		return nil, err
	}
	if hours.Valid {
		i.EstimatedHours = &hours.Float64
	}
	return &i, nil
}

func nullID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullDate(v sql.NullString) (*types.Date, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := types.ParseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func dateArg(d *types.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func idArg(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func hoursArg(h *float64) any {
	if h == nil {
		return nil
	}
	return *h
}

// in expands to "(?,?,...)" with the matching args.
func in(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(marks, ",") + ")", args
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, storage.ErrNotFound)
	}
	return err
}

// ── Issues and trees ────────────────────────────────────────────────────────

func (r reader) GetIssue(ctx context.Context, id int64) (*types.Issue, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, notFound(err, "issue", id)
	}
	return issue, nil
}

func (r reader) queryIssues(ctx context.Context, query string, args ...any) ([]*types.Issue, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

func (r reader) ChildIssues(ctx context.Context, parentID int64) ([]*types.Issue, error) {
	return r.queryIssues(ctx, `SELECT `+issueColumns+` FROM issues WHERE parent_id = ? ORDER BY lft`, parentID)
}

func (r reader) SubtreeIssues(ctx context.Context, rootID int64, lft, rgt int) ([]*types.Issue, error) {
	return r.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE root_id = ? AND lft >= ? AND rgt <= ? ORDER BY lft`,
		rootID, lft, rgt)
}

func (r reader) LeafIssues(ctx context.Context, rootID int64, lft, rgt int) ([]*types.Issue, error) {
	return r.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE root_id = ? AND lft >= ? AND rgt <= ? AND rgt = lft + 1 ORDER BY lft`,
		rootID, lft, rgt)
}

func (r reader) ProjectIssues(ctx context.Context, projectID int64) ([]*types.Issue, error) {
	return r.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE project_id = ? ORDER BY root_id, lft`, projectID)
}

func (r reader) TreeNodes(ctx context.Context, rootID int64) ([]types.TreeNode, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, parent_id, root_id, lft, rgt FROM issues WHERE root_id = ? ORDER BY lft`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.TreeNode
	for rows.Next() {
		var n types.TreeNode
		var parent sql.NullInt64
		if err := rows.Scan(&n.ID, &parent, &n.RootID, &n.Lft, &n.Rgt); err != nil {
			return nil, err
		}
		n.ParentID = nullID(parent)
		out = append(out, n)
	}
	return out, rows.Err()
}

// ── Relations ───────────────────────────────────────────────────────────────

func scanRelations(rows *sql.Rows) ([]*types.Relation, error) {
	defer rows.Close()
	var out []*types.Relation
	for rows.Next() {
		var rel types.Relation
		if err := rows.Scan(&rel.ID, &rel.IssueFromID, &rel.IssueToID, &rel.Type, &rel.Delay); err != nil {
			return nil, err
		}
		out = append(out, &rel)
	}
	return out, rows.Err()
}

const relationColumns = `id, issue_from_id, issue_to_id, relation_type, delay`

func (r reader) GetRelation(ctx context.Context, id int64) (*types.Relation, error) {
	var rel types.Relation
	err := r.q.QueryRowContext(ctx, `SELECT `+relationColumns+` FROM relations WHERE id = ?`, id).
		Scan(&rel.ID, &rel.IssueFromID, &rel.IssueToID, &rel.Type, &rel.Delay)
	if err != nil {
		return nil, notFound(err, "relation", id)
	}
	return &rel, nil
}

func (r reader) RelationsFrom(ctx context.Context, issueID int64) ([]*types.Relation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+relationColumns+` FROM relations WHERE issue_from_id = ? ORDER BY id`, issueID)
	if err != nil {
		return nil, err
	}
	return scanRelations(rows)
}

func (r reader) RelationsTo(ctx context.Context, issueID int64) ([]*types.Relation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+relationColumns+` FROM relations WHERE issue_to_id = ? ORDER BY id`, issueID)
	if err != nil {
		return nil, err
	}
	return scanRelations(rows)
}

func (r reader) RelationsOf(ctx context.Context, issueID int64) ([]*types.Relation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+relationColumns+` FROM relations WHERE issue_from_id = ? OR issue_to_id = ? ORDER BY id`,
		issueID, issueID)
	if err != nil {
		return nil, err
	}
	return scanRelations(rows)
}

// ── Reference data ──────────────────────────────────────────────────────────

func (r reader) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	var p types.Project
	err := r.q.QueryRowContext(ctx, `SELECT id, identifier, name FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Identifier, &p.Name)
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT pt.tracker_id FROM project_trackers pt
		 JOIN trackers t ON t.id = pt.tracker_id
		 WHERE pt.project_id = ? ORDER BY t.position, t.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var trackerID int64
		if err := rows.Scan(&trackerID); err != nil {
			return nil, err
		}
		p.TrackerIDs = append(p.TrackerIDs, trackerID)
	}
	return &p, rows.Err()
}

func (r reader) FindProjectByIdentifier(ctx context.Context, identifier string) (*types.Project, error) {
	var id int64
	err := r.q.QueryRowContext(ctx, `SELECT id FROM projects WHERE identifier = ?`, identifier).Scan(&id)
	if err != nil {
		return nil, notFound(err, "project", identifier)
	}
	return r.GetProject(ctx, id)
}

func (r reader) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, identifier, name FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.Identifier, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r reader) GetTracker(ctx context.Context, id int64) (*types.Tracker, error) {
	var t types.Tracker
	err := r.q.QueryRowContext(ctx, `SELECT id, name, position FROM trackers WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Position)
	if err != nil {
		return nil, notFound(err, "tracker", id)
	}
	return &t, nil
}

func (r reader) ListTrackers(ctx context.Context) ([]*types.Tracker, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, position FROM trackers ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Tracker
	for rows.Next() {
		var t types.Tracker
		if err := rows.Scan(&t.ID, &t.Name, &t.Position); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func scanStatus(row rowScanner) (*types.Status, error) {
	var s types.Status
	var ratio sql.NullInt64
	if err := row.Scan(&s.ID, &s.Name, &s.IsClosed, &s.IsDefault, &s.Position, &ratio); err != nil {
		return nil, err
	}
	if ratio.Valid {
		v := int(ratio.Int64)
		s.DefaultDoneRatio = &v
	}
	return &s, nil
}

const statusColumns = `id, name, is_closed, is_default, position, default_done_ratio`

func (r reader) GetStatus(ctx context.Context, id int64) (*types.Status, error) {
	s, err := scanStatus(r.q.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM statuses WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "status", id)
	}
	return s, nil
}

func (r reader) ListStatuses(ctx context.Context) ([]*types.Status, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+statusColumns+` FROM statuses ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Status
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r reader) DefaultStatus(ctx context.Context) (*types.Status, error) {
	s, err := scanStatus(r.q.QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM statuses WHERE is_default = 1 ORDER BY position, id LIMIT 1`))
	if err != nil {
		return nil, notFound(err, "default status", "")
	}
	return s, nil
}

func (r reader) GetPriority(ctx context.Context, id int64) (*types.Priority, error) {
	var p types.Priority
	err := r.q.QueryRowContext(ctx, `SELECT id, name, position, is_default FROM priorities WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Position, &p.IsDefault)
	if err != nil {
		return nil, notFound(err, "priority", id)
	}
	return &p, nil
}

func (r reader) ListPriorities(ctx context.Context) ([]*types.Priority, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, position, is_default FROM priorities ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Priority
	for rows.Next() {
		var p types.Priority
		if err := rows.Scan(&p.ID, &p.Name, &p.Position, &p.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r reader) DefaultPriority(ctx context.Context) (*types.Priority, error) {
	var p types.Priority
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, position, is_default FROM priorities WHERE is_default = 1 ORDER BY position, id LIMIT 1`).
		Scan(&p.ID, &p.Name, &p.Position, &p.IsDefault)
	if err != nil {
		return nil, notFound(err, "default priority", "")
	}
	return &p, nil
}

func (r reader) GetCategory(ctx context.Context, id int64) (*types.Category, error) {
	var c types.Category
	var assigned sql.NullInt64
	err := r.q.QueryRowContext(ctx, `SELECT id, project_id, name, assigned_to_id FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.ProjectID, &c.Name, &assigned)
	if err != nil {
		return nil, notFound(err, "category", id)
	}
	c.AssignedToID = nullID(assigned)
	return &c, nil
}

func (r reader) FindCategoryByName(ctx context.Context, projectID int64, name string) (*types.Category, error) {
	var c types.Category
	var assigned sql.NullInt64
	err := r.q.QueryRowContext(ctx,
		`SELECT id, project_id, name, assigned_to_id FROM categories WHERE project_id = ? AND name = ?`,
		projectID, name).
		Scan(&c.ID, &c.ProjectID, &c.Name, &assigned)
	if err != nil {
		return nil, notFound(err, "category", name)
	}
	c.AssignedToID = nullID(assigned)
	return &c, nil
}

func (r reader) GetVersion(ctx context.Context, id int64) (*types.Version, error) {
	var v types.Version
	err := r.q.QueryRowContext(ctx, `SELECT id, project_id, name, sharing, is_closed FROM versions WHERE id = ?`, id).
		Scan(&v.ID, &v.ProjectID, &v.Name, &v.Sharing, &v.IsClosed)
	if err != nil {
		return nil, notFound(err, "version", id)
	}
	return &v, nil
}

func (r reader) SharedVersions(ctx context.Context, projectID int64) ([]*types.Version, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, project_id, name, sharing, is_closed FROM versions
		 WHERE project_id = ? OR sharing = 'system' ORDER BY name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Version
	for rows.Next() {
		var v types.Version
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.Name, &v.Sharing, &v.IsClosed); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// ── Principals and roles ────────────────────────────────────────────────────

func (r reader) GetUser(ctx context.Context, id int64) (*types.User, error) {
	var u types.User
	var login, mail sql.NullString
	err := r.q.QueryRowContext(ctx,
		`SELECT id, login, name, mail, admin FROM principals WHERE id = ? AND kind = 'user'`, id).
		Scan(&u.ID, &login, &u.Name, &mail, &u.Admin)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	u.Login, u.Mail = login.String, mail.String
	return &u, nil
}

func (r reader) GetUserByLogin(ctx context.Context, login string) (*types.User, error) {
	var u types.User
	var mail sql.NullString
	err := r.q.QueryRowContext(ctx,
		`SELECT id, login, name, mail, admin FROM principals WHERE login = ? AND kind = 'user'`, login).
		Scan(&u.ID, &u.Login, &u.Name, &mail, &u.Admin)
	if err != nil {
		return nil, notFound(err, "user", login)
	}
	u.Mail = mail.String
	return &u, nil
}

func (r reader) UserInGroup(ctx context.Context, userID, groupID int64) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID).Scan(&n)
	return n > 0, err
}

func (r reader) UsersInGroup(ctx context.Context, groupID int64) ([]*types.User, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT p.id, p.login, p.name, p.mail, p.admin FROM principals p
		 JOIN group_members gm ON gm.user_id = p.id
		 WHERE gm.group_id = ? AND p.kind = 'user' ORDER BY p.id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.User
	for rows.Next() {
		var u types.User
		var login, mail sql.NullString
		if err := rows.Scan(&u.ID, &login, &u.Name, &mail, &u.Admin); err != nil {
			return nil, err
		}
		u.Login, u.Mail = login.String, mail.String
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (r reader) IsGroup(ctx context.Context, principalID int64) (bool, error) {
	var kind string
	err := r.q.QueryRowContext(ctx, `SELECT kind FROM principals WHERE id = ?`, principalID).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return kind == string(types.KindGroup), nil
}

func scanRole(row rowScanner) (*types.Role, error) {
	var role types.Role
	var perms string
	if err := row.Scan(&role.ID, &role.Name, &role.Position, &perms); err != nil {
		return nil, err
	}
	for _, p := range strings.Split(perms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			role.Permissions = append(role.Permissions, types.Permission(p))
		}
	}
	return &role, nil
}

func (r reader) RolesForUser(ctx context.Context, userID, projectID int64) ([]*types.Role, error) {
	// Membership counts both direct and through a group the user belongs to.
	rows, err := r.q.QueryContext(ctx,
		`SELECT DISTINCT ro.id, ro.name, ro.position, ro.permissions FROM roles ro
		 JOIN memberships m ON m.role_id = ro.id
		 WHERE m.project_id = ?
		   AND (m.user_id = ? OR m.user_id IN (SELECT group_id FROM group_members WHERE user_id = ?))
		 ORDER BY ro.position, ro.id`, projectID, userID, userID)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

func (r reader) ListRoles(ctx context.Context) ([]*types.Role, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, position, permissions FROM roles ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

func scanRoles(rows *sql.Rows) ([]*types.Role, error) {
	defer rows.Close()
	var out []*types.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// ── Workflow tables ─────────────────────────────────────────────────────────

func (r reader) TransitionRules(ctx context.Context, trackerID, oldStatusID int64, roleIDs []int64) ([]*types.WorkflowRule, error) {
	query := `SELECT id, role_id, tracker_id, old_status_id, new_status_id, author, assignee
		 FROM workflow_rules WHERE tracker_id = ? AND old_status_id = ?`
	args := []any{trackerID, oldStatusID}
	if roleIDs != nil {
		if len(roleIDs) == 0 {
			return nil, nil
		}
		clause, inArgs := in(roleIDs)
		query += ` AND role_id IN ` + clause
		args = append(args, inArgs...)
	}
	rows, err := r.q.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.WorkflowRule
	for rows.Next() {
		var w types.WorkflowRule
		if err := rows.Scan(&w.ID, &w.RoleID, &w.TrackerID, &w.OldStatusID, &w.NewStatusID, &w.Author, &w.Assignee); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (r reader) FieldRules(ctx context.Context, trackerID, statusID int64, roleIDs []int64) ([]*types.FieldRule, error) {
	query := `SELECT id, role_id, tracker_id, status_id, field, rule
		 FROM field_rules WHERE tracker_id = ? AND status_id = ?`
	args := []any{trackerID, statusID}
	if roleIDs != nil {
		if len(roleIDs) == 0 {
			return nil, nil
		}
		clause, inArgs := in(roleIDs)
		query += ` AND role_id IN ` + clause
		args = append(args, inArgs...)
	}
	rows, err := r.q.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.FieldRule
	for rows.Next() {
		var f types.FieldRule
		if err := rows.Scan(&f.ID, &f.RoleID, &f.TrackerID, &f.StatusID, &f.Field, &f.Rule); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// ── Journals ────────────────────────────────────────────────────────────────

func (r reader) JournalsForIssue(ctx context.Context, issueID int64) ([]*types.Journal, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, issue_id, user_id, notes, created_on FROM journals WHERE issue_id = ? ORDER BY created_on, id`,
		issueID)
	if err != nil {
		return nil, err
	}
	var out []*types.Journal
	byID := make(map[int64]*types.Journal)
	func() {
		defer rows.Close()
		for rows.Next() {
			var j types.Journal
			if err = rows.Scan(&j.ID, &j.IssueID, &j.UserID, &j.Notes, &j.CreatedOn); err != nil {
				return
			}
			out = append(out, &j)
			byID[j.ID] = &j
		}
		err = rows.Err()
	}()
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(out))
	for i, j := range out {
		ids[i] = j.ID
	}
	clause, args := in(ids)
	detailRows, err := r.q.QueryContext(ctx,
		`SELECT id, journal_id, property, prop_key, old_value, new_value
		 FROM journal_details WHERE journal_id IN `+clause+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer detailRows.Close()
	for detailRows.Next() {
		var d types.JournalDetail
		var oldV, newV sql.NullString
		if err := detailRows.Scan(&d.ID, &d.JournalID, &d.Property, &d.PropKey, &oldV, &newV); err != nil {
			return nil, err
		}
		if oldV.Valid {
			d.OldValue = &oldV.String
		}
		if newV.Valid {
			d.NewValue = &newV.String
		}
		if j := byID[d.JournalID]; j != nil {
			j.Details = append(j.Details, d)
		}
	}
	return out, detailRows.Err()
}

// ── Custom fields, attachments, settings ────────────────────────────────────

func (r reader) ListCustomFields(ctx context.Context) ([]*types.CustomField, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, field_format, multiple, possible_values FROM custom_fields ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.CustomField
	for rows.Next() {
		var f types.CustomField
		var possible string
		if err := rows.Scan(&f.ID, &f.Name, &f.FieldFormat, &f.Multiple, &possible); err != nil {
			return nil, err
		}
		if possible != "" {
			f.PossibleValues = strings.Split(possible, "\n")
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (r reader) CustomValues(ctx context.Context, issueID int64) (map[int64][]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT custom_field_id, value FROM custom_values WHERE issue_id = ? ORDER BY id`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]string)
	for rows.Next() {
		var fieldID int64
		var value string
		if err := rows.Scan(&fieldID, &value); err != nil {
			return nil, err
		}
		out[fieldID] = append(out[fieldID], value)
	}
	return out, rows.Err()
}

func (r reader) GetAttachment(ctx context.Context, id int64) (*types.Attachment, error) {
	var a types.Attachment
	err := r.q.QueryRowContext(ctx,
		`SELECT id, issue_id, filename, author_id FROM attachments WHERE id = ?`, id).
		Scan(&a.ID, &a.IssueID, &a.Filename, &a.AuthorID)
	if err != nil {
		return nil, notFound(err, "attachment", id)
	}
	return &a, nil
}

func (r reader) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.q.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, key).Scan(&value)
	if err != nil {
		return "", notFound(err, "setting", key)
	}
	return value, nil
}
