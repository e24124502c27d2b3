// Package types defines core data structures for the issuekit tracker.
package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Issue represents a trackable work item. Lft/Rgt are nested-set bounds:
// every issue in one tree shares RootID, and a child's [Lft,Rgt] interval is
// strictly contained in its parent's.
type Issue struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"project_id"`
	TrackerID      int64      `json:"tracker_id"`
	StatusID       int64      `json:"status_id"`
	PriorityID     int64      `json:"priority_id"`
	AuthorID       int64      `json:"author_id"`
	AssignedToID   *int64     `json:"assigned_to_id,omitempty"` // user or group
	CategoryID     *int64     `json:"category_id,omitempty"`
	FixedVersionID *int64     `json:"fixed_version_id,omitempty"`
	ParentID       *int64     `json:"parent_id,omitempty"`
	RootID         int64      `json:"root_id"`
	Lft            int        `json:"lft"`
	Rgt            int        `json:"rgt"`
	Subject        string     `json:"subject"`
	Description    string     `json:"description,omitempty"`
	StartDate      *Date      `json:"start_date,omitempty"`
	DueDate        *Date      `json:"due_date,omitempty"`
	DoneRatio      int        `json:"done_ratio"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	LockVersion    int        `json:"lock_version"`
	CreatedOn      time.Time  `json:"created_on"`
	UpdatedOn      time.Time  `json:"updated_on"`

	// CustomValues maps custom field id to its values. Single-valued fields
	// hold exactly one entry. Populated on demand by the storage layer.
	CustomValues map[int64][]string `json:"custom_values,omitempty"`
}

// Leaf reports whether the issue has no children.
func (i *Issue) Leaf() bool {
	return i.Rgt == i.Lft+1
}

// Root reports whether the issue is the root of its tree.
func (i *Issue) Root() bool {
	return i.ParentID == nil
}

// Contains reports whether other lies inside the issue's subtree interval.
// Both issues must belong to the same tree for the comparison to be meaningful.
func (i *Issue) Contains(other *Issue) bool {
	return i.RootID == other.RootID && i.Lft <= other.Lft && other.Rgt <= i.Rgt
}

// Duration returns the scheduled length of the issue in days, or zero when
// either date is missing.
func (i *Issue) Duration() int {
	if i.StartDate == nil || i.DueDate == nil {
		return 0
	}
	return i.StartDate.DaysUntil(*i.DueDate)
}

// Validate checks intrinsic field invariants. Cross-entity rules (workflow,
// tree, relations) are enforced by the lifecycle orchestrator.
func (i *Issue) Validate() error {
	errs := ValidationErrors{}
	if strings.TrimSpace(i.Subject) == "" {
		errs.Add("subject", "cannot be blank")
	}
	if len(i.Subject) > 255 {
		errs.Add("subject", "is too long (maximum is 255 characters)")
	}
	if i.DoneRatio < 0 || i.DoneRatio > 100 {
		errs.Add("done_ratio", "is not included in the list")
	}
	if i.EstimatedHours != nil && *i.EstimatedHours < 0 {
		errs.Add("estimated_hours", "is not a valid number")
	}
	if i.StartDate != nil && i.DueDate != nil && i.DueDate.Before(*i.StartDate) {
		errs.Add("due_date", "must be greater than start date")
	}
	if errs.Any() {
		return errs
	}
	return nil
}

// Project groups issues and carries the set of enabled trackers.
type Project struct {
	ID         int64   `json:"id"`
	Identifier string  `json:"identifier"`
	Name       string  `json:"name"`
	TrackerIDs []int64 `json:"tracker_ids,omitempty"`
}

// TrackerEnabled reports whether the tracker is enabled on the project.
func (p *Project) TrackerEnabled(trackerID int64) bool {
	for _, id := range p.TrackerIDs {
		if id == trackerID {
			return true
		}
	}
	return false
}

// Tracker is an issue kind (bug, feature, ...). Position orders trackers in
// listings and is used when a move forces a tracker change.
type Tracker struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Status is a workflow state. IsClosed marks terminal states; IsDefault marks
// the status assigned to newly created issues.
type Status struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	IsClosed         bool   `json:"is_closed"`
	IsDefault        bool   `json:"is_default"`
	Position         int    `json:"position"`
	DefaultDoneRatio *int   `json:"default_done_ratio,omitempty"`
}

// SortStatuses orders statuses by position, then id, in place.
func SortStatuses(statuses []*Status) {
	sort.Slice(statuses, func(a, b int) bool {
		if statuses[a].Position != statuses[b].Position {
			return statuses[a].Position < statuses[b].Position
		}
		return statuses[a].ID < statuses[b].ID
	})
}

// Priority is an issue priority enumeration value. Higher Position means more
// urgent; parent issues aggregate the maximum position among children.
type Priority struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Position  int    `json:"position"`
	IsDefault bool   `json:"is_default"`
}

// PrincipalKind discriminates rows of the principals table.
type PrincipalKind string

// Principal kinds
const (
	KindUser  PrincipalKind = "user"
	KindGroup PrincipalKind = "group"
)

// User is an account that authors and edits issues. Admin users bypass the
// role-based workflow table.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Mail  string `json:"mail,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

// Group is an assignable collection of users.
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Permission names an action a role may perform on a project.
type Permission string

// Project permissions consulted by the lifecycle orchestrator.
const (
	PermAddIssues      Permission = "add_issues"
	PermEditIssues     Permission = "edit_issues"
	PermMoveIssues     Permission = "move_issues"
	PermManageSubtasks Permission = "manage_subtasks"
	PermLogTime        Permission = "log_time"
)

// Role is a named set of permissions granted to a user on a project.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Position    int          `json:"position"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// HasPermission reports whether the role grants the permission.
func (r *Role) HasPermission(p Permission) bool {
	for _, perm := range r.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

// RoleIDs extracts the ids of a role slice.
func RoleIDs(roles []*Role) []int64 {
	ids := make([]int64, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}
	return ids
}

// Category is a per-project issue category, optionally carrying a default
// assignee for new issues.
type Category struct {
	ID           int64  `json:"id"`
	ProjectID    int64  `json:"project_id"`
	Name         string `json:"name"`
	AssignedToID *int64 `json:"assigned_to_id,omitempty"`
}

// VersionSharing controls which projects may target a version.
type VersionSharing string

// Version sharing modes. SharingSystem versions are assignable from any
// project; SharingNone only from their own.
const (
	SharingNone   VersionSharing = "none"
	SharingSystem VersionSharing = "system"
)

// Version is a project milestone issues can target via FixedVersionID.
type Version struct {
	ID        int64          `json:"id"`
	ProjectID int64          `json:"project_id"`
	Name      string         `json:"name"`
	Sharing   VersionSharing `json:"sharing"`
	IsClosed  bool           `json:"is_closed,omitempty"`
}

// SharedWith reports whether the version can be assigned to issues of the
// given project.
func (v *Version) SharedWith(projectID int64) bool {
	return v.ProjectID == projectID || v.Sharing == SharingSystem
}

// RelationType categorizes a directed edge between two issues.
type RelationType string

// Relation type constants. TypeFollows is an input-only alias: it is
// canonicalized to TypePrecedes with swapped endpoints before validation and
// storage, so only the precedes direction is ever persisted.
const (
	TypeRelates    RelationType = "relates"
	TypeDuplicates RelationType = "duplicates"
	TypeBlocks     RelationType = "blocks"
	TypePrecedes   RelationType = "precedes"
	TypeFollows    RelationType = "follows"
	TypeCopiedTo   RelationType = "copied_to"
)

// IsValid checks if the relation type is one of the persistable constants.
// TypeFollows is accepted as input but never stored.
func (t RelationType) IsValid() bool {
	switch t {
	case TypeRelates, TypeDuplicates, TypeBlocks, TypePrecedes, TypeFollows, TypeCopiedTo:
		return true
	}
	return false
}

// Relation is a directed typed edge between two issues. Delay is a lag in
// days and is meaningful only for precedes edges.
type Relation struct {
	ID          int64        `json:"id"`
	IssueFromID int64        `json:"issue_from_id"`
	IssueToID   int64        `json:"issue_to_id"`
	Type        RelationType `json:"relation_type"`
	Delay       int          `json:"delay"`
}

// OtherIssueID returns the endpoint opposite to issueID, or zero when the
// relation does not touch issueID.
func (r *Relation) OtherIssueID(issueID int64) int64 {
	switch issueID {
	case r.IssueFromID:
		return r.IssueToID
	case r.IssueToID:
		return r.IssueFromID
	}
	return 0
}

// WorkflowRule is one transition table entry: holders of Role may move
// Tracker issues from OldStatus to NewStatus. When Author or Assignee is set
// the entry applies only if the acting user is the issue's author or
// assignee, respectively.
type WorkflowRule struct {
	ID          int64 `json:"id"`
	RoleID      int64 `json:"role_id"`
	TrackerID   int64 `json:"tracker_id"`
	OldStatusID int64 `json:"old_status_id"`
	NewStatusID int64 `json:"new_status_id"`
	Author      bool  `json:"author,omitempty"`
	Assignee    bool  `json:"assignee,omitempty"`
}

// FieldRuleKind is a per-field workflow restriction.
type FieldRuleKind string

// Field rule kinds
const (
	RuleReadonly FieldRuleKind = "readonly"
	RuleRequired FieldRuleKind = "required"
)

// FieldRule restricts one issue field for (role, tracker, status). Custom
// fields are addressed by their numeric id rendered as the Field string.
type FieldRule struct {
	ID        int64         `json:"id"`
	RoleID    int64         `json:"role_id"`
	TrackerID int64         `json:"tracker_id"`
	StatusID  int64         `json:"status_id"`
	Field     string        `json:"field"`
	Rule      FieldRuleKind `json:"rule"`
}

// Property classifies what a journal detail row describes.
type Property string

// Journal detail properties
const (
	PropAttribute  Property = "attr"
	PropCustom     Property = "cf"
	PropAttachment Property = "attachment"
)

// Journal is one append-only audit record: free-text notes plus the
// field-level diffs produced by a single edit. Journals are never mutated or
// deleted once saved.
type Journal struct {
	ID        int64           `json:"id"`
	IssueID   int64           `json:"issue_id"`
	UserID    int64           `json:"user_id"`
	Notes     string          `json:"notes,omitempty"`
	CreatedOn time.Time       `json:"created_on"`
	Details   []JournalDetail `json:"details,omitempty"`
}

// Empty reports whether the journal carries neither notes nor details.
// Empty journals are discarded rather than persisted.
func (j *Journal) Empty() bool {
	return strings.TrimSpace(j.Notes) == "" && len(j.Details) == 0
}

// JournalDetail records one field-level change. For PropAttribute rows
// PropKey is the column name; for PropCustom rows it is the custom field id;
// for PropAttachment rows it is the attachment id.
type JournalDetail struct {
	ID        int64    `json:"id"`
	JournalID int64    `json:"journal_id"`
	Property  Property `json:"property"`
	PropKey   string   `json:"prop_key"`
	OldValue  *string  `json:"old_value,omitempty"`
	NewValue  *string  `json:"new_value,omitempty"`
}

// CustomFieldFormat is the value format of a custom field.
type CustomFieldFormat string

// Custom field formats
const (
	FormatString CustomFieldFormat = "string"
	FormatText   CustomFieldFormat = "text"
	FormatInt    CustomFieldFormat = "int"
	FormatList   CustomFieldFormat = "list"
	FormatDate   CustomFieldFormat = "date"
	FormatBool   CustomFieldFormat = "bool"
)

// CustomField describes a user-defined issue attribute.
type CustomField struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	FieldFormat    CustomFieldFormat `json:"field_format"`
	Multiple       bool              `json:"multiple,omitempty"`
	PossibleValues []string          `json:"possible_values,omitempty"`
}

// TimeEntry is a time-tracking record attached to an issue. The core only
// reassigns entries between projects when their issue moves.
type TimeEntry struct {
	ID        int64   `json:"id"`
	ProjectID int64   `json:"project_id"`
	IssueID   int64   `json:"issue_id"`
	UserID    int64   `json:"user_id"`
	Hours     float64 `json:"hours"`
}

// Attachment is file metadata attached to an issue. Blob storage is an
// external collaborator; the core only journals attachment removal.
type Attachment struct {
	ID       int64  `json:"id"`
	IssueID  int64  `json:"issue_id"`
	Filename string `json:"filename"`
	AuthorID int64  `json:"author_id"`
}

// TreeNode is the projection of an issue used by the nested-set module.
type TreeNode struct {
	ID       int64
	ParentID *int64
	RootID   int64
	Lft      int
	Rgt      int
}

// TreeUpdate is one row write produced by a nested-set operation. All
// updates of one operation are applied in a single batch inside the
// surrounding transaction.
type TreeUpdate struct {
	ID       int64
	ParentID *int64
	RootID   int64
	Lft      int
	Rgt      int
}

// String implements fmt.Stringer for diagnostics.
func (u TreeUpdate) String() string {
	parent := "nil"
	if u.ParentID != nil {
		parent = fmt.Sprintf("%d", *u.ParentID)
	}
	return fmt.Sprintf("issue %d: parent=%s root=%d lft=%d rgt=%d", u.ID, parent, u.RootID, u.Lft, u.Rgt)
}
