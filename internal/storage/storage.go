// Package storage defines the persistence contract for the issuekit domain
// core.
//
// The concrete implementations live in the sqlite and mysql sub-packages,
// which share the sqlstore implementation. Consumers depend on these
// interfaces so that the lifecycle orchestrator and tests can run against
// any backend.
package storage

import (
	"context"
	"errors"

	"github.com/edavis10/issuekit/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleObject is returned when an issue write carries a lock_version that
// no longer matches the stored row. The operation is aborted and not
// retried; the caller must reload and resubmit.
var ErrStaleObject = errors.New("stale object: issue was updated by someone else")

// Reader is the read-only query surface, shared by Store and Tx.
type Reader interface {
	// Issues
	GetIssue(ctx context.Context, id int64) (*types.Issue, error)
	ChildIssues(ctx context.Context, parentID int64) ([]*types.Issue, error)
	// SubtreeIssues returns the issues of one tree whose nested-set interval
	// lies within [lft, rgt], ordered by lft.
	SubtreeIssues(ctx context.Context, rootID int64, lft, rgt int) ([]*types.Issue, error)
	// LeafIssues returns the leaves (rgt = lft+1) within the interval.
	LeafIssues(ctx context.Context, rootID int64, lft, rgt int) ([]*types.Issue, error)
	// TreeNodes returns the nested-set projection of a whole tree.
	TreeNodes(ctx context.Context, rootID int64) ([]types.TreeNode, error)

	// Relations
	GetRelation(ctx context.Context, id int64) (*types.Relation, error)
	RelationsFrom(ctx context.Context, issueID int64) ([]*types.Relation, error)
	RelationsTo(ctx context.Context, issueID int64) ([]*types.Relation, error)
	RelationsOf(ctx context.Context, issueID int64) ([]*types.Relation, error)

	// ProjectIssues returns every issue of a project ordered by tree (root,
	// then lft), for listings.
	ProjectIssues(ctx context.Context, projectID int64) ([]*types.Issue, error)

	// Reference data
	GetProject(ctx context.Context, id int64) (*types.Project, error)
	FindProjectByIdentifier(ctx context.Context, identifier string) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)
	GetTracker(ctx context.Context, id int64) (*types.Tracker, error)
	ListTrackers(ctx context.Context) ([]*types.Tracker, error)
	GetStatus(ctx context.Context, id int64) (*types.Status, error)
	ListStatuses(ctx context.Context) ([]*types.Status, error)
	DefaultStatus(ctx context.Context) (*types.Status, error)
	GetPriority(ctx context.Context, id int64) (*types.Priority, error)
	ListPriorities(ctx context.Context) ([]*types.Priority, error)
	DefaultPriority(ctx context.Context) (*types.Priority, error)
	GetCategory(ctx context.Context, id int64) (*types.Category, error)
	FindCategoryByName(ctx context.Context, projectID int64, name string) (*types.Category, error)
	GetVersion(ctx context.Context, id int64) (*types.Version, error)
	SharedVersions(ctx context.Context, projectID int64) ([]*types.Version, error)

	// Principals and roles
	GetUser(ctx context.Context, id int64) (*types.User, error)
	GetUserByLogin(ctx context.Context, login string) (*types.User, error)
	UserInGroup(ctx context.Context, userID, groupID int64) (bool, error)
	UsersInGroup(ctx context.Context, groupID int64) ([]*types.User, error)
	IsGroup(ctx context.Context, principalID int64) (bool, error)
	RolesForUser(ctx context.Context, userID, projectID int64) ([]*types.Role, error)
	ListRoles(ctx context.Context) ([]*types.Role, error)

	// Workflow tables. A nil roleIDs slice selects every role.
	TransitionRules(ctx context.Context, trackerID, oldStatusID int64, roleIDs []int64) ([]*types.WorkflowRule, error)
	FieldRules(ctx context.Context, trackerID, statusID int64, roleIDs []int64) ([]*types.FieldRule, error)

	// Journals
	JournalsForIssue(ctx context.Context, issueID int64) ([]*types.Journal, error)

	// Custom fields
	ListCustomFields(ctx context.Context) ([]*types.CustomField, error)
	CustomValues(ctx context.Context, issueID int64) (map[int64][]string, error)

	// Attachments
	GetAttachment(ctx context.Context, id int64) (*types.Attachment, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
}

// Tx is the mutation surface available inside a transaction. Every lifecycle
// operation (update, move, copy, relation change) performs all of its row
// writes through one Tx so that a failure at any step rolls back the whole
// operation.
type Tx interface {
	Reader

	// InsertIssue assigns the id and timestamps and persists the row. When
	// the issue carries root_id 0 the row is created as a fresh root
	// (root_id = id, lft = 1, rgt = 2).
	InsertIssue(ctx context.Context, issue *types.Issue) error
	// UpdateIssue writes the scalar columns, guarded by the optimistic
	// lock: when the stored lock_version differs, ErrStaleObject is returned
	// and nothing is written. On success the counter is bumped both in the
	// row and in the passed struct. Nested-set columns (parent_id, root_id,
	// lft, rgt) change only through ApplyTreeUpdates.
	UpdateIssue(ctx context.Context, issue *types.Issue) error
	DeleteIssues(ctx context.Context, ids []int64) error
	// ApplyTreeUpdates writes a batch of nested-set row updates produced by
	// the tree module. Nested-set columns are not lock-guarded; structural
	// changes happen inside the same transaction as the triggering edit.
	ApplyTreeUpdates(ctx context.Context, updates []types.TreeUpdate) error

	InsertRelation(ctx context.Context, rel *types.Relation) error
	DeleteRelation(ctx context.Context, id int64) error

	InsertJournal(ctx context.Context, journal *types.Journal) error
	SetCustomValues(ctx context.Context, issueID int64, values map[int64][]string) error

	ReassignTimeEntries(ctx context.Context, issueID, projectID int64) error
	DeleteAttachment(ctx context.Context, id int64) error

	SetSetting(ctx context.Context, key, value string) error

	// Seeding and administration
	InsertProject(ctx context.Context, p *types.Project) error
	InsertTracker(ctx context.Context, t *types.Tracker) error
	InsertStatus(ctx context.Context, s *types.Status) error
	InsertPriority(ctx context.Context, p *types.Priority) error
	InsertRole(ctx context.Context, r *types.Role) error
	InsertUser(ctx context.Context, u *types.User) error
	InsertGroup(ctx context.Context, g *types.Group, memberIDs []int64) error
	AddMember(ctx context.Context, userID, projectID int64, roleIDs []int64) error
	InsertCategory(ctx context.Context, c *types.Category) error
	InsertVersion(ctx context.Context, v *types.Version) error
	InsertWorkflowRule(ctx context.Context, r *types.WorkflowRule) error
	InsertFieldRule(ctx context.Context, r *types.FieldRule) error
	InsertCustomField(ctx context.Context, f *types.CustomField) error
	InsertTimeEntry(ctx context.Context, e *types.TimeEntry) error
	InsertAttachment(ctx context.Context, a *types.Attachment) error
}

// Store is the interface satisfied by the sqlite and mysql backends.
type Store interface {
	Reader

	// RunInTransaction executes fn inside a single database transaction.
	// An error or panic from fn rolls back every write; a nil return
	// commits.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Setting keys consulted by the domain core.
const (
	// SettingCrossProjectRelations enables relations between issues of
	// different projects ("0" or "1").
	SettingCrossProjectRelations = "cross_project_relations"
)
