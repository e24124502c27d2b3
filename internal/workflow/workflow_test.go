package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/edavis10/issuekit/internal/types"
)

// fakeSource is an in-memory workflow source.
type fakeSource struct {
	issues      map[int64]*types.Issue
	statuses    map[int64]*types.Status
	roles       map[int64][]*types.Role // userID -> roles
	allRoles    []*types.Role
	groups      map[int64][]int64 // groupID -> member user ids
	transitions []*types.WorkflowRule
	fieldRules  []*types.FieldRule
	relationsTo map[int64][]*types.Relation
}

func (f *fakeSource) GetIssue(_ context.Context, id int64) (*types.Issue, error) {
	if i, ok := f.issues[id]; ok {
		return i, nil
	}
	return nil, fmt.Errorf("issue %d not found", id)
}

func (f *fakeSource) GetStatus(_ context.Context, id int64) (*types.Status, error) {
	if s, ok := f.statuses[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("status %d not found", id)
}

func (f *fakeSource) ListStatuses(context.Context) ([]*types.Status, error) {
	out := make([]*types.Status, 0, len(f.statuses))
	for _, s := range f.statuses {
		out = append(out, s)
	}
	types.SortStatuses(out)
	return out, nil
}

func (f *fakeSource) DefaultStatus(ctx context.Context) (*types.Status, error) {
	for _, s := range f.statuses {
		if s.IsDefault {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no default status")
}

func (f *fakeSource) RolesForUser(_ context.Context, userID, _ int64) ([]*types.Role, error) {
	return f.roles[userID], nil
}

func (f *fakeSource) ListRoles(context.Context) ([]*types.Role, error) {
	return f.allRoles, nil
}

func (f *fakeSource) IsGroup(_ context.Context, principalID int64) (bool, error) {
	_, ok := f.groups[principalID]
	return ok, nil
}

func (f *fakeSource) UserInGroup(_ context.Context, userID, groupID int64) (bool, error) {
	for _, id := range f.groups[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSource) TransitionRules(_ context.Context, trackerID, oldStatusID int64, roleIDs []int64) ([]*types.WorkflowRule, error) {
	var out []*types.WorkflowRule
	for _, r := range f.transitions {
		if r.TrackerID != trackerID || r.OldStatusID != oldStatusID {
			continue
		}
		if roleIDs != nil && !containsID(roleIDs, r.RoleID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSource) FieldRules(_ context.Context, trackerID, statusID int64, roleIDs []int64) ([]*types.FieldRule, error) {
	var out []*types.FieldRule
	for _, r := range f.fieldRules {
		if r.TrackerID != trackerID || r.StatusID != statusID {
			continue
		}
		if roleIDs != nil && !containsID(roleIDs, r.RoleID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSource) RelationsTo(_ context.Context, issueID int64) ([]*types.Relation, error) {
	return f.relationsTo[issueID], nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// newFixture builds statuses 1..4 (4 closed), two roles, and one issue in
// status 1 on tracker 1.
func newFixture() *fakeSource {
	return &fakeSource{
		issues: map[int64]*types.Issue{
			10: {ID: 10, ProjectID: 1, TrackerID: 1, StatusID: 1, AuthorID: 100},
		},
		statuses: map[int64]*types.Status{
			1: {ID: 1, Name: "New", Position: 1, IsDefault: true},
			2: {ID: 2, Name: "In Progress", Position: 2},
			3: {ID: 3, Name: "Resolved", Position: 3},
			4: {ID: 4, Name: "Closed", Position: 4, IsClosed: true},
		},
		roles: map[int64][]*types.Role{},
		allRoles: []*types.Role{
			{ID: 1, Name: "Manager"},
			{ID: 2, Name: "Developer"},
		},
		groups:      map[int64][]int64{},
		relationsTo: map[int64][]*types.Relation{},
	}
}

func TestAllowedStatusesUnionAcrossRoles(t *testing.T) {
	src := newFixture()
	user := &types.User{ID: 100}
	src.roles[100] = src.allRoles // both roles
	src.transitions = []*types.WorkflowRule{
		{RoleID: 1, TrackerID: 1, OldStatusID: 1, NewStatusID: 2},
		{RoleID: 2, TrackerID: 1, OldStatusID: 1, NewStatusID: 3},
	}

	auth := New(src)
	statuses, err := auth.AllowedStatuses(context.Background(), user, src.issues[10])
	if err != nil {
		t.Fatal(err)
	}
	if got := statusIDs(statuses); !equalIDs(got, []int64{1, 2, 3}) {
		t.Errorf("allowed = %v, want union [1 2 3]", got)
	}
}

func TestAllowedStatusesIncludesCurrentAlways(t *testing.T) {
	src := newFixture()
	user := &types.User{ID: 100}
	src.roles[100] = src.allRoles[:1]

	auth := New(src)
	statuses, err := auth.AllowedStatuses(context.Background(), user, src.issues[10])
	if err != nil {
		t.Fatal(err)
	}
	if got := statusIDs(statuses); !equalIDs(got, []int64{1}) {
		t.Errorf("allowed with empty table = %v, want just current", got)
	}
}

func TestAllowedStatusesAuthorGate(t *testing.T) {
	src := newFixture()
	src.roles[200] = src.allRoles[:1]
	src.roles[100] = src.allRoles[:1]
	src.transitions = []*types.WorkflowRule{
		{RoleID: 1, TrackerID: 1, OldStatusID: 1, NewStatusID: 4, Author: true},
	}

	auth := New(src)
	issue := src.issues[10] // author is 100

	statuses, err := auth.AllowedStatuses(context.Background(), &types.User{ID: 100}, issue)
	if err != nil {
		t.Fatal(err)
	}
	if got := statusIDs(statuses); !equalIDs(got, []int64{1, 4}) {
		t.Errorf("author allowed = %v, want [1 4]", got)
	}

	statuses, err = auth.AllowedStatuses(context.Background(), &types.User{ID: 200}, issue)
	if err != nil {
		t.Fatal(err)
	}
	if got := statusIDs(statuses); !equalIDs(got, []int64{1}) {
		t.Errorf("non-author allowed = %v, want [1]", got)
	}
}

func TestAllowedStatusesAssigneeGateThroughGroup(t *testing.T) {
	src := newFixture()
	group := int64(50)
	src.groups[group] = []int64{300}
	src.issues[10].AssignedToID = &group
	src.roles[300] = src.allRoles[:1]
	src.transitions = []*types.WorkflowRule{
		{RoleID: 1, TrackerID: 1, OldStatusID: 1, NewStatusID: 2, Assignee: true},
	}

	auth := New(src)
	statuses, err := auth.AllowedStatuses(context.Background(), &types.User{ID: 300}, src.issues[10])
	if err != nil {
		t.Fatal(err)
	}
	if got := statusIDs(statuses); !equalIDs(got, []int64{1, 2}) {
		t.Errorf("group assignee allowed = %v, want [1 2]", got)
	}
}

func TestAllowedStatusesAdminBypassesGates(t *testing.T) {
	src := newFixture()
	src.transitions = []*types.WorkflowRule{
		{RoleID: 1, TrackerID: 1, OldStatusID: 1, NewStatusID: 2, Author: true},
		{RoleID: 2, TrackerID: 1, OldStatusID: 1, NewStatusID: 3, Assignee: true},
	}

	auth := New(src)
	statuses, err := auth.AllowedStatuses(context.Background(), &types.User{ID: 1, Admin: true}, src.issues[10])
	if err != nil {
		t.Fatal(err)
	}
	if got := statusIDs(statuses); !equalIDs(got, []int64{1, 2, 3}) {
		t.Errorf("admin allowed = %v, want everything reachable", got)
	}
}

func TestAllowedStatusesBlockedStripsClosed(t *testing.T) {
	src := newFixture()
	user := &types.User{ID: 100}
	src.roles[100] = src.allRoles[:1]
	src.transitions = []*types.WorkflowRule{
		{RoleID: 1, TrackerID: 1, OldStatusID: 1, NewStatusID: 2},
		{RoleID: 1, TrackerID: 1, OldStatusID: 1, NewStatusID: 4},
	}
	src.issues[20] = &types.Issue{ID: 20, ProjectID: 1, TrackerID: 1, StatusID: 2}
	src.relationsTo[10] = []*types.Relation{
		{IssueFromID: 20, IssueToID: 10, Type: types.TypeBlocks},
	}

	auth := New(src)
	statuses, err := auth.AllowedStatuses(context.Background(), user, src.issues[10])
	if err != nil {
		t.Fatal(err)
	}
	if got := statusIDs(statuses); !equalIDs(got, []int64{1, 2}) {
		t.Errorf("blocked allowed = %v, closed target must be stripped", got)
	}

	// closing the blocker reopens the closed target
	src.issues[20].StatusID = 4
	statuses, err = auth.AllowedStatuses(context.Background(), user, src.issues[10])
	if err != nil {
		t.Fatal(err)
	}
	if got := statusIDs(statuses); !equalIDs(got, []int64{1, 2, 4}) {
		t.Errorf("unblocked allowed = %v, want [1 2 4]", got)
	}
}

func TestAllowedStatusesForCopy(t *testing.T) {
	src := newFixture()
	src.issues[10].StatusID = 3

	auth := New(src)
	statuses, err := auth.AllowedStatusesForCopy(context.Background(), src.issues[10])
	if err != nil {
		t.Fatal(err)
	}
	if got := statusIDs(statuses); !equalIDs(got, []int64{1, 3}) {
		t.Errorf("copy allowed = %v, want default plus source", got)
	}
}

func TestFieldRuleCombination(t *testing.T) {
	src := newFixture()
	user := &types.User{ID: 100}
	src.roles[100] = src.allRoles // holds both roles
	src.fieldRules = []*types.FieldRule{
		// both roles agree: readonly binds
		{RoleID: 1, TrackerID: 1, StatusID: 1, Field: "due_date", Rule: types.RuleReadonly},
		{RoleID: 2, TrackerID: 1, StatusID: 1, Field: "due_date", Rule: types.RuleReadonly},
		// only one role restricted: the field stays free
		{RoleID: 1, TrackerID: 1, StatusID: 1, Field: "start_date", Rule: types.RuleReadonly},
		// mixed rules: required wins
		{RoleID: 1, TrackerID: 1, StatusID: 1, Field: "category_id", Rule: types.RuleReadonly},
		{RoleID: 2, TrackerID: 1, StatusID: 1, Field: "category_id", Rule: types.RuleRequired},
	}

	auth := New(src)
	rules, err := auth.FieldRuleByAttribute(context.Background(), user, src.issues[10])
	if err != nil {
		t.Fatal(err)
	}
	if rules["due_date"] != types.RuleReadonly {
		t.Errorf("due_date = %v, want readonly", rules["due_date"])
	}
	if _, ok := rules["start_date"]; ok {
		t.Errorf("start_date bound although one role is unrestricted")
	}
	if rules["category_id"] != types.RuleRequired {
		t.Errorf("category_id = %v, want required for mixed rules", rules["category_id"])
	}
}

func TestStatusAllowed(t *testing.T) {
	src := newFixture()
	user := &types.User{ID: 100}
	src.roles[100] = src.allRoles[:1]
	src.transitions = []*types.WorkflowRule{
		{RoleID: 1, TrackerID: 1, OldStatusID: 1, NewStatusID: 2},
	}

	auth := New(src)
	ok, err := auth.StatusAllowed(context.Background(), user, src.issues[10], 2)
	if err != nil || !ok {
		t.Errorf("allowed transition rejected: %v %v", ok, err)
	}
	ok, err = auth.StatusAllowed(context.Background(), user, src.issues[10], 3)
	if err != nil || ok {
		t.Errorf("forbidden transition accepted: %v %v", ok, err)
	}
}

func statusIDs(statuses []*types.Status) []int64 {
	out := make([]int64, len(statuses))
	for i, s := range statuses {
		out[i] = s.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
