// Package workflow computes role-and-state-dependent authorization: which
// statuses an issue may move to next, which fields a user may edit, and
// which attribute keys survive filtering of a raw edit.
//
// Disallowed attribute edits never raise errors. Unknown or forbidden keys
// are silently dropped, and a forbidden status transition resolves to "no
// status change".
package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/edavis10/issuekit/internal/relation"
	"github.com/edavis10/issuekit/internal/types"
)

// Source is the slice of the storage surface the authorizer consults.
// Both storage.Store and storage.Tx satisfy it.
type Source interface {
	GetIssue(ctx context.Context, id int64) (*types.Issue, error)
	GetStatus(ctx context.Context, id int64) (*types.Status, error)
	ListStatuses(ctx context.Context) ([]*types.Status, error)
	DefaultStatus(ctx context.Context) (*types.Status, error)
	RolesForUser(ctx context.Context, userID, projectID int64) ([]*types.Role, error)
	ListRoles(ctx context.Context) ([]*types.Role, error)
	IsGroup(ctx context.Context, principalID int64) (bool, error)
	UserInGroup(ctx context.Context, userID, groupID int64) (bool, error)
	TransitionRules(ctx context.Context, trackerID, oldStatusID int64, roleIDs []int64) ([]*types.WorkflowRule, error)
	FieldRules(ctx context.Context, trackerID, statusID int64, roleIDs []int64) ([]*types.FieldRule, error)
	RelationsTo(ctx context.Context, issueID int64) ([]*types.Relation, error)
}

// Authorizer answers workflow questions against the transition and field
// rule tables.
type Authorizer struct {
	src Source
}

// New builds an authorizer over the given source.
func New(src Source) *Authorizer {
	return &Authorizer{src: src}
}

// AllowedStatuses returns the ordered set of statuses the user may move the
// issue to: the union across the user's roles of the transition table
// entries for (tracker, current status), filtered by the author/assignee
// gates, plus the current status itself, de-duplicated and sorted by
// position. Administrators see every status reachable from the current
// status in the tracker's graph, gates ignored. Closed statuses are removed
// while an open "blocks" predecessor exists.
func (a *Authorizer) AllowedStatuses(ctx context.Context, user *types.User, issue *types.Issue) ([]*types.Status, error) {
	candidates := map[int64]bool{issue.StatusID: true}

	if user.Admin {
		rules, err := a.src.TransitionRules(ctx, issue.TrackerID, issue.StatusID, nil)
		if err != nil {
			return nil, err
		}
		for _, r := range rules {
			candidates[r.NewStatusID] = true
		}
	} else {
		roles, err := a.src.RolesForUser(ctx, user.ID, issue.ProjectID)
		if err != nil {
			return nil, err
		}
		if len(roles) > 0 {
			rules, err := a.src.TransitionRules(ctx, issue.TrackerID, issue.StatusID, types.RoleIDs(roles))
			if err != nil {
				return nil, err
			}
			isAuthor := issue.AuthorID == user.ID
			var isAssignee bool
			if hasGatedRule(rules, func(r *types.WorkflowRule) bool { return r.Assignee }) {
				isAssignee, err = a.IsAssignee(ctx, user, issue)
				if err != nil {
					return nil, err
				}
			}
			for _, r := range rules {
				if r.Author && !isAuthor {
					continue
				}
				if r.Assignee && !isAssignee {
					continue
				}
				candidates[r.NewStatusID] = true
			}
		}
	}

	statuses, err := a.resolveStatuses(ctx, candidates)
	if err != nil {
		return nil, err
	}

	blocked, err := a.blocked(ctx, issue)
	if err != nil {
		return nil, err
	}
	if blocked {
		open := statuses[:0]
		for _, s := range statuses {
			if !s.IsClosed || s.ID == issue.StatusID {
				open = append(open, s)
			}
		}
		statuses = open
	}
	return statuses, nil
}

// AllowedStatusesForCopy returns the statuses assignable to a copy of the
// source issue: the default status and the source's own status. A fresh
// copy has no workflow history, so the transition table does not apply.
func (a *Authorizer) AllowedStatusesForCopy(ctx context.Context, source *types.Issue) ([]*types.Status, error) {
	def, err := a.src.DefaultStatus(ctx)
	if err != nil {
		return nil, err
	}
	candidates := map[int64]bool{def.ID: true, source.StatusID: true}
	return a.resolveStatuses(ctx, candidates)
}

// StatusAllowed reports whether the user may move the issue to statusID.
func (a *Authorizer) StatusAllowed(ctx context.Context, user *types.User, issue *types.Issue, statusID int64) (bool, error) {
	statuses, err := a.AllowedStatuses(ctx, user, issue)
	if err != nil {
		return false, err
	}
	for _, s := range statuses {
		if s.ID == statusID {
			return true, nil
		}
	}
	return false, nil
}

// FieldRuleByAttribute returns the effective per-field rule for the user on
// the issue's (tracker, status). A rule binds only when every role the user
// holds carries a rule for that field; identical rules apply as-is, and a
// mix of required and readonly resolves to required.
func (a *Authorizer) FieldRuleByAttribute(ctx context.Context, user *types.User, issue *types.Issue) (map[string]types.FieldRuleKind, error) {
	var roles []*types.Role
	var err error
	if user.Admin {
		roles, err = a.src.ListRoles(ctx)
	} else {
		roles, err = a.src.RolesForUser(ctx, user.ID, issue.ProjectID)
	}
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return map[string]types.FieldRuleKind{}, nil
	}

	rules, err := a.src.FieldRules(ctx, issue.TrackerID, issue.StatusID, types.RoleIDs(roles))
	if err != nil {
		return nil, err
	}
	byField := make(map[string][]types.FieldRuleKind)
	for _, r := range rules {
		byField[r.Field] = append(byField[r.Field], r.Rule)
	}

	result := make(map[string]types.FieldRuleKind)
	for field, kinds := range byField {
		// A role without a rule leaves the field unrestricted for that
		// role, which unrestricts it for the user.
		if len(kinds) < len(roles) {
			continue
		}
		uniform := true
		for _, k := range kinds[1:] {
			if k != kinds[0] {
				uniform = false
				break
			}
		}
		if uniform {
			result[field] = kinds[0]
		} else {
			result[field] = types.RuleRequired
		}
	}
	return result, nil
}

// ReadOnlyFields returns the field names the user cannot edit on the issue.
func (a *Authorizer) ReadOnlyFields(ctx context.Context, user *types.User, issue *types.Issue) (map[string]bool, error) {
	return a.fieldsWithRule(ctx, user, issue, types.RuleReadonly)
}

// RequiredFields returns the field names that must be present for the user
// to save the issue.
func (a *Authorizer) RequiredFields(ctx context.Context, user *types.User, issue *types.Issue) (map[string]bool, error) {
	return a.fieldsWithRule(ctx, user, issue, types.RuleRequired)
}

func (a *Authorizer) fieldsWithRule(ctx context.Context, user *types.User, issue *types.Issue, kind types.FieldRuleKind) (map[string]bool, error) {
	rules, err := a.FieldRuleByAttribute(ctx, user, issue)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for field, k := range rules {
		if k == kind {
			out[field] = true
		}
	}
	return out, nil
}

// IsAssignee reports whether the user is the issue's assignee, either
// directly or through group membership.
func (a *Authorizer) IsAssignee(ctx context.Context, user *types.User, issue *types.Issue) (bool, error) {
	if issue.AssignedToID == nil {
		return false, nil
	}
	if *issue.AssignedToID == user.ID {
		return true, nil
	}
	group, err := a.src.IsGroup(ctx, *issue.AssignedToID)
	if err != nil || !group {
		return false, err
	}
	return a.src.UserInGroup(ctx, user.ID, *issue.AssignedToID)
}

// CustomFieldKey renders a custom field id as the field-rule key used in
// the workflow tables.
func CustomFieldKey(customFieldID int64) string {
	return strconv.FormatInt(customFieldID, 10)
}

func (a *Authorizer) blocked(ctx context.Context, issue *types.Issue) (bool, error) {
	incoming, err := a.src.RelationsTo(ctx, issue.ID)
	if err != nil {
		return false, err
	}
	blockers := make(map[int64]*types.Issue)
	closedByStatus := make(map[int64]bool)
	for _, r := range incoming {
		if r.Type != types.TypeBlocks {
			continue
		}
		blocker, err := a.src.GetIssue(ctx, r.IssueFromID)
		if err != nil {
			return false, fmt.Errorf("load blocking issue %d: %w", r.IssueFromID, err)
		}
		blockers[blocker.ID] = blocker
		if _, ok := closedByStatus[blocker.StatusID]; !ok {
			st, err := a.src.GetStatus(ctx, blocker.StatusID)
			if err != nil {
				return false, err
			}
			closedByStatus[st.ID] = st.IsClosed
		}
	}
	return relation.Blocked(incoming, blockers, func(statusID int64) bool { return closedByStatus[statusID] }), nil
}

func (a *Authorizer) resolveStatuses(ctx context.Context, ids map[int64]bool) ([]*types.Status, error) {
	out := make([]*types.Status, 0, len(ids))
	for id := range ids {
		st, err := a.src.GetStatus(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load status %d: %w", id, err)
		}
		out = append(out, st)
	}
	types.SortStatuses(out)
	return out, nil
}

func hasGatedRule(rules []*types.WorkflowRule, gate func(*types.WorkflowRule) bool) bool {
	for _, r := range rules {
		if gate(r) {
			return true
		}
	}
	return false
}
