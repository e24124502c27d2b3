package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/types"
	"github.com/edavis10/issuekit/internal/ui"
)

func parseIssueID(arg string) (int64, error) {
	arg = strings.TrimPrefix(arg, "#")
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid issue id %q", arg)
	}
	return id, nil
}

func parseIssueIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseIssueID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// resolveProject accepts a numeric id or a project identifier.
func resolveProject(ctx context.Context, r storage.Reader, arg string) (*types.Project, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return r.GetProject(ctx, id)
	}
	return r.FindProjectByIdentifier(ctx, arg)
}

func resolveStatus(ctx context.Context, r storage.Reader, name string) (*types.Status, error) {
	statuses, err := r.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range statuses {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown status %q", name)
}

func resolvePriority(ctx context.Context, r storage.Reader, name string) (*types.Priority, error) {
	priorities, err := r.ListPriorities(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range priorities {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown priority %q", name)
}

func resolveTracker(ctx context.Context, r storage.Reader, name string) (*types.Tracker, error) {
	trackers, err := r.ListTrackers(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range trackers {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unknown tracker %q", name)
}

// loadRefs gathers the lookup tables display code needs. User names load
// lazily only for the ids that appear in the rendered issues.
func loadRefs(ctx context.Context, r storage.Reader, issues ...*types.Issue) (*ui.Refs, error) {
	refs := &ui.Refs{
		Statuses:   map[int64]*types.Status{},
		Priorities: map[int64]*types.Priority{},
		Trackers:   map[int64]*types.Tracker{},
		Users:      map[int64]string{},
		Projects:   map[int64]*types.Project{},
		Fields:     map[int64]*types.CustomField{},
	}
	statuses, err := r.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range statuses {
		refs.Statuses[s.ID] = s
	}
	priorities, err := r.ListPriorities(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range priorities {
		refs.Priorities[p.ID] = p
	}
	trackers, err := r.ListTrackers(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range trackers {
		refs.Trackers[t.ID] = t
	}
	fields, err := r.ListCustomFields(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		refs.Fields[f.ID] = f
	}
	for _, issue := range issues {
		loadUserName(ctx, r, refs, issue.AuthorID)
		if issue.AssignedToID != nil {
			loadUserName(ctx, r, refs, *issue.AssignedToID)
		}
	}
	return refs, nil
}

func loadUserName(ctx context.Context, r storage.Reader, refs *ui.Refs, id int64) {
	if _, ok := refs.Users[id]; ok {
		return
	}
	if u, err := r.GetUser(ctx, id); err == nil {
		refs.Users[id] = u.Name
	}
}

// parseCustomFlags turns repeated --cf id=value flags into the Edit custom
// map. Repeating the same id accumulates values for multi-valued fields.
func parseCustomFlags(flags []string) (map[int64][]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[int64][]string, len(flags))
	for _, flag := range flags {
		id64, value, ok := strings.Cut(flag, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --cf %q (want id=value)", flag)
		}
		id, err := strconv.ParseInt(id64, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid custom field id %q", id64)
		}
		out[id] = append(out[id], value)
	}
	return out, nil
}
