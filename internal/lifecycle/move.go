package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/edavis10/issuekit/internal/journal"
	"github.com/edavis10/issuekit/internal/notify"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/types"
)

// MoveOptions controls MoveOrCopy.
type MoveOptions struct {
	TargetProjectID int64

	// TrackerID forces a tracker in the target project. When nil the
	// issue keeps its own tracker; a copy whose tracker is disabled on
	// the target falls back to the target's first enabled tracker, while
	// a move is rejected unless every tracker in the subtree is enabled
	// there.
	TrackerID *int64

	// Copy duplicates the issues instead of moving them.
	Copy bool
	// CopySubtasks also copies each issue's descendants, preserving the
	// hierarchy. Ignored on moves (subtasks always follow a move).
	CopySubtasks bool
	// Link adds a copied_to relation from each source to its copy.
	Link bool

	// Attrs are bulk attribute overrides applied to each moved issue or
	// copy through the normal filtered edit path.
	Attrs map[string]string
	Notes string
}

// MoveResult reports the per-issue outcome of a batch move or copy. A failed
// issue does not stop the rest of the batch.
type MoveResult struct {
	// Done maps source issue id to the resulting issue: the moved issue
	// itself, or the fresh copy.
	Done map[int64]*types.Issue
	// Failed maps source issue id to the error that stopped it.
	Failed map[int64]error
}

// MoveOrCopy moves or copies a batch of issues to another project. Each
// issue runs in its own transaction so one failure rolls back only that
// issue; the outcome of every id is reported in the result.
func (s *Service) MoveOrCopy(ctx context.Context, user *types.User, issueIDs []int64, opts MoveOptions) (*MoveResult, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.MoveOrCopy", spanAttrs(0, user))
	defer span.End()

	target, err := s.store.GetProject(ctx, opts.TargetProjectID)
	if err != nil {
		return nil, fmt.Errorf("load target project %d: %w", opts.TargetProjectID, err)
	}

	result := &MoveResult{Done: map[int64]*types.Issue{}, Failed: map[int64]error{}}
	for _, id := range issueIDs {
		var outcome *types.Issue
		var events []notify.Event
		err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
			ops := s.begin(tx, user)
			var err error
			if opts.Copy {
				outcome, err = ops.copyIssue(ctx, id, target, opts)
			} else {
				outcome, err = ops.moveIssue(ctx, id, target, opts)
			}
			events = ops.events
			return err
		})
		if err != nil {
			result.Failed[id] = err
			continue
		}
		result.Done[id] = outcome
		for _, ev := range events {
			s.dispatch(ctx, ev)
		}
	}
	s.moves.Add(ctx, int64(len(result.Done)),
		metric.WithAttributes(attribute.Bool("copy", opts.Copy)))
	return result, nil
}

// moveIssue transfers one issue and its whole subtree to the target project.
func (ops *txOps) moveIssue(ctx context.Context, issueID int64, target *types.Project, opts MoveOptions) (*types.Issue, error) {
	tx, user := ops.tx, ops.user

	issue, err := ops.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	can, err := hasPermission(ctx, tx, user, issue.ProjectID, types.PermMoveIssues)
	if err != nil {
		return nil, err
	}
	if !can {
		return nil, fmt.Errorf("move issue %d: %w", issueID, ErrPermissionDenied)
	}

	subtree, err := tx.SubtreeIssues(ctx, issue.RootID, issue.Lft, issue.Rgt)
	if err != nil {
		return nil, err
	}

	// A move carries the whole subtree, so every member's tracker must be
	// enabled on the destination before anything is touched. One disabled
	// tracker rejects the move outright.
	for _, member := range subtree {
		trackerID := member.TrackerID
		if member.ID == issue.ID && opts.TrackerID != nil {
			trackerID = *opts.TrackerID
		}
		if !target.TrackerEnabled(trackerID) {
			return nil, fmt.Errorf("issue %d tracker %d: %w", member.ID, trackerID, ErrTrackerDisabled)
		}
	}

	var moved *types.Issue
	for _, member := range subtree {
		m, err := ops.loadIssue(ctx, member.ID)
		if err != nil {
			return nil, err
		}
		snap := journal.BeginChange(m, user, "")
		if err := ops.retarget(ctx, m, target, opts, m.ID == issue.ID); err != nil {
			return nil, err
		}
		m.UpdatedOn = ops.svc.now()
		if err := tx.UpdateIssue(ctx, m); err != nil {
			return nil, err
		}
		if err := tx.ReassignTimeEntries(ctx, m.ID, target.ID); err != nil {
			return nil, err
		}
		if err := ops.pruneCrossProjectRelations(ctx, m); err != nil {
			return nil, err
		}
		if j := snap.Commit(m, m.UpdatedOn); j != nil {
			if err := tx.InsertJournal(ctx, j); err != nil {
				return nil, err
			}
			if m.ID == issue.ID {
				ops.queueIssueEvent(ctx, notify.IssueMoved, m, j)
			}
		}
		if m.ID == issue.ID {
			moved = m
		}
	}

	if len(opts.Attrs) > 0 || opts.Notes != "" {
		return ops.update(ctx, issue.ID, Edit{Attrs: opts.Attrs, Notes: opts.Notes})
	}
	return moved, nil
}

// retarget rewrites one issue's project-dependent references for the target
// project: a disabled tracker falls back to the target's first (moves reject
// that case before getting here), the category is re-matched by name, and
// the version is kept only when shared with the target.
func (ops *txOps) retarget(ctx context.Context, issue *types.Issue, target *types.Project, opts MoveOptions, topLevel bool) error {
	issue.ProjectID = target.ID

	switch {
	case topLevel && opts.TrackerID != nil:
		if !target.TrackerEnabled(*opts.TrackerID) {
			return fmt.Errorf("tracker %d: %w", *opts.TrackerID, ErrTrackerDisabled)
		}
		issue.TrackerID = *opts.TrackerID
	case !target.TrackerEnabled(issue.TrackerID):
		if len(target.TrackerIDs) == 0 {
			return fmt.Errorf("tracker %d: %w", issue.TrackerID, ErrTrackerDisabled)
		}
		issue.TrackerID = target.TrackerIDs[0]
	}

	if issue.CategoryID != nil {
		cat, err := ops.tx.GetCategory(ctx, *issue.CategoryID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		issue.CategoryID = nil
		if err == nil {
			match, err := ops.tx.FindCategoryByName(ctx, target.ID, cat.Name)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if match != nil {
				issue.CategoryID = &match.ID
			}
		}
	}

	if issue.FixedVersionID != nil {
		version, err := ops.tx.GetVersion(ctx, *issue.FixedVersionID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err != nil || !version.SharedWith(target.ID) {
			issue.FixedVersionID = nil
		}
	}
	return nil
}

// pruneCrossProjectRelations deletes relations that now span projects when
// the cross-project setting forbids them.
func (ops *txOps) pruneCrossProjectRelations(ctx context.Context, issue *types.Issue) error {
	allowed, err := ops.crossProjectAllowed(ctx)
	if err != nil || allowed {
		return err
	}
	relations, err := ops.tx.RelationsOf(ctx, issue.ID)
	if err != nil {
		return err
	}
	for _, rel := range relations {
		other, err := ops.tx.GetIssue(ctx, rel.OtherIssueID(issue.ID))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if other.ProjectID != issue.ProjectID {
			if err := ops.tx.DeleteRelation(ctx, rel.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ops *txOps) crossProjectAllowed(ctx context.Context) (bool, error) {
	value, err := ops.tx.GetSetting(ctx, storage.SettingCrossProjectRelations)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// copyIssue duplicates one issue (optionally with its subtree) into the
// target project. The copy starts in the default status unless the source's
// status is explicitly requested through opts.Attrs.
func (ops *txOps) copyIssue(ctx context.Context, issueID int64, target *types.Project, opts MoveOptions) (*types.Issue, error) {
	tx, user := ops.tx, ops.user

	source, err := ops.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	can, err := hasPermission(ctx, tx, user, target.ID, types.PermAddIssues)
	if err != nil {
		return nil, err
	}
	if !can {
		return nil, fmt.Errorf("copy into project %d: %w", target.ID, ErrPermissionDenied)
	}

	copied, err := ops.duplicate(ctx, source, target, opts, nil)
	if err != nil {
		return nil, err
	}

	if len(opts.Attrs) > 0 || opts.Notes != "" {
		copied, err = ops.update(ctx, copied.ID, Edit{Attrs: opts.Attrs, Notes: opts.Notes})
		if err != nil {
			return nil, err
		}
	}
	ops.queueIssueEvent(ctx, notify.IssueCopied, copied, nil)
	return copied, nil
}

// duplicate inserts a copy of source under parentID (nil for a fresh root)
// and recurses over the source's children when subtask copying is on.
func (ops *txOps) duplicate(ctx context.Context, source *types.Issue, target *types.Project, opts MoveOptions, parentID *int64) (*types.Issue, error) {
	tx := ops.tx

	statuses, err := ops.auth.AllowedStatusesForCopy(ctx, source)
	if err != nil {
		return nil, err
	}
	// The copy starts in the default status; the source's status is only
	// reachable through an explicit attribute override.
	statusID := statuses[0].ID
	for _, st := range statuses {
		if st.IsDefault {
			statusID = st.ID
			break
		}
	}

	copied := &types.Issue{
		ProjectID:      target.ID,
		TrackerID:      source.TrackerID,
		StatusID:       statusID,
		PriorityID:     source.PriorityID,
		AuthorID:       ops.user.ID,
		AssignedToID:   source.AssignedToID,
		CategoryID:     source.CategoryID,
		FixedVersionID: source.FixedVersionID,
		Subject:        source.Subject,
		Description:    source.Description,
		StartDate:      source.StartDate,
		DueDate:        source.DueDate,
		DoneRatio:      source.DoneRatio,
		EstimatedHours: source.EstimatedHours,
		CustomValues:   cloneStrings(source.CustomValues),
	}
	if err := ops.retarget(ctx, copied, target, opts, parentID == nil); err != nil {
		return nil, err
	}

	copied.CreatedOn = ops.svc.now()
	copied.UpdatedOn = copied.CreatedOn
	if err := tx.InsertIssue(ctx, copied); err != nil {
		return nil, err
	}
	if len(copied.CustomValues) > 0 {
		if err := tx.SetCustomValues(ctx, copied.ID, copied.CustomValues); err != nil {
			return nil, err
		}
	}
	if parentID != nil {
		copied.ParentID = parentID
		if err := ops.attach(ctx, copied, *parentID); err != nil {
			return nil, err
		}
	}

	if opts.Link {
		rel := &types.Relation{
			IssueFromID: source.ID,
			IssueToID:   copied.ID,
			Type:        types.TypeCopiedTo,
		}
		if err := tx.InsertRelation(ctx, rel); err != nil {
			return nil, err
		}
	}

	if opts.CopySubtasks {
		children, err := tx.ChildIssues(ctx, source.ID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			full, err := ops.loadIssue(ctx, child.ID)
			if err != nil {
				return nil, err
			}
			if _, err := ops.duplicate(ctx, full, target, opts, &copied.ID); err != nil {
				return nil, err
			}
		}
		if len(children) > 0 && parentID == nil {
			// tree bounds moved while the children attached
			fresh, err := tx.GetIssue(ctx, copied.ID)
			if err != nil {
				return nil, err
			}
			changed, err := ops.recompute(ctx, fresh)
			if err != nil {
				return nil, err
			}
			if changed {
				fresh.UpdatedOn = ops.svc.now()
				if err := tx.UpdateIssue(ctx, fresh); err != nil {
					return nil, err
				}
			}
			fresh.CustomValues = copied.CustomValues
			copied = fresh
		}
	}
	return copied, nil
}
