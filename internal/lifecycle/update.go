package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/edavis10/issuekit/internal/journal"
	"github.com/edavis10/issuekit/internal/notify"
	"github.com/edavis10/issuekit/internal/relation"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/tree"
	"github.com/edavis10/issuekit/internal/types"
	"github.com/edavis10/issuekit/internal/workflow"
)

// txOps bundles the per-transaction collaborators of one operation.
type txOps struct {
	svc  *Service
	tx   storage.Tx
	auth *workflow.Authorizer
	user *types.User

	events []notify.Event
}

func (s *Service) begin(tx storage.Tx, user *types.User) *txOps {
	return &txOps{svc: s, tx: tx, auth: workflow.New(tx), user: user}
}

// Create makes a new issue on the project from the given edit. Defaults are
// filled before the edit applies: default status and priority, the first
// enabled tracker, and the category's default assignee when a category is
// chosen without an explicit assignee.
func (s *Service) Create(ctx context.Context, user *types.User, projectID int64, edit Edit) (*types.Issue, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Create", spanAttrs(0, user))
	defer span.End()

	var created *types.Issue
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		ops := s.begin(tx, user)
		issue, err := ops.create(ctx, projectID, edit)
		if err != nil {
			return err
		}
		created = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.updates.Add(ctx, 1)
	s.dispatch(ctx, notify.Event{
		Kind: notify.IssueCreated, Issue: created, Actor: user, OccurredAt: s.now(),
	})
	return created, nil
}

func (ops *txOps) create(ctx context.Context, projectID int64, edit Edit) (*types.Issue, error) {
	tx, user := ops.tx, ops.user

	can, err := hasPermission(ctx, tx, user, projectID, types.PermAddIssues)
	if err != nil {
		return nil, err
	}
	if !can {
		return nil, fmt.Errorf("add issues on project %d: %w", projectID, ErrPermissionDenied)
	}

	project, err := tx.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", projectID, err)
	}
	status, err := tx.DefaultStatus(ctx)
	if err != nil {
		return nil, err
	}
	priority, err := tx.DefaultPriority(ctx)
	if err != nil {
		return nil, err
	}

	issue := &types.Issue{
		ProjectID:    projectID,
		StatusID:     status.ID,
		PriorityID:   priority.ID,
		AuthorID:     user.ID,
		CustomValues: map[int64][]string{},
	}
	if len(project.TrackerIDs) > 0 {
		issue.TrackerID = project.TrackerIDs[0]
	}

	attrs, custom, err := filterAttributes(ctx, ops.auth, tx, user, issue, &edit, true)
	if err != nil {
		return nil, err
	}
	errs := types.ValidationErrors{}
	applyAttributes(issue, attrs, errs)
	for id, values := range custom {
		issue.CustomValues[id] = values
	}

	// Picking a category without an assignee adopts the category's default.
	if issue.CategoryID != nil && issue.AssignedToID == nil {
		cat, err := tx.GetCategory(ctx, *issue.CategoryID)
		if err == nil && cat.AssignedToID != nil {
			issue.AssignedToID = cat.AssignedToID
		}
	}

	if err := ops.validate(ctx, issue, errs); err != nil {
		return nil, err
	}

	issue.CreatedOn = ops.svc.now()
	issue.UpdatedOn = issue.CreatedOn
	parentID := issue.ParentID
	issue.ParentID = nil
	if err := tx.InsertIssue(ctx, issue); err != nil {
		return nil, err
	}
	if len(issue.CustomValues) > 0 {
		if err := tx.SetCustomValues(ctx, issue.ID, issue.CustomValues); err != nil {
			return nil, err
		}
	}
	if parentID != nil {
		issue.ParentID = parentID
		if err := ops.attach(ctx, issue, *parentID); err != nil {
			return nil, err
		}
		if err := ops.aggregateUp(ctx, parentID); err != nil {
			return nil, err
		}
	}
	return issue, nil
}

// attach places a freshly inserted root issue under a parent.
func (ops *txOps) attach(ctx context.Context, issue *types.Issue, parentID int64) error {
	parent, err := ops.tx.GetIssue(ctx, parentID)
	if err != nil {
		return fmt.Errorf("load parent %d: %w", parentID, err)
	}
	nodes, err := ops.treeRows(ctx, parent.RootID, issue.RootID)
	if err != nil {
		return err
	}
	forest := tree.NewForest(nodes)
	updates, err := forest.Reparent(issue.ID, &parentID)
	if err != nil {
		return err
	}
	if err := ops.tx.ApplyTreeUpdates(ctx, updates); err != nil {
		return err
	}
	ops.refreshBounds(issue, forest)
	return nil
}

// Update applies one edit to an existing issue inside a single transaction:
// workflow filtering, validation, persistence with the optimistic lock, tree
// renumbering, date cascades, parent aggregates, journaling, and the
// duplicate-close cascade when the edit closes the issue.
func (s *Service) Update(ctx context.Context, user *types.User, issueID int64, edit Edit) (*types.Issue, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Update", spanAttrs(issueID, user))
	defer span.End()

	var updated *types.Issue
	var events []notify.Event
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		ops := s.begin(tx, user)
		issue, err := ops.update(ctx, issueID, edit)
		if err != nil {
			return err
		}
		updated = issue
		events = ops.events
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.updates.Add(ctx, 1)
	for _, ev := range events {
		s.dispatch(ctx, ev)
	}
	return updated, nil
}

func (ops *txOps) update(ctx context.Context, issueID int64, edit Edit) (*types.Issue, error) {
	tx, user := ops.tx, ops.user

	issue, err := ops.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if edit.LockVersion != nil && *edit.LockVersion != issue.LockVersion {
		return nil, storage.ErrStaleObject
	}
	can, err := hasPermission(ctx, tx, user, issue.ProjectID, types.PermEditIssues)
	if err != nil {
		return nil, err
	}
	if !can {
		return nil, fmt.Errorf("edit issue %d: %w", issueID, ErrPermissionDenied)
	}

	snap := journal.BeginChange(issue, user, edit.Notes)
	before := struct {
		parentID *int64
		statusID int64
		start    *types.Date
		due      *types.Date
	}{issue.ParentID, issue.StatusID, issue.StartDate, issue.DueDate}

	attrs, custom, err := filterAttributes(ctx, ops.auth, tx, user, issue, &edit, false)
	if err != nil {
		return nil, err
	}
	errs := types.ValidationErrors{}
	applyAttributes(issue, attrs, errs)
	for id, values := range custom {
		issue.CustomValues[id] = values
	}
	if err := ops.validate(ctx, issue, errs); err != nil {
		return nil, err
	}

	// A closing transition on a leaf adopts the status's default ratio.
	newStatus, err := tx.GetStatus(ctx, issue.StatusID)
	if err != nil {
		return nil, err
	}
	if issue.StatusID != before.statusID && issue.Leaf() && newStatus.DefaultDoneRatio != nil {
		issue.DoneRatio = *newStatus.DefaultDoneRatio
	}

	issue.UpdatedOn = ops.svc.now()
	if err := tx.UpdateIssue(ctx, issue); err != nil {
		return nil, err
	}
	if len(custom) > 0 {
		if err := tx.SetCustomValues(ctx, issue.ID, issue.CustomValues); err != nil {
			return nil, err
		}
	}

	if !sameID(before.parentID, issue.ParentID) {
		if err := ops.reparent(ctx, issue, before.parentID); err != nil {
			return nil, err
		}
	} else if err := ops.aggregateUp(ctx, issue.ParentID); err != nil {
		return nil, err
	}

	if !sameDate(before.start, issue.StartDate) || !sameDate(before.due, issue.DueDate) {
		if err := ops.rescheduleFollowing(ctx, issue, map[int64]bool{issue.ID: true}); err != nil {
			return nil, err
		}
	}

	j := snap.Commit(issue, issue.UpdatedOn)
	if j != nil {
		if err := tx.InsertJournal(ctx, j); err != nil {
			return nil, err
		}
	}

	if issue.StatusID != before.statusID && newStatus.IsClosed {
		if err := ops.closeDuplicates(ctx, issue, map[int64]bool{issue.ID: true}); err != nil {
			return nil, err
		}
	}

	if j != nil {
		ops.queueIssueEvent(ctx, notify.IssueUpdated, issue, j)
	}
	return issue, nil
}

// reparent applies a parent change: renumber both trees, refresh the issue's
// bounds, and recompute aggregates on both the old and new ancestor chains.
func (ops *txOps) reparent(ctx context.Context, issue *types.Issue, oldParentID *int64) error {
	oldRoot := issue.RootID
	newRoot := oldRoot
	if issue.ParentID != nil {
		parent, err := ops.tx.GetIssue(ctx, *issue.ParentID)
		if err != nil {
			return fmt.Errorf("load parent %d: %w", *issue.ParentID, err)
		}
		if parent.ID == issue.ID {
			return validationError(types.AttrParentID, "is invalid")
		}
		newRoot = parent.RootID
	}
	nodes, err := ops.treeRows(ctx, oldRoot, newRoot)
	if err != nil {
		return err
	}
	forest := tree.NewForest(nodes)
	updates, err := forest.Reparent(issue.ID, issue.ParentID)
	if errors.Is(err, tree.ErrCyclicParent) {
		return validationError(types.AttrParentID, "is invalid")
	}
	if err != nil {
		return err
	}
	if err := ops.tx.ApplyTreeUpdates(ctx, updates); err != nil {
		return err
	}
	ops.refreshBounds(issue, forest)

	if err := ops.aggregateUp(ctx, oldParentID); err != nil {
		return err
	}
	return ops.aggregateUp(ctx, issue.ParentID)
}

// rescheduleFollowing pushes every successor of the issue whose start date
// now violates its soonest start. Duration is preserved; the cascade carries
// a visited set so relation cycles cannot loop.
func (ops *txOps) rescheduleFollowing(ctx context.Context, issue *types.Issue, visited map[int64]bool) error {
	outgoing, err := ops.tx.RelationsFrom(ctx, issue.ID)
	if err != nil {
		return err
	}
	for _, rel := range outgoing {
		if rel.Type != types.TypePrecedes || visited[rel.IssueToID] {
			continue
		}
		visited[rel.IssueToID] = true
		successor, err := ops.tx.GetIssue(ctx, rel.IssueToID)
		if err != nil {
			return fmt.Errorf("load successor %d: %w", rel.IssueToID, err)
		}
		soonest, err := ops.soonestStart(ctx, successor)
		if err != nil {
			return err
		}
		if soonest == nil {
			continue
		}
		start, due, changed := relation.Reschedule(successor, *soonest)
		if !changed {
			continue
		}
		successor.StartDate = start
		successor.DueDate = due
		successor.UpdatedOn = ops.svc.now()
		if err := ops.tx.UpdateIssue(ctx, successor); err != nil {
			return err
		}
		if err := ops.aggregateUp(ctx, successor.ParentID); err != nil {
			return err
		}
		if err := ops.rescheduleFollowing(ctx, successor, visited); err != nil {
			return err
		}
	}
	return nil
}

// soonestStart computes the earliest permissible start date of an issue from
// its dated predecessors.
func (ops *txOps) soonestStart(ctx context.Context, issue *types.Issue) (*types.Date, error) {
	incoming, err := ops.tx.RelationsTo(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	predecessors := make(map[int64]*types.Issue)
	for _, rel := range incoming {
		if rel.Type != types.TypePrecedes {
			continue
		}
		pred, err := ops.tx.GetIssue(ctx, rel.IssueFromID)
		if err != nil {
			return nil, fmt.Errorf("load predecessor %d: %w", rel.IssueFromID, err)
		}
		predecessors[pred.ID] = pred
	}
	return relation.SoonestStart(incoming, predecessors), nil
}

// closeDuplicates closes every open issue that duplicates the given closed
// issue, journaling each status change, and follows duplicates of duplicates
// transitively. The visited set terminates cycles.
func (ops *txOps) closeDuplicates(ctx context.Context, issue *types.Issue, visited map[int64]bool) error {
	incoming, err := ops.tx.RelationsTo(ctx, issue.ID)
	if err != nil {
		return err
	}
	for _, dupID := range relation.DuplicateIDs(incoming, issue.ID) {
		if visited[dupID] {
			continue
		}
		visited[dupID] = true
		dup, err := ops.loadIssue(ctx, dupID)
		if err != nil {
			return fmt.Errorf("load duplicate %d: %w", dupID, err)
		}
		status, err := ops.tx.GetStatus(ctx, dup.StatusID)
		if err != nil {
			return err
		}
		if status.IsClosed {
			continue
		}
		snap := journal.BeginChange(dup, ops.user, "")
		dup.StatusID = issue.StatusID
		dup.UpdatedOn = ops.svc.now()
		if err := ops.tx.UpdateIssue(ctx, dup); err != nil {
			return err
		}
		if j := snap.Commit(dup, dup.UpdatedOn); j != nil {
			if err := ops.tx.InsertJournal(ctx, j); err != nil {
				return err
			}
			ops.queueIssueEvent(ctx, notify.IssueUpdated, dup, j)
		}
		if err := ops.closeDuplicates(ctx, dup, visited); err != nil {
			return err
		}
	}
	return nil
}

// validate runs intrinsic and cross-entity checks after an edit has been
// applied, accumulating into errs.
func (ops *txOps) validate(ctx context.Context, issue *types.Issue, errs types.ValidationErrors) error {
	if verr := issue.Validate(); verr != nil {
		var ve types.ValidationErrors
		if errors.As(verr, &ve) {
			errs.Merge(ve)
		}
	}

	project, err := ops.tx.GetProject(ctx, issue.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %d: %w", issue.ProjectID, err)
	}
	if issue.TrackerID == 0 || !project.TrackerEnabled(issue.TrackerID) {
		errs.Add(types.AttrTrackerID, "is not included in the list")
	}
	if issue.CategoryID != nil {
		cat, err := ops.tx.GetCategory(ctx, *issue.CategoryID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && cat.ProjectID != issue.ProjectID) {
			errs.Add(types.AttrCategoryID, "is not included in the list")
		} else if err != nil {
			return err
		}
	}
	if issue.FixedVersionID != nil {
		version, err := ops.tx.GetVersion(ctx, *issue.FixedVersionID)
		if errors.Is(err, storage.ErrNotFound) {
			errs.Add(types.AttrFixedVersionID, "is not included in the list")
		} else if err != nil {
			return err
		} else if !version.SharedWith(issue.ProjectID) {
			errs.Add(types.AttrFixedVersionID, "is not included in the list")
		}
	}
	if issue.StartDate != nil && issue.ID != 0 {
		soonest, err := ops.soonestStart(ctx, issue)
		if err != nil {
			return err
		}
		if soonest != nil && issue.StartDate.Before(*soonest) {
			errs.Add(types.AttrStartDate, fmt.Sprintf("cannot be earlier than %s because of preceding issues", soonest))
		}
	}
	if err := checkRequiredFields(ctx, ops.auth, ops.user, issue, errs); err != nil {
		return err
	}
	if errs.Any() {
		return errs
	}
	return nil
}

// loadIssue fetches an issue together with its custom values.
func (ops *txOps) loadIssue(ctx context.Context, id int64) (*types.Issue, error) {
	issue, err := ops.tx.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	values, err := ops.tx.CustomValues(ctx, id)
	if err != nil {
		return nil, err
	}
	issue.CustomValues = values
	return issue, nil
}

// treeRows loads the nested-set rows of one or two trees.
func (ops *txOps) treeRows(ctx context.Context, roots ...int64) ([]types.TreeNode, error) {
	seen := make(map[int64]bool)
	var rows []types.TreeNode
	for _, root := range roots {
		if seen[root] {
			continue
		}
		seen[root] = true
		nodes, err := ops.tx.TreeNodes(ctx, root)
		if err != nil {
			return nil, err
		}
		rows = append(rows, nodes...)
	}
	return rows, nil
}

func (ops *txOps) refreshBounds(issue *types.Issue, forest *tree.Forest) {
	if n := forest.Node(issue.ID); n != nil {
		issue.RootID, issue.Lft, issue.Rgt = n.RootID, n.Lft, n.Rgt
	}
}

func (ops *txOps) queueIssueEvent(ctx context.Context, kind notify.Kind, issue *types.Issue, j *types.Journal) {
	recipients, err := notify.Recipients(ctx, ops.tx, issue)
	if err != nil {
		recipients = nil
	}
	ops.events = append(ops.events, notify.Event{
		Kind:       kind,
		Issue:      issue,
		Journal:    j,
		Actor:      ops.user,
		Recipients: recipients,
		OccurredAt: ops.svc.now(),
	})
}

func (s *Service) dispatch(ctx context.Context, event notify.Event) {
	_ = s.notifier.Notify(ctx, event)
}

func validationError(field, message string) error {
	errs := types.ValidationErrors{}
	errs.Add(field, message)
	return errs
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameDate(a, b *types.Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
