package lifecycle

import (
	"context"
	"fmt"

	"github.com/edavis10/issuekit/internal/notify"
	"github.com/edavis10/issuekit/internal/relation"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/tree"
	"github.com/edavis10/issuekit/internal/types"
)

// ErrCrossProjectRelation is returned when a relation would link issues of
// different projects while the cross-project setting forbids it.
var ErrCrossProjectRelation = fmt.Errorf("cross-project relations are disabled")

// AddRelation validates and persists a relation between two issues. A
// "follows" input is stored as "precedes" with swapped endpoints; adding a
// precedes edge reschedules the successor chain when its dates now violate
// the soonest start.
func (s *Service) AddRelation(ctx context.Context, user *types.User, rel *types.Relation) (*types.Relation, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.AddRelation", spanAttrs(rel.IssueFromID, user))
	defer span.End()

	var events []notify.Event
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		ops := s.begin(tx, user)
		if err := ops.addRelation(ctx, rel); err != nil {
			return err
		}
		events = ops.events
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		s.dispatch(ctx, ev)
	}
	return rel, nil
}

func (ops *txOps) addRelation(ctx context.Context, rel *types.Relation) error {
	tx := ops.tx

	relation.Canonicalize(rel)

	from, err := tx.GetIssue(ctx, rel.IssueFromID)
	if err != nil {
		return fmt.Errorf("load issue %d: %w", rel.IssueFromID, err)
	}
	to, err := tx.GetIssue(ctx, rel.IssueToID)
	if err != nil {
		return fmt.Errorf("load issue %d: %w", rel.IssueToID, err)
	}

	can, err := hasPermission(ctx, tx, ops.user, from.ProjectID, types.PermEditIssues)
	if err != nil {
		return err
	}
	if !can {
		return fmt.Errorf("relate issue %d: %w", from.ID, ErrPermissionDenied)
	}

	if relation.CrossProject(rel, from, to) {
		allowed, err := ops.crossProjectAllowed(ctx)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrCrossProjectRelation
		}
	}

	existing, err := ops.relationsTouching(ctx, rel.IssueFromID, rel.IssueToID)
	if err != nil {
		return err
	}
	if err := relation.ValidateNew(rel, existing); err != nil {
		return err
	}
	if rel.Type == types.TypePrecedes || rel.Type == types.TypeBlocks || rel.Type == types.TypeDuplicates {
		edges, err := ops.typedEdges(ctx, rel.Type, rel.IssueToID)
		if err != nil {
			return err
		}
		if relation.WouldCycle(edges, rel.IssueFromID, rel.IssueToID) {
			return relation.ErrCircularDependency
		}
	}

	if err := tx.InsertRelation(ctx, rel); err != nil {
		return err
	}

	if rel.Type == types.TypePrecedes {
		if err := ops.rescheduleFollowing(ctx, from, map[int64]bool{from.ID: true}); err != nil {
			return err
		}
	}

	ops.events = append(ops.events, notify.Event{
		Kind: notify.RelationAdded, Issue: from, Relation: rel,
		Actor: ops.user, OccurredAt: ops.svc.now(),
	})
	return nil
}

// RemoveRelation deletes a relation by id. Dates already pushed by a
// precedes edge stay where they are.
func (s *Service) RemoveRelation(ctx context.Context, user *types.User, relationID int64) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.RemoveRelation", spanAttrs(0, user))
	defer span.End()

	var event *notify.Event
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		rel, err := tx.GetRelation(ctx, relationID)
		if err != nil {
			return err
		}
		from, err := tx.GetIssue(ctx, rel.IssueFromID)
		if err != nil {
			return err
		}
		can, err := hasPermission(ctx, tx, user, from.ProjectID, types.PermEditIssues)
		if err != nil {
			return err
		}
		if !can {
			return fmt.Errorf("unrelate issue %d: %w", from.ID, ErrPermissionDenied)
		}
		if err := tx.DeleteRelation(ctx, relationID); err != nil {
			return err
		}
		event = &notify.Event{
			Kind: notify.RelationRemoved, Issue: from, Relation: rel,
			Actor: user, OccurredAt: s.now(),
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, *event)
	return nil
}

// Delete removes an issue and its whole subtree. Time entries of the
// deleted issues are detached, not destroyed; surviving ancestors are
// recomputed.
func (s *Service) Delete(ctx context.Context, user *types.User, issueID int64) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Delete", spanAttrs(issueID, user))
	defer span.End()

	return s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		ops := s.begin(tx, user)
		issue, err := tx.GetIssue(ctx, issueID)
		if err != nil {
			return err
		}
		can, err := hasPermission(ctx, tx, user, issue.ProjectID, types.PermEditIssues)
		if err != nil {
			return err
		}
		if !can {
			return fmt.Errorf("delete issue %d: %w", issueID, ErrPermissionDenied)
		}

		nodes, err := tx.TreeNodes(ctx, issue.RootID)
		if err != nil {
			return err
		}
		forest := tree.NewForest(nodes)
		removed, updates, err := forest.Remove(issueID)
		if err != nil {
			return err
		}
		// time entries survive: DeleteIssues detaches them from the rows
		if err := tx.DeleteIssues(ctx, removed); err != nil {
			return err
		}
		if err := tx.ApplyTreeUpdates(ctx, updates); err != nil {
			return err
		}
		return ops.aggregateUp(ctx, issue.ParentID)
	})
}

// relationsTouching loads every relation attached to either issue.
func (ops *txOps) relationsTouching(ctx context.Context, ids ...int64) ([]*types.Relation, error) {
	seen := make(map[int64]bool)
	var out []*types.Relation
	for _, id := range ids {
		rels, err := ops.tx.RelationsOf(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	return out, nil
}

// typedEdges walks the directed graph of one relation type reachable from
// start and returns the collected edges.
func (ops *txOps) typedEdges(ctx context.Context, t types.RelationType, start int64) ([]*types.Relation, error) {
	visited := make(map[int64]bool)
	queue := []int64{start}
	var edges []*types.Relation
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		outgoing, err := ops.tx.RelationsFrom(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, rel := range outgoing {
			if rel.Type != t {
				continue
			}
			edges = append(edges, rel)
			queue = append(queue, rel.IssueToID)
		}
	}
	return edges, nil
}
