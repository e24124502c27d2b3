package lifecycle

import (
	"context"
	"fmt"
	"math"

	"github.com/edavis10/issuekit/internal/types"
)

// aggregateUp recomputes the derived columns of every ancestor starting at
// parentID: priority is the most urgent among children, dates span the
// children's dates, done ratio is the estimate-weighted mean over the leaf
// descendants, and the estimate is the sum over leaves.
func (ops *txOps) aggregateUp(ctx context.Context, parentID *int64) error {
	for parentID != nil {
		parent, err := ops.tx.GetIssue(ctx, *parentID)
		if err != nil {
			return fmt.Errorf("load ancestor %d: %w", *parentID, err)
		}
		changed, err := ops.recompute(ctx, parent)
		if err != nil {
			return err
		}
		if changed {
			parent.UpdatedOn = ops.svc.now()
			if err := ops.tx.UpdateIssue(ctx, parent); err != nil {
				return err
			}
		}
		parentID = parent.ParentID
	}
	return nil
}

func (ops *txOps) recompute(ctx context.Context, parent *types.Issue) (bool, error) {
	children, err := ops.tx.ChildIssues(ctx, parent.ID)
	if err != nil {
		return false, err
	}
	if len(children) == 0 {
		return false, nil
	}

	changed := false

	priorityID, err := ops.maxPriority(ctx, children)
	if err != nil {
		return false, err
	}
	if priorityID != 0 && priorityID != parent.PriorityID {
		parent.PriorityID = priorityID
		changed = true
	}

	var start, due *types.Date
	for _, c := range children {
		if c.StartDate != nil && (start == nil || c.StartDate.Before(*start)) {
			start = c.StartDate
		}
		if c.DueDate != nil && (due == nil || c.DueDate.After(*due)) {
			due = c.DueDate
		}
	}
	if !sameDate(parent.StartDate, start) {
		parent.StartDate = start
		changed = true
	}
	if !sameDate(parent.DueDate, due) {
		parent.DueDate = due
		changed = true
	}

	leaves, err := ops.tx.LeafIssues(ctx, parent.RootID, parent.Lft, parent.Rgt)
	if err != nil {
		return false, err
	}
	ratio, estimate, err := ops.leafProgress(ctx, parent, leaves)
	if err != nil {
		return false, err
	}
	if ratio != parent.DoneRatio {
		parent.DoneRatio = ratio
		changed = true
	}
	if !sameHours(parent.EstimatedHours, estimate) {
		parent.EstimatedHours = estimate
		changed = true
	}
	return changed, nil
}

// leafProgress computes the estimate-weighted done ratio and the summed
// estimate over the parent's leaf descendants. A leaf without an estimate
// weighs in at the average estimate of its siblings (one hour when no leaf
// carries an estimate); closed leaves count as fully done.
func (ops *txOps) leafProgress(ctx context.Context, parent *types.Issue, leaves []*types.Issue) (int, *float64, error) {
	var sum, positiveSum float64
	var leafCount, positiveCount int
	for _, l := range leaves {
		if l.ID == parent.ID {
			continue
		}
		leafCount++
		if l.EstimatedHours != nil {
			sum += *l.EstimatedHours
			if *l.EstimatedHours > 0 {
				positiveSum += *l.EstimatedHours
				positiveCount++
			}
		}
	}

	// Unestimated leaves weigh in at the average of the estimated ones,
	// one hour when nothing is estimated at all.
	average := 1.0
	if positiveCount > 0 {
		average = positiveSum / float64(positiveCount)
	}

	closedStatuses := make(map[int64]bool)
	var done float64
	for _, l := range leaves {
		if l.ID == parent.ID {
			continue
		}
		weight := average
		if l.EstimatedHours != nil && *l.EstimatedHours > 0 {
			weight = *l.EstimatedHours
		}
		closed, ok := closedStatuses[l.StatusID]
		if !ok {
			st, err := ops.tx.GetStatus(ctx, l.StatusID)
			if err != nil {
				return 0, nil, err
			}
			closed = st.IsClosed
			closedStatuses[l.StatusID] = closed
		}
		if closed {
			done += weight * 100
		} else {
			done += weight * float64(l.DoneRatio)
		}
	}

	ratio := parent.DoneRatio
	if leafCount > 0 {
		ratio = int(math.Round(done / (average * float64(leafCount))))
	}
	var estimate *float64
	if sum > 0 {
		estimate = &sum
	}
	return ratio, estimate, nil
}

// maxPriority returns the priority id with the highest position among the
// children, or zero when none resolves.
func (ops *txOps) maxPriority(ctx context.Context, children []*types.Issue) (int64, error) {
	var best int64
	bestPos := -1
	positions := make(map[int64]int)
	for _, c := range children {
		pos, ok := positions[c.PriorityID]
		if !ok {
			p, err := ops.tx.GetPriority(ctx, c.PriorityID)
			if err != nil {
				return 0, err
			}
			pos = p.Position
			positions[c.PriorityID] = pos
		}
		if pos > bestPos {
			bestPos = pos
			best = c.PriorityID
		}
	}
	return best, nil
}

func sameHours(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
