// Package relation implements the directed relation graph between issues
// and the date-scheduling consequences of precedes edges.
//
// Only the "precedes" direction is ever persisted: a "follows" edge is
// canonicalized by swapping its endpoints before validation and storage.
// Traversal of the stored graph (reschedule and duplicate-close cascades)
// is driven by the lifecycle orchestrator; this package supplies the pure
// per-edge arithmetic and cycle checks.
package relation

import (
	"errors"

	"github.com/edavis10/issuekit/internal/types"
)

// ErrDuplicateRelation is returned when a relation between the same pair of
// issues already exists.
var ErrDuplicateRelation = errors.New("relation already exists between these issues")

// ErrSelfRelation is returned when both endpoints are the same issue.
var ErrSelfRelation = errors.New("issue cannot be related to itself")

// ErrCircularDependency is returned when adding the edge would create a
// cycle in the directed relation graph.
var ErrCircularDependency = errors.New("relation would create a circular dependency")

// ErrInvalidType is returned for unknown relation types.
var ErrInvalidType = errors.New("invalid relation type")

// Canonicalize rewrites a "follows" relation as "precedes" with swapped
// endpoints. All other types pass through unchanged.
func Canonicalize(r *types.Relation) {
	if r.Type == types.TypeFollows {
		r.IssueFromID, r.IssueToID = r.IssueToID, r.IssueFromID
		r.Type = types.TypePrecedes
	}
	if r.Type != types.TypePrecedes {
		r.Delay = 0
	}
}

// ValidateNew checks a canonicalized relation against the relations already
// attached to either endpoint. existing must contain every relation touching
// r.IssueFromID or r.IssueToID.
func ValidateNew(r *types.Relation, existing []*types.Relation) error {
	if !r.Type.IsValid() || r.Type == types.TypeFollows {
		return ErrInvalidType
	}
	if r.IssueFromID == r.IssueToID {
		return ErrSelfRelation
	}
	for _, e := range existing {
		if e.ID == r.ID {
			continue
		}
		samePair := (e.IssueFromID == r.IssueFromID && e.IssueToID == r.IssueToID) ||
			(e.IssueFromID == r.IssueToID && e.IssueToID == r.IssueFromID)
		if samePair {
			return ErrDuplicateRelation
		}
	}
	return nil
}

// WouldCycle reports whether adding the edge from→to creates a cycle in the
// directed graph formed by the given relations.
func WouldCycle(relations []*types.Relation, from, to int64) bool {
	adjacent := make(map[int64][]int64)
	for _, r := range relations {
		adjacent[r.IssueFromID] = append(adjacent[r.IssueFromID], r.IssueToID)
	}
	// A cycle appears iff "from" is already reachable from "to".
	visited := map[int64]bool{}
	stack := []int64{to}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == from {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		stack = append(stack, adjacent[id]...)
	}
	return false
}

// SuccessorSoonestStart returns the earliest date an issue may start given
// one incoming precedes edge: the predecessor's due date plus the lag plus
// one day. Nil when the predecessor has no due date.
func SuccessorSoonestStart(predecessor *types.Issue, delay int) *types.Date {
	if predecessor == nil || predecessor.DueDate == nil {
		return nil
	}
	d := predecessor.DueDate.AddDays(delay + 1)
	return &d
}

// SoonestStart returns the maximum successor-soonest-start over all incoming
// precedes edges, or nil when the issue has no dated predecessor.
// predecessors maps issue id to the loaded predecessor issue.
func SoonestStart(incoming []*types.Relation, predecessors map[int64]*types.Issue) *types.Date {
	var soonest *types.Date
	for _, r := range incoming {
		if r.Type != types.TypePrecedes {
			continue
		}
		s := SuccessorSoonestStart(predecessors[r.IssueFromID], r.Delay)
		if s == nil {
			continue
		}
		if soonest == nil || s.After(*soonest) {
			soonest = s
		}
	}
	return soonest
}

// Reschedule computes the successor's new dates for a reschedule cascade:
// if its current start date is missing or earlier than soonest, the start
// moves to soonest and the due date follows, preserving the issue's original
// duration. The second return value reports whether anything changed.
func Reschedule(successor *types.Issue, soonest types.Date) (start, due *types.Date, changed bool) {
	if successor.StartDate != nil && !successor.StartDate.Before(soonest) {
		return successor.StartDate, successor.DueDate, false
	}
	duration := successor.Duration()
	start = types.DatePtr(soonest)
	if successor.DueDate != nil {
		due = types.DatePtr(soonest.AddDays(duration))
	}
	return start, due, true
}

// Blocked reports whether any open "blocks" edge points at the issue.
// incoming must contain the relations whose IssueToID is the issue; blockers
// maps issue id to the loaded blocking issue, and closed tells whether a
// status id is a closed status.
func Blocked(incoming []*types.Relation, blockers map[int64]*types.Issue, closed func(statusID int64) bool) bool {
	for _, r := range incoming {
		if r.Type != types.TypeBlocks {
			continue
		}
		b := blockers[r.IssueFromID]
		if b != nil && !closed(b.StatusID) {
			return true
		}
	}
	return false
}

// DuplicateIDs returns, from the relations pointing at an issue, the ids of
// issues that duplicate it (edges with type "duplicates" whose target is the
// issue).
func DuplicateIDs(incoming []*types.Relation, issueID int64) []int64 {
	var out []int64
	for _, r := range incoming {
		if r.Type == types.TypeDuplicates && r.IssueToID == issueID {
			out = append(out, r.IssueFromID)
		}
	}
	return out
}

// CrossProject reports whether the relation links issues of two different
// projects.
func CrossProject(r *types.Relation, from, to *types.Issue) bool {
	return from != nil && to != nil && from.ProjectID != to.ProjectID
}
