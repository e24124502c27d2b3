// Package tree maintains nested-set numbering for issue hierarchies.
//
// All arithmetic happens on an in-memory snapshot of the affected rows; an
// operation returns the complete batch of row updates to be written inside
// the caller's transaction. This keeps the renumbering algorithm testable
// without a live database.
//
// Invariants preserved by every operation: lft < rgt for each node, a
// child's [lft,rgt] interval is strictly contained in its parent's, and all
// nodes of one tree share the root's id as their RootID.
package tree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/edavis10/issuekit/internal/types"
)

// ErrCyclicParent is returned when a reparent targets the node itself or one
// of its descendants.
var ErrCyclicParent = errors.New("parent is the node itself or one of its descendants")

// ErrNodeNotFound is returned when an operation references a node that is
// not part of the loaded snapshot.
var ErrNodeNotFound = errors.New("node not in snapshot")

// Forest is a mutable snapshot of one or more issue trees. Load the trees
// touched by an operation (source and destination for cross-tree moves),
// apply operations, and write the returned updates in one batch.
type Forest struct {
	nodes map[int64]*types.TreeNode
}

// NewForest builds a snapshot from the given rows.
func NewForest(rows []types.TreeNode) *Forest {
	f := &Forest{nodes: make(map[int64]*types.TreeNode, len(rows))}
	for i := range rows {
		n := rows[i]
		f.nodes[n.ID] = &n
	}
	return f
}

// Node returns the snapshot row for id, or nil.
func (f *Forest) Node(id int64) *types.TreeNode {
	return f.nodes[id]
}

// Subtree returns the ids of the node and all its descendants, ordered by lft.
func (f *Forest) Subtree(id int64) []int64 {
	node := f.nodes[id]
	if node == nil {
		return nil
	}
	var members []*types.TreeNode
	for _, n := range f.nodes {
		if n.RootID == node.RootID && n.Lft >= node.Lft && n.Rgt <= node.Rgt {
			members = append(members, n)
		}
	}
	sort.Slice(members, func(a, b int) bool { return members[a].Lft < members[b].Lft })
	ids := make([]int64, len(members))
	for i, n := range members {
		ids[i] = n.ID
	}
	return ids
}

// Ancestors returns the ids of the node's ancestors ordered from parent to
// root.
func (f *Forest) Ancestors(id int64) []int64 {
	var out []int64
	node := f.nodes[id]
	for node != nil && node.ParentID != nil {
		node = f.nodes[*node.ParentID]
		if node == nil {
			break
		}
		out = append(out, node.ID)
	}
	return out
}

// Insert adds a new leaf node. With a nil parent the node becomes the root
// of a fresh tree (root_id = self, lft = 1, rgt = 2); otherwise it is placed
// as the parent's last child and everything at or after the insertion point
// shifts right by the node's width.
func (f *Forest) Insert(id int64, parentID *int64) ([]types.TreeUpdate, error) {
	if _, ok := f.nodes[id]; ok {
		return nil, fmt.Errorf("node %d already in snapshot", id)
	}
	if parentID == nil {
		node := &types.TreeNode{ID: id, RootID: id, Lft: 1, Rgt: 2}
		f.nodes[id] = node
		return []types.TreeUpdate{update(node)}, nil
	}
	parent := f.nodes[*parentID]
	if parent == nil {
		return nil, fmt.Errorf("parent %d: %w", *parentID, ErrNodeNotFound)
	}
	changed := f.shift(parent.RootID, parent.Rgt, 2, nil)
	// parent.Rgt has been shifted by 2; the new interval sits just inside it.
	node := &types.TreeNode{
		ID:       id,
		ParentID: parentID,
		RootID:   parent.RootID,
		Lft:      parent.Rgt - 2,
		Rgt:      parent.Rgt - 1,
	}
	f.nodes[id] = node
	return append(f.updates(changed), update(node)), nil
}

// Reparent moves a node (and its whole subtree) under a new parent, or to
// the top level when newParentID is nil. Moving a node under itself or one
// of its descendants fails with ErrCyclicParent and changes nothing.
func (f *Forest) Reparent(id int64, newParentID *int64) ([]types.TreeUpdate, error) {
	node := f.nodes[id]
	if node == nil {
		return nil, fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	if sameParent(node.ParentID, newParentID) {
		return nil, nil
	}

	var parent *types.TreeNode
	if newParentID != nil {
		parent = f.nodes[*newParentID]
		if parent == nil {
			return nil, fmt.Errorf("parent %d: %w", *newParentID, ErrNodeNotFound)
		}
		if parent.RootID == node.RootID && node.Lft <= parent.Lft && parent.Rgt <= node.Rgt {
			return nil, ErrCyclicParent
		}
	}

	subtree := f.subtreeNodes(node)
	inSubtree := make(map[int64]bool, len(subtree))
	for _, n := range subtree {
		inSubtree[n.ID] = true
	}
	width := node.Rgt - node.Lft + 1
	changed := make(map[int64]bool)

	// Detach: close the gap the subtree leaves behind.
	oldRoot := node.RootID
	for _, n := range f.nodes {
		if n.RootID != oldRoot || inSubtree[n.ID] {
			continue
		}
		if n.Lft > node.Rgt {
			n.Lft -= width
			changed[n.ID] = true
		}
		if n.Rgt > node.Rgt {
			n.Rgt -= width
			changed[n.ID] = true
		}
	}

	var newRoot int64
	var delta int
	if parent != nil {
		// parent's bounds may have shifted during detach
		insertAt := parent.Rgt
		for nid := range f.shift(parent.RootID, insertAt, width, inSubtree) {
			changed[nid] = true
		}
		delta = insertAt - node.Lft
		newRoot = parent.RootID
	} else {
		delta = 1 - node.Lft
		newRoot = node.ID
	}

	for _, n := range subtree {
		n.Lft += delta
		n.Rgt += delta
		n.RootID = newRoot
		changed[n.ID] = true
	}
	node.ParentID = newParentID

	return f.updates(changed), nil
}

// Remove deletes the node and its whole subtree from the snapshot and
// returns the removed ids (ordered by lft) plus the shift updates for the
// surviving nodes of the tree.
func (f *Forest) Remove(id int64) (removed []int64, updates []types.TreeUpdate, err error) {
	node := f.nodes[id]
	if node == nil {
		return nil, nil, fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	subtree := f.subtreeNodes(node)
	width := node.Rgt - node.Lft + 1
	for _, n := range subtree {
		removed = append(removed, n.ID)
		delete(f.nodes, n.ID)
	}
	changed := make(map[int64]bool)
	for _, n := range f.nodes {
		if n.RootID != node.RootID {
			continue
		}
		if n.Lft > node.Rgt {
			n.Lft -= width
			changed[n.ID] = true
		}
		if n.Rgt > node.Rgt {
			n.Rgt -= width
			changed[n.ID] = true
		}
	}
	return removed, f.updates(changed), nil
}

// Validate checks the nested-set invariants over the whole snapshot.
// Intended for tests and consistency checks.
func (f *Forest) Validate() error {
	for _, n := range f.nodes {
		if n.Lft >= n.Rgt {
			return fmt.Errorf("node %d: lft %d >= rgt %d", n.ID, n.Lft, n.Rgt)
		}
		if n.ParentID == nil {
			if n.RootID != n.ID {
				return fmt.Errorf("root node %d has root_id %d", n.ID, n.RootID)
			}
			continue
		}
		p := f.nodes[*n.ParentID]
		if p == nil {
			return fmt.Errorf("node %d: parent %d missing", n.ID, *n.ParentID)
		}
		if p.RootID != n.RootID {
			return fmt.Errorf("node %d: root_id %d differs from parent's %d", n.ID, n.RootID, p.RootID)
		}
		if !(p.Lft < n.Lft && n.Rgt < p.Rgt) {
			return fmt.Errorf("node %d: interval [%d,%d] not inside parent's [%d,%d]", n.ID, n.Lft, n.Rgt, p.Lft, p.Rgt)
		}
	}
	return nil
}

// shift makes room for width units at position at in the given tree,
// skipping nodes in skip. Returns the ids touched.
func (f *Forest) shift(rootID int64, at, width int, skip map[int64]bool) map[int64]bool {
	changed := make(map[int64]bool)
	for _, n := range f.nodes {
		if n.RootID != rootID || (skip != nil && skip[n.ID]) {
			continue
		}
		if n.Lft >= at {
			n.Lft += width
			changed[n.ID] = true
		}
		if n.Rgt >= at {
			n.Rgt += width
			changed[n.ID] = true
		}
	}
	return changed
}

func (f *Forest) subtreeNodes(node *types.TreeNode) []*types.TreeNode {
	var members []*types.TreeNode
	for _, n := range f.nodes {
		if n.RootID == node.RootID && n.Lft >= node.Lft && n.Rgt <= node.Rgt {
			members = append(members, n)
		}
	}
	sort.Slice(members, func(a, b int) bool { return members[a].Lft < members[b].Lft })
	return members
}

func (f *Forest) updates(changed map[int64]bool) []types.TreeUpdate {
	out := make([]types.TreeUpdate, 0, len(changed))
	for id := range changed {
		out = append(out, update(f.nodes[id]))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func update(n *types.TreeNode) types.TreeUpdate {
	return types.TreeUpdate{ID: n.ID, ParentID: n.ParentID, RootID: n.RootID, Lft: n.Lft, Rgt: n.Rgt}
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
