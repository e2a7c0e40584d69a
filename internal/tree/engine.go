// Package tree maintains each owner's forest of folders and notes.
//
// Every Engine operation runs in one store transaction. Mutations take the
// owner's write lock first, validate against the rows read inside that same
// transaction and only then write, so a failed operation leaves no trace and
// concurrent moves into one sibling group cannot collide.
package tree

import (
	"context"
	"fmt"
	"time"

	"treenote/internal/db"
	"treenote/internal/model"
)

// Engine applies structural edits to the node store.
type Engine struct {
	db  *db.DB
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine backed by database.
func NewEngine(database *db.DB, opts ...Option) *Engine {
	e := &Engine{db: database, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// clock returns the current time at the store's millisecond resolution.
func (e *Engine) clock() time.Time {
	return time.UnixMilli(e.now().UnixMilli())
}

// CreateParams describes a new node.
type CreateParams struct {
	ParentID *string
	Kind     model.NodeKind
	Name     string
	Content  string
}

// Create appends a node to the end of its sibling group.
func (e *Engine) Create(ctx context.Context, ownerID string, p CreateParams) (*model.Node, error) {
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, p.Kind)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is empty", ErrInvalidOperation)
	}

	var parentID *string
	if p.ParentID != nil {
		id := *p.ParentID
		parentID = &id
	}

	var created *model.Node
	err := e.db.Update(ctx, func(tx *db.Tx) error {
		if err := tx.LockOwner(ownerID); err != nil {
			return err
		}
		if parentID != nil {
			parent, err := tx.GetNode(ownerID, *parentID)
			if err != nil {
				return err
			}
			if parent == nil {
				return fmt.Errorf("parent %w", notFound(*parentID))
			}
			if !parent.IsFolder() {
				return fmt.Errorf("%w: parent %s is a note", ErrInvalidOperation, parent.ID)
			}
		}

		maxOrder, ok, err := tx.MaxSortOrder(ownerID, parentID)
		if err != nil {
			return err
		}
		order := 0
		if ok {
			order = maxOrder + 1
		}

		now := e.clock()
		n := &model.Node{
			ID:        db.NewNodeID(),
			OwnerID:   ownerID,
			ParentID:  parentID,
			Kind:      p.Kind,
			Name:      p.Name,
			SortOrder: order,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if n.Kind == model.KindNote {
			n.Content = p.Content
		}
		if err := tx.InsertNode(n); err != nil {
			return err
		}
		created = n
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return created, nil
}

// Patch lists the fields an Update changes. Nil fields are left alone.
type Patch struct {
	Name    *string
	Content *string
}

// Update renames a node and/or replaces a note's content in one transaction.
// Content sent to a folder is ignored; if nothing else changes the folder is
// returned untouched.
func (e *Engine) Update(ctx context.Context, ownerID, nodeID string, patch Patch) (*model.Node, error) {
	if patch.Name != nil && *patch.Name == "" {
		return nil, fmt.Errorf("%w: name is empty", ErrInvalidOperation)
	}

	var updated *model.Node
	err := e.db.Update(ctx, func(tx *db.Tx) error {
		if err := tx.LockOwner(ownerID); err != nil {
			return err
		}
		n, err := tx.GetNode(ownerID, nodeID)
		if err != nil {
			return err
		}
		if n == nil {
			return notFound(nodeID)
		}

		touched := false
		if patch.Name != nil {
			n.Name = *patch.Name
			touched = true
		}
		if patch.Content != nil && n.Kind == model.KindNote {
			n.Content = *patch.Content
			touched = true
		}
		if touched {
			n.UpdatedAt = e.clock()
			if err := tx.UpdateNode(n); err != nil {
				return err
			}
		}
		updated = n
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return updated, nil
}

// Rename changes a node's name.
func (e *Engine) Rename(ctx context.Context, ownerID, nodeID, name string) (*model.Node, error) {
	return e.Update(ctx, ownerID, nodeID, Patch{Name: &name})
}

// Edit replaces a note's content. On a folder it is a no-op.
func (e *Engine) Edit(ctx context.Context, ownerID, nodeID, content string) (*model.Node, error) {
	return e.Update(ctx, ownerID, nodeID, Patch{Content: &content})
}

// Move reparents a node and places it at rank target among its new siblings
// (0 is first). A target past the end appends.
//
// Siblings at or after the target slot are shifted up by one to make room;
// the moved node itself is never shifted. When the destination group has gaps
// the rank is resolved to the sort value currently held at that rank, so the
// node always ends up at position target.
func (e *Engine) Move(ctx context.Context, ownerID, nodeID string, newParentID *string, target int) (*model.Node, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: negative sort order %d", ErrInvalidOperation, target)
	}

	var parentID *string
	if newParentID != nil {
		id := *newParentID
		parentID = &id
	}

	var moved *model.Node
	err := e.db.Update(ctx, func(tx *db.Tx) error {
		if err := tx.LockOwner(ownerID); err != nil {
			return err
		}
		n, err := tx.GetNode(ownerID, nodeID)
		if err != nil {
			return err
		}
		if n == nil {
			return notFound(nodeID)
		}

		if parentID != nil {
			parent, err := tx.GetNode(ownerID, *parentID)
			if err != nil {
				return err
			}
			if parent == nil {
				return fmt.Errorf("parent %w", notFound(*parentID))
			}
			if parent.ID == n.ID {
				return fmt.Errorf("%w: node %s cannot be its own parent", ErrInvalidOperation, n.ID)
			}
			// Cycles are reported before the kind check so that moving a
			// node under any of its descendants fails the same way.
			if err := checkNotAncestor(tx, ownerID, n.ID, parent.ID); err != nil {
				return err
			}
			if !parent.IsFolder() {
				return fmt.Errorf("%w: parent %s is a note", ErrInvalidOperation, parent.ID)
			}
		}

		slot, err := resolveSlot(tx, ownerID, parentID, n.ID, target)
		if err != nil {
			return err
		}

		now := e.clock()
		if _, err := tx.ShiftSiblings(ownerID, parentID, slot, n.ID, now); err != nil {
			return err
		}

		n.ParentID = parentID
		n.SortOrder = slot
		n.UpdatedAt = now
		if err := tx.UpdateNode(n); err != nil {
			return err
		}
		moved = n
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return moved, nil
}

// resolveSlot maps a rank in the destination group, excluding the node being
// moved, to the sort value the node should take.
func resolveSlot(tx *db.Tx, ownerID string, parentID *string, nodeID string, rank int) (int, error) {
	siblings, err := tx.ListSiblings(ownerID, parentID)
	if err != nil {
		return 0, err
	}
	others := siblings[:0]
	for _, s := range siblings {
		if s.ID != nodeID {
			others = append(others, s)
		}
	}
	switch {
	case rank < len(others):
		return others[rank].SortOrder, nil
	case len(others) > 0:
		return others[len(others)-1].SortOrder + 1, nil
	default:
		return 0, nil
	}
}

// checkNotAncestor walks up from start and fails if nodeID is on the way to a
// root. The walk is bounded by the owner's node count; a chain that revisits
// a node or exceeds the bound is reported as a cycle as well.
func checkNotAncestor(tx *db.Tx, ownerID, nodeID, start string) error {
	limit, err := tx.CountNodes(ownerID)
	if err != nil {
		return err
	}

	visited := make(map[string]struct{})
	cur := start
	for {
		if cur == nodeID {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycleDetected, nodeID, start)
		}
		if _, seen := visited[cur]; seen || len(visited) > limit {
			return fmt.Errorf("%w: ancestor chain of %s does not end at a root", ErrCycleDetected, start)
		}
		visited[cur] = struct{}{}

		parent, ok, err := tx.ParentID(ownerID, cur)
		if err != nil {
			return err
		}
		if !ok || parent == nil {
			return nil
		}
		cur = *parent
	}
}

// DeleteSubtree removes a node and all of its descendants and returns how
// many nodes were deleted.
func (e *Engine) DeleteSubtree(ctx context.Context, ownerID, nodeID string) (int, error) {
	var deleted int
	err := e.db.Update(ctx, func(tx *db.Tx) error {
		if err := tx.LockOwner(ownerID); err != nil {
			return err
		}
		_, ok, err := tx.ParentID(ownerID, nodeID)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(nodeID)
		}

		ids, err := subtree(tx, ownerID, nodeID)
		if err != nil {
			return err
		}
		// Deepest levels first so no row is removed by cascade.
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
		if _, err := tx.DeleteNodes(ownerID, ids); err != nil {
			return err
		}
		deleted = len(ids)
		return nil
	})
	if err != nil {
		return 0, storeErr(err)
	}
	return deleted, nil
}

// subtree returns rootID and every transitive child, level by level.
func subtree(tx *db.Tx, ownerID, rootID string) ([]string, error) {
	ids := []string{rootID}
	seen := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}
	for len(frontier) > 0 {
		children, err := tx.ChildIDs(ownerID, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, id := range children {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			next = append(next, id)
		}
		frontier = next
	}
	return ids, nil
}

// ListTree returns every node of the owner without content, ordered by
// parent and then sort order.
func (e *Engine) ListTree(ctx context.Context, ownerID string) ([]*model.Node, error) {
	var nodes []*model.Node
	err := e.db.View(ctx, func(tx *db.Tx) error {
		var err error
		nodes, err = tx.ListNodes(ownerID, false)
		return err
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if nodes == nil {
		nodes = []*model.Node{}
	}
	return nodes, nil
}

// FetchNode returns one node including its content.
func (e *Engine) FetchNode(ctx context.Context, ownerID, nodeID string) (*model.Node, error) {
	var n *model.Node
	err := e.db.View(ctx, func(tx *db.Tx) error {
		var err error
		n, err = tx.GetNode(ownerID, nodeID)
		if err != nil {
			return err
		}
		if n == nil {
			return notFound(nodeID)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return n, nil
}

// Forest returns the owner's nodes projected into trees.
func (e *Engine) Forest(ctx context.Context, ownerID string) ([]*TreeNode, error) {
	nodes, err := e.ListTree(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return Build(nodes), nil
}
