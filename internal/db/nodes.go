package db

import (
	"database/sql"
	"fmt"
	"time"

	"treenote/internal/model"
)

// batchSize bounds the number of ids bound into one IN (...) list.
const batchSize = 500

const nodeColumns = "id, owner_id, parent_id, kind, name, content, sort_order, created_at, updated_at"

// nodeListColumns selects everything but the content blob.
const nodeListColumns = "id, owner_id, parent_id, kind, name, '' AS content, sort_order, created_at, updated_at"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(s scanner) (*model.Node, error) {
	var n model.Node
	var parent sql.NullString
	var kind string
	var createdAt, updatedAt int64
	if err := s.Scan(&n.ID, &n.OwnerID, &parent, &kind, &n.Name, &n.Content, &n.SortOrder, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		n.ParentID = &parent.String
	}
	n.Kind = model.NodeKind(kind)
	n.CreatedAt = time.UnixMilli(createdAt)
	n.UpdatedAt = time.UnixMilli(updatedAt)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*model.Node, error) {
	defer rows.Close()
	var nodes []*model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, classify(rows.Err())
}

// parentClause returns the predicate selecting one sibling group.
func parentClause(parentID *string) (string, []interface{}) {
	if parentID == nil {
		return "parent_id IS NULL", nil
	}
	return "parent_id = ?", []interface{}{*parentID}
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// NewNodeID returns a fresh node id.
func NewNodeID() string {
	return newUUID()
}

// InsertNode inserts n. An empty n.ID is filled with a new UUID.
func (t *Tx) InsertNode(n *model.Node) error {
	if n.ID == "" {
		n.ID = newUUID()
	}
	_, err := t.exec(
		"INSERT INTO nodes ("+nodeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		n.ID, n.OwnerID, nullable(n.ParentID), string(n.Kind), n.Name, n.Content, n.SortOrder,
		n.CreatedAt.UnixMilli(), n.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting node: %w", err)
	}
	return nil
}

// GetNode returns the owner's node with its content, or nil if there is none.
func (t *Tx) GetNode(ownerID, id string) (*model.Node, error) {
	n, err := scanNode(t.queryRow(
		"SELECT "+nodeColumns+" FROM nodes WHERE owner_id = ? AND id = ?",
		ownerID, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting node: %w", classify(err))
	}
	return n, nil
}

// ParentID returns the parent of the owner's node id. ok is false when the
// node does not exist.
func (t *Tx) ParentID(ownerID, id string) (parent *string, ok bool, err error) {
	var p sql.NullString
	err = t.queryRow("SELECT parent_id FROM nodes WHERE owner_id = ? AND id = ?", ownerID, id).Scan(&p)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting parent: %w", classify(err))
	}
	if p.Valid {
		parent = &p.String
	}
	return parent, true, nil
}

// ListNodes returns all nodes of an owner ordered by (parent, sort order),
// roots first.
func (t *Tx) ListNodes(ownerID string, withContent bool) ([]*model.Node, error) {
	cols := nodeListColumns
	if withContent {
		cols = nodeColumns
	}
	rows, err := t.query(
		"SELECT "+cols+" FROM nodes WHERE owner_id = ? ORDER BY parent_id IS NOT NULL, parent_id, sort_order, id",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	return scanNodes(rows)
}

// ListSiblings returns one sibling group ordered by sort order, without content.
func (t *Tx) ListSiblings(ownerID string, parentID *string) ([]*model.Node, error) {
	clause, args := parentClause(parentID)
	rows, err := t.query(
		"SELECT "+nodeListColumns+" FROM nodes WHERE owner_id = ? AND "+clause+" ORDER BY sort_order, id",
		append([]interface{}{ownerID}, args...)...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing siblings: %w", err)
	}
	return scanNodes(rows)
}

// MaxSortOrder returns the highest sort order in a sibling group. ok is false
// when the group is empty.
func (t *Tx) MaxSortOrder(ownerID string, parentID *string) (maxOrder int, ok bool, err error) {
	clause, args := parentClause(parentID)
	var v sql.NullInt64
	err = t.queryRow(
		"SELECT MAX(sort_order) FROM nodes WHERE owner_id = ? AND "+clause,
		append([]interface{}{ownerID}, args...)...,
	).Scan(&v)
	if err != nil {
		return 0, false, fmt.Errorf("reading max sort order: %w", classify(err))
	}
	if !v.Valid {
		return 0, false, nil
	}
	return int(v.Int64), true, nil
}

// ShiftSiblings moves every node of the group whose sort order is at least
// from one position up. The node excludeID is left untouched.
func (t *Tx) ShiftSiblings(ownerID string, parentID *string, from int, excludeID string, now time.Time) (int64, error) {
	clause, args := parentClause(parentID)
	q := "UPDATE nodes SET sort_order = sort_order + 1, updated_at = ? WHERE owner_id = ? AND " + clause + " AND sort_order >= ? AND id <> ?"
	params := []interface{}{now.UnixMilli(), ownerID}
	params = append(params, args...)
	params = append(params, from, excludeID)

	res, err := t.exec(q, params...)
	if err != nil {
		return 0, fmt.Errorf("shifting siblings: %w", err)
	}
	return res.RowsAffected()
}

// UpdateNode writes the mutable fields of n back. It returns ErrNotFound when
// the owner has no such node.
func (t *Tx) UpdateNode(n *model.Node) error {
	res, err := t.exec(
		"UPDATE nodes SET parent_id = ?, name = ?, content = ?, sort_order = ?, updated_at = ? WHERE owner_id = ? AND id = ?",
		nullable(n.ParentID), n.Name, n.Content, n.SortOrder, n.UpdatedAt.UnixMilli(), n.OwnerID, n.ID,
	)
	if err != nil {
		return fmt.Errorf("updating node: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountNodes returns the number of nodes an owner has.
func (t *Tx) CountNodes(ownerID string) (int, error) {
	var count int
	if err := t.queryRow("SELECT COUNT(*) FROM nodes WHERE owner_id = ?", ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting nodes: %w", classify(err))
	}
	return count, nil
}

// ChildIDs returns the ids of the direct children of any of parentIDs.
func (t *Tx) ChildIDs(ownerID string, parentIDs []string) ([]string, error) {
	var ids []string
	for start := 0; start < len(parentIDs); start += batchSize {
		end := min(start+batchSize, len(parentIDs))
		chunk := parentIDs[start:end]

		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, ownerID)
		for _, id := range chunk {
			args = append(args, id)
		}
		rows, err := t.query(
			"SELECT id FROM nodes WHERE owner_id = ? AND parent_id IN ("+placeholders(len(chunk))+")",
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("listing children: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, classify(err)
		}
		rows.Close()
	}
	return ids, nil
}

// DeleteNodes deletes the owner's nodes with the given ids, in order, and
// returns how many rows were removed. Callers pass descendants before their
// ancestors so no row is removed by cascade.
func (t *Tx) DeleteNodes(ownerID string, ids []string) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		chunk := ids[start:end]

		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, ownerID)
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := t.exec(
			"DELETE FROM nodes WHERE owner_id = ? AND id IN ("+placeholders(len(chunk))+")",
			args...,
		)
		if err != nil {
			return total, fmt.Errorf("deleting nodes: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
