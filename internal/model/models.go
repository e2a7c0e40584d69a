// Package model provides data models for treenote.
package model

import (
	"fmt"
	"time"
)

// User represents a registered user. Every node is owned by exactly one user.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NodeKind distinguishes folders from notes.
type NodeKind string

const (
	KindFolder NodeKind = "folder"
	KindNote   NodeKind = "note"
)

// Valid reports whether k is a known kind.
func (k NodeKind) Valid() bool {
	return k == KindFolder || k == KindNote
}

// ParseNodeKind parses a wire kind.
func ParseNodeKind(s string) (NodeKind, error) {
	k := NodeKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown node type %q", s)
	}
	return k, nil
}

// Node is one item of an owner's tree.
//
// ParentID is nil for roots. SortOrder ranks the node among the siblings
// sharing (OwnerID, ParentID). Content is only meaningful for notes and is
// left empty by list queries.
type Node struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	ParentID  *string   `json:"parentId"`
	Kind      NodeKind  `json:"type"`
	Name      string    `json:"name"`
	Content   string    `json:"content,omitempty"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsFolder reports whether the node may have children.
func (n *Node) IsFolder() bool {
	return n.Kind == KindFolder
}

// Clone returns a copy of n that shares no pointers with it.
func (n *Node) Clone() *Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	return &c
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
