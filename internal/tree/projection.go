package tree

import (
	"sort"

	"treenote/internal/model"
)

// TreeNode is a node together with its ordered children.
type TreeNode struct {
	*model.Node
	Children []*TreeNode `json:"children"`
}

// Build turns a flat node list into a forest. Roots are the nodes without a
// parent; children and roots are ordered by sort order, ties keep input order.
// Nodes whose parent is not in the list are dropped. The input is not
// modified and the result shares no memory with it.
func Build(nodes []*model.Node) []*TreeNode {
	index := make(map[string]*TreeNode, len(nodes))
	ordered := make([]*TreeNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, dup := index[n.ID]; dup {
			continue
		}
		tn := &TreeNode{Node: n.Clone(), Children: []*TreeNode{}}
		index[n.ID] = tn
		ordered = append(ordered, tn)
	}

	roots := []*TreeNode{}
	for _, tn := range ordered {
		if tn.ParentID == nil {
			roots = append(roots, tn)
			continue
		}
		parent, ok := index[*tn.ParentID]
		if !ok {
			continue
		}
		parent.Children = append(parent.Children, tn)
	}

	sortBySortOrder(roots)
	for _, tn := range ordered {
		sortBySortOrder(tn.Children)
	}
	return roots
}

func sortBySortOrder(nodes []*TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].SortOrder < nodes[j].SortOrder
	})
}

// Walk visits the forest depth-first, parents before children. Returning
// false from fn skips the node's children.
func Walk(forest []*TreeNode, fn func(n *TreeNode, depth int) bool) {
	var visit func(nodes []*TreeNode, depth int)
	visit = func(nodes []*TreeNode, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				visit(n.Children, depth+1)
			}
		}
	}
	visit(forest, 0)
}

// Count returns the number of nodes in the forest.
func Count(forest []*TreeNode) int {
	total := 0
	Walk(forest, func(*TreeNode, int) bool {
		total++
		return true
	})
	return total
}
