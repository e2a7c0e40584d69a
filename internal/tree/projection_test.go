package tree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treenote/internal/model"
)

func node(id, parent string, kind model.NodeKind, order int) *model.Node {
	return &model.Node{
		ID:        id,
		ParentID:  model.StringPtr(parent),
		Kind:      kind,
		Name:      id,
		SortOrder: order,
	}
}

func names(nodes []*TreeNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func TestBuild_OrdersRootsAndChildren(t *testing.T) {
	flat := []*model.Node{
		node("notes", "", model.KindFolder, 1),
		node("inbox", "", model.KindFolder, 0),
		node("b", "notes", model.KindNote, 2),
		node("a", "notes", model.KindNote, 0),
		node("sub", "notes", model.KindFolder, 1),
		node("deep", "sub", model.KindNote, 0),
	}

	forest := Build(flat)
	require.Equal(t, []string{"inbox", "notes"}, names(forest))
	assert.Empty(t, forest[0].Children)
	assert.Equal(t, []string{"a", "sub", "b"}, names(forest[1].Children))
	assert.Equal(t, []string{"deep"}, names(forest[1].Children[1].Children))
	assert.Equal(t, len(flat), Count(forest))
}

func TestBuild_DropsOrphans(t *testing.T) {
	flat := []*model.Node{
		node("root", "", model.KindFolder, 0),
		node("lost", "gone", model.KindNote, 0),
		node("lost-child", "lost", model.KindNote, 0),
		node("kept", "root", model.KindNote, 0),
	}

	forest := Build(flat)
	require.Len(t, forest, 1)
	assert.Equal(t, []string{"kept"}, names(forest[0].Children))
	assert.Equal(t, 2, Count(forest))
}

func TestBuild_EmptyAndSelfLoop(t *testing.T) {
	assert.NotNil(t, Build(nil))
	assert.Empty(t, Build(nil))

	// A node claiming itself as parent never reaches a root.
	forest := Build([]*model.Node{node("loop", "loop", model.KindFolder, 0)})
	assert.Empty(t, forest)
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	flat := []*model.Node{
		node("root", "", model.KindFolder, 0),
		node("child", "root", model.KindNote, 0),
	}

	first := Build(flat)
	first[0].Children[0].Name = "changed"
	*first[0].Children[0].ParentID = "elsewhere"

	assert.Equal(t, "child", flat[1].Name)
	assert.Equal(t, "root", *flat[1].ParentID)

	second := Build(flat)
	assert.Equal(t, "child", second[0].Children[0].Name)
	assert.NotSame(t, first[0], second[0])
}

func TestBuild_StableForEqualSortOrders(t *testing.T) {
	flat := []*model.Node{
		node("x", "", model.KindNote, 0),
		node("y", "", model.KindNote, 0),
		node("z", "", model.KindNote, 0),
	}
	assert.Equal(t, []string{"x", "y", "z"}, names(Build(flat)))
}

func TestWalk_DepthAndSkip(t *testing.T) {
	forest := Build([]*model.Node{
		node("a", "", model.KindFolder, 0),
		node("a1", "a", model.KindFolder, 0),
		node("a11", "a1", model.KindNote, 0),
		node("b", "", model.KindFolder, 1),
		node("b1", "b", model.KindNote, 0),
	})

	var visited []string
	var depths []int
	Walk(forest, func(n *TreeNode, depth int) bool {
		visited = append(visited, n.Name)
		depths = append(depths, depth)
		return n.Name != "b"
	})
	assert.Equal(t, []string{"a", "a1", "a11", "b"}, visited)
	assert.Equal(t, []int{0, 1, 2, 0}, depths)
}

func TestTreeNode_JSON(t *testing.T) {
	forest := Build([]*model.Node{
		node("root", "", model.KindFolder, 0),
		node("leaf", "root", model.KindNote, 0),
	})

	data, err := json.Marshal(forest)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "root", decoded[0]["id"])
	assert.Equal(t, "folder", decoded[0]["type"])
	assert.Nil(t, decoded[0]["parentId"])
	children := decoded[0]["children"].([]interface{})
	require.Len(t, children, 1)
	assert.Equal(t, "root", children[0].(map[string]interface{})["parentId"])
}
