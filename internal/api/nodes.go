package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"treenote/internal/model"
	"treenote/internal/tree"
)

const maxNameLen = 255

// ----- Nodes -----

type CreateNodeRequest struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	ParentID *string `json:"parentId"`
	Content  *string `json:"content"`
}

type UpdateNodeRequest struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`

	// Placement fields are refused here; moves go through the reorder route.
	ParentID  json.RawMessage `json:"parentId,omitempty"`
	SortOrder json.RawMessage `json:"sortOrder,omitempty"`
}

// NodeResponse is a single node with its content always present, including
// empty notes. List and tree responses leave content out.
type NodeResponse struct {
	*model.Node
	Content string `json:"content"`
}

func nodeResponse(n *model.Node) NodeResponse {
	return NodeResponse{Node: n, Content: n.Content}
}

type MoveNodeRequest struct {
	NodeID    string  `json:"nodeId"`
	ParentID  *string `json:"parentId"`
	SortOrder *int    `json:"sortOrder"`
}

type DeleteResponse struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted"`
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return fmt.Errorf("name must be at most %d characters", maxNameLen)
	}
	return nil
}

func validateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s is not a valid id", field)
	}
	return nil
}

func validateParent(parentID *string) error {
	if parentID == nil {
		return nil
	}
	return validateID("parentId", *parentID)
}

func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	nodes, err := h.engine.ListTree(r.Context(), user.ID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *Handler) GetTree(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	forest, err := h.engine.Forest(r.Context(), user.ID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forest)
}

func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := r.PathValue("id")
	if validateID("id", id) != nil {
		// Malformed ids cannot exist in the store.
		writeError(w, http.StatusNotFound, "Node not found", nil)
		return
	}

	node, err := h.engine.FetchNode(r.Context(), user.ID, id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeResponse(node))
}

func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req CreateNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	kind, err := model.ParseNodeKind(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid input", err)
		return
	}
	if err := validateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input", err)
		return
	}
	if err := validateParent(req.ParentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input", err)
		return
	}

	params := tree.CreateParams{
		ParentID: req.ParentID,
		Kind:     kind,
		Name:     req.Name,
	}
	if req.Content != nil {
		params.Content = *req.Content
	}

	node, err := h.engine.Create(r.Context(), user.ID, params)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.log.Debug().Str("owner", user.ID).Str("node", node.ID).Str("op", "create").Msg("node created")
	writeJSON(w, http.StatusCreated, nodeResponse(node))
}

func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := r.PathValue("id")
	if validateID("id", id) != nil {
		writeError(w, http.StatusNotFound, "Node not found", nil)
		return
	}

	var req UpdateNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.ParentID) > 0 || len(req.SortOrder) > 0 {
		writeError(w, http.StatusBadRequest, "invalid input", errors.New("parentId and sortOrder cannot be patched; use PATCH /api/nodes/reorder"))
		return
	}
	if req.Name != nil {
		if err := validateName(*req.Name); err != nil {
			writeError(w, http.StatusBadRequest, "invalid input", err)
			return
		}
	}

	node, err := h.engine.Update(r.Context(), user.ID, id, tree.Patch{
		Name:    req.Name,
		Content: req.Content,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.log.Debug().Str("owner", user.ID).Str("node", node.ID).Str("op", "update").Msg("node updated")
	writeJSON(w, http.StatusOK, nodeResponse(node))
}

func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req MoveNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := validateID("nodeId", req.NodeID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input", err)
		return
	}
	if err := validateParent(req.ParentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input", err)
		return
	}
	if req.SortOrder == nil {
		writeError(w, http.StatusBadRequest, "invalid input", errors.New("sortOrder is required"))
		return
	}
	if *req.SortOrder < 0 {
		writeError(w, http.StatusBadRequest, "invalid input", errors.New("sortOrder must not be negative"))
		return
	}

	node, err := h.engine.Move(r.Context(), user.ID, req.NodeID, req.ParentID, *req.SortOrder)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.log.Debug().
		Str("owner", user.ID).
		Str("node", node.ID).
		Str("op", "move").
		Int("sortOrder", node.SortOrder).
		Msg("node moved")
	writeJSON(w, http.StatusOK, nodeResponse(node))
}

func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := r.PathValue("id")
	if validateID("id", id) != nil {
		writeError(w, http.StatusNotFound, "Node not found", nil)
		return
	}

	deleted, err := h.engine.DeleteSubtree(r.Context(), user.ID, id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.log.Debug().Str("owner", user.ID).Str("node", id).Str("op", "delete").Int("deleted", deleted).Msg("subtree deleted")
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Deleted: deleted})
}
