// Package remote provides a client for the treenote HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"treenote/internal/model"
	"treenote/internal/tree"
)

// DefaultServer is used when neither --server nor TREENOTE_SERVER is set.
const DefaultServer = "http://localhost:3001"

// Client communicates with a treenote server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	AuthToken  string

	// RetryFor bounds how long a request answered with 503 is retried.
	// Zero disables retries.
	RetryFor time.Duration
}

// NewClient creates a new treenote client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		AuthToken: token,
		RetryFor:  10 * time.Second,
	}
}

// --- Wire types (matching internal/api) ---

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CredentialsRequest is sent to register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// MeResponse identifies the token's user.
type MeResponse struct {
	UserID    string     `json:"userId"`
	Username  string     `json:"username"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// CreateNodeRequest creates a folder or note.
type CreateNodeRequest struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	ParentID *string `json:"parentId,omitempty"`
	Content  *string `json:"content,omitempty"`
}

// UpdateNodeRequest renames a node and/or replaces a note's content.
type UpdateNodeRequest struct {
	Name    *string `json:"name,omitempty"`
	Content *string `json:"content,omitempty"`
}

// MoveNodeRequest reparents and reorders a node.
type MoveNodeRequest struct {
	NodeID    string  `json:"nodeId"`
	ParentID  *string `json:"parentId"`
	SortOrder int     `json:"sortOrder"`
}

// DeleteResponse is returned after deleting a subtree.
type DeleteResponse struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// --- Auth ---

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, username, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, "POST", "/api/auth/register", CredentialsRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, "POST", "/api/auth/login", CredentialsRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the user the client's token belongs to.
func (c *Client) Me(ctx context.Context) (*MeResponse, error) {
	var resp MeResponse
	if err := c.do(ctx, "GET", "/api/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks if the server is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "GET", "/health", nil, nil)
}

// --- Nodes ---

// ListNodes returns every node of the user without content.
func (c *Client) ListNodes(ctx context.Context) ([]*model.Node, error) {
	var nodes []*model.Node
	if err := c.do(ctx, "GET", "/api/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Tree returns the user's nodes as a forest.
func (c *Client) Tree(ctx context.Context) ([]*tree.TreeNode, error) {
	var forest []*tree.TreeNode
	if err := c.do(ctx, "GET", "/api/tree", nil, &forest); err != nil {
		return nil, err
	}
	return forest, nil
}

// GetNode returns one node with its content.
func (c *Client) GetNode(ctx context.Context, id string) (*model.Node, error) {
	var n model.Node
	if err := c.do(ctx, "GET", "/api/nodes/"+url.PathEscape(id), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNode creates a node at the end of its sibling group.
func (c *Client) CreateNode(ctx context.Context, req CreateNodeRequest) (*model.Node, error) {
	var n model.Node
	if err := c.do(ctx, "POST", "/api/nodes", req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateNode applies req to the node.
func (c *Client) UpdateNode(ctx context.Context, id string, req UpdateNodeRequest) (*model.Node, error) {
	var n model.Node
	if err := c.do(ctx, "PATCH", "/api/nodes/"+url.PathEscape(id), req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// MoveNode places the node at rank pos under parentID (nil for the root).
func (c *Client) MoveNode(ctx context.Context, id string, parentID *string, pos int) (*model.Node, error) {
	var n model.Node
	req := MoveNodeRequest{NodeID: id, ParentID: parentID, SortOrder: pos}
	if err := c.do(ctx, "PATCH", "/api/nodes/reorder", req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteNode deletes the node and its descendants, returning how many rows
// were removed.
func (c *Client) DeleteNode(ctx context.Context, id string) (int, error) {
	var resp DeleteResponse
	if err := c.do(ctx, "DELETE", "/api/nodes/"+url.PathEscape(id), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// --- Helper methods ---

// do sends one request, retrying while the server answers 503.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	op := func() error {
		err := c.send(ctx, method, path, body, out)
		if IsStatus(err, http.StatusServiceUnavailable) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	if c.RetryFor <= 0 {
		return c.send(ctx, method, path, body, out)
	}
	params := backoff.NewExponentialBackOff()
	params.InitialInterval = 50 * time.Millisecond
	params.MaxInterval = 2 * time.Second
	params.MaxElapsedTime = c.RetryFor
	return backoff.Retry(op, backoff.WithContext(params, ctx))
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Details: errResp.Details}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("server error: %d %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}
