package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treenote/internal/cfg"
	"treenote/internal/db"
	"treenote/internal/logging"
	"treenote/internal/remote"
	"treenote/internal/tree"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	srv := httptest.NewServer(newHandler(database, cfg.Default(), logging.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func names(forest []*tree.TreeNode) []string {
	out := []string{}
	for _, n := range forest {
		out = append(out, n.Name)
	}
	return out
}

func TestEndToEnd(t *testing.T) {
	srv := newTestAPI(t)
	ctx := context.Background()

	anon := remote.NewClient(srv.URL, "")
	require.NoError(t, anon.Health(ctx))

	reg, err := anon.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = anon.Register(ctx, "mallory", "secret1")
	require.True(t, remote.IsStatus(err, http.StatusForbidden), "second registration must be refused: %v", err)

	login, err := anon.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, login.UserID)

	c := remote.NewClient(srv.URL, login.Token)
	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)

	// A -> B -> C, plus three root notes.
	a, err := c.CreateNode(ctx, remote.CreateNodeRequest{Name: "A", Type: "folder"})
	require.NoError(t, err)
	b, err := c.CreateNode(ctx, remote.CreateNodeRequest{Name: "B", Type: "folder", ParentID: &a.ID})
	require.NoError(t, err)
	body := "todo"
	cNote, err := c.CreateNode(ctx, remote.CreateNodeRequest{Name: "C", Type: "note", ParentID: &b.ID, Content: &body})
	require.NoError(t, err)
	for _, name := range []string{"n1", "n2", "n3"} {
		_, err := c.CreateNode(ctx, remote.CreateNodeRequest{Name: name, Type: "note"})
		require.NoError(t, err)
	}

	forest, err := c.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "n1", "n2", "n3"}, names(forest))

	// Cycle is refused and nothing changes.
	_, err = c.MoveNode(ctx, a.ID, &cNote.ID, 0)
	assert.True(t, remote.IsStatus(err, http.StatusConflict), "%v", err)

	// n3 to the front of the root group.
	n3 := forest[3]
	moved, err := c.MoveNode(ctx, n3.ID, nil, 0)
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)

	forest, err = c.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"n3", "A", "n1", "n2"}, names(forest))
	assert.Equal(t, 6, tree.Count(forest))

	content := "done"
	updated, err := c.UpdateNode(ctx, cNote.ID, remote.UpdateNodeRequest{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "done", updated.Content)

	got, err := c.GetNode(ctx, cNote.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.Content)

	deleted, err := c.DeleteNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	_, err = c.GetNode(ctx, cNote.ID)
	assert.True(t, remote.IsStatus(err, http.StatusNotFound), "%v", err)

	nodes, err := c.ListNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	// Tokens from another server secret are rejected.
	stranger := remote.NewClient(srv.URL, "eyJhbGciOiJIUzI1NiJ9.e30.ZRrHA1JJJW8opsbCGfG_HACGpVUMN_a9IV7pAx_Zmeo")
	_, err = stranger.ListNodes(ctx)
	assert.True(t, remote.IsStatus(err, http.StatusUnauthorized), "%v", err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	config := cfg.Default()
	config.Listen = "127.0.0.1:0"
	config.DBURL = filepath.Join(t.TempDir(), "run.db")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, config, logging.Nop()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_BadDatabase(t *testing.T) {
	config := cfg.Default()
	config.DBURL = filepath.Join(t.TempDir(), "missing", "dir", "x.db")

	err := run(context.Background(), config, logging.Nop())
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TREENOTE_LISTEN", "")
	t.Setenv("TREENOTE_DB_URL", "")

	config, err := loadConfig("", "", "")
	require.NoError(t, err)
	assert.Equal(t, ":3001", config.Listen)
	assert.Equal(t, "treenote.db", config.DBURL)

	path := filepath.Join(t.TempDir(), "treenoted.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":4000\"\ndb_url: file.db\n"), 0o644))
	config, err = loadConfig(path, "", "flag.db")
	require.NoError(t, err)
	assert.Equal(t, ":4000", config.Listen)
	assert.Equal(t, "flag.db", config.DBURL)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "", "")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("registration: sometimes\n"), 0o644))
	_, err = loadConfig(path, "", "")
	assert.Error(t, err)
}
