package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treenote/internal/api"
	"treenote/internal/auth"
	"treenote/internal/cfg"
	"treenote/internal/db"
	"treenote/internal/logging"
	"treenote/internal/remote"
	"treenote/internal/tree"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	config := cfg.Default()
	tokens := auth.NewTokenService([]byte(config.JWTSecret), config.JWTIssuer, config.TokenTTL)
	h := api.NewHandler(database, tree.NewEngine(database), config, tokens, logging.Nop())
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)

	t.Setenv("HOME", t.TempDir())
	t.Setenv("TREENOTE_SERVER", "")
	return srv
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, "", args...)
	require.NoError(t, err, out)
	return out
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "treenote", root.Use)
	assert.NotEmpty(t, root.Short)

	want := []string{"register", "login", "logout", "whoami", "ls", "cat", "mkdir", "new", "mv", "rename", "edit", "rm"}
	for _, name := range want {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
		assert.NotNil(t, sub.RunE, name)
	}
}

func TestCLI_Session(t *testing.T) {
	srv := newTestServer(t)

	_, err := execute(t, "", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")

	out, err := execute(t, "secret1\n", "register", "alice", "--server", srv.URL)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Logged in as alice")

	creds, err := remote.LoadCredentials()
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, srv.URL, creds.ServerURL)

	out = mustExecute(t, "whoami")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, srv.URL)
	assert.Contains(t, out, "Expires:")

	mustExecute(t, "logout")
	_, err = execute(t, "", "ls")
	require.Error(t, err)

	_, err = execute(t, "", "login", "alice", "--password", "wrong!", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid credentials")

	out = mustExecute(t, "login", "alice", "--password", "secret1", "--server", srv.URL)
	assert.Contains(t, out, "Logged in as alice")
}

func TestCLI_Nodes(t *testing.T) {
	srv := newTestServer(t)
	mustExecute(t, "register", "alice", "--password", "secret1", "--server", srv.URL)

	out := mustExecute(t, "ls")
	assert.Equal(t, "(empty)\n", out)

	work := strings.TrimSpace(mustExecute(t, "mkdir", "Work"))
	plan := strings.TrimSpace(mustExecute(t, "new", "Plan", "--parent", work, "--content", "ship it"))
	other := strings.TrimSpace(mustExecute(t, "new", "Other"))

	assert.Equal(t, "ship it\n", mustExecute(t, "cat", plan))

	out = mustExecute(t, "ls")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Work/"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  Plan"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "Other"), lines[2])

	out = mustExecute(t, "mv", plan, "--pos", "0")
	assert.Contains(t, out, "under root at 0")

	out = mustExecute(t, "ls")
	lines = strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Plan"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Work/"), lines[1])

	_, err := execute(t, "", "mv", work, "--parent", other, "--pos", "0")
	require.Error(t, err)

	mustExecute(t, "rename", plan, "Roadmap")
	path := filepath.Join(t.TempDir(), "content.md")
	require.NoError(t, os.WriteFile(path, []byte("# Q3\n"), 0o644))
	mustExecute(t, "edit", plan, "--file", path)
	assert.Equal(t, "# Q3\n", mustExecute(t, "cat", plan))

	out, err = execute(t, "from stdin", "edit", other, "--file", "-")
	require.NoError(t, err, out)
	assert.Equal(t, "from stdin\n", mustExecute(t, "cat", other))

	_, err = execute(t, "", "edit", plan)
	require.Error(t, err)

	_, err = execute(t, "", "cat", work)
	require.Error(t, err)

	out = mustExecute(t, "rm", work)
	assert.Contains(t, out, "Deleted 1 node(s)")

	_, err = execute(t, "", "cat", work)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Node not found")

	out = mustExecute(t, "ls", "--json")
	assert.Contains(t, out, `"name": "Roadmap"`)
	assert.Contains(t, out, `"children": []`)
}
