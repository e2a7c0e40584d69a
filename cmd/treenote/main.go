// Package main provides the treenote CLI.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"treenote/internal/model"
	"treenote/internal/remote"
	"treenote/internal/tree"
)

// Version is the current treenote CLI version
var Version = "0.1.0"

// app carries the global flags and the resolved session of one invocation.
type app struct {
	server   string
	password string
	parent   string
	content  string
	file     string
	pos      int
	jsonOut  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "treenote",
		Short:         "treenote - a personal tree of folders and notes",
		Long:          `treenote talks to a treenoted server to list, create, move, edit and delete folders and notes.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&a.server, "server", "", "Server URL (default: $TREENOTE_SERVER or the server of the last login)")

	registerCmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runRegister,
	}
	registerCmd.Flags().StringVar(&a.password, "password", "", "Password (prompted when omitted)")

	loginCmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runLogin,
	}
	loginCmd.Flags().StringVar(&a.password, "password", "", "Password (prompted when omitted)")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE:  a.runLogout,
	}

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE:  a.runWhoami,
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "Print the tree",
		Args:  cobra.NoArgs,
		RunE:  a.runList,
	}
	lsCmd.Flags().BoolVar(&a.jsonOut, "json", false, "Output as JSON")

	catCmd := &cobra.Command{
		Use:   "cat <id>",
		Short: "Print a note's content",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runCat,
	}

	mkdirCmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runMkdir,
	}
	mkdirCmd.Flags().StringVar(&a.parent, "parent", "", "Parent folder id (default: root)")

	newCmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a note",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runNew,
	}
	newCmd.Flags().StringVar(&a.parent, "parent", "", "Parent folder id (default: root)")
	newCmd.Flags().StringVar(&a.content, "content", "", "Note content")
	newCmd.Flags().StringVar(&a.file, "file", "", "Read note content from file (- for stdin)")
	newCmd.MarkFlagsMutuallyExclusive("content", "file")

	mvCmd := &cobra.Command{
		Use:   "mv <id>",
		Short: "Move a node to a position under a parent",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runMove,
	}
	mvCmd.Flags().StringVar(&a.parent, "parent", "", "New parent folder id (default: root)")
	mvCmd.Flags().IntVar(&a.pos, "pos", 0, "Position among the new siblings, 0 is first")
	mvCmd.MarkFlagRequired("pos")

	renameCmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a node",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runRename,
	}

	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace a note's content",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runEdit,
	}
	editCmd.Flags().StringVar(&a.content, "content", "", "New content")
	editCmd.Flags().StringVar(&a.file, "file", "", "Read new content from file (- for stdin)")
	editCmd.MarkFlagsMutuallyExclusive("content", "file")
	editCmd.MarkFlagsOneRequired("content", "file")

	rmCmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a node and everything below it",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runRemove,
	}

	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd,
		lsCmd, catCmd, mkdirCmd, newCmd, mvCmd, renameCmd, editCmd, rmCmd)
	return rootCmd
}

// serverURL resolves the server: flag, then environment, then stored session.
func (a *app) serverURL(creds *remote.Credentials) string {
	if a.server != "" {
		return a.server
	}
	if env := os.Getenv("TREENOTE_SERVER"); env != "" {
		return env
	}
	if creds != nil && creds.ServerURL != "" {
		return creds.ServerURL
	}
	return remote.DefaultServer
}

// client returns an authenticated client for the stored session.
func (a *app) client() (*remote.Client, error) {
	creds, err := remote.LoadCredentials()
	if err != nil {
		return nil, err
	}
	if creds == nil || creds.Token == "" {
		return nil, errors.New("not logged in\n\nUse 'treenote login <username>' to authenticate")
	}
	return remote.NewClient(a.serverURL(creds), creds.Token), nil
}

func (a *app) parentID() *string {
	return model.StringPtr(a.parent)
}

// readPassword returns --password or reads one line from the command input.
func (a *app) readPassword(cmd *cobra.Command) (string, error) {
	if a.password != "" {
		return a.password, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

// readContent returns --content, or the contents of --file.
func (a *app) readContent(cmd *cobra.Command) (*string, error) {
	switch {
	case a.file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		s := string(data)
		return &s, nil
	case a.file != "":
		data, err := os.ReadFile(a.file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", a.file, err)
		}
		s := string(data)
		return &s, nil
	case cmd.Flags().Changed("content"):
		s := a.content
		return &s, nil
	}
	return nil, nil
}

// Auth commands

func (a *app) runRegister(cmd *cobra.Command, args []string) error {
	return a.authenticate(cmd, args[0], true)
}

func (a *app) runLogin(cmd *cobra.Command, args []string) error {
	return a.authenticate(cmd, args[0], false)
}

func (a *app) authenticate(cmd *cobra.Command, username string, register bool) error {
	password, err := a.readPassword(cmd)
	if err != nil {
		return err
	}

	existing, _ := remote.LoadCredentials()
	server := a.serverURL(existing)
	c := remote.NewClient(server, "")

	var resp *remote.AuthResponse
	if register {
		resp, err = c.Register(cmd.Context(), username, password)
	} else {
		resp, err = c.Login(cmd.Context(), username, password)
	}
	if err != nil {
		return err
	}

	if err := remote.SaveCredentials(remote.SessionFromAuth(server, resp)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", resp.Username)
	return nil
}

func (a *app) runLogout(cmd *cobra.Command, args []string) error {
	if err := remote.ClearCredentials(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out successfully.")
	return nil
}

func (a *app) runWhoami(cmd *cobra.Command, args []string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	me, err := c.Me(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Logged in as: %s\n", me.Username)
	fmt.Fprintf(out, "User ID:      %s\n", me.UserID)
	fmt.Fprintf(out, "Server:       %s\n", c.BaseURL)
	if me.ExpiresAt != nil {
		fmt.Fprintf(out, "Expires:      %s\n", me.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

// Node commands

func (a *app) runList(cmd *cobra.Command, args []string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	nodes, err := c.ListNodes(cmd.Context())
	if err != nil {
		return err
	}
	forest := tree.Build(nodes)

	out := cmd.OutOrStdout()
	if a.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(forest)
	}
	if len(forest) == 0 {
		fmt.Fprintln(out, "(empty)")
		return nil
	}
	tree.Walk(forest, func(n *tree.TreeNode, depth int) bool {
		name := n.Name
		if n.IsFolder() {
			name += "/"
		}
		fmt.Fprintf(out, "%s%-*s  %s\n", strings.Repeat("  ", depth), 40-2*depth, name, shortID(n.ID))
		return true
	})
	return nil
}

func (a *app) runCat(cmd *cobra.Command, args []string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	n, err := c.GetNode(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if n.IsFolder() {
		return fmt.Errorf("%s is a folder", n.Name)
	}
	fmt.Fprint(cmd.OutOrStdout(), n.Content)
	if n.Content != "" && !strings.HasSuffix(n.Content, "\n") {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func (a *app) runMkdir(cmd *cobra.Command, args []string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	n, err := c.CreateNode(cmd.Context(), remote.CreateNodeRequest{
		Name:     args[0],
		Type:     "folder",
		ParentID: a.parentID(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n.ID)
	return nil
}

func (a *app) runNew(cmd *cobra.Command, args []string) error {
	content, err := a.readContent(cmd)
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	n, err := c.CreateNode(cmd.Context(), remote.CreateNodeRequest{
		Name:     args[0],
		Type:     "note",
		ParentID: a.parentID(),
		Content:  content,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n.ID)
	return nil
}

func (a *app) runMove(cmd *cobra.Command, args []string) error {
	if a.pos < 0 {
		return errors.New("--pos must not be negative")
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	n, err := c.MoveNode(cmd.Context(), args[0], a.parentID(), a.pos)
	if err != nil {
		return err
	}
	parent := "root"
	if n.ParentID != nil {
		parent = shortID(*n.ParentID)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Moved %s under %s at %d\n", n.Name, parent, a.pos)
	return nil
}

func (a *app) runRename(cmd *cobra.Command, args []string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	name := args[1]
	n, err := c.UpdateNode(cmd.Context(), args[0], remote.UpdateNodeRequest{Name: &name})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", shortID(n.ID), n.Name)
	return nil
}

func (a *app) runEdit(cmd *cobra.Command, args []string) error {
	content, err := a.readContent(cmd)
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	n, err := c.UpdateNode(cmd.Context(), args[0], remote.UpdateNodeRequest{Content: content})
	if err != nil {
		return err
	}
	if n.IsFolder() {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s is a folder; content left unchanged\n", n.Name)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", n.Name)
	return nil
}

func (a *app) runRemove(cmd *cobra.Command, args []string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	deleted, err := c.DeleteNode(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d node(s)\n", deleted)
	return nil
}

// shortID safely truncates an ID string to 8 characters.
func shortID(s string) string {
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}
