package remote

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Credentials stores the session of the last login.
type Credentials struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	ServerURL string `json:"server_url,omitempty"`
}

// CredentialsPath returns the path to the credentials file.
func CredentialsPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".treenote", "credentials.json")
}

// LoadCredentials loads stored credentials. It returns nil, nil when none
// are stored.
func LoadCredentials() (*Credentials, error) {
	path := CredentialsPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	return &creds, nil
}

// SaveCredentials saves credentials.
func SaveCredentials(creds *Credentials) error {
	path := CredentialsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	// Restrict permissions to owner only
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// ClearCredentials removes stored credentials.
func ClearCredentials() error {
	if err := os.Remove(CredentialsPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}

// SessionFromAuth converts a register/login answer into stored credentials.
func SessionFromAuth(serverURL string, resp *AuthResponse) *Credentials {
	return &Credentials{
		Token:     resp.Token,
		UserID:    resp.UserID,
		Username:  resp.Username,
		ServerURL: serverURL,
	}
}
