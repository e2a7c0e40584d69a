package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treenote/internal/auth"
)

func TestFromEnv_Defaults(t *testing.T) {
	c := FromEnv()
	assert.Equal(t, ":3001", c.Listen)
	assert.Equal(t, "treenote.db", c.DBURL)
	assert.Equal(t, 7*24*time.Hour, c.TokenTTL)
	assert.Equal(t, auth.AdmitFirstUser, c.AdmissionPolicy())
	assert.True(t, c.Compress)
	assert.NoError(t, c.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TREENOTE_LISTEN", ":9000")
	t.Setenv("TREENOTE_TOKEN_TTL", "1h")
	t.Setenv("TREENOTE_COMPRESS", "false")
	t.Setenv("TREENOTE_DEBUG", "not-a-bool")

	c := FromEnv()
	assert.Equal(t, ":9000", c.Listen)
	assert.Equal(t, time.Hour, c.TokenTTL)
	assert.False(t, c.Compress)
	assert.False(t, c.Debug)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treenote.yaml")
	data := []byte("listen: \":4000\"\ndb_url: postgres://localhost/treenote\nregistration: open\ntoken_ttl: 30m\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("TREENOTE_LISTEN", ":5000")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":5000", c.Listen)
	assert.Equal(t, "postgres://localhost/treenote", c.DBURL)
	assert.Equal(t, auth.AdmitOpen, c.AdmissionPolicy())
	assert.Equal(t, 30*time.Minute, c.TokenTTL)
	assert.Equal(t, "treenote-dev-secret", c.JWTSecret)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.JWTSecret = ""
	c.TokenTTL = 0
	c.Registration = "sometimes"
	c.LogFormat = "xml"

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
	assert.Contains(t, err.Error(), "token TTL")
	assert.Contains(t, err.Error(), "registration mode")
	assert.Contains(t, err.Error(), "log format")
	assert.Equal(t, auth.AdmitClosed, c.AdmissionPolicy())
}
