package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(buf, "json", false)

	log.Debug().Msg("hidden")
	require.Equal(t, 0, buf.Len())

	log.Info().Str("owner", "u1").Msg("created")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "u1", entry["owner"])
	assert.Equal(t, "created", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_ConsoleDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(buf, "console", true)

	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
