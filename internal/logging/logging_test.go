package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warning "))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(Options{App: "goqem", Level: "info", Out: &buf, JSON: true})
	logger.Debug().Msg("hidden")
	component := Component("trainer")
	component.Info().Int("epoch", 2).Msg("validation")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "goqem", entry["app"])
	assert.Equal(t, "trainer", entry["component"])
	assert.Equal(t, float64(2), entry["epoch"])
	assert.Equal(t, "validation", entry["message"])
}
