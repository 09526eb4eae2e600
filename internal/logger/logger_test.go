package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, false, "debug")

	log.Info().Str("component", "gateway").Msg("connection accepted")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "gateway", line["component"])
	assert.Equal(t, "connection accepted", line["message"])
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, false, "warn")

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, false, "loud")

	log.Debug().Msg("dropped")
	assert.Zero(t, buf.Len())
}

func TestNew_DevelopmentIsConsole(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, true, "info")

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}
