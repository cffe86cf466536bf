package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
)

func TestSetupWriterEmitsJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "info", "json"))
	t.Cleanup(func() { log.Logger = zerolog.Nop() })

	log.Debug().Msg("hidden")
	log.Info().Str("provider", "dexscreener").Msg("visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, "dexscreener", line["provider"])
	assert.Equal(t, "tokenintel", line["service"])
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, lvl)

	lvl, err = ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Equal(t, clierr.CodeUsage, clierr.CodeOf(err))
}

func TestSetupWriterRejectsUnknownFormat(t *testing.T) {
	err := SetupWriter(&bytes.Buffer{}, "warn", "xml")
	assert.Equal(t, clierr.CodeUsage, clierr.CodeOf(err))
}
