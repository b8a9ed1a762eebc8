package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json"}, &buf)
	l.Info().Str("host", "mc.example.org").Msg("probe")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "mc.example.org", entry["host"])
	assert.Equal(t, "probe", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_ConsoleWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "console"}, &buf)
	l.Warn().Msg("slow server")

	assert.Contains(t, buf.String(), "WRN")
	assert.Contains(t, buf.String(), "slow server")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestSetup_FileOutputAndLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	path := filepath.Join(t.TempDir(), "mcquery.log")
	l := Setup(Config{Level: "warn", Format: "json", Output: path})

	l.Info().Msg("hidden")
	l.Error().Msg("visible")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestSetup_BadLevelFallsBackToInfo(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	Setup(Config{Level: "loud", Format: "json", Output: filepath.Join(t.TempDir(), "x.log")})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
