package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/pitchlink/authkit"
	"github.com/pitchlink/authkit/internal/config"
	"github.com/pitchlink/authkit/internal/logging"
)

func TestNewDevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(config.Development, "debug", &buf)

	log.Debug("dbg", "a", 1)
	log.Info("inf", "b", 2)

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "msg=dbg")
	assert.Contains(t, out, "a=1")
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "app=authkit")
}

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(config.Production, "info", &buf)

	log.Debug("hidden")
	log.Warn("careful", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "careful", entry["msg"])
	assert.Equal(t, "v", entry["k"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("verbose"))
}

func TestSlogSatisfiesAuthLogger(t *testing.T) {
	var buf bytes.Buffer
	var logger auth.Logger = logging.New(config.Development, "info", &buf)

	logger.Info("sign in", "email", "jane@x.com")
	assert.Contains(t, buf.String(), "email=jane@x.com")
}
