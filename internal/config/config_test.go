package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
image = "python:3.7-slim"
step_timeout = "15m"
skip_addons = true
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "python:3.7-slim", cfg.Image)
	assert.True(t, cfg.SkipAddons)

	d, err := cfg.ParseStepTimeout()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)
}

func TestLoadFile_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultImage, cfg.Image)
}

// TestLoadFile_PartialFileKeepsDefaults verifies settings absent from
// the file keep their built-in values.
func TestLoadFile_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `skip_addons = true`))
	require.NoError(t, err)
	assert.Equal(t, DefaultImage, cfg.Image)
	assert.True(t, cfg.SkipAddons)
}

func TestLoadFile_InvalidTOML(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `image = `))
	assert.Error(t, err)
}

func TestLoadFile_InvalidTimeout(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `step_timeout = "soon"`))
	assert.Error(t, err)
}

func TestParseStepTimeout_Empty(t *testing.T) {
	d, err := Config{}.ParseStepTimeout()
	require.NoError(t, err)
	assert.Zero(t, d)
}
