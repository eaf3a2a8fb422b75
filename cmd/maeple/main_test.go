package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Reliance/maeple/internal/config"
)

// writeTestConfig points the package-level dataDir at a temp directory with a
// config.yaml for the given provider and neutralizes any ambient env keys.
func writeTestConfig(t *testing.T, providerName string) {
	t.Helper()
	dir := t.TempDir()

	prev := dataDir
	dataDir = dir
	t.Cleanup(func() { dataDir = prev })

	t.Setenv("MAEPLE_PROVIDER", "")
	t.Setenv("MAEPLE_DB", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg := config.DefaultConfig()
	cfg.Provider.Provider = providerName
	cfg.Storage.DatabasePath = filepath.Join(dir, "maeple.db")
	require.NoError(t, cfg.Save(filepath.Join(dir, "config.yaml")))
}

func TestBuildApp_InspectionWorksWithoutAPIKey(t *testing.T) {
	writeTestConfig(t, "gemini")

	app, err := buildApp(false)
	require.NoError(t, err, "status and purge must not need a provider key")
	defer app.Close()

	assert.Nil(t, app.Client, "no provider client is wired in inspection mode")
	assert.Nil(t, app.Analyzer)

	status, err := app.Queue.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, status.Entries)

	purged, err := app.Queue.PurgeStale()
	require.NoError(t, err)
	assert.Equal(t, 0, purged)
}

func TestBuildApp_AnalysisRequiresAPIKey(t *testing.T) {
	writeTestConfig(t, "gemini")

	_, err := buildApp(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}
