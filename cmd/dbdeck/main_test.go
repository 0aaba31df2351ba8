// Package main provides tests for the DBDeck CLI.
package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags() {
	configFile = ""
	storePath = ""
	port = 0
	verbose = false
}

func TestVersionCmd(t *testing.T) {
	require.NoError(t, versionCmd(nil))
}

func TestMigrateCmd(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)

	path := filepath.Join(t.TempDir(), "data", "registry.db")
	require.NoError(t, migrateCmd([]string{"-store", path}))

	// The store directory and database exist after migration.
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)

	storePath = "/tmp/custom.db"
	port = 9090
	verbose = true

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Store.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Verbose)
}
