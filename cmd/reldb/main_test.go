package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["shell"])
	require.True(t, names["checkpoint"])
}

func TestCheckpointOnEmptyDataDirNoOps(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "reldb.yaml")
	yamlBody := "data_dir: " + filepath.Join(dir, "data") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlBody), 0o644))

	rootCmd.SetArgs([]string{"checkpoint", "--config", cfgPath})
	err := rootCmd.Execute()
	require.NoError(t, err)
}

func TestLoadConfigDefaultsWithoutFlag(t *testing.T) {
	cfg, err := loadConfig(serveCmd)
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, 5433, cfg.ServerPort)
}
