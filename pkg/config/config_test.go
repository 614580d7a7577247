package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/wal"
)

func TestDefaultConfig_IsUsableAsIs(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 5, cfg.CheckpointThreshold)
	require.Equal(t, 5433, cfg.ServerPort)
	require.Equal(t, lock.WaitDieVariant, cfg.LockVariant())
}

func TestLoad_OverridesOnlyNamedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkpoint_threshold: 20\ncc_variant: mvcc\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 20, cfg.CheckpointThreshold)
	require.Equal(t, lock.MVCCVariant, cfg.LockVariant())
	// untouched keys keep their default
	require.Equal(t, 5433, cfg.ServerPort)
	require.Equal(t, 50, cfg.Optimizer.PopulationSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWALOptions_TranslatesSyncPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WAL.SyncPolicy = "eager"
	opts := cfg.WALOptions("/tmp/wal")
	require.Equal(t, wal.SyncEveryWrite, opts.SyncPolicy)
	require.Equal(t, "/tmp/wal", opts.DirPath)
}

func TestWALOptions_UnrecognizedPolicyDefaultsToInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WAL.SyncPolicy = "bogus"
	opts := cfg.WALOptions("/tmp/wal")
	require.Equal(t, wal.SyncInterval, opts.SyncPolicy)
}
