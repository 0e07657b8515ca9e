package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	opts := Default()
	require.Greater(t, opts.ComputeCycleLimit, 0)
	require.Greater(t, opts.PrefetchBatchSize, 0)
	require.True(t, opts.TelemetryEnabled)
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), opts)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "objectcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compute-cycle-limit: 5\ntelemetry-enabled: false\n"), 0o600))

	opts, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, opts.ComputeCycleLimit)
	require.False(t, opts.TelemetryEnabled)
	require.Equal(t, Default().PrefetchBatchSize, opts.PrefetchBatchSize)
}

func TestLoadMalformedYamlErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
