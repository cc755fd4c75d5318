package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ripd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":53\"\nrate_limit_qps: 50\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":53", cfg.ListenAddr)
	assert.Equal(t, float64(50), cfg.RateLimitQPS)
	// Untouched fields keep their defaults.
	assert.Equal(t, 3*time.Second, cfg.QueryTimeout)
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ripd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_connectivity_policy: \"explode\"\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/ripd.yaml")
	assert.Error(t, err)
}


