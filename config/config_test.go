package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 256, cfg.Tree.Depth)
	assert.Equal(t, 14*24*time.Hour, cfg.Settlement.ExitChallengePeriod)
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plasma.yaml")
	content := `
settlement:
  exit_challenge_period: 1h
  lock_stripes: 16
database:
  path: /tmp/plasma
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Settlement.ExitChallengePeriod)
	assert.Equal(t, 16, cfg.Settlement.LockStripes)
	assert.Equal(t, "/tmp/plasma", cfg.Database.Path)
	// 未出现的字段保持默认
	assert.Equal(t, 7*24*time.Hour, cfg.Settlement.CheckpointChallengePeriod)
	assert.Equal(t, 1024, cfg.Database.RootCacheSize)
}

func TestLoadFromFile_EmptyPath(t *testing.T) {
	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate_Rejects(t *testing.T) {
	t.Run("depth", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tree.Depth = 300
		assert.Error(t, cfg.Validate())
	})
	t.Run("period", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Settlement.ExitChallengePeriod = 0
		assert.Error(t, cfg.Validate())
	})
	t.Run("stripes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Settlement.LockStripes = 0
		assert.Error(t, cfg.Validate())
	})
}
