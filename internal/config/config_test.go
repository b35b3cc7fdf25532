package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/sys/fs/cgroup/agentcg", cfg.CgroupRoot)
	assert.Equal(t, uint32(2000), cfg.DelayMS)
	assert.Equal(t, 2*time.Second, cfg.ThrottleDelay())
	assert.Equal(t, uint64(1), cfg.Threshold)
	assert.True(t, cfg.UseBelowLow)
	assert.False(t, cfg.UseBelowMin)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.ProtectionWindow)
	assert.Empty(t, cfg.Listen)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cgroup_root: /sys/fs/cgroup/custom
delay_ms: 500
threshold: 10
use_below_min: true
poll_interval: 250ms
listen: 127.0.0.1:9901
log_level: debug
low_paths:
  - /sys/fs/cgroup/custom/low_a
  - /sys/fs/cgroup/custom/low_b
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/sys/fs/cgroup/custom", cfg.CgroupRoot)
	assert.Equal(t, 500*time.Millisecond, cfg.ThrottleDelay())
	assert.Equal(t, uint64(10), cfg.Threshold)
	assert.True(t, cfg.UseBelowMin)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "127.0.0.1:9901", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Len(t, cfg.LowPaths, 2)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AGENTCG_THRESHOLD", "42")
	t.Setenv("AGENTCG_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cfg.Threshold)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	cfg := &Config{PollInterval: time.Second}
	assert.Error(t, cfg.Validate(), "needs a cgroup root or an explicit high path")

	cfg = &Config{CgroupRoot: "/sys/fs/cgroup/agentcg"}
	assert.Error(t, cfg.Validate(), "needs a positive poll interval")

	cfg = &Config{HighPath: "/sys/fs/cgroup/x/high", PollInterval: time.Second}
	assert.NoError(t, cfg.Validate())
}
