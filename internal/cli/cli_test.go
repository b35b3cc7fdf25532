package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/yunwei37/agentcgroup/internal/config"
)

func TestSessionPathsFromRoot(t *testing.T) {
	cfg := &config.Config{CgroupRoot: "/sys/fs/cgroup/agentcg"}

	high, lows := sessionPaths(cfg)
	assert.Equal(t, "/sys/fs/cgroup/agentcg/session_high", high)
	assert.Equal(t, []string{"/sys/fs/cgroup/agentcg/session_low"}, lows)
}

func TestSessionPathsExplicitOverride(t *testing.T) {
	cfg := &config.Config{
		CgroupRoot: "/sys/fs/cgroup/agentcg",
		HighPath:   "/sys/fs/cgroup/other/high",
		LowPaths:   []string{"/sys/fs/cgroup/other/low1", "/sys/fs/cgroup/other/low2"},
	}

	high, lows := sessionPaths(cfg)
	assert.Equal(t, "/sys/fs/cgroup/other/high", high)
	assert.Len(t, lows, 2)
}

func TestBuildLogger(t *testing.T) {
	logger, err := buildLogger("info")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = buildLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = buildLogger("nope")
	assert.Error(t, err)
}

func TestBinDir(t *testing.T) {
	cfg := &config.Config{BinDir: "/opt/agentcg"}
	assert.Equal(t, "/opt/agentcg", binDir(cfg))

	cfg = &config.Config{}
	assert.NotEmpty(t, binDir(cfg))
}
