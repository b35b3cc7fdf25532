package cgroups

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// HighPath returns the HIGH session cgroup under root.
func HighPath(root string) string {
	return filepath.Join(root, SessionHigh)
}

// LowPath returns the LOW session cgroup under root.
func LowPath(root string) string {
	return filepath.Join(root, SessionLow)
}

// SetupHierarchy creates the session_high and session_low cgroups under
// root, enables the memory and cpu controllers on root and on
// session_high (per-tool-call child cgroups live there), and biases CPU
// weight toward the HIGH session. Controller writes are best effort:
// delegation varies between hosts and a missing controller only loses a
// knob, so failures are logged and setup continues.
func SetupHierarchy(root string, logger *zap.Logger) error {
	high := HighPath(root)
	low := LowPath(root)

	for _, dir := range []string{high, low} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cgroup %s: %w", dir, err)
		}
	}

	writes := []struct {
		path, name, value string
	}{
		{root, "cgroup.subtree_control", "+memory +cpu"},
		{high, "cgroup.subtree_control", "+memory +cpu"},
		{high, "cpu.weight", "150"},
		{low, "cpu.weight", "50"},
	}
	for _, w := range writes {
		if err := WriteControl(w.path, w.name, w.value); err != nil {
			logger.Warn("cgroup control write failed", zap.Error(err))
		}
	}

	logger.Info("cgroup hierarchy ready", zap.String("root", root))
	return nil
}

// ScanToolGroups lists the per-tool-call child cgroups under the HIGH
// session. The tool wrapper creates them with a tool_ prefix and
// removes them when the call finishes.
func ScanToolGroups(highPath string) []string {
	entries, err := os.ReadDir(highPath)
	if err != nil {
		return nil
	}
	var groups []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "tool_") {
			groups = append(groups, filepath.Join(highPath, entry.Name()))
		}
	}
	return groups
}
