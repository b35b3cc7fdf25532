// Package controller attaches memory-priority protection to a pair of
// session cgroups. Two backends exist: a wrapper around the kernel-side
// loader binary (preferred, needs a patched kernel) and a userspace
// cgroup v2 fallback that approximates the same behavior with
// memory.low / memory.high writes. New auto-detects the best available
// backend.
package controller

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Config describes one protected set: a single HIGH cgroup and any
// number of LOW cgroups. It is fixed for the lifetime of an attachment.
type Config struct {
	HighPath string   `json:"high_path"`
	LowPaths []string `json:"low_paths"`

	// FaultThreshold and ThrottleDelay configure the decision engine;
	// see the memcg package.
	FaultThreshold uint64        `json:"fault_threshold"`
	ThrottleDelay  time.Duration `json:"throttle_delay"`
	UseBelowLow    bool          `json:"use_below_low"`
	UseBelowMin    bool          `json:"use_below_min"`

	// ProtectionWindow is how long the fallback backend holds the
	// protected state before restoring normal limits.
	ProtectionWindow time.Duration `json:"protection_window"`
}

func (c *Config) protectionWindow() time.Duration {
	if c.ProtectionWindow <= 0 {
		return time.Second
	}
	return c.ProtectionWindow
}

// Controller is the unified interface over both backends.
type Controller interface {
	// Attach starts protecting HIGH and throttling LOW.
	Attach(cfg Config) error
	// Detach stops all protection and restores defaults.
	Detach()
	// Poll runs one monitoring tick. The daemon owns the cadence.
	Poll(ctx context.Context)
	// Stats returns backend-specific statistics for reporting.
	Stats() map[string]string
	// Backend names the backend for logs and health output.
	Backend() string
}

// loaderBinary is where the kernel-side loader is expected relative to
// the daemon's installation directory.
func loaderBinary(dir string) string {
	return filepath.Join(dir, "memcg", "memcg_priority")
}

// New picks the best available backend: the kernel-side loader when its
// binary is present and executable, otherwise the cgroup v2 fallback.
func New(dir string, logger *zap.Logger) Controller {
	bin := loaderBinary(dir)
	if info, err := os.Stat(bin); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
		logger.Info("using kernel memcg backend", zap.String("binary", bin))
		return NewBPFController(bin, logger)
	}
	logger.Info("kernel memcg loader not found, using cgroup v2 fallback")
	return NewCgroupController(logger)
}
