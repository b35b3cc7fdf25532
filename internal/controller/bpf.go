package controller

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// BPFController supervises the kernel-side loader binary, which loads
// the memcg struct_ops program and binds it to the session cgroups.
// All decisions run in the kernel; this side only builds the argv,
// keeps the process alive, and notices when it dies.
type BPFController struct {
	binary string
	logger *zap.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan error
}

// NewBPFController creates a controller around the loader binary.
func NewBPFController(binary string, logger *zap.Logger) *BPFController {
	return &BPFController{
		binary: binary,
		logger: logger.Named("memcg-bpf"),
	}
}

func (c *BPFController) Backend() string { return "bpf" }

// loaderArgs builds the loader's command line from an attachment
// config.
func loaderArgs(cfg Config) []string {
	args := []string{"--high", cfg.HighPath}
	for _, low := range cfg.LowPaths {
		args = append(args, "--low", low)
	}
	args = append(args,
		"--delay-ms", strconv.FormatInt(cfg.ThrottleDelay.Milliseconds(), 10),
		"--threshold", strconv.FormatUint(cfg.FaultThreshold, 10),
	)
	if cfg.UseBelowLow {
		args = append(args, "--below-low")
	}
	if cfg.UseBelowMin {
		args = append(args, "--below-min")
	}
	return args
}

// Attach starts the loader process.
func (c *BPFController) Attach(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return fmt.Errorf("bpf controller already attached")
	}

	cmd := exec.Command(c.binary, loaderArgs(cfg)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	c.cmd = cmd
	c.done = done
	c.logger.Info("kernel memcg loader started",
		zap.Int("pid", cmd.Process.Pid),
		zap.Strings("args", cmd.Args[1:]))
	return nil
}

// Poll notices an unexpectedly exited loader.
func (c *BPFController) Poll(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return
	}
	select {
	case err := <-c.done:
		c.logger.Warn("kernel memcg loader exited unexpectedly", zap.Error(err))
		c.cmd = nil
		c.done = nil
	default:
	}
}

// Detach terminates the loader, escalating to SIGKILL after a grace
// period.
func (c *BPFController) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return
	}

	pid := c.cmd.Process.Pid
	c.logger.Info("stopping kernel memcg loader", zap.Int("pid", pid))
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		c.logger.Warn("signal loader", zap.Error(err))
	}

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		c.logger.Warn("force killing kernel memcg loader", zap.Int("pid", pid))
		_ = c.cmd.Process.Kill()
		<-c.done
	}
	c.cmd = nil
	c.done = nil
}

// Stats reports whether the loader process is running. Counter values
// live in the kernel maps and are printed by the loader itself.
func (c *BPFController) Stats() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	running := "false"
	if c.cmd != nil {
		running = "true"
	}
	return map[string]string{
		"backend": "bpf",
		"running": running,
	}
}
