// Package cli implements the agentcgroupd command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yunwei37/agentcgroup/internal/config"
)

var flags struct {
	configFile string
	cgroupRoot string
	highPath   string
	lowPaths   []string
	delayMS    uint32
	threshold  uint64
	belowLow   bool
	belowMin   bool
	listen     string
	setup      bool
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:   "agentcgroupd",
	Short: "Priority-based memory protection for agent session cgroups",
	Long: `agentcgroupd shields a HIGH priority session cgroup from memory
reclaim pressure and throttles LOW priority sessions while the HIGH
session is under page-fault pressure.

It prefers the kernel-side memcg program when its loader binary is
installed and falls back to standard cgroup v2 memory.low/memory.high
controls otherwise.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agentcgroupd: %v\n", err)
		return err
	}
	return nil
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.configFile, "config", "", "config file (YAML)")
	f.StringVar(&flags.cgroupRoot, "cgroup-root", "", "root cgroup path (default /sys/fs/cgroup/agentcg)")
	f.StringVar(&flags.highPath, "high", "", "path to HIGH priority cgroup (default <root>/session_high)")
	f.StringArrayVar(&flags.lowPaths, "low", nil, "path to a LOW priority cgroup (repeatable, default <root>/session_low)")
	f.Uint32Var(&flags.delayMS, "delay-ms", 0, "throttle delay in ms for LOW cgroups")
	f.Uint64Var(&flags.threshold, "threshold", 0, "page fault threshold")
	f.BoolVar(&flags.belowLow, "below-low", false, "protect HIGH via the below_low callback")
	f.BoolVar(&flags.belowMin, "below-min", false, "protect HIGH via the below_min callback")
	f.StringVar(&flags.listen, "listen", "", "debug HTTP listen address (empty disables)")
	f.BoolVar(&flags.setup, "setup-hierarchy", false, "create the session cgroup hierarchy before attaching")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose output")
}

// loadConfig merges the config file, environment, and explicit flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}

	set := cmd.Flags().Changed
	if set("cgroup-root") {
		cfg.CgroupRoot = flags.cgroupRoot
	}
	if set("high") {
		cfg.HighPath = flags.highPath
	}
	if set("low") {
		cfg.LowPaths = flags.lowPaths
	}
	if set("delay-ms") {
		cfg.DelayMS = flags.delayMS
	}
	if set("threshold") {
		cfg.Threshold = flags.threshold
	}
	if set("below-low") {
		cfg.UseBelowLow = flags.belowLow
	}
	if set("below-min") {
		cfg.UseBelowMin = flags.belowMin
	}
	if set("listen") {
		cfg.Listen = flags.listen
	}
	if flags.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// binDir resolves where to look for the kernel-side loader binary.
func binDir(cfg *config.Config) string {
	if cfg.BinDir != "" {
		return cfg.BinDir
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
