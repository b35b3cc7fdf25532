// Package config loads the daemon configuration from an optional YAML
// file and AGENTCG_* environment variables. Command-line flags override
// both.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the daemon configuration.
type Config struct {
	// CgroupRoot is the managed cgroup root; session_high and
	// session_low live under it when explicit paths are not given.
	CgroupRoot string `mapstructure:"cgroup_root"`

	// HighPath and LowPaths override the session cgroups derived from
	// CgroupRoot.
	HighPath string   `mapstructure:"high_path"`
	LowPaths []string `mapstructure:"low_paths"`

	DelayMS     uint32 `mapstructure:"delay_ms"`
	Threshold   uint64 `mapstructure:"threshold"`
	UseBelowLow bool   `mapstructure:"use_below_low"`
	UseBelowMin bool   `mapstructure:"use_below_min"`

	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ProtectionWindow time.Duration `mapstructure:"protection_window"`

	// Listen is the debug HTTP address; empty disables the listener.
	Listen string `mapstructure:"listen"`

	LogLevel string `mapstructure:"log_level"`

	// BinDir is where the kernel-side loader binary is looked up.
	// Empty means the daemon's own directory.
	BinDir string `mapstructure:"bin_dir"`
}

// ThrottleDelay returns the throttle delay as a duration.
func (c *Config) ThrottleDelay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.CgroupRoot == "" && c.HighPath == "" {
		return errors.New("either cgroup_root or high_path must be set")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cgroup_root", "/sys/fs/cgroup/agentcg")
	v.SetDefault("delay_ms", 2000)
	v.SetDefault("threshold", 1)
	v.SetDefault("use_below_low", true)
	v.SetDefault("use_below_min", false)
	v.SetDefault("poll_interval", 100*time.Millisecond)
	v.SetDefault("protection_window", time.Second)
	v.SetDefault("listen", "")
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTCG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
