package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yunwei37/agentcgroup/internal/cgroups"
	"github.com/yunwei37/agentcgroup/internal/config"
	"github.com/yunwei37/agentcgroup/internal/controller"
	"github.com/yunwei37/agentcgroup/internal/lifecycle"
	"github.com/yunwei37/agentcgroup/internal/memcg"
	"github.com/yunwei37/agentcgroup/internal/reporter"
	"github.com/yunwei37/agentcgroup/internal/server"
)

const shutdownTimeout = 30 * time.Second

func buildLogger(level string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	if level == "debug" {
		logCfg = zap.NewDevelopmentConfig()
	} else if level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		logCfg.Level = parsed
	}
	return logCfg.Build()
}

// sessionPaths derives the HIGH and LOW cgroup paths from the config,
// defaulting to the session cgroups under the managed root.
func sessionPaths(cfg *config.Config) (high string, lows []string) {
	high = cfg.HighPath
	if high == "" {
		high = cgroups.HighPath(cfg.CgroupRoot)
	}
	lows = cfg.LowPaths
	if len(lows) == 0 && cfg.CgroupRoot != "" {
		lows = []string{cgroups.LowPath(cfg.CgroupRoot)}
	}
	return high, lows
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if os.Geteuid() != 0 {
		logger.Warn("not running as root, cgroup writes will likely fail")
	}

	if flags.setup {
		if err := cgroups.SetupHierarchy(cfg.CgroupRoot, logger); err != nil {
			return err
		}
	}

	high, lows := sessionPaths(cfg)
	logger.Info("configuration",
		zap.String("high", high),
		zap.Strings("low", lows),
		zap.Uint64("threshold", cfg.Threshold),
		zap.Uint32("delay_ms", cfg.DelayMS),
		zap.Bool("below_low", cfg.UseBelowLow),
		zap.Bool("below_min", cfg.UseBelowMin))

	ctrl := controller.New(binDir(cfg), logger)
	attachCfg := controller.Config{
		HighPath:         high,
		LowPaths:         lows,
		FaultThreshold:   cfg.Threshold,
		ThrottleDelay:    cfg.ThrottleDelay(),
		UseBelowLow:      cfg.UseBelowLow,
		UseBelowMin:      cfg.UseBelowMin,
		ProtectionWindow: cfg.ProtectionWindow,
	}
	if err := ctrl.Attach(attachCfg); err != nil {
		return fmt.Errorf("attach %s backend: %w", ctrl.Backend(), err)
	}
	logger.Info("memcg protection attached", zap.String("backend", ctrl.Backend()))

	var engine *memcg.Engine
	if cg, ok := ctrl.(*controller.CgroupController); ok {
		engine = cg.Engine()
	}

	repOpts := []reporter.Option{reporter.WithInterval(time.Second)}
	if flags.verbose {
		repOpts = append(repOpts, reporter.WithVerbose())
	}
	rep, err := reporter.New(engine, ctrl, logger, repOpts...)
	if err != nil {
		ctrl.Detach()
		return err
	}
	defer rep.Close()

	lm := lifecycle.New(context.Background(), logger)

	lm.Start("poll", func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-lm.StopChannel():
				return
			case <-ticker.C:
				ctrl.Poll(lm.Context())
			}
		}
	})

	lm.Start("reporter", func() {
		rep.Run(lm.Context(), lm.StopChannel())
	})

	if cfg.Listen != "" {
		srv := server.New(cfg.Listen, engine, ctrl, logger)
		lm.Start("server", func() {
			if err := srv.Run(lm.Context()); err != nil {
				logger.Error("debug server failed", zap.Error(err))
			}
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	ctrl.Detach()
	if err := lm.Stop(shutdownTimeout); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}

	fmt.Println(rep.RenderTable())
	return nil
}
