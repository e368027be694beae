package cmd

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tpsl-guard/internal/config"
	"github.com/ducminhle1904/tpsl-guard/internal/logger"
)

// RootConfig carries the persistent flags and what PersistentPreRunE builds
// from them: the effective configuration and the process logger.
type RootConfig struct {
	ConfigFile string
	EnvFile    string
	LogLevel   string
	ConsoleLog bool

	cfg       *config.Config
	log       *logger.Logger
	out       io.Writer
	newClient func(*config.Config) exchangeClient
}

// Config returns the effective configuration
func (rc *RootConfig) Config() *config.Config {
	return rc.cfg
}

// Logger returns the process logger, a no-op logger before setup
func (rc *RootConfig) Logger() *zap.Logger {
	if rc.log == nil {
		return zap.NewNop()
	}
	return rc.log.Logger
}

func (rc *RootConfig) setup(cmd *cobra.Command) error {
	rc.out = cmd.OutOrStdout()

	if err := config.LoadEnvFile(rc.EnvFile); err != nil {
		return err
	}
	cfg, err := config.LoadFile(rc.ConfigFile)
	if err != nil {
		return err
	}
	if rc.LogLevel != "" {
		cfg.Logging.Level = rc.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rc.cfg = cfg

	log, err := logger.New(logger.Options{
		Name:        "tpsl",
		Level:       cfg.Logging.Level,
		Dir:         cfg.Logging.Dir,
		ConsoleOnly: rc.ConsoleLog,
	})
	if err != nil {
		return err
	}
	rc.log = log
	return nil
}

func (rc *RootConfig) teardown() error {
	if rc.log == nil {
		return nil
	}
	return rc.log.Close()
}

// NewRootCmd builds the tpslctl command tree
func NewRootCmd() *cobra.Command {
	return newRootCmd(&RootConfig{})
}

func newRootCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tpslctl",
		Short: "Protective order guardrail, ladder policy and stop-loss calibration",
		Long: `tpslctl drives the protective-order risk core.

It provides tools for:
  - Checking whether an order mutation would pass the guardrail
  - Computing take-profit ladders and stop-loss levels
  - Calibrating stop-loss distances from the trade outcome log
  - Downloading klines for offline ATR
  - Exporting ladder and calibration reports
  - Serving Prometheus metrics and a health endpoint`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rc.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return rc.teardown()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&rc.ConfigFile, "config", "c", "", "path to YAML config file")
	flags.StringVar(&rc.EnvFile, "env-file", ".env", "path to .env file (ignored when missing)")
	flags.StringVar(&rc.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	flags.BoolVar(&rc.ConsoleLog, "console-log", false, "log to stderr only, no log file")

	cmd.AddCommand(
		newCheckCmd(rc),
		newLadderCmd(rc),
		newCalibrateCmd(rc),
		newCandlesCmd(rc),
		newConfigCmd(rc),
		newReportCmd(rc),
		newServeCmd(rc),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
