package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coilstep/host/config"
)

var rootCmd = &cobra.Command{
	Use:   "coilstep-host",
	Short: "Host tools for the coilstep stepper firmware",
	Long: `coilstep-host talks to a coilstep device over USB serial (or to the
built-in simulator) and offers an interactive shell, one-shot commands and
an HTTP bridge.`,
	SilenceUsage: true,
}

var (
	flagConfig   string
	flagDevice   string
	flagSimulate bool
	flagLogLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&flagDevice, "device", "d", "", "serial device path or tcp://host:port")
	rootCmd.PersistentFlags().BoolVar(&flagSimulate, "sim", false, "use the built-in simulator instead of a device")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Serial.Device = flagDevice
	}
	if flags.Changed("sim") {
		cfg.Simulate = flagSimulate
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the console logger for the configured level
func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableStacktrace = true
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}
