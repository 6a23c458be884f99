package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/born-ml/n2s/internal/config"
	"github.com/born-ml/n2s/internal/observability"
)

var version = "v0.1.0-dev"

// app carries state shared by subcommands once the root pre-run has loaded
// the configuration.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "n2s",
		Short: "Classify questions over tables into SQL components",
		Long: `n2s runs the first-stage NL2SQL model: a BERT encoder with heads for the
condition connector, per-column aggregation and per-column comparison.

Examples:
  # Predict with explicit headers
  n2s predict "哪些城市的人口超过一千万" --header 城市 --header 人口

  # Read headers from a Postgres table
  n2s predict "平均面积是多少" --table cities

  # Write an initial checkpoint from the pretrained encoder
  n2s checkpoint init`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file path (yaml, toml or json)")
	flags.String("device", "cpu", "compute device (cpu, webgpu)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("cache-dir", "", "directory for downloaded models")
	a.bind(flags, "device", "device")
	a.bind(flags, "log.level", "log-level")
	a.bind(flags, "log.format", "log-format")
	a.bind(flags, "cache_dir", "cache-dir")

	root.AddCommand(
		newVersionCmd(),
		newConfigCmd(a),
		newPredictCmd(a),
		newInspectCmd(a),
		newTablesCmd(a),
		newCheckpointCmd(a),
	)
	return root
}

// bind ties a flag to a config key. Flag defaults do not override the
// config file or environment; only flags set on the command line do.
func (a *app) bind(flags *pflag.FlagSet, key, name string) {
	if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgFile, config.WithViper(a.v))
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "n2s %s\n", version)
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), a.cfg.String()+"\n")
			return err
		},
	}
}
