package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docetl-project/docetl/internal/config"
	"github.com/docetl-project/docetl/internal/logging"
)

var (
	cfgFile string
	quiet   bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "docetl",
		Short:   "Document-processing pipeline engine.",
		Long:    `docetl runs, validates, schedules, and exports document-processing pipelines.`,
		Version: version,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config-file", "c", "", "config file (default is $HOME/.config/docetl/config.yaml)")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress console log output")
	root.PersistentFlags().String("db-path", "", "path to the metadata database file")
	root.PersistentFlags().String("log-level", "", "log level: \"debug\" enables debug records with source locations; any other value logs at info")
	root.PersistentFlags().String("log-format", "", "log output format (text, json)")
	root.PersistentFlags().Bool("start-scheduler", false, "recorded in the resolved config; no subcommand starts a scheduler from it")
	root.PersistentFlags().Bool("batch-mode", false, "recorded in the resolved config; no subcommand changes its behaviour on it")
	root.PersistentFlags().StringSlice("input-files", nil, "glob patterns selecting input documents")

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(exportCmd())

	return root
}

// bindFlags binds cmd's own persistent flags into a fresh viper.Viper,
// so config.Load resolves flags > env > file > defaults against it.
func bindFlags(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	for _, name := range []string{"db-path", "log-level", "log-format", "start-scheduler", "batch-mode", "input-files"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return v, nil
}

// loadConfigAndLogger resolves Config from cmd's flags and builds the
// Logger every subcommand logs through.
func loadConfigAndLogger(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	v, err := bindFlags(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	opts := []logging.Option{logging.WithFormat(cfg.LogFormat)}
	if cfg.LogLevel == "debug" {
		opts = append(opts, logging.WithDebug())
	}
	if quiet {
		opts = append(opts, logging.WithQuiet())
	}
	return cfg, logging.NewLogger(opts...), nil
}
