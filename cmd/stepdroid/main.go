package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/stepdroid/internal/config"
	"github.com/v0xg/stepdroid/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger = zap.NewNop()
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stepdroid",
		Short: "Run step-by-step UI automation workflows on a device surface",
		Long: `stepdroid executes workflows of natural-language steps against a
browser-backed device surface. Each step is turned into an action such as
do(action="Tap", element=[500,300]), dispatched, verified against
before/after screenshots, and branched on its outcome.

Example:
  stepdroid run app_launch
  stepdroid run checkin.yaml --record run.gif
  stepdroid parse 'do(action="Launch", app="Settings")'`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")

	rootCmd.AddCommand(
		newRunCmd(),
		newExecCmd(),
		newParseCmd(),
		newValidateCmd(),
		newTemplatesCmd(),
	)
	return rootCmd
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}
	logger = observability.NewLogger(cfg.Logger)
	logger.Debug("configuration loaded", zap.String("file", cfgFile))
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
