package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagSettings     string
	flagIgnoreConfig bool
	flagDebug        bool
	flagCatalog      string
	flagPicturesDir  string
	flagLogDir       string
)

// errRunFailed marks a run that finished with title errors; the summary already explains them.
var errRunFailed = errors.New("run finished with errors")

var rootCmd = &cobra.Command{
	Use:           "chapterd",
	Short:         "Keep a local archive of web comic chapters up to date",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSettings, "config", "", "settings file (default ~/.config/chapterd/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagIgnoreConfig, "ignore-config", false, "ignore the settings file and use defaults plus flags")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagCatalog, "catalog", "", "catalog file")
	rootCmd.PersistentFlags().StringVar(&flagPicturesDir, "pictures-dir", "", "archive root")
	rootCmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "directory for run logs and snapshots")
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
