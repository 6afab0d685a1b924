package cmd

import (
	"fmt"

	"chapterd/config"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the chapterd version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.VersionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
