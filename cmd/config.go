package cmd

import (
	"fmt"
	"os"

	"chapterd/config"
	"chapterd/parser"

	"github.com/spf13/cobra"
)

var flagForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage chapterd settings",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := flagSettings
		if path == "" {
			path = config.DefaultSettingsPath
		}
		location, err := parser.ExpandPath(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if _, err := os.Stat(location); err == nil && !flagForce {
			fmt.Fprintln(out, "Settings already exist at:")
			fmt.Fprintln(out, "  ", location)
			fmt.Fprintln(out, "Use --force to overwrite them with the defaults.")
			return nil
		}

		def := config.DefaultSettings()
		if err := config.SaveSettings(def, location); err != nil {
			return fmt.Errorf("failed to write settings file: %w", err)
		}

		fmt.Fprintln(out, "Settings created at:", location)
		def.Print()
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, used, err := loadSettings(config.Options{})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Settings:", used)
		s.Print()
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&flagForce, "force", false, "overwrite an existing settings file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
