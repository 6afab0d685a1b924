package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chapterd/config"
	"chapterd/engine"
	"chapterd/ui"

	"github.com/spf13/cobra"
)

var flagCheckTitles []string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare local and online latest chapters without downloading",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := newEnv(config.Options{})
		if err != nil {
			return err
		}
		titles, err := e.titles(flagCheckTitles)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := engine.New(engine.Deps{
			Adapters: e.registry,
			Archive:  e.archive,
			Launch:   e.launcher(),
			Fetchers: e.fetchers(),
		}, engine.Options{Check: true, TitleWorkers: e.settings.TitleWorkers})
		if err != nil {
			return err
		}

		summary, updated := eng.Run(ctx, titles)
		ui.CheckReport(cmd.OutOrStdout(), summary)

		if err := e.saveRepaired(updated); err != nil {
			return fmt.Errorf("save catalog: %w", err)
		}
		if summary.HasErrors() {
			return errRunFailed
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringSliceVar(&flagCheckTitles, "title", nil, "only check this slug (repeatable)")
	rootCmd.AddCommand(checkCmd)
}
