package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chapterd/config"
	"chapterd/diag"
	"chapterd/engine"
	"chapterd/history"
	"chapterd/parser"
	"chapterd/ui"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	flagDryRun      bool
	flagTitles      []string
	flagWorkers     int
	flagMaxAttempts int
	flagSnapshots   bool
	flagNoProgress  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire every missing chapter for the catalog",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "show which chapters would be acquired, create nothing")
	runCmd.Flags().StringSliceVar(&flagTitles, "title", nil, "only process this slug (repeatable)")
	runCmd.Flags().IntVar(&flagWorkers, "workers", 0, "titles processed in parallel")
	runCmd.Flags().IntVar(&flagMaxAttempts, "max-attempts", 0, "attempts per chapter when the site does not set one")
	runCmd.Flags().BoolVar(&flagSnapshots, "snapshots", false, "save the DOM of failed extractions")
	runCmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "disable progress bars")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(config.Options{
		TitleWorkers: flagWorkers,
		MaxAttempts:  flagMaxAttempts,
		Snapshots:    flagSnapshots,
	})
	if err != nil {
		return err
	}

	titles, err := e.titles(flagTitles)
	if err != nil {
		return err
	}
	if len(titles) == 0 {
		e.logger.Info("No titles to process")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logDir, err := parser.ExpandPath(e.settings.LogDir)
	if err != nil {
		return fmt.Errorf("log dir: %w", err)
	}

	deps := engine.Deps{
		Adapters: e.registry,
		Archive:  e.archive,
		Launch:   e.launcher(),
		Fetchers: e.fetchers(),
		Board:    engine.NewBoard(),
	}

	if !flagDryRun {
		if e.settings.HistoryDB != "" {
			path, err := parser.ExpandPath(e.settings.HistoryDB)
			if err != nil {
				return fmt.Errorf("history db: %w", err)
			}
			store, err := history.Open(path)
			if err != nil {
				e.logger.Warnf("History disabled: %v", err)
			} else {
				defer store.Close()
				deps.Recorder = store
			}
		}
		if e.settings.Snapshots {
			snap, err := diag.New(diag.Options{Dir: filepath.Join(logDir, "snapshots"), RunID: runID})
			if err != nil {
				e.logger.Warnf("Snapshots disabled: %v", err)
			} else {
				deps.Observer = snap
				e.logger.Infof("Saving extraction snapshots to %s", snap.Dir())
			}
		}
	}

	eng, err := engine.New(deps, engine.Options{
		RunID:        runID,
		DryRun:       flagDryRun,
		MaxAttempts:  e.settings.MaxAttempts,
		TitleWorkers: e.settings.TitleWorkers,
	})
	if err != nil {
		return err
	}

	var progress *ui.Progress
	if !flagNoProgress && !flagDryRun {
		progress = ui.NewProgress(cmd.OutOrStdout())
		progress.Attach(deps.Board)
	}

	summary, updated := eng.Run(ctx, titles)
	if progress != nil {
		progress.Wait()
	}
	ui.RenderSummary(cmd.OutOrStdout(), summary)

	if flagDryRun {
		return nil
	}

	runLogs := filepath.Join(logDir, time.Now().Format("2006-01-02_15-04-05"))
	if _, err := ui.WriteTitleLogs(runLogs, summary); err != nil {
		e.logger.Warnf("Failed to write run logs: %v", err)
	}

	if err := e.saveRepaired(updated); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	if summary.HasErrors() {
		return errRunFailed
	}
	return nil
}
