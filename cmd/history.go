package cmd

import (
	"fmt"
	"text/tabwriter"

	"chapterd/config"
	"chapterd/history"
	"chapterd/parser"

	"github.com/spf13/cobra"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history [slug]",
	Short: "List recent chapter outcomes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadSettings(config.Options{})
		if err != nil {
			return err
		}
		if s.HistoryDB == "" {
			return fmt.Errorf("history_db is not set")
		}
		path, err := parser.ExpandPath(s.HistoryDB)
		if err != nil {
			return err
		}

		store, err := history.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		slug := ""
		if len(args) == 1 {
			slug = args[0]
		}
		entries, err := store.Recent(cmd.Context(), slug, flagHistoryLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No history yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tTITLE\tCHAPTER\tOUTCOME\tSITE\tIMAGES\tRUN")
		for _, en := range entries {
			outcome := string(en.Result.Outcome)
			if en.Result.Replaced {
				outcome += " (replaced)"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
				en.RecordedAt.Local().Format("2006-01-02 15:04"), en.Slug, en.Result.Chapter,
				outcome, en.Result.Source, en.Result.Images, shortID(en.RunID))
		}
		return w.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "number of rows")
	rootCmd.AddCommand(historyCmd)
}
