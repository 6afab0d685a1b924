package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"chapterd/models"
)

// FormatChapters compacts ascending chapter numbers, e.g. "3-6, 9".
func FormatChapters(nums []int) string {
	if len(nums) == 0 {
		return "none"
	}
	var parts []string
	start, prev := nums[0], nums[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, n := range nums[1:] {
		if n == prev+1 {
			prev = n
			continue
		}
		flush()
		start, prev = n, n
	}
	flush()
	return strings.Join(parts, ", ")
}

// RenderSummary writes the end-of-run report.
func RenderSummary(w io.Writer, s models.RunSummary) {
	committed, failed, errored := 0, 0, 0
	for _, t := range s.Titles {
		committed += len(t.Committed())
		failed += len(t.Failed())
		if t.Err != "" {
			errored++
		}
	}

	header := "Run"
	if s.DryRun {
		header = "Dry run"
	}
	fmt.Fprintf(w, "\n%s %s: %d titles, %d chapters committed, %d failed, %d titles with errors\n",
		header, s.RunID, len(s.Titles), committed, failed, errored)

	for _, t := range s.Titles {
		fmt.Fprintln(w)
		writeTitle(w, t, "  ")
	}
}

// CheckReport writes the local/online comparison of every source.
func CheckReport(w io.Writer, s models.RunSummary) {
	for _, t := range s.Titles {
		fmt.Fprintf(w, "%s\n", t.Slug)
		for _, c := range t.Checks {
			mark := " "
			if c.Source.Site == t.Acting && t.Acting != "" {
				mark = "*"
			}
			switch {
			case !c.Reachable:
				fmt.Fprintf(w, " %s %-12s local %-4d unreachable: %s\n", mark, c.Source.Site, c.LocalLatest, c.Err)
			case c.Online > c.LocalLatest:
				fmt.Fprintf(w, " %s %-12s local %-4d online %-4d %d new\n", mark, c.Source.Site, c.LocalLatest, c.Online, c.Online-c.LocalLatest)
			default:
				fmt.Fprintf(w, " %s %-12s local %-4d online %-4d up to date\n", mark, c.Source.Site, c.LocalLatest, c.Online)
			}
			if c.Repaired {
				fmt.Fprintf(w, "   %-12s repaired URL %s\n", "", c.Source.URL)
			}
		}
		if t.Err != "" {
			fmt.Fprintf(w, "   error: %s\n", t.Err)
		}
	}
}

func writeTitle(w io.Writer, t models.TitleReport, indent string) {
	fmt.Fprintf(w, "%s%s\n", indent, t.Slug)
	if t.Acting != "" {
		fmt.Fprintf(w, "%s  acting source: %s\n", indent, t.Acting)
	} else {
		fmt.Fprintf(w, "%s  acting source: none (up to date)\n", indent)
	}
	for _, c := range t.Checks {
		if c.Reachable {
			fmt.Fprintf(w, "%s  %s: local %d, online %d\n", indent, c.Source.Site, c.LocalLatest, c.Online)
		}
	}
	if len(t.Planned) > 0 {
		fmt.Fprintf(w, "%s  would acquire: %s\n", indent, FormatChapters(t.Planned))
	}
	if committed := t.Committed(); len(committed) > 0 {
		fmt.Fprintf(w, "%s  committed: %s\n", indent, FormatChapters(committed))
	}
	for _, c := range t.Chapters {
		if c.Outcome == models.OutcomeCommitted && c.Replaced {
			fmt.Fprintf(w, "%s  replaced foreign chapter %d\n", indent, c.Chapter)
		}
	}
	if failed := t.Failed(); len(failed) > 0 {
		fmt.Fprintf(w, "%s  failed: %s\n", indent, FormatChapters(failed))
		for _, c := range t.Chapters {
			if c.Outcome == models.OutcomeFailed {
				fmt.Fprintf(w, "%s    chapter %d: %s\n", indent, c.Chapter, c.Err)
			}
		}
	}
	if t.TerminalAt > 0 {
		fmt.Fprintf(w, "%s  stopped at chapter %d (not published yet)\n", indent, t.TerminalAt)
	}
	for _, c := range t.Checks {
		if !c.Reachable {
			fmt.Fprintf(w, "%s  unreachable %s: %s\n", indent, c.Source.Site, c.Err)
		}
	}
	for _, r := range t.Repaired {
		fmt.Fprintf(w, "%s  repaired %s URL: %s\n", indent, r.Site, r.URL)
	}
	if t.Err != "" {
		fmt.Fprintf(w, "%s  error: %s\n", indent, t.Err)
	}
}

// WriteTitleLogs writes one <slug>.log per title under dir and returns the paths.
func WriteTitleLogs(dir string, s models.RunSummary) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	var paths []string
	for _, t := range s.Titles {
		var b strings.Builder
		fmt.Fprintf(&b, "run: %s\n", s.RunID)
		if s.DryRun {
			b.WriteString("mode: dry run\n")
		}
		writeTitle(&b, t, "")

		path := filepath.Join(dir, t.Slug+".log")
		if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
