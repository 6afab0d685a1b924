package models

import (
	"fmt"
	"strings"
)

// Site identifies a supported hosting site.
// The string value is what appears in the catalog file under "site".
type Site string

const (
	SiteAsura       Site = "asura"
	SiteManhuaPlus  Site = "manhuaplus"
	SiteYaksha      Site = "yaksha"
	SiteManhwaClan  Site = "manhwaclan"
	SiteManhuaus    Site = "manhuaus"
	SiteKunManga    Site = "kunmanga"
	SiteReadKingdom Site = "readkingdom"
)

// AllSites lists every site known to the engine, in registry order.
var AllSites = []Site{
	SiteAsura,
	SiteManhuaPlus,
	SiteYaksha,
	SiteManhwaClan,
	SiteManhuaus,
	SiteKunManga,
	SiteReadKingdom,
}

// ParseSite converts a catalog string to a Site.
func ParseSite(s string) (Site, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, site := range AllSites {
		if string(site) == s {
			return site, nil
		}
	}
	return "", fmt.Errorf("unknown site: %q", s)
}

// Source is a (site, URL) binding describing where a Title's chapters are hosted.
// URL is a cached series URL and may go stale; the engine repairs it when it does.
type Source struct {
	Site Site   `json:"site"`           // Hosting site
	URL  string `json:"url,omitempty"`  // Cached series URL, empty until resolved
	Name string `json:"name,omitempty"` // Remote identifier when it differs from the slug
}

// RemoteName returns the identifier used on the remote site.
func (s Source) RemoteName(slug string) string {
	if s.Name != "" {
		return s.Name
	}
	return slug
}

// Title is a tracked work, identified by its local slug (directory name).
// Sources are kept in priority order.
type Title struct {
	Slug    string
	Sources []Source
}

// Image is one page of a chapter in reading order.
type Image struct {
	Index int    // 1-based sequence index
	URL   string // Absolute source URL
	Ext   string // Extension without the dot
}

// FileName returns the archive file name for this image, e.g. "007.webp".
func (i Image) FileName() string {
	return fmt.Sprintf("%03d.%s", i.Index, i.Ext)
}

// ChapterDirName returns the archive directory name for a chapter number.
func ChapterDirName(n int) string {
	return fmt.Sprintf("chapter-%d", n)
}

// Outcome is the result recorded for a single chapter in a run.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTerminal  Outcome = "terminal"
)

// ChapterResult records what happened to one chapter number.
type ChapterResult struct {
	Chapter  int
	Outcome  Outcome
	Source   Site
	Images   int
	Replaced bool
	Err      string
}

// SourceCheck is the local/online comparison for one Source.
type SourceCheck struct {
	Source      Source
	LocalLatest int
	Online      int
	Reachable   bool
	Repaired    bool
	Err         string
}

// TitleReport summarises everything the engine did for one Title.
type TitleReport struct {
	Slug        string
	Acting      Site // Source acted upon this run, empty when none was newer
	Checks      []SourceCheck
	Chapters    []ChapterResult
	Planned     []int // Chapters a dry run would acquire
	TerminalAt  int // Chapter that produced the terminal signal, 0 when none
	Unreachable []Site
	Repaired    []Source
	Err         string // Unexpected or fatal-environment error for this title
}

// Committed returns the chapter numbers committed this run.
func (r TitleReport) Committed() []int {
	var out []int
	for _, c := range r.Chapters {
		if c.Outcome == OutcomeCommitted {
			out = append(out, c.Chapter)
		}
	}
	return out
}

// Failed returns the chapter numbers that exhausted their retries.
func (r TitleReport) Failed() []int {
	var out []int
	for _, c := range r.Chapters {
		if c.Outcome == OutcomeFailed {
			out = append(out, c.Chapter)
		}
	}
	return out
}

// RunSummary is the per-run report across all titles.
type RunSummary struct {
	RunID  string
	DryRun bool
	Titles []TitleReport
}

// HasErrors reports whether any title ended with an unexpected error.
// Skipped or not-yet-published chapters do not count.
func (s RunSummary) HasErrors() bool {
	for _, t := range s.Titles {
		if t.Err != "" {
			return true
		}
	}
	return false
}
