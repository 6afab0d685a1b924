// Package diag keeps rendered pages of failed extractions for later inspection.
package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"chapterd/engine"

	"github.com/charmbracelet/log"
)

const (
	defaultMaxRunBytes = 50 * 1024 * 1024 // 50MB per run
	defaultKeepRuns    = 5
)

// Options configures a Snapshotter.
type Options struct {
	Dir         string // snapshots root, usually <log_dir>/snapshots
	RunID       string
	MaxRunBytes int64
	KeepRuns    int
}

// Snapshotter writes the DOM of failed or low-count extractions to
// <Dir>/<run>/<slug>-chapter-<N>-attempt-<k>.html. It satisfies engine.Observer.
type Snapshotter struct {
	dir      string
	maxBytes int64
	written  int64
	capped   bool
	mu       sync.Mutex
	logger   *log.Logger
}

// New prepares the run directory and removes snapshot runs beyond KeepRuns, oldest first.
func New(opts Options) (*Snapshotter, error) {
	if opts.Dir == "" || opts.RunID == "" {
		return nil, fmt.Errorf("snapshot dir and run id are required")
	}
	if opts.MaxRunBytes <= 0 {
		opts.MaxRunBytes = defaultMaxRunBytes
	}
	if opts.KeepRuns <= 0 {
		opts.KeepRuns = defaultKeepRuns
	}

	s := &Snapshotter{
		dir:      filepath.Join(opts.Dir, opts.RunID),
		maxBytes: opts.MaxRunBytes,
		logger:   log.WithPrefix("[Snapshots]"),
	}

	if err := rotateRuns(opts.Dir, opts.KeepRuns-1); err != nil {
		s.logger.Warnf("Failed to rotate old snapshots: %v", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return s, nil
}

// Dir is where this run's snapshots go.
func (s *Snapshotter) Dir() string { return s.dir }

// ExtractionFailed writes one snapshot. Once the run budget is spent further
// snapshots are dropped.
func (s *Snapshotter) ExtractionFailed(ev engine.ExtractionEvent) {
	body := header(ev) + ev.HTML

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.written+int64(len(body)) > s.maxBytes {
		if !s.capped {
			s.capped = true
			s.logger.Warnf("Snapshot budget of %d MB reached, dropping further snapshots", s.maxBytes/(1024*1024))
		}
		return
	}

	name := fmt.Sprintf("%s-chapter-%d-attempt-%d.html", ev.Slug, ev.Chapter, ev.Attempt)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		s.logger.Warnf("Failed to write snapshot %s: %v", path, err)
		return
	}
	s.written += int64(len(body))
	s.logger.Debugf("Saved snapshot %s (%d bytes)", path, len(body))
}

func header(ev engine.ExtractionEvent) string {
	var b strings.Builder
	b.WriteString("<!--\n")
	fmt.Fprintf(&b, "  run: %s\n  site: %s\n  url: %s\n", ev.RunID, ev.Site, ev.URL)
	fmt.Fprintf(&b, "  images: %d (threshold %d)\n  partial: %v\n", ev.Images, ev.Threshold, ev.Partial)
	if ev.Err != nil {
		fmt.Fprintf(&b, "  error: %s\n", strings.ReplaceAll(ev.Err.Error(), "--", "- -"))
	}
	b.WriteString("-->\n")
	return b.String()
}

// rotateRuns keeps the newest keep run directories under root.
func rotateRuns(root string, keep int) error {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	type run struct {
		path string
		mod  int64
	}
	var runs []run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, run{path: filepath.Join(root, e.Name()), mod: info.ModTime().UnixNano()})
	}
	if len(runs) <= keep {
		return nil
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].mod > runs[j].mod })
	for _, r := range runs[keep:] {
		if err := os.RemoveAll(r.path); err != nil {
			return err
		}
	}
	return nil
}
