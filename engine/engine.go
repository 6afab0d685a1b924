// Package engine brings every tracked title up to date with its sources.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chapterd/archive"
	"chapterd/browser"
	"chapterd/downloader"
	"chapterd/models"
	"chapterd/retry"
	"chapterd/sites"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoContent is the terminal signal: a chapter page rendered but carries no more
// images than the site threshold, meaning it is not published yet.
var ErrNoContent = errors.New("chapter has no content yet")

// DefaultMaxAttempts is the per-chapter attempt budget when neither site nor run sets one.
const DefaultMaxAttempts = 5

// ImageFetcher downloads a chapter's images into a directory. downloader.Fetcher satisfies it.
type ImageFetcher interface {
	FetchAll(ctx context.Context, urls []string, dest, referer string, progress downloader.ProgressFunc) (int, error)
}

// FetcherFactory returns a fetcher using the given per-image timeout. Zero means the default.
type FetcherFactory func(timeout time.Duration) ImageFetcher

// Adapters resolves the adapter for a site. sites.Registry satisfies it.
type Adapters interface {
	Lookup(site models.Site) (sites.Adapter, bool)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Adapters Adapters
	Archive  *archive.Archive
	Launch   Launcher
	Fetchers FetcherFactory
	Observer Observer // optional
	Recorder Recorder // optional
	Board    *Board   // optional
}

// Options tune a run.
type Options struct {
	RunID string
	// DryRun computes what would be acquired without touching the archive.
	DryRun bool
	// Check only compares local and online latest for every source.
	Check        bool
	MaxAttempts  int
	TitleWorkers int
	Backoff      retry.Backoff
}

// Engine runs the acquisition workflow for a set of titles.
type Engine struct {
	adapters Adapters
	archive  *archive.Archive
	launch   Launcher
	fetchers FetcherFactory
	observer Observer
	recorder Recorder
	board    *Board
	opts     Options
	logger   *log.Logger
}

// New validates deps and fills option defaults.
func New(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Adapters == nil:
		return nil, errors.New("engine: adapters are required")
	case deps.Archive == nil:
		return nil, errors.New("engine: archive is required")
	case deps.Launch == nil:
		return nil, errors.New("engine: launcher is required")
	case deps.Fetchers == nil:
		return nil, errors.New("engine: fetcher factory is required")
	}

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.TitleWorkers <= 0 {
		opts.TitleWorkers = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.Exponential(2 * time.Second)
	}
	board := deps.Board
	if board == nil {
		board = NewBoard()
	}

	return &Engine{
		adapters: deps.Adapters,
		archive:  deps.Archive,
		launch:   deps.Launch,
		fetchers: deps.Fetchers,
		observer: deps.Observer,
		recorder: deps.Recorder,
		board:    board,
		opts:     opts,
		logger:   log.WithPrefix("[Engine]"),
	}, nil
}

// RunID identifies this run in logs, snapshots and history.
func (e *Engine) RunID() string { return e.opts.RunID }

// Board exposes live task progress.
func (e *Engine) Board() *Board { return e.board }

// Run processes titles, several at a time, and returns the summary together with
// the titles as they should be persisted (repaired series URLs applied).
// Per-title problems are reported in the summary, never returned.
func (e *Engine) Run(ctx context.Context, titles []models.Title) (models.RunSummary, []models.Title) {
	mode := "run"
	switch {
	case e.opts.Check:
		mode = "check"
	case e.opts.DryRun:
		mode = "dry-run"
	}
	e.logger.Infof("Starting %s %s for %d titles (%d at a time)", mode, e.opts.RunID, len(titles), e.opts.TitleWorkers)

	reports := make([]models.TitleReport, len(titles))
	updated := make([]models.Title, len(titles))
	ids := make([]string, len(titles))
	for i, t := range titles {
		ids[i] = e.board.Add(t.Slug)
	}

	var g errgroup.Group
	g.SetLimit(e.opts.TitleWorkers)
	for i := range titles {
		g.Go(func() error {
			reports[i], updated[i] = e.processTitle(ctx, ids[i], titles[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := models.RunSummary{RunID: e.opts.RunID, DryRun: e.opts.DryRun || e.opts.Check, Titles: reports}
	e.logger.Infof("Finished %s %s", mode, e.opts.RunID)
	return summary, updated
}

// titleRun is the mutable state of one title while it is being processed.
type titleRun struct {
	id         string
	slug       string
	adapter    sites.Adapter
	src        *models.Source
	policy     sites.Policy
	report     *models.TitleReport
	slot       *sessionSlot
	repairUsed bool
	logger     *log.Logger
}

func (e *Engine) processTitle(ctx context.Context, id string, title models.Title) (report models.TitleReport, out models.Title) {
	logger := log.WithPrefix(fmt.Sprintf("[Engine:%s]", title.Slug))
	report = models.TitleReport{Slug: title.Slug}
	out = models.Title{Slug: title.Slug, Sources: append([]models.Source(nil), title.Sources...)}

	defer func() { e.finishTask(id, &report) }()

	if len(out.Sources) == 0 {
		report.Err = "title has no sources"
		return
	}

	// Step 1: recover from an interrupted commit
	if !e.opts.DryRun && !e.opts.Check {
		if _, err := e.archive.CleanupLeftovers(title.Slug); err != nil {
			report.Err = fmt.Sprintf("cleanup leftovers: %v", err)
			return
		}
	}

	e.board.Update(id, func(t *Task) {
		t.Status = StatusChecking
		t.Message = "Checking sources..."
	})

	// Step 2: compare local and online latest for every source, in priority order
	acting := -1
	var actingLocal, actingOnline int
	repaired := make([]bool, len(out.Sources))
	for i := range out.Sources {
		if ctx.Err() != nil {
			report.Err = ctx.Err().Error()
			return
		}
		src := &out.Sources[i]
		check := models.SourceCheck{Source: *src}

		adapter, ok := e.adapters.Lookup(src.Site)
		if !ok {
			check.Err = "site is not enabled"
			report.Checks = append(report.Checks, check)
			report.Unreachable = append(report.Unreachable, src.Site)
			logger.Warnf("%s: site is not enabled, skipping source", src.Site)
			continue
		}

		local, err := e.archive.LocalLatest(title.Slug, adapter.Name())
		if err != nil {
			report.Err = fmt.Sprintf("scan archive: %v", err)
			return
		}
		check.LocalLatest = local

		before := src.URL
		online, err := e.discover(ctx, adapter, src, title.Slug, logger)
		if src.URL != before && before != "" {
			check.Repaired = true
			report.Repaired = append(report.Repaired, *src)
			repaired[i] = true
		}
		check.Source = *src

		if err != nil {
			if ctx.Err() != nil {
				report.Err = ctx.Err().Error()
				return
			}
			check.Err = err.Error()
			report.Checks = append(report.Checks, check)
			report.Unreachable = append(report.Unreachable, src.Site)
			logger.Warnf("%s: unreachable: %v", src.Site, err)
			continue
		}

		check.Reachable = true
		check.Online = online
		report.Checks = append(report.Checks, check)

		switch {
		case online <= local:
			logger.Infof("%s: up to date (local %d, online %d)", src.Site, local, online)
		case acting < 0:
			acting, actingLocal, actingOnline = i, local, online
			logger.Infof("%s: chapters %d..%d available (local %d)", src.Site, local+1, online, local)
		default:
			logger.Infof("%s: also reports chapter %d, %s has priority", src.Site, online, out.Sources[acting].Site)
		}
	}

	if acting < 0 {
		return
	}
	src := &out.Sources[acting]
	report.Acting = src.Site

	if e.opts.Check {
		return
	}
	if e.opts.DryRun {
		for n := actingLocal + 1; n <= actingOnline; n++ {
			report.Planned = append(report.Planned, n)
		}
		logger.Infof("Dry run: would acquire chapters %d..%d from %s", actingLocal+1, actingOnline, src.Site)
		return
	}

	// Step 3: acquire every chapter in (local, online] from the acting source
	adapter, _ := e.adapters.Lookup(src.Site)
	policy := adapter.Policy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = e.opts.MaxAttempts
	}
	tr := &titleRun{
		id:         id,
		slug:       title.Slug,
		adapter:    adapter,
		src:        src,
		policy:     policy,
		report:     &report,
		slot:       &sessionSlot{launch: e.launch, logger: logger},
		repairUsed: repaired[acting],
		logger:     logger,
	}
	e.board.Update(id, func(t *Task) { t.Site = src.Site })
	e.acquireRange(ctx, tr, actingLocal, actingOnline)
	return
}

// discover resolves the series URL when needed and returns the online latest chapter.
// A failed lookup on a cached URL triggers one re-resolution.
func (e *Engine) discover(ctx context.Context, adapter sites.Adapter, src *models.Source, slug string, logger *log.Logger) (int, error) {
	if src.URL == "" {
		u, err := adapter.ResolveSeriesURL(ctx, *src, slug)
		if err != nil {
			return 0, fmt.Errorf("resolve series URL: %w", err)
		}
		logger.Infof("%s: resolved series URL %s", src.Site, u)
		src.URL = u
		return adapter.LatestChapter(ctx, u)
	}

	latest, err := adapter.LatestChapter(ctx, src.URL)
	if err == nil || ctx.Err() != nil {
		return latest, err
	}

	logger.Warnf("%s: latest chapter lookup failed on %s, re-resolving: %v", src.Site, src.URL, err)
	u, rerr := adapter.ResolveSeriesURL(ctx, *src, slug)
	if rerr != nil {
		return 0, fmt.Errorf("%w (repair failed: %v)", err, rerr)
	}
	if u != src.URL {
		logger.Infof("%s: repaired series URL %s -> %s", src.Site, src.URL, u)
		src.URL = u
	}
	return adapter.LatestChapter(ctx, u)
}

func (e *Engine) finishTask(id string, report *models.TitleReport) {
	committed := len(report.Committed())
	failed := len(report.Failed())
	e.board.Update(id, func(t *Task) {
		switch {
		case report.Err != "":
			t.Status = StatusFailed
			t.Err = errors.New(report.Err)
			t.Message = report.Err
		case failed > 0:
			t.Status = StatusFailed
			t.Message = fmt.Sprintf("%d committed, %d failed", committed, failed)
		case len(report.Planned) > 0:
			t.Status = StatusCompleted
			t.Message = fmt.Sprintf("would acquire %d chapters", len(report.Planned))
		case committed > 0:
			t.Status = StatusCompleted
			t.Message = fmt.Sprintf("%d chapters committed", committed)
		default:
			t.Status = StatusCompleted
			t.Message = "up to date"
		}
	})
}

func (e *Engine) record(ctx context.Context, slug string, res models.ChapterResult) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, e.opts.RunID, slug, res); err != nil {
		e.logger.Warnf("Failed to record chapter %d of %s: %v", res.Chapter, slug, err)
	}
}

func isTerminal(err error) bool {
	return errors.Is(err, ErrNoContent) || errors.Is(err, browser.ErrLaunch)
}
