package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"chapterd/browser"
	"chapterd/models"
)

// mirrorAdapter serves a site published on interchangeable hosts. The host that
// last produced a qualifying chapter is tried first for the rest of the run.
type mirrorAdapter struct {
	base

	mu      sync.Mutex
	working string
}

func newMirrorAdapter(b base) *mirrorAdapter {
	return &mirrorAdapter{base: b}
}

// mirrors returns the hosts in trial order.
func (a *mirrorAdapter) mirrors() []string {
	a.mu.Lock()
	working := a.working
	a.mu.Unlock()

	out := make([]string, 0, len(a.cfg.Mirrors))
	if working != "" {
		out = append(out, working)
	}
	for _, m := range a.cfg.Mirrors {
		m = strings.TrimRight(m, "/")
		if m != working {
			out = append(out, m)
		}
	}
	return out
}

// Worked remembers the mirror that served chapterURL.
func (a *mirrorAdapter) Worked(chapterURL string) {
	m := a.MirrorOf(chapterURL)
	if m == "" {
		return
	}
	a.mu.Lock()
	if a.working != m {
		a.logger.Infof("Using mirror %s", m)
	}
	a.working = m
	a.mu.Unlock()
}

// MirrorOf returns the configured mirror hosting chapterURL, or "".
func (a *mirrorAdapter) MirrorOf(chapterURL string) string {
	for _, m := range a.cfg.Mirrors {
		m = strings.TrimRight(m, "/")
		if strings.HasPrefix(chapterURL, m+"/") {
			return m
		}
	}
	return ""
}

func (a *mirrorAdapter) seriesOn(mirror, name string) string {
	return expand(a.cfg.SeriesTemplate, map[string]string{"mirror": mirror, "slug": name})
}

func (a *mirrorAdapter) ResolveSeriesURL(ctx context.Context, src models.Source, slug string) (string, error) {
	name := src.RemoteName(slug)
	for _, m := range a.mirrors() {
		candidate := a.seriesOn(m, name)
		if err := a.probeSeries(ctx, candidate); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			a.logger.Debugf("Mirror %s did not serve %q: %v", m, name, err)
			continue
		}
		a.Worked(candidate)
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %q on any of %d mirrors", ErrNotFound, name, len(a.cfg.Mirrors))
}

// LatestChapter reads the index from the series path on each mirror in turn.
func (a *mirrorAdapter) LatestChapter(ctx context.Context, seriesURL string) (int, error) {
	name := lastSegment(seriesURL)
	if name == "" {
		return 0, fmt.Errorf("%w: no series URL", ErrStale)
	}

	var errs []error
	for _, m := range a.mirrors() {
		u := a.seriesOn(m, name)
		html, err := a.deps.Pages.FetchHTML(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			errs = append(errs, classifyFetch(u, err))
			continue
		}
		n, err := a.latestFromHTML(u, html)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.Worked(u)
		return n, nil
	}

	err := errors.Join(errs...)
	allStale := len(errs) > 0
	for _, e := range errs {
		if !errors.Is(e, ErrStale) {
			allStale = false
		}
	}
	if allStale {
		return 0, err
	}
	return 0, fmt.Errorf("no mirror answered: %w", err)
}

// ChapterURLs lists every template on every mirror, remembered mirror first.
func (a *mirrorAdapter) ChapterURLs(seriesURL string, n int) []string {
	vars := chapterVars(n)
	vars["name"] = lastSegment(seriesURL)

	var out []string
	seen := make(map[string]bool)
	for _, m := range a.mirrors() {
		vars["mirror"] = m
		for _, u := range expandAll(a.cfg.ChapterTemplates, vars) {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}

func (a *mirrorAdapter) Readiness() browser.Readiness {
	return browser.Readiness{
		Selector:        a.cfg.WaitSelector,
		SelectorTimeout: a.cfg.WaitTimeout,
		Settle:          a.cfg.Settle,
	}
}
