package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chapterd/browser"
	"chapterd/downloader"
	"chapterd/models"
	"chapterd/parser"

	"github.com/charmbracelet/log"
)

// base implements everything that only depends on the configuration record.
type base struct {
	cfg    Config
	deps   Deps
	logger *log.Logger
}

func (b *base) Site() models.Site { return b.cfg.Site }
func (b *base) Name() string      { return b.cfg.Name }

func (b *base) Policy() Policy {
	return Policy{
		Threshold:    b.cfg.Threshold,
		MaxAttempts:  b.cfg.MaxAttempts,
		Isolated:     b.cfg.Isolated,
		ImageTimeout: b.cfg.ImageTimeout,
	}
}

func (b *base) ResolveSeriesURL(ctx context.Context, src models.Source, slug string) (string, error) {
	name := src.RemoteName(slug)

	if b.cfg.SeriesTemplate != "" {
		candidate := expand(b.cfg.SeriesTemplate, map[string]string{"slug": name})
		err := b.probeSeries(ctx, candidate)
		if err == nil {
			b.logger.Infof("Resolved %q to %s", name, candidate)
			return candidate, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		b.logger.Debugf("Series template %s did not resolve: %v", candidate, err)
	}

	if len(b.cfg.SearchPages) > 0 {
		return b.search(ctx, name)
	}
	return "", fmt.Errorf("%w: %q on %s", ErrNotFound, name, b.cfg.Site)
}

// probeSeries fetches a series page and checks it is not a soft 404.
func (b *base) probeSeries(ctx context.Context, seriesURL string) error {
	html, err := b.deps.Pages.FetchHTML(ctx, seriesURL)
	if err != nil {
		return err
	}
	doc, err := parseHTML(html)
	if err != nil {
		return err
	}
	if isNotFoundPage(doc, b.cfg.NotFoundMarkers) {
		return fmt.Errorf("%w: %s is a not-found page", ErrStale, seriesURL)
	}
	return nil
}

func (b *base) LatestChapter(ctx context.Context, seriesURL string) (int, error) {
	if seriesURL == "" {
		return 0, fmt.Errorf("%w: no series URL", ErrStale)
	}
	html, err := b.deps.Pages.FetchHTML(ctx, seriesURL)
	if err != nil {
		return 0, classifyFetch(seriesURL, err)
	}
	return b.latestFromHTML(seriesURL, html)
}

func (b *base) latestFromHTML(seriesURL, html string) (int, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", seriesURL, err)
	}
	if isNotFoundPage(doc, b.cfg.NotFoundMarkers) {
		return 0, fmt.Errorf("%w: %s is a not-found page", ErrStale, seriesURL)
	}

	links := chapterLinks(doc, seriesURL, b.cfg.IndexSelectors, b.cfg)
	latest := parser.LatestChapter(b.cfg.ChapterPattern, links)
	b.logger.Debugf("Latest chapter %d inferred from %d links on %s", latest, len(links), seriesURL)
	return latest, nil
}

func (b *base) ChapterURLs(seriesURL string, n int) []string {
	vars := chapterVars(n)
	vars["series"] = strings.TrimRight(seriesURL, "/")
	vars["name"] = lastSegment(seriesURL)
	return expandAll(b.cfg.ChapterTemplates, vars)
}

func (b *base) ExtractChapterImages(page *browser.Page) []string {
	if page == nil {
		return nil
	}
	urls := extractImages(page.URL, page.HTML, b.cfg.ReaderSelector, b.cfg.ImageAttrs)
	b.logger.Debugf("Extracted %d images from %s", len(urls), page.URL)
	return urls
}

func (b *base) Inspect(page *browser.Page) error {
	if page == nil {
		return nil
	}
	doc, err := parseHTML(page.HTML)
	if err != nil {
		return nil
	}
	if isNotFoundPage(doc, b.cfg.NotFoundMarkers) {
		return fmt.Errorf("%w: %s rendered a not-found page", ErrStale, page.URL)
	}
	return nil
}

// staticAdapter serves readers whose images are in the markup after a settle delay.
type staticAdapter struct {
	base
}

func (a *staticAdapter) Readiness() browser.Readiness {
	return browser.Readiness{
		Selector:        a.cfg.WaitSelector,
		SelectorTimeout: a.cfg.WaitTimeout,
		ScrollSteps:     a.cfg.ScrollSteps,
		ScrollPause:     a.cfg.ScrollPause,
		Settle:          a.cfg.Settle,
	}
}

// lazyAdapter serves readers that attach images while the page is scrolled.
type lazyAdapter struct {
	base
}

func (a *lazyAdapter) Readiness() browser.Readiness {
	r := browser.LazyScroll(a.cfg.WaitSelector, a.cfg.Settle)
	r.SelectorTimeout = a.cfg.WaitTimeout
	if a.cfg.ScrollSteps > 0 {
		r.ScrollSteps = a.cfg.ScrollSteps
	}
	if a.cfg.ScrollPause > 0 {
		r.ScrollPause = a.cfg.ScrollPause
	}
	return r
}

// classifyFetch maps a vanished page to ErrStale and leaves other failures as they are.
func classifyFetch(pageURL string, err error) error {
	if downloader.IsGone(err) {
		return fmt.Errorf("%w: %s: %v", ErrStale, pageURL, err)
	}
	if errors.Is(err, ErrStale) {
		return err
	}
	return fmt.Errorf("fetch %s: %w", pageURL, err)
}

func expandAll(templates []string, vars map[string]string) []string {
	seen := make(map[string]bool, len(templates))
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		u := expand(t, vars)
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func lastSegment(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
