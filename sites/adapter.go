// Package sites holds the per-site adapters: how to find a series, how far it
// has been published, where a chapter is rendered and how its images are read.
package sites

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"chapterd/browser"
	"chapterd/models"

	"github.com/charmbracelet/log"
)

var (
	// ErrNotFound means the series could not be located on the site.
	// Callers must not treat it as fatal.
	ErrNotFound = errors.New("series not found")
	// ErrStale means the cached series URL or the site markup no longer matches.
	ErrStale = errors.New("stale series URL or markup")
)

// Adapter is the strategy for one supported site.
type Adapter interface {
	Site() models.Site
	// Name is the provenance name written into committed chapters.
	Name() string
	Policy() Policy

	// ResolveSeriesURL finds the series page for a source, or returns ErrNotFound.
	ResolveSeriesURL(ctx context.Context, src models.Source, slug string) (string, error)
	// LatestChapter returns the highest published chapter, or 1 when no chapter link is found.
	LatestChapter(ctx context.Context, seriesURL string) (int, error)
	// ChapterURLs lists candidate reader URLs for chapter n, best first.
	ChapterURLs(seriesURL string, n int) []string
	// Readiness is what the render session waits for on a reader page.
	Readiness() browser.Readiness
	// ExtractChapterImages returns the ordered image URLs of a rendered reader page.
	// It never fails; an empty slice means nothing qualified.
	ExtractChapterImages(page *browser.Page) []string
	// Inspect returns ErrStale when the rendered page is the site's not-found page.
	Inspect(page *browser.Page) error
}

// MirrorTracker is implemented by adapters that spread a site over several hosts.
type MirrorTracker interface {
	// Worked records that chapterURL produced a qualifying extraction.
	Worked(chapterURL string)
	// MirrorOf names the mirror serving chapterURL. Mirrors carry identical content.
	MirrorOf(chapterURL string) string
}

// Policy is the engine-facing tuning of a site.
type Policy struct {
	// Threshold is the image count at or below which a chapter is considered not published yet.
	Threshold    int
	MaxAttempts  int
	Isolated     bool // fresh render session per attempt
	ImageTimeout time.Duration
}

// Kind selects the adapter implementation for a Config.
type Kind int

const (
	// KindStatic is a reader whose images are in the markup once the page settles.
	KindStatic Kind = iota
	// KindLazy is a reader that only attaches images while scrolling.
	KindLazy
	// KindMirror is a site published on several interchangeable hosts.
	KindMirror
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindLazy:
		return "lazy"
	case KindMirror:
		return "mirror"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Config is the per-site configuration record.
//
// Templates understand these placeholders:
//
//	{slug}   remote name of the series
//	{series} series URL without trailing slash
//	{mirror} mirror base URL
//	{name}   last path segment of the series URL
//	{n}      chapter number
//	{n3}     chapter number padded to three digits
//	{page}   search page number
type Config struct {
	Site models.Site
	Name string
	Kind Kind

	// SeriesTemplate builds a series URL directly from the remote name.
	SeriesTemplate string
	// SearchPages are paginated listings scanned by ResolveSeriesURL.
	SearchPages    []string
	SearchSelector string
	// SeriesPattern trims a matched search link to its canonical series URL.
	SeriesPattern *regexp.Regexp

	// IndexSelectors are tried in order on the series page until one yields chapter numbers.
	IndexSelectors []string
	ChapterPattern *regexp.Regexp
	// ChapterTemplates are tried in order when rendering a chapter.
	ChapterTemplates []string
	Mirrors          []string

	// ReaderSelector matches the image elements of the reader.
	ReaderSelector string
	// ImageAttrs overrides the default attribute priority.
	ImageAttrs      []string
	WaitSelector    string
	WaitTimeout     time.Duration
	Settle          time.Duration
	ScrollSteps     int
	ScrollPause     time.Duration
	NotFoundMarkers []string

	Threshold    int
	MaxAttempts  int
	Isolated     bool
	ImageTimeout time.Duration
	Disabled     bool
}

// Validate rejects configurations an adapter cannot work with.
func (c Config) Validate() error {
	if c.Site == "" {
		return errors.New("site is required")
	}
	if c.Name == "" {
		return fmt.Errorf("%s: provenance name is required", c.Site)
	}
	if c.ChapterPattern == nil {
		return fmt.Errorf("%s: chapter pattern is required", c.Site)
	}
	if len(c.ChapterTemplates) == 0 {
		return fmt.Errorf("%s: at least one chapter template is required", c.Site)
	}
	if c.ReaderSelector == "" {
		return fmt.Errorf("%s: reader selector is required", c.Site)
	}
	if c.Kind == KindMirror && len(c.Mirrors) == 0 {
		return fmt.Errorf("%s: mirror site without mirrors", c.Site)
	}
	if c.SeriesTemplate == "" && len(c.SearchPages) == 0 && c.Kind != KindMirror {
		return fmt.Errorf("%s: no way to resolve a series URL", c.Site)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%s: threshold must be >= 0", c.Site)
	}
	return nil
}

// PageFetcher fetches static HTML. downloader.HTTPClient satisfies it.
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Pages PageFetcher
	// Transport and UserAgent are used by the search collectors.
	Transport http.RoundTripper
	UserAgent string
}

// New builds the adapter variant selected by cfg.Kind.
func New(cfg Config, deps Deps) (Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Pages == nil {
		return nil, fmt.Errorf("%s: page fetcher is required", cfg.Site)
	}

	b := base{cfg: cfg, deps: deps, logger: log.WithPrefix("<" + string(cfg.Site) + ">")}
	switch cfg.Kind {
	case KindStatic:
		return &staticAdapter{base: b}, nil
	case KindLazy:
		return &lazyAdapter{base: b}, nil
	case KindMirror:
		return newMirrorAdapter(b), nil
	}
	return nil, fmt.Errorf("%s: unknown adapter kind %s", cfg.Site, cfg.Kind)
}

// expand fills the placeholders of a template.
func expand(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func chapterVars(n int) map[string]string {
	return map[string]string{
		"n":  strconv.Itoa(n),
		"n3": fmt.Sprintf("%03d", n),
	}
}
