package sites_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"chapterd/browser"
	"chapterd/cf"
	"chapterd/config"
	"chapterd/downloader"
	"chapterd/models"
	"chapterd/sites"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePages struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakePages) FetchHTML(_ context.Context, u string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, u)
	if err, ok := f.errs[u]; ok {
		return "", err
	}
	if html, ok := f.pages[u]; ok {
		return html, nil
	}
	return "", &downloader.StatusError{URL: u, StatusCode: http.StatusNotFound}
}

func builtin(t *testing.T, site models.Site) sites.Config {
	t.Helper()
	for _, c := range sites.Builtin() {
		if c.Site == site {
			return c
		}
	}
	t.Fatalf("no builtin config for %s", site)
	return sites.Config{}
}

func newAdapter(t *testing.T, cfg sites.Config, pages *fakePages) sites.Adapter {
	t.Helper()
	a, err := sites.New(cfg, sites.Deps{Pages: pages})
	require.NoError(t, err)
	return a
}

func chapterIndex(nums ...int) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Series</title></head><body><ul class="main version-chap">`)
	for _, n := range nums {
		fmt.Fprintf(&b, `<li class="wp-manga-chapter"><a href="https://yakshascans.com/manga/foo/chapter-%d/">Chapter %d</a></li>`, n, n)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

func TestBuiltinConfigsAreValid(t *testing.T) {
	t.Parallel()
	configs := sites.Builtin()
	require.Len(t, configs, len(models.AllSites))
	for i, c := range configs {
		assert.NoError(t, c.Validate(), c.Site)
		assert.Equal(t, models.AllSites[i], c.Site)
		assert.NotEmpty(t, c.Name)
	}
}

func TestExtractChapterImagesPriority(t *testing.T) {
	t.Parallel()
	cfg := builtin(t, models.SiteYaksha)
	cfg.ReaderSelector = "div.reader img, div.reader picture source"
	a := newAdapter(t, cfg, &fakePages{})

	page := &browser.Page{
		URL: "https://site.test/series/chapter-1/",
		HTML: `<html><body>
<div class="reader">
  <img data-current-src="https://cdn.test/1.webp" src="https://cdn.test/placeholder.gif">
  <img src="/img/2.jpg">
  <img src="data:image/gif;base64,R0lGOD" data-src="https://cdn.test/3.png">
  <img data-lazy-src="https://cdn.test/4.jpeg?v=2">
  <img srcset="https://cdn.test/5-small.jpg 480w, https://cdn.test/5-large.jpg 1080w, https://cdn.test/5-mid.jpg 720w">
  <picture><source srcset="https://cdn.test/6.webp 1x, https://cdn.test/6@2x.webp 2x"><img src="https://cdn.test/6.webp"></picture>
  <img src="https://site.test/img/2.jpg">
  <img src="https://cdn.test/logo.svg">
</div>
<img src="https://cdn.test/outside.jpg">
</body></html>`,
	}

	got := a.ExtractChapterImages(page)
	assert.Equal(t, []string{
		"https://cdn.test/1.webp",
		"https://site.test/img/2.jpg",
		"https://cdn.test/3.png",
		"https://cdn.test/4.jpeg?v=2",
		"https://cdn.test/5-large.jpg",
		"https://cdn.test/6@2x.webp",
		"https://cdn.test/6.webp",
	}, got)
}

func TestExtractChapterImagesNeverFails(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, builtin(t, models.SiteKunManga), &fakePages{})

	assert.Empty(t, a.ExtractChapterImages(nil))
	assert.Empty(t, a.ExtractChapterImages(&browser.Page{URL: "https://kunmanga.com/x", HTML: ""}))
	assert.Empty(t, a.ExtractChapterImages(&browser.Page{URL: "https://kunmanga.com/x", HTML: "<html><body><p>no reader</p>"}))
}

func TestExtractChapterImagesAttributeOverride(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, builtin(t, models.SiteManhuaPlus), &fakePages{})

	page := &browser.Page{
		URL: "https://manhuaplus.org/manga/foo/chapter-3",
		HTML: `<div>
<a class="readImg" href="https://img.test/p/01.jpg"><img src="https://img.test/thumb.jpg"></a>
<a class="readImg" href="https://img.test/p/02.jpg_"></a>
<a class="readImg" href="https://img.test/p/next-chapter"></a>
</div>`,
	}
	assert.Equal(t, []string{"https://img.test/p/01.jpg", "https://img.test/p/02.jpg_"}, a.ExtractChapterImages(page))
}

func TestLatestChapter(t *testing.T) {
	t.Parallel()
	const series = "https://yakshascans.com/manga/foo/"

	tests := []struct {
		name    string
		pages   map[string]string
		errs    map[string]error
		want    int
		wantErr error
	}{
		{name: "max of links", pages: map[string]string{series: chapterIndex(1, 12, 3, 7)}, want: 12},
		{name: "no links defaults to one", pages: map[string]string{series: "<html><body><p>soon</p></body></html>"}, want: 1},
		{name: "gone is stale", wantErr: sites.ErrStale},
		{name: "soft 404 is stale", pages: map[string]string{series: `<html><body class="error404"><h1>Oops</h1></body></html>`}, wantErr: sites.ErrStale},
		{name: "challenge is not stale", errs: map[string]error{series: &cf.ChallengeError{URL: series, StatusCode: 403}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newAdapter(t, builtin(t, models.SiteYaksha), &fakePages{pages: tt.pages, errs: tt.errs})
			n, err := a.LatestChapter(context.Background(), series)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errs != nil:
				require.Error(t, err)
				assert.False(t, errors.Is(err, sites.ErrStale))
				_, isCF := cf.IsChallenge(err)
				assert.True(t, isCF)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, n)
			}
		})
	}
}

func TestChapterURLs(t *testing.T) {
	t.Parallel()
	pages := &fakePages{}

	yaksha := newAdapter(t, builtin(t, models.SiteYaksha), pages)
	assert.Equal(t, []string{"https://yakshascans.com/manga/foo/chapter-7/"},
		yaksha.ChapterURLs("https://yakshascans.com/manga/foo/", 7))

	manhuaus := newAdapter(t, builtin(t, models.SiteManhuaus), pages)
	assert.Equal(t, []string{"https://manhuaus.com/manga/foo/chapter-7"},
		manhuaus.ChapterURLs("https://manhuaus.com/manga/foo", 7))

	asura := newAdapter(t, builtin(t, models.SiteAsura), pages)
	assert.Equal(t, []string{"https://asuracomic.net/series/foo-1a2b3c/chapter/42"},
		asura.ChapterURLs("https://asuracomic.net/series/foo-1a2b3c", 42))
}

func TestReadiness(t *testing.T) {
	t.Parallel()
	pages := &fakePages{}

	asura := newAdapter(t, builtin(t, models.SiteAsura), pages).Readiness()
	assert.Equal(t, 24, asura.ScrollSteps)
	assert.Equal(t, "img.object-cover.mx-auto", asura.Selector)

	kingdom := newAdapter(t, builtin(t, models.SiteReadKingdom), pages).Readiness()
	assert.Zero(t, kingdom.ScrollSteps)
	assert.Equal(t, builtin(t, models.SiteReadKingdom).Settle, kingdom.Settle)
}

func TestInspect(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, builtin(t, models.SiteYaksha), &fakePages{})

	assert.ErrorIs(t, a.Inspect(&browser.Page{URL: "u", HTML: `<html><head><title>Page not found - Yaksha</title></head></html>`}), sites.ErrStale)
	assert.NoError(t, a.Inspect(&browser.Page{URL: "u", HTML: `<html><head><title>Foo Chapter 3</title></head></html>`}))
}

func TestResolveSeriesURLTemplate(t *testing.T) {
	t.Parallel()
	pages := &fakePages{pages: map[string]string{
		"https://kunmanga.com/manga/the-foo/": chapterIndex(1),
	}}
	a := newAdapter(t, builtin(t, models.SiteKunManga), pages)

	got, err := a.ResolveSeriesURL(context.Background(), models.Source{Site: models.SiteKunManga, Name: "the-foo"}, "foo")
	require.NoError(t, err)
	assert.Equal(t, "https://kunmanga.com/manga/the-foo/", got)

	_, err = a.ResolveSeriesURL(context.Background(), models.Source{Site: models.SiteKunManga}, "missing")
	assert.ErrorIs(t, err, sites.ErrNotFound)
}

func searchServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	listing := func(hrefs ...string) string {
		var b strings.Builder
		b.WriteString(`<html><body><div class="listing">`)
		for _, h := range hrefs {
			fmt.Fprintf(&b, `<div class="item"><a href="%s">x</a></div>`, h)
		}
		b.WriteString(`</div></body></html>`)
		return b.String()
	}
	mux.HandleFunc("/page/0", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing("/series/other-title-aa11bb22", "/about"))
	})
	mux.HandleFunc("/page/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing("/series/solo-leveling-1a2b3c4d", "/series/solo-leveling-1a2b3c4d/chapter/1"))
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<html><head><title>Just a moment...</title></head><body><div id="challenge-form"></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func searchConfig(srv *httptest.Server, pages ...string) sites.Config {
	cfg := sites.Config{
		Site:             models.SiteAsura,
		Name:             "AsuraScans",
		Kind:             sites.KindLazy,
		SearchSelector:   "div.listing a[href^='/series/']",
		SeriesPattern:    regexp.MustCompile(`^.*/series/[^/]+`),
		IndexSelectors:   []string{"a[href*='/chapter/']"},
		ChapterPattern:   regexp.MustCompile(`/chapter/(\d+)`),
		ChapterTemplates: []string{"{series}/chapter/{n}"},
		ReaderSelector:   "img",
		Threshold:        1,
	}
	for _, p := range pages {
		cfg.SearchPages = append(cfg.SearchPages, srv.URL+p)
	}
	return cfg
}

func TestResolveSeriesURLSearch(t *testing.T) {
	t.Parallel()
	srv := searchServer(t)

	a := newAdapter(t, searchConfig(srv, "/page/0", "/page/1"), &fakePages{})
	got, err := a.ResolveSeriesURL(context.Background(), models.Source{Site: models.SiteAsura}, "Solo Leveling")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/series/solo-leveling-1a2b3c4d", got)

	_, err = a.ResolveSeriesURL(context.Background(), models.Source{Site: models.SiteAsura}, "unknown-title")
	assert.ErrorIs(t, err, sites.ErrNotFound)
}

func TestResolveSeriesURLSearchChallenge(t *testing.T) {
	t.Parallel()
	srv := searchServer(t)

	a := newAdapter(t, searchConfig(srv, "/blocked", "/page/1"), &fakePages{})
	_, err := a.ResolveSeriesURL(context.Background(), models.Source{Site: models.SiteAsura}, "solo-leveling")
	_, isCF := cf.IsChallenge(err)
	assert.True(t, isCF, "got %v", err)
}

func TestMirrorFailover(t *testing.T) {
	t.Parallel()
	cfg := builtin(t, models.SiteReadKingdom)
	cfg.Mirrors = []string{"https://ww1.example", "https://ww2.example"}

	index := `<html><body>
<div class="bg-bg-secondary p-3 rounded mb-3 shadow"><a href="https://ww2.example/chapter/kingdom-chapter-812/">812</a></div>
<div class="bg-bg-secondary p-3 rounded mb-3 shadow"><a href="https://ww2.example/chapter/kingdom-chapter-811/">811</a></div>
</body></html>`
	pages := &fakePages{
		pages: map[string]string{"https://ww2.example/manga/kingdom/": index},
		errs:  map[string]error{"https://ww1.example/manga/kingdom/": errors.New("connection refused")},
	}
	a := newAdapter(t, cfg, pages)

	before := a.ChapterURLs("https://ww1.example/manga/kingdom/", 5)
	assert.Equal(t, []string{
		"https://ww1.example/chapter/kingdom-chapter-005/",
		"https://ww1.example/chapter/kingdom-chapter-5/",
		"https://ww2.example/chapter/kingdom-chapter-005/",
		"https://ww2.example/chapter/kingdom-chapter-5/",
	}, before)

	n, err := a.LatestChapter(context.Background(), "https://ww1.example/manga/kingdom/")
	require.NoError(t, err)
	assert.Equal(t, 812, n)

	after := a.ChapterURLs("https://ww1.example/manga/kingdom/", 123)
	assert.Equal(t, []string{
		"https://ww2.example/chapter/kingdom-chapter-123/",
		"https://ww1.example/chapter/kingdom-chapter-123/",
	}, after)

	tracker, ok := a.(sites.MirrorTracker)
	require.True(t, ok)
	assert.Equal(t, "https://ww2.example", tracker.MirrorOf("https://ww2.example/chapter/kingdom-chapter-5/"))
	assert.Empty(t, tracker.MirrorOf("https://elsewhere.example/chapter/kingdom-chapter-5/"))
	tracker.Worked("https://ww1.example/chapter/kingdom-chapter-123/")
	assert.True(t, strings.HasPrefix(a.ChapterURLs("x/kingdom", 1)[0], "https://ww1.example/"))
}

func TestMirrorAllGoneIsStale(t *testing.T) {
	t.Parallel()
	cfg := builtin(t, models.SiteReadKingdom)
	cfg.Mirrors = []string{"https://ww1.example", "https://ww2.example"}
	a := newAdapter(t, cfg, &fakePages{})

	_, err := a.LatestChapter(context.Background(), "https://ww1.example/manga/kingdom/")
	assert.ErrorIs(t, err, sites.ErrStale)

	_, err = a.ResolveSeriesURL(context.Background(), models.Source{Site: models.SiteReadKingdom}, "kingdom")
	assert.ErrorIs(t, err, sites.ErrNotFound)
}

func TestRegistryOverrides(t *testing.T) {
	t.Parallel()
	zero := 0
	isolated := true
	overrides := map[string]config.SiteSettings{
		"yaksha":     {Threshold: &zero, MaxAttempts: 2, Isolated: &isolated},
		"manhwaclan": {Disabled: true},
	}

	reg, err := sites.NewRegistry(sites.Builtin(), overrides, sites.Deps{Pages: &fakePages{}})
	require.NoError(t, err)

	y, ok := reg.Lookup(models.SiteYaksha)
	require.True(t, ok)
	assert.Equal(t, sites.Policy{Threshold: 0, MaxAttempts: 2, Isolated: true, ImageTimeout: builtin(t, models.SiteYaksha).ImageTimeout}, y.Policy())

	_, ok = reg.Lookup(models.SiteManhwaClan)
	assert.False(t, ok)
	for _, site := range models.AllSites {
		_, ok := reg.Lookup(site)
		assert.Equal(t, site != models.SiteManhwaClan, ok, site)
	}

	_, err = sites.NewRegistry(sites.Builtin(), map[string]config.SiteSettings{"nosuchsite": {}}, sites.Deps{Pages: &fakePages{}})
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := builtin(t, models.SiteYaksha)
	cfg.ChapterPattern = nil
	_, err := sites.New(cfg, sites.Deps{Pages: &fakePages{}})
	assert.Error(t, err)

	_, err = sites.New(builtin(t, models.SiteYaksha), sites.Deps{})
	assert.Error(t, err)
}
