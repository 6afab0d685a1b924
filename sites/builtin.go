package sites

import (
	"fmt"
	"regexp"
	"time"

	"chapterd/models"
)

var (
	madaraChapterRe  = regexp.MustCompile(`/chapter-(\d{1,4})(?:[-/?#]|$)`)
	asuraChapterRe   = regexp.MustCompile(`/chapter/(\d+)(?:[/?#]|$)`)
	kingdomChapterRe = regexp.MustCompile(`-chapter-(\d{1,4})(?:[/?#]|$)`)
	manhuaPlusSeries = regexp.MustCompile(`^https://manhuaplus\.org/manga/[^/]+`)
)

// madara returns the configuration shared by WordPress Madara readers.
func madara(site models.Site, name, host, chapterSuffix, indexSelector string) Config {
	return Config{
		Site:           site,
		Name:           name,
		Kind:           KindStatic,
		SeriesTemplate: "https://" + host + "/manga/{slug}/",
		IndexSelectors: []string{
			indexSelector,
			"li.wp-manga-chapter a[href*='/chapter-']",
			"a[href*='/chapter-']",
		},
		ChapterPattern:   madaraChapterRe,
		ChapterTemplates: []string{"{series}/chapter-{n}" + chapterSuffix},
		ReaderSelector:   "div.page-break.no-gaps img",
		WaitSelector:     "div.reading-content",
		WaitTimeout:      10 * time.Second,
		Threshold:        1,
		MaxAttempts:      5,
		ImageTimeout:     30 * time.Second,
	}
}

// Builtin returns the configuration of every supported site, in models.AllSites order.
func Builtin() []Config {
	yaksha := madara(models.SiteYaksha, "yaksha", "yakshascans.com", "/", "li.wp-manga-chapter a[href*='/chapter-']")
	yaksha.Settle = 8 * time.Second

	manhwaclan := madara(models.SiteManhwaClan, "manhwaclan", "manhwaclan.com", "/", "div.listing-chapters_wrap a[href*='/chapter-']")
	manhwaclan.Settle = 5 * time.Second

	manhuaus := madara(models.SiteManhuaus, "manhuaus", "manhuaus.com", "", "li.wp-manga-chapter a[href*='/chapter-']")
	manhuaus.ImageAttrs = []string{"data-src", "data-current-src", "src"}
	manhuaus.Settle = 5 * time.Second

	kunmanga := madara(models.SiteKunManga, "KunManga", "kunmanga.com", "/", "ul.main.version-chap li.wp-manga-chapter > a")
	kunmanga.ReaderSelector = "div.reading-content div.page-break img"
	kunmanga.Settle = 2 * time.Second

	return []Config{
		{
			Site: models.SiteAsura,
			Name: "AsuraScans",
			Kind: KindLazy,
			SearchPages: []string{
				"https://asuracomic.net",
				"https://asuracomic.net/page/1",
				"https://asuracomic.net/page/2",
				"https://asuracomic.net/page/3",
				"https://asuracomic.net/page/4",
				"https://asuracomic.net/page/5",
				"https://asuracomic.net/page/6",
			},
			SearchSelector: `div.w-full.p-1.pt-1.pb-3.border-b-\[1px\] a[href^='/series/']`,
			IndexSelectors: []string{
				"div[class*='pl-4'][class*='border'] a[href*='/chapter/']",
				"a[href*='/chapter/']",
			},
			ChapterPattern:   asuraChapterRe,
			ChapterTemplates: []string{"{series}/chapter/{n}"},
			ReaderSelector:   "img, picture source",
			WaitSelector:     "img.object-cover.mx-auto",
			WaitTimeout:      10 * time.Second,
			ScrollSteps:      24,
			ScrollPause:      250 * time.Millisecond,
			Threshold:        1,
			MaxAttempts:      5,
			Isolated:         true,
			ImageTimeout:     20 * time.Second,
		},
		{
			Site: models.SiteManhuaPlus,
			Name: "ManhuaPlus",
			Kind: KindStatic,
			SearchPages: []string{
				"https://manhuaplus.org/all-manga/1",
				"https://manhuaplus.org/all-manga/2",
				"https://manhuaplus.org/all-manga/3",
				"https://manhuaplus.org/all-manga/4",
				"https://manhuaplus.org/all-manga/5",
				"https://manhuaplus.org/all-manga/6",
				"https://manhuaplus.org/all-manga/7",
				"https://manhuaplus.org/all-manga/8",
				"https://manhuaplus.org/all-manga/9",
				"https://manhuaplus.org/all-manga/10",
			},
			SearchSelector: "div.grid.gtc-f141a.gg-20.p-13.mh-77vh > div a[href*='/manga/']",
			SeriesPattern:  manhuaPlusSeries,
			IndexSelectors: []string{
				"a.comicBtn[href*='/chapter-']",
				"a[href*='/chapter-']",
			},
			ChapterPattern:   madaraChapterRe,
			ChapterTemplates: []string{"{series}/chapter-{n}"},
			ReaderSelector:   "a.readImg",
			ImageAttrs:       []string{"href"},
			WaitSelector:     "a.readImg",
			WaitTimeout:      5 * time.Second,
			Threshold:        1,
			MaxAttempts:      5,
			Isolated:         true,
			ImageTimeout:     30 * time.Second,
		},
		yaksha,
		manhwaclan,
		manhuaus,
		kunmanga,
		{
			Site:           models.SiteReadKingdom,
			Name:           "readkingdom",
			Kind:           KindMirror,
			Mirrors:        mirrorHosts("https://ww%d.readkingdom.com", 1, 7),
			SeriesTemplate: "{mirror}/manga/{slug}/",
			IndexSelectors: []string{
				"div.bg-bg-secondary.p-3.rounded.mb-3.shadow a[href*='-chapter-']",
				"a[href*='-chapter-']",
			},
			ChapterPattern: kingdomChapterRe,
			ChapterTemplates: []string{
				"{mirror}/chapter/{name}-chapter-{n3}/",
				"{mirror}/chapter/{name}-chapter-{n}/",
			},
			ReaderSelector: "img.mb-3.mx-auto.js-page",
			ImageAttrs:     []string{"src", "data-current-src", "data-src"},
			Settle:         15 * time.Second,
			Threshold:      4,
			MaxAttempts:    5,
			ImageTimeout:   30 * time.Second,
		},
	}
}

func mirrorHosts(format string, from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf(format, i))
	}
	return out
}
