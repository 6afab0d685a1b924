package sites

import (
	"strings"

	"chapterd/parser"

	"github.com/PuerkitoBio/goquery"
)

// defaultImageAttrs is the attribute priority used when a site does not override it:
// the source the browser actually rendered, the literal src, lazy-load attributes,
// then the largest responsive candidate.
var defaultImageAttrs = []string{"data-current-src", "src", "data-src", "data-lazy-src", "srcset", "data-srcset"}

var defaultNotFoundMarkers = []string{"page not found", "404 not found", "nothing found"}

func parseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// extractImages walks the elements matched by selector in document order and keeps,
// for each, the first attribute that yields an absolute URL with an allowed extension.
func extractImages(pageURL, html, selector string, attrs []string) []string {
	doc, err := parseHTML(html)
	if err != nil {
		return nil
	}
	if len(attrs) == 0 {
		attrs = defaultImageAttrs
	}

	seen := make(map[string]bool)
	var urls []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		u := pickImageURL(pageURL, s, attrs)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	})
	return urls
}

func pickImageURL(pageURL string, s *goquery.Selection, attrs []string) string {
	for _, attr := range attrs {
		v, ok := s.Attr(attr)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if strings.HasSuffix(attr, "srcset") {
			v = parser.LargestSrcset(v)
		}
		if v == "" || strings.HasPrefix(v, "data:") {
			continue
		}
		abs := parser.ResolveURL(pageURL, v)
		if !strings.HasPrefix(abs, "http://") && !strings.HasPrefix(abs, "https://") {
			continue
		}
		if !parser.HasImageExt(abs) {
			continue
		}
		return abs
	}
	return ""
}

// chapterLinks returns the absolute hrefs matched by the first selector that yields at least one chapter number.
func chapterLinks(doc *goquery.Document, pageURL string, selectors []string, cfg Config) []string {
	for _, sel := range selectors {
		var links []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok {
				links = append(links, parser.ResolveURL(pageURL, href))
			}
		})
		if len(parser.ChapterNumbers(cfg.ChapterPattern, links)) > 0 {
			return links
		}
	}
	return nil
}

// isNotFoundPage reports whether doc is a site's 404 page served with a 200 status.
func isNotFoundPage(doc *goquery.Document, markers []string) bool {
	if doc.Find("body.error404").Length() > 0 {
		return true
	}
	if len(markers) == 0 {
		markers = defaultNotFoundMarkers
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	h1 := strings.ToLower(strings.TrimSpace(doc.Find("h1").First().Text()))
	for _, m := range markers {
		if strings.Contains(title, m) || strings.Contains(h1, m) {
			return true
		}
	}
	return false
}
