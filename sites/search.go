package sites

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"chapterd/cf"
	"chapterd/parser"

	"github.com/gocolly/colly"
)

const searchTimeout = 15 * time.Second

// search scans the configured listing pages for a link whose normalised path
// contains the normalised remote name. Pages are visited in order and the
// first match wins.
func (b *base) search(ctx context.Context, name string) (string, error) {
	want := parser.NormalizeSlug(name)
	if want == "" {
		return "", fmt.Errorf("%w: empty name", ErrNotFound)
	}

	var lastErr error
	for i, tmpl := range b.cfg.SearchPages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pageURL := expand(tmpl, map[string]string{"slug": url.QueryEscape(name)})

		found, err := b.searchPage(pageURL, want)
		if err != nil {
			b.logger.Warnf("Search page %d failed (%s): %v", i+1, pageURL, err)
			lastErr = err
			if _, ok := cf.IsChallenge(err); ok {
				return "", err
			}
			continue
		}
		if found != "" {
			b.logger.Infof("Resolved %q to %s (search page %d)", name, found, i+1)
			return found, nil
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %q after %d pages (last error: %v)", ErrNotFound, name, len(b.cfg.SearchPages), lastErr)
	}
	return "", fmt.Errorf("%w: %q after %d pages", ErrNotFound, name, len(b.cfg.SearchPages))
}

func (b *base) searchPage(pageURL, want string) (string, error) {
	c := colly.NewCollector(colly.AllowURLRevisit())
	if b.deps.UserAgent != "" {
		c.UserAgent = b.deps.UserAgent
	}
	c.SetRequestTimeout(searchTimeout)
	if b.deps.Transport != nil {
		c.WithTransport(b.deps.Transport)
	}

	var (
		found     string
		scrapeErr error
	)

	c.OnResponse(func(r *colly.Response) {
		if _, err := cf.DecompressResponse(r, "<"+string(b.cfg.Site)+">"); err != nil {
			scrapeErr = fmt.Errorf("decompress: %w", err)
			return
		}
		if isCF, info := cf.DetectFromColly(r); isCF {
			scrapeErr = cf.AsError(pageURL, info)
		}
	})

	c.OnHTML(b.cfg.SearchSelector, func(e *colly.HTMLElement) {
		if found != "" || scrapeErr != nil {
			return
		}
		href := e.Attr("href")
		if href == "" {
			return
		}
		abs := e.Request.AbsoluteURL(href)
		if !matchesSeries(abs, want) {
			return
		}
		if b.cfg.SeriesPattern != nil {
			m := b.cfg.SeriesPattern.FindString(abs)
			if m == "" {
				return
			}
			abs = m
		}
		found = abs
	})

	c.OnError(func(r *colly.Response, err error) {
		if isCF, info := cf.DetectFromColly(r); isCF {
			scrapeErr = cf.AsError(pageURL, info)
			return
		}
		scrapeErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(pageURL); err != nil && scrapeErr == nil {
		scrapeErr = err
	}
	if scrapeErr != nil {
		return "", scrapeErr
	}
	return found, nil
}

// matchesSeries compares the URL path, unescaped and normalised, against want.
// Trailing hash suffixes some sites append to series slugs do not prevent a match.
func matchesSeries(rawURL, want string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return strings.Contains(parser.NormalizeSlug(p), want)
}
