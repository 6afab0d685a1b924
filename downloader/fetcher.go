package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"chapterd/models"
	"chapterd/parser"

	"github.com/charmbracelet/log"
)

// ProgressFunc is called after each image with the number processed so far and the total.
type ProgressFunc func(done, total int)

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	UserAgent   string
	Timeout     time.Duration // per image
	Delay       time.Duration // between downloads
	FallbackExt string
	Client      *http.Client
}

// Fetcher downloads the images of one chapter, one after another.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	timeout     time.Duration
	delay       time.Duration
	fallbackExt string
	logger      *log.Logger
}

// NewFetcher creates an image fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		client:      opts.Client,
		userAgent:   opts.UserAgent,
		timeout:     opts.Timeout,
		delay:       opts.Delay,
		fallbackExt: opts.FallbackExt,
		logger:      log.WithPrefix("[Fetcher]"),
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.timeout <= 0 {
		f.timeout = 20 * time.Second
	}
	if f.fallbackExt == "" {
		f.fallbackExt = "jpg"
	}
	if f.userAgent == "" {
		f.userAgent = "Mozilla/5.0"
	}
	return f
}

// WithTimeout returns a copy of f using timeout per image. Zero keeps f's timeout.
func (f *Fetcher) WithTimeout(timeout time.Duration) *Fetcher {
	if timeout <= 0 || timeout == f.timeout {
		return f
	}
	c := *f
	c.timeout = timeout
	return &c
}

// Plan assigns sequence indexes and extensions to urls in input order.
func (f *Fetcher) Plan(urls []string) []models.Image {
	images := make([]models.Image, len(urls))
	for i, u := range urls {
		images[i] = models.Image{Index: i + 1, URL: u, Ext: parser.ImageExt(u, f.fallbackExt)}
	}
	return images
}

// FetchAll downloads urls into dest as 001.ext, 002.ext, ... in input order.
// A failed item is logged and skipped; its index is not reused.
// It returns the number of files materialized. The error is non-nil only when
// dest cannot be used or ctx is done.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, dest, referer string, progress ProgressFunc) (int, error) {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, fmt.Errorf("failed to create destination: %w", err)
	}

	throttle := parser.NewThrottle(f.delay)
	images := f.Plan(urls)
	successCount := 0

	for i, img := range images {
		if err := throttle.Wait(ctx); err != nil {
			return successCount, err
		}

		err := f.fetchOne(ctx, img, dest, referer)
		switch {
		case err == nil:
			successCount++
		case ctx.Err() != nil:
			return successCount, ctx.Err()
		default:
			f.logger.Warnf("Failed to download image %d/%d (%s): %v", img.Index, len(images), img.URL, err)
		}

		if progress != nil {
			progress(i+1, len(images))
		}
	}

	f.logger.Debugf("Downloaded %d/%d images into %s", successCount, len(images), dest)
	return successCount, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, img models.Image, dest, referer string) error {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, img.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", f.userAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: img.URL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) == 0 {
		return errors.New("empty response body")
	}
	if _, err := parser.SniffImage(data); err != nil {
		return fmt.Errorf("payload rejected: %w", err)
	}

	return os.WriteFile(filepath.Join(dest, img.FileName()), data, 0644)
}
