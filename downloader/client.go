package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"chapterd/cf"
	"chapterd/retry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/charmbracelet/log"
	"golang.org/x/net/publicsuffix"
)

// StatusError is returned for non-200 responses that are not challenges.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.StatusCode, e.URL)
}

// IsGone reports whether err is a 404/410, i.e. the URL no longer exists.
func IsGone(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusGone
	}
	return false
}

// HTTPClientOptions configures an HTTPClient.
type HTTPClientOptions struct {
	UserAgent   string
	MaxRetries  int
	BaseTimeout time.Duration
	// Transport replaces the default Cloudflare-friendly transport (tests use this).
	Transport http.RoundTripper
}

// HTTPClient fetches static discovery pages (series indexes, search listings)
// with retries on timeouts, decompression and challenge detection.
type HTTPClient struct {
	httpClient  *http.Client
	userAgent   string
	maxRetries  int
	baseTimeout time.Duration
	logger      *log.Logger
}

// NewHTTPClient creates a discovery client with its own cookie jar.
func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = cloudflarebp.AddCloudFlareByPass(http.DefaultTransport.(*http.Transport).Clone())
	}

	c := &HTTPClient{
		httpClient:  &http.Client{Jar: jar, Transport: transport},
		userAgent:   opts.UserAgent,
		maxRetries:  opts.MaxRetries,
		baseTimeout: opts.BaseTimeout,
		logger:      log.WithPrefix("[HTTPClient]"),
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.baseTimeout <= 0 {
		c.baseTimeout = 10 * time.Second
	}
	if c.userAgent == "" {
		c.userAgent = "Mozilla/5.0"
	}
	return c, nil
}

// Transport returns the round tripper shared with the search collectors.
func (c *HTTPClient) Transport() http.RoundTripper {
	return c.httpClient.Transport
}

// UserAgent returns the user agent sent with every request.
func (c *HTTPClient) UserAgent() string {
	return c.userAgent
}

// FetchHTML fetches a page. Timeouts are retried with a growing deadline;
// challenges and HTTP errors are returned immediately.
func (c *HTTPClient) FetchHTML(ctx context.Context, targetURL string) (string, error) {
	var html string

	policy := retry.Policy{
		MaxAttempts: c.maxRetries,
		Backoff:     retry.Exponential(time.Second),
		Terminal:    func(err error) bool { return !isTimeout(err) },
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Warnf("Timeout on attempt %d/%d for %s, waiting %v: %v", attempt, c.maxRetries, targetURL, wait, err)
		},
	}

	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		timeout := c.baseTimeout + time.Duration(attempt-1)*5*time.Second
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		body, err := c.fetchAttempt(reqCtx, targetURL)
		if err != nil {
			return err
		}
		html = body
		return nil
	})
	if err != nil {
		return "", err
	}
	return html, nil
}

// fetchAttempt performs a single HTTP request attempt
func (c *HTTPClient) fetchAttempt(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	decompressed, wasCompressed, err := cf.DecompressBody(bodyBytes, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return "", fmt.Errorf("failed to decompress response: %w", err)
	}
	if wasCompressed {
		c.logger.Debugf("Decompressed response: %d → %d bytes", len(bodyBytes), len(decompressed))
		bodyBytes = decompressed
	}

	if isCF, info := cf.Detect(resp.StatusCode, resp.Header, bodyBytes); isCF {
		c.logger.Warnf("Cloudflare challenge detected for %s", targetURL)
		return "", cf.AsError(targetURL, info)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: targetURL, StatusCode: resp.StatusCode}
	}

	return string(bodyBytes), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
