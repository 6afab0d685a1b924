package cf

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gocolly/colly"
)

// Info describes why a response was classified as a challenge.
type Info struct {
	StatusCode int
	Indicators []string
	RayID      string
	Turnstile  bool
}

var (
	justAMomentRe = regexp.MustCompile(`(?i)<title[^>]*>[^<]*just a moment[^<]*</title>`)

	// Each of these alone marks a challenge page.
	strongChecks = map[string]string{
		"cloudflare-browser-verification": "JS browser verification challenge",
		"challenge-form":                  "Cloudflare challenge form",
		"cf-chl-":                         "Cloudflare challenge token",
		"attention required":              "Cloudflare BIC",
		"checking your browser":           "Cloudflare browser check",
		"verify you are human":            "Cloudflare human verification",
	}
	// Present on normal pages of some sites; only counts next to a strong indicator.
	weakChecks = map[string]string{
		"/cdn-cgi/challenge-platform/": "Cloudflare challenge JS",
	}
)

// Detect inspects a response and reports whether it is an anti-bot challenge
// rather than real content. header may be nil.
func Detect(statusCode int, header http.Header, body []byte) (bool, *Info) {
	return detect(statusCode, header, body, true)
}

// DetectRendered inspects a browser-rendered DOM. Readers embed Turnstile in
// comment forms, so the widget alone only counts when contentReady is false.
func DetectRendered(html string, contentReady bool) (bool, *Info) {
	return detect(http.StatusOK, nil, []byte(html), !contentReady)
}

func detect(statusCode int, header http.Header, body []byte, turnstileAlone bool) (bool, *Info) {
	lower := strings.ToLower(string(body))
	info := &Info{StatusCode: statusCode}
	match := false
	strong := false

	switch statusCode {
	case http.StatusForbidden:
		info.Indicators = append(info.Indicators, "403 Forbidden")
		match = true
	case http.StatusServiceUnavailable:
		info.Indicators = append(info.Indicators, "503 Service Unavailable")
		match = true
	case http.StatusTooManyRequests:
		info.Indicators = append(info.Indicators, "429 Rate limit")
	}

	if header != nil {
		info.RayID = header.Get("CF-Ray")
		for _, c := range header.Values("Set-Cookie") {
			if strings.Contains(c, "cf_clearance") {
				info.Indicators = append(info.Indicators, "New cf_clearance cookie in response")
				match = true
			}
		}
	}

	for substr, reason := range strongChecks {
		if strings.Contains(lower, substr) {
			info.Indicators = append(info.Indicators, reason)
			match, strong = true, true
		}
	}

	// "just a moment" only counts inside <title>; reader comments use the phrase too
	if justAMomentRe.MatchString(lower) {
		info.Indicators = append(info.Indicators, "Cloudflare challenge page")
		match, strong = true, true
	}

	if strong {
		for substr, reason := range weakChecks {
			if strings.Contains(lower, substr) {
				info.Indicators = append(info.Indicators, reason)
			}
		}
	}

	if strings.Contains(lower, "cf-turnstile") {
		info.Turnstile = true
		if strong || turnstileAlone {
			info.Indicators = append(info.Indicators, "Turnstile CAPTCHA")
			match = true
		}
	}

	if !match {
		return false, nil
	}
	log.WithPrefix("[CF]").Debug("challenge detected", "status", statusCode, "indicators", info.Indicators, "ray", info.RayID)
	return true, info
}

// DetectFromColly wraps Detect so it can be used directly with colly collectors
func DetectFromColly(r *colly.Response) (bool, *Info) {
	if r == nil {
		return false, nil
	}
	var header http.Header
	if r.Headers != nil {
		header = *r.Headers
	}
	return Detect(r.StatusCode, header, r.Body)
}

// AsError converts a detection result into a ChallengeError for url.
func AsError(url string, info *Info) error {
	if info == nil {
		return nil
	}
	return &ChallengeError{URL: url, StatusCode: info.StatusCode, Indicators: info.Indicators}
}
