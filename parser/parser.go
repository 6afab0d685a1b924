package parser

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ExpandPath expands ~ to the user's home directory, or returns the path as-is
func ExpandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, p[2:]), nil
	}
	return p, nil
}

// ChapterNumbers applies pattern to every candidate and returns the integers captured by its first group.
// Candidates that do not match are skipped.
func ChapterNumbers(pattern *regexp.Regexp, candidates []string) []int {
	var nums []int
	for _, c := range candidates {
		m := pattern.FindStringSubmatch(c)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}

// LatestChapter returns the highest chapter number found among candidates,
// or 1 when nothing matches: "at least chapter 1 may exist".
func LatestChapter(pattern *regexp.Regexp, candidates []string) int {
	latest := 0
	for _, n := range ChapterNumbers(pattern, candidates) {
		if n > latest {
			latest = n
		}
	}
	if latest == 0 {
		return 1
	}
	return latest
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeSlug case-folds s and strips everything that is not a letter or digit,
// so "Solo-Leveling", "solo leveling" and "SOLO_LEVELING!" compare equal.
func NormalizeSlug(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

var imageExtRe = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp|gif)(?:[^a-z]|$)`)

// HasImageExt reports whether the URL path carries one of the allowed raster extensions.
func HasImageExt(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return imageExtRe.MatchString(rawURL)
	}
	return imageExtRe.MatchString(u.Path)
}

// ImageExt derives the file extension from the URL path.
// Unknown or missing extensions yield fallback.
func ImageExt(rawURL, fallback string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	ext = strings.TrimRight(ext, "_")
	switch ext {
	case "jpg", "jpeg", "png", "webp", "gif":
		return ext
	}
	return fallback
}

// ResolveURL resolves ref against base. It returns ref unchanged when either fails to parse.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// LargestSrcset returns the candidate with the largest width or density descriptor.
// Without descriptors the last candidate wins.
func LargestSrcset(srcset string) string {
	best := ""
	bestSize := -1.0
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		size := 0.0
		if len(fields) > 1 {
			d := fields[1]
			if v, err := strconv.ParseFloat(strings.TrimRight(d, "wx"), 64); err == nil {
				size = v
			}
		}
		if size >= bestSize {
			best, bestSize = fields[0], size
		}
	}
	return best
}
