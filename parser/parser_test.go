package parser_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"chapterd/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestChapter(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`/chapter-(\d+)`)

	tests := []struct {
		name       string
		candidates []string
		want       int
	}{
		{name: "picks maximum", candidates: []string{"/m/x/chapter-3/", "/m/x/chapter-12/", "/m/x/chapter-7"}, want: 12},
		{name: "ignores non matching", candidates: []string{"/m/x/", "/about", "/m/x/chapter-2"}, want: 2},
		{name: "defaults to one", candidates: []string{"/m/x/", "/login"}, want: 1},
		{name: "empty input defaults to one", candidates: nil, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parser.LatestChapter(pattern, tt.candidates))
		})
	}
}

func TestNormalizeSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sololeveling", parser.NormalizeSlug("Solo-Leveling"))
	assert.Equal(t, "sololeveling", parser.NormalizeSlug("solo leveling"))
	assert.Equal(t, "sololeveling", parser.NormalizeSlug("SOLO_LEVELING!"))
}

func TestImageExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{url: "https://cdn.example.com/a/001.webp", want: "webp"},
		{url: "https://cdn.example.com/a/001.JPG?token=abc", want: "jpg"},
		{url: "https://cdn.example.com/a/001.png_", want: "png"},
		{url: "https://cdn.example.com/a/image", want: "jpg"},
		{url: "https://cdn.example.com/a/file.php?id=1", want: "jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parser.ImageExt(tt.url, "jpg"))
		})
	}
}

func TestHasImageExt(t *testing.T) {
	t.Parallel()

	assert.True(t, parser.HasImageExt("https://x.test/1.jpeg"))
	assert.True(t, parser.HasImageExt("https://x.test/1.webp?v=2"))
	assert.False(t, parser.HasImageExt("https://x.test/logo.svg"))
	assert.False(t, parser.HasImageExt("https://x.test/page.jpgx"))
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://x.test/series/a/chapter/2", parser.ResolveURL("https://x.test/series/a/chapter/1", "2"))
	assert.Equal(t, "https://x.test/img/1.jpg", parser.ResolveURL("https://x.test/series/a", "/img/1.jpg"))
	assert.Equal(t, "https://cdn.test/1.jpg", parser.ResolveURL("https://x.test/", "//cdn.test/1.jpg"))
	assert.Equal(t, "", parser.ResolveURL("https://x.test/", "  "))
}

func TestLargestSrcset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "big.jpg", parser.LargestSrcset("small.jpg 320w, big.jpg 1280w, mid.jpg 640w"))
	assert.Equal(t, "b.jpg", parser.LargestSrcset("a.jpg 1x, b.jpg 2x"))
	assert.Equal(t, "last.jpg", parser.LargestSrcset("first.jpg, last.jpg"))
}

func TestSniffImage(t *testing.T) {
	t.Parallel()

	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 16)...)
	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 16)...)
	gif := append([]byte("GIF89a"), make([]byte, 16)...)

	for name, tc := range map[string]struct {
		data []byte
		want string
	}{
		"jpeg": {data: jpeg, want: "jpeg"},
		"png":  {data: png, want: "png"},
		"gif":  {data: gif, want: "gif"},
	} {
		got, err := parser.SniffImage(tc.data)
		require.NoError(t, err, name)
		assert.Equal(t, tc.want, got, name)
	}

	_, err := parser.SniffImage([]byte("<html><body>403</body></html>"))
	assert.ErrorIs(t, err, parser.ErrNotImage)

	_, err = parser.SniffImage([]byte("RIFF\x00\x00\x00\x00WEBPVP8 garbage"))
	assert.ErrorIs(t, err, parser.ErrNotImage)
}

func TestThrottle(t *testing.T) {
	t.Parallel()

	throttle := parser.NewThrottle(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, throttle.Wait(ctx))
	require.NoError(t, throttle.Wait(ctx))
	require.NoError(t, throttle.Wait(ctx))

	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}
