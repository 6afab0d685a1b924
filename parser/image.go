package parser

import (
	"bytes"
	"errors"

	"golang.org/x/image/webp"
)

// ErrNotImage is returned when a payload does not look like a supported raster image.
var ErrNotImage = errors.New("not a supported image")

// SniffImage reads the magic bytes and returns the image format ("jpeg", "png", "gif", "webp").
// WebP payloads are additionally decoded far enough to read their dimensions,
// which catches truncated files and HTML error pages served with an image URL.
func SniffImage(data []byte) (string, error) {
	if len(data) < 12 {
		return "", ErrNotImage
	}

	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpeg", nil
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "png", nil
	case string(data[0:6]) == "GIF87a" || string(data[0:6]) == "GIF89a":
		return "gif", nil
	case string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		cfg, err := webp.DecodeConfig(bytes.NewReader(data))
		if err != nil || cfg.Width == 0 || cfg.Height == 0 {
			return "", ErrNotImage
		}
		return "webp", nil
	}

	return "", ErrNotImage
}
