package cf

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/charmbracelet/log"
	"github.com/gocolly/colly"
)

// DecompressBody returns the decompressed body and whether decompression happened.
// gzip is recognised by its magic bytes, Brotli by the Content-Encoding header
// or by a leading byte in the range Brotli streams usually start with.
// Bodies that only look like Brotli but fail to decode are returned unchanged.
func DecompressBody(body []byte, contentEncoding string) ([]byte, bool, error) {
	if len(body) == 0 {
		return body, false, nil
	}

	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, false, err
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, false, err
		}
		return decompressed, true, nil
	}

	if contentEncoding == "br" || (body[0] >= 0x80 && body[0] <= 0x8f) {
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			if contentEncoding == "br" {
				return nil, false, err
			}
			return body, false, nil
		}
		return decompressed, true, nil
	}

	return body, false, nil
}

// DecompressResponse decompresses a colly response body in place.
// Call it first thing in OnResponse.
func DecompressResponse(r *colly.Response, logPrefix string) (bool, error) {
	if r == nil || len(r.Body) == 0 {
		return false, nil
	}
	if logPrefix == "" {
		logPrefix = "<cf>"
	}

	encoding := ""
	if r.Headers != nil {
		encoding = r.Headers.Get("Content-Encoding")
	}

	originalSize := len(r.Body)
	decompressed, ok, err := DecompressBody(r.Body, encoding)
	if err != nil || !ok {
		return false, err
	}

	r.Body = decompressed
	log.WithPrefix(logPrefix).Debugf("Decompressed response: %d bytes → %d bytes", originalSize, len(decompressed))
	return true, nil
}
