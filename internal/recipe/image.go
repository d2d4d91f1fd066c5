package recipe

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
)

const (
	dataURIPrefix = "data:image/jpeg;base64,"

	// maxImageWidth bounds stored images; narrower images are not upscaled.
	maxImageWidth = 800

	// maxImagePixels caps the declared size of an image we are willing to decode.
	maxImagePixels = 40_000_000
)

// DecodeDataURI turns a base64 data URI, or a bare base64 string, into raw bytes.
func DecodeDataURI(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, InvalidRequest("image payload is empty")
	}
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, data, ok := strings.Cut(s, ",")
		if !ok {
			return nil, InvalidRequest("image data URI has no payload")
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, InvalidRequest("image data URI must be base64 encoded")
		}
		payload = data
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients strip padding.
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, &Error{Kind: KindInvalidRequest, Message: "image is not valid base64", Err: err}
		}
	}
	if len(b) == 0 {
		return nil, InvalidRequest("image payload is empty")
	}
	return b, nil
}

// EncodeDataURI renders image bytes the way API responses carry them.
func EncodeDataURI(b []byte) string {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(b)
}

// IsImage reports whether b carries a supported image header of a decodable size.
func IsImage(b []byte) bool {
	_, ok := decodableConfig(b)
	return ok
}

func decodableConfig(b []byte) (image.Config, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return cfg, false
	}
	return cfg, int64(cfg.Width)*int64(cfg.Height) <= maxImagePixels
}

// NormalizeImage re-encodes any decodable image as JPEG no wider than maxImageWidth.
// Bytes that do not decode as an image, or that declare more than maxImagePixels,
// are returned unchanged.
func NormalizeImage(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	if _, ok := decodableConfig(b); !ok {
		return b
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return b
	}
	if img.Bounds().Dx() > maxImageWidth {
		img = resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return b
	}
	return buf.Bytes()
}
