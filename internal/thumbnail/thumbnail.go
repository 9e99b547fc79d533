// Package thumbnail renders fixed-width JPEG previews of uploaded photos.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	Width       = 400
	JPEGQuality = 80
	ContentType = "image/jpeg"
)

// ErrUnsupported is returned for formats that cannot be decoded (HEIC/HEIF).
var ErrUnsupported = errors.New("thumbnail: unsupported image format")

// Generate returns a JPEG no wider than Width. Images that are already narrow
// enough are re-encoded at their own size.
func Generate(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if img.Bounds().Dx() > Width {
		img = imaging.Resize(img, Width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
