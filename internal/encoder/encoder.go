// Package encoder turns raw captured frames into compact channel payloads:
// downscale to a fixed geometry, JPEG-compress at a fixed quality, base64.
package encoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Defaults tuned for bandwidth on a live feed.
const (
	DefaultWidth   = 320
	DefaultHeight  = 240
	DefaultQuality = 70
)

// ErrNoFrame is returned when there is nothing to encode. The capture loop
// skips the tick and continues.
var ErrNoFrame = errors.New("no frame to encode")

// Encoder is a pure transform given identical input. The scratch image and
// compression buffer are reused between calls, so a single Encoder must not
// be shared across goroutines.
type Encoder struct {
	quality int
	scratch *image.RGBA
	buf     bytes.Buffer
}

func New(width, height, quality int) *Encoder {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{
		quality: quality,
		scratch: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Encode downscales src, JPEG-compresses it and returns the base64 payload
// plus the compressed byte size for diagnostics.
func (e *Encoder) Encode(src image.Image) (string, int, error) {
	if src == nil {
		return "", 0, ErrNoFrame
	}
	if src.Bounds().Empty() {
		return "", 0, ErrNoFrame
	}

	draw.ApproxBiLinear.Scale(e.scratch, e.scratch.Bounds(), src, src.Bounds(), draw.Src, nil)

	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, e.scratch, &jpeg.Options{Quality: e.quality}); err != nil {
		return "", 0, err
	}
	return base64.StdEncoding.EncodeToString(e.buf.Bytes()), e.buf.Len(), nil
}
