package capture

import (
	"image"
	"image/color"
)

// Synthetic yields deterministic generated frames, for running without a
// camera and for exercising the full pipeline in development.
type Synthetic struct {
	width  int
	height int
	n      int
}

func NewSynthetic(width, height int) *Synthetic {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &Synthetic{width: width, height: height}
}

// Read returns a moving gradient so successive frames differ.
func (s *Synthetic) Read() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	shift := s.n * 7
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x + shift) % 256),
				G: uint8((y + shift) % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	s.n++
	return img, nil
}

func (s *Synthetic) Close() error {
	return nil
}
