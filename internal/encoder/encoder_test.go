package encoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func testFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestEncodeProducesDecodableJPEGAtTargetSize(t *testing.T) {
	enc := New(320, 240, 70)

	payload, size, err := enc.Encode(testFrame(640, 480))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if size <= 0 {
		t.Errorf("size = %d, want > 0", size)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if len(raw) != size {
		t.Errorf("decoded size = %d, reported size = %d", len(raw), size)
	}

	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("payload is not a decodable JPEG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("decoded dimensions = %dx%d, want 320x240", b.Dx(), b.Dy())
	}
}

func TestEncodeDeterministicForIdenticalInput(t *testing.T) {
	enc := New(160, 120, 60)
	frame := testFrame(320, 240)

	first, _, err := enc.Encode(frame)
	if err != nil {
		t.Fatalf("first Encode failed: %v", err)
	}
	second, _, err := enc.Encode(frame)
	if err != nil {
		t.Fatalf("second Encode failed: %v", err)
	}
	if first != second {
		t.Errorf("identical input produced different payloads")
	}
}

func TestEncodeNilFrame(t *testing.T) {
	enc := New(320, 240, 70)
	if _, _, err := enc.Encode(nil); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Encode(nil) err = %v, want ErrNoFrame", err)
	}
}

func TestEncodeEmptyFrame(t *testing.T) {
	enc := New(320, 240, 70)
	empty := image.NewRGBA(image.Rect(0, 0, 0, 0))
	if _, _, err := enc.Encode(empty); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Encode(empty) err = %v, want ErrNoFrame", err)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	enc := New(0, 0, 0)
	payload, _, err := enc.Encode(testFrame(64, 48))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if img.Bounds().Dx() != DefaultWidth || img.Bounds().Dy() != DefaultHeight {
		t.Errorf("default dimensions = %dx%d, want %dx%d",
			img.Bounds().Dx(), img.Bounds().Dy(), DefaultWidth, DefaultHeight)
	}
}
