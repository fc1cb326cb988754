// Package capture owns the video device handle and yields raw frames for the
// session's capture/transmit loop.
package capture

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

var (
	// ErrDeviceUnavailable is returned when the capture device cannot be
	// opened. The session enters its error phase and does not retry.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrEmptyFrame is returned when the device yields nothing; the tick
	// is skipped.
	ErrEmptyFrame = errors.New("empty frame")
)

// Webcam wraps a physical video device. It must be released with Close on
// every exit path; double Close is safe.
type Webcam struct {
	deviceID int
	cam      *gocv.VideoCapture
	frame    gocv.Mat // reusable matrix, avoids per-read allocation
	closed   bool
}

// OpenWebcam acquires the device and configures the native capture size.
func OpenWebcam(deviceID, width, height int) (*Webcam, error) {
	cam, err := gocv.VideoCaptureDevice(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrDeviceUnavailable, deviceID, err)
	}
	if width > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		cam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	return &Webcam{
		deviceID: deviceID,
		cam:      cam,
		frame:    gocv.NewMat(),
	}, nil
}

// Read pulls the current frame and converts it to a standard image.
func (w *Webcam) Read() (image.Image, error) {
	if w.closed {
		return nil, ErrDeviceUnavailable
	}
	if ok := w.cam.Read(&w.frame); !ok {
		return nil, fmt.Errorf("%w: device %d read failed", ErrEmptyFrame, w.deviceID)
	}
	if w.frame.Empty() {
		return nil, ErrEmptyFrame
	}
	img, err := w.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device and the reusable matrix.
func (w *Webcam) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.cam.Close()
	if mErr := w.frame.Close(); err == nil {
		err = mErr
	}
	return err
}
