// Package camera provides webcam access and frame capture through OpenCV.
package camera

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrCodeEU/faceattend/pkg/logging"
	"gocv.io/x/gocv"
)

// Camera defines the frame source used by the capture and recognize stages.
type Camera interface {
	// Read fills frame with the next BGR frame.
	Read(frame *gocv.Mat) error
	Close() error
}

// ErrCameraNotFound is returned when the camera device cannot be opened.
var ErrCameraNotFound = errors.New("could not open webcam")

// ErrCameraNotOpen is returned when trying to read from a closed camera.
var ErrCameraNotOpen = errors.New("camera not open")

// ErrNoFrame is returned when no frame could be grabbed.
var ErrNoFrame = errors.New("failed to grab frame")

// capture is the subset of gocv.VideoCapture the camera needs.
type capture interface {
	Read(m *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, param float64)
	IsOpened() bool
	Close() error
}

var openCapture = func(device int) (capture, error) {
	return gocv.OpenVideoCapture(device)
}

// VideoCamera reads frames from a local video device by index.
type VideoCamera struct {
	device int
	vc     capture
	mu     sync.Mutex
}

// Open opens the device and requests the given resolution. A resolution
// the driver refuses is not an error; the driver default is used instead.
func Open(device, width, height int) (*VideoCamera, error) {
	vc, err := openCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrCameraNotFound, device, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d", ErrCameraNotFound, device)
	}

	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	logging.Component("camera").Debugf("Opened video device %d", device)
	return &VideoCamera{device: device, vc: vc}, nil
}

// Device returns the device index.
func (c *VideoCamera) Device() int {
	return c.device
}

// Read grabs the next frame into frame.
func (c *VideoCamera) Read(frame *gocv.Mat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return ErrCameraNotOpen
	}
	if ok := c.vc.Read(frame); !ok || frame.Empty() {
		return ErrNoFrame
	}
	return nil
}

// Close releases the device. Closing twice is a no-op.
func (c *VideoCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	return err
}
