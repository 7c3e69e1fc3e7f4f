package camera

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

type mockCapture struct {
	opened  bool
	frames  int
	props   map[gocv.VideoCaptureProperties]float64
	closed  bool
	emptyOK bool
}

func (m *mockCapture) Read(dst *gocv.Mat) bool {
	if m.frames == 0 {
		return false
	}
	m.frames--
	if m.emptyOK {
		return true
	}
	src := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.CopyTo(dst)
	return true
}

func (m *mockCapture) Set(prop gocv.VideoCaptureProperties, param float64) {
	if m.props == nil {
		m.props = make(map[gocv.VideoCaptureProperties]float64)
	}
	m.props[prop] = param
}

func (m *mockCapture) IsOpened() bool { return m.opened }

func (m *mockCapture) Close() error {
	m.closed = true
	return nil
}

func withCapture(t *testing.T, mock *mockCapture, err error) {
	t.Helper()
	orig := openCapture
	openCapture = func(device int) (capture, error) {
		if err != nil {
			return nil, err
		}
		return mock, nil
	}
	t.Cleanup(func() { openCapture = orig })
}

func TestOpen(t *testing.T) {
	mock := &mockCapture{opened: true}
	withCapture(t, mock, nil)

	cam, err := Open(1, 1280, 720)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if cam.Device() != 1 {
		t.Errorf("device = %d", cam.Device())
	}
	if mock.props[gocv.VideoCaptureFrameWidth] != 1280 || mock.props[gocv.VideoCaptureFrameHeight] != 720 {
		t.Errorf("resolution not requested: %v", mock.props)
	}
}

func TestOpen_Failures(t *testing.T) {
	t.Run("driver error", func(t *testing.T) {
		withCapture(t, nil, errors.New("no such device"))
		if _, err := Open(0, 640, 480); !errors.Is(err, ErrCameraNotFound) {
			t.Errorf("expected ErrCameraNotFound, got %v", err)
		}
	})

	t.Run("not opened", func(t *testing.T) {
		mock := &mockCapture{opened: false}
		withCapture(t, mock, nil)
		if _, err := Open(0, 640, 480); !errors.Is(err, ErrCameraNotFound) {
			t.Errorf("expected ErrCameraNotFound, got %v", err)
		}
		if !mock.closed {
			t.Error("unopened capture should be released")
		}
	})
}

func TestRead(t *testing.T) {
	mock := &mockCapture{opened: true, frames: 1}
	withCapture(t, mock, nil)

	cam, err := Open(0, 0, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(mock.props) != 0 {
		t.Error("zero resolution should not be requested")
	}

	frame := gocv.NewMat()
	defer frame.Close()

	if err := cam.Read(&frame); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if frame.Rows() != 4 || frame.Cols() != 4 {
		t.Errorf("unexpected frame size %dx%d", frame.Cols(), frame.Rows())
	}

	if err := cam.Read(&frame); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame after stream end, got %v", err)
	}
}

func TestRead_EmptyFrame(t *testing.T) {
	mock := &mockCapture{opened: true, frames: 1, emptyOK: true}
	withCapture(t, mock, nil)

	cam, _ := Open(0, 0, 0)
	frame := gocv.NewMat()
	defer frame.Close()

	if err := cam.Read(&frame); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame for empty frame, got %v", err)
	}
}

func TestClose(t *testing.T) {
	mock := &mockCapture{opened: true, frames: 5}
	withCapture(t, mock, nil)

	cam, _ := Open(0, 0, 0)
	if err := cam.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !mock.closed {
		t.Error("capture not closed")
	}
	if err := cam.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	frame := gocv.NewMat()
	defer frame.Close()
	if err := cam.Read(&frame); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("expected ErrCameraNotOpen, got %v", err)
	}
}
