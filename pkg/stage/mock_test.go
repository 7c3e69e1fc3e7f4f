package stage

import (
	"image"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
	"github.com/MrCodeEU/faceattend/pkg/camera"
	"github.com/MrCodeEU/faceattend/pkg/preview"
	"github.com/MrCodeEU/faceattend/pkg/recognition"
	"gocv.io/x/gocv"
)

// MockCamera serves Frames copies of a blank BGR image, then ErrNoFrame.
// A non-nil ReadErr is returned from every read instead.
type MockCamera struct {
	Frames  int
	ReadErr error
	reads   int
	closed  bool
}

func (m *MockCamera) Read(frame *gocv.Mat) error {
	if m.ReadErr != nil {
		return m.ReadErr
	}
	if m.reads >= m.Frames {
		return camera.ErrNoFrame
	}
	m.reads++
	src := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.CopyTo(frame)
	return nil
}

func (m *MockCamera) Close() error {
	m.closed = true
	return nil
}

func (m *MockCamera) opener() OpenFunc {
	return func() (camera.Camera, error) { return m, nil }
}

type MockDetector struct {
	DetectFunc func(gray gocv.Mat) []image.Rectangle
}

func (m *MockDetector) Detect(gray gocv.Mat) []image.Rectangle {
	if m.DetectFunc != nil {
		return m.DetectFunc(gray)
	}
	return nil
}

func detectAlways(rects ...image.Rectangle) *MockDetector {
	return &MockDetector{DetectFunc: func(gocv.Mat) []image.Rectangle { return rects }}
}

// MockDisplay replays Keys, one per WaitKey call, then KeyNone.
type MockDisplay struct {
	Keys  []int
	shown int
}

func (m *MockDisplay) Show(gocv.Mat) { m.shown++ }

func (m *MockDisplay) WaitKey(int) int {
	if len(m.Keys) == 0 {
		return preview.KeyNone
	}
	k := m.Keys[0]
	m.Keys = m.Keys[1:]
	return k
}

func (m *MockDisplay) Close() error { return nil }

type MockRecognizer struct {
	TrainFunc   func(faces []gocv.Mat, labels []int) error
	PredictFunc func(face gocv.Mat) (recognition.Prediction, error)
	SaveFunc    func(path string) error
	LoadFunc    func(path string) error
}

func (m *MockRecognizer) Train(faces []gocv.Mat, labels []int) error {
	if m.TrainFunc != nil {
		return m.TrainFunc(faces, labels)
	}
	return nil
}

func (m *MockRecognizer) Predict(face gocv.Mat) (recognition.Prediction, error) {
	if m.PredictFunc != nil {
		return m.PredictFunc(face)
	}
	return recognition.Prediction{Label: -1}, nil
}

func (m *MockRecognizer) Save(path string) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(path)
	}
	return nil
}

func (m *MockRecognizer) Load(path string) error {
	if m.LoadFunc != nil {
		return m.LoadFunc(path)
	}
	return nil
}

func (m *MockRecognizer) Close() error { return nil }

type MockMarker struct {
	MarkFunc func(name string, source attendance.Source) (attendance.Record, error)
	calls    []string
}

func (m *MockMarker) Mark(name string, source attendance.Source) (attendance.Record, error) {
	m.calls = append(m.calls, name)
	if m.MarkFunc != nil {
		return m.MarkFunc(name, source)
	}
	return attendance.Record{Name: name}, nil
}
