package recognition

import (
	"os"

	"github.com/Kagami/go-face"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

type MockFaceEngine struct {
	RecognizeFunc func(data []byte) ([]face.Face, error)
	CloseFunc     func()
}

func (m *MockFaceEngine) Recognize(data []byte) ([]face.Face, error) {
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(data)
	}
	return nil, nil
}

func (m *MockFaceEngine) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

type MockLBPHModel struct {
	TrainFunc   func(images []gocv.Mat, labels []int)
	PredictFunc func(sample gocv.Mat) contrib.PredictResponse
	saved       string
	loaded      string
}

func (m *MockLBPHModel) Train(images []gocv.Mat, labels []int) {
	if m.TrainFunc != nil {
		m.TrainFunc(images, labels)
	}
}

func (m *MockLBPHModel) PredictExtendedResponse(sample gocv.Mat) contrib.PredictResponse {
	if m.PredictFunc != nil {
		return m.PredictFunc(sample)
	}
	return contrib.PredictResponse{Label: -1}
}

func (m *MockLBPHModel) SaveFile(fname string) {
	m.saved = fname
	_ = os.WriteFile(fname, []byte("opencv_lbphfaces:\n"), 0644)
}

func (m *MockLBPHModel) LoadFile(fname string) {
	m.loaded = fname
}
