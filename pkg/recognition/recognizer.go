// Package recognition trains and applies the face classifier. Two engines are
// available: OpenCV's LBPH recognizer, which works directly on grayscale
// crops, and dlib via go-face, which compares 128-d face descriptors.
package recognition

import (
	"errors"
	"fmt"
	"os"

	"github.com/MrCodeEU/faceattend/pkg/config"
	"github.com/MrCodeEU/faceattend/pkg/storage"
	"gocv.io/x/gocv"
)

// Prediction is the classification of one face crop.
type Prediction struct {
	Label int
	// Distance is engine specific; lower means more similar.
	Distance float64
	// Confidence is a percentage for display only.
	Confidence float64
	// Accepted reports whether Distance passed the engine threshold.
	Accepted bool
}

// Recognizer is a trainable face classifier persisted to a single file.
type Recognizer interface {
	Train(faces []gocv.Mat, labels []int) error
	Predict(face gocv.Mat) (Prediction, error)
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrNoSamples is returned when training is attempted without usable faces.
var ErrNoSamples = errors.New("no face samples to train on")

// ErrNotTrained is returned when predicting or saving before Train or Load.
var ErrNotTrained = errors.New("recognizer is not trained")

// ErrModelNotFound is returned when the model file does not exist.
var ErrModelNotFound = errors.New("trained model not found")

// ErrModelNotLoaded is returned when the dlib models are not loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// ErrNoFaceDetected is returned when dlib finds no face in a crop.
var ErrNoFaceDetected = errors.New("no face detected")

// New builds the recognizer selected by cfg.Engine.
func New(cfg config.RecognitionConfig, store *storage.FileStorage) (Recognizer, error) {
	switch cfg.Engine {
	case config.EngineLBPH, "":
		return NewLBPHRecognizer(cfg.Threshold), nil
	case config.EngineDlib:
		r := NewDlibRecognizer(store)
		r.SetTolerance(cfg.Tolerance)
		if err := r.LoadModels(cfg.ModelPath); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown recognition engine %q", cfg.Engine)
	}
}

// ModelExists reports whether a trained model file is present at path.
func ModelExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func checkTrainingInput(faces []gocv.Mat, labels []int) error {
	if len(faces) != len(labels) {
		return fmt.Errorf("got %d faces but %d labels", len(faces), len(labels))
	}
	if len(faces) == 0 {
		return ErrNoSamples
	}
	return nil
}
