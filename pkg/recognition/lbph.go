package recognition

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrCodeEU/faceattend/pkg/logging"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// DefaultThreshold is the LBPH distance below which a face is accepted.
const DefaultThreshold = 60.0

// lbphModel is the subset of contrib.LBPHFaceRecognizer used here.
type lbphModel interface {
	Train(images []gocv.Mat, labels []int)
	PredictExtendedResponse(sample gocv.Mat) contrib.PredictResponse
	SaveFile(fname string)
	LoadFile(fname string)
}

// LBPHRecognizer wraps OpenCV's local binary patterns histogram recognizer.
type LBPHRecognizer struct {
	model     lbphModel
	threshold float64
	trained   bool
	mu        sync.Mutex
}

// NewLBPHRecognizer creates an untrained LBPH recognizer.
func NewLBPHRecognizer(threshold float64) *LBPHRecognizer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &LBPHRecognizer{
		model:     contrib.NewLBPHFaceRecognizer(),
		threshold: threshold,
	}
}

// Threshold returns the acceptance distance.
func (r *LBPHRecognizer) Threshold() float64 {
	return r.threshold
}

// Train fits the histograms. Faces must be grayscale.
func (r *LBPHRecognizer) Train(faces []gocv.Mat, labels []int) error {
	if err := checkTrainingInput(faces, labels); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.model.Train(faces, labels)
	r.trained = true
	logging.Component("lbph").Debugf("Trained on %d faces", len(faces))
	return nil
}

// Predict classifies a grayscale face crop. Confidence is 100 minus the
// distance, as shown in the preview label.
func (r *LBPHRecognizer) Predict(face gocv.Mat) (Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.trained {
		return Prediction{}, ErrNotTrained
	}

	resp := r.model.PredictExtendedResponse(face)
	distance := float64(resp.Confidence)
	return Prediction{
		Label:      int(resp.Label),
		Distance:   distance,
		Confidence: 100 - distance,
		Accepted:   resp.Label >= 0 && distance < r.threshold,
	}, nil
}

// Save writes the OpenCV YAML model, creating the parent directory.
func (r *LBPHRecognizer) Save(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.trained {
		return ErrNotTrained
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	r.model.SaveFile(path)
	if !ModelExists(path) {
		return fmt.Errorf("model was not written to %s", path)
	}
	return nil
}

// Load reads a model written by Save.
func (r *LBPHRecognizer) Load(path string) error {
	if !ModelExists(path) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.model.LoadFile(path)
	r.trained = true
	return nil
}

// Close is a no-op for LBPH.
func (r *LBPHRecognizer) Close() error {
	return nil
}
