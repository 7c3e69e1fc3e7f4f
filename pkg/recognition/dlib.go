package recognition

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Kagami/go-face"
	"github.com/MrCodeEU/faceattend/pkg/config"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/storage"
	"gocv.io/x/gocv"
)

// Descriptor is a 128-dimensional face descriptor from dlib.
type Descriptor = face.Descriptor

// DefaultTolerance is the descriptor distance below which faces match.
const DefaultTolerance = 0.4

// FaceEngine is the part of go-face's recognizer used here.
type FaceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	Close()
}

// EngineFactory opens a FaceEngine from a model directory.
type EngineFactory func(modelPath string) (FaceEngine, error)

func defaultFactory(modelPath string) (FaceEngine, error) {
	return face.NewRecognizer(modelPath)
}

// DlibRecognizer implements face recognition using dlib via go-face.
// The dlib models must be present in the model path:
// shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat
// and mmod_human_face_detector.dat.
type DlibRecognizer struct {
	engine    FaceEngine
	factory   EngineFactory
	store     *storage.FileStorage
	gallery   []storage.Entry
	tolerance float64
	loaded    bool
	mu        sync.RWMutex
}

// NewDlibRecognizer creates a new DlibRecognizer persisting through store.
func NewDlibRecognizer(store *storage.FileStorage) *DlibRecognizer {
	return &DlibRecognizer{
		factory:   defaultFactory,
		store:     store,
		tolerance: DefaultTolerance,
	}
}

// SetTolerance sets the tolerance for face matching.
// Lower values are more strict (fewer false positives).
func (r *DlibRecognizer) SetTolerance(tolerance float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tolerance > 0 {
		r.tolerance = tolerance
	}
}

// LoadModels loads the dlib models from modelPath. Loading twice is a no-op.
func (r *DlibRecognizer) LoadModels(modelPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}

	logging.Infof("Loading face recognition models from: %s", modelPath)

	engine, err := r.factory(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	r.engine = engine
	r.loaded = true
	return nil
}

// IsLoaded returns true if models are loaded.
func (r *DlibRecognizer) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Close releases the recognizer resources.
func (r *DlibRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	r.loaded = false
	return nil
}

// describe JPEG-encodes a crop and returns the descriptor of the largest
// face dlib finds in it.
func (r *DlibRecognizer) describe(img gocv.Mat) (Descriptor, error) {
	if !r.loaded {
		return Descriptor{}, ErrModelNotLoaded
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to encode face: %w", err)
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	faces, err := r.engine.Recognize(data)
	if err != nil {
		return Descriptor{}, fmt.Errorf("face detection failed: %w", err)
	}
	if len(faces) == 0 {
		return Descriptor{}, ErrNoFaceDetected
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if area(f) > area(best) {
			best = f
		}
	}
	return best.Descriptor, nil
}

func area(f face.Face) int {
	return f.Rectangle.Dx() * f.Rectangle.Dy()
}

// Train computes a descriptor per crop. Crops dlib cannot find a face in
// are skipped; ErrNoSamples is returned when none remain.
func (r *DlibRecognizer) Train(faces []gocv.Mat, labels []int) error {
	if err := checkTrainingInput(faces, labels); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var gallery []storage.Entry
	for i, img := range faces {
		d, err := r.describe(img)
		if err != nil {
			if errors.Is(err, ErrModelNotLoaded) {
				return err
			}
			logging.WithField("label", labels[i]).Warnf("Skipping training face %d: %v", i, err)
			continue
		}
		gallery = append(gallery, storage.Entry{Label: labels[i], Vector: d})
	}

	if len(gallery) == 0 {
		return ErrNoSamples
	}

	r.gallery = gallery
	logging.Component("dlib").Debugf("Trained gallery with %d descriptors", len(gallery))
	return nil
}

// Predict finds the nearest gallery descriptor.
func (r *DlibRecognizer) Predict(img gocv.Mat) (Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.gallery) == 0 {
		return Prediction{}, ErrNotTrained
	}

	d, err := r.describe(img)
	if err != nil {
		return Prediction{}, err
	}

	idx, dist, matched := FindBestMatch(d, r.gallery, r.tolerance)
	return Prediction{
		Label:      r.gallery[idx].Label,
		Distance:   dist,
		Confidence: (1 - dist) * 100,
		Accepted:   matched,
	}, nil
}

// Save persists the gallery through the storage layer.
func (r *DlibRecognizer) Save(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.gallery) == 0 {
		return ErrNotTrained
	}
	return r.store.SaveGallery(path, storage.Gallery{
		Engine:    config.EngineDlib,
		TrainedAt: time.Now(),
		Entries:   r.gallery,
	})
}

// Load reads a gallery written by Save.
func (r *DlibRecognizer) Load(path string) error {
	gallery, err := r.store.LoadGallery(path)
	if err != nil {
		if errors.Is(err, storage.ErrGalleryNotFound) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return err
	}
	if gallery.Engine != "" && gallery.Engine != config.EngineDlib {
		return fmt.Errorf("model %s was trained with the %s engine", path, gallery.Engine)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.gallery = gallery.Entries
	return nil
}

// FindBestMatch finds the gallery entry nearest to probe.
// Returns the index of the best match, the distance, and whether it's within tolerance.
func FindBestMatch(probe Descriptor, gallery []storage.Entry, tolerance float64) (int, float64, bool) {
	if len(gallery) == 0 {
		return -1, math.MaxFloat64, false
	}

	bestIdx := 0
	bestDist := math.MaxFloat64
	for i, e := range gallery {
		dist := EuclideanDistance(probe, e.Vector)
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}

	return bestIdx, bestDist, bestDist < tolerance
}

// EuclideanDistance calculates the Euclidean distance between two descriptors.
func EuclideanDistance(d1, d2 Descriptor) float64 {
	var sum float64
	for i := range d1 {
		diff := float64(d1[i] - d2[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
