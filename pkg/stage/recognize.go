package stage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
	"github.com/MrCodeEU/faceattend/pkg/detection"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/preview"
	"github.com/MrCodeEU/faceattend/pkg/recognition"
)

// DefaultCooldown is how long a name refused by the time window waits
// before it is tried again.
const DefaultCooldown = time.Minute

// RecognizeOptions configures a recognition session.
type RecognizeOptions struct {
	Open       OpenFunc
	Detector   detection.Detector
	Display    preview.Display
	Recognizer recognition.Recognizer
	Book       Marker

	ModelFile string
	// Labels maps trained IDs to names.
	Labels  map[int]string
	Session string

	Cooldown time.Duration
	Now      func() time.Time
}

// RecognizeResult lists the attendance rows written during the session.
type RecognizeResult struct {
	Marked []attendance.Record
}

// Recognize loads the model, classifies every face in view and marks each
// recognized person once per session. It runs until ESC, context
// cancellation or a camera failure.
func Recognize(ctx context.Context, opts RecognizeOptions) (RecognizeResult, error) {
	var result RecognizeResult

	if !recognition.ModelExists(opts.ModelFile) {
		return result, fmt.Errorf("%w: %s (run train first)", recognition.ErrModelNotFound, opts.ModelFile)
	}
	if err := opts.Recognizer.Load(opts.ModelFile); err != nil {
		return result, fmt.Errorf("failed to load model: %w", err)
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cam, err := opts.Open()
	if err != nil {
		return result, err
	}
	defer func() { _ = cam.Close() }()

	log := logging.WithFields(logging.Fields{"stage": NameRecognize, "session": opts.Session})
	log.Infof("Recognizing faces for %d known person(s). Press ESC to exit", len(opts.Labels))

	s := &session{
		opts:   opts,
		log:    log,
		logged: make(map[string]bool),
		denied: make(map[string]time.Time),
	}

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if done(ctx) {
			return s.result, ctx.Err()
		}
		if err := cam.Read(&frame); err != nil {
			return s.result, endOfStream(log, err)
		}

		gray := detection.Grayscale(frame)
		for _, rect := range opts.Detector.Detect(gray) {
			name, label, known := s.classify(gray, rect)
			detection.Annotate(&frame, rect, label, known)
			if known {
				s.mark(name)
			}
		}
		gray.Close()

		opts.Display.Show(frame)
		if opts.Display.WaitKey(1) == preview.KeyEscape {
			log.Info("Exiting recognition")
			return s.result, nil
		}
	}
}

type session struct {
	opts   RecognizeOptions
	log    *logrus.Entry
	result RecognizeResult
	logged map[string]bool
	denied map[string]time.Time
}

// classify returns the resolved name, the on-screen label and whether the
// face belongs to a known person.
func (s *session) classify(gray gocv.Mat, rect image.Rectangle) (string, string, bool) {
	crop, err := detection.Crop(gray, rect)
	defer crop.Close()
	if err != nil {
		return UnknownName, UnknownName, false
	}

	p, err := s.opts.Recognizer.Predict(crop)
	if err != nil {
		if !errors.Is(err, recognition.ErrNoFaceDetected) {
			s.log.WithError(err).Debug("Prediction failed")
		}
		return UnknownName, UnknownName, false
	}

	name, ok := s.opts.Labels[p.Label]
	if !p.Accepted || !ok {
		return UnknownName, UnknownName, false
	}
	return name, fmt.Sprintf("%s (%.0f%%)", name, p.Confidence), true
}

func (s *session) mark(name string) {
	if s.logged[name] {
		return
	}
	now := s.opts.Now()
	if at, ok := s.denied[name]; ok && now.Sub(at) < s.opts.Cooldown {
		return
	}

	rec, err := s.opts.Book.Mark(name, attendance.SourceCamera)
	switch {
	case err == nil:
		s.logged[name] = true
		delete(s.denied, name)
		s.result.Marked = append(s.result.Marked, rec)
	case errors.Is(err, attendance.ErrAlreadyLogged):
		s.logged[name] = true
	default:
		if !errors.Is(err, attendance.ErrOutsideWindow) {
			s.log.WithError(err).WithField("name", name).Error("Failed to mark attendance")
		}
		s.denied[name] = now
	}
}
