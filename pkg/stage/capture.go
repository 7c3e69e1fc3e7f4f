package stage

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/MrCodeEU/faceattend/pkg/dataset"
	"github.com/MrCodeEU/faceattend/pkg/detection"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/preview"
	"gocv.io/x/gocv"
)

// CaptureOptions configures a capture session.
type CaptureOptions struct {
	Open     OpenFunc
	Detector detection.Detector
	Display  preview.Display

	Dir     string
	Name    string
	ID      int
	Samples int

	// Auto saves whenever a face is in view, at most once per Interval.
	// It replaces the SPACE key when no window is shown.
	Auto     bool
	Interval time.Duration
}

// CaptureResult lists the files written.
type CaptureResult struct {
	Saved []string
}

// Capture shows the camera feed and saves grayscale face crops for one
// person. SPACE saves the first detected face, ESC ends the session.
func Capture(ctx context.Context, opts CaptureOptions) (CaptureResult, error) {
	var result CaptureResult

	if err := dataset.ValidateName(opts.Name); err != nil {
		return result, err
	}
	if opts.ID < 0 {
		return result, fmt.Errorf("%w: %d", dataset.ErrInvalidID, opts.ID)
	}
	if opts.Samples <= 0 {
		opts.Samples = 1
	}
	if err := os.MkdirAll(opts.Dir, 0700); err != nil {
		return result, fmt.Errorf("failed to create dataset directory: %w", err)
	}
	index, err := dataset.NextIndex(opts.Dir, opts.Name, opts.ID)
	if err != nil {
		return result, err
	}

	cam, err := opts.Open()
	if err != nil {
		return result, err
	}
	defer func() { _ = cam.Close() }()

	log := logging.WithFields(logging.Fields{"stage": NameCapture, "name": opts.Name, "id": opts.ID})
	if opts.Auto {
		log.Infof("Capturing %d sample(s) automatically", opts.Samples)
	} else {
		log.Info("Press SPACE to capture your face, ESC to exit")
	}

	frame := gocv.NewMat()
	defer frame.Close()

	var last time.Time
	for len(result.Saved) < opts.Samples {
		if done(ctx) {
			return result, ctx.Err()
		}
		if err := cam.Read(&frame); err != nil {
			return result, endOfStream(log, err)
		}

		gray := detection.Grayscale(frame)
		faces := opts.Detector.Detect(gray)
		for _, f := range faces {
			detection.Outline(&frame, f)
		}
		opts.Display.Show(frame)
		key := opts.Display.WaitKey(1)

		if key == preview.KeyEscape {
			gray.Close()
			log.Info("Exiting capture")
			return result, nil
		}

		trigger := key == preview.KeySpace
		if opts.Auto && len(faces) > 0 && time.Since(last) >= opts.Interval {
			trigger = true
		}
		if !trigger {
			gray.Close()
			continue
		}

		if len(faces) == 0 {
			log.Warn("No face detected. Try again.")
			gray.Close()
			continue
		}

		path := filepath.Join(opts.Dir, dataset.FormatFilename(opts.Name, opts.ID, index))
		err := saveCrop(gray, faces[0], path)
		gray.Close()
		if err != nil {
			return result, err
		}
		log.WithField("file", path).Info("Face saved")
		result.Saved = append(result.Saved, path)
		index++
		last = time.Now()
	}

	return result, nil
}

func saveCrop(gray gocv.Mat, rect image.Rectangle, path string) error {
	crop, err := detection.Crop(gray, rect)
	defer crop.Close()
	if err != nil {
		return err
	}
	if !gocv.IMWrite(path, crop) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
