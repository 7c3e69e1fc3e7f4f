package stage

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"

	"github.com/MrCodeEU/faceattend/pkg/dataset"
	"github.com/MrCodeEU/faceattend/pkg/detection"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/recognition"
)

// TrainOptions configures a training run.
type TrainOptions struct {
	DatasetDir string
	ModelFile  string
	// Detector re-detects faces inside each stored crop. When nil, or when it
	// finds nothing, the whole image is used.
	Detector   detection.Detector
	Recognizer recognition.Recognizer
	// Progress receives a progress bar. Nil disables it.
	Progress io.Writer
}

// TrainResult summarizes a training run.
type TrainResult struct {
	Images  int
	Skipped int
	Faces   int
	People  int
}

// Train fits the recognizer on every sample in the dataset and saves the model.
func Train(ctx context.Context, opts TrainOptions) (TrainResult, error) {
	var result TrainResult
	log := logging.WithField("stage", NameTrain)

	samples, err := dataset.Scan(opts.DatasetDir)
	if err != nil {
		return result, err
	}
	if len(samples) == 0 {
		return result, fmt.Errorf("%w in %s", recognition.ErrNoSamples, opts.DatasetDir)
	}
	log.Infof("Training faces from %d image(s). Please wait...", len(samples))

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(len(samples),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("Training faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	var faces []gocv.Mat
	var labels []int
	defer func() {
		for _, f := range faces {
			_ = f.Close()
		}
	}()

	people := make(map[int]bool)
	for _, s := range samples {
		if done(ctx) {
			return result, ctx.Err()
		}
		if bar != nil {
			_ = bar.Add(1)
		}

		crops, err := loadFaces(s.Path, opts.Detector)
		if err != nil {
			log.WithField("file", s.Path).Warnf("Skipping image: %v", err)
			result.Skipped++
			continue
		}
		result.Images++
		for _, c := range crops {
			faces = append(faces, c)
			labels = append(labels, s.ID)
		}
		people[s.ID] = true
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if len(faces) == 0 {
		return result, fmt.Errorf("%w: no readable images in %s", recognition.ErrNoSamples, opts.DatasetDir)
	}

	if err := opts.Recognizer.Train(faces, labels); err != nil {
		return result, fmt.Errorf("training failed: %w", err)
	}
	if err := opts.Recognizer.Save(opts.ModelFile); err != nil {
		return result, fmt.Errorf("failed to save model: %w", err)
	}

	result.Faces = len(faces)
	result.People = len(people)
	log.WithField("model", opts.ModelFile).Infof("%d face(s) trained. Model saved.", result.People)
	return result, nil
}

// loadFaces reads path as grayscale and returns the face crops inside it.
func loadFaces(path string, det detection.Detector) ([]gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		_ = img.Close()
		return nil, fmt.Errorf("unreadable image")
	}

	if det == nil {
		return []gocv.Mat{img}, nil
	}

	rects := det.Detect(img)
	if len(rects) == 0 {
		return []gocv.Mat{img}, nil
	}
	defer img.Close()

	var crops []gocv.Mat
	for _, r := range rects {
		crop, err := detection.Crop(img, r)
		if err != nil {
			_ = crop.Close()
			continue
		}
		crops = append(crops, crop)
	}
	if len(crops) == 0 {
		return []gocv.Mat{img.Clone()}, nil
	}
	return crops, nil
}
