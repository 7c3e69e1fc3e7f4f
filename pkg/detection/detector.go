// Package detection locates faces in camera frames with an OpenCV Haar
// cascade and provides the crop and annotation helpers shared by the stages.
package detection

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/MrCodeEU/faceattend/pkg/config"
	"gocv.io/x/gocv"
)

// ErrCascadeNotLoaded is returned when the cascade XML cannot be loaded.
var ErrCascadeNotLoaded = errors.New("failed to load face cascade classifier")

var (
	colorKnown   = color.RGBA{G: 255}
	colorUnknown = color.RGBA{R: 255}
)

// Detector finds face bounding boxes in a grayscale image.
type Detector interface {
	Detect(gray gocv.Mat) []image.Rectangle
}

// CascadeDetector is a Haar cascade face detector.
type CascadeDetector struct {
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
}

// NewCascadeDetector loads the cascade file named in cfg.
func NewCascadeDetector(cfg config.DetectionConfig) (*CascadeDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadeFile) {
		_ = classifier.Close()
		return nil, fmt.Errorf("%w: %s", ErrCascadeNotLoaded, cfg.CascadeFile)
	}

	scale := cfg.ScaleFactor
	if scale <= 1 {
		scale = 1.1
	}

	return &CascadeDetector{
		classifier:   classifier,
		scaleFactor:  scale,
		minNeighbors: cfg.MinNeighbors,
		minSize:      image.Pt(cfg.MinFaceSize, cfg.MinFaceSize),
	}, nil
}

// Detect returns the face rectangles found in gray.
func (d *CascadeDetector) Detect(gray gocv.Mat) []image.Rectangle {
	return d.classifier.DetectMultiScaleWithParams(gray, d.scaleFactor, d.minNeighbors, 0, d.minSize, image.Point{})
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}

// Grayscale returns a single-channel copy of frame. The caller owns the result.
func Grayscale(frame gocv.Mat) gocv.Mat {
	if frame.Channels() == 1 {
		return frame.Clone()
	}
	gray := gocv.NewMat()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	return gray
}

// Crop copies the part of img inside rect, clipped to the image bounds.
// The caller owns the result.
func Crop(img gocv.Mat, rect image.Rectangle) (gocv.Mat, error) {
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	r := rect.Intersect(bounds)
	if r.Empty() {
		return gocv.NewMat(), fmt.Errorf("face region %v outside image %v", rect, bounds)
	}
	region := img.Region(r)
	defer region.Close()
	return region.Clone(), nil
}

// Outline draws a detection box.
func Outline(frame *gocv.Mat, rect image.Rectangle) {
	gocv.Rectangle(frame, rect, colorKnown, 2)
}

// Annotate draws the box and label for a classified face, green for a
// known person and red otherwise.
func Annotate(frame *gocv.Mat, rect image.Rectangle, label string, known bool) {
	c := colorUnknown
	if known {
		c = colorKnown
	}
	gocv.Rectangle(frame, rect, c, 2)

	y := rect.Min.Y - 10
	if y < 15 {
		y = rect.Max.Y + 20
	}
	gocv.PutText(frame, label, image.Pt(rect.Min.X, y), gocv.FontHersheySimplex, 0.8, c, 2)
}
