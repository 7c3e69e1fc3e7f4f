// Package stage implements the capture, train and recognize frame loops.
//
// Each stage is written against small interfaces so that the same code runs
// behind the preview window, headless under the web console, and in tests.
package stage

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
	"github.com/MrCodeEU/faceattend/pkg/camera"
)

// Stage names as used on the command line and by the launcher.
const (
	NameCapture   = "capture"
	NameTrain     = "train"
	NameRecognize = "recognize"
)

// Names lists the stages in pipeline order.
var Names = []string{NameCapture, NameTrain, NameRecognize}

// Valid reports whether name is a known stage.
func Valid(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// UnknownName labels faces that were not recognized.
const UnknownName = "Unknown"

// OpenFunc opens the camera for a stage. The stage closes it.
type OpenFunc func() (camera.Camera, error)

// Marker records attendance.
type Marker interface {
	Mark(name string, source attendance.Source) (attendance.Record, error)
}

// Cancelled reports whether err only means the stage was stopped through its
// context.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// endOfStream ends a frame loop after a failed read. A frame that cannot be
// grabbed closes the session normally; other camera errors are returned.
func endOfStream(log *logrus.Entry, err error) error {
	if errors.Is(err, camera.ErrNoFrame) {
		log.WithError(err).Error("Failed to grab frame")
		return nil
	}
	return err
}

func done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
