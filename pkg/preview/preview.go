// Package preview shows annotated frames to the operator and reports key
// presses. Stages started from the web console run headless.
package preview

import (
	"time"

	"gocv.io/x/gocv"
)

// Keys the stages react to.
const (
	KeyNone   = -1
	KeyEscape = 27
	KeySpace  = 32
)

// Display shows frames and polls the keyboard.
type Display interface {
	Show(frame gocv.Mat)
	// WaitKey waits up to delay milliseconds and returns the pressed key
	// masked to 8 bits, or KeyNone.
	WaitKey(delay int) int
	Close() error
}

// Window is an OpenCV HighGUI window.
type Window struct {
	w *gocv.Window
}

// NewWindow opens a named window.
func NewWindow(title string) *Window {
	return &Window{w: gocv.NewWindow(title)}
}

// Show displays frame in the window.
func (w *Window) Show(frame gocv.Mat) {
	w.w.IMShow(frame)
}

// WaitKey polls the keyboard for up to delay milliseconds.
func (w *Window) WaitKey(delay int) int {
	key := w.w.WaitKey(delay)
	if key < 0 {
		return KeyNone
	}
	return key & 0xFF
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.w.Close()
}

// Headless discards frames and never reports a key. Stages driven through
// it end on context cancellation or when their work is done.
type Headless struct{}

// Show discards the frame.
func (Headless) Show(gocv.Mat) {}

// WaitKey sleeps for delay milliseconds and returns KeyNone.
func (Headless) WaitKey(delay int) int {
	if delay > 0 {
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}
	return KeyNone
}

// Close is a no-op.
func (Headless) Close() error { return nil }

// New returns a Window when enabled, otherwise Headless.
func New(title string, enabled bool) Display {
	if enabled {
		return NewWindow(title)
	}
	return Headless{}
}
