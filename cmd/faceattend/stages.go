package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
	"github.com/MrCodeEU/faceattend/pkg/camera"
	"github.com/MrCodeEU/faceattend/pkg/database"
	"github.com/MrCodeEU/faceattend/pkg/dataset"
	"github.com/MrCodeEU/faceattend/pkg/detection"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/preview"
	"github.com/MrCodeEU/faceattend/pkg/recognition"
	"github.com/MrCodeEU/faceattend/pkg/shell"
	"github.com/MrCodeEU/faceattend/pkg/stage"
	"github.com/MrCodeEU/faceattend/pkg/storage"
)

// autoCaptureInterval spaces automatic saves when no window is shown.
const autoCaptureInterval = 500 * time.Millisecond

func openCamera() (camera.Camera, error) {
	return camera.Open(cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height)
}

func newDisplay(title string) preview.Display {
	return preview.New(title, cfg.Camera.Preview && !headless)
}

func newRecognizer() (recognition.Recognizer, error) {
	store, err := storage.NewFileStorage(cfg.Storage.EncryptionEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return recognition.New(cfg.Recognition, store)
}

// openBook builds the attendance book, mirrored into SQLite when configured.
// The returned func releases the mirror.
func openBook(opts ...attendance.Option) (*attendance.Book, func(), error) {
	window, err := attendance.ParseWindow(cfg.Attendance.WindowStart, cfg.Attendance.WindowEnd)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {}
	if cfg.Attendance.Database != "" {
		db, err := database.Open(cfg.Attendance.Database)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, attendance.WithMirror(db))
		closer = func() { _ = db.Close() }
	}

	return attendance.NewBook(cfg.Attendance.Dir, window, opts...), closer, nil
}

func loadLabels() (map[int]string, error) {
	return dataset.LoadLabels(cfg.Dataset.Dir)
}

// promptAbandoned treats an interrupted prompt like a cancelled stage.
func promptAbandoned(err error) error {
	if errors.Is(err, io.EOF) {
		return context.Canceled
	}
	return err
}

func cmdCapture(ctx context.Context, args []string) error {
	prompter := shell.TerminalPrompter{Stdin: os.Stdin, Stdout: os.Stdout}

	var name, rawID string
	var err error
	if len(args) > 0 {
		name = args[0]
	} else if name, err = prompter.Prompt("Enter your name", dataset.ValidateName); err != nil {
		return promptAbandoned(err)
	}
	if err := dataset.ValidateName(name); err != nil {
		return err
	}
	if len(args) > 1 {
		rawID = args[1]
	} else if rawID, err = prompter.Prompt("Enter your numeric ID", shell.ValidateID); err != nil {
		return promptAbandoned(err)
	}
	id, err := dataset.ParseID(rawID)
	if err != nil {
		return err
	}

	det, err := detection.NewCascadeDetector(cfg.Detection)
	if err != nil {
		return err
	}
	defer func() { _ = det.Close() }()

	display := newDisplay("Face Capture")
	defer func() { _ = display.Close() }()
	_, isHeadless := display.(preview.Headless)

	result, err := stage.Capture(ctx, stage.CaptureOptions{
		Open:     openCamera,
		Detector: det,
		Display:  display,
		Dir:      cfg.Dataset.Dir,
		Name:     strings.TrimSpace(name),
		ID:       id,
		Samples:  cfg.Dataset.Samples,
		Auto:     isHeadless,
		Interval: autoCaptureInterval,
	})
	for _, path := range result.Saved {
		fmt.Printf("Face saved as %s\n", path)
	}
	return err
}

func cmdTrain(ctx context.Context, args []string) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	det, err := detection.NewCascadeDetector(cfg.Detection)
	if err != nil {
		return err
	}
	defer func() { _ = det.Close() }()

	rec, err := newRecognizer()
	if err != nil {
		return err
	}
	defer func() { _ = rec.Close() }()

	fmt.Println("Training faces. Please wait...")
	result, err := stage.Train(ctx, stage.TrainOptions{
		DatasetDir: cfg.Dataset.Dir,
		ModelFile:  cfg.Recognition.ModelFile,
		Detector:   det,
		Recognizer: rec,
		Progress:   os.Stderr,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n%d face(s) trained. Model saved to %s\n", result.People, cfg.Recognition.ModelFile)
	if result.Skipped > 0 {
		fmt.Printf("%d unreadable image(s) skipped\n", result.Skipped)
	}
	return nil
}

func cmdRecognize(ctx context.Context, args []string) error {
	if !recognition.ModelExists(cfg.Recognition.ModelFile) {
		return fmt.Errorf("%w: %s (run 'faceattend train' first)", recognition.ErrModelNotFound, cfg.Recognition.ModelFile)
	}

	labels, err := loadLabels()
	if err != nil {
		return err
	}

	session := uuid.New().String()
	book, closeBook, err := openBook(attendance.WithSession(session))
	if err != nil {
		return err
	}
	defer closeBook()

	det, err := detection.NewCascadeDetector(cfg.Detection)
	if err != nil {
		return err
	}
	defer func() { _ = det.Close() }()

	rec, err := newRecognizer()
	if err != nil {
		return err
	}
	defer func() { _ = rec.Close() }()

	display := newDisplay("Face Recognition Attendance")
	defer func() { _ = display.Close() }()

	logging.WithField("session", session).Infof("Attendance window: %s", book.Window())

	result, err := stage.Recognize(ctx, stage.RecognizeOptions{
		Open:       openCamera,
		Detector:   det,
		Display:    display,
		Recognizer: rec,
		Book:       book,
		ModelFile:  cfg.Recognition.ModelFile,
		Labels:     labels,
		Session:    session,
	})
	for _, r := range result.Marked {
		fmt.Printf("Attendance logged for %s at %s on %s\n", r.Name, r.Time, r.Date)
	}
	return err
}

func cmdMark(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("name or --id required\nUsage: %s", commands["mark"].Usage)
	}

	name := strings.Join(args, " ")
	if args[0] == "--id" || args[0] == "-id" {
		if len(args) < 2 {
			return fmt.Errorf("id required\nUsage: %s", commands["mark"].Usage)
		}
		id, err := dataset.ParseID(args[1])
		if err != nil {
			return err
		}
		labels, err := loadLabels()
		if err != nil {
			return err
		}
		known, ok := labels[id]
		if !ok {
			return fmt.Errorf("no person with ID %d in %s", id, cfg.Dataset.Dir)
		}
		name = known
	}

	book, closeBook, err := openBook()
	if err != nil {
		return err
	}
	defer closeBook()

	rec, err := book.Mark(name, attendance.SourceManual)
	if err != nil {
		return err
	}
	fmt.Printf("Attendance marked for %s at %s\n", rec.Name, rec.Time)
	return nil
}

func cmdReport(ctx context.Context, args []string) error {
	day := time.Now()
	if len(args) > 0 {
		parsed, err := time.ParseInLocation(attendance.DateLayout, args[0], time.Local)
		if err != nil {
			return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", args[0])
		}
		day = parsed
	}

	book, closeBook, err := openBook()
	if err != nil {
		return err
	}
	defer closeBook()

	records, err := book.Records(day)
	if err != nil {
		return err
	}

	fmt.Printf("Attendance for %s (%s):\n", day.Format(attendance.DateLayout), book.Path(day))
	if len(records) == 0 {
		fmt.Println("  No attendance logged.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("  %-20s %s\n", r.Name, r.Time)
	}
	fmt.Printf("\nTotal: %d person(s)\n", len(records))
	return nil
}
