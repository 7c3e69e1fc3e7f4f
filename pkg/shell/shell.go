// Package shell is the interactive terminal menu front end.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
	"github.com/MrCodeEU/faceattend/pkg/dataset"
	"github.com/MrCodeEU/faceattend/pkg/stage"
)

// Runner starts a stage and reports its exit code.
type Runner interface {
	Run(ctx context.Context, stage string, args ...string) (int, error)
}

// Ledger is the attendance book.
type Ledger interface {
	Mark(name string, source attendance.Source) (attendance.Record, error)
	Records(day time.Time) ([]attendance.Record, error)
}

// Menu entries, in display order.
const (
	ItemCapture   = "Capture Face"
	ItemTrain     = "Train Model"
	ItemRecognize = "Recognize & Mark Attendance"
	ItemManual    = "Manual Attendance"
	ItemToday     = "Today's Attendance"
	ItemQuit      = "Quit"
)

var menu = []string{ItemCapture, ItemTrain, ItemRecognize, ItemManual, ItemToday, ItemQuit}

// Shell drives the menu through a Prompter and writes results to out.
type Shell struct {
	runner Runner
	ledger Ledger
	labels func() (map[int]string, error)
	prompt Prompter
	out    io.Writer
}

// New creates a Shell.
func New(prompt Prompter, out io.Writer, runner Runner, ledger Ledger, labels func() (map[int]string, error)) *Shell {
	return &Shell{
		runner: runner,
		ledger: ledger,
		labels: labels,
		prompt: prompt,
		out:    out,
	}
}

// Run shows the menu until the user quits, input ends or ctx is cancelled.
func (s *Shell) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		i, err := s.prompt.Select("Face Recognition Attendance", menu)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch menu[i] {
		case ItemCapture:
			err = s.capture(ctx)
		case ItemTrain:
			s.run(ctx, stage.NameTrain)
		case ItemRecognize:
			s.run(ctx, stage.NameRecognize)
		case ItemManual:
			err = s.manual()
		case ItemToday:
			s.today()
		case ItemQuit:
			return nil
		}
		// An abandoned prompt returns to the menu.
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
}

func (s *Shell) run(ctx context.Context, name string, args ...string) {
	code, err := s.runner.Run(ctx, name, args...)
	switch {
	case err != nil:
		fmt.Fprintf(s.out, "Error: %v\n", err)
	case code == 0:
		fmt.Fprintf(s.out, "%s completed successfully\n", name)
	default:
		fmt.Fprintf(s.out, "%s failed with status %d\n", name, code)
	}
}

func (s *Shell) capture(ctx context.Context) error {
	name, err := s.prompt.Prompt("Enter name", dataset.ValidateName)
	if err != nil {
		return err
	}
	raw, err := s.prompt.Prompt("Enter numeric ID", ValidateID)
	if err != nil {
		return err
	}
	id, err := dataset.ParseID(raw)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return nil
	}
	s.run(ctx, stage.NameCapture, name, fmt.Sprint(id))
	return nil
}

func (s *Shell) manual() error {
	entry, err := s.prompt.Prompt("Enter name or ID", nil)
	if err != nil {
		return err
	}
	name := entry
	if id, err := dataset.ParseID(entry); err == nil {
		labels, err := s.labels()
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return nil
		}
		known, ok := labels[id]
		if !ok {
			fmt.Fprintf(s.out, "No person with ID %d\n", id)
			return nil
		}
		name = known
	}

	rec, err := s.ledger.Mark(name, attendance.SourceManual)
	switch {
	case err == nil:
		fmt.Fprintf(s.out, "Attendance marked for %s at %s\n", rec.Name, rec.Time)
	case errors.Is(err, attendance.ErrEmptyName):
		fmt.Fprintln(s.out, "Please enter a name or ID")
	case errors.Is(err, attendance.ErrAlreadyLogged):
		fmt.Fprintf(s.out, "%s is already marked today\n", name)
	case errors.Is(err, attendance.ErrOutsideWindow):
		fmt.Fprintln(s.out, "Attendance can only be marked during the allowed time")
	default:
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return nil
}

func (s *Shell) today() {
	records, err := s.ledger.Records(time.Now())
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(s.out, "No attendance logged today")
		return
	}
	for _, r := range records {
		fmt.Fprintf(s.out, "  %-20s %s %s\n", r.Name, r.Date, r.Time)
	}
}
