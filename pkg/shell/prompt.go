package shell

import (
	"errors"
	"io"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/MrCodeEU/faceattend/pkg/dataset"
)

// Prompter asks the user to pick from a list or type a value. Both return
// io.EOF when the user interrupts or input ends.
type Prompter interface {
	Select(label string, items []string) (int, error)
	Prompt(label string, validate func(string) error) (string, error)
}

// TerminalPrompter prompts on an interactive terminal. Nil streams use the
// process stdin and stdout.
type TerminalPrompter struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

// Select shows items as an arrow-key menu and returns the chosen index.
func (p TerminalPrompter) Select(label string, items []string) (int, error) {
	sel := promptui.Select{
		Label:        label,
		Items:        items,
		Size:         len(items),
		HideSelected: true,
		Stdin:        p.Stdin,
		Stdout:       p.Stdout,
	}
	i, _, err := sel.Run()
	return i, promptError(err)
}

// Prompt reads one line, re-asking until validate accepts it.
func (p TerminalPrompter) Prompt(label string, validate func(string) error) (string, error) {
	pr := promptui.Prompt{
		Label:    label,
		Validate: promptui.ValidateFunc(validate),
		Stdin:    p.Stdin,
		Stdout:   p.Stdout,
	}
	value, err := pr.Run()
	return strings.TrimSpace(value), promptError(err)
}

func promptError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF), errors.Is(err, promptui.ErrAbort):
		return io.EOF
	default:
		return err
	}
}

// ValidateID accepts a non-negative integer person ID.
func ValidateID(value string) error {
	_, err := dataset.ParseID(value)
	return err
}
