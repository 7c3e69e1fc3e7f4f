// Package launcher runs stages as child processes of the current executable.
// Only the exit status crosses the process boundary.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/stage"
)

var execCommand = exec.CommandContext

// DefaultStopTimeout is how long a cancelled stage may take to exit after
// the interrupt before it is killed.
const DefaultStopTimeout = 10 * time.Second

// ErrUnknownStage is returned for stage names the binary does not know.
var ErrUnknownStage = errors.New("unknown stage")

// Launcher starts stage subprocesses.
type Launcher struct {
	// Executable defaults to the running binary.
	Executable string
	ConfigPath string
	Debug      bool
	Headless   bool
	// StopTimeout defaults to DefaultStopTimeout.
	StopTimeout time.Duration
	Stdout      io.Writer
	Stderr      io.Writer
}

// New returns a Launcher for the running binary.
func New(configPath string) (*Launcher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &Launcher{
		Executable: exe,
		ConfigPath: configPath,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}, nil
}

// Args returns the command line for running name with args.
func (l *Launcher) Args(name string, args ...string) []string {
	var argv []string
	if l.ConfigPath != "" {
		argv = append(argv, "-config", l.ConfigPath)
	}
	if l.Debug {
		argv = append(argv, "-debug")
	}
	if l.Headless {
		argv = append(argv, "-headless")
	}
	argv = append(argv, name)
	return append(argv, args...)
}

// Run executes the stage and returns its exit code. A non-zero exit is not
// an error; err is only set when the process could not be run at all.
// Cancelling ctx interrupts the child and reports the status it exits with.
func (l *Launcher) Run(ctx context.Context, name string, args ...string) (int, error) {
	if !stage.Valid(name) {
		return -1, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}

	cmd := execCommand(ctx, l.Executable, l.Args(name, args...)...)
	cmd.Stdin = nil
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	// Interrupt rather than kill so the child releases the camera and window.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = l.StopTimeout
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultStopTimeout
	}

	log := logging.WithField("stage", name)
	log.Debugf("Launching %s %v", l.Executable, cmd.Args[1:])

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		log.Info("Stage finished")
		return 0, nil
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		log.Warnf("Stage exited with status %d", code)
		return code, nil
	case ctx.Err() != nil && cmd.ProcessState != nil:
		code := cmd.ProcessState.ExitCode()
		log.Infof("Stage stopped with status %d", code)
		return code, nil
	default:
		return -1, fmt.Errorf("failed to run %s: %w", name, err)
	}
}
