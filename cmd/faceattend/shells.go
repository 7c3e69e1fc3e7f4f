package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/MrCodeEU/faceattend/pkg/console"
	"github.com/MrCodeEU/faceattend/pkg/launcher"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/shell"
)

func newLauncher() (*launcher.Launcher, error) {
	l, err := launcher.New(configFile)
	if err != nil {
		return nil, err
	}
	l.Debug = debug
	l.Headless = headless
	return l, nil
}

func cmdGUI(ctx context.Context, args []string) error {
	l, err := newLauncher()
	if err != nil {
		return err
	}
	book, closeBook, err := openBook()
	if err != nil {
		return err
	}
	defer closeBook()

	srv := console.NewServer(cfg.Addr(), l, book, loadLabels)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logging.Info("Web console stopped")
	return nil
}

func cmdMenu(ctx context.Context, args []string) error {
	l, err := newLauncher()
	if err != nil {
		return err
	}
	book, closeBook, err := openBook()
	if err != nil {
		return err
	}
	defer closeBook()

	prompter := shell.TerminalPrompter{Stdin: os.Stdin, Stdout: os.Stdout}
	return shell.New(prompter, os.Stdout, l, book, loadLabels).Run(ctx)
}
