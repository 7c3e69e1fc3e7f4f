package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
	"github.com/MrCodeEU/faceattend/pkg/config"
	"github.com/MrCodeEU/faceattend/pkg/database"
	"github.com/MrCodeEU/faceattend/pkg/dataset"
	"github.com/MrCodeEU/faceattend/pkg/recognition"
)

func setupConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Dataset.Dir = filepath.Join(dir, "dataset")
	cfg.Attendance.Dir = filepath.Join(dir, "attendance")
	cfg.Attendance.WindowStart = ""
	cfg.Attendance.WindowEnd = ""
	cfg.Recognition.ModelFile = filepath.Join(dir, "trainer", "trainer.yml")
	cfg.Logging.File = ""
}

func TestCommandsComplete(t *testing.T) {
	for _, name := range commandOrder {
		cmd, ok := commands[name]
		if !ok {
			t.Errorf("command %q missing", name)
			continue
		}
		if cmd.Run == nil || cmd.Usage == "" {
			t.Errorf("command %q incomplete", name)
		}
	}
	if len(commandOrder) != len(commands) {
		t.Errorf("usage lists %d commands, map has %d", len(commandOrder), len(commands))
	}
}

func TestCmdMark(t *testing.T) {
	setupConfig(t)
	if err := os.MkdirAll(cfg.Dataset.Dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Dataset.Dir, "Alice_7_0.jpg"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := cmdMark(context.Background(), []string{"--id", "7"}); err != nil {
		t.Fatalf("mark --id failed: %v", err)
	}
	err := cmdMark(context.Background(), []string{"Alice"})
	if !errors.Is(err, attendance.ErrAlreadyLogged) {
		t.Errorf("expected ErrAlreadyLogged, got %v", err)
	}
	if err := cmdMark(context.Background(), []string{"--id", "8"}); err == nil {
		t.Error("expected error for unknown ID")
	}
	if err := cmdMark(context.Background(), nil); err == nil {
		t.Error("expected usage error")
	}
	if err := cmdReport(context.Background(), nil); err != nil {
		t.Errorf("report failed: %v", err)
	}
	if err := cmdReport(context.Background(), []string{"01/03/2024"}); err == nil {
		t.Error("expected error for bad date")
	}
}

func TestOpenBook_Mirror(t *testing.T) {
	setupConfig(t)
	cfg.Attendance.Database = filepath.Join(t.TempDir(), "attendance.db")

	book, closeBook, err := openBook(attendance.WithSession("s1"))
	if err != nil {
		t.Fatalf("openBook failed: %v", err)
	}
	rec, err := book.Mark("Bob", attendance.SourceManual)
	closeBook()
	if err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	db, err := database.Open(cfg.Attendance.Database)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	logs, err := db.Records(rec.Date)
	if err != nil || len(logs) != 1 || logs[0].SessionID != "s1" {
		t.Errorf("mirror rows = %+v, %v", logs, err)
	}
}

func TestCmdRecognize_MissingModel(t *testing.T) {
	setupConfig(t)
	err := cmdRecognize(context.Background(), nil)
	if !errors.Is(err, recognition.ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

func TestCmdReport_Date(t *testing.T) {
	setupConfig(t)
	now := time.Now()
	book, closeBook, err := openBook(attendance.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	defer closeBook()
	if _, err := book.Mark("Carol", attendance.SourceManual); err != nil {
		t.Fatal(err)
	}
	if err := cmdReport(context.Background(), []string{now.Format(attendance.DateLayout)}); err != nil {
		t.Errorf("report failed: %v", err)
	}
}

func TestPromptAbandoned(t *testing.T) {
	if err := promptAbandoned(io.EOF); !errors.Is(err, context.Canceled) {
		t.Errorf("interrupted prompt = %v, want context.Canceled", err)
	}
	other := errors.New("terminal gone")
	if err := promptAbandoned(other); !errors.Is(err, other) {
		t.Errorf("promptAbandoned(other) = %v", err)
	}
}

func TestCmdCapture_InvalidArgs(t *testing.T) {
	setupConfig(t)
	if err := cmdCapture(context.Background(), []string{"A.B", "7"}); !errors.Is(err, dataset.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
	if err := cmdCapture(context.Background(), []string{"Bob", "seven"}); !errors.Is(err, dataset.ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}
