package launcher

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"reflect"
	"strings"
	"testing"
	"time"
)

func fakeExecCommand(ctx context.Context, command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	// os.Args: [test_binary, -test.run=TestHelperProcess, --, command, args...]
	args := os.Args[4:]
	fmt.Println(strings.Join(args, " "))

	if args[len(args)-1] == "--wait" {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		fmt.Println("ready")
		<-sig
		fmt.Println("released camera")
		os.Exit(0)
	}

	for _, arg := range args {
		switch arg {
		case "capture":
			os.Exit(0)
		case "train":
			fmt.Fprintln(os.Stderr, "no face samples to train on")
			os.Exit(1)
		case "recognize":
			os.Exit(3)
		}
	}
	os.Exit(2)
}

func newTestLauncher(stdout *bytes.Buffer) *Launcher {
	return &Launcher{
		Executable: "faceattend",
		ConfigPath: "/etc/faceattend/faceattend.yaml",
		Stdout:     stdout,
		Stderr:     &bytes.Buffer{},
	}
}

func TestArgs(t *testing.T) {
	l := &Launcher{ConfigPath: "/tmp/c.yaml", Debug: true, Headless: true}
	got := l.Args("capture", "Alice", "7")
	want := []string{"-config", "/tmp/c.yaml", "-debug", "-headless", "capture", "Alice", "7"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %v, want %v", got, want)
	}

	l = &Launcher{}
	if got := l.Args("train"); !reflect.DeepEqual(got, []string{"train"}) {
		t.Errorf("Args = %v", got)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	execCommand = fakeExecCommand
	defer func() { execCommand = exec.CommandContext }()

	tests := []struct {
		stage string
		code  int
	}{
		{"capture", 0},
		{"train", 1},
		{"recognize", 3},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			var out bytes.Buffer
			code, err := newTestLauncher(&out).Run(context.Background(), tt.stage)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if code != tt.code {
				t.Errorf("exit code %d, want %d", code, tt.code)
			}
		})
	}
}

func TestRun_ForwardsConfig(t *testing.T) {
	execCommand = fakeExecCommand
	defer func() { execCommand = exec.CommandContext }()

	var out bytes.Buffer
	if _, err := newTestLauncher(&out).Run(context.Background(), "capture", "Alice", "7"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := "-config /etc/faceattend/faceattend.yaml capture Alice 7"
	if got := strings.TrimSpace(out.String()); got != want {
		t.Errorf("child saw %q, want %q", got, want)
	}
}

func TestRun_UnknownStage(t *testing.T) {
	_, err := newTestLauncher(&bytes.Buffer{}).Run(context.Background(), "enroll")
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", err)
	}
}

func TestRun_MissingExecutable(t *testing.T) {
	l := newTestLauncher(&bytes.Buffer{})
	l.Executable = "/nonexistent/faceattend"
	code, err := l.Run(context.Background(), "train")
	if err == nil || code != -1 {
		t.Errorf("expected start failure, got code %d err %v", code, err)
	}
}

func TestRun_CancelInterruptsStage(t *testing.T) {
	execCommand = fakeExecCommand
	defer func() { execCommand = exec.CommandContext }()

	pr, pw := io.Pipe()
	defer pr.Close()
	l := &Launcher{Executable: "faceattend", Stdout: pw, Stderr: &bytes.Buffer{}, StopTimeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := l.Run(ctx, "recognize", "--wait")
		pw.Close()
		done <- result{code, err}
	}()

	var lines []string
	scanner := bufio.NewScanner(pr)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if scanner.Text() == "ready" {
			cancel()
		}
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Run returned error: %v", res.err)
		}
		if res.code != 0 {
			t.Errorf("exit code = %d, want 0", res.code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if lines[len(lines)-1] != "released camera" {
		t.Errorf("stage output = %v, want clean shutdown", lines)
	}
}
