package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
)

type MockRunner struct {
	RunFunc func(ctx context.Context, stage string, args ...string) (int, error)

	mu    sync.Mutex
	calls [][]string
}

func (m *MockRunner) Run(ctx context.Context, stage string, args ...string) (int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string{stage}, args...))
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, stage, args...)
	}
	return 0, nil
}

var testNow = time.Date(2024, 3, 1, 9, 45, 0, 0, time.Local)

func newTestServer(t *testing.T, runner Runner, now time.Time) (*Server, *attendance.Book) {
	t.Helper()
	book := attendance.NewBook(t.TempDir(),
		attendance.Window{Start: 9 * time.Hour, End: 11 * time.Hour},
		attendance.WithClock(func() time.Time { return now }))
	labels := func() (map[int]string, error) {
		return map[int]string{7: "Alice"}, nil
	}
	return NewServer("127.0.0.1:0", runner, book, labels), book
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func waitIdle(t *testing.T, s *Server) *StageStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := s.Status(); st != nil && !st.Running {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stage did not finish")
	return nil
}

func TestIndexAndHealth(t *testing.T) {
	s, _ := newTestServer(t, &MockRunner{}, testNow)

	rec := do(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Mark Attendance") {
		t.Errorf("index: %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health: %d", rec.Code)
	}
}

func TestStartStage(t *testing.T) {
	runner := &MockRunner{
		RunFunc: func(ctx context.Context, stage string, args ...string) (int, error) { return 1, nil },
	}
	s, _ := newTestServer(t, runner, testNow)

	rec := do(t, s, http.MethodPost, "/api/stages/train", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	st := waitIdle(t, s)
	if st.Stage != "train" || st.ExitCode != 1 {
		t.Errorf("unexpected status %+v", st)
	}

	rec = do(t, s, http.MethodGet, "/api/stages", "")
	var got StageStatus
	decode(t, rec, &got)
	if got.Running || got.ExitCode != 1 {
		t.Errorf("status endpoint returned %+v", got)
	}
}

func TestStartStage_Capture(t *testing.T) {
	runner := &MockRunner{}
	s, _ := newTestServer(t, runner, testNow)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing body", "", http.StatusBadRequest},
		{"bad name", `{"name":"A_B","id":"1"}`, http.StatusBadRequest},
		{"bad id", `{"name":"Alice","id":"x"}`, http.StatusBadRequest},
		{"ok", `{"name":"Alice","id":"7"}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/stages/capture", tt.body)
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}

	waitIdle(t, s)
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.calls) != 1 || strings.Join(runner.calls[0], " ") != "capture Alice 7" {
		t.Errorf("unexpected runner calls %v", runner.calls)
	}
}

func TestStartStage_ConflictAndStop(t *testing.T) {
	started := make(chan struct{})
	runner := &MockRunner{
		RunFunc: func(ctx context.Context, stage string, args ...string) (int, error) {
			close(started)
			<-ctx.Done()
			return -1, ctx.Err()
		},
	}
	s, _ := newTestServer(t, runner, testNow)

	if rec := do(t, s, http.MethodPost, "/api/stages/recognize", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	<-started

	if rec := do(t, s, http.MethodPost, "/api/stages/train", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while running, got %d", rec.Code)
	}

	if rec := do(t, s, http.MethodDelete, "/api/stages/current", ""); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202 on stop, got %d", rec.Code)
	}
	st := waitIdle(t, s)
	if st.Error == "" {
		t.Error("expected the cancellation to be reported")
	}

	if rec := do(t, s, http.MethodDelete, "/api/stages/current", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 with nothing running, got %d", rec.Code)
	}
}

func TestStartStage_Unknown(t *testing.T) {
	s, _ := newTestServer(t, &MockRunner{}, testNow)
	if rec := do(t, s, http.MethodPost, "/api/stages/enroll", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMarkAttendance(t *testing.T) {
	s, book := newTestServer(t, &MockRunner{}, testNow)

	rec := do(t, s, http.MethodPost, "/api/attendance", `{"name":"Bob"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var r attendance.Record
	decode(t, rec, &r)
	if r.Name != "Bob" || r.Date != "2024-03-01" || r.Time != "09:45:00" {
		t.Errorf("unexpected record %+v", r)
	}

	rec = do(t, s, http.MethodPost, "/api/attendance", `{"id":"7"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for ID lookup, got %d: %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name string
		body string
		code int
	}{
		{"duplicate", `{"name":"Bob"}`, http.StatusConflict},
		{"empty", `{}`, http.StatusBadRequest},
		{"unknown id", `{"id":"99"}`, http.StatusNotFound},
		{"invalid id", `{"id":"abc"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodPost, "/api/attendance", tt.body); rec.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}

	records, err := book.Records(testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Name != "Alice" {
		t.Errorf("unexpected ledger %+v", records)
	}
}

func TestMarkAttendance_OutsideWindow(t *testing.T) {
	s, _ := newTestServer(t, &MockRunner{}, time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local))
	if rec := do(t, s, http.MethodPost, "/api/attendance", `{"name":"Bob"}`); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestListAttendance(t *testing.T) {
	s, book := newTestServer(t, &MockRunner{}, testNow)
	if _, err := book.Mark("Alice", attendance.SourceManual); err != nil {
		t.Fatal(err)
	}

	rec := do(t, s, http.MethodGet, "/api/attendance?date=2024-03-01", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Date    string              `json:"date"`
		Records []attendance.Record `json:"records"`
	}
	decode(t, rec, &body)
	if body.Date != "2024-03-01" || len(body.Records) != 1 {
		t.Errorf("unexpected body %+v", body)
	}

	rec = do(t, s, http.MethodGet, "/api/attendance?date=2024-03-02", "")
	decode(t, rec, &body)
	if len(body.Records) != 0 {
		t.Errorf("expected no records, got %+v", body.Records)
	}

	if rec := do(t, s, http.MethodGet, "/api/attendance?date=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestShutdownCancelsStage(t *testing.T) {
	started := make(chan struct{})
	runner := &MockRunner{
		RunFunc: func(ctx context.Context, stage string, args ...string) (int, error) {
			close(started)
			<-ctx.Done()
			return -1, errors.New("killed")
		},
	}
	s, _ := newTestServer(t, runner, testNow)
	if _, err := s.startStage("recognize"); err != nil {
		t.Fatal(err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if st := s.Status(); st == nil || st.Running {
		t.Errorf("stage still running after shutdown: %+v", st)
	}
}
