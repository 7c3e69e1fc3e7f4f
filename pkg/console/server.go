// Package console serves the local web front end: buttons for the three
// stages, each run as a subprocess, and a manual attendance form.
package console

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
	"github.com/MrCodeEU/faceattend/pkg/logging"
)

//go:embed static/index.html
var static embed.FS

// Runner starts a stage and reports its exit code.
type Runner interface {
	Run(ctx context.Context, stage string, args ...string) (int, error)
}

// Ledger is the attendance book used for manual entries and reports.
type Ledger interface {
	Mark(name string, source attendance.Source) (attendance.Record, error)
	Records(day time.Time) ([]attendance.Record, error)
}

// LabelFunc returns the current ID to name mapping.
type LabelFunc func() (map[int]string, error)

// StageStatus describes the running or last finished stage.
type StageStatus struct {
	Stage      string    `json:"stage"`
	Running    bool      `json:"running"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// ErrStageRunning is returned when a stage is requested while another runs.
var ErrStageRunning = errors.New("another stage is already running")

// Server is the web console.
type Server struct {
	runner Runner
	ledger Ledger
	labels LabelFunc

	router     *chi.Mux
	httpServer *http.Server

	mu     sync.Mutex
	status *StageStatus
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds the console listening on addr.
func NewServer(addr string, runner Runner, ledger Ledger, labels LabelFunc) *Server {
	r := chi.NewRouter()
	s := &Server{
		runner: runner,
		ledger: ledger,
		labels: labels,
		router: r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", handleHealth)
		r.Get("/stages", s.handleStageStatus)
		r.Post("/stages/{stage}", s.handleStartStage)
		r.Delete("/stages/current", s.handleStopStage)
		r.Get("/attendance", s.handleListAttendance)
		r.Post("/attendance", s.handleMarkAttendance)
	})
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logging.Infof("Web console listening on http://%s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, cancels a running stage and waits for it.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down web console...")

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// startStage launches a stage in the background.
func (s *Server) startStage(name string, args ...string) (StageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != nil && s.status.Running {
		return *s.status, ErrStageRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &StageStatus{Stage: name, Running: true, StartedAt: time.Now()}
	s.status = st
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		code, err := s.runner.Run(ctx, name, args...)

		s.mu.Lock()
		defer s.mu.Unlock()
		st.Running = false
		st.ExitCode = code
		st.FinishedAt = time.Now()
		if err != nil {
			st.Error = err.Error()
			logging.WithError(err).WithField("stage", name).Error("Stage failed to run")
		}
		s.cancel = nil
	}()

	return *st, nil
}

// Status returns the running or last stage, or nil when none has run.
func (s *Server) Status() *StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return nil
	}
	st := *s.status
	return &st
}

// stopStage cancels the running stage. It reports false when none runs.
func (s *Server) stopStage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.WithFields(logging.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": chiMiddleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}
