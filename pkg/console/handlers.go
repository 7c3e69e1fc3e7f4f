package console

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrCodeEU/faceattend/pkg/attendance"
	"github.com/MrCodeEU/faceattend/pkg/dataset"
	"github.com/MrCodeEU/faceattend/pkg/stage"
)

const errInvalidRequestBody = "invalid request body"

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "page missing")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleStageStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Status()
	if st == nil {
		respondJSON(w, http.StatusOK, map[string]bool{"running": false})
		return
	}
	respondJSON(w, http.StatusOK, st)
}

type captureRequest struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (s *Server) handleStartStage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "stage")
	if !stage.Valid(name) {
		respondError(w, http.StatusNotFound, "unknown stage: "+name)
		return
	}

	var args []string
	if name == stage.NameCapture {
		var req captureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		if err := dataset.ValidateName(req.Name); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, err := dataset.ParseID(req.ID)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		args = []string{strings.TrimSpace(req.Name), strconv.Itoa(id)}
	}

	st, err := s.startStage(name, args...)
	if errors.Is(err, ErrStageRunning) {
		respondJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "status": st})
		return
	}
	respondJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleStopStage(w http.ResponseWriter, r *http.Request) {
	if !s.stopStage() {
		respondError(w, http.StatusNotFound, "no stage is running")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]bool{"stopping": true})
}

type markRequest struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" && strings.TrimSpace(req.ID) != "" {
		id, err := dataset.ParseID(req.ID)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		labels, err := s.labels()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read dataset")
			return
		}
		known, ok := labels[id]
		if !ok {
			respondError(w, http.StatusNotFound, "no person with ID "+strconv.Itoa(id))
			return
		}
		name = known
	}

	rec, err := s.ledger.Mark(name, attendance.SourceManual)
	switch {
	case err == nil:
		respondJSON(w, http.StatusCreated, rec)
	case errors.Is(err, attendance.ErrEmptyName):
		respondError(w, http.StatusBadRequest, "please enter a name or ID")
	case errors.Is(err, attendance.ErrAlreadyLogged):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, attendance.ErrOutsideWindow):
		respondError(w, http.StatusForbidden, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	day := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.ParseInLocation(attendance.DateLayout, v, time.Local)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	records, err := s.ledger.Records(day)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":    day.Format(attendance.DateLayout),
		"records": records,
	})
}
