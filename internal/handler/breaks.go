package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"worktime-bot/internal/model"
	"worktime-bot/internal/service"
	"worktime-bot/internal/store"
)

type BreakHandler struct {
	svc    *service.BreakService
	ledger *store.BreakLedger
}

func NewBreakHandler(svc *service.BreakService, ledger *store.BreakLedger) *BreakHandler {
	return &BreakHandler{svc: svc, ledger: ledger}
}

// BreakRequest identifies the employee and break type for start/end calls.
type BreakRequest struct {
	EmployeeID string `json:"employee_id"`
	BreakType  string `json:"break_type"`
}

// HandleStart starts a break. Policy breaches are detected and notified
// but the start itself only fails on a ledger error.
func (h *BreakHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req BreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.EmployeeID == "" || req.BreakType == "" {
		http.Error(w, "employee_id and break_type are required", http.StatusBadRequest)
		return
	}

	record, err := h.svc.StartBreak(r.Context(), req.EmployeeID, req.BreakType)
	if err != nil {
		if errors.Is(err, service.ErrBreakTypeNotInSchedule) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		log.Printf("ERROR start break: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, record)
}

// EndResponse reports the completed break's duration against its limit.
type EndResponse struct {
	DurationMinutes int `json:"duration_minutes"`
	LimitMinutes    int `json:"limit_minutes"`
	OvertimeMinutes int `json:"overtime_minutes"`
}

// HandleEnd ends the employee's open break of the given type.
func (h *BreakHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	var req BreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.EmployeeID == "" || req.BreakType == "" {
		http.Error(w, "employee_id and break_type are required", http.StatusBadRequest)
		return
	}

	duration, limit, err := h.svc.EndBreak(r.Context(), req.EmployeeID, req.BreakType)
	if err != nil {
		if errors.Is(err, service.ErrNoOpenBreak) {
			http.Error(w, "no open break", http.StatusConflict)
			return
		}
		log.Printf("ERROR end break: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, EndResponse{
		DurationMinutes: duration,
		LimitMinutes:    limit,
		OvertimeMinutes: duration - limit,
	})
}

// HandleReturned resets notification suppression after a status change.
func (h *BreakHandler) HandleReturned(w http.ResponseWriter, r *http.Request) {
	var req BreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.EmployeeID == "" {
		http.Error(w, "employee_id is required", http.StatusBadRequest)
		return
	}
	h.svc.MarkReturned(r.Context(), req.EmployeeID, req.BreakType)
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus reports the employee's limits, usage, and active break.
func (h *BreakHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		http.Error(w, "employee_id is required", http.StatusBadRequest)
		return
	}
	report, err := h.svc.BreakStatus(r.Context(), employeeID)
	if err != nil {
		log.Printf("ERROR break status: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

// HandleActive lists all breaks currently open, for the dashboard.
func (h *BreakHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ActiveBreaks(r.Context())
	if err != nil {
		log.Printf("ERROR active breaks: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

// HandleStats reports one employee's break usage for a date.
func (h *BreakHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		http.Error(w, "employee_id is required", http.StatusBadRequest)
		return
	}
	stats, err := h.ledger.GetUsageStats(r.Context(), employeeID, r.URL.Query().Get("date"))
	if err != nil {
		log.Printf("ERROR usage stats: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

// HandleViolations lists violations filtered by employee, kind, and time.
func (h *BreakHandler) HandleViolations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ViolationFilter{
		EmployeeID: q.Get("employee_id"),
		Kind:       model.ViolationKind(q.Get("kind")),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		// Inclusive through the whole day.
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	violations, err := h.ledger.ListViolations(r.Context(), filter)
	if err != nil {
		log.Printf("ERROR list violations: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, violations)
}

// RegisterRoutes registers all break routes on the given mux.
func (h *BreakHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/breaks/start", h.HandleStart)
	mux.HandleFunc("POST /api/breaks/end", h.HandleEnd)
	mux.HandleFunc("POST /api/breaks/returned", h.HandleReturned)
	mux.HandleFunc("GET /api/breaks/status", h.HandleStatus)
	mux.HandleFunc("GET /api/breaks/active", h.HandleActive)
	mux.HandleFunc("GET /api/breaks/stats", h.HandleStats)
	mux.HandleFunc("GET /api/violations", h.HandleViolations)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR encoding response: %v", err)
	}
}

// LoggingMiddleware logs every request with its duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
