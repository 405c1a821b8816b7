package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"worktime-bot/internal/model"
	"worktime-bot/internal/store"
	"worktime-bot/internal/timeutil"
)

// ScheduleHandler exposes the administrative schedule and assignment
// operations that feed the rule engine.
type ScheduleHandler struct {
	schedules *store.ScheduleStore
	directory *store.Directory
}

func NewScheduleHandler(schedules *store.ScheduleStore, directory *store.Directory) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, directory: directory}
}

// LimitSpec and WindowSpec are the wire form of schedule rows; times of day
// come in as "HH:MM".
type LimitSpec struct {
	BreakType   string `json:"break_type"`
	DailyCount  int    `json:"daily_count"`
	TimeMinutes int    `json:"time_minutes"`
}

type WindowSpec struct {
	BreakType string `json:"break_type"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Priority  int    `json:"priority"`
}

type ScheduleRequest struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	ShiftStart string       `json:"shift_start"`
	ShiftEnd   string       `json:"shift_end"`
	Limits     []LimitSpec  `json:"limits"`
	Windows    []WindowSpec `json:"windows"`
}

// HandleCreate creates or replaces a schedule template wholesale.
func (h *ScheduleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.ID == "" || len(req.Limits) == 0 {
		http.Error(w, "id and at least one limit are required", http.StatusBadRequest)
		return
	}

	schedule, err := scheduleFromRequest(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.schedules.CreateSchedule(r.Context(), schedule); err != nil {
		log.Printf("ERROR create schedule: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, schedule)
}

// HandleList returns all schedule templates.
func (h *ScheduleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.schedules.ListSchedules(r.Context())
	if err != nil {
		log.Printf("ERROR list schedules: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, schedules)
}

// HandleDelete removes a schedule template.
func (h *ScheduleHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "schedule id is required", http.StatusBadRequest)
		return
	}
	if err := h.schedules.DeleteSchedule(r.Context(), id); err != nil {
		log.Printf("ERROR delete schedule: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignRequest binds an employee to a schedule.
type AssignRequest struct {
	EmployeeID string `json:"employee_id"`
	ScheduleID string `json:"schedule_id"`
	AdminID    string `json:"admin_id"`
}

// HandleAssign creates or replaces the employee's schedule assignment.
func (h *ScheduleHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.EmployeeID == "" || req.ScheduleID == "" {
		http.Error(w, "employee_id and schedule_id are required", http.StatusBadRequest)
		return
	}
	if err := h.schedules.AssignSchedule(r.Context(), req.EmployeeID, req.ScheduleID, req.AdminID); err != nil {
		log.Printf("ERROR assign schedule: %v", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnassign removes the employee's assignment; they fall back to the
// default schedule.
func (h *ScheduleHandler) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.EmployeeID == "" {
		http.Error(w, "employee_id is required", http.StatusBadRequest)
		return
	}
	if err := h.schedules.UnassignSchedule(r.Context(), req.EmployeeID); err != nil {
		log.Printf("ERROR unassign schedule: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpsertEmployee creates or refreshes a directory entry used for
// notification routing.
func (h *ScheduleHandler) HandleUpsertEmployee(w http.ResponseWriter, r *http.Request) {
	var e store.Employee
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if e.EmployeeID == "" {
		http.Error(w, "employee_id is required", http.StatusBadRequest)
		return
	}
	if err := h.directory.Upsert(r.Context(), &e); err != nil {
		log.Printf("ERROR upsert employee: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes registers all schedule admin routes on the given mux.
func (h *ScheduleHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/schedules", h.HandleList)
	mux.HandleFunc("POST /api/schedules", h.HandleCreate)
	mux.HandleFunc("DELETE /api/schedules/{id}", h.HandleDelete)
	mux.HandleFunc("POST /api/schedules/assign", h.HandleAssign)
	mux.HandleFunc("POST /api/schedules/unassign", h.HandleUnassign)
	mux.HandleFunc("POST /api/employees", h.HandleUpsertEmployee)
}

func scheduleFromRequest(req *ScheduleRequest) (*model.Schedule, error) {
	schedule := &model.Schedule{
		ID:   req.ID,
		Name: req.Name,
	}

	var err error
	if req.ShiftStart != "" {
		if schedule.ShiftStart, err = timeutil.ParseClock(req.ShiftStart); err != nil {
			return nil, err
		}
	}
	if req.ShiftEnd != "" {
		if schedule.ShiftEnd, err = timeutil.ParseClock(req.ShiftEnd); err != nil {
			return nil, err
		}
	}

	for _, l := range req.Limits {
		schedule.Limits = append(schedule.Limits, model.Limit{
			BreakType:   l.BreakType,
			DailyCount:  l.DailyCount,
			TimeMinutes: l.TimeMinutes,
		})
	}
	for _, w := range req.Windows {
		start, err := timeutil.ParseClock(w.Start)
		if err != nil {
			return nil, err
		}
		end, err := timeutil.ParseClock(w.End)
		if err != nil {
			return nil, err
		}
		priority := w.Priority
		if priority == 0 {
			priority = 1
		}
		schedule.Windows = append(schedule.Windows, model.Window{
			BreakType: w.BreakType,
			Start:     start,
			End:       end,
			Priority:  priority,
		})
	}
	return schedule, nil
}
