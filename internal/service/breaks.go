package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"worktime-bot/internal/model"
	"worktime-bot/internal/rules"
	"worktime-bot/internal/store"
	"worktime-bot/internal/timeutil"
)

// ErrBreakTypeNotInSchedule is returned when the employee's assigned
// schedule has no limit row for the requested break type.
var ErrBreakTypeNotInSchedule = errors.New("break type not in schedule")

// ErrNoOpenBreak mirrors the ledger sentinel at the service boundary.
var ErrNoOpenBreak = store.ErrNoOpenBreak

// ScheduleSource resolves an employee's assigned schedule. nil with no
// error means unassigned; callers fall back to model.DefaultSchedule.
type ScheduleSource interface {
	GetAssignment(ctx context.Context, employeeID string) (*model.Schedule, error)
}

// Ledger is the break event store the rules run against. Both the MongoDB
// ledger and the in-memory test fake satisfy it, which keeps the engine
// agnostic of which backend holds the records.
type Ledger interface {
	CountToday(ctx context.Context, employeeID, breakType string) (int, error)
	FindOpenToday(ctx context.Context, employeeID, breakType string) (*model.BreakRecord, error)
	RecordStart(ctx context.Context, employeeID, breakType string, startTime time.Time, limitMinutes int) (*model.BreakRecord, error)
	RecordEnd(ctx context.Context, employeeID, breakType string, endTime time.Time) (durationMinutes, limitMinutes int, err error)
	ListOpenToday(ctx context.Context) ([]*model.BreakRecord, error)
	LogViolation(ctx context.Context, v *model.Violation) error
}

// Alerts is the notification policy surface. Every call is fire-and-forget
// from the caller's point of view.
type Alerts interface {
	OvertimeExceeded(employeeID, breakType string, durationMin, limitMin, overtimeMin int)
	QuotaExceeded(employeeID, breakType string, usedCount, quota int)
	OutOfWindow(employeeID, breakType string, startedAt timeutil.MinuteOfDay)
	ResetPersonal(employeeID, breakType string)
	PruneExpired(now time.Time)
}

// BreakService orchestrates break start/end against the policy rules.
// Violation logging and notification failures never fail the tracking
// operation; the ledger write is the one thing that must succeed.
type BreakService struct {
	schedules ScheduleSource
	ledger    Ledger
	alerts    Alerts
	clock     *timeutil.Clock
}

func NewBreakService(schedules ScheduleSource, ledger Ledger, alerts Alerts, clock *timeutil.Clock) *BreakService {
	return &BreakService{schedules: schedules, ledger: ledger, alerts: alerts, clock: clock}
}

// effectiveSchedule resolves the employee's schedule, falling back to the
// default on absence. A lookup failure also degrades to the default so a
// flaky schedule backend cannot block break tracking.
func (s *BreakService) effectiveSchedule(ctx context.Context, employeeID string) *model.Schedule {
	schedule, err := s.schedules.GetAssignment(ctx, employeeID)
	if err != nil {
		log.Printf("Schedule lookup failed for %s, using default: %v", employeeID, err)
		return model.DefaultSchedule()
	}
	if schedule == nil {
		return model.DefaultSchedule()
	}
	return schedule
}

// StartBreak records a break start. Quota and window breaches are detected
// and notified but never block: policy is detect-and-notify, not enforce.
func (s *BreakService) StartBreak(ctx context.Context, employeeID, breakType string) (*model.BreakRecord, error) {
	now := s.clock.Now()
	schedule := s.effectiveSchedule(ctx, employeeID)

	limit := schedule.LimitFor(breakType)
	if limit == nil {
		return nil, fmt.Errorf("%w: %s has no %q limit", ErrBreakTypeNotInSchedule, schedule.ID, breakType)
	}

	count, err := s.ledger.CountToday(ctx, employeeID, breakType)
	if err != nil {
		log.Printf("Count today failed for %s, assuming 0: %v", employeeID, err)
		count = 0
	}

	if rules.QuotaExceeded(count, *limit) {
		s.logViolation(ctx, employeeID, model.ViolationQuotaExceeded,
			fmt.Sprintf("daily quota exceeded for %s: %d/%d", breakType, count+1, limit.DailyCount))
		s.alerts.QuotaExceeded(employeeID, breakType, count+1, limit.DailyCount)
	}

	at := s.clock.TimeOfDay(now)
	inWindow := rules.InWindow(breakType, at, schedule.Windows)

	record, err := s.ledger.RecordStart(ctx, employeeID, breakType, now, limit.TimeMinutes)
	if err != nil {
		return nil, fmt.Errorf("record break start: %w", err)
	}

	if !inWindow {
		s.logViolation(ctx, employeeID, model.ViolationOutOfWindow,
			fmt.Sprintf("%s started outside window at %s", breakType, at))
		s.alerts.OutOfWindow(employeeID, breakType, at)
	}

	log.Printf("Break started: %s %s in_window=%v", employeeID, breakType, inWindow)
	return record, nil
}

// EndBreak completes the open break and runs the overtime check. Returns
// ErrNoOpenBreak when the employee has no active break of the type today.
func (s *BreakService) EndBreak(ctx context.Context, employeeID, breakType string) (durationMinutes, limitMinutes int, err error) {
	now := s.clock.Now()

	duration, limit, err := s.ledger.RecordEnd(ctx, employeeID, breakType, now)
	if err != nil {
		if errors.Is(err, store.ErrNoOpenBreak) {
			return 0, 0, ErrNoOpenBreak
		}
		return 0, 0, fmt.Errorf("record break end: %w", err)
	}

	overtime := rules.Overtime(duration, limit)
	if rules.IsOvertimeViolation(overtime) {
		s.logViolation(ctx, employeeID, model.ViolationOverLimit,
			fmt.Sprintf("%s limit exceeded by %d min (%d/%d)", breakType, overtime, duration, limit))
		s.alerts.OvertimeExceeded(employeeID, breakType, duration, limit, overtime)
	}

	log.Printf("Break ended: %s %s duration=%d", employeeID, breakType, duration)
	return duration, limit, nil
}

// MarkReturned resets personal notification suppression for the employee.
// Called when their external status changes back to productive work or
// their session ends. Empty breakType resets all types.
func (s *BreakService) MarkReturned(ctx context.Context, employeeID, breakType string) {
	s.alerts.ResetPersonal(employeeID, breakType)
}

// logViolation appends a violation row with the fixed severity for its
// kind. Failures are logged and swallowed: violation completeness never
// outranks ledger availability.
func (s *BreakService) logViolation(ctx context.Context, employeeID string, kind model.ViolationKind, details string) {
	v := &model.Violation{
		Timestamp:  s.clock.Now(),
		EmployeeID: employeeID,
		Kind:       kind,
		Severity:   rules.SeverityFor(kind),
		Details:    details,
		Status:     model.ViolationPending,
	}
	if err := s.ledger.LogViolation(ctx, v); err != nil {
		log.Printf("Log violation failed (%s, %s): %v", employeeID, kind, err)
		return
	}
	log.Printf("Violation logged: %s %s %s", employeeID, kind, v.Severity)
}

// TypeStatus is one break type's allowance and usage for today.
type TypeStatus struct {
	Quota        int `json:"quota"`
	LimitMinutes int `json:"limit_minutes"`
	UsedToday    int `json:"used_today"`
}

// ActiveBreak describes an in-progress break with its running duration.
type ActiveBreak struct {
	BreakType       string `json:"break_type"`
	StartedAt       string `json:"started_at"` // HH:MM org-local
	DurationMinutes int    `json:"duration_minutes"`
	LimitMinutes    int    `json:"limit_minutes"`
	OverLimit       bool   `json:"over_limit"`
}

// StatusReport is the employee's current break standing.
type StatusReport struct {
	ScheduleID   string                `json:"schedule_id"`
	ScheduleName string                `json:"schedule_name"`
	Types        map[string]TypeStatus `json:"types"`
	Active       *ActiveBreak          `json:"active,omitempty"`
}

// BreakStatus reports the employee's limits, today's usage, and any break
// currently running.
func (s *BreakService) BreakStatus(ctx context.Context, employeeID string) (*StatusReport, error) {
	schedule := s.effectiveSchedule(ctx, employeeID)
	now := s.clock.Now()

	report := &StatusReport{
		ScheduleID:   schedule.ID,
		ScheduleName: schedule.Name,
		Types:        make(map[string]TypeStatus),
	}

	for _, limit := range schedule.Limits {
		used, err := s.ledger.CountToday(ctx, employeeID, limit.BreakType)
		if err != nil {
			return nil, fmt.Errorf("count today: %w", err)
		}
		report.Types[limit.BreakType] = TypeStatus{
			Quota:        limit.DailyCount,
			LimitMinutes: limit.TimeMinutes,
			UsedToday:    used,
		}

		if report.Active != nil {
			continue
		}
		open, err := s.ledger.FindOpenToday(ctx, employeeID, limit.BreakType)
		if err != nil {
			return nil, fmt.Errorf("find open break: %w", err)
		}
		if open != nil {
			elapsed := int(now.Sub(open.StartTime).Minutes())
			report.Active = &ActiveBreak{
				BreakType:       open.BreakType,
				StartedAt:       s.clock.TimeOfDay(open.StartTime).String(),
				DurationMinutes: elapsed,
				LimitMinutes:    open.LimitMinutes,
				OverLimit:       rules.IsOvertimeViolation(rules.Overtime(elapsed, open.LimitMinutes)),
			}
		}
	}

	return report, nil
}

// ActiveBreakRow is one employee's in-progress break, for the dashboard.
type ActiveBreakRow struct {
	EmployeeID      string `json:"employee_id"`
	BreakType       string `json:"break_type"`
	StartedAt       string `json:"started_at"`
	DurationMinutes int    `json:"duration_minutes"`
	LimitMinutes    int    `json:"limit_minutes"`
	OverLimit       bool   `json:"over_limit"`
}

// ActiveBreaks lists every break currently open today with its running
// duration. A per-record limit resolution failure degrades to the record's
// stored limit rather than dropping the row.
func (s *BreakService) ActiveBreaks(ctx context.Context) ([]ActiveBreakRow, error) {
	open, err := s.ledger.ListOpenToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open breaks: %w", err)
	}

	now := s.clock.Now()
	rows := make([]ActiveBreakRow, 0, len(open))
	for _, r := range open {
		elapsed := int(now.Sub(r.StartTime).Minutes())
		rows = append(rows, ActiveBreakRow{
			EmployeeID:      r.EmployeeID,
			BreakType:       r.BreakType,
			StartedAt:       s.clock.TimeOfDay(r.StartTime).String(),
			DurationMinutes: elapsed,
			LimitMinutes:    r.LimitMinutes,
			OverLimit:       rules.IsOvertimeViolation(rules.Overtime(elapsed, r.LimitMinutes)),
		})
	}
	return rows, nil
}
