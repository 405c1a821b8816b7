package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"worktime-bot/internal/timeutil"
)

// Break types are extensible string tags; these two are the canonical ones.
const (
	BreakTypeShort = "break"
	BreakTypeLunch = "lunch"
)

// Fallback limits applied when an employee has no assigned schedule, or the
// schedule has no limit row for the type.
const (
	DefaultShortLimitMinutes = 15
	DefaultShortDailyCount   = 3
	DefaultLunchLimitMinutes = 60
	DefaultLunchDailyCount   = 1
)

// Limit caps one break type: how many per day, how long each.
type Limit struct {
	BreakType   string `bson:"break_type" json:"break_type"`
	DailyCount  int    `bson:"daily_count" json:"daily_count"`
	TimeMinutes int    `bson:"time_minutes" json:"time_minutes"`
}

// Window is a recommended time-of-day interval for a break type with both
// bounds inclusive. Windows never block; they only drive violations.
type Window struct {
	BreakType string               `bson:"break_type" json:"break_type"`
	Start     timeutil.MinuteOfDay `bson:"start" json:"start"`
	End       timeutil.MinuteOfDay `bson:"end" json:"end"`
	Priority  int                  `bson:"priority" json:"priority"` // lower is preferred
}

// Contains reports whether t falls inside the window, bounds inclusive.
func (w Window) Contains(t timeutil.MinuteOfDay) bool {
	return w.Start <= t && t <= w.End
}

// Schedule is a break-policy template. Immutable once loaded; edits replace
// it wholesale and evict the cache entry.
type Schedule struct {
	ID         string               `bson:"_id" json:"id"`
	Name       string               `bson:"name" json:"name"`
	ShiftStart timeutil.MinuteOfDay `bson:"shift_start" json:"shift_start"`
	ShiftEnd   timeutil.MinuteOfDay `bson:"shift_end" json:"shift_end"`
	Limits     []Limit              `bson:"limits" json:"limits"`
	Windows    []Window             `bson:"windows" json:"windows"`
	CreatedAt  time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time            `bson:"updated_at" json:"updated_at"`
}

// LimitFor returns the limit row for the type, or nil if none is configured.
func (s *Schedule) LimitFor(breakType string) *Limit {
	for i := range s.Limits {
		if s.Limits[i].BreakType == breakType {
			return &s.Limits[i]
		}
	}
	return nil
}

// WindowsFor returns all windows configured for the type.
func (s *Schedule) WindowsFor(breakType string) []Window {
	var out []Window
	for _, w := range s.Windows {
		if w.BreakType == breakType {
			out = append(out, w)
		}
	}
	return out
}

// DefaultSchedule is the single consolidated fallback applied whenever an
// employee has no assignment: 3 short breaks of 15 minutes and 1 lunch of
// 60 minutes, with no windows configured.
func DefaultSchedule() *Schedule {
	return &Schedule{
		ID:   "default",
		Name: "Default",
		Limits: []Limit{
			{BreakType: BreakTypeShort, DailyCount: DefaultShortDailyCount, TimeMinutes: DefaultShortLimitMinutes},
			{BreakType: BreakTypeLunch, DailyCount: DefaultLunchDailyCount, TimeMinutes: DefaultLunchLimitMinutes},
		},
	}
}

// ScheduleAssignment binds an employee to a schedule. At most one per
// employee; absence is a valid state handled via DefaultSchedule.
type ScheduleAssignment struct {
	ID         bson.ObjectID `bson:"_id,omitempty" json:"id"`
	EmployeeID string        `bson:"employee_id" json:"employee_id"`
	ScheduleID string        `bson:"schedule_id" json:"schedule_id"`
	AssignedBy string        `bson:"assigned_by" json:"assigned_by"`
	AssignedAt time.Time     `bson:"assigned_at" json:"assigned_at"`
}

type BreakStatus string

const (
	BreakStatusActive    BreakStatus = "active"
	BreakStatusCompleted BreakStatus = "completed"
)

// BreakRecord is one break taken by one employee. Created on start, mutated
// once on end, never deleted. Date is the organization-local calendar date
// of the start, computed at write time.
type BreakRecord struct {
	ID              bson.ObjectID `bson:"_id,omitempty" json:"id"`
	EmployeeID      string        `bson:"employee_id" json:"employee_id"`
	BreakType       string        `bson:"break_type" json:"break_type"`
	StartTime       time.Time     `bson:"start_time" json:"start_time"`
	EndTime         *time.Time    `bson:"end_time,omitempty" json:"end_time,omitempty"`
	LimitMinutes    int           `bson:"limit_minutes" json:"limit_minutes"`
	DurationMinutes *int          `bson:"duration_minutes,omitempty" json:"duration_minutes,omitempty"`
	Date            string        `bson:"date" json:"date"` // YYYY-MM-DD, org-local
	Status          BreakStatus   `bson:"status" json:"status"`
	CreatedAt       time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at" json:"updated_at"`
}

type ViolationKind string

const (
	ViolationOutOfWindow   ViolationKind = "out_of_window"
	ViolationOverLimit     ViolationKind = "over_limit"
	ViolationQuotaExceeded ViolationKind = "quota_exceeded"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type ViolationStatus string

const (
	ViolationPending  ViolationStatus = "pending"
	ViolationResolved ViolationStatus = "resolved"
	ViolationNoted    ViolationStatus = "noted"
)

// Violation is an append-only policy breach record. Only Status is ever
// updated, by an external reviewer action.
type Violation struct {
	ID         bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Timestamp  time.Time       `bson:"timestamp" json:"timestamp"`
	EmployeeID string          `bson:"employee_id" json:"employee_id"`
	Kind       ViolationKind   `bson:"kind" json:"kind"`
	Severity   Severity        `bson:"severity" json:"severity"`
	Details    string          `bson:"details" json:"details"`
	Status     ViolationStatus `bson:"status" json:"status"`
}
