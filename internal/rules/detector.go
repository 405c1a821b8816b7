// Package rules holds the break-policy checks. Everything here is a pure
// function over a schedule snapshot and a candidate event; storage and
// notification side effects live with the callers.
package rules

import (
	"worktime-bot/internal/model"
	"worktime-bot/internal/timeutil"
)

// OvertimeThreshold is the grace in minutes before an over-limit duration
// counts as a violation: one minute over is already a breach.
const OvertimeThreshold = 1

// InWindow reports whether at falls inside any window of the given type,
// bounds inclusive. A type with no configured windows is always out of
// window: a schedule that forgot its windows must flag every occurrence,
// not silently pass.
func InWindow(breakType string, at timeutil.MinuteOfDay, windows []model.Window) bool {
	for _, w := range windows {
		if w.BreakType == breakType && w.Contains(at) {
			return true
		}
	}
	return false
}

// QuotaExceeded reports whether starting one more break of this type goes
// over the daily count. existingCount is the number already taken today;
// the break being started brings the total to existingCount+1. Exceeding
// the quota never blocks the break — this is detect-and-notify policy.
func QuotaExceeded(existingCount int, limit model.Limit) bool {
	return existingCount+1 > limit.DailyCount
}

// Overtime returns how many minutes duration exceeds the limit. Zero or
// negative means within limit; >= OvertimeThreshold is a violation.
func Overtime(durationMinutes, limitMinutes int) int {
	return durationMinutes - limitMinutes
}

// IsOvertimeViolation applies the grace threshold to an Overtime result.
func IsOvertimeViolation(overtimeMinutes int) bool {
	return overtimeMinutes >= OvertimeThreshold
}

// SeverityFor maps a violation kind to its fixed severity. This mapping is
// policy and is not configurable.
func SeverityFor(kind model.ViolationKind) model.Severity {
	switch kind {
	case model.ViolationOutOfWindow:
		return model.SeverityWarning
	case model.ViolationOverLimit, model.ViolationQuotaExceeded:
		return model.SeverityCritical
	default:
		return model.SeverityInfo
	}
}

// EffectiveLimit resolves the per-occurrence minute limit for a break type:
// the schedule's matching limit row when present, else the canonical
// defaults (15 for short breaks, 60 for lunch).
func EffectiveLimit(schedule *model.Schedule, breakType string) int {
	if schedule != nil {
		if l := schedule.LimitFor(breakType); l != nil {
			return l.TimeMinutes
		}
	}
	if breakType == model.BreakTypeLunch {
		return model.DefaultLunchLimitMinutes
	}
	return model.DefaultShortLimitMinutes
}
