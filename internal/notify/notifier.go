// Package notify implements the notification side of the break rules: the
// Telegram channel, the per-employee debounce bookkeeping, and the Notifier
// that applies the suppression policy before dispatching.
package notify

import (
	"context"
	"log"
	"time"

	"worktime-bot/internal/i18n"
	"worktime-bot/internal/timeutil"
)

// Channel is the delivery transport. Errors are logged, never propagated:
// notification failure must not affect break tracking.
type Channel interface {
	SendPersonal(ctx context.Context, employeeID, text string) error
	SendGroup(ctx context.Context, text string) error
}

// Notifier applies the debounce policy and dispatches fire-and-forget.
// Personal alerts go out for overtime only; group alerts for every
// violation kind, once per distinct key.
type Notifier struct {
	channel  Channel
	debounce *Debouncer
	clock    *timeutil.Clock
	timeout  time.Duration
}

func NewNotifier(channel Channel, debounce *Debouncer, clock *timeutil.Clock, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{channel: channel, debounce: debounce, clock: clock, timeout: timeout}
}

// ResetPersonal clears personal suppression for the employee, called when
// their status moves away from the break. Empty breakType clears all types.
func (n *Notifier) ResetPersonal(employeeID, breakType string) {
	n.debounce.ResetOnStatusChange(employeeID, breakType)
}

// PruneExpired drops personal debounce entries whose window has lapsed.
func (n *Notifier) PruneExpired(now time.Time) {
	n.debounce.PruneExpired(now)
}

// OvertimeExceeded notifies about a break running past its limit. Personal
// message at most once per window; group message once per (type, limit).
func (n *Notifier) OvertimeExceeded(employeeID, breakType string, durationMin, limitMin, overtimeMin int) {
	now := n.clock.Now()

	if n.debounce.ShouldSendPersonal(employeeID, breakType, now) {
		text := i18n.T(context.Background(), "overtime.personal", map[string]any{
			"BreakType": typeLabel(breakType),
			"Duration":  durationMin,
			"Limit":     limitMin,
			"Overtime":  overtimeMin,
		})
		n.dispatch(func(ctx context.Context) error {
			return n.channel.SendPersonal(ctx, employeeID, text)
		}, "personal overtime", employeeID)
	}

	if n.debounce.ShouldSendGroup(employeeID, OvertimeKey(breakType, limitMin)) {
		text := i18n.T(context.Background(), "overtime.group", map[string]any{
			"Employee":  employeeID,
			"BreakType": typeLabel(breakType),
			"Duration":  durationMin,
			"Limit":     limitMin,
			"Overtime":  overtimeMin,
			"Time":      now.Format("15:04:05"),
		})
		n.dispatch(func(ctx context.Context) error {
			return n.channel.SendGroup(ctx, text)
		}, "group overtime", employeeID)
	}
}

// QuotaExceeded notifies the group that an employee went over the daily
// count. Group only, once per (type, quota).
func (n *Notifier) QuotaExceeded(employeeID, breakType string, usedCount, quota int) {
	if !n.debounce.ShouldSendGroup(employeeID, QuotaKey(breakType, quota)) {
		return
	}
	text := i18n.T(context.Background(), "quota.group", map[string]any{
		"Employee":  employeeID,
		"BreakType": typeLabel(breakType),
		"Used":      usedCount,
		"Quota":     quota,
		"Time":      n.clock.Now().Format("15:04:05"),
	})
	n.dispatch(func(ctx context.Context) error {
		return n.channel.SendGroup(ctx, text)
	}, "group quota", employeeID)
}

// OutOfWindow notifies the group that a break started outside every
// configured window. Group only, once per (type, start minute).
func (n *Notifier) OutOfWindow(employeeID, breakType string, startedAt timeutil.MinuteOfDay) {
	if !n.debounce.ShouldSendGroup(employeeID, OutOfWindowKey(breakType, startedAt)) {
		return
	}
	text := i18n.T(context.Background(), "out_of_window.group", map[string]any{
		"Employee":  employeeID,
		"BreakType": typeLabel(breakType),
		"StartedAt": startedAt.String(),
		"Time":      n.clock.Now().Format("15:04:05"),
	})
	n.dispatch(func(ctx context.Context) error {
		return n.channel.SendGroup(ctx, text)
	}, "group out-of-window", employeeID)
}

// dispatch runs a send in its own goroutine with a bounded timeout. The
// caller's break operation has usually returned by the time this finishes;
// the result is only logged.
func (n *Notifier) dispatch(send func(ctx context.Context) error, what, employeeID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := send(ctx); err != nil {
			log.Printf("notify: %s for %s failed: %v", what, employeeID, err)
			return
		}
		log.Printf("notify: sent %s for %s", what, employeeID)
	}()
}

// typeLabel renders a break type for humans; unknown tags pass through.
func typeLabel(breakType string) string {
	id := "break_type." + breakType
	if label := i18n.T(context.Background(), id); label != id {
		return label
	}
	return breakType
}
