package notify

import (
	"fmt"
	"sync"
	"time"

	"worktime-bot/internal/timeutil"
)

// DefaultPersonalWindow is how long personal reminders for the same
// (employee, break type) stay suppressed after a send.
const DefaultPersonalWindow = 5 * time.Minute

// Debouncer decides whether a candidate notification actually goes out.
// Personal alerts repeat at most once per window until the employee's
// status changes; group alerts fire exactly once per distinct violation
// key for the life of the process. Both maps are shared between the
// break start/end path and the monitor loop, so all access goes through
// the mutex.
type Debouncer struct {
	mu       sync.Mutex
	window   time.Duration
	personal map[personalKey]time.Time
	group    map[groupKey]bool
}

type personalKey struct {
	employeeID string
	breakType  string
}

type groupKey struct {
	employeeID   string
	violationKey string
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultPersonalWindow
	}
	return &Debouncer{
		window:   window,
		personal: make(map[personalKey]time.Time),
		group:    make(map[groupKey]bool),
	}
}

// ShouldSendPersonal reports whether a personal alert for this employee and
// break type may go out now. A true result records now as the last send, so
// check and set are one atomic step under concurrent callers.
func (d *Debouncer) ShouldSendPersonal(employeeID, breakType string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := personalKey{employeeID, breakType}
	last, ok := d.personal[k]
	if ok && now.Sub(last) < d.window {
		return false
	}
	d.personal[k] = now
	return true
}

// ResetOnStatusChange clears personal suppression for the employee. Called
// when the employee's status moves away from the break (back to work,
// session end); a later break must start from a clean slate even inside
// the old window. Empty breakType clears every type for the employee.
func (d *Debouncer) ResetOnStatusChange(employeeID, breakType string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if breakType != "" {
		delete(d.personal, personalKey{employeeID, breakType})
		return
	}
	for k := range d.personal {
		if k.employeeID == employeeID {
			delete(d.personal, k)
		}
	}
}

// ShouldSendGroup reports whether the group alert for this exact violation
// key has not fired yet, and marks it fired. One message per distinct
// nature of violation; no TTL, cleared only by process restart.
func (d *Debouncer) ShouldSendGroup(employeeID, violationKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := groupKey{employeeID, violationKey}
	if d.group[k] {
		return false
	}
	d.group[k] = true
	return true
}

// PruneExpired drops personal entries whose suppression window has lapsed.
// An entry older than the window cannot suppress anything, so removing it
// never changes behavior; without this the map grows with every employee
// ever alerted. The monitor calls this once per sweep. Group entries are
// deliberately kept.
func (d *Debouncer) PruneExpired(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, last := range d.personal {
		if now.Sub(last) >= d.window {
			delete(d.personal, k)
		}
	}
}

// Violation keys compose kind, break type and the breached threshold, so a
// re-trigger of the same condition stays silent while a different threshold
// (say a new limit) alerts again.

func OvertimeKey(breakType string, limitMinutes int) string {
	return fmt.Sprintf("overtime:%s:%d", breakType, limitMinutes)
}

func QuotaKey(breakType string, dailyCount int) string {
	return fmt.Sprintf("quota:%s:%d", breakType, dailyCount)
}

func OutOfWindowKey(breakType string, startedAt timeutil.MinuteOfDay) string {
	return fmt.Sprintf("out_of_window:%s:%s", breakType, startedAt)
}
