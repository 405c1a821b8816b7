package service

import (
	"context"
	"log"
	"sync"
	"time"

	"worktime-bot/internal/rules"
	"worktime-bot/internal/timeutil"
)

// Monitor is the periodic sweep over open breaks. It is the only path that
// catches overtime on breaks still in progress; the end-of-break check only
// sees breaks already closed. Both share the detector and the debounce
// keys, so a break ended after the monitor warned does not alert twice.
type Monitor struct {
	schedules ScheduleSource
	ledger    Ledger
	alerts    Alerts
	clock     *timeutil.Clock
	interval  time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// stopPoll is how often the loop checks the stop flag while waiting out the
// sweep interval. Shutdown latency stays sub-second.
const stopPoll = time.Second

// sweepTimeout bounds one full sweep including its storage reads.
const sweepTimeout = 30 * time.Second

func NewMonitor(schedules ScheduleSource, ledger Ledger, alerts Alerts, clock *timeutil.Clock, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Monitor{
		schedules: schedules,
		ledger:    ledger,
		alerts:    alerts,
		clock:     clock,
		interval:  interval,
	}
}

// Start launches the polling loop. Starting a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		log.Println("Break monitor already running")
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.loop(m.stop)
	log.Printf("Break monitor started, interval %s", m.interval)
}

// Stop signals the loop and waits for the current iteration to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()
	log.Println("Break monitor stopped")
}

func (m *Monitor) loop(stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		m.Sweep()

		// Wait out the interval in small steps so Stop is picked up fast.
		deadline := time.Now().Add(m.interval)
		for time.Now().Before(deadline) {
			select {
			case <-stop:
				return
			case <-time.After(stopPoll):
			}
		}
	}
}

// Sweep runs one pass over all open breaks. Every per-record failure is
// logged and skipped; a sweep never dies because one employee's schedule
// would not resolve.
func (m *Monitor) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	open, err := m.ledger.ListOpenToday(ctx)
	if err != nil {
		log.Printf("Monitor: list open breaks failed: %v", err)
		return
	}

	now := m.clock.Now()
	for _, record := range open {
		schedule, err := m.schedules.GetAssignment(ctx, record.EmployeeID)
		if err != nil {
			log.Printf("Monitor: schedule lookup failed for %s: %v", record.EmployeeID, err)
			continue
		}

		limitMin := rules.EffectiveLimit(schedule, record.BreakType)
		elapsed := int(now.Sub(record.StartTime).Minutes())
		overtime := rules.Overtime(elapsed, limitMin)
		if !rules.IsOvertimeViolation(overtime) {
			continue
		}

		m.alerts.OvertimeExceeded(record.EmployeeID, record.BreakType, elapsed, limitMin, overtime)
	}

	// Personal debounce entries whose window lapsed are dead weight.
	m.alerts.PruneExpired(now)
}
