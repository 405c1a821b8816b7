package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"worktime-bot/internal/model"
	"worktime-bot/internal/store"
	"worktime-bot/internal/timeutil"
)

// testClock pins the org clock (UTC+3) to a mutable instant.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(utc time.Time) (*testClock, *timeutil.Clock) {
	tc := &testClock{now: utc}
	return tc, timeutil.NewClockAt(3, tc.Now)
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSchedules struct {
	byEmployee map[string]*model.Schedule
	errs       map[string]error
}

func (f *fakeSchedules) GetAssignment(ctx context.Context, employeeID string) (*model.Schedule, error) {
	if err := f.errs[employeeID]; err != nil {
		return nil, err
	}
	return f.byEmployee[employeeID], nil
}

// fakeLedger is an in-memory Ledger. It reuses the org clock for day
// bucketing the same way the MongoDB ledger does.
type fakeLedger struct {
	mu         sync.Mutex
	clock      *timeutil.Clock
	records    []*model.BreakRecord
	violations []*model.Violation

	countErr     error
	startErr     error
	violationErr error
	listErr      error
}

func (f *fakeLedger) CountToday(ctx context.Context, employeeID, breakType string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.EmployeeID == employeeID && r.BreakType == breakType && r.Date == f.clock.Today() {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) FindOpenToday(ctx context.Context, employeeID, breakType string) (*model.BreakRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.records) - 1; i >= 0; i-- {
		r := f.records[i]
		if r.EmployeeID == employeeID && r.BreakType == breakType &&
			r.Status == model.BreakStatusActive && r.Date == f.clock.Today() {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) RecordStart(ctx context.Context, employeeID, breakType string, startTime time.Time, limitMinutes int) (*model.BreakRecord, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &model.BreakRecord{
		EmployeeID:   employeeID,
		BreakType:    breakType,
		StartTime:    startTime,
		LimitMinutes: limitMinutes,
		Date:         f.clock.DateOf(startTime),
		Status:       model.BreakStatusActive,
	}
	f.records = append(f.records, r)
	return r, nil
}

func (f *fakeLedger) RecordEnd(ctx context.Context, employeeID, breakType string, endTime time.Time) (int, int, error) {
	open, err := f.FindOpenToday(ctx, employeeID, breakType)
	if err != nil {
		return 0, 0, err
	}
	if open == nil {
		return 0, 0, store.ErrNoOpenBreak
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	duration := int(endTime.Sub(open.StartTime).Minutes())
	open.EndTime = &endTime
	open.DurationMinutes = &duration
	open.Status = model.BreakStatusCompleted
	return duration, open.LimitMinutes, nil
}

func (f *fakeLedger) ListOpenToday(ctx context.Context) ([]*model.BreakRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.BreakRecord
	for _, r := range f.records {
		if r.Status == model.BreakStatusActive && r.Date == f.clock.Today() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) LogViolation(ctx context.Context, v *model.Violation) error {
	if f.violationErr != nil {
		return f.violationErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, v)
	return nil
}

func (f *fakeLedger) violationKinds() []model.ViolationKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kinds []model.ViolationKind
	for _, v := range f.violations {
		kinds = append(kinds, v.Kind)
	}
	return kinds
}

// fakeAlerts records every policy callback.
type fakeAlerts struct {
	mu          sync.Mutex
	overtime    []string
	quota       []string
	outOfWindow []string
	resets      []string
}

func (f *fakeAlerts) OvertimeExceeded(employeeID, breakType string, durationMin, limitMin, overtimeMin int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overtime = append(f.overtime, fmt.Sprintf("%s/%s/%d/%d/%d", employeeID, breakType, durationMin, limitMin, overtimeMin))
}

func (f *fakeAlerts) QuotaExceeded(employeeID, breakType string, usedCount, quota int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quota = append(f.quota, fmt.Sprintf("%s/%s/%d/%d", employeeID, breakType, usedCount, quota))
}

func (f *fakeAlerts) OutOfWindow(employeeID, breakType string, startedAt timeutil.MinuteOfDay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outOfWindow = append(f.outOfWindow, fmt.Sprintf("%s/%s/%s", employeeID, breakType, startedAt))
}

func (f *fakeAlerts) ResetPersonal(employeeID, breakType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, employeeID+"/"+breakType)
}

func (f *fakeAlerts) PruneExpired(now time.Time) {}

func testSchedule() *model.Schedule {
	return &model.Schedule{
		ID:   "shift8",
		Name: "9 to 18",
		Limits: []model.Limit{
			{BreakType: model.BreakTypeShort, DailyCount: 3, TimeMinutes: 15},
			{BreakType: model.BreakTypeLunch, DailyCount: 1, TimeMinutes: 60},
		},
		Windows: []model.Window{
			{BreakType: model.BreakTypeShort, Start: timeutil.MustClock("10:00"), End: timeutil.MustClock("12:00"), Priority: 1},
			{BreakType: model.BreakTypeLunch, Start: timeutil.MustClock("13:00"), End: timeutil.MustClock("14:00"), Priority: 1},
		},
	}
}

// 07:00 UTC is 10:00 on the org clock (UTC+3), inside the short-break window.
var tenAMUTC = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func newFixture(utc time.Time, schedules *fakeSchedules) (*BreakService, *fakeLedger, *fakeAlerts, *testClock) {
	tc, clock := newTestClock(utc)
	ledger := &fakeLedger{clock: clock}
	alerts := &fakeAlerts{}
	svc := NewBreakService(schedules, ledger, alerts, clock)
	return svc, ledger, alerts, tc
}

// No assignment: the default schedule applies (15 min limit, quota 3, no
// windows), the break starts, and the inevitable out-of-window breach is
// logged as a warning and group-notified.
func TestStartBreakWithoutAssignmentUsesDefaults(t *testing.T) {
	svc, ledger, alerts, _ := newFixture(tenAMUTC, &fakeSchedules{})

	record, err := svc.StartBreak(context.Background(), "alice", model.BreakTypeShort)
	if err != nil {
		t.Fatalf("StartBreak: %v", err)
	}
	if record.LimitMinutes != model.DefaultShortLimitMinutes {
		t.Errorf("limit = %d, want %d", record.LimitMinutes, model.DefaultShortLimitMinutes)
	}

	kinds := ledger.violationKinds()
	if len(kinds) != 1 || kinds[0] != model.ViolationOutOfWindow {
		t.Errorf("violations = %v, want one out_of_window", kinds)
	}
	if ledger.violations[0].Severity != model.SeverityWarning {
		t.Errorf("severity = %s, want warning", ledger.violations[0].Severity)
	}
	if len(alerts.outOfWindow) != 1 {
		t.Errorf("out-of-window alerts = %d, want 1", len(alerts.outOfWindow))
	}
}

func TestStartBreakInWindowNoViolations(t *testing.T) {
	schedules := &fakeSchedules{byEmployee: map[string]*model.Schedule{"alice": testSchedule()}}
	svc, ledger, alerts, _ := newFixture(tenAMUTC, schedules)

	if _, err := svc.StartBreak(context.Background(), "alice", model.BreakTypeShort); err != nil {
		t.Fatalf("StartBreak: %v", err)
	}
	if kinds := ledger.violationKinds(); len(kinds) != 0 {
		t.Errorf("violations = %v, want none", kinds)
	}
	if len(alerts.outOfWindow)+len(alerts.quota)+len(alerts.overtime) != 0 {
		t.Error("no alerts expected for a clean in-window start")
	}
}

// Quota breaches are detected and notified but never block the start.
func TestStartBreakQuotaExceededIsNonBlocking(t *testing.T) {
	schedules := &fakeSchedules{byEmployee: map[string]*model.Schedule{"alice": testSchedule()}}
	svc, ledger, alerts, tc := newFixture(tenAMUTC, schedules)

	// The 3rd of 3 is fine.
	for i := 0; i < 3; i++ {
		if _, err := svc.StartBreak(context.Background(), "alice", model.BreakTypeShort); err != nil {
			t.Fatalf("StartBreak #%d: %v", i+1, err)
		}
		if _, _, err := svc.EndBreak(context.Background(), "alice", model.BreakTypeShort); err != nil {
			t.Fatalf("EndBreak #%d: %v", i+1, err)
		}
		tc.Advance(time.Minute)
	}
	if kinds := ledger.violationKinds(); len(kinds) != 0 {
		t.Fatalf("violations after 3 breaks = %v, want none", kinds)
	}

	// The 4th exceeds, yet still starts.
	record, err := svc.StartBreak(context.Background(), "alice", model.BreakTypeShort)
	if err != nil {
		t.Fatalf("StartBreak #4: %v", err)
	}
	if record == nil || record.Status != model.BreakStatusActive {
		t.Error("4th break should still start")
	}
	kinds := ledger.violationKinds()
	if len(kinds) != 1 || kinds[0] != model.ViolationQuotaExceeded {
		t.Errorf("violations = %v, want one quota_exceeded", kinds)
	}
	if len(alerts.quota) != 1 || alerts.quota[0] != "alice/break/4/3" {
		t.Errorf("quota alerts = %v, want [alice/break/4/3]", alerts.quota)
	}
}

func TestStartBreakTypeMissingFromSchedule(t *testing.T) {
	schedule := testSchedule()
	schedule.Limits = schedule.Limits[:1] // short breaks only
	schedules := &fakeSchedules{byEmployee: map[string]*model.Schedule{"alice": schedule}}
	svc, _, _, _ := newFixture(tenAMUTC, schedules)

	_, err := svc.StartBreak(context.Background(), "alice", model.BreakTypeLunch)
	if !errors.Is(err, ErrBreakTypeNotInSchedule) {
		t.Errorf("err = %v, want ErrBreakTypeNotInSchedule", err)
	}
}

// A failing schedule backend degrades to the default schedule; the break
// still starts.
func TestStartBreakScheduleLookupFailureDegrades(t *testing.T) {
	schedules := &fakeSchedules{errs: map[string]error{"alice": errors.New("backend down")}}
	svc, _, _, _ := newFixture(tenAMUTC, schedules)

	record, err := svc.StartBreak(context.Background(), "alice", model.BreakTypeShort)
	if err != nil {
		t.Fatalf("StartBreak: %v", err)
	}
	if record.LimitMinutes != model.DefaultShortLimitMinutes {
		t.Errorf("limit = %d, want default", record.LimitMinutes)
	}
}

func TestEndBreakNoOpen(t *testing.T) {
	svc, _, _, _ := newFixture(tenAMUTC, &fakeSchedules{})

	_, _, err := svc.EndBreak(context.Background(), "alice", model.BreakTypeShort)
	if !errors.Is(err, ErrNoOpenBreak) {
		t.Errorf("err = %v, want ErrNoOpenBreak", err)
	}
}

// Start at 10:00 in window, end 17 minutes later against a 15 minute
// limit: overtime 2, one over-limit violation, one overtime alert.
func TestEndBreakOvertime(t *testing.T) {
	schedules := &fakeSchedules{byEmployee: map[string]*model.Schedule{"alice": testSchedule()}}
	svc, ledger, alerts, tc := newFixture(tenAMUTC, schedules)

	if _, err := svc.StartBreak(context.Background(), "alice", model.BreakTypeShort); err != nil {
		t.Fatalf("StartBreak: %v", err)
	}
	tc.Advance(17 * time.Minute)

	duration, limit, err := svc.EndBreak(context.Background(), "alice", model.BreakTypeShort)
	if err != nil {
		t.Fatalf("EndBreak: %v", err)
	}
	if duration != 17 || limit != 15 {
		t.Errorf("duration/limit = %d/%d, want 17/15", duration, limit)
	}

	kinds := ledger.violationKinds()
	if len(kinds) != 1 || kinds[0] != model.ViolationOverLimit {
		t.Errorf("violations = %v, want one over_limit", kinds)
	}
	if len(alerts.overtime) != 1 || alerts.overtime[0] != "alice/break/17/15/2" {
		t.Errorf("overtime alerts = %v, want [alice/break/17/15/2]", alerts.overtime)
	}
}

// Ending exactly at the limit is not a violation: the threshold is one
// full minute over, not zero.
func TestEndBreakAtLimitIsClean(t *testing.T) {
	schedules := &fakeSchedules{byEmployee: map[string]*model.Schedule{"alice": testSchedule()}}
	svc, ledger, alerts, tc := newFixture(tenAMUTC, schedules)

	svc.StartBreak(context.Background(), "alice", model.BreakTypeShort)
	tc.Advance(15 * time.Minute)

	if _, _, err := svc.EndBreak(context.Background(), "alice", model.BreakTypeShort); err != nil {
		t.Fatalf("EndBreak: %v", err)
	}
	if kinds := ledger.violationKinds(); len(kinds) != 0 {
		t.Errorf("violations = %v, want none", kinds)
	}
	if len(alerts.overtime) != 0 {
		t.Errorf("overtime alerts = %v, want none", alerts.overtime)
	}
}

// Violation logging failure never fails the break operation.
func TestEndBreakSurvivesViolationLogFailure(t *testing.T) {
	schedules := &fakeSchedules{byEmployee: map[string]*model.Schedule{"alice": testSchedule()}}
	svc, ledger, alerts, tc := newFixture(tenAMUTC, schedules)

	svc.StartBreak(context.Background(), "alice", model.BreakTypeShort)
	ledger.violationErr = errors.New("backend down")
	tc.Advance(20 * time.Minute)

	duration, _, err := svc.EndBreak(context.Background(), "alice", model.BreakTypeShort)
	if err != nil {
		t.Fatalf("EndBreak should succeed despite violation log failure: %v", err)
	}
	if duration != 20 {
		t.Errorf("duration = %d, want 20", duration)
	}
	// The notification path still runs.
	if len(alerts.overtime) != 1 {
		t.Errorf("overtime alerts = %d, want 1", len(alerts.overtime))
	}
}

func TestMarkReturnedResetsPersonalDebounce(t *testing.T) {
	svc, _, alerts, _ := newFixture(tenAMUTC, &fakeSchedules{})

	svc.MarkReturned(context.Background(), "alice", model.BreakTypeShort)
	if len(alerts.resets) != 1 || alerts.resets[0] != "alice/break" {
		t.Errorf("resets = %v, want [alice/break]", alerts.resets)
	}
}

func TestBreakStatus(t *testing.T) {
	schedules := &fakeSchedules{byEmployee: map[string]*model.Schedule{"alice": testSchedule()}}
	svc, _, _, tc := newFixture(tenAMUTC, schedules)

	svc.StartBreak(context.Background(), "alice", model.BreakTypeShort)
	svc.EndBreak(context.Background(), "alice", model.BreakTypeShort)
	svc.StartBreak(context.Background(), "alice", model.BreakTypeShort)
	tc.Advance(16 * time.Minute)

	report, err := svc.BreakStatus(context.Background(), "alice")
	if err != nil {
		t.Fatalf("BreakStatus: %v", err)
	}
	if report.ScheduleID != "shift8" {
		t.Errorf("schedule = %s, want shift8", report.ScheduleID)
	}
	if ts := report.Types[model.BreakTypeShort]; ts.UsedToday != 2 || ts.Quota != 3 || ts.LimitMinutes != 15 {
		t.Errorf("short break status = %+v", ts)
	}
	if report.Active == nil {
		t.Fatal("expected an active break")
	}
	if report.Active.DurationMinutes != 16 || !report.Active.OverLimit {
		t.Errorf("active = %+v, want 16 min over limit", report.Active)
	}
}
