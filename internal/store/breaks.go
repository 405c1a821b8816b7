package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"worktime-bot/internal/model"
	"worktime-bot/internal/timeutil"
)

// ErrNoOpenBreak is returned by RecordEnd when the employee has no active
// break of the requested type today. Expected and frequent, not a fault.
var ErrNoOpenBreak = errors.New("no open break")

// BreakLedger records break start/end events and answers the same-day
// queries the rules need. "Today" always means the organization-local
// calendar date stamped on the record at write time.
type BreakLedger struct {
	breaks     *mongo.Collection
	violations *mongo.Collection
	clock      *timeutil.Clock
}

func NewBreakLedger(ctx context.Context, db *MongoDB, clock *timeutil.Clock) (*BreakLedger, error) {
	breaks := db.Collection(colBreaks)
	violations := db.Collection(colViolations)

	if _, err := breaks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "employee_id", Value: 1}, {Key: "break_type", Value: 1}, {Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "date", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create break indexes: %w", err)
	}

	if _, err := violations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "employee_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create violation indexes: %w", err)
	}

	return &BreakLedger{breaks: breaks, violations: violations, clock: clock}, nil
}

// CountToday returns how many breaks of the type the employee has started
// on today's organization-local date.
func (l *BreakLedger) CountToday(ctx context.Context, employeeID, breakType string) (int, error) {
	n, err := l.breaks.CountDocuments(ctx, bson.M{
		"employee_id": employeeID,
		"break_type":  breakType,
		"date":        l.clock.Today(),
	})
	if err != nil {
		return 0, fmt.Errorf("count breaks: %w", err)
	}
	return int(n), nil
}

// FindOpenToday returns the most recent active break of the type for the
// employee, restricted to today. Active records from prior days are stale
// and deliberately not returned here; ReapStale handles those.
func (l *BreakLedger) FindOpenToday(ctx context.Context, employeeID, breakType string) (*model.BreakRecord, error) {
	var record model.BreakRecord
	err := l.breaks.FindOne(ctx, bson.M{
		"employee_id": employeeID,
		"break_type":  breakType,
		"status":      model.BreakStatusActive,
		"date":        l.clock.Today(),
	}, options.FindOne().SetSort(bson.D{{Key: "start_time", Value: -1}})).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open break: %w", err)
	}
	return &record, nil
}

// RecordStart inserts a new active break. Uniqueness is not enforced here;
// a double start is tolerated and FindOpenToday resolves to the latest one.
func (l *BreakLedger) RecordStart(ctx context.Context, employeeID, breakType string, startTime time.Time, limitMinutes int) (*model.BreakRecord, error) {
	now := time.Now()
	record := &model.BreakRecord{
		EmployeeID:   employeeID,
		BreakType:    breakType,
		StartTime:    startTime,
		LimitMinutes: limitMinutes,
		Date:         l.clock.DateOf(startTime),
		Status:       model.BreakStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	res, err := l.breaks.InsertOne(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("insert break: %w", err)
	}
	record.ID = res.InsertedID.(bson.ObjectID)
	return record, nil
}

// RecordEnd completes the open break and returns the actual duration and
// the limit it was started with. Duration is end minus start floored to
// whole minutes. Returns ErrNoOpenBreak when nothing is open today.
func (l *BreakLedger) RecordEnd(ctx context.Context, employeeID, breakType string, endTime time.Time) (durationMinutes, limitMinutes int, err error) {
	open, err := l.FindOpenToday(ctx, employeeID, breakType)
	if err != nil {
		return 0, 0, err
	}
	if open == nil {
		return 0, 0, ErrNoOpenBreak
	}

	duration := int(endTime.Sub(open.StartTime).Minutes())
	if duration < 0 {
		duration = 0
	}

	_, err = l.breaks.UpdateOne(ctx, bson.M{"_id": open.ID}, bson.M{"$set": bson.M{
		"end_time":         endTime,
		"duration_minutes": duration,
		"status":           model.BreakStatusCompleted,
		"updated_at":       time.Now(),
	}})
	if err != nil {
		return 0, 0, fmt.Errorf("update break end: %w", err)
	}
	return duration, open.LimitMinutes, nil
}

// ListOpenToday returns every active break started today, across all
// employees. The monitor sweeps this.
func (l *BreakLedger) ListOpenToday(ctx context.Context) ([]*model.BreakRecord, error) {
	cursor, err := l.breaks.Find(ctx, bson.M{
		"status": model.BreakStatusActive,
		"date":   l.clock.Today(),
	})
	if err != nil {
		return nil, fmt.Errorf("find open breaks: %w", err)
	}
	var results []*model.BreakRecord
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode open breaks: %w", err)
	}
	return results, nil
}

// ReapStale force-completes active breaks left over from prior days, with
// duration 0. Run once at startup so a crashed prior run cannot leave an
// employee permanently "on break". Per-record failures are logged and
// skipped; reap never blocks startup.
func (l *BreakLedger) ReapStale(ctx context.Context) {
	cursor, err := l.breaks.Find(ctx, bson.M{
		"status": model.BreakStatusActive,
		"date":   bson.M{"$ne": l.clock.Today()},
	})
	if err != nil {
		log.Printf("reap stale breaks: find failed: %v", err)
		return
	}
	var stale []*model.BreakRecord
	if err := cursor.All(ctx, &stale); err != nil {
		log.Printf("reap stale breaks: decode failed: %v", err)
		return
	}

	for _, record := range stale {
		end := record.StartTime
		_, err := l.breaks.UpdateOne(ctx, bson.M{"_id": record.ID}, bson.M{"$set": bson.M{
			"end_time":         end,
			"duration_minutes": 0,
			"status":           model.BreakStatusCompleted,
			"updated_at":       time.Now(),
		}})
		if err != nil {
			log.Printf("reap stale breaks: %s %s from %s: %v",
				record.EmployeeID, record.BreakType, record.Date, err)
			continue
		}
		log.Printf("Reaped stale break: %s %s from %s", record.EmployeeID, record.BreakType, record.Date)
	}
}

// LogViolation appends a violation row. Timestamp and status default when
// unset; violations are never updated by the engine afterwards.
func (l *BreakLedger) LogViolation(ctx context.Context, v *model.Violation) error {
	if v.Timestamp.IsZero() {
		v.Timestamp = l.clock.Now()
	}
	if v.Status == "" {
		v.Status = model.ViolationPending
	}
	if _, err := l.violations.InsertOne(ctx, v); err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

// ViolationFilter narrows ListViolations. Zero values mean no filter;
// From/To bound the violation timestamp inclusively.
type ViolationFilter struct {
	EmployeeID string
	Kind       model.ViolationKind
	From       time.Time
	To         time.Time
}

// ListViolations returns violations matching the filter, oldest first.
func (l *BreakLedger) ListViolations(ctx context.Context, f ViolationFilter) ([]*model.Violation, error) {
	filter := bson.M{}
	if f.EmployeeID != "" {
		filter["employee_id"] = f.EmployeeID
	}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}
	ts := bson.M{}
	if !f.From.IsZero() {
		ts["$gte"] = f.From
	}
	if !f.To.IsZero() {
		ts["$lte"] = f.To
	}
	if len(ts) > 0 {
		filter["timestamp"] = ts
	}

	cursor, err := l.violations.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find violations: %w", err)
	}
	var results []*model.Violation
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode violations: %w", err)
	}
	return results, nil
}

// UsageStats summarizes one employee's completed break minutes for a date.
type UsageStats struct {
	BreaksUsed        int `json:"breaks_used"`
	LunchesUsed       int `json:"lunches_used"`
	TotalBreakMinutes int `json:"total_break_minutes"`
	TotalLunchMinutes int `json:"total_lunch_minutes"`
}

// GetUsageStats aggregates the employee's breaks for the given date
// (YYYY-MM-DD, org-local); empty date means today.
func (l *BreakLedger) GetUsageStats(ctx context.Context, employeeID, date string) (*UsageStats, error) {
	if date == "" {
		date = l.clock.Today()
	}
	cursor, err := l.breaks.Find(ctx, bson.M{
		"employee_id": employeeID,
		"date":        date,
	})
	if err != nil {
		return nil, fmt.Errorf("find breaks: %w", err)
	}
	var records []*model.BreakRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode breaks: %w", err)
	}

	stats := &UsageStats{}
	for _, r := range records {
		minutes := r.LimitMinutes
		if r.DurationMinutes != nil {
			minutes = *r.DurationMinutes
		}
		switch r.BreakType {
		case model.BreakTypeLunch:
			stats.LunchesUsed++
			stats.TotalLunchMinutes += minutes
		default:
			stats.BreaksUsed++
			stats.TotalBreakMinutes += minutes
		}
	}
	return stats, nil
}
