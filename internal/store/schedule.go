package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"worktime-bot/internal/model"
)

// ScheduleStore reads break schedules and per-employee assignments.
// Schedules are cached by ID; the cache has no TTL and is evicted
// explicitly on every mutation.
type ScheduleStore struct {
	schedules   *mongo.Collection
	assignments *mongo.Collection

	mu    sync.Mutex
	cache map[string]*model.Schedule
}

func NewScheduleStore(ctx context.Context, db *MongoDB) (*ScheduleStore, error) {
	schedules := db.Collection(colSchedules)
	assignments := db.Collection(colAssignments)

	if _, err := schedules.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create schedule indexes: %w", err)
	}

	if _, err := assignments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "employee_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}); err != nil {
		return nil, fmt.Errorf("create assignment indexes: %w", err)
	}

	return &ScheduleStore{
		schedules:   schedules,
		assignments: assignments,
		cache:       make(map[string]*model.Schedule),
	}, nil
}

// GetSchedule resolves a schedule by ID, falling back to display name for
// records created before IDs were stable. Returns nil when absent.
func (s *ScheduleStore) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	s.mu.Lock()
	if cached, ok := s.cache[id]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	var schedule model.Schedule
	err := s.schedules.FindOne(ctx, bson.M{"_id": id}).Decode(&schedule)
	if err == mongo.ErrNoDocuments {
		err = s.schedules.FindOne(ctx, bson.M{"name": id}).Decode(&schedule)
	}
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find schedule: %w", err)
	}

	s.mu.Lock()
	s.cache[id] = &schedule
	s.mu.Unlock()
	return &schedule, nil
}

// GetAssignment resolves the employee's assigned schedule. Returns nil when
// the employee has no assignment or the assigned schedule no longer exists;
// callers fall back to model.DefaultSchedule, they do not fail.
func (s *ScheduleStore) GetAssignment(ctx context.Context, employeeID string) (*model.Schedule, error) {
	var a model.ScheduleAssignment
	err := s.assignments.FindOne(ctx, bson.M{"employee_id": employeeID}).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return s.GetSchedule(ctx, a.ScheduleID)
}

// Invalidate evicts one schedule from the cache. Administrative mutation
// paths must call this after any create/update/delete.
func (s *ScheduleStore) Invalidate(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}

// CreateSchedule inserts or replaces a schedule wholesale and evicts its
// cache entry.
func (s *ScheduleStore) CreateSchedule(ctx context.Context, schedule *model.Schedule) error {
	now := time.Now()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	_, err := s.schedules.ReplaceOne(ctx, bson.M{"_id": schedule.ID}, schedule,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	// Entries may be cached under either lookup key.
	s.Invalidate(schedule.ID)
	s.Invalidate(schedule.Name)
	return nil
}

// DeleteSchedule removes a schedule and evicts its cache entry. Existing
// assignments pointing at it start resolving to the default schedule.
func (s *ScheduleStore) DeleteSchedule(ctx context.Context, id string) error {
	existing, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.schedules.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	s.Invalidate(id)
	if existing != nil {
		s.Invalidate(existing.Name)
	}
	return nil
}

// ListSchedules returns every schedule template.
func (s *ScheduleStore) ListSchedules(ctx context.Context) ([]*model.Schedule, error) {
	cursor, err := s.schedules.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find schedules: %w", err)
	}
	var results []*model.Schedule
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}
	return results, nil
}

// AssignSchedule binds an employee to a schedule, replacing any previous
// assignment. The schedule must exist.
func (s *ScheduleStore) AssignSchedule(ctx context.Context, employeeID, scheduleID, adminID string) error {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return fmt.Errorf("schedule %s not found", scheduleID)
	}

	a := model.ScheduleAssignment{
		EmployeeID: employeeID,
		ScheduleID: schedule.ID,
		AssignedBy: adminID,
		AssignedAt: time.Now(),
	}
	_, err = s.assignments.ReplaceOne(ctx, bson.M{"employee_id": employeeID},
		bson.M{
			"employee_id": a.EmployeeID,
			"schedule_id": a.ScheduleID,
			"assigned_by": a.AssignedBy,
			"assigned_at": a.AssignedAt,
		},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}
	return nil
}

// UnassignSchedule removes the employee's assignment, if any.
func (s *ScheduleStore) UnassignSchedule(ctx context.Context, employeeID string) error {
	if _, err := s.assignments.DeleteOne(ctx, bson.M{"employee_id": employeeID}); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}
