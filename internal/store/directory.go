package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Employee is a directory entry binding an employee ID to a display name
// and a personal notification chat.
type Employee struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"id"`
	EmployeeID     string        `bson:"employee_id" json:"employee_id"`
	Name           string        `bson:"name" json:"name"`
	TelegramChatID string        `bson:"telegram_chat_id" json:"telegram_chat_id"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
}

// Directory looks up employees for notification routing.
type Directory struct {
	employees *mongo.Collection
}

func NewDirectory(ctx context.Context, db *MongoDB) (*Directory, error) {
	employees := db.Collection(colEmployees)

	if _, err := employees.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "employee_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}); err != nil {
		return nil, fmt.Errorf("create employee indexes: %w", err)
	}

	return &Directory{employees: employees}, nil
}

// ChatIDFor returns the employee's personal chat ID; false when the
// employee is unknown or has no chat bound.
func (d *Directory) ChatIDFor(ctx context.Context, employeeID string) (string, bool) {
	var e Employee
	err := d.employees.FindOne(ctx, bson.M{"employee_id": employeeID}).Decode(&e)
	if err != nil || e.TelegramChatID == "" {
		return "", false
	}
	return e.TelegramChatID, true
}

// Upsert creates or refreshes a directory entry.
func (d *Directory) Upsert(ctx context.Context, e *Employee) error {
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	_, err := d.employees.ReplaceOne(ctx, bson.M{"employee_id": e.EmployeeID},
		bson.M{
			"employee_id":      e.EmployeeID,
			"name":             e.Name,
			"telegram_chat_id": e.TelegramChatID,
			"created_at":       e.CreatedAt,
			"updated_at":       e.UpdatedAt,
		},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert employee: %w", err)
	}
	return nil
}
