package store

import (
	"context"
	"time"

	"salonbook/backend/internal/domain"
)

// Visibility states whether tombstoned rows are part of a query. Every list call
// takes it explicitly.
type Visibility int

const (
	ActiveOnly Visibility = iota
	IncludeDeleted
)

type AppointmentRepository interface {
	Get(ctx context.Context, id domain.AppointmentID, vis Visibility) (*domain.Appointment, error)
	ListAll(ctx context.Context, vis Visibility) ([]*domain.Appointment, error)
	ListByClient(ctx context.Context, clientID string, vis Visibility) ([]*domain.Appointment, error)
	ListByOperator(ctx context.Context, operatorID string, vis Visibility) ([]*domain.Appointment, error)
	ListByDateRange(ctx context.Context, from, to time.Time, vis Visibility) ([]*domain.Appointment, error)
	ListByOperatorAndDate(ctx context.Context, operatorID string, day time.Time, vis Visibility) ([]*domain.Appointment, error)
	ListByOperatorAndDateRange(ctx context.Context, operatorID string, from, to time.Time, vis Visibility) ([]*domain.Appointment, error)
	ListByRoomAndDate(ctx context.Context, roomID string, day time.Time, vis Visibility) ([]*domain.Appointment, error)

	// Create inserts a new aggregate under the same overlap recheck as Save. A row
	// with the same id, live or tombstoned, yields ErrAlreadyExists and is left untouched.
	Create(ctx context.Context, appt *domain.Appointment) error
	// Save upserts the aggregate. Operator and room overlap is re-checked in the
	// same transaction as the write; a clash yields ErrConflict.
	Save(ctx context.Context, appt *domain.Appointment) error
	// SoftDelete sets the tombstone. Rows are never physically removed.
	SoftDelete(ctx context.Context, id domain.AppointmentID, at time.Time) error
}

// DirectoryRepository reads the reference data the scheduling core depends on.
type DirectoryRepository interface {
	Client(ctx context.Context, id string) (domain.Client, error)
	Operator(ctx context.Context, id string) (domain.Operator, error)
	Service(ctx context.Context, id string) (domain.Service, error)
	ActiveOperators(ctx context.Context) ([]domain.Operator, error)
	ClientHistory(ctx context.Context, clientID string) (domain.ClientHistory, error)
}
