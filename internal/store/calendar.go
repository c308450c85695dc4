package store

import (
	"context"
	"time"

	"salonbook/backend/internal/domain"
)

// Resource is something an appointment occupies exclusively.
type Resource struct {
	Kind string
	ID   string
}

const (
	ResourceOperator = "operator"
	ResourceRoom     = "room"

	// ResourceAppointment serializes writers racing on one appointment id.
	ResourceAppointment = "appointment"
)

func (r Resource) Key() string { return r.Kind + ":" + r.ID }

// BookingTx is the view of the store available inside a locked booking transaction.
type BookingTx interface {
	GetAppointment(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error)
	ListOccupying(ctx context.Context, res Resource, windowStart, windowEnd time.Time) ([]*domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt *domain.Appointment) error
	UpsertAppointment(ctx context.Context, appt *domain.Appointment) error
}
