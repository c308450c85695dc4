package validation

import (
	"context"
	"time"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

// HolidaySource hands out the current holiday facts. *holidays.Calendar implements it.
type HolidaySource interface {
	Set() domain.HolidaySet
}

// StoreContext backs a validation pass with the repositories. The holiday set is
// captured once at construction so a concurrent refresh cannot change it mid-pass.
type StoreContext struct {
	appointments store.AppointmentRepository
	directory    store.DirectoryRepository
	hours        domain.WorkingHours
	holidays     domain.HolidaySet
}

func NewStoreContext(appts store.AppointmentRepository, dir store.DirectoryRepository, hours domain.WorkingHours, holidays HolidaySource) *StoreContext {
	return &StoreContext{
		appointments: appts,
		directory:    dir,
		hours:        hours,
		holidays:     holidays.Set(),
	}
}

func (c *StoreContext) OperatorAppointments(ctx context.Context, operatorID string, day time.Time) ([]*domain.Appointment, error) {
	return c.appointments.ListByOperatorAndDate(ctx, operatorID, day, store.ActiveOnly)
}

func (c *StoreContext) RoomAppointments(ctx context.Context, roomID string, day time.Time) ([]*domain.Appointment, error) {
	return c.appointments.ListByRoomAndDate(ctx, roomID, day, store.ActiveOnly)
}

func (c *StoreContext) Client(ctx context.Context, id string) (domain.Client, error) {
	return c.directory.Client(ctx, id)
}

func (c *StoreContext) Operator(ctx context.Context, id string) (domain.Operator, error) {
	return c.directory.Operator(ctx, id)
}

func (c *StoreContext) Service(ctx context.Context, id string) (domain.Service, error) {
	return c.directory.Service(ctx, id)
}

func (c *StoreContext) ActiveOperators(ctx context.Context) ([]domain.Operator, error) {
	return c.directory.ActiveOperators(ctx)
}

func (c *StoreContext) ClientHistory(ctx context.Context, clientID string) (domain.ClientHistory, error) {
	return c.directory.ClientHistory(ctx, clientID)
}

func (c *StoreContext) WorkingHours() domain.WorkingHours { return c.hours }

func (c *StoreContext) Holidays() domain.HolidaySet { return c.holidays }

var _ Context = (*StoreContext)(nil)
